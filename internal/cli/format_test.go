package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/spikely/platform/internal/model"
	"github.com/spikely/platform/internal/store"
)

func TestPrintInsights(t *testing.T) {
	var buf bytes.Buffer
	printInsights(&buf, []model.Insight{{
		Timestamp:          time.Date(2026, 3, 14, 18, 4, 5, 0, time.UTC),
		Delta:              -31,
		PrevCount:          140,
		ViewerCount:        109,
		Topic:              model.TopicFinance,
		CorrelationQuality: model.QualityFallback,
		EmotionalLabel:     "❌ Finance dump",
		NextMove:           "Switch topics now",
	}})

	line := buf.String()
	for _, want := range []string{"18:04:05", "-31", "140->109", "finance", "FALLBACK", "Switch topics now"} {
		if !strings.Contains(line, want) {
			t.Errorf("output %q missing %q", line, want)
		}
	}
}

func TestPrintTopicStats(t *testing.T) {
	var buf bytes.Buffer
	printTopicStats(&buf, []store.TopicStat{{Topic: model.TopicFood, Count: 4, Spikes: 3, Dumps: 1, AvgDelta: 7.25, AIShare: 0.5}})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}
	if !strings.Contains(lines[1], "food") || !strings.Contains(lines[1], "50%") {
		t.Errorf("row = %q", lines[1])
	}
}

func TestPrintJSONEmptyHistory(t *testing.T) {
	var buf bytes.Buffer
	printJSON(&buf, []model.Insight{})
	if got := strings.TrimSpace(buf.String()); got != "[]" {
		t.Errorf("json = %q, want []", got)
	}
}

func TestRootCommands(t *testing.T) {
	want := map[string]bool{"replay": false, "history": false, "stats": false}
	for _, c := range RootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("command %q not registered", name)
		}
	}
}

func TestGetDBPath(t *testing.T) {
	old := dbPath
	defer func() { dbPath = old }()

	dbPath = ""
	t.Setenv("DB_PATH", "/tmp/env.db")
	if got := getDBPath(); got != "/tmp/env.db" {
		t.Errorf("getDBPath() = %q, want env value", got)
	}
	dbPath = "/tmp/flag.db"
	if got := getDBPath(); got != "/tmp/flag.db" {
		t.Errorf("getDBPath() = %q, want flag value", got)
	}
}
