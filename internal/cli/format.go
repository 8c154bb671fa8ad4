package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spikely/platform/internal/model"
	"github.com/spikely/platform/internal/store"
)

func printJSON(w io.Writer, v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Fprintln(w, string(b))
}

func printInsights(w io.Writer, insights []model.Insight) {
	for _, in := range insights {
		fmt.Fprintf(w, "%s  %+d  %d->%d  %-11s %-11s %s | %s\n",
			in.Timestamp.UTC().Format(time.TimeOnly), in.Delta, in.PrevCount, in.ViewerCount,
			in.Topic, in.CorrelationQuality, in.EmotionalLabel, in.NextMove)
	}
}

func printTopicStats(w io.Writer, stats []store.TopicStat) {
	fmt.Fprintf(w, "%-11s %6s %6s %6s %9s %8s\n", "TOPIC", "COUNT", "SPIKES", "DUMPS", "AVG DELTA", "AI SHARE")
	for _, s := range stats {
		fmt.Fprintf(w, "%-11s %6d %6d %6d %9.1f %7.0f%%\n",
			s.Topic, s.Count, s.Spikes, s.Dumps, s.AvgDelta, s.AIShare*100)
	}
}
