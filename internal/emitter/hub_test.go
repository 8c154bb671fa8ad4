package emitter

import (
	"reflect"
	"testing"

	"github.com/spikely/platform/internal/model"
)

func TestEmitRegistrationOrder(t *testing.T) {
	h := New()
	var order []string
	h.OnInsight(func(model.Insight) { order = append(order, "first") })
	h.OnInsight(func(model.Insight) { order = append(order, "second") })
	h.OnInsight(func(model.Insight) { order = append(order, "third") })

	h.Emit(model.Insight{Delta: 5})

	if want := []string{"first", "second", "third"}; !reflect.DeepEqual(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
}

func TestEmitPassesInsight(t *testing.T) {
	h := New()
	var got model.Insight
	h.OnInsight(func(in model.Insight) { got = in })

	h.Emit(model.Insight{Delta: -45, EmotionalLabel: "money dump"})

	if got.Delta != -45 || got.EmotionalLabel != "money dump" {
		t.Errorf("listener got %+v", got)
	}
}

func TestUnsubscribe(t *testing.T) {
	h := New()
	calls := 0
	unsub := h.OnInsight(func(model.Insight) { calls++ })

	h.Emit(model.Insight{})
	unsub()
	unsub()
	h.Emit(model.Insight{})

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestEngineStatus(t *testing.T) {
	h := New()
	if h.Status().Status != model.StatusIdle {
		t.Fatalf("initial status = %s, want IDLE", h.Status().Status)
	}

	var events []model.StatusEvent
	h.OnEngineStatus(func(ev model.StatusEvent) { events = append(events, ev) })

	h.EmitEngineStatus(model.StatusCollecting, model.StatusMeta{})
	h.EmitEngineStatus(model.StatusFailed, model.StatusMeta{Reason: "noSegmentInWindow"})

	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[1].Meta.Reason != "noSegmentInWindow" {
		t.Errorf("reason = %q", events[1].Meta.Reason)
	}
	if events[1].At.IsZero() {
		t.Error("status event should be timestamped")
	}
	if h.Status().Status != model.StatusFailed {
		t.Errorf("Status() = %s, want FAILED", h.Status().Status)
	}
}

func TestPanickingListenerIsContained(t *testing.T) {
	h := New()
	reached := false
	h.OnInsight(func(model.Insight) { panic("boom") })
	h.OnInsight(func(model.Insight) { reached = true })

	h.Emit(model.Insight{})

	if !reached {
		t.Error("listener after a panicking one should still run")
	}
}

func TestListenerMayUnsubscribeDuringEmit(t *testing.T) {
	h := New()
	var unsub func()
	calls := 0
	unsub = h.OnEngineStatus(func(model.StatusEvent) {
		calls++
		unsub()
	})

	h.EmitEngineStatus(model.StatusSuccess, model.StatusMeta{Source: model.SourceAI})
	h.EmitEngineStatus(model.StatusIdle, model.StatusMeta{})

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
