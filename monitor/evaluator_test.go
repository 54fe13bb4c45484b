package monitor

import (
	"sync"
	"testing"

	"github.com/skymesh/fleetcore/fleet"
	"github.com/skymesh/fleetcore/safetycache"
)

type recordingSink struct {
	mu       sync.Mutex
	raised   []fleet.Alert
	resolved []fleet.Alert
}

func (s *recordingSink) AlertRaised(a fleet.Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.raised = append(s.raised, a)
}

func (s *recordingSink) AlertResolved(a fleet.Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolved = append(s.resolved, a)
}

func newTestEvaluator() (*Evaluator, *safetycache.Cache, *recordingSink) {
	cache := safetycache.NewCache(safetycache.Config{})
	sink := &recordingSink{}
	return NewEvaluator(DefaultThresholds(), cache, sink), cache, sink
}

func TestEvaluateBatteryRaisesAlert(t *testing.T) {
	e, cache, sink := newTestEvaluator()

	e.EvaluateBattery("d1", fleet.BatteryReading{Level: 12})

	active := cache.GetActiveAlerts()
	if len(active) != 1 {
		t.Fatalf("expected 1 active alert, got %d", len(active))
	}
	a := active[0]
	if a.ID != "d1:battery" || a.Type != "battery_critical" || a.Severity != fleet.SeverityCritical {
		t.Errorf("unexpected alert: %+v", a)
	}
	if len(sink.raised) != 1 {
		t.Errorf("sink should see one raise, got %d", len(sink.raised))
	}
}

func TestEvaluateBatteryIdempotentPerReading(t *testing.T) {
	e, cache, sink := newTestEvaluator()

	for i := 0; i < 5; i++ {
		e.EvaluateBattery("d1", fleet.BatteryReading{Level: 12})
	}

	if active := cache.GetActiveAlerts(); len(active) != 1 {
		t.Errorf("re-evaluation must not duplicate alerts, got %d active", len(active))
	}
	if len(sink.raised) != 1 {
		t.Errorf("sink should see exactly one raise, got %d", len(sink.raised))
	}
}

func TestEvaluateBatterySeverityEscalation(t *testing.T) {
	e, cache, sink := newTestEvaluator()

	e.EvaluateBattery("d1", fleet.BatteryReading{Level: 24})
	e.EvaluateBattery("d1", fleet.BatteryReading{Level: 9})

	active := cache.GetActiveAlerts()
	if len(active) != 1 {
		t.Fatalf("escalation must upsert the same id, got %d active", len(active))
	}
	if active[0].Type != "battery_emergency" {
		t.Errorf("expected escalated type battery_emergency, got %s", active[0].Type)
	}
	if len(sink.raised) != 2 {
		t.Errorf("escalation should re-announce, got %d raises", len(sink.raised))
	}
}

func TestHysteresisRequiresStreak(t *testing.T) {
	e, cache, sink := newTestEvaluator()

	e.EvaluateBattery("d1", fleet.BatteryReading{Level: 20})

	// Two healthy readings are not enough
	e.EvaluateBattery("d1", fleet.BatteryReading{Level: 80})
	e.EvaluateBattery("d1", fleet.BatteryReading{Level: 80})
	if len(cache.GetActiveAlerts()) != 1 {
		t.Fatal("alert resolved before the healthy streak completed")
	}

	// Third healthy reading completes the streak
	e.EvaluateBattery("d1", fleet.BatteryReading{Level: 80})
	if len(cache.GetActiveAlerts()) != 0 {
		t.Error("alert not auto-resolved after healthy streak")
	}
	if len(sink.resolved) != 1 || sink.resolved[0].ResolvedBy != "auto" {
		t.Errorf("sink should see one auto resolution, got %+v", sink.resolved)
	}
}

func TestHysteresisStreakResetByViolation(t *testing.T) {
	e, cache, _ := newTestEvaluator()

	e.EvaluateBattery("d1", fleet.BatteryReading{Level: 20})
	e.EvaluateBattery("d1", fleet.BatteryReading{Level: 80})
	e.EvaluateBattery("d1", fleet.BatteryReading{Level: 80})
	// Violation again: the streak starts over
	e.EvaluateBattery("d1", fleet.BatteryReading{Level: 20})
	e.EvaluateBattery("d1", fleet.BatteryReading{Level: 80})
	e.EvaluateBattery("d1", fleet.BatteryReading{Level: 80})

	if len(cache.GetActiveAlerts()) != 1 {
		t.Error("streak must reset when the violation recurs")
	}
}

func TestEvaluateStatusSignalAndFlightTime(t *testing.T) {
	e, cache, _ := newTestEvaluator()

	e.EvaluateStatus("d1", 30, 2000)

	active := cache.GetActiveAlerts()
	if len(active) != 2 {
		t.Fatalf("expected low_signal and flight_time alerts, got %d", len(active))
	}
	types := map[string]bool{}
	for _, a := range active {
		types[a.Type] = true
	}
	if !types["low_signal"] || !types["flight_time"] {
		t.Errorf("unexpected alert types: %v", types)
	}

	// Recover both for the full streak
	for i := 0; i < 3; i++ {
		e.EvaluateStatus("d1", 90, 100)
	}
	if len(cache.GetActiveAlerts()) != 0 {
		t.Error("status alerts not auto-resolved after recovery")
	}
}

func TestForgetAllowsReRaise(t *testing.T) {
	e, cache, sink := newTestEvaluator()

	e.EvaluateBattery("d1", fleet.BatteryReading{Level: 20})
	cache.ResolveAlert("d1:battery", "operator")
	e.Forget("d1:battery")

	// Violation continues: a fresh alert must be raised
	e.EvaluateBattery("d1", fleet.BatteryReading{Level: 20})
	if len(cache.GetActiveAlerts()) != 1 {
		t.Error("expected a fresh alert after Forget")
	}
	if len(sink.raised) != 2 {
		t.Errorf("expected 2 raises, got %d", len(sink.raised))
	}
}

func TestClassifyBattery(t *testing.T) {
	e, _, _ := newTestEvaluator()
	tests := []struct {
		level float64
		want  string
	}{
		{5, "critical"},
		{15, "critical"},
		{20, "warning"},
		{30, "caution"},
		{50, "safe"},
	}
	for _, tt := range tests {
		if got := e.ClassifyBattery(tt.level); got != tt.want {
			t.Errorf("ClassifyBattery(%v) = %q, want %q", tt.level, got, tt.want)
		}
	}
}
