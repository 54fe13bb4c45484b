package safetycache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/skymesh/fleetcore/fleet"
)

func newTestCache() (*Cache, *time.Time) {
	c := NewCache(Config{})
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	clock := &now
	c.now = func() time.Time { return *clock }
	return c, clock
}

func TestStoreBatteryDataAndHistory(t *testing.T) {
	c, clock := newTestCache()

	base := *clock
	for i := 0; i < 5; i++ {
		ok := c.StoreBatteryData("d1", fleet.BatteryReading{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Level:     float64(100 - i),
		})
		if !ok {
			t.Fatalf("StoreBatteryData returned false for reading %d", i)
		}
	}

	*clock = base.Add(5 * time.Minute)
	history := c.GetBatteryHistory("d1", time.Hour)
	if len(history) != 5 {
		t.Fatalf("expected 5 readings, got %d", len(history))
	}
	if history[0].Level != 100 || history[4].Level != 96 {
		t.Errorf("history out of order: %+v", history)
	}
}

func TestBatteryWindowPruning(t *testing.T) {
	c, clock := newTestCache()
	base := *clock

	c.StoreBatteryData("d1", fleet.BatteryReading{Timestamp: base, Level: 90})

	// Advance past the window; the next insert prunes the old entry
	*clock = base.Add(61 * time.Minute)
	c.StoreBatteryData("d1", fleet.BatteryReading{Timestamp: *clock, Level: 80})

	history := c.GetBatteryHistory("d1", time.Hour)
	if len(history) != 1 {
		t.Fatalf("expected 1 reading after pruning, got %d", len(history))
	}
	if history[0].Level != 80 {
		t.Errorf("wrong reading survived pruning: %+v", history[0])
	}
}

func TestGetBatteryHistoryWindowFilter(t *testing.T) {
	c, clock := newTestCache()
	base := *clock

	c.StoreBatteryData("d1", fleet.BatteryReading{Timestamp: base.Add(-30 * time.Minute), Level: 90})
	c.StoreBatteryData("d1", fleet.BatteryReading{Timestamp: base.Add(-5 * time.Minute), Level: 85})

	got := c.GetBatteryHistory("d1", 10*time.Minute)
	if len(got) != 1 || got[0].Level != 85 {
		t.Errorf("10-minute window should return only the recent reading, got %+v", got)
	}
}

func TestGetBatteryHistoryUnknownDrone(t *testing.T) {
	c, _ := newTestCache()
	got := c.GetBatteryHistory("nope", time.Hour)
	if got == nil || len(got) != 0 {
		t.Errorf("unknown drone should yield empty non-nil slice, got %v", got)
	}
}

func TestStoreBatteryDataEmptyID(t *testing.T) {
	c, _ := newTestCache()
	if c.StoreBatteryData("", fleet.BatteryReading{Level: 50}) {
		t.Error("empty drone id must be rejected")
	}
}

func TestStoreAlertUpsert(t *testing.T) {
	c, _ := newTestCache()

	a := fleet.Alert{ID: "d1:battery_warning", DroneID: "d1", Severity: fleet.SeverityWarning, Message: "battery at 24%"}
	if !c.StoreAlert(a) {
		t.Fatal("StoreAlert returned false")
	}

	// Same id again: upsert, not duplicate
	a.Message = "battery at 20%"
	c.StoreAlert(a)

	active := c.GetActiveAlerts()
	if len(active) != 1 {
		t.Fatalf("expected 1 active alert after upsert, got %d", len(active))
	}
	if active[0].Message != "battery at 20%" {
		t.Errorf("upsert should overwrite: %+v", active[0])
	}

	// But history records both writes
	if hist := c.AlertHistory(0); len(hist) != 2 {
		t.Errorf("expected 2 history entries, got %d", len(hist))
	}
}

func TestResolveAlertIdempotent(t *testing.T) {
	c, _ := newTestCache()
	c.StoreAlert(fleet.Alert{ID: "a1", DroneID: "d1", Severity: fleet.SeverityCritical})

	if !c.ResolveAlert("a1", "operator") {
		t.Error("first resolve should succeed")
	}
	if !c.ResolveAlert("a1", "operator") {
		t.Error("second resolve must be a no-op, not a failure")
	}
	if !c.ResolveAlert("never-existed", "operator") {
		t.Error("resolving an unknown id must be a no-op, not a failure")
	}

	if active := c.GetActiveAlerts(); len(active) != 0 {
		t.Errorf("resolved alert still active: %v", active)
	}
	// The audit trail keeps the original entry
	if hist := c.AlertHistory(0); len(hist) != 1 {
		t.Errorf("history must be untouched by resolve, got %d entries", len(hist))
	}
}

func TestAcknowledgeAlert(t *testing.T) {
	c, _ := newTestCache()
	c.StoreAlert(fleet.Alert{ID: "a1", DroneID: "d1"})

	if !c.AcknowledgeAlert("a1") {
		t.Error("acknowledge of active alert should succeed")
	}
	if c.AcknowledgeAlert("missing") {
		t.Error("acknowledge of unknown alert should fail")
	}
	a, _ := c.GetAlert("a1")
	if !a.Acknowledged {
		t.Error("alert not marked acknowledged")
	}
}

func TestAlertHistoryRetention(t *testing.T) {
	c, clock := newTestCache()
	base := *clock

	c.StoreAlert(fleet.Alert{ID: "old", Timestamp: base.Add(-31 * 24 * time.Hour)})
	c.StoreAlert(fleet.Alert{ID: "new", Timestamp: base})

	hist := c.AlertHistory(0)
	if len(hist) != 1 || hist[0].ID != "new" {
		t.Errorf("expected only the fresh entry after retention pruning, got %+v", hist)
	}
}

func TestSafetyStatusLastWriteWins(t *testing.T) {
	c, _ := newTestCache()

	c.StoreDroneSafetyStatus("d1", fleet.SafetyStatus{BatteryState: "safe", BatteryLevel: 80})
	c.StoreDroneSafetyStatus("d1", fleet.SafetyStatus{BatteryState: "warning", BatteryLevel: 22})

	s := c.GetDroneSafetyStatus("d1")
	if s == nil {
		t.Fatal("expected a snapshot")
	}
	if s.BatteryState != "warning" || s.BatteryLevel != 22 {
		t.Errorf("last write should win, got %+v", s)
	}

	if c.GetDroneSafetyStatus("unknown") != nil {
		t.Error("unknown drone should yield nil snapshot")
	}

	all := c.GetAllDroneSafetyStatuses()
	if len(all) != 1 {
		t.Errorf("expected one snapshot, got %d", len(all))
	}
}

func TestAggregatesInvalidateAll(t *testing.T) {
	c, _ := newTestCache()
	c.StoreBatteryData("d1", fleet.BatteryReading{Level: 50})
	c.StoreAlert(fleet.Alert{ID: "a1"})

	c.SetAggregate("active_missions", []string{"m1", "m2"})
	if _, ok := c.GetAggregate("active_missions"); !ok {
		t.Fatal("aggregate not stored")
	}

	if !c.InvalidateAll() {
		t.Error("InvalidateAll returned false")
	}
	if _, ok := c.GetAggregate("active_missions"); ok {
		t.Error("aggregate survived InvalidateAll")
	}

	// Raw history is untouched
	if len(c.GetBatteryHistory("d1", time.Hour)) != 1 {
		t.Error("battery history must survive InvalidateAll")
	}
	if len(c.GetActiveAlerts()) != 1 {
		t.Error("active alerts must survive InvalidateAll")
	}
}

func TestConcurrentBatteryWrites(t *testing.T) {
	c := NewCache(Config{})

	var wg sync.WaitGroup
	for d := 0; d < 4; d++ {
		droneID := fmt.Sprintf("d%d", d)
		for i := 0; i < 25; i++ {
			wg.Add(1)
			go func(id string, level float64) {
				defer wg.Done()
				c.StoreBatteryData(id, fleet.BatteryReading{Timestamp: time.Now(), Level: level})
			}(droneID, float64(i))
		}
	}
	wg.Wait()

	for d := 0; d < 4; d++ {
		id := fmt.Sprintf("d%d", d)
		if got := len(c.GetBatteryHistory(id, time.Hour)); got != 25 {
			t.Errorf("drone %s: expected 25 readings, got %d", id, got)
		}
	}
	if c.batteryLock.tracked() != 0 {
		t.Errorf("key locks leaked: %d entries", c.batteryLock.tracked())
	}
}
