package ingest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/skymesh/fleetcore/fleet"
	"github.com/skymesh/fleetcore/gate"
	"github.com/skymesh/fleetcore/monitor"
	"github.com/skymesh/fleetcore/safetycache"
)

func TestParseTelemetry(t *testing.T) {
	raw := []byte(`{
		"droneId": "drone-001",
		"name": "Alpha",
		"status": "in_flight",
		"batteryLevel": 72.5,
		"batteryVoltage": 15.1,
		"signalStrength": 88,
		"position": {"latitude": 37.77, "longitude": -122.42, "altitude": 120},
		"flightTimeSeconds": 340,
		"timestamp": "2026-08-30T10:00:00Z"
	}`)

	tel, err := ParseTelemetry(raw)
	if err != nil {
		t.Fatalf("ParseTelemetry failed: %v", err)
	}
	if tel.DroneID != "drone-001" {
		t.Errorf("expected droneId drone-001, got %q", tel.DroneID)
	}
	if tel.BatteryLevel != 72.5 {
		t.Errorf("expected battery 72.5, got %v", tel.BatteryLevel)
	}
	if tel.Timestamp.IsZero() {
		t.Error("expected parsed timestamp")
	}

	drone := tel.Drone()
	if drone.Status != fleet.StatusInFlight {
		t.Errorf("expected in_flight status, got %q", drone.Status)
	}
	if drone.Position.Latitude != 37.77 {
		t.Errorf("expected latitude 37.77, got %v", drone.Position.Latitude)
	}
}

func TestParseTelemetryDefaultsTimestamp(t *testing.T) {
	tel, err := ParseTelemetry([]byte(`{"droneId": "d1", "status": "idle", "batteryLevel": 90, "signalStrength": 70}`))
	if err != nil {
		t.Fatalf("ParseTelemetry failed: %v", err)
	}
	if tel.Timestamp.IsZero() {
		t.Error("expected timestamp to default to arrival time")
	}
}

func TestParseTelemetryRejectsInvalid(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"not json", `{`},
		{"missing drone id", `{"status": "idle", "batteryLevel": 50, "signalStrength": 50}`},
		{"blank drone id", `{"droneId": "  ", "status": "idle", "batteryLevel": 50, "signalStrength": 50}`},
		{"unknown status", `{"droneId": "d1", "status": "warp", "batteryLevel": 50, "signalStrength": 50}`},
		{"battery out of range", `{"droneId": "d1", "status": "idle", "batteryLevel": 101, "signalStrength": 50}`},
		{"negative battery", `{"droneId": "d1", "status": "idle", "batteryLevel": -1, "signalStrength": 50}`},
		{"signal out of range", `{"droneId": "d1", "status": "idle", "batteryLevel": 50, "signalStrength": 120}`},
		{"negative flight time", `{"droneId": "d1", "status": "idle", "batteryLevel": 50, "signalStrength": 50, "flightTimeSeconds": -5}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseTelemetry([]byte(tc.raw)); err == nil {
				t.Error("expected parse error")
			}
		})
	}
}

func TestConfigValidateDefaults(t *testing.T) {
	cfg := Config{BrokerURL: "tcp://localhost:1883"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if cfg.Topic != DefaultTelemetryTopic {
		t.Errorf("expected default topic, got %q", cfg.Topic)
	}
	if cfg.ClientID == "" {
		t.Error("expected generated client id")
	}

	if err := (&Config{}).Validate(); err == nil {
		t.Error("expected error for missing broker url")
	}
	if err := (&Config{BrokerURL: "tcp://localhost:1883", QoS: 3}).Validate(); err == nil {
		t.Error("expected error for invalid qos")
	}
}

type recordingBroadcaster struct {
	events   []string
	channels []gate.Channel
}

func (r *recordingBroadcaster) Broadcast(eventType string, data interface{}, channel gate.Channel) int {
	r.events = append(r.events, eventType)
	r.channels = append(r.channels, channel)
	return 1
}

func newTestBridge(t *testing.T) (*Bridge, *fleet.State, *safetycache.Cache, *recordingBroadcaster) {
	t.Helper()
	state := fleet.NewState()
	cache := safetycache.NewCache(safetycache.Config{})
	evaluator := monitor.NewEvaluator(monitor.DefaultThresholds(), cache, nil)
	broadcaster := &recordingBroadcaster{}

	bridge, err := NewBridge(Config{BrokerURL: "tcp://localhost:1883"}, state, cache, evaluator, broadcaster, nil)
	if err != nil {
		t.Fatalf("NewBridge failed: %v", err)
	}
	return bridge, state, cache, broadcaster
}

func TestProcessFeedsPipeline(t *testing.T) {
	bridge, state, cache, broadcaster := newTestBridge(t)

	// The timestamp must be current: the battery history prunes
	// readings outside its rolling window on insert.
	bridge.Process(context.Background(), []byte(fmt.Sprintf(`{
		"droneId": "drone-001",
		"status": "in_flight",
		"batteryLevel": 22,
		"signalStrength": 80,
		"flightTimeSeconds": 120,
		"timestamp": %q
	}`, time.Now().UTC().Format(time.RFC3339))))

	drone, ok := state.GetDrone("drone-001")
	if !ok {
		t.Fatal("expected drone in fleet state")
	}
	if drone.BatteryLevel != 22 {
		t.Errorf("expected battery 22, got %v", drone.BatteryLevel)
	}

	history := cache.GetBatteryHistory("drone-001", time.Hour)
	if len(history) != 1 {
		t.Fatalf("expected 1 battery reading, got %d", len(history))
	}

	// 22% is below the warning threshold, so the evaluator raises an
	// alert and the snapshot classifies the battery accordingly.
	alerts := cache.GetActiveAlerts()
	if len(alerts) != 1 {
		t.Fatalf("expected 1 active alert, got %d", len(alerts))
	}
	if alerts[0].ID != "drone-001:battery" {
		t.Errorf("unexpected alert id %q", alerts[0].ID)
	}

	status := cache.GetDroneSafetyStatus("drone-001")
	if status == nil {
		t.Fatal("expected safety status snapshot")
	}
	if status.BatteryState != "warning" {
		t.Errorf("expected warning battery state, got %q", status.BatteryState)
	}

	if len(broadcaster.events) != 1 || broadcaster.events[0] != "drone_status_update" {
		t.Fatalf("expected one drone_status_update broadcast, got %v", broadcaster.events)
	}
	if broadcaster.channels[0] != gate.ChannelDroneStatus {
		t.Errorf("expected drone_status channel, got %q", broadcaster.channels[0])
	}
}

func TestProcessDropsInvalidPayload(t *testing.T) {
	bridge, state, cache, broadcaster := newTestBridge(t)

	bridge.Process(context.Background(), []byte(`{"status": "idle"}`))

	if drones := state.Drones(); len(drones) != 0 {
		t.Errorf("expected no drones, got %d", len(drones))
	}
	if alerts := cache.GetActiveAlerts(); len(alerts) != 0 {
		t.Errorf("expected no alerts, got %d", len(alerts))
	}
	if len(broadcaster.events) != 0 {
		t.Errorf("expected no broadcasts, got %v", broadcaster.events)
	}
}

func TestProcessKeepsMissionAssignment(t *testing.T) {
	bridge, state, _, _ := newTestBridge(t)

	state.UpsertDrone(fleet.Drone{ID: "drone-001", Status: fleet.StatusIdle, BatteryLevel: 90, SignalStrength: 90})
	state.UpsertMission(fleet.Mission{ID: "m1", Status: fleet.MissionPending})
	if !state.AssignMission("m1", "drone-001") {
		t.Fatal("AssignMission failed")
	}

	// Telemetry never carries the assignment; the next report must
	// not erase it.
	bridge.Process(context.Background(), []byte(`{
		"droneId": "drone-001",
		"status": "in_flight",
		"batteryLevel": 85,
		"signalStrength": 88
	}`))

	drone, ok := state.GetDrone("drone-001")
	if !ok {
		t.Fatal("expected drone in fleet state")
	}
	if drone.ActiveMissionID != "m1" {
		t.Errorf("expected active mission m1 after telemetry, got %q", drone.ActiveMissionID)
	}
	if drone.BatteryLevel != 85 {
		t.Errorf("expected telemetry fields applied, got battery %v", drone.BatteryLevel)
	}
}
