package fleet

import (
	"testing"
)

func TestUpsertAndGetDrone(t *testing.T) {
	s := NewState()

	s.UpsertDrone(Drone{ID: "d1", Name: "Alpha", Status: StatusIdle, BatteryLevel: 80})

	d, ok := s.GetDrone("d1")
	if !ok {
		t.Fatal("expected drone d1")
	}
	if d.Name != "Alpha" {
		t.Errorf("expected name Alpha, got %q", d.Name)
	}
	if d.LastSeen.IsZero() {
		t.Error("expected LastSeen to be stamped")
	}

	if _, ok := s.GetDrone("missing"); ok {
		t.Error("expected missing drone lookup to fail")
	}
}

func TestUpsertDroneKeepsMissionAssignment(t *testing.T) {
	s := NewState()
	s.UpsertDrone(Drone{ID: "d1", Status: StatusIdle, BatteryLevel: 90})
	s.UpsertMission(Mission{ID: "m1", Status: MissionPending})
	if !s.AssignMission("m1", "d1") {
		t.Fatal("AssignMission failed")
	}

	// An upsert without an assignment keeps the recorded one
	s.UpsertDrone(Drone{ID: "d1", Status: StatusInFlight, BatteryLevel: 85})

	d, _ := s.GetDrone("d1")
	if d.ActiveMissionID != "m1" {
		t.Errorf("expected assignment to survive upsert, got %q", d.ActiveMissionID)
	}
	if d.BatteryLevel != 85 {
		t.Errorf("expected upsert fields applied, got battery %v", d.BatteryLevel)
	}

	// An explicit assignment in the upsert wins
	s.UpsertDrone(Drone{ID: "d1", Status: StatusInFlight, ActiveMissionID: "m2"})
	d, _ = s.GetDrone("d1")
	if d.ActiveMissionID != "m2" {
		t.Errorf("expected explicit assignment m2, got %q", d.ActiveMissionID)
	}
}

func TestUpdateDrone(t *testing.T) {
	s := NewState()
	s.UpsertDrone(Drone{ID: "d1", BatteryLevel: 80})

	ok := s.UpdateDrone("d1", func(d *Drone) {
		d.BatteryLevel = 60
		d.Status = StatusInFlight
	})
	if !ok {
		t.Fatal("UpdateDrone failed for known drone")
	}

	d, _ := s.GetDrone("d1")
	if d.BatteryLevel != 60 || d.Status != StatusInFlight {
		t.Errorf("update not applied: %+v", d)
	}

	if s.UpdateDrone("missing", func(d *Drone) {}) {
		t.Error("expected UpdateDrone to fail for unknown drone")
	}
}

func TestDronesOrderedByID(t *testing.T) {
	s := NewState()
	s.UpsertDrone(Drone{ID: "d3"})
	s.UpsertDrone(Drone{ID: "d1"})
	s.UpsertDrone(Drone{ID: "d2"})

	drones := s.Drones()
	if len(drones) != 3 {
		t.Fatalf("expected 3 drones, got %d", len(drones))
	}
	for i, want := range []string{"d1", "d2", "d3"} {
		if drones[i].ID != want {
			t.Errorf("position %d: expected %s, got %s", i, want, drones[i].ID)
		}
	}

	s.RemoveDrone("d2")
	if len(s.Drones()) != 2 {
		t.Error("expected 2 drones after removal")
	}
}

func TestActiveMissionsFiltersClosed(t *testing.T) {
	s := NewState()
	s.UpsertMission(Mission{ID: "m1", Status: MissionPending})
	s.UpsertMission(Mission{ID: "m2", Status: MissionCompleted})
	s.UpsertMission(Mission{ID: "m3", Status: MissionActive})
	s.UpsertMission(Mission{ID: "m4", Status: MissionAborted})

	active := s.ActiveMissions()
	if len(active) != 2 {
		t.Fatalf("expected 2 active missions, got %d", len(active))
	}
	if active[0].ID != "m1" || active[1].ID != "m3" {
		t.Errorf("unexpected active set: %v, %v", active[0].ID, active[1].ID)
	}
}

func TestAssignMission(t *testing.T) {
	s := NewState()
	s.UpsertDrone(Drone{ID: "d1", Status: StatusIdle})
	s.UpsertMission(Mission{ID: "m1", Status: MissionPending, Priority: 5})

	if !s.AssignMission("m1", "d1") {
		t.Fatal("AssignMission failed")
	}

	m, _ := s.GetMission("m1")
	if m.Status != MissionActive || m.DroneID != "d1" {
		t.Errorf("mission not assigned: %+v", m)
	}
	d, _ := s.GetDrone("d1")
	if d.ActiveMissionID != "m1" {
		t.Errorf("drone missing mission id: %+v", d)
	}

	if s.AssignMission("missing", "d1") {
		t.Error("expected assignment to unknown mission to fail")
	}
	if s.AssignMission("m1", "missing") {
		t.Error("expected assignment to unknown drone to fail")
	}
}
