package fleet

import (
	"sort"
	"sync"
	"time"

	"github.com/skymesh/fleetcore/util/logger"
)

// State is the shared fleet-state view: the single mutable store of
// drones and missions that the scorer and the gate read from. All
// mutation goes through State methods; callers never hold references
// into its internals.
type State struct {
	mu       sync.RWMutex
	drones   map[string]Drone
	missions map[string]Mission
	logger   *logger.Logger
}

// NewState creates an empty fleet state
func NewState() *State {
	return &State{
		drones:   make(map[string]Drone),
		missions: make(map[string]Mission),
		logger:   logger.NewLogger("FleetState"),
	}
}

// UpsertDrone stores the latest view of a drone, stamping LastSeen.
// The mission assignment is owned by AssignMission, not the reporting
// path: an upsert without an ActiveMissionID keeps the one already on
// record.
func (s *State) UpsertDrone(d Drone) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.ActiveMissionID == "" {
		if prev, ok := s.drones[d.ID]; ok {
			d.ActiveMissionID = prev.ActiveMissionID
		}
	}
	d.LastSeen = time.Now()
	s.drones[d.ID] = d
}

// UpdateDrone applies fn to the drone with the given id under the
// state lock. Returns false if the drone is unknown.
func (s *State) UpdateDrone(id string, fn func(*Drone)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drones[id]
	if !ok {
		return false
	}
	fn(&d)
	d.LastSeen = time.Now()
	s.drones[id] = d
	return true
}

// GetDrone returns a copy of the drone with the given id
func (s *State) GetDrone(id string) (Drone, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.drones[id]
	return d, ok
}

// Drones returns a copy of all drones, ordered by id for stable output
func (s *State) Drones() []Drone {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Drone, 0, len(s.drones))
	for _, d := range s.drones {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RemoveDrone deletes a drone from the view
func (s *State) RemoveDrone(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.drones, id)
}

// UpsertMission stores the latest view of a mission
func (s *State) UpsertMission(m Mission) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.missions[m.ID] = m
}

// GetMission returns a copy of the mission with the given id
func (s *State) GetMission(id string) (Mission, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.missions[id]
	return m, ok
}

// ActiveMissions returns all missions that still occupy a drone,
// ordered by id
func (s *State) ActiveMissions() []Mission {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Mission, 0, len(s.missions))
	for _, m := range s.missions {
		if m.Status.Open() {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AssignMission records a mission assignment: the mission becomes
// active on the drone and the drone holds the mission id. Returns
// false if either side is unknown.
func (s *State) AssignMission(missionID, droneID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.missions[missionID]
	if !ok {
		return false
	}
	d, ok := s.drones[droneID]
	if !ok {
		return false
	}
	m.Status = MissionActive
	m.DroneID = droneID
	d.ActiveMissionID = missionID
	s.missions[missionID] = m
	s.drones[droneID] = d
	s.logger.Infof("Assigned mission %s to drone %s", missionID, droneID)
	return true
}
