// Package scoring ranks candidate drones for mission assignment.
package scoring

import (
	"fmt"
	"sort"

	"github.com/skymesh/fleetcore/fleet"
	"github.com/skymesh/fleetcore/geo"
)

// Scoring thresholds and penalties. Issues disqualify, warnings only
// reduce the score.
const (
	minAssignableBattery = 30.0    // percent, below this the drone is disqualified
	lowBattery           = 50.0    // percent, below this is a warning
	minSignal            = 50.0    // percent
	farDistance          = 50000.0 // meters to first waypoint
	longFlightTime       = 3600.0  // seconds of continuous flight
	highPriority         = 8

	penaltyUnavailable = 100
	penaltyBusy        = 80
	penaltyBatteryLow  = 50
	penaltyCharging    = 20
	penaltyBatteryWarn = 20
	penaltySignalWeak  = 10
	penaltyFar         = 15
	penaltyLongFlight  = 5
	bonusHighPriority  = 10
)

// Result is the compatibility verdict for one drone. Compatible is
// true exactly when no issues were found, independent of the numeric
// score.
type Result struct {
	DroneID    string   `json:"droneId"`
	Score      int      `json:"score"`
	Compatible bool     `json:"compatible"`
	Issues     []string `json:"issues"`
	Warnings   []string `json:"warnings"`
}

// Scorer evaluates drone/mission compatibility. CruiseSpeed is used
// for flight time estimates; zero means geo.DefaultCruiseSpeed.
type Scorer struct {
	CruiseSpeed float64
}

// NewScorer creates a scorer with the default cruise speed
func NewScorer() *Scorer {
	return &Scorer{CruiseSpeed: geo.DefaultCruiseSpeed}
}

// Score evaluates a single drone against a mission
func (s *Scorer) Score(mission fleet.Mission, drone fleet.Drone) Result {
	r := Result{
		DroneID:  drone.ID,
		Score:    100,
		Issues:   []string{},
		Warnings: []string{},
	}

	switch drone.Status {
	case fleet.StatusMaintenance:
		r.Issues = append(r.Issues, "Drone is under maintenance")
		r.Score -= penaltyUnavailable
	case fleet.StatusEmergency:
		r.Issues = append(r.Issues, "Drone is in emergency mode")
		r.Score -= penaltyUnavailable
	case fleet.StatusCharging:
		r.Warnings = append(r.Warnings, "Drone is charging")
		r.Score -= penaltyCharging
	}

	if drone.ActiveMissionID != "" {
		r.Issues = append(r.Issues, fmt.Sprintf("Drone already assigned to mission %s", drone.ActiveMissionID))
		r.Score -= penaltyBusy
	}

	if drone.BatteryLevel < minAssignableBattery {
		r.Issues = append(r.Issues, fmt.Sprintf("Battery too low for assignment (%.0f%%)", drone.BatteryLevel))
		r.Score -= penaltyBatteryLow
	} else if drone.BatteryLevel < lowBattery {
		r.Warnings = append(r.Warnings, fmt.Sprintf("Battery below %.0f%% (%.0f%%)", lowBattery, drone.BatteryLevel))
		r.Score -= penaltyBatteryWarn
	}

	if drone.SignalStrength < minSignal {
		r.Warnings = append(r.Warnings, fmt.Sprintf("Weak signal (%.0f%%)", drone.SignalStrength))
		r.Score -= penaltySignalWeak
	}

	if len(mission.Waypoints) > 0 {
		d := geo.Distance(drone.Position, mission.Waypoints[0].Position)
		if d > farDistance {
			r.Warnings = append(r.Warnings, fmt.Sprintf("First waypoint is %.1f km away", d/1000))
			r.Score -= penaltyFar
		}
	}

	if drone.CurrentFlightTime > longFlightTime {
		r.Warnings = append(r.Warnings, fmt.Sprintf("Drone has been flying for %.0f s", drone.CurrentFlightTime))
		r.Score -= penaltyLongFlight
	}

	if mission.Priority >= highPriority {
		r.Score += bonusHighPriority
	}

	if r.Score < 0 {
		r.Score = 0
	}
	r.Compatible = len(r.Issues) == 0
	return r
}

// Rank scores every candidate drone and returns results ordered by
// score descending. The sort is stable: equally scored drones keep
// their input order, which keeps assignment reproducible.
func (s *Scorer) Rank(mission fleet.Mission, drones []fleet.Drone) []Result {
	results := make([]Result, 0, len(drones))
	for _, d := range drones {
		results = append(results, s.Score(mission, d))
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	return results
}

// EstimateFlightTime returns the estimated seconds for the drone to
// fly the mission from its current position, waypoint by waypoint,
// including hover times
func (s *Scorer) EstimateFlightTime(mission fleet.Mission, drone fleet.Drone) float64 {
	return geo.EstimateFlightTime(drone.Position, mission.Waypoints, s.CruiseSpeed)
}
