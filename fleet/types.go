package fleet

import (
	"time"
)

// DroneStatus represents the operational state of a drone
type DroneStatus string

const (
	StatusIdle        DroneStatus = "idle"
	StatusActive      DroneStatus = "active"
	StatusInFlight    DroneStatus = "in_flight"
	StatusCharging    DroneStatus = "charging"
	StatusMaintenance DroneStatus = "maintenance"
	StatusEmergency   DroneStatus = "emergency"
)

// Valid reports whether s is one of the known drone statuses
func (s DroneStatus) Valid() bool {
	switch s {
	case StatusIdle, StatusActive, StatusInFlight, StatusCharging, StatusMaintenance, StatusEmergency:
		return true
	}
	return false
}

// Position is a geographic position with altitude in meters
type Position struct {
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude"`
	Altitude  float64 `json:"altitude" yaml:"altitude"`
}

// Drone is the read-only fleet view of a single drone used by the
// scorer and broadcast snapshots. Mutation goes through fleet.State.
type Drone struct {
	ID                string      `json:"id"`
	Name              string      `json:"name"`
	Status            DroneStatus `json:"status"`
	BatteryLevel      float64     `json:"batteryLevel"`   // percent, 0-100
	SignalStrength    float64     `json:"signalStrength"` // percent, 0-100
	Position          Position    `json:"position"`
	CurrentFlightTime float64     `json:"currentFlightTimeSeconds"`
	ActiveMissionID   string      `json:"activeMissionId,omitempty"`
	LastSeen          time.Time   `json:"lastSeen"`
}

// MissionStatus represents the lifecycle state of a mission
type MissionStatus string

const (
	MissionPending   MissionStatus = "pending"
	MissionActive    MissionStatus = "active"
	MissionPaused    MissionStatus = "paused"
	MissionCompleted MissionStatus = "completed"
	MissionAborted   MissionStatus = "aborted"
)

// Open reports whether the mission still occupies a drone
func (s MissionStatus) Open() bool {
	return s == MissionPending || s == MissionActive || s == MissionPaused
}

// Waypoint is a single mission leg target. HoverTime is the time to
// hold position at the waypoint, in seconds.
type Waypoint struct {
	Position  Position `json:"position"`
	HoverTime float64  `json:"hoverTime,omitempty"`
}

// Mission is the read-only mission view used by the scorer
type Mission struct {
	ID        string        `json:"id"`
	Priority  int           `json:"priority"` // 1-10
	Waypoints []Waypoint    `json:"waypoints"`
	Status    MissionStatus `json:"status"`
	DroneID   string        `json:"droneId,omitempty"`
}

// AlertSeverity classifies how urgent an alert is
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// Alert is a safety violation detected by the threshold evaluator.
// The ID is stable per (drone, threshold) so that re-evaluating the
// same reading upserts instead of duplicating.
type Alert struct {
	ID           string        `json:"id"`
	DroneID      string        `json:"droneId"`
	Type         string        `json:"type"`
	Severity     AlertSeverity `json:"severity"`
	Message      string        `json:"message"`
	Timestamp    time.Time     `json:"timestamp"`
	Acknowledged bool          `json:"acknowledged"`
	Resolved     bool          `json:"resolved"`
	ResolvedBy   string        `json:"resolvedBy,omitempty"`
	ResolvedAt   *time.Time    `json:"resolvedAt,omitempty"`
}

// BatteryReading is one battery telemetry sample for a drone
type BatteryReading struct {
	DroneID   string             `json:"droneId"`
	Timestamp time.Time          `json:"timestamp"`
	Level     float64            `json:"level"`   // percent, 0-100
	Voltage   float64            `json:"voltage"` // volts
	Raw       map[string]float64 `json:"raw,omitempty"`
}

// SafetyStatus is the latest-known safety snapshot for a drone,
// overwritten on every update. No history is retained here.
type SafetyStatus struct {
	DroneID        string    `json:"droneId"`
	BatteryState   string    `json:"batteryState"` // safe|caution|warning|critical
	BatteryLevel   float64   `json:"batteryLevel"`
	SignalStrength float64   `json:"signalStrength"`
	FlightTime     float64   `json:"flightTimeSeconds"`
	LastUpdate     time.Time `json:"lastUpdate"`
}
