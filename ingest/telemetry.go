// Package ingest bridges external telemetry into the fleet core: an
// MQTT subscriber that validates drone telemetry and feeds it to the
// fleet state, the safety cache and the threshold evaluator, plus a
// Kafka firehose that exports telemetry and alert lifecycle events.
package ingest

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/skymesh/fleetcore/fleet"
)

// Telemetry is one telemetry report published by a drone. DroneID and
// Status are required; Timestamp defaults to arrival time when absent.
type Telemetry struct {
	DroneID        string         `json:"droneId"`
	Name           string         `json:"name,omitempty"`
	Status         string         `json:"status"`
	BatteryLevel   float64        `json:"batteryLevel"`
	BatteryVoltage float64        `json:"batteryVoltage,omitempty"`
	SignalStrength float64        `json:"signalStrength"`
	Position       fleet.Position `json:"position"`
	FlightTime     float64        `json:"flightTimeSeconds"`
	Timestamp      time.Time      `json:"timestamp,omitempty"`
}

// ParseTelemetry decodes and validates a raw telemetry payload.
// Unknown fields are tolerated so drones can ship extra vendor data,
// but the required fields must be present and in range.
func ParseTelemetry(raw []byte) (*Telemetry, error) {
	var t Telemetry
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("decode telemetry: %w", err)
	}
	if strings.TrimSpace(t.DroneID) == "" {
		return nil, fmt.Errorf("missing field: droneId")
	}
	status := fleet.DroneStatus(t.Status)
	if !status.Valid() {
		return nil, fmt.Errorf("invalid drone status %q", t.Status)
	}
	if t.BatteryLevel < 0 || t.BatteryLevel > 100 {
		return nil, fmt.Errorf("battery level %v out of range", t.BatteryLevel)
	}
	if t.SignalStrength < 0 || t.SignalStrength > 100 {
		return nil, fmt.Errorf("signal strength %v out of range", t.SignalStrength)
	}
	if t.FlightTime < 0 {
		return nil, fmt.Errorf("flight time %v out of range", t.FlightTime)
	}
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now()
	}
	return &t, nil
}

// Drone converts the telemetry into a fleet.Drone snapshot.
func (t *Telemetry) Drone() fleet.Drone {
	return fleet.Drone{
		ID:                t.DroneID,
		Name:              t.Name,
		Status:            fleet.DroneStatus(t.Status),
		BatteryLevel:      t.BatteryLevel,
		SignalStrength:    t.SignalStrength,
		Position:          t.Position,
		CurrentFlightTime: t.FlightTime,
		LastSeen:          t.Timestamp,
	}
}

// Reading converts the telemetry into a battery reading for the cache.
func (t *Telemetry) Reading() fleet.BatteryReading {
	return fleet.BatteryReading{
		DroneID:   t.DroneID,
		Timestamp: t.Timestamp,
		Level:     t.BatteryLevel,
		Voltage:   t.BatteryVoltage,
	}
}
