// Package monitor is the threshold evaluator: the only producer of
// alerts from telemetry. It classifies battery readings against
// configured thresholds, raises alerts with stable per-drone ids, and
// auto-resolves them once a metric has recovered for enough
// consecutive readings.
package monitor

import (
	"fmt"
	"sync"
	"time"

	"github.com/skymesh/fleetcore/fleet"
	"github.com/skymesh/fleetcore/safetycache"
	"github.com/skymesh/fleetcore/util/logger"
	"github.com/skymesh/fleetcore/util/metrics"
)

// Thresholds holds the numeric policy for alert generation. Battery
// levels are percentages.
type Thresholds struct {
	BatteryEmergency float64 `yaml:"battery_emergency"`
	BatteryCritical  float64 `yaml:"battery_critical"`
	BatteryWarning   float64 `yaml:"battery_warning"`
	BatteryCaution   float64 `yaml:"battery_caution"`
	MaxFlightTime    float64 `yaml:"max_flight_time"` // seconds
	MinSignal        float64 `yaml:"min_signal"`      // percent

	// HealthyStreak is the hysteresis: how many consecutive healthy
	// readings are required before an active alert auto-resolves.
	HealthyStreak int `yaml:"healthy_streak"`
}

// DefaultThresholds returns the default alerting policy
func DefaultThresholds() Thresholds {
	return Thresholds{
		BatteryEmergency: 10,
		BatteryCritical:  15,
		BatteryWarning:   25,
		BatteryCaution:   35,
		MaxFlightTime:    1800,
		MinSignal:        50,
		HealthyStreak:    3,
	}
}

// Sink receives alert lifecycle events from the evaluator. The gate
// broadcast, the archive and the firehose all hang off a Sink in the
// process wiring.
type Sink interface {
	AlertRaised(alert fleet.Alert)
	AlertResolved(alert fleet.Alert)
}

// Evaluator evaluates telemetry readings against the thresholds and
// maintains alert state through the safety cache. Safe for concurrent
// use.
type Evaluator struct {
	thresholds Thresholds
	cache      *safetycache.Cache
	sink       Sink
	logger     *logger.Logger

	mu      sync.Mutex
	active  map[string]fleet.Alert // alert id -> currently raised alert
	healthy map[string]int         // alert id -> consecutive healthy readings
}

// NewEvaluator creates an evaluator. A nil sink disables lifecycle
// notifications; alert state is still maintained in the cache.
func NewEvaluator(thresholds Thresholds, cache *safetycache.Cache, sink Sink) *Evaluator {
	if thresholds.HealthyStreak <= 0 {
		thresholds.HealthyStreak = 3
	}
	return &Evaluator{
		thresholds: thresholds,
		cache:      cache,
		sink:       sink,
		logger:     logger.NewLogger("Evaluator"),
		active:     make(map[string]fleet.Alert),
		healthy:    make(map[string]int),
	}
}

// ClassifyBattery maps a battery level to the snapshot state names
func (e *Evaluator) ClassifyBattery(level float64) string {
	switch {
	case level <= e.thresholds.BatteryCritical:
		return "critical"
	case level <= e.thresholds.BatteryWarning:
		return "warning"
	case level <= e.thresholds.BatteryCaution:
		return "caution"
	default:
		return "safe"
	}
}

// EvaluateBattery evaluates one battery reading. Re-evaluating the
// same reading is idempotent: the alert id is stable per drone, and a
// reading that does not change the matched threshold neither
// duplicates the alert nor resets it.
func (e *Evaluator) EvaluateBattery(droneID string, reading fleet.BatteryReading) {
	id := droneID + ":battery"
	name, severity := e.batteryThreshold(reading.Level)

	e.mu.Lock()
	defer e.mu.Unlock()

	if name == "" {
		e.recordHealthyLocked(id)
		return
	}

	e.healthy[id] = 0
	if cur, ok := e.active[id]; ok && cur.Type == name {
		// Same threshold still violated, nothing new to raise
		return
	}

	alert := fleet.Alert{
		ID:        id,
		DroneID:   droneID,
		Type:      name,
		Severity:  severity,
		Message:   fmt.Sprintf("Battery at %.1f%% on drone %s", reading.Level, droneID),
		Timestamp: reading.Timestamp,
	}
	e.raiseLocked(alert)
}

// EvaluateStatus evaluates signal strength and continuous flight time
// from a status reading
func (e *Evaluator) EvaluateStatus(droneID string, signal, flightTime float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	signalID := droneID + ":low_signal"
	if signal < e.thresholds.MinSignal {
		e.healthy[signalID] = 0
		if _, ok := e.active[signalID]; !ok {
			e.raiseLocked(fleet.Alert{
				ID:       signalID,
				DroneID:  droneID,
				Type:     "low_signal",
				Severity: fleet.SeverityWarning,
				Message:  fmt.Sprintf("Signal strength at %.0f%% on drone %s", signal, droneID),
			})
		}
	} else {
		e.recordHealthyLocked(signalID)
	}

	flightID := droneID + ":flight_time"
	if flightTime > e.thresholds.MaxFlightTime {
		e.healthy[flightID] = 0
		if _, ok := e.active[flightID]; !ok {
			e.raiseLocked(fleet.Alert{
				ID:       flightID,
				DroneID:  droneID,
				Type:     "flight_time",
				Severity: fleet.SeverityWarning,
				Message:  fmt.Sprintf("Drone %s flying for %.0f s, max is %.0f s", droneID, flightTime, e.thresholds.MaxFlightTime),
			})
		}
	} else {
		e.recordHealthyLocked(flightID)
	}
}

// batteryThreshold returns the most severe violated battery threshold
// name and its severity, or "" when the level is healthy
func (e *Evaluator) batteryThreshold(level float64) (string, fleet.AlertSeverity) {
	switch {
	case level <= e.thresholds.BatteryEmergency:
		return "battery_emergency", fleet.SeverityCritical
	case level <= e.thresholds.BatteryCritical:
		return "battery_critical", fleet.SeverityCritical
	case level <= e.thresholds.BatteryWarning:
		return "battery_warning", fleet.SeverityWarning
	case level <= e.thresholds.BatteryCaution:
		return "battery_low", fleet.SeverityInfo
	default:
		return "", ""
	}
}

// raiseLocked stores and announces an alert. Caller holds e.mu.
func (e *Evaluator) raiseLocked(alert fleet.Alert) {
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now()
	}
	e.active[alert.ID] = alert
	if !e.cache.StoreAlert(alert) {
		e.logger.Errorf("Failed to store alert %s", alert.ID)
		return
	}
	metrics.RecordAlertCreated(string(alert.Severity))
	e.logger.Warnf("Alert raised: %s (%s) %s", alert.ID, alert.Severity, alert.Message)
	if e.sink != nil {
		e.sink.AlertRaised(alert)
	}
}

// recordHealthyLocked counts a healthy reading toward the hysteresis
// streak and resolves the alert once the streak is long enough.
// Caller holds e.mu.
func (e *Evaluator) recordHealthyLocked(id string) {
	alert, ok := e.active[id]
	if !ok {
		return
	}
	e.healthy[id]++
	if e.healthy[id] < e.thresholds.HealthyStreak {
		return
	}

	delete(e.active, id)
	delete(e.healthy, id)
	e.cache.ResolveAlert(id, "auto")
	e.logger.Infof("Alert %s auto-resolved after %d healthy readings", id, e.thresholds.HealthyStreak)
	if e.sink != nil {
		now := time.Now()
		alert.Resolved = true
		alert.ResolvedBy = "auto"
		alert.ResolvedAt = &now
		e.sink.AlertResolved(alert)
	}
}

// Forget drops evaluator-side tracking for an alert id. The gate
// calls this when an operator resolves an alert manually so that a
// continuing violation raises a fresh alert.
func (e *Evaluator) Forget(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.active, id)
	delete(e.healthy, id)
}
