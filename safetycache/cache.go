// Package safetycache is the bounded in-memory store of recent drone
// health: rolling battery history, active and historical alerts, and
// latest safety snapshots. Writes never propagate errors back to the
// telemetry producer; failures are logged and counted instead.
package safetycache

import (
	"sync"
	"time"

	"github.com/skymesh/fleetcore/fleet"
	"github.com/skymesh/fleetcore/util/logger"
	"github.com/skymesh/fleetcore/util/metrics"
)

const (
	// DefaultBatteryWindow is the rolling retention for battery history
	DefaultBatteryWindow = 60 * time.Minute

	// DefaultAlertRetention bounds the append-only alert history
	DefaultAlertRetention = 30 * 24 * time.Hour
)

// Config holds cache retention settings
type Config struct {
	BatteryWindow  time.Duration
	AlertRetention time.Duration
}

// Cache is the safety cache. Battery history is serialized per drone
// id; alert and snapshot state each have their own lock. There is no
// cross-key locking.
type Cache struct {
	batteryWindow  time.Duration
	alertRetention time.Duration

	batteryMu      sync.RWMutex
	batteryHistory map[string][]fleet.BatteryReading
	batteryLock    *keyLock

	alertMu      sync.RWMutex
	activeAlerts map[string]fleet.Alert
	alertHistory []fleet.Alert

	statusMu sync.RWMutex
	statuses map[string]fleet.SafetyStatus

	aggMu      sync.RWMutex
	aggregates map[string]interface{}

	logger *logger.Logger
	now    func() time.Time
}

// NewCache creates a cache with the given retention settings. Zero
// values fall back to the defaults.
func NewCache(cfg Config) *Cache {
	if cfg.BatteryWindow <= 0 {
		cfg.BatteryWindow = DefaultBatteryWindow
	}
	if cfg.AlertRetention <= 0 {
		cfg.AlertRetention = DefaultAlertRetention
	}
	return &Cache{
		batteryWindow:  cfg.BatteryWindow,
		alertRetention: cfg.AlertRetention,
		batteryHistory: make(map[string][]fleet.BatteryReading),
		batteryLock:    newKeyLock(),
		activeAlerts:   make(map[string]fleet.Alert),
		statuses:       make(map[string]fleet.SafetyStatus),
		aggregates:     make(map[string]interface{}),
		logger:         logger.NewLogger("SafetyCache"),
		now:            time.Now,
	}
}

// StoreBatteryData appends a reading to the drone's history and prunes
// entries older than the rolling window. Pruning problems never fail
// the caller's write; false is returned only when the insert itself is
// rejected.
func (c *Cache) StoreBatteryData(droneID string, reading fleet.BatteryReading) bool {
	if droneID == "" {
		c.logger.Errorf("StoreBatteryData called with empty drone id")
		metrics.RecordCacheWriteFailure("store_battery")
		return false
	}

	unlock := c.batteryLock.Lock(droneID)
	defer unlock()

	reading.DroneID = droneID
	if reading.Timestamp.IsZero() {
		reading.Timestamp = c.now()
	}

	cutoff := c.now().Add(-c.batteryWindow)

	c.batteryMu.Lock()
	history := append(c.batteryHistory[droneID], reading)
	// Drop everything older than the window. History is appended in
	// receipt order, so scan from the front.
	start := 0
	for start < len(history) && history[start].Timestamp.Before(cutoff) {
		start++
	}
	c.batteryHistory[droneID] = history[start:]
	c.batteryMu.Unlock()

	return true
}

// GetBatteryHistory returns the drone's readings from the last
// `window` duration. Unknown drones yield an empty slice, never an
// error.
func (c *Cache) GetBatteryHistory(droneID string, window time.Duration) []fleet.BatteryReading {
	if window <= 0 {
		window = c.batteryWindow
	}
	cutoff := c.now().Add(-window)

	unlock := c.batteryLock.RLock(droneID)
	defer unlock()

	c.batteryMu.RLock()
	history := c.batteryHistory[droneID]
	c.batteryMu.RUnlock()

	out := make([]fleet.BatteryReading, 0, len(history))
	for _, r := range history {
		if !r.Timestamp.Before(cutoff) {
			out = append(out, r)
		}
	}
	return out
}

// StoreAlert upserts the alert into the active mapping by id and
// appends it to the time-ordered history. It does not deduplicate by
// content; id stability is the caller's responsibility.
func (c *Cache) StoreAlert(alert fleet.Alert) bool {
	if alert.ID == "" {
		c.logger.Errorf("StoreAlert called with empty alert id")
		metrics.RecordCacheWriteFailure("store_alert")
		return false
	}
	if alert.Timestamp.IsZero() {
		alert.Timestamp = c.now()
	}

	c.alertMu.Lock()
	c.activeAlerts[alert.ID] = alert
	c.alertHistory = append(c.alertHistory, alert)
	c.pruneAlertHistoryLocked()
	active := len(c.activeAlerts)
	c.alertMu.Unlock()

	metrics.SetActiveAlerts(active)
	return true
}

// pruneAlertHistoryLocked drops history entries past the retention
// bound. Caller holds alertMu.
func (c *Cache) pruneAlertHistoryLocked() {
	cutoff := c.now().Add(-c.alertRetention)
	start := 0
	for start < len(c.alertHistory) && c.alertHistory[start].Timestamp.Before(cutoff) {
		start++
	}
	if start > 0 {
		c.alertHistory = c.alertHistory[start:]
	}
}

// GetActiveAlerts returns all unresolved alerts, newest first
func (c *Cache) GetActiveAlerts() []fleet.Alert {
	c.alertMu.RLock()
	defer c.alertMu.RUnlock()
	out := make([]fleet.Alert, 0, len(c.activeAlerts))
	for _, a := range c.activeAlerts {
		out = append(out, a)
	}
	return out
}

// GetAlert returns the active alert with the given id
func (c *Cache) GetAlert(id string) (fleet.Alert, bool) {
	c.alertMu.RLock()
	defer c.alertMu.RUnlock()
	a, ok := c.activeAlerts[id]
	return a, ok
}

// AcknowledgeAlert marks an active alert as acknowledged. Returns
// false for unknown ids.
func (c *Cache) AcknowledgeAlert(id string) bool {
	c.alertMu.Lock()
	defer c.alertMu.Unlock()
	a, ok := c.activeAlerts[id]
	if !ok {
		return false
	}
	a.Acknowledged = true
	c.activeAlerts[id] = a
	return true
}

// ResolveAlert removes the alert from the active mapping. The history
// entry is untouched; it is the immutable audit trail. Resolving an
// already-resolved or unknown id is a no-op and still reports success.
func (c *Cache) ResolveAlert(id, resolvedBy string) bool {
	c.alertMu.Lock()
	_, ok := c.activeAlerts[id]
	if ok {
		delete(c.activeAlerts, id)
	}
	active := len(c.activeAlerts)
	c.alertMu.Unlock()

	metrics.SetActiveAlerts(active)
	if ok {
		c.logger.Infof("Resolved alert %s (by %s)", id, resolvedBy)
	}
	return true
}

// AlertHistory returns history entries from the last `window`
// duration, oldest first. A non-positive window returns everything
// retained.
func (c *Cache) AlertHistory(window time.Duration) []fleet.Alert {
	c.alertMu.RLock()
	defer c.alertMu.RUnlock()
	if window <= 0 {
		out := make([]fleet.Alert, len(c.alertHistory))
		copy(out, c.alertHistory)
		return out
	}
	cutoff := c.now().Add(-window)
	out := make([]fleet.Alert, 0, len(c.alertHistory))
	for _, a := range c.alertHistory {
		if !a.Timestamp.Before(cutoff) {
			out = append(out, a)
		}
	}
	return out
}

// StoreDroneSafetyStatus overwrites the drone's safety snapshot.
// Last write wins; no history is kept here.
func (c *Cache) StoreDroneSafetyStatus(droneID string, status fleet.SafetyStatus) bool {
	if droneID == "" {
		c.logger.Errorf("StoreDroneSafetyStatus called with empty drone id")
		metrics.RecordCacheWriteFailure("store_status")
		return false
	}
	status.DroneID = droneID
	if status.LastUpdate.IsZero() {
		status.LastUpdate = c.now()
	}

	c.statusMu.Lock()
	c.statuses[droneID] = status
	c.statusMu.Unlock()
	return true
}

// GetDroneSafetyStatus returns the latest snapshot for the drone, or
// nil if none has been stored
func (c *Cache) GetDroneSafetyStatus(droneID string) *fleet.SafetyStatus {
	c.statusMu.RLock()
	defer c.statusMu.RUnlock()
	s, ok := c.statuses[droneID]
	if !ok {
		return nil
	}
	return &s
}

// GetAllDroneSafetyStatuses returns a copy of every drone's latest
// snapshot keyed by drone id
func (c *Cache) GetAllDroneSafetyStatuses() map[string]fleet.SafetyStatus {
	c.statusMu.RLock()
	defer c.statusMu.RUnlock()
	out := make(map[string]fleet.SafetyStatus, len(c.statuses))
	for id, s := range c.statuses {
		out[id] = s
	}
	return out
}

// SetAggregate caches a derived read-path aggregate (active mission
// lists, mission stats) under the given key
func (c *Cache) SetAggregate(key string, value interface{}) {
	c.aggMu.Lock()
	c.aggregates[key] = value
	c.aggMu.Unlock()
}

// GetAggregate returns a cached aggregate by key
func (c *Cache) GetAggregate(key string) (interface{}, bool) {
	c.aggMu.RLock()
	defer c.aggMu.RUnlock()
	v, ok := c.aggregates[key]
	return v, ok
}

// InvalidateAll clears the aggregate namespace. Raw battery and alert
// history are untouched.
func (c *Cache) InvalidateAll() bool {
	c.aggMu.Lock()
	c.aggregates = make(map[string]interface{})
	c.aggMu.Unlock()
	c.logger.Debugf("Invalidated cached aggregates")
	return true
}
