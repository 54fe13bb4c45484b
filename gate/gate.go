// Package gate owns the set of live subscriber connections: it
// dispatches inbound control messages, fans events out to subscribed
// channels, and reaps dead connections via heartbeat probes. Delivery
// is best-effort: a failed send closes that connection and nothing
// else; a missed event is superseded by the next one.
package gate

import (
	"errors"
	"sync"
	"time"

	"github.com/skymesh/fleetcore/fleet"
	"github.com/skymesh/fleetcore/safetycache"
	"github.com/skymesh/fleetcore/scoring"
	"github.com/skymesh/fleetcore/util/logger"
	"github.com/skymesh/fleetcore/util/metrics"
	"github.com/skymesh/fleetcore/util/uniqueid"
)

var errConnClosed = errors.New("connection closed")

const (
	// DefaultHeartbeatInterval is how often liveness probes go out
	DefaultHeartbeatInterval = 15 * time.Second

	// DefaultLivenessTimeout is how stale a connection's liveness may
	// get before it is force-closed. Roughly 2-4x the probe interval.
	DefaultLivenessTimeout = 45 * time.Second
)

// AlertTracker lets the gate clear evaluator-side state when an
// operator resolves an alert manually, so a continuing violation
// raises a fresh alert. monitor.Evaluator implements it.
type AlertTracker interface {
	Forget(id string)
}

// Config holds gate timing settings. Zero values fall back to the
// defaults.
type Config struct {
	HeartbeatInterval time.Duration
	LivenessTimeout   time.Duration
}

// Gate is the connection registry and broadcaster
type Gate struct {
	config Config
	cache  *safetycache.Cache
	state  *fleet.State

	tracker AlertTracker
	scorer  *scoring.Scorer

	// OnAlertResolved is called after an operator resolves an alert
	// through the gate. Wiring uses it to archive and export the
	// resolution. May be nil.
	OnAlertResolved func(alert fleet.Alert)

	mu      sync.RWMutex
	clients map[string]*Connection

	logger *logger.Logger

	heartbeatOnce sync.Once
	stopOnce      sync.Once
	ticker        *time.Ticker
	stopCh        chan struct{}
	done          chan struct{}
}

// NewGate creates a gate over the given cache and fleet state
func NewGate(config Config, cache *safetycache.Cache, state *fleet.State, tracker AlertTracker) *Gate {
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if config.LivenessTimeout <= 0 {
		config.LivenessTimeout = DefaultLivenessTimeout
	}
	return &Gate{
		config:  config,
		cache:   cache,
		state:   state,
		tracker: tracker,
		scorer:  scoring.NewScorer(),
		clients: make(map[string]*Connection),
		logger:  logger.NewLogger("Gate"),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// SetScorer replaces the mission-assignment scorer. Call before any
// connections are accepted.
func (g *Gate) SetScorer(s *scoring.Scorer) {
	if s != nil {
		g.scorer = s
	}
}

// StartHeartbeat begins the liveness loop. It runs on its own ticker
// so a slow message handler never delays the next probe round.
func (g *Gate) StartHeartbeat() {
	g.heartbeatOnce.Do(func() {
		g.ticker = time.NewTicker(g.config.HeartbeatInterval)
		g.logger.Infof("Heartbeat started: probe every %v, timeout %v", g.config.HeartbeatInterval, g.config.LivenessTimeout)
		go g.runHeartbeat()
	})
}

func (g *Gate) runHeartbeat() {
	defer close(g.done)
	for {
		select {
		case <-g.stopCh:
			return
		case <-g.ticker.C:
			g.heartbeatTick()
		}
	}
}

// heartbeatTick probes every connection and evicts the ones whose
// liveness is past the timeout. The probe is a transport-level ping,
// not an application event: websocket endpoints answer it
// automatically, so a purely-listening subscriber stays alive without
// sending any message of its own.
func (g *Gate) heartbeatTick() {
	now := time.Now()
	for _, conn := range g.snapshot() {
		if now.Sub(conn.lastSeen()) > g.config.LivenessTimeout {
			g.logger.Warnf("Connection %s missed liveness timeout, closing", conn.id)
			metrics.ConnectionsEvicted.Inc()
			g.remove(conn.id)
			continue
		}
		if err := conn.ping(); err != nil {
			g.logger.Warnf("Liveness probe to %s failed: %v", conn.id, err)
			g.remove(conn.id)
		}
	}
}

// OnConnect registers a new connection and sends it the
// connection-established event plus a current-status snapshot. The
// snapshot goes to the new connection only, never broadcast.
func (g *Gate) OnConnect(transport Transport) string {
	conn := newConnection(uniqueid.UniqueId(), transport)

	g.mu.Lock()
	g.clients[conn.id] = conn
	count := len(g.clients)
	g.mu.Unlock()

	metrics.SetActiveConnections(count)
	g.logger.Infof("Connection %s established (%d live)", conn.id, count)

	g.sendEvent(conn, "connection_established", map[string]interface{}{
		"clientId": conn.id,
		"channels": allChannels(),
	}, "")
	g.sendEvent(conn, "drone_status_update", g.cache.GetAllDroneSafetyStatuses(), "")

	return conn.id
}

// OnPong records a liveness-probe acknowledgment from the transport
func (g *Gate) OnPong(connectionID string) {
	g.mu.RLock()
	conn, ok := g.clients[connectionID]
	g.mu.RUnlock()
	if ok {
		conn.touch()
	}
}

// OnDisconnect removes a connection after the transport reports it
// gone
func (g *Gate) OnDisconnect(connectionID string) {
	g.remove(connectionID)
}

// Broadcast sends an event to every live connection subscribed to the
// channel. An empty channel targets all connections. A connection
// whose send fails is removed; delivery to the rest continues. The
// return value counts successful sends only.
func (g *Gate) Broadcast(eventType string, data interface{}, channel Channel) int {
	payload, err := encodeEvent(eventType, data, "")
	if err != nil {
		g.logger.Errorf("Failed to encode broadcast %s: %v", eventType, err)
		return 0
	}

	sent := 0
	dropped := 0
	for _, conn := range g.snapshot() {
		if !conn.subscribedTo(channel) {
			continue
		}
		if err := conn.send(payload); err != nil {
			g.logger.Warnf("Broadcast %s to %s failed, removing connection: %v", eventType, conn.id, err)
			g.remove(conn.id)
			dropped++
			continue
		}
		sent++
	}

	label := string(channel)
	if label == "" {
		label = "*"
	}
	metrics.RecordBroadcast(label, sent, dropped)
	return sent
}

// ConnectionCount returns the number of live connections
func (g *Gate) ConnectionCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.clients)
}

// Close stops the heartbeat and force-closes every connection
func (g *Gate) Close() {
	g.stopOnce.Do(func() {
		close(g.stopCh)
		if g.ticker != nil {
			g.ticker.Stop()
			<-g.done
		}
	})

	g.mu.Lock()
	for id, conn := range g.clients {
		conn.close()
		delete(g.clients, id)
	}
	g.mu.Unlock()

	metrics.SetActiveConnections(0)
	g.logger.Infof("Gate closed")
}

// snapshot copies the live connection set. Broadcast and heartbeat
// iterate the copy, so connections added or removed mid-flight may be
// skipped or included; broadcasts carry best current state, not a
// transaction log.
func (g *Gate) snapshot() []*Connection {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Connection, 0, len(g.clients))
	for _, c := range g.clients {
		out = append(out, c)
	}
	return out
}

func (g *Gate) remove(connectionID string) {
	g.mu.Lock()
	conn, ok := g.clients[connectionID]
	if ok {
		delete(g.clients, connectionID)
	}
	count := len(g.clients)
	g.mu.Unlock()

	if !ok {
		return
	}
	conn.close()
	metrics.SetActiveConnections(count)
	g.logger.Infof("Connection %s removed (%d live)", connectionID, count)
}

// sendEvent sends one event to a single connection, removing it on
// failure
func (g *Gate) sendEvent(conn *Connection, eventType string, data interface{}, requestID string) {
	payload, err := encodeEvent(eventType, data, requestID)
	if err != nil {
		g.logger.Errorf("Failed to encode %s event: %v", eventType, err)
		return
	}
	if err := conn.send(payload); err != nil {
		g.logger.Warnf("Send %s to %s failed, removing connection: %v", eventType, conn.id, err)
		g.remove(conn.id)
	}
}

func allChannels() []string {
	return []string{
		string(ChannelBattery),
		string(ChannelSafety),
		string(ChannelEmergency),
		string(ChannelSystem),
		string(ChannelDroneStatus),
		string(ChannelMissions),
		string(ChannelAll),
	}
}
