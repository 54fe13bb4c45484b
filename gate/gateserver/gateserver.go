// Package gateserver binds the gate to its websocket transport and
// serves the prometheus metrics endpoint.
package gateserver

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skymesh/fleetcore/gate"
	"github.com/skymesh/fleetcore/util/logger"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 4096
)

// Config holds gate server settings
type Config struct {
	ListenAddress        string        // websocket listen address, e.g. ":8090"
	MetricsListenAddress string        // optional separate address for /metrics
	ShutdownGrace        time.Duration // graceful shutdown timeout (default 5s)
}

func (c *Config) validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if c.ListenAddress == "" {
		return fmt.Errorf("ListenAddress cannot be empty")
	}
	if c.ShutdownGrace == 0 {
		c.ShutdownGrace = 5 * time.Second
	}
	return nil
}

// Server accepts websocket clients and hands them to the gate
type Server struct {
	config        *Config
	gate          *gate.Gate
	logger        *logger.Logger
	upgrader      websocket.Upgrader
	httpServer    *http.Server
	metricsServer *http.Server
}

// NewServer creates a gate server for the given gate
func NewServer(config *Config, g *gate.Gate) (*Server, error) {
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid gate server configuration: %w", err)
	}
	return &Server{
		config: config,
		gate:   g,
		logger: logger.NewLogger("GateServer"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The dashboard is served from a different origin in
			// development setups
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}, nil
}

// Start starts the websocket listener and, if configured, the metrics
// server. It returns immediately; use Stop to shut down.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebsocket)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if s.config.MetricsListenAddress == "" {
		mux.Handle("/metrics", promhttp.Handler())
	}

	s.httpServer = &http.Server{
		Addr:    s.config.ListenAddress,
		Handler: mux,
	}

	go func() {
		s.logger.Infof("Gate server listening on %s", s.config.ListenAddress)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Errorf("HTTP server error: %v", err)
		}
		s.logger.Infof("Gate server stopped")
	}()

	if s.config.MetricsListenAddress != "" {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		s.metricsServer = &http.Server{
			Addr:    s.config.MetricsListenAddress,
			Handler: metricsMux,
		}
		go func() {
			s.logger.Infof("Metrics server listening on %s", s.config.MetricsListenAddress)
			if err := s.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				s.logger.Errorf("Metrics server error: %v", err)
			}
		}()
	}

	s.gate.StartHeartbeat()
	return nil
}

// Stop gracefully shuts down the servers and closes the gate
func (s *Server) Stop() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownGrace)
	defer cancel()

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Errorf("HTTP server shutdown error: %v", err)
		}
	}
	if s.metricsServer != nil {
		if err := s.metricsServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Errorf("Metrics server shutdown error: %v", err)
		}
	}

	s.gate.Close()
	return nil
}

// wsTransport adapts one gorilla websocket connection to the gate's
// Transport. Writes are serialized; gorilla allows only one writer.
type wsTransport struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (t *wsTransport) Send(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

// Ping sends a websocket ping control frame. Endpoints reply with a
// pong frame on their own; WriteControl may run concurrently with
// WriteMessage, so no lock is taken.
func (t *wsTransport) Ping() error {
	return t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (t *wsTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn.Close()
}

// handleWebsocket upgrades the request and runs the read loop. The
// read loop is the only reader; the gate owns the write side through
// the transport.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnf("Websocket upgrade failed for %s: %v", r.RemoteAddr, err)
		return
	}
	conn.SetReadLimit(maxMessageSize)

	transport := &wsTransport{conn: conn}
	connID := s.gate.OnConnect(transport)

	conn.SetPongHandler(func(string) error {
		s.gate.OnPong(connID)
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warnf("Read error on %s: %v", connID, err)
			}
			s.gate.OnDisconnect(connID)
			return
		}
		s.gate.OnMessage(connID, message)
	}
}
