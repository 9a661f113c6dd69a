// Package dashboard exposes a budget engine over HTTP: a JSON read API, a
// Prometheus scrape endpoint, and a websocket stream of engine events.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/perfgate/perfgate/pkg/perfgate"
)

const (
	maxClients      = 100
	eventBufferSize = 200
	pongWait        = 60 * time.Second
	pingInterval    = 30 * time.Second
	statusInterval  = 5 * time.Second
)

// Server serves the engine's read API and streams its events to websocket
// clients. One Server per engine.
type Server struct {
	engine *perfgate.Engine
	logger *slog.Logger
	addr   string

	httpServer *http.Server
	upgrader   websocket.Upgrader

	clientsMu sync.RWMutex
	clients   map[*websocket.Conn]struct{}

	eventsMu    sync.Mutex
	eventBuffer []perfgate.Event
	eventIndex  int
	eventCount  int

	unsubscribe []func()
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// NewServer wires a dashboard to the engine. The server subscribes to all
// engine event types; call Stop to detach.
func NewServer(engine *perfgate.Engine, addr string, logger *slog.Logger) *Server {
	s := &Server{
		engine: engine,
		logger: logger,
		addr:   addr,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" ||
					origin == "http://localhost"+addr ||
					origin == "http://127.0.0.1"+addr
			},
		},
		clients:     make(map[*websocket.Conn]struct{}),
		eventBuffer: make([]perfgate.Event, eventBufferSize),
		stopCh:      make(chan struct{}),
	}

	for _, t := range []perfgate.EventType{
		perfgate.EventViolation,
		perfgate.EventRecovery,
		perfgate.EventDegradationChange,
	} {
		s.unsubscribe = append(s.unsubscribe, engine.On(t, s.onEvent))
	}
	return s
}

// Start begins serving. It blocks until the listener fails or Stop is
// called; run it on its own goroutine.
func (s *Server) Start() error {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/api/budgets", s.handleBudgets)
	r.Get("/api/statuses", s.handleStatuses)
	r.Get("/api/statuses/{name}", s.handleStatus)
	r.Get("/api/trends/{name}", s.handleTrend)
	r.Get("/api/events", s.handleEvents)
	r.Get("/api/degradation", s.handleDegradation)
	r.Post("/api/degradation/reset", s.handleDegradationReset)
	r.Get("/api/report", s.handleReport)
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws", s.handleWebSocket)

	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go s.statusLoop()

	s.logger.Info("dashboard listening", "addr", s.addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}

// Stop detaches from the engine and shuts the listener down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		close(s.stopCh)
		for _, unsub := range s.unsubscribe {
			unsub()
		}
		if s.httpServer != nil {
			err = s.httpServer.Shutdown(ctx)
		}
	})
	return err
}

// statusLoop pushes a periodic status frame so clients track values that
// change without generating events.
func (s *Server) statusLoop() {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.clientsMu.RLock()
			idle := len(s.clients) == 0
			s.clientsMu.RUnlock()
			if idle {
				continue
			}
			s.broadcast(map[string]any{
				"type": "statuses",
				"data": map[string]any{
					"statuses":    s.engine.GetAllStatuses(),
					"degradation": s.engine.GetDegradationState(),
				},
			})
		case <-s.stopCh:
			return
		}
	}
}

// onEvent buffers the event for /api/events and fans it out to websocket
// clients. Runs synchronously on the recording path, so the write path must
// never block: slow clients are dropped.
func (s *Server) onEvent(e perfgate.Event) {
	s.eventsMu.Lock()
	s.eventBuffer[s.eventIndex] = e
	s.eventIndex = (s.eventIndex + 1) % len(s.eventBuffer)
	if s.eventCount < len(s.eventBuffer) {
		s.eventCount++
	}
	s.eventsMu.Unlock()

	s.broadcast(map[string]any{"type": "event", "data": e})
}

// recentEvents returns buffered events oldest-first.
func (s *Server) recentEvents() []perfgate.Event {
	s.eventsMu.Lock()
	defer s.eventsMu.Unlock()

	out := make([]perfgate.Event, 0, s.eventCount)
	start := s.eventIndex - s.eventCount
	for i := 0; i < s.eventCount; i++ {
		idx := (start + i + len(s.eventBuffer)) % len(s.eventBuffer)
		out = append(out, s.eventBuffer[idx])
	}
	return out
}

// REST handlers

func (s *Server) handleBudgets(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.Budgets())
}

func (s *Server) handleStatuses(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.GetAllStatuses())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	status, ok := s.engine.GetStatus(name)
	if !ok {
		http.Error(w, "unknown budget", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleTrend(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	trend := s.engine.GetTrend(name)
	if trend == nil {
		http.Error(w, "no samples", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, trend)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.recentEvents())
}

func (s *Server) handleDegradation(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.GetDegradationState())
}

func (s *Server) handleDegradationReset(w http.ResponseWriter, r *http.Request) {
	s.engine.ResetDegradations()
	s.writeJSON(w, http.StatusOK, s.engine.GetDegradationState())
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.GetComplianceReport())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"budgets": len(s.engine.Budgets()),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "err", err)
	}
}

// WebSocket

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.clientsMu.RLock()
	count := len(s.clients)
	s.clientsMu.RUnlock()
	if count >= maxClients {
		http.Error(w, "maximum clients reached", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade", "err", err)
		return
	}
	defer conn.Close()

	s.clientsMu.Lock()
	s.clients[conn] = struct{}{}
	s.clientsMu.Unlock()
	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, conn)
		s.clientsMu.Unlock()
	}()

	// Initial snapshot so clients render without waiting for the first event.
	snapshot := map[string]any{
		"type": "snapshot",
		"data": map[string]any{
			"statuses":    s.engine.GetAllStatuses(),
			"degradation": s.engine.GetDegradationState(),
			"events":      s.recentEvents(),
		},
	}
	if err := conn.WriteJSON(snapshot); err != nil {
		return
	}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// Reads are discarded but required to observe disconnects.
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					s.logger.Debug("websocket read", "err", err)
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(10 * time.Second)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		case <-readDone:
			return
		}
	}
}

func (s *Server) broadcast(message any) {
	s.clientsMu.RLock()
	if len(s.clients) == 0 {
		s.clientsMu.RUnlock()
		return
	}
	conns := make([]*websocket.Conn, 0, len(s.clients))
	for c := range s.clients {
		conns = append(conns, c)
	}
	s.clientsMu.RUnlock()

	data, err := json.Marshal(message)
	if err != nil {
		s.logger.Error("marshal broadcast", "err", err)
		return
	}

	var failed []*websocket.Conn
	for _, c := range conns {
		c.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
			c.Close()
			failed = append(failed, c)
		}
	}
	if len(failed) > 0 {
		s.clientsMu.Lock()
		for _, c := range failed {
			delete(s.clients, c)
		}
		s.clientsMu.Unlock()
	}
}
