// Package monitor serves a live view of the controller over HTTP and a
// websocket, mainly to watch raw readings during calibration.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"throttle-quadrant/internal/axis"
	"throttle-quadrant/internal/logger"
	"throttle-quadrant/internal/types"
)

const clientQueueSize = 16

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // served on the device's local network only
	},
}

// Event is one websocket message. Type is "state", "stage",
// "calibration" or "snapshot".
type Event struct {
	Type     string          `json:"type"`
	Stage    types.Stage     `json:"stage,omitempty"`
	Bounds   []axis.Bounds   `json:"bounds,omitempty"`
	Snapshot *types.Snapshot `json:"snapshot,omitempty"`
}

// State is the body of GET /api/state.
type State struct {
	Stage    types.Stage     `json:"stage"`
	Bounds   []axis.Bounds   `json:"bounds"`
	Snapshot *types.Snapshot `json:"snapshot,omitempty"`
}

// WSMessage is a command sent by a websocket client.
type WSMessage struct {
	Action string `json:"action"` // calibrate, reset-calibration
}

// CommandFunc forwards a remote command to the controller.
type CommandFunc func(cmd string) error

type Server struct {
	addr     string
	logger   *logger.Logger
	commands CommandFunc

	mu      sync.RWMutex
	state   State
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan Event
}

func NewServer(addr string, l *logger.Logger, commands CommandFunc) *Server {
	return &Server{
		addr:     addr,
		logger:   l,
		commands: commands,
		state:    State{Stage: types.StageNormal},
		clients:  make(map[*client]struct{}),
	}
}

// Handler returns the HTTP routes of the monitor.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/state", s.handleState)
	mux.HandleFunc("/api/command", s.handleCommand)
	mux.HandleFunc("/ws", s.handleWS)
	return mux
}

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Infof("Monitor listening on %s", s.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warnf("Monitor shutdown: %v", err)
		}
		s.closeClients()
	}()

	// Surface bind errors to the caller
	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.mu.RLock()
	state := s.state
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(state); err != nil {
		s.logger.Warnf("Failed to encode state: %v", err)
	}
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.commands == nil {
		http.Error(w, "commands disabled", http.StatusNotImplemented)
		return
	}
	var msg WSMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if err := s.commands(msg.Action); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnf("Websocket upgrade error: %v", err)
		return
	}

	c := &client{conn: conn, send: make(chan Event, clientQueueSize)}

	s.mu.Lock()
	state := s.state
	c.send <- Event{Type: "state", Stage: state.Stage, Bounds: state.Bounds, Snapshot: state.Snapshot}
	s.clients[c] = struct{}{}
	s.mu.Unlock()

	s.logger.Debugf("Monitor client connected: %s", r.RemoteAddr)

	go s.writeLoop(c)
	s.readLoop(c)
}

func (s *Server) readLoop(c *client) {
	defer s.removeClient(c)
	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			s.logger.Debugf("Websocket read error: %v", err)
			return
		}
		if s.commands == nil {
			continue
		}
		if err := s.commands(msg.Action); err != nil {
			s.logger.Warnf("Monitor command %q rejected: %v", msg.Action, err)
		}
	}
}

func (s *Server) writeLoop(c *client) {
	defer c.conn.Close()
	for ev := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(time.Second))
		if err := c.conn.WriteJSON(ev); err != nil {
			s.logger.Debugf("Websocket write error: %v", err)
			return
		}
	}
}

func (s *Server) removeClient(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		close(c.send)
	}
}

func (s *Server) closeClients() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		delete(s.clients, c)
		close(c.send)
	}
}

// broadcast must be called with s.mu held. Slow clients lose events.
func (s *Server) broadcast(ev Event) {
	for c := range s.clients {
		select {
		case c.send <- ev:
		default:
		}
	}
}

func (s *Server) PublishStage(stage types.Stage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Stage = stage
	s.broadcast(Event{Type: "stage", Stage: stage})
	return nil
}

func (s *Server) PublishCalibration(bounds []axis.Bounds) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Bounds = append([]axis.Bounds(nil), bounds...)
	s.broadcast(Event{Type: "calibration", Bounds: s.state.Bounds})
	return nil
}

func (s *Server) PublishSnapshot(snapshot types.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Snapshot = &snapshot
	s.state.Stage = snapshot.Stage
	s.broadcast(Event{Type: "snapshot", Snapshot: &snapshot})
	return nil
}
