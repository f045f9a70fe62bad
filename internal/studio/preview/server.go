// Package preview serves the active project's files to a live preview.
//
// The server exposes the current path→content map over HTTP and pushes a
// files_changed message to every WebSocket client whenever the editing
// session produces a new project value.
package preview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/cipherstudio/cipherstudio/internal/logging"
	"github.com/cipherstudio/cipherstudio/internal/metrics"
)

// MessageType defines the type of preview message.
type MessageType string

const (
	// MessageTypeFilesChanged carries the complete file map after an edit.
	MessageTypeFilesChanged MessageType = "files_changed"

	// MessageTypeSnapshot is sent once to each client when it connects.
	MessageTypeSnapshot MessageType = "snapshot"
)

// Message is one WebSocket frame sent to clients.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Config holds server configuration.
type Config struct {
	// Host to bind (default: 127.0.0.1)
	Host string

	// Port to listen on (default: 5173). Zero picks a free port.
	Port int

	Logger *zap.Logger
}

// DefaultConfig returns the defaults used by the preview command.
func DefaultConfig() *Config {
	return &Config{
		Host: "127.0.0.1",
		Port: 5173,
	}
}

// Server manages WebSocket clients and the latest file map.
type Server struct {
	addr     string
	listener net.Listener
	server   *http.Server

	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex

	current   FilesData
	currentMu sync.RWMutex

	broadcast chan Message

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *zap.Logger
}

// NewServer creates a preview server. It does not listen until Start.
func NewServer(config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		addr:      net.JoinHostPort(config.Host, fmt.Sprint(config.Port)),
		clients:   make(map[*websocket.Conn]bool),
		current:   FilesData{Files: map[string]string{}},
		broadcast: make(chan Message, 100),
		ctx:       ctx,
		cancel:    cancel,
		logger:    logging.OrNop(config.Logger).Named("preview"),
	}
}

// Routes returns the HTTP handler serving every preview endpoint.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /files", s.handleFiles)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /{$}", s.handleRoot)
	return mux
}

// Start listens and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go s.broadcastLoop()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info("preview server listening", zap.String("addr", ln.Addr().String()))
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("preview server failed", zap.Error(err))
		}
	}()

	return nil
}

// Stop closes every client and shuts the server down.
func (s *Server) Stop() error {
	s.cancel()

	s.clientsMu.Lock()
	for conn := range s.clients {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		delete(s.clients, conn)
		metrics.PreviewClientConnected(-1)
	}
	s.clientsMu.Unlock()

	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
	}

	s.wg.Wait()
	s.logger.Debug("preview server stopped")
	return nil
}

// Publish installs data as the current file map and broadcasts it.
func (s *Server) Publish(data FilesData) {
	s.currentMu.Lock()
	s.current = data
	s.currentMu.Unlock()

	raw, err := json.Marshal(data)
	if err != nil {
		s.logger.Error("failed to marshal files", zap.Error(err))
		return
	}
	s.Broadcast(Message{Type: MessageTypeFilesChanged, Timestamp: time.Now(), Data: raw})
}

// Current returns the latest published file map.
func (s *Server) Current() FilesData {
	s.currentMu.RLock()
	defer s.currentMu.RUnlock()
	return s.current
}

// Broadcast queues msg for every connected client. It never blocks; when
// the queue is full the message is dropped.
func (s *Server) Broadcast(msg Message) {
	select {
	case s.broadcast <- msg:
	case <-s.ctx.Done():
	default:
		s.logger.Warn("broadcast queue full, dropping message", zap.String("type", string(msg.Type)))
	}
}

func (s *Server) broadcastLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return

		case msg := <-s.broadcast:
			if msg.Timestamp.IsZero() {
				msg.Timestamp = time.Now()
			}
			data, err := json.Marshal(msg)
			if err != nil {
				s.logger.Error("failed to marshal message", zap.Error(err))
				continue
			}

			s.clientsMu.RLock()
			clients := make([]*websocket.Conn, 0, len(s.clients))
			for conn := range s.clients {
				clients = append(clients, conn)
			}
			s.clientsMu.RUnlock()

			for _, conn := range clients {
				if err := s.write(conn, data); err != nil {
					s.logger.Debug("failed to send to client", zap.Error(err))
					s.removeClient(conn)
				}
			}
			metrics.RecordPreviewBroadcast(string(msg.Type))
		}
	}
}

func (s *Server) write(conn *websocket.Conn, data []byte) error {
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"localhost:*", "127.0.0.1:*"},
	})
	if err != nil {
		s.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	// The snapshot goes out before the client joins the broadcast set so
	// it is always the first frame.
	current := s.Current()
	raw, err := json.Marshal(current)
	if err == nil {
		snapshot, _ := json.Marshal(Message{Type: MessageTypeSnapshot, Timestamp: time.Now(), Data: raw})
		err = s.write(conn, snapshot)
	}
	if err != nil {
		_ = conn.Close(websocket.StatusInternalError, "failed to send snapshot")
		return
	}

	s.clientsMu.Lock()
	s.clients[conn] = true
	count := len(s.clients)
	s.clientsMu.Unlock()
	metrics.PreviewClientConnected(1)
	s.logger.Debug("client connected", zap.Int("clients", count))

	s.readLoop(conn)
}

// readLoop blocks until the client goes away. Client frames are ignored.
func (s *Server) readLoop(conn *websocket.Conn) {
	defer s.removeClient(conn)

	for {
		if _, _, err := conn.Read(s.ctx); err != nil {
			return
		}
	}
}

func (s *Server) removeClient(conn *websocket.Conn) {
	s.clientsMu.Lock()
	if _, exists := s.clients[conn]; !exists {
		s.clientsMu.Unlock()
		return
	}
	delete(s.clients, conn)
	count := len(s.clients)
	s.clientsMu.Unlock()

	metrics.PreviewClientConnected(-1)
	_ = conn.Close(websocket.StatusNormalClosure, "")
	s.logger.Debug("client disconnected", zap.Int("clients", count))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"status":     "ok",
		"clients":    s.ClientCount(),
		"project_id": s.Current().ProjectID,
	})
}

func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Current())
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	current := s.Current()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head>
    <title>cstudio preview</title>
</head>
<body>
    <h1>%s</h1>
    <p>Entry: <code>%s</code> (%d files)</p>
    <p>Files: <a href="/files">/files</a> &middot; WebSocket: <code>ws://%s/ws</code> &middot; <a href="/metrics">/metrics</a></p>
</body>
</html>`, html.EscapeString(current.Name), html.EscapeString(current.Entry), len(current.Files), html.EscapeString(r.Host))
}

// Addr returns the listening address, or the configured one before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the number of connected WebSocket clients.
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
