// Package server provides a real-time WebSocket server for the board mirror.
//
// The server broadcasts sync results and board snapshots to connected
// WebSocket clients, and exposes the current mirror as JSON for dashboards
// that prefer polling over push.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/kanbo-dev/kanbo/internal/schema"
	"github.com/kanbo-dev/kanbo/internal/status"
	"github.com/kanbo-dev/kanbo/internal/store"
	kanbosync "github.com/kanbo-dev/kanbo/internal/sync"
)

// MessageType defines the type of board message
type MessageType string

const (
	// MessageTypeSyncComplete indicates a sync run finished
	MessageTypeSyncComplete MessageType = "sync_complete"

	// MessageTypeBoardSnapshot carries the full board grouped by column
	MessageTypeBoardSnapshot MessageType = "board_snapshot"

	// MessageTypeHello is sent to a client right after it connects
	MessageTypeHello MessageType = "hello"
)

// Message represents a board broadcast message
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// SyncCompleteData summarizes a finished sync run for clients
type SyncCompleteData struct {
	Epoch     int64         `json:"epoch"`
	Method    string        `json:"method"`
	BoardName string        `json:"board_name,omitempty"`
	Sprint    string        `json:"sprint,omitempty"`
	Merged    int           `json:"merged"`
	Upserted  int           `json:"upserted"`
	Pruned    int64         `json:"pruned"`
	Degraded  []string      `json:"degraded,omitempty"`
	Unmapped  []string      `json:"unmapped,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// BoardSnapshotData contains the mirror grouped by column in display order
type BoardSnapshotData struct {
	Columns []ColumnSnapshot `json:"columns"`
	Total   int              `json:"total"`
}

// ColumnSnapshot holds one column's tasks
type ColumnSnapshot struct {
	Column status.Column  `json:"column"`
	Tasks  []*schema.Task `json:"tasks"`
}

// Server manages WebSocket connections and broadcasts board messages
type Server struct {
	addr     string
	listener net.Listener
	server   *http.Server
	db       *store.DB

	// WebSocket client management
	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex

	// Message broadcasting
	broadcast chan Message

	// Lifecycle management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *log.Logger
}

// Config holds server configuration
type Config struct {
	// Port to listen on (default: 8080)
	Port int

	// Logger for server activity (default: stderr logger)
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Port:   8080,
		Logger: log.Default(),
	}
}

// NewServer creates a new board WebSocket server backed by the given mirror
func NewServer(db *store.DB, config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		addr:      fmt.Sprintf(":%d", config.Port),
		db:        db,
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan Message, 100),
		ctx:       ctx,
		cancel:    cancel,
		logger:    config.Logger,
	}
}

// Start begins the HTTP server and WebSocket handler
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/board", s.handleBoard)
	mux.HandleFunc("/", s.handleRoot)

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go s.broadcastLoop()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Board server listening on %s", s.addr)
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("Server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the server
func (s *Server) Stop() error {
	s.logger.Println("Stopping board server")

	s.cancel()

	s.clientsMu.Lock()
	for conn := range s.clients {
		_ = conn.Close(websocket.StatusGoingAway, "Server shutting down")
		delete(s.clients, conn)
	}
	s.clientsMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	s.wg.Wait()

	s.logger.Println("Board server stopped")
	return nil
}

// Broadcast sends a message to all connected clients
func (s *Server) Broadcast(msg Message) {
	select {
	case s.broadcast <- msg:
	case <-s.ctx.Done():
		return
	default:
		s.logger.Println("Warning: broadcast channel full, dropping message")
	}
}

// BroadcastSyncResult publishes a sync_complete message followed by a fresh
// board snapshot. Intended as the daemon's OnResult callback.
func (s *Server) BroadcastSyncResult(res *kanbosync.Result) {
	if res == nil {
		return
	}

	data, err := json.Marshal(SyncCompleteData{
		Epoch:     res.Epoch,
		Method:    res.Method,
		BoardName: res.BoardName,
		Sprint:    res.SprintName,
		Merged:    res.Merged,
		Upserted:  res.Upserted,
		Pruned:    res.Pruned,
		Degraded:  res.Degraded,
		Unmapped:  res.Unmapped,
		Duration:  res.Duration,
	})
	if err != nil {
		s.logger.Printf("Failed to marshal sync result: %v", err)
		return
	}
	s.Broadcast(Message{Type: MessageTypeSyncComplete, Data: data})

	snapshot, err := s.boardSnapshot(s.ctx)
	if err != nil {
		s.logger.Printf("Failed to build board snapshot: %v", err)
		return
	}
	snapData, err := json.Marshal(snapshot)
	if err != nil {
		s.logger.Printf("Failed to marshal board snapshot: %v", err)
		return
	}
	s.Broadcast(Message{Type: MessageTypeBoardSnapshot, Data: snapData})
}

// boardSnapshot reads the mirror and groups tasks by column in display order.
func (s *Server) boardSnapshot(ctx context.Context) (*BoardSnapshotData, error) {
	tasks, err := s.db.ListTasksContext(ctx, store.ListTasksFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	byColumn := make(map[status.Column][]*schema.Task)
	for _, t := range tasks {
		byColumn[t.Column] = append(byColumn[t.Column], t)
	}

	snapshot := &BoardSnapshotData{Total: len(tasks)}
	for _, col := range status.Columns() {
		if len(byColumn[col]) == 0 {
			continue
		}
		snapshot.Columns = append(snapshot.Columns, ColumnSnapshot{
			Column: col,
			Tasks:  byColumn[col],
		})
	}
	return snapshot, nil
}

// broadcastLoop handles message broadcasting to all clients
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
				s.logger.Printf("Failed to marshal message: %v", err)
				continue
			}

			s.clientsMu.RLock()
			clients := make([]*websocket.Conn, 0, len(s.clients))
			for conn := range s.clients {
				clients = append(clients, conn)
			}
			s.clientsMu.RUnlock()

			// Send outside the read lock to avoid blocking broadcasts
			for _, conn := range clients {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				err := conn.Write(ctx, websocket.MessageText, data)
				cancel()

				if err != nil {
					s.logger.Printf("Failed to send to client: %v", err)
					s.removeClient(conn)
				}
			}
		}
	}
}

// handleWebSocket upgrades HTTP connections to WebSocket
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"}, // Allow all origins for development
	})
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	s.clientsMu.Lock()
	s.clients[conn] = true
	clientCount := len(s.clients)
	s.clientsMu.Unlock()

	s.logger.Printf("Client connected (total: %d)", clientCount)

	hello := Message{
		Type:      MessageTypeHello,
		Timestamp: time.Now(),
	}
	helloData, _ := json.Marshal(hello)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	_ = conn.Write(ctx, websocket.MessageText, helloData)
	cancel()

	go s.readLoop(conn)
}

// readLoop keeps the WebSocket connection alive and handles client disconnects
func (s *Server) readLoop(conn *websocket.Conn) {
	defer s.removeClient(conn)

	for {
		_, _, err := conn.Read(s.ctx)
		if err != nil {
			return
		}
		// Client messages are ignored; the socket is push-only
	}
}

// removeClient safely removes a client connection
func (s *Server) removeClient(conn *websocket.Conn) {
	s.clientsMu.Lock()
	if _, exists := s.clients[conn]; exists {
		delete(s.clients, conn)
		clientCount := len(s.clients)
		s.clientsMu.Unlock()

		_ = conn.Close(websocket.StatusNormalClosure, "")
		s.logger.Printf("Client disconnected (total: %d)", clientCount)
	} else {
		s.clientsMu.Unlock()
	}
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.clientsMu.RLock()
	clientCount := len(s.clients)
	s.clientsMu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"clients": clientCount,
	})
}

// handleBoard returns the current board snapshot as JSON
func (s *Server) handleBoard(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.boardSnapshot(r.Context())
	if err != nil {
		s.logger.Printf("Failed to build board snapshot: %v", err)
		http.Error(w, "failed to read board", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(snapshot)
}

// handleRoot returns basic server information
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head>
    <title>Kanbo Board</title>
</head>
<body>
    <h1>Kanbo Board Server</h1>
    <p>WebSocket endpoint: <code>ws://%s/ws</code></p>
    <p>Board snapshot: <a href="/api/board">/api/board</a></p>
    <p>Health check: <a href="/health">/health</a></p>
    <p>Connect a WebSocket client to receive sync results and board snapshots.</p>
</body>
</html>`, r.Host)
}

// GetAddr returns the server's listening address
func (s *Server) GetAddr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the current number of connected clients
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}
