package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/kanbo-dev/kanbo/internal/schema"
	"github.com/kanbo-dev/kanbo/internal/status"
	"github.com/kanbo-dev/kanbo/internal/store"
	kanbosync "github.com/kanbo-dev/kanbo/internal/sync"
)

func openTestDB(t *testing.T) *store.DB {
	t.Helper()

	db, err := store.Open(filepath.Join(t.TempDir(), "board.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if err := db.InitSchema(); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func startTestServer(t *testing.T, db *store.DB) *Server {
	t.Helper()

	srv := NewServer(db, &Config{
		Port:   0, // Use random available port
		Logger: log.New(os.Stderr, "[test] ", log.LstdFlags),
	})
	if err := srv.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() { _ = srv.Stop() })

	time.Sleep(100 * time.Millisecond)
	return srv
}

func TestServerStartStop(t *testing.T) {
	srv := startTestServer(t, openTestDB(t))

	if addr := srv.GetAddr(); addr == "" {
		t.Fatal("Server address is empty")
	}
}

func TestWebSocketConnection(t *testing.T) {
	srv := startTestServer(t, openTestDB(t))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws://" + srv.GetAddr() + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	if count := srv.ClientCount(); count != 1 {
		t.Errorf("Expected 1 client, got %d", count)
	}

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read hello message: %v", err)
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	if msg.Type != MessageTypeHello {
		t.Errorf("Expected hello message type %s, got %s", MessageTypeHello, msg.Type)
	}
}

func TestBroadcastSyncResult(t *testing.T) {
	db := openTestDB(t)
	seedTask(t, db, "KAN-1", status.ColumnExecution)
	srv := startTestServer(t, db)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws://" + srv.GetAddr() + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// Drain the hello message
	if _, _, err := conn.Read(ctx); err != nil {
		t.Fatalf("Failed to read hello message: %v", err)
	}

	srv.BroadcastSyncResult(&kanbosync.Result{
		Epoch:     1700000000000,
		Method:    kanbosync.MethodPipeline,
		BoardName: "KAN board",
		Merged:    1,
		Upserted:  1,
	})

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read sync message: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	if msg.Type != MessageTypeSyncComplete {
		t.Fatalf("Expected %s, got %s", MessageTypeSyncComplete, msg.Type)
	}
	var sc SyncCompleteData
	if err := json.Unmarshal(msg.Data, &sc); err != nil {
		t.Fatalf("Failed to unmarshal sync data: %v", err)
	}
	if sc.Epoch != 1700000000000 || sc.Method != kanbosync.MethodPipeline {
		t.Errorf("Unexpected sync data: %+v", sc)
	}

	// The snapshot follows the sync message
	_, data, err = conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read snapshot message: %v", err)
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	if msg.Type != MessageTypeBoardSnapshot {
		t.Fatalf("Expected %s, got %s", MessageTypeBoardSnapshot, msg.Type)
	}
	var snap BoardSnapshotData
	if err := json.Unmarshal(msg.Data, &snap); err != nil {
		t.Fatalf("Failed to unmarshal snapshot: %v", err)
	}
	if snap.Total != 1 {
		t.Errorf("Expected 1 task in snapshot, got %d", snap.Total)
	}
}

func TestBoardEndpoint(t *testing.T) {
	db := openTestDB(t)
	seedTask(t, db, "KAN-1", status.ColumnFunnel)
	seedTask(t, db, "KAN-2", status.ColumnDone)
	srv := startTestServer(t, db)

	resp, err := http.Get("http://" + srv.GetAddr() + "/api/board")
	if err != nil {
		t.Fatalf("GET /api/board failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	var snap BoardSnapshotData
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("Failed to decode snapshot: %v", err)
	}
	if snap.Total != 2 {
		t.Errorf("Expected 2 tasks, got %d", snap.Total)
	}
	if len(snap.Columns) != 2 {
		t.Fatalf("Expected 2 columns, got %d", len(snap.Columns))
	}
	// FUNNEL comes before DONE in display order
	if snap.Columns[0].Column != status.ColumnFunnel {
		t.Errorf("Expected FUNNEL first, got %s", snap.Columns[0].Column)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv := startTestServer(t, openTestDB(t))

	resp, err := http.Get("http://" + srv.GetAddr() + "/health")
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	defer resp.Body.Close()

	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode health response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("Expected status ok, got %v", body["status"])
	}
}

func seedTask(t *testing.T, db *store.DB, key string, col status.Column) {
	t.Helper()

	err := db.UpsertTask(&schema.Task{
		Key:       key,
		Summary:   "Seeded task " + key,
		RawStatus: string(col),
		Column:    col,
		SyncEpoch: 1,
		Origin:    schema.OriginRemote,
	})
	if err != nil {
		t.Fatalf("UpsertTask(%s) failed: %v", key, err)
	}
}
