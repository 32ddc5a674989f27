package export

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kanbo-dev/kanbo/internal/schema"
	"github.com/kanbo-dev/kanbo/internal/status"
	"github.com/kanbo-dev/kanbo/internal/store"
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

func testTask(key string, col status.Column) *schema.Task {
	return &schema.Task{
		Key:       key,
		Summary:   "Task " + key,
		RawStatus: string(col),
		Column:    col,
		SyncEpoch: 100,
		Origin:    schema.OriginRemote,
	}
}

func TestDump_WritesOneTaskPerLine(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	for _, task := range []*schema.Task{
		testTask("KAN-1", status.ColumnFunnel),
		testTask("KAN-2", status.ColumnExecution),
		testTask("KAN-3", status.ColumnDone),
	} {
		if err := db.UpsertTask(task); err != nil {
			t.Fatalf("UpsertTask() failed: %v", err)
		}
	}

	path := filepath.Join(t.TempDir(), "board.jsonl")
	result, err := Dump(ctx, db, path)
	if err != nil {
		t.Fatalf("Dump() failed: %v", err)
	}
	if result.TasksWritten != 3 {
		t.Errorf("Expected 3 tasks written, got %d", result.TasksWritten)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read dump: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("Expected 3 lines, got %d", len(lines))
	}
	for i, line := range lines {
		var task schema.Task
		if err := json.Unmarshal([]byte(line), &task); err != nil {
			t.Fatalf("Line %d is not valid JSON: %v", i+1, err)
		}
	}
}

func TestDump_EmptyMirror(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	path := filepath.Join(t.TempDir(), "board.jsonl")
	result, err := Dump(ctx, db, path)
	if err != nil {
		t.Fatalf("Dump() failed: %v", err)
	}
	if result.TasksWritten != 0 {
		t.Errorf("Expected 0 tasks written, got %d", result.TasksWritten)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("Expected empty dump file to exist: %v", err)
	}
}

func TestLoad_RoundTrip(t *testing.T) {
	ctx := context.Background()
	src := openTestDB(t)

	if err := src.UpsertTask(testTask("KAN-1", status.ColumnReady)); err != nil {
		t.Fatalf("UpsertTask() failed: %v", err)
	}
	local := testTask("L-1", status.ColumnTodo)
	local.Origin = schema.OriginLocal
	if err := src.UpsertTask(local); err != nil {
		t.Fatalf("UpsertTask() failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "board.jsonl")
	if _, err := Dump(ctx, src, path); err != nil {
		t.Fatalf("Dump() failed: %v", err)
	}

	dst := openTestDB(t)
	result, err := Load(ctx, dst, path, LoadOptions{})
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if result.TasksImported != 2 {
		t.Errorf("Expected 2 tasks imported, got %d", result.TasksImported)
	}
	if len(result.Errors) != 0 {
		t.Errorf("Unexpected errors: %v", result.Errors)
	}

	got, err := dst.GetTask("L-1")
	if err != nil {
		t.Fatalf("GetTask(L-1) failed: %v", err)
	}
	if got.Origin != schema.OriginLocal {
		t.Errorf("Expected local origin preserved, got %s", got.Origin)
	}
}

func TestLoad_SkipsInvalidTasks(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "mixed.jsonl")
	good := testTask("KAN-1", status.ColumnFunnel)
	bad := testTask("", status.ColumnFunnel) // missing key

	var sb strings.Builder
	for _, task := range []*schema.Task{good, bad} {
		line, err := json.Marshal(task)
		if err != nil {
			t.Fatalf("Marshal failed: %v", err)
		}
		sb.Write(line)
		sb.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(sb.String()), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	result, err := Load(ctx, db, path, LoadOptions{})
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if result.TasksImported != 1 {
		t.Errorf("Expected 1 task imported, got %d", result.TasksImported)
	}
	if len(result.Errors) != 1 {
		t.Errorf("Expected 1 error, got %v", result.Errors)
	}
}

func TestLoad_DryRun(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	path := filepath.Join(t.TempDir(), "board.jsonl")
	line, _ := json.Marshal(testTask("KAN-9", status.ColumnDone))
	if err := os.WriteFile(path, append(line, '\n'), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	result, err := Load(ctx, db, path, LoadOptions{DryRun: true})
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if result.TasksImported != 1 {
		t.Errorf("Expected 1 task counted, got %d", result.TasksImported)
	}

	count, err := db.CountTasks(ctx)
	if err != nil {
		t.Fatalf("CountTasks() failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Dry run wrote %d tasks", count)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	if _, err := Load(ctx, db, filepath.Join(t.TempDir(), "nope.jsonl"), LoadOptions{}); err == nil {
		t.Fatal("Expected error for missing input file")
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.jsonl")
	if err := os.WriteFile(path, []byte("{not json}\n"), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	if _, err := FromJSONL(path); err == nil {
		t.Fatal("Expected error for invalid JSON")
	}
}
