package daemon

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	gosync "sync"
	"testing"
	"time"

	"github.com/kanbo-dev/kanbo/internal/sync"
)

// fakeOrchestrator counts runs.
type fakeOrchestrator struct {
	mu   gosync.Mutex
	runs int
}

func (f *fakeOrchestrator) Run(ctx context.Context) (*sync.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs++
	return &sync.Result{Epoch: int64(f.runs), Method: sync.MethodPipeline}, nil
}

func (f *fakeOrchestrator) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs
}

func quietConfig() *Config {
	cfg := DefaultConfig()
	cfg.Logger = log.New(io.Discard, "", 0)
	return cfg
}

// TestNew_RequiresFactory tests constructor validation.
func TestNew_RequiresFactory(t *testing.T) {
	if _, err := New(nil, quietConfig()); err == nil {
		t.Error("New() accepted a nil factory")
	}
}

// TestStart_InitialSyncAndInterval tests the startup sync plus ticking.
func TestStart_InitialSyncAndInterval(t *testing.T) {
	orchestrator := &fakeOrchestrator{}
	cfg := quietConfig()
	cfg.SyncInterval = 30 * time.Millisecond

	d, err := New(func() (sync.Orchestrator, error) { return orchestrator, nil }, cfg)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	var results []*sync.Result
	var mu gosync.Mutex
	d.OnResult(func(r *sync.Result) {
		mu.Lock()
		results = append(results, r)
		mu.Unlock()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	if got := orchestrator.count(); got < 2 {
		t.Errorf("runs = %d, want at least 2 (initial + ticks)", got)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(results) != orchestrator.count() {
		t.Errorf("OnResult fired %d times for %d runs", len(results), orchestrator.count())
	}
}

// TestStart_MappingReload tests that editing the watched file rebuilds
// the pipeline.
func TestStart_MappingReload(t *testing.T) {
	mappingPath := filepath.Join(t.TempDir(), "statusmap.yaml")
	if err := os.WriteFile(mappingPath, []byte("exact: {}\n"), 0644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	var builds int
	var mu gosync.Mutex
	orchestrator := &fakeOrchestrator{}
	factory := func() (sync.Orchestrator, error) {
		mu.Lock()
		builds++
		mu.Unlock()
		return orchestrator, nil
	}

	cfg := quietConfig()
	cfg.SyncInterval = time.Hour // only the watcher should trigger re-runs
	cfg.DebounceInterval = 10 * time.Millisecond
	cfg.MappingFile = mappingPath

	d, err := New(factory, cfg)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()

	// Let the daemon settle, then touch the mapping file.
	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(mappingPath, []byte("exact: {\"x\": \"DONE\"}\n"), 0644); err != nil {
		t.Fatalf("rewrite failed: %v", err)
	}

	// Wait for the debounced rebuild.
	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		b := builds
		mu.Unlock()
		if b >= 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("pipeline not rebuilt after mapping change (builds=%d)", b)
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
}
