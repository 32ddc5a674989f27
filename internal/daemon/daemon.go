// Package daemon runs the sync pipeline on an interval and hot-reloads
// the status-mapping file.
//
// The daemon:
//  1. Performs an initial sync on startup
//  2. Re-syncs on a fixed interval
//  3. Watches the status-mapping YAML for changes and rebuilds the
//     pipeline when it is edited (debounced)
//  4. Handles graceful shutdown
package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	gosync "sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/kanbo-dev/kanbo/internal/sync"
)

// Config holds configuration for the daemon.
type Config struct {
	// SyncInterval is how often to run the pipeline.
	SyncInterval time.Duration

	// DebounceInterval is how long to wait after a mapping-file change
	// before rebuilding. Editors fire several events per save; this
	// batches them.
	DebounceInterval time.Duration

	// MappingFile is the status-mapping YAML to watch. Empty disables
	// watching.
	MappingFile string

	// Logger for daemon activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		SyncInterval:     5 * time.Minute,
		DebounceInterval: 500 * time.Millisecond,
		Logger:           log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Factory builds a fresh Orchestrator. The daemon calls it at startup and
// again whenever the mapping file changes, so edited mappings take effect
// without a restart.
type Factory func() (sync.Orchestrator, error)

// Daemon drives periodic syncs.
type Daemon struct {
	factory Factory
	config  *Config

	orchestrator sync.Orchestrator
	mu           gosync.Mutex

	onResult func(*sync.Result)

	watcher *fsnotify.Watcher
	wg      gosync.WaitGroup
}

// New creates a Daemon.
//
// Use Start() to begin syncing; it blocks until the context is cancelled.
func New(factory Factory, config *Config) (*Daemon, error) {
	if factory == nil {
		return nil, fmt.Errorf("factory cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = DefaultConfig().Logger
	}
	if config.SyncInterval <= 0 {
		config.SyncInterval = DefaultConfig().SyncInterval
	}
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = DefaultConfig().DebounceInterval
	}

	return &Daemon{
		factory: factory,
		config:  config,
	}, nil
}

// OnResult registers a callback invoked after every completed run, e.g.
// to broadcast the result to dashboard clients. Must be called before
// Start.
func (d *Daemon) OnResult(fn func(*sync.Result)) {
	d.onResult = fn
}

// Start begins the daemon's operation.
//
// This blocks until ctx is cancelled.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting daemon")

	if err := d.rebuild(); err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}

	if d.config.MappingFile != "" {
		if err := d.startWatcher(ctx); err != nil {
			return err
		}
	}

	// Initial sync before settling into the interval.
	d.runOnce(ctx)

	ticker := time.NewTicker(d.config.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.config.Logger.Println("Daemon stopping")
			if d.watcher != nil {
				_ = d.watcher.Close()
			}
			d.wg.Wait()
			return nil
		case <-ticker.C:
			d.runOnce(ctx)
		}
	}
}

// rebuild swaps in a fresh orchestrator from the factory.
func (d *Daemon) rebuild() error {
	orchestrator, err := d.factory()
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.orchestrator = orchestrator
	d.mu.Unlock()
	return nil
}

// runOnce executes one sync pass. Failures are logged, not fatal: the
// next tick tries again.
func (d *Daemon) runOnce(ctx context.Context) {
	d.mu.Lock()
	orchestrator := d.orchestrator
	d.mu.Unlock()

	result, err := orchestrator.Run(ctx)
	if err != nil {
		d.config.Logger.Printf("WARNING: sync failed: %v", err)
		return
	}

	if result.PartialFailure() {
		d.config.Logger.Printf("Sync degraded (%v): merged=%d pruned=%d",
			result.Degraded, result.Merged, result.Pruned)
	} else {
		d.config.Logger.Printf("Sync ok: merged=%d pruned=%d method=%s",
			result.Merged, result.Pruned, result.Method)
	}

	if d.onResult != nil {
		d.onResult(result)
	}
}

// startWatcher watches the mapping file's directory and rebuilds the
// pipeline (debounced) when the file is written.
func (d *Daemon) startWatcher(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	d.watcher = watcher

	// Watch the directory, not the file: editors replace files on save
	// and a file watch dies with the old inode.
	dir := filepath.Dir(d.config.MappingFile)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	target := filepath.Clean(d.config.MappingFile)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		var debounce *time.Timer
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}

				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(d.config.DebounceInterval, func() {
					d.config.Logger.Printf("Mapping file changed, rebuilding pipeline")
					if err := d.rebuild(); err != nil {
						d.config.Logger.Printf("WARNING: rebuild failed, keeping previous mapping: %v", err)
						return
					}
					d.runOnce(ctx)
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				d.config.Logger.Printf("WARNING: watcher error: %v", err)
			}
		}
	}()

	d.config.Logger.Printf("Watching %s for mapping changes", d.config.MappingFile)
	return nil
}
