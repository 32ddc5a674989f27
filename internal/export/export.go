// Package export reads and writes the board mirror as JSONL.
//
// JSONL is the interchange format for backing up the mirror, moving it
// between machines, and feeding external tooling. One task per line, in
// the schema.Task JSON shape.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/kanbo-dev/kanbo/internal/schema"
	"github.com/kanbo-dev/kanbo/internal/store"
)

// DumpResult contains statistics about an export
type DumpResult struct {
	TasksWritten int
	Path         string
}

// LoadOptions contains configuration for an import
type LoadOptions struct {
	DryRun bool // Parse and validate without writing
	Backup bool // Snapshot the current mirror to JSONL before importing
}

// LoadResult contains statistics about an import
type LoadResult struct {
	TasksImported int
	BackupCreated string
	Errors        []string
}

// Dump writes every task in the mirror to a JSONL file, one task per line.
// The file is written atomically via a temp file.
func Dump(ctx context.Context, db *store.DB, path string) (*DumpResult, error) {
	tasks, err := db.ListTasksContext(ctx, store.ListTasksFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	tmpPath := path + ".tmp"
	// #nosec G304 - controlled path from CLI
	file, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}

	encoder := json.NewEncoder(file)
	for _, task := range tasks {
		if err := encoder.Encode(task); err != nil {
			_ = file.Close()
			_ = os.Remove(tmpPath)
			return nil, fmt.Errorf("failed to encode task %s: %w", task.Key, err)
		}
	}

	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to rename temp file: %w", err)
	}

	return &DumpResult{TasksWritten: len(tasks), Path: path}, nil
}

// FromJSONL reads a JSONL file and returns the parsed tasks
func FromJSONL(path string) ([]*schema.Task, error) {
	// #nosec G304 - controlled path from CLI
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open JSONL file: %w", err)
	}
	defer file.Close()

	var tasks []*schema.Task
	decoder := json.NewDecoder(file)
	lineNum := 0

	for {
		var task schema.Task
		if err := decoder.Decode(&task); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("invalid JSON at line %d: %w", lineNum+1, err)
		}
		lineNum++
		tasks = append(tasks, &task)
	}

	return tasks, nil
}

// Load imports tasks from a JSONL file into the mirror. Invalid tasks are
// skipped and reported through LoadResult.Errors rather than aborting the
// whole import.
func Load(ctx context.Context, db *store.DB, path string, opts LoadOptions) (*LoadResult, error) {
	result := &LoadResult{}

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("input file does not exist: %w", err)
	}

	if opts.Backup && !opts.DryRun {
		backupPath := path + ".backup." + time.Now().Format("20060102-150405")
		if _, err := Dump(ctx, db, backupPath); err != nil {
			return nil, fmt.Errorf("failed to create backup: %w", err)
		}
		result.BackupCreated = backupPath
	}

	tasks, err := FromJSONL(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse JSONL: %w", err)
	}

	for _, task := range tasks {
		if err := task.Validate(); err != nil {
			result.Errors = append(result.Errors,
				fmt.Sprintf("invalid task %s: %v", task.Key, err))
			continue
		}

		if !opts.DryRun {
			if err := db.UpsertTaskContext(ctx, task); err != nil {
				result.Errors = append(result.Errors,
					fmt.Sprintf("failed to import task %s: %v", task.Key, err))
				continue
			}
		}
		result.TasksImported++
	}

	return result, nil
}
