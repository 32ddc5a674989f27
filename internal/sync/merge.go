package sync

import (
	"sort"

	"github.com/kanbo-dev/kanbo/internal/schema"
)

// Merge deduplicates the backlog-derived and sprint-derived record sets.
//
// Sprint membership takes precedence: backlog records are inserted into a
// key-indexed map first, then sprint records over them, so a key present
// in both sets keeps the sprint-derived copy. The result holds exactly
// one record per key, ordered by key for deterministic output.
func Merge(backlog, sprint []*schema.Task) []*schema.Task {
	byKey := make(map[string]*schema.Task, len(backlog)+len(sprint))

	for _, task := range backlog {
		byKey[task.Key] = task
	}
	for _, task := range sprint {
		byKey[task.Key] = task
	}

	merged := make([]*schema.Task, 0, len(byKey))
	for _, task := range byKey {
		merged = append(merged, task)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Key < merged[j].Key })

	return merged
}
