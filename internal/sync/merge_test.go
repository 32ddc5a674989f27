package sync

import (
	"testing"

	"github.com/kanbo-dev/kanbo/internal/schema"
	"github.com/kanbo-dev/kanbo/internal/status"
)

func mergeTask(key, sprintName string) *schema.Task {
	return &schema.Task{
		Key:        key,
		Summary:    "task " + key,
		Column:     status.ColumnTodo,
		SprintName: sprintName,
		SyncEpoch:  100,
		Origin:     schema.OriginRemote,
	}
}

// TestMerge_SprintWins tests that a key present in both sets keeps the
// sprint-derived record.
func TestMerge_SprintWins(t *testing.T) {
	backlog := []*schema.Task{
		mergeTask("X-1", ""),
		mergeTask("X-2", ""),
	}
	sprint := []*schema.Task{
		mergeTask("X-1", "Sprint 12"),
		mergeTask("X-3", "Sprint 12"),
	}

	merged := Merge(backlog, sprint)

	if len(merged) != 3 {
		t.Fatalf("len(merged) = %d, want 3", len(merged))
	}

	byKey := make(map[string]*schema.Task)
	for _, task := range merged {
		if byKey[task.Key] != nil {
			t.Fatalf("duplicate key %s in merged output", task.Key)
		}
		byKey[task.Key] = task
	}

	if byKey["X-1"].SprintName != "Sprint 12" {
		t.Errorf("X-1 sprint = %q, want Sprint 12 (sprint record must win)", byKey["X-1"].SprintName)
	}
	if byKey["X-2"].SprintName != "" {
		t.Errorf("X-2 sprint = %q, want empty", byKey["X-2"].SprintName)
	}
}

// TestMerge_Deterministic tests stable key ordering.
func TestMerge_Deterministic(t *testing.T) {
	backlog := []*schema.Task{mergeTask("X-9", ""), mergeTask("X-2", "")}
	sprint := []*schema.Task{mergeTask("X-5", "S")}

	merged := Merge(backlog, sprint)

	want := []string{"X-2", "X-5", "X-9"}
	for i, key := range want {
		if merged[i].Key != key {
			t.Errorf("merged[%d] = %s, want %s", i, merged[i].Key, key)
		}
	}
}

// TestMerge_EmptyInputs tests the degenerate cases the degraded pipeline
// produces.
func TestMerge_EmptyInputs(t *testing.T) {
	if got := Merge(nil, nil); len(got) != 0 {
		t.Errorf("Merge(nil, nil) = %d records, want 0", len(got))
	}

	only := []*schema.Task{mergeTask("X-1", "")}
	if got := Merge(only, nil); len(got) != 1 {
		t.Errorf("Merge(backlog, nil) = %d records, want 1", len(got))
	}
	if got := Merge(nil, only); len(got) != 1 {
		t.Errorf("Merge(nil, sprint) = %d records, want 1", len(got))
	}
}
