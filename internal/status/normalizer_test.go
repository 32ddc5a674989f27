package status

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func defaultNormalizer() *Normalizer {
	return NewNormalizer(DefaultMapping(), nil)
}

// TestNormalize_ExactMatch tests the exact label table, including casing
// and whitespace insensitivity.
func TestNormalize_ExactMatch(t *testing.T) {
	n := defaultNormalizer()

	cases := []struct {
		label string
		want  Column
	}{
		{"构建完成 Build Done", ColumnExecuted},
		{"  测试与评审 TESTING & REVIEW  ", ColumnTestingReview},
		{"测试完成 test done", ColumnTestDone},
		{"已解决 Resolved", ColumnResolved},
		{"TO DO", ColumnTodo},
		{"  done  ", ColumnDone},
	}

	for _, tc := range cases {
		got, matched := n.Normalize(tc.label)
		if !matched {
			t.Errorf("Normalize(%q) did not match", tc.label)
		}
		if got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.label, got, tc.want)
		}
	}
}

// TestNormalize_ExactTableCoversAllInputCasings tests that for every label
// in the exact table, output is stable across casing and padding variants.
func TestNormalize_ExactTableCoversAllInputCasings(t *testing.T) {
	mapping := DefaultMapping()
	n := NewNormalizer(mapping, nil)

	for label, want := range mapping.Exact {
		variants := []string{label, "  " + label + "\t", upperVariant(label)}
		for _, v := range variants {
			got, matched := n.Normalize(v)
			if !matched || got != want {
				t.Errorf("Normalize(%q) = %q (matched=%v), want %q", v, got, matched, want)
			}
		}
	}
}

func upperVariant(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r >= 'a' && r <= 'z' {
			r = r - 'a' + 'A'
		}
		out = append(out, r)
	}
	return string(out)
}

// TestNormalize_Override tests that user overrides beat keyword rules.
func TestNormalize_Override(t *testing.T) {
	overrides := map[string]Column{
		"Blocked On Review": ColumnExecution, // key gets lower-cased at construction
	}
	n := NewNormalizer(DefaultMapping(), overrides)

	got, matched := n.Normalize("blocked on review")
	if !matched || got != ColumnExecution {
		t.Errorf("Normalize() = %q (matched=%v), want EXECUTION via override", got, matched)
	}

	// Without the override the same label would keyword-match "review".
	plain := defaultNormalizer()
	got, _ = plain.Normalize("blocked on review")
	if got != ColumnTestingReview {
		t.Errorf("Normalize() without override = %q, want TESTING & REVIEW", got)
	}
}

// TestNormalize_ColumnSelfNames tests that every column's own name
// resolves to that column, in any casing.
func TestNormalize_ColumnSelfNames(t *testing.T) {
	n := defaultNormalizer()

	for _, col := range Columns() {
		for _, v := range []string{string(col), strings.ToLower(string(col)), "  " + string(col) + "\t"} {
			got, matched := n.Normalize(v)
			if !matched || got != col {
				t.Errorf("Normalize(%q) = %q (matched=%v), want %q", v, got, matched, col)
			}
		}
	}
}

// TestNormalize_OverrideBeatsColumnSelfName tests that an override for a
// bare column name wins over the built-in self-name resolution.
func TestNormalize_OverrideBeatsColumnSelfName(t *testing.T) {
	n := NewNormalizer(DefaultMapping(), map[string]Column{
		"done":   ColumnExecuted, // this tracker's "Done" means build done
		"closed": ColumnResolved,
	})

	if got, _ := n.Normalize("Done"); got != ColumnExecuted {
		t.Errorf("Normalize(Done) = %q, want override EXECUTED", got)
	}
	if got, _ := n.Normalize("CLOSED"); got != ColumnResolved {
		t.Errorf("Normalize(CLOSED) = %q, want override RESOLVED", got)
	}

	// Without overrides the self-names still resolve to themselves.
	plain := defaultNormalizer()
	if got, _ := plain.Normalize("Done"); got != ColumnDone {
		t.Errorf("Normalize(Done) without override = %q, want DONE", got)
	}
}

// TestNormalize_KeywordMatch tests keyword resolution for bilingual labels.
func TestNormalize_KeywordMatch(t *testing.T) {
	n := defaultNormalizer()

	cases := []struct {
		label string
		want  Column
	}{
		{"进行中", ColumnExecution},
		{"Build Done", ColumnExecuted},
		{"代码评审阶段", ColumnTestingReview},
		{"等待验证", ColumnValidating},
		{"Sprint Backlog", ColumnFunnel},
		{"unstarted", ColumnTodo},
		{"Ready for Dev", ColumnReady},
	}

	for _, tc := range cases {
		got, matched := n.Normalize(tc.label)
		if !matched {
			t.Errorf("Normalize(%q) did not match", tc.label)
		}
		if got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.label, got, tc.want)
		}
	}
}

// TestNormalize_TierPriority tests that a label containing keywords from
// two tiers resolves to the earlier tier.
func TestNormalize_TierPriority(t *testing.T) {
	n := defaultNormalizer()

	cases := []struct {
		label string
		want  Column
	}{
		// in-progress beats done
		{"done building", ColumnExecution},
		{"进行中 (部分完成)", ColumnExecution},
		// done/executed beats review/testing
		{"review done", ColumnDone},
		// review/testing beats to-do
		{"todo: testing", ColumnTestingReview},
		// validation beats to-do
		{"resolved, todo cleanup", ColumnResolved},
	}

	for _, tc := range cases {
		got, _ := n.Normalize(tc.label)
		if got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.label, got, tc.want)
		}
	}
}

// TestNormalize_Fallback tests the default column and the unmatched signal.
func TestNormalize_Fallback(t *testing.T) {
	n := defaultNormalizer()

	got, matched := n.Normalize("état inconnu")
	if got != DefaultColumn {
		t.Errorf("Normalize() = %q, want %q", got, DefaultColumn)
	}
	if matched {
		t.Error("unmatched label reported matched=true")
	}

	got, matched = n.Normalize("   ")
	if got != DefaultColumn || matched {
		t.Errorf("Normalize(blank) = %q (matched=%v), want %q, false", got, matched, DefaultColumn)
	}
}

// TestNormalize_Pure tests that repeated calls are stable.
func TestNormalize_Pure(t *testing.T) {
	n := defaultNormalizer()
	labels := []string{"进行中", "Build Done", "mystery label", "测试与评审 Testing & Review"}

	for _, label := range labels {
		first, firstMatched := n.Normalize(label)
		for i := 0; i < 10; i++ {
			got, matched := n.Normalize(label)
			if got != first || matched != firstMatched {
				t.Fatalf("Normalize(%q) unstable: %q/%v then %q/%v", label, first, firstMatched, got, matched)
			}
		}
	}
}

// TestLoadFile_MergesAndPrioritizes tests YAML mapping extension.
func TestLoadFile_MergesAndPrioritizes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "statusmap.yaml")
	content := `
exact:
  "等待上线": "VALIDATING"
keywords:
  - keyword: "staging"
    column: "VALIDATING"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	mapping, err := LoadFile(DefaultMapping(), path)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	n := NewNormalizer(mapping, nil)

	if got, _ := n.Normalize("等待上线"); got != ColumnValidating {
		t.Errorf("file exact entry: Normalize() = %q, want VALIDATING", got)
	}

	// File keywords are prepended, so "staging review" hits the file rule
	// before the built-in review tier.
	if got, _ := n.Normalize("staging review"); got != ColumnValidating {
		t.Errorf("file keyword priority: Normalize() = %q, want VALIDATING", got)
	}

	// Built-in rules still apply.
	if got, _ := n.Normalize("进行中"); got != ColumnExecution {
		t.Errorf("built-in keyword lost after merge: got %q", got)
	}
}

// TestLoadFile_RejectsUnknownColumn tests validation of file entries.
func TestLoadFile_RejectsUnknownColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "statusmap.yaml")
	if err := os.WriteFile(path, []byte("exact:\n  \"x\": \"NOT A COLUMN\"\n"), 0644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	if _, err := LoadFile(DefaultMapping(), path); err == nil {
		t.Error("LoadFile() accepted an unknown column")
	}
}
