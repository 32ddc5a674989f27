package status

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// KeywordRule maps a substring keyword to a column. The position of a rule
// in Mapping.Keywords is its priority: earlier rules win.
type KeywordRule struct {
	Keyword string `yaml:"keyword"`
	Column  Column `yaml:"column"`
}

// Mapping is the immutable data the normalizer resolves against: an exact
// label table and an ordered keyword list. Construct one with
// DefaultMapping() and optionally extend it from a file with LoadFile().
type Mapping struct {
	// Exact maps a lower-cased, trimmed label to its column. It contains
	// the known compound bilingual labels. Column self-names ("DONE",
	// "TO DO") are deliberately not seeded here: the normalizer resolves
	// them after user overrides, so an override for a bare column name
	// can still win.
	Exact map[string]Column `yaml:"exact"`

	// Keywords is evaluated in order after Exact and user overrides miss.
	// The order encodes the tier policy: in-progress keywords before
	// done/executed keywords, before review/testing keywords, before
	// validation/resolution keywords, before to-do/backlog keywords.
	// A label containing keywords from two tiers resolves to the earlier
	// tier. Reordering this list misroutes work items.
	Keywords []KeywordRule `yaml:"keywords"`
}

// DefaultMapping returns the built-in label tables.
func DefaultMapping() Mapping {
	exact := map[string]Column{
		// Compound bilingual labels seen on real boards.
		"漏斗 funnel":              ColumnFunnel,
		"需求分析 defining":          ColumnDefining,
		"就绪 ready":               ColumnReady,
		"待办 to do":               ColumnTodo,
		"进行中 in progress":        ColumnExecution,
		"构建完成 build done":        ColumnExecuted,
		"测试与评审 testing & review": ColumnTestingReview,
		"测试完成 test done":         ColumnTestDone,
		"验证中 validating":         ColumnValidating,
		"已解决 resolved":           ColumnResolved,
		"已完成 done":               ColumnDone,
		"已关闭 closed":             ColumnClosed,
	}

	keywords := []KeywordRule{
		// In-progress tier.
		{"进行中", ColumnExecution},
		{"开发中", ColumnExecution},
		{"处理中", ColumnExecution},
		{"in progress", ColumnExecution},
		{"in-progress", ColumnExecution},
		{"building", ColumnExecution},
		{"processing", ColumnExecution},
		{"executing", ColumnExecution},
		{"implementing", ColumnExecution},
		{"wip", ColumnExecution},

		// Done/executed tier. Compound forms precede their bare suffixes
		// ("build done" before "done") so the more specific rule wins.
		{"build done", ColumnExecuted},
		{"构建完成", ColumnExecuted},
		{"test done", ColumnTestDone},
		{"测试完成", ColumnTestDone},
		{"executed", ColumnExecuted},
		{"已执行", ColumnExecuted},
		{"已关闭", ColumnClosed},
		{"closed", ColumnClosed},
		{"已完成", ColumnDone},
		{"done", ColumnDone},
		{"完成", ColumnDone},
		{"finished", ColumnDone},
		{"complete", ColumnDone},

		// Review/testing tier.
		{"测试中", ColumnTestingReview},
		{"评审", ColumnTestingReview},
		{"测试", ColumnTestingReview},
		{"testing", ColumnTestingReview},
		{"review", ColumnTestingReview},
		{"qa", ColumnTestingReview},

		// Validation/resolution tier.
		{"验证", ColumnValidating},
		{"validat", ColumnValidating},
		{"verify", ColumnValidating},
		{"uat", ColumnValidating},
		{"已解决", ColumnResolved},
		{"resolved", ColumnResolved},
		{"accepted", ColumnResolved},

		// To-do/backlog tier.
		{"待办", ColumnTodo},
		{"to do", ColumnTodo},
		{"todo", ColumnTodo},
		{"open", ColumnTodo},
		{"unstarted", ColumnTodo},
		{"就绪", ColumnReady},
		{"ready", ColumnReady},
		{"需求分析", ColumnDefining},
		{"defining", ColumnDefining},
		{"analysis", ColumnDefining},
		{"漏斗", ColumnFunnel},
		{"funnel", ColumnFunnel},
		{"backlog", ColumnFunnel},
		{"unscheduled", ColumnFunnel},
	}

	return Mapping{Exact: exact, Keywords: keywords}
}

// fileMapping is the on-disk YAML shape for mapping extensions.
type fileMapping struct {
	Exact    map[string]string `yaml:"exact"`
	Keywords []struct {
		Keyword string `yaml:"keyword"`
		Column  string `yaml:"column"`
	} `yaml:"keywords"`
}

// LoadFile extends a mapping with entries from a YAML file.
//
// File exact entries override built-in ones (keys are lower-cased and
// trimmed). File keyword rules are prepended, so they take priority over
// the built-in tiers. Returns an error if the file names a column outside
// the fixed set.
func LoadFile(base Mapping, path string) (Mapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Mapping{}, fmt.Errorf("failed to read mapping file: %w", err)
	}

	var file fileMapping
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Mapping{}, fmt.Errorf("failed to parse mapping file: %w", err)
	}

	merged := Mapping{
		Exact:    make(map[string]Column, len(base.Exact)+len(file.Exact)),
		Keywords: make([]KeywordRule, 0, len(base.Keywords)+len(file.Keywords)),
	}
	for label, column := range base.Exact {
		merged.Exact[label] = column
	}
	for label, name := range file.Exact {
		column, ok := ParseColumn(name)
		if !ok {
			return Mapping{}, fmt.Errorf("mapping file: unknown column %q for label %q", name, label)
		}
		merged.Exact[lowerTrim(label)] = column
	}

	for _, rule := range file.Keywords {
		column, ok := ParseColumn(rule.Column)
		if !ok {
			return Mapping{}, fmt.Errorf("mapping file: unknown column %q for keyword %q", rule.Column, rule.Keyword)
		}
		merged.Keywords = append(merged.Keywords, KeywordRule{Keyword: lowerTrim(rule.Keyword), Column: column})
	}
	merged.Keywords = append(merged.Keywords, base.Keywords...)

	return merged, nil
}
