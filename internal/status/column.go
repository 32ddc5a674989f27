// Package status maps free-text remote status labels onto the fixed set
// of board columns.
//
// Remote status labels are operator-authored: mixed case, padded with
// whitespace, often bilingual. The normalizer is the sole arbiter of
// where such a label lands on the board, resolving through a fixed
// cascade (exact table, user override, ordered keyword tiers, default).
package status

// Column is one of the fixed board columns. Every remote status label
// maps to exactly one Column.
type Column string

const (
	ColumnFunnel        Column = "FUNNEL"
	ColumnDefining      Column = "DEFINING"
	ColumnReady         Column = "READY"
	ColumnTodo          Column = "TO DO"
	ColumnExecution     Column = "EXECUTION"
	ColumnExecuted      Column = "EXECUTED"
	ColumnTestingReview Column = "TESTING & REVIEW"
	ColumnTestDone      Column = "TEST DONE"
	ColumnValidating    Column = "VALIDATING"
	ColumnResolved      Column = "RESOLVED"
	ColumnDone          Column = "DONE"
	ColumnClosed        Column = "CLOSED"
)

// Columns returns all columns in board display order.
func Columns() []Column {
	return []Column{
		ColumnFunnel,
		ColumnDefining,
		ColumnReady,
		ColumnTodo,
		ColumnExecution,
		ColumnExecuted,
		ColumnTestingReview,
		ColumnTestDone,
		ColumnValidating,
		ColumnResolved,
		ColumnDone,
		ColumnClosed,
	}
}

// Valid reports whether c is one of the fixed columns.
func (c Column) Valid() bool {
	switch c {
	case ColumnFunnel, ColumnDefining, ColumnReady, ColumnTodo,
		ColumnExecution, ColumnExecuted, ColumnTestingReview, ColumnTestDone,
		ColumnValidating, ColumnResolved, ColumnDone, ColumnClosed:
		return true
	}
	return false
}

// ParseColumn resolves a column by its display name. The second return
// is false for anything outside the fixed set.
func ParseColumn(name string) (Column, bool) {
	c := Column(name)
	if c.Valid() {
		return c, true
	}
	return "", false
}
