// Package ui provides terminal rendering helpers for the kanbo CLI.
package ui

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/kanbo-dev/kanbo/internal/schema"
	"github.com/kanbo-dev/kanbo/internal/status"
)

var (
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	headerStyle = lipgloss.NewStyle().Bold(true).Underline(true)

	columnColors = map[status.Column]lipgloss.Color{
		status.ColumnFunnel:        lipgloss.Color("8"),
		status.ColumnDefining:      lipgloss.Color("13"),
		status.ColumnReady:         lipgloss.Color("14"),
		status.ColumnTodo:          lipgloss.Color("12"),
		status.ColumnExecution:     lipgloss.Color("11"),
		status.ColumnExecuted:      lipgloss.Color("10"),
		status.ColumnTestingReview: lipgloss.Color("13"),
		status.ColumnTestDone:      lipgloss.Color("10"),
		status.ColumnValidating:    lipgloss.Color("14"),
		status.ColumnResolved:      lipgloss.Color("10"),
		status.ColumnDone:          lipgloss.Color("10"),
		status.ColumnClosed:        lipgloss.Color("8"),
	}
)

// IsInteractive reports whether stdout is a terminal with color support.
func IsInteractive() bool {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return false
	}
	return termenv.DefaultOutput().Profile != termenv.Ascii
}

// RenderAccent renders s in the accent style.
func RenderAccent(s string) string {
	if !IsInteractive() {
		return s
	}
	return accentStyle.Render(s)
}

// RenderPass renders s in the success style.
func RenderPass(s string) string {
	if !IsInteractive() {
		return s
	}
	return passStyle.Render(s)
}

// RenderWarn renders s in the warning style.
func RenderWarn(s string) string {
	if !IsInteractive() {
		return s
	}
	return warnStyle.Render(s)
}

// RenderFail renders s in the failure style.
func RenderFail(s string) string {
	if !IsInteractive() {
		return s
	}
	return failStyle.Render(s)
}

// RenderColumnHeader renders a board column name with its count.
func RenderColumnHeader(column status.Column, count int) string {
	label := fmt.Sprintf("%s (%d)", column, count)
	if !IsInteractive() {
		return label
	}
	color, ok := columnColors[column]
	if !ok {
		color = lipgloss.Color("7")
	}
	return headerStyle.Foreground(color).Render(label)
}

// RenderBoard renders the full board, one section per non-empty column.
// Columns appear in display order; empty columns are skipped.
func RenderBoard(tasks []*schema.Task) string {
	byColumn := make(map[status.Column][]*schema.Task)
	for _, task := range tasks {
		byColumn[task.Column] = append(byColumn[task.Column], task)
	}

	var b strings.Builder
	for _, column := range status.Columns() {
		grouped := byColumn[column]
		if len(grouped) == 0 {
			continue
		}

		b.WriteString(RenderColumnHeader(column, len(grouped)))
		b.WriteString("\n")
		for _, task := range grouped {
			b.WriteString(renderCard(task))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if b.Len() == 0 {
		return "Board is empty. Run 'kanbo sync' first.\n"
	}
	return b.String()
}

func renderCard(task *schema.Task) string {
	var details []string
	if task.Assignee != "" {
		details = append(details, task.Assignee)
	}
	if task.StoryPoints != nil {
		details = append(details, fmt.Sprintf("%gpt", *task.StoryPoints))
	}
	if task.DueAt != nil {
		details = append(details, "due "+task.DueAt.Format("2006-01-02"))
	}
	if task.Origin == schema.OriginLocal {
		details = append(details, "local")
	}

	line := fmt.Sprintf("  %-10s %s", task.Key, task.Summary)
	if len(details) > 0 {
		suffix := "  [" + strings.Join(details, ", ") + "]"
		if IsInteractive() {
			suffix = dimStyle.Render(suffix)
		}
		line += suffix
	}
	return line
}
