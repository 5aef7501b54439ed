package main

import (
	"fmt"
	"io"
	"strings"

	"taskboard/internal/domain/models"

	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true)
	pendingStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	completedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	dimStyle       = lipgloss.NewStyle().Faint(true)
)

const columnGap = "  "

func styleStatus(status string) string {
	switch status {
	case models.StatusCompleted:
		return completedStyle.Render(status)
	case models.StatusPending:
		return pendingStyle.Render(status)
	default:
		return status
	}
}

// renderTable pads every column to its widest cell. Widths are measured with
// lipgloss so styled cells line up.
func renderTable(w io.Writer, header []string, rows [][]string) {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if cw := lipgloss.Width(cell); cw > widths[i] {
				widths[i] = cw
			}
		}
	}

	writeRow := func(cells []string, style *lipgloss.Style) {
		parts := make([]string, len(cells))
		for i, cell := range cells {
			if style != nil {
				cell = style.Render(cell)
			}
			if i < len(cells)-1 {
				cell += strings.Repeat(" ", widths[i]-lipgloss.Width(cell))
			}
			parts[i] = cell
		}
		fmt.Fprintln(w, strings.Join(parts, columnGap))
	}

	writeRow(header, &headerStyle)
	for _, row := range rows {
		writeRow(row, nil)
	}
}

func printTasks(w io.Writer, tasks []models.TaskView) {
	if len(tasks) == 0 {
		fmt.Fprintln(w, dimStyle.Render("no tasks"))
		return
	}
	rows := make([][]string, 0, len(tasks))
	for _, t := range tasks {
		rows = append(rows, []string{t.ID, styleStatus(t.Status), t.Title, t.CreatorName, t.AssigneeName, t.Description})
	}
	renderTable(w, []string{"ID", "STATUS", "TITLE", "CREATOR", "ASSIGNEE", "DESCRIPTION"}, rows)
}

func printTask(w io.Writer, t *models.TaskView) {
	fmt.Fprintf(w, "%s  %s  %s\n", t.ID, styleStatus(t.Status), t.Title)
	if t.Description != "" {
		fmt.Fprintf(w, "  %s\n", t.Description)
	}
	fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf("  created by %s, assigned to %s, version %d", t.CreatorName, t.AssigneeName, t.Version)))
}

func printUsers(w io.Writer, users []models.UserSummary) {
	rows := make([][]string, 0, len(users))
	for _, u := range users {
		rows = append(rows, []string{u.ID, u.Username})
	}
	renderTable(w, []string{"ID", "USERNAME"}, rows)
}
