package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/fastygo/todosync/domain"
	"github.com/fastygo/todosync/usecase/syncer"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	accentStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	mutedStyle   = lipgloss.NewStyle().Faint(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	doneStyle    = lipgloss.NewStyle().Faint(true).Strikethrough(true)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("8")).
			Padding(0, 1)

	boxChecked   = "☑"
	boxUnchecked = "☐"
)

const shortIDLen = 8

func ok(w io.Writer, msg string) {
	fmt.Fprintln(w, successStyle.Render("✔ "+msg))
}

func fail(w io.Writer, msg string) {
	fmt.Fprintln(w, errorStyle.Render("✖ "+msg))
}

func pending(w io.Writer, msg string) {
	fmt.Fprintln(w, pendingStyle.Render("… "+msg))
}

// renderList draws the snapshot as a bordered panel.
func renderList(snap syncer.Snapshot, dirty bool, now time.Time) string {
	lines := []string{titleStyle.Render("Todo")}
	if len(snap.Items) == 0 {
		lines = append(lines, mutedStyle.Render("nothing to do"))
	}
	for _, rec := range snap.Items {
		lines = append(lines, renderRecord(rec, now))
	}

	footer := fmt.Sprintf("%d done", snap.CompletedCount)
	if !snap.ShowCompleted && snap.CompletedCount > 0 {
		footer += " (hidden)"
	}
	footer = mutedStyle.Render(footer)
	if dirty {
		footer += "  " + pendingStyle.Render("unsynced changes")
	}
	lines = append(lines, "", footer)

	return panelStyle.Render(strings.Join(lines, "\n"))
}

func renderRecord(rec domain.Record, now time.Time) string {
	box := boxUnchecked
	if rec.IsDone {
		box = boxChecked
	}

	text := rec.Text
	switch {
	case rec.IsDone:
		text = doneStyle.Render(text)
	case rec.TextColor != "" && rec.TextColor != domain.DefaultTextColor:
		text = lipgloss.NewStyle().Foreground(lipgloss.Color(rec.TextColor)).Render(text)
	}

	parts := []string{box, mutedStyle.Render(rec.ID.String()[:shortIDLen]), importanceMark(rec.Importance) + text}
	if rec.Deadline != nil {
		due := "due " + rec.Deadline.Local().Format("2006-01-02")
		if !rec.IsDone && rec.Deadline.Before(now) {
			parts = append(parts, errorStyle.Render(due))
		} else {
			parts = append(parts, mutedStyle.Render(due))
		}
	}
	return strings.Join(parts, " ")
}

func importanceMark(i domain.Importance) string {
	switch i.Normalize() {
	case domain.ImportanceImportant:
		return errorStyle.Render("!! ")
	case domain.ImportanceUnimportant:
		return accentStyle.Render("↓ ")
	default:
		return ""
	}
}

func renderStatus(items, done int, dirty, online bool, revision int64, remote string) string {
	conn := errorStyle.Render("offline")
	if online {
		conn = successStyle.Render("online")
	}
	state := successStyle.Render("in sync")
	if dirty {
		state = pendingStyle.Render("unsynced changes")
	}
	lines := []string{
		titleStyle.Render("Status"),
		fmt.Sprintf("server    %s (%s)", remote, conn),
		fmt.Sprintf("list      %s", state),
		fmt.Sprintf("records   %d (%d done)", items, done),
		fmt.Sprintf("revision  %d", revision),
	}
	return panelStyle.Render(strings.Join(lines, "\n"))
}
