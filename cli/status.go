// ABOUTME: Status command listing recent runs from the ledger
// ABOUTME: Renders run state, stage, and summary counts with lipgloss styles
package cli

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/harperreed/latecancel/db"
	"github.com/harperreed/latecancel/workflow"
)

var (
	statusTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("170")).
				MarginBottom(1)

	statusIDStyle = lipgloss.NewStyle().
			Bold(true).
			Width(28)

	statusSucceededStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("10"))

	statusRunningStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("11")).
				Bold(true)

	statusFailedStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("9"))

	statusDetailStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("240")).
				Italic(true)
)

// StatusCommand prints the most recent runs.
func (a *App) StatusCommand(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	limit := fs.Int("limit", 10, "Number of runs to show")
	_ = fs.Parse(args)

	database, err := db.OpenDatabase(a.Config.Run.LedgerPath)
	if err != nil {
		return fmt.Errorf("failed to open run ledger: %w", err)
	}
	defer database.Close()

	runs, err := db.NewLedger(database).Recent(context.Background(), *limit)
	if err != nil {
		return err
	}
	fmt.Fprint(a.out(), renderRuns(runs, time.Now()))
	return nil
}

func renderRuns(runs []db.Run, now time.Time) string {
	var s strings.Builder
	s.WriteString(statusTitleStyle.Render("Recent runs"))
	s.WriteString("\n")

	if len(runs) == 0 {
		s.WriteString(statusDetailStyle.Render("No runs recorded yet. Run 'latecancel run' first."))
		s.WriteString("\n")
		return s.String()
	}

	for _, r := range runs {
		var state string
		switch r.Status {
		case db.StatusSucceeded:
			state = statusSucceededStyle.Render("✓ succeeded")
		case db.StatusRunning:
			state = statusRunningStyle.Render("⟳ running")
		default:
			state = statusFailedStyle.Render("✗ failed")
		}

		fmt.Fprintf(&s, "%s %s  %s", statusIDStyle.Render(r.ID), state, formatTimeSince(r.StartedAt, now))
		if r.FinishedAt != nil {
			fmt.Fprintf(&s, " (took %s)", r.FinishedAt.Sub(r.StartedAt).Round(time.Second))
		}
		s.WriteString("\n")

		if detail := runDetail(r); detail != "" {
			s.WriteString("  → ")
			s.WriteString(statusDetailStyle.Render(detail))
			s.WriteString("\n")
		}
	}
	return s.String()
}

// runDetail is the one-line explanation under a run: its error, or its counts.
func runDetail(r db.Run) string {
	if r.ErrorMessage != "" {
		if r.Stage != "" {
			return fmt.Sprintf("%s at %s", r.ErrorMessage, r.Stage)
		}
		return r.ErrorMessage
	}
	if r.SummaryJSON == "" {
		return ""
	}
	var sum workflow.Summary
	if err := json.Unmarshal([]byte(r.SummaryJSON), &sum); err != nil {
		return ""
	}
	return fmt.Sprintf("%d members, %d bookings cancelled, %d new late cancellations, %d tagged",
		sum.Members, sum.BookingsCancelled, sum.NewLateCancellations, sum.TagsAssigned)
}

// formatTimeSince formats a time duration in a human-readable way.
func formatTimeSince(t, now time.Time) string {
	duration := now.Sub(t)

	if duration < time.Minute {
		return "just now"
	} else if duration < time.Hour {
		minutes := int(duration.Minutes())
		if minutes == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", minutes)
	} else if duration < 24*time.Hour {
		hours := int(duration.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	} else {
		days := int(duration.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	}
}
