// Package report renders the history of completed interviews.
package report

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"golang.org/x/term"

	"github.com/verte-zerg/intervue/internal/model"
)

const (
	terminalWidthBackup = 100
	minSummaryWidth     = 20
	dateLayout          = "2006-01-02 15:04"
)

// Source lists completed sessions. *store.Store implements it.
type Source interface {
	ListCompleted(ctx context.Context, filter model.HistoryFilter) ([]model.SessionAggregate, error)
}

// History is the data behind the history command.
type History struct {
	Sessions []model.SessionAggregate
	Average  float64
	Best     int
	Worst    int
}

// Build loads completed sessions and computes totals.
func Build(ctx context.Context, src Source, filter model.HistoryFilter) (History, error) {
	sessions, err := src.ListCompleted(ctx, filter)
	if err != nil {
		return History{}, err
	}
	h := History{Sessions: sessions}
	if len(sessions) == 0 {
		return h, nil
	}
	h.Best, h.Worst = sessions[0].Score, sessions[0].Score
	total := 0
	for _, s := range sessions {
		total += s.Score
		if s.Score > h.Best {
			h.Best = s.Score
		}
		if s.Score < h.Worst {
			h.Worst = s.Score
		}
	}
	h.Average = float64(total) / float64(len(sessions))
	return h, nil
}

// Scores returns the final scores in completion order.
func (h History) Scores() []float64 {
	out := make([]float64, len(h.Sessions))
	for i, s := range h.Sessions {
		out[i] = float64(s.Score)
	}
	return out
}

// Render writes the history table. A width of zero uses the terminal width.
func Render(w io.Writer, h History, width int) error {
	if len(h.Sessions) == 0 {
		_, err := fmt.Fprintln(w, "No completed interviews yet.")
		return err
	}
	if width <= 0 {
		width = terminalWidth()
	}

	headers := []string{"Date", "Candidate", "Role", "Score", "Fallbacks", "Summary"}
	rows := make([][]string, 0, len(h.Sessions))
	for _, s := range h.Sessions {
		rows = append(rows, []string{
			s.CompletedAt.Local().Format(dateLayout),
			s.Candidate,
			s.Role,
			strconv.Itoa(s.Score),
			strconv.Itoa(s.Fallbacks),
			s.Summary,
		})
	}

	fixed := 0
	for col := 0; col < len(headers)-1; col++ {
		colWidth := displayWidth(headers[col])
		for _, row := range rows {
			if cw := displayWidth(row[col]); cw > colWidth {
				colWidth = cw
			}
		}
		fixed += colWidth + 2
	}
	summaryWidth := width - fixed
	if summaryWidth < minSummaryWidth {
		summaryWidth = minSummaryWidth
	}
	for _, row := range rows {
		row[len(row)-1] = truncateCell(row[len(row)-1], summaryWidth)
	}

	if err := WriteTable(w, headers, rows, map[int]bool{3: true, 4: true}); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%d interviews, average %.1f, best %d, worst %d\n", len(h.Sessions), h.Average, h.Best, h.Worst)
	return err
}

func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return terminalWidthBackup
	}
	return width
}
