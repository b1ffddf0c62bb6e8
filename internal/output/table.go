package output

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// Table prints rows under headers. On a terminal it draws a rounded,
// colored border; otherwise columns are aligned with spaces only.
func (w *Writer) Table(headers []string, rows [][]string) {
	if len(rows) == 0 {
		return
	}
	t := table.New().
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return w.styles.Cell.Inherit(w.styles.Header)
			}
			return w.styles.Cell
		})
	if w.useColor {
		t = t.Border(lipgloss.RoundedBorder()).BorderStyle(w.styles.Border)
	} else {
		t = t.Border(lipgloss.HiddenBorder()).
			BorderTop(false).BorderBottom(false).
			BorderLeft(false).BorderRight(false).
			BorderColumn(false).BorderHeader(false)
	}
	_, _ = fmt.Fprintln(w.out, t.Render())
}
