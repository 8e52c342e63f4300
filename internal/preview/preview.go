// Package preview renders timetable grids and the run summary for a terminal.
package preview

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/Anuj-afk/TimeTable-Generator/internal/scheduler"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true).
			MarginTop(1)

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			Bold(true).
			Padding(0, 1)

	cellStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			Padding(0, 1)

	emptyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Padding(0, 1)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("42")).
		Bold(true)
)

const emptyCell = "·"

// Grid renders one teacher or class grid as a bordered table: days down, periods across.
func Grid(g scheduler.Grid) string {
	headers := append([]string{"Day"}, g.Periods...)
	rows := make([][]string, 0, len(g.Days))
	for d, day := range g.Days {
		row := make([]string, 0, len(g.Periods)+1)
		row = append(row, day)
		for p := range g.Periods {
			value := g.Cells[d][p]
			if value == "" {
				value = emptyCell
			}
			row = append(row, value)
		}
		rows = append(rows, row)
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow || col == 0:
				return headerStyle
			case rows[row][col] == emptyCell:
				return emptyStyle
			default:
				return cellStyle
			}
		})

	return lipgloss.JoinVertical(lipgloss.Left, titleStyle.Render(g.Owner), t.String())
}

// Summary renders the summary records as teacher loads followed by notes.
func Summary(records []scheduler.SummaryRecord) string {
	var loads [][]string
	var lines []string
	for _, r := range records {
		switch r.Kind {
		case scheduler.KindTeacherLoad:
			loads = append(loads, []string{r.Teacher, fmt.Sprintf("%d", r.Value)})
		case scheduler.KindUnscheduled:
			lines = append(lines, warningStyle.Render(
				fmt.Sprintf("%s / %s: %d of %d placed, %d unscheduled", r.Teacher, r.Class, r.Scheduled, r.Required, r.Unscheduled)))
		case scheduler.KindNote:
			if r.Message == scheduler.SuccessMessage {
				lines = append(lines, okStyle.Render(r.Message))
			} else {
				lines = append(lines, warningStyle.Render(r.Message))
			}
		}
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		Headers("Teacher", "Periods").
		Rows(loads...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})

	parts := []string{titleStyle.Render("Summary"), t.String()}
	if len(lines) > 0 {
		parts = append(parts, strings.Join(lines, "\n"))
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

// Result renders every teacher grid, every class grid and the summary.
func Result(result *scheduler.Result) (string, error) {
	records, _, err := result.Summary()
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, g := range result.TeacherGrids() {
		b.WriteString(Grid(g))
		b.WriteString("\n")
	}
	for _, g := range result.ClassGrids() {
		b.WriteString(Grid(g))
		b.WriteString("\n")
	}
	b.WriteString(Summary(records))
	b.WriteString("\n")
	return b.String(), nil
}
