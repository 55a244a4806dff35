package prompt

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Field is one line of the startup banner
type Field struct {
	Label string
	Value string
}

// Banner renders the startup summary box
func Banner(title string, fields []Field) string {
	rows := make([]string, 0, len(fields)+1)
	rows = append(rows, titleStyle.Render(title))
	for _, f := range fields {
		if f.Value == "" {
			continue
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top,
			labelStyle.Render(f.Label),
			valueStyle.Render(f.Value),
		))
	}
	return bannerStyle.Render(strings.Join(rows, "\n"))
}
