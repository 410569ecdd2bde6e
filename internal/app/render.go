package app

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/specialistvlad/studygrid/internal/engine"
	"github.com/specialistvlad/studygrid/internal/vartype"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	headStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle  = lipgloss.NewStyle().Padding(0, 1)
	sepStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	badStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// renderTable draws a header row and cells padded to the widest value of
// each column.
func renderTable(title string, headers []string, rows [][]string) string {
	var sb strings.Builder
	if title != "" {
		sb.WriteString(titleStyle.Render(title))
		sb.WriteString("\n")
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && lipgloss.Width(cell) > widths[i] {
				widths[i] = lipgloss.Width(cell)
			}
		}
	}

	line := func(style lipgloss.Style, cells []string) {
		for i := range widths {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			sb.WriteString(style.Width(widths[i] + 2).Render(cell))
			if i < len(widths)-1 {
				sb.WriteString(sepStyle.Render("|"))
			}
		}
		sb.WriteString("\n")
	}

	line(headStyle, headers)
	total := len(widths) - 1
	for _, w := range widths {
		total += w + 2
	}
	sb.WriteString(sepStyle.Render(strings.Repeat("-", total)))
	sb.WriteString("\n")
	for _, row := range rows {
		line(cellStyle, row)
	}
	return sb.String()
}

// renderTree draws the configured tree with one marker per node.
func renderTree(study string, nodes []engine.DisplayNode) string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Study " + study))
	sb.WriteString("\n")
	for _, n := range nodes {
		marker := okStyle.Render("✔")
		if !n.Configured {
			marker = badStyle.Render("✘")
		}
		fmt.Fprintf(&sb, "%s%s %s %s", strings.Repeat("  ", n.Depth), marker, n.Name, mutedStyle.Render("("+n.Kind+")"))
		if len(n.Namespaces) > 0 {
			names := make([]string, 0, len(n.Namespaces))
			for name := range n.Namespaces {
				names = append(names, name+"="+n.Namespaces[name])
			}
			sort.Strings(names)
			sb.WriteString(" " + mutedStyle.Render("["+strings.Join(names, ", ")+"]"))
		}
		sb.WriteString("\n")

		indent := strings.Repeat("  ", n.Depth+1)
		if n.Error != "" {
			sb.WriteString(indent + badStyle.Render("error: "+n.Error) + "\n")
		}
		for _, msg := range n.Messages {
			sb.WriteString(indent + badStyle.Render("⚠ "+msg) + "\n")
		}
	}
	return sb.String()
}

// formatValue renders a variable value on one line.
func formatValue(v any) string {
	switch tv := v.(type) {
	case nil:
		return "-"
	case float64:
		if math.IsNaN(tv) {
			return "NaN"
		}
		return strconv.FormatFloat(tv, 'g', 8, 64)
	case []float64:
		parts := make([]string, len(tv))
		for i, f := range tv {
			parts[i] = formatValue(f)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case *vartype.Table:
		return fmt.Sprintf("table %dx%d (%s)", tv.Len(), len(tv.Columns), strings.Join(tv.Columns, ", "))
	case map[string]any:
		keys := vartype.SortedKeys(tv)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ": " + formatValue(tv[k])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case map[int]any:
		keys := make([]int, 0, len(tv))
		for k := range tv {
			keys = append(keys, k)
		}
		sort.Ints(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = strconv.Itoa(k) + ": " + formatValue(tv[k])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	return fmt.Sprint(v)
}
