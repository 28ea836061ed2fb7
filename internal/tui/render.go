package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"cvswatch/internal/domain"
	"cvswatch/internal/view"
)

// popupHeight is reserved below the map for the selected node's detail
const popupHeight = 1

const barBlock = "█"

func statusColor(s domain.Status) lipgloss.Color {
	switch s {
	case domain.StatusGreen:
		return lipgloss.Color(view.ColorGreen)
	case domain.StatusYellow:
		return lipgloss.Color(view.ColorYellow)
	case domain.StatusRed:
		return lipgloss.Color(view.ColorRed)
	default:
		return lipgloss.Color(view.ColorUnscored)
	}
}

func (m Model) renderMap() string {
	dimS := lipgloss.NewStyle().Foreground(colorDim)

	detail := dimS.Render(" Select a node with j/k or click a marker")
	if p, ok := m.mapView.Popup(); ok {
		labelS := lipgloss.NewStyle().Foreground(colorLabel)
		detail = lipgloss.NewStyle().Bold(true).Foreground(colorActive).Render(" "+p.Name) +
			dimS.Render(fmt.Sprintf("  %.4f, %.4f", p.Coordinates.Lat(), p.Coordinates.Lon())) +
			dimS.Render("  CVS ") + labelS.Render(p.CVS) +
			dimS.Render("  temp ") + labelS.Render(fmt.Sprintf("%.2f", p.Temperature)) +
			dimS.Render("  humidity ") + labelS.Render(fmt.Sprintf("%.2f", p.Humidity))
	}

	return lipgloss.JoinVertical(lipgloss.Left, m.canvas.Render(), detail)
}

func renderAnalytics(sum view.Summary, width int) string {
	dimS := lipgloss.NewStyle().Foreground(colorDim)
	valS := lipgloss.NewStyle().Bold(true).Foreground(colorLabel)

	card := func(label, value string) string {
		return lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1).
			Render(dimS.Render(label) + "\n" + valS.Render(value))
	}

	cards := lipgloss.JoinHorizontal(lipgloss.Top,
		card("Nodes", fmt.Sprintf("%d", sum.Total)),
		card("Scored", fmt.Sprintf("%d", sum.Scored)),
		card("Offline", fmt.Sprintf("%d", sum.Offline)),
		card("Avg CVS", fmt.Sprintf("%.3f", sum.AverageCVS)),
		card("Std dev", fmt.Sprintf("%.3f", sum.StdDevCVS)),
		card("Safety", fmt.Sprintf("%.2f%%", sum.SafetyScore)),
	)

	counts := lipgloss.NewStyle().Foreground(statusColor(domain.StatusGreen)).Render(fmt.Sprintf("green %d", sum.Statuses.Green)) + "  " +
		lipgloss.NewStyle().Foreground(statusColor(domain.StatusYellow)).Render(fmt.Sprintf("yellow %d", sum.Statuses.Yellow)) + "  " +
		lipgloss.NewStyle().Foreground(statusColor(domain.StatusRed)).Render(fmt.Sprintf("red %d", sum.Statuses.Red)) + "  " +
		dimS.Render(fmt.Sprintf("unscored %d", sum.Statuses.Unscored))

	labelW := 18
	barW := width - labelW - 12
	if barW < 10 {
		barW = 10
	}

	rows := []string{cards, " " + counts, ""}
	for _, b := range sum.Bars {
		label := lipgloss.NewStyle().Foreground(colorLabel).Width(labelW).Render(truncate(b.Name, labelW))
		if !b.Scored {
			rows = append(rows, " "+label+dimS.Render("  not scored"))
			continue
		}
		n := int(b.CVS / 100 * float64(barW))
		bar := lipgloss.NewStyle().Foreground(statusColor(b.Status)).Render(strings.Repeat(barBlock, n))
		rows = append(rows, " "+label+" "+bar+dimS.Render(fmt.Sprintf(" %6.2f%%", b.CVS)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func renderDevices(panel view.Panel, width int) string {
	dimS := lipgloss.NewStyle().Foreground(colorDim)

	if !panel.Ready {
		return dimS.Render(" Loading devices...")
	}

	var rows []string
	if len(panel.Cards) == 0 {
		rows = append(rows, dimS.Render(" No sensors connected"))
	}

	barW := width - 40
	if barW < 10 {
		barW = 10
	}
	for _, d := range panel.Cards {
		title := lipgloss.NewStyle().Bold(true).Foreground(colorLabel).Render(d.Name) +
			dimS.Render("  "+d.Class)
		value := lipgloss.NewStyle().Foreground(lipgloss.Color(view.ColorDevice)).
			Render(fmt.Sprintf("%.1f %s", d.Value, d.Unit))
		n := int(d.Percent / 100 * float64(barW))
		bar := lipgloss.NewStyle().Foreground(lipgloss.Color(view.ColorDevice)).Render(strings.Repeat(barBlock, n)) +
			dimS.Render(strings.Repeat("░", barW-n))

		rows = append(rows, lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1).
			Render(title+"\n"+value+"  "+bar))
	}

	if len(panel.Disconnected) > 0 {
		rows = append(rows, dimS.Render(" disconnected: "+strings.Join(panel.Disconnected, ", ")))
	}

	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func truncate(s string, w int) string {
	if len(s) <= w {
		return s
	}
	if w <= 3 {
		return s[:w]
	}
	return s[:w-1] + "…"
}
