// Package tui implements the terminal dashboard: a Map tab drawn on a
// character canvas, an Analytics tab, and a Devices tab, all re-rendered
// from the node store's committed snapshots.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"cvswatch/internal/domain"
	"cvswatch/internal/syncloop"
	"cvswatch/internal/view"
)

// clockInterval refreshes loop status and offline ages
const clockInterval = time.Second

// chromeHeight is the rows taken by the title bar, tabs and footer
const chromeHeight = 4

// mapTop is the first screen row of the map canvas
const mapTop = 2

// Tab selects the active view
type Tab int

const (
	TabMap Tab = iota
	TabAnalytics
	TabDevices
)

var tabNames = []string{"Map", "Analytics", "Devices"}

// Source provides committed snapshots
type Source interface {
	Snapshot() *domain.Snapshot
	Subscribe() (<-chan *domain.Snapshot, func())
}

// Syncer is the part of the sync loop the dashboard drives
type Syncer interface {
	Trigger(ctx context.Context) (syncloop.TickReport, error)
	Status() syncloop.Status
}

// ── Messages ─────────────────────────────────────────────────────────

type snapshotMsg struct{ snap *domain.Snapshot }

type clockMsg time.Time

type syncDoneMsg struct {
	report syncloop.TickReport
	err    error
}

// ── Model ────────────────────────────────────────────────────────────

// Model is the BubbleTea model for the dashboard
type Model struct {
	source       Source
	syncer       Syncer
	updates      <-chan *domain.Snapshot
	canvas       *Canvas
	mapView      *view.MapView
	snap         *domain.Snapshot
	status       syncloop.Status
	offlineAfter time.Duration
	tab          Tab
	width        int
	height       int
	now          time.Time
	notice       string
	err          error
}

// New creates the dashboard model. updates usually comes from
// source.Subscribe; the caller cancels the subscription after the program
// exits.
func New(source Source, syncer Syncer, updates <-chan *domain.Snapshot, offlineAfter time.Duration) Model {
	canvas := NewCanvas()
	m := Model{
		source:       source,
		syncer:       syncer,
		updates:      updates,
		canvas:       canvas,
		mapView:      view.NewMapView(canvas),
		snap:         source.Snapshot(),
		offlineAfter: offlineAfter,
		now:          time.Now(),
	}
	m.status = syncer.Status()
	if err := m.mapView.Update(m.snap); err != nil {
		m.err = err
	}
	return m
}

// ── Commands ─────────────────────────────────────────────────────────

func waitForSnapshot(updates <-chan *domain.Snapshot) tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-updates
		if !ok {
			return nil
		}
		return snapshotMsg{snap: snap}
	}
}

func clockCmd() tea.Cmd {
	return tea.Tick(clockInterval, func(t time.Time) tea.Msg {
		return clockMsg(t)
	})
}

func syncCmd(syncer Syncer) tea.Cmd {
	return func() tea.Msg {
		report, err := syncer.Trigger(context.Background())
		return syncDoneMsg{report: report, err: err}
	}
}

// ── Init / Update ────────────────────────────────────────────────────

func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForSnapshot(m.updates), clockCmd())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		if m.tab == TabMap && msg.Action == tea.MouseActionPress && msg.Button == tea.MouseButtonLeft {
			m.setErr(m.mapView.Click(view.ScreenPoint{X: float64(msg.X), Y: float64(msg.Y - mapTop)}))
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.canvas.Resize(msg.Width, m.mapHeight())
		m.setErr(m.mapView.BackendReady())

	case snapshotMsg:
		m.snap = msg.snap
		m.setErr(m.mapView.Update(msg.snap))
		return m, waitForSnapshot(m.updates)

	case syncDoneMsg:
		if msg.err != nil {
			m.notice = fmt.Sprintf("sync: %v", msg.err)
		} else {
			m.notice = fmt.Sprintf("tick %d %s", msg.report.Seq, msg.report.Outcome)
		}
		m.status = m.syncer.Status()

	case clockMsg:
		m.now = time.Time(msg)
		m.status = m.syncer.Status()
		return m, clockCmd()
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "tab":
		m.tab = (m.tab + 1) % Tab(len(tabNames))
	case "shift+tab":
		m.tab = (m.tab + Tab(len(tabNames)) - 1) % Tab(len(tabNames))
	case "1":
		m.tab = TabMap
	case "2":
		m.tab = TabAnalytics
	case "3":
		m.tab = TabDevices
	case "s":
		m.notice = "syncing..."
		return m, syncCmd(m.syncer)
	case "down", "j":
		if m.tab == TabMap {
			m.setErr(m.cycleSelection(1))
		}
	case "up", "k":
		if m.tab == TabMap {
			m.setErr(m.cycleSelection(-1))
		}
	case "esc":
		if m.tab == TabMap && m.mapView.Selected() != "" {
			m.setErr(m.mapView.Deselect())
		}
	}
	return m, nil
}

// cycleSelection moves the selection through the nodes in store order
func (m *Model) cycleSelection(step int) error {
	if m.snap == nil || len(m.snap.Nodes) == 0 {
		return nil
	}

	nodes := m.snap.Nodes
	next := 0
	if i := domain.IndexByID(nodes, m.mapView.Selected()); i >= 0 {
		next = (i + step + len(nodes)) % len(nodes)
	} else if step < 0 {
		next = len(nodes) - 1
	}
	return m.mapView.Select(nodes[next].ID)
}

func (m *Model) setErr(err error) {
	if err != nil {
		m.err = err
	}
}

func (m Model) mapHeight() int {
	h := m.height - chromeHeight - popupHeight
	if h < 1 {
		h = 1
	}
	return h
}

// Selected returns the id of the node selected on the map
func (m Model) Selected() string {
	return m.mapView.Selected()
}

// Tab returns the active tab
func (m Model) Tab() Tab {
	return m.tab
}

// ── Color palette ────────────────────────────────────────────────────

var (
	colorTitleBg  = lipgloss.Color("17")
	colorTitleFg  = lipgloss.Color("51")
	colorBorder   = lipgloss.Color("62")
	colorLabel    = lipgloss.Color("252")
	colorDim      = lipgloss.Color("240")
	colorFooterBg = lipgloss.Color("235")
	colorCrit     = lipgloss.Color("196")
	colorActive   = lipgloss.Color("212")
)

// ── View ─────────────────────────────────────────────────────────────

func (m Model) View() string {
	if m.width == 0 {
		return "  Initializing..."
	}

	var body string
	switch {
	case !m.snap.Committed() && m.tab != TabMap:
		body = lipgloss.NewStyle().
			Foreground(colorDim).
			Width(m.width).
			Align(lipgloss.Center).
			Padding(2, 0).
			Render("Waiting for the first sync...")
	case m.tab == TabMap:
		body = m.renderMap()
	case m.tab == TabAnalytics:
		body = renderAnalytics(view.Summarize(m.snap, m.now, m.offlineAfter), m.width)
	case m.tab == TabDevices:
		body = renderDevices(view.DevicePanel(m.snap), m.width)
	}

	sections := []string{m.renderTitleBar(), m.renderTabs(), body}
	if m.err != nil {
		sections = append(sections, lipgloss.NewStyle().
			Foreground(colorCrit).
			Bold(true).
			Render(fmt.Sprintf(" ERROR: %v", m.err)))
	}
	sections = append(sections, m.renderFooter())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderTitleBar() string {
	logo := lipgloss.NewStyle().
		Bold(true).
		Foreground(colorTitleFg).
		Render("CVSWATCH")

	dimS := lipgloss.NewStyle().Foreground(colorDim)
	parts := []string{
		dimS.Render(m.status.State.String()),
		dimS.Render(fmt.Sprintf("v%d", m.status.Version)),
	}
	if m.snap.Committed() {
		parts = append(parts, dimS.Render(m.snap.CommittedAt.Local().Format("15:04:05")))
	}
	if m.notice != "" {
		parts = append(parts, lipgloss.NewStyle().Foreground(colorActive).Render(m.notice))
	}

	sep := dimS.Render(" │ ")
	right := strings.Join(parts, sep)

	gap := m.width - lipgloss.Width(logo) - lipgloss.Width(right) - 4
	if gap < 1 {
		gap = 1
	}

	return lipgloss.NewStyle().
		Background(colorTitleBg).
		Width(m.width).
		Padding(0, 1).
		Render(logo + strings.Repeat(" ", gap) + right)
}

func (m Model) renderTabs() string {
	var tabs []string
	for i, name := range tabNames {
		style := lipgloss.NewStyle().Padding(0, 1).Foreground(colorDim)
		if Tab(i) == m.tab {
			style = style.Foreground(colorActive).Bold(true).Underline(true)
		}
		tabs = append(tabs, style.Render(fmt.Sprintf("%d %s", i+1, name)))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

func (m Model) renderFooter() string {
	dimS := lipgloss.NewStyle().Foreground(colorDim)
	labelS := lipgloss.NewStyle().Foreground(colorLabel)

	keys := dimS.Render("q") + labelS.Render(":quit") +
		dimS.Render("  tab") + labelS.Render(":view") +
		dimS.Render("  s") + labelS.Render(":sync")
	if m.tab == TabMap {
		keys += dimS.Render("  j/k") + labelS.Render(":select") +
			dimS.Render("  esc") + labelS.Render(":clear")
	}

	return lipgloss.NewStyle().
		Background(colorFooterBg).
		Width(m.width).
		Padding(0, 1).
		Render(keys)
}
