// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/lorris/pkg/lorris"
)

// Event log entry
type errorLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for information
}

// TUI model for the stats command
type model struct {
	connInfo      string
	vocab         *lorris.Vocabulary
	showAll       bool
	stats         *lorris.Statistics
	errorLog      []errorLogEntry
	maxLogEntries int
	synchronized  bool
	invalidBytes  uint64
	width         int
	height        int
	quitting      bool
	lastFrames    map[uint8]*lorris.Packet
	disconnected  bool
}

// Messages
type tickMsg time.Time
type frameMsg struct {
	packet           *lorris.Packet
	validationErrors []lorris.ValidationError
	discarded        uint64
}
type syncMsg struct {
	invalidBytes uint64
}
type connectionLostMsg struct {
	err error
}

// formatDuration formats a duration as a human-friendly string
func formatDuration(d time.Duration) string {
	seconds := int64(d / time.Second)
	if seconds <= 0 {
		return "0 seconds"
	}

	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	seconds %= 60
	minutes %= 60
	hours %= 24

	plural := func(n int64, unit string) string {
		if n == 1 {
			return "1 " + unit
		}
		return fmt.Sprintf("%d %ss", n, unit)
	}

	parts := []string{}
	if days > 0 {
		parts = append(parts, plural(days, "day"))
	}
	if hours > 0 {
		parts = append(parts, plural(hours, "hour"))
	}
	if minutes > 0 {
		parts = append(parts, plural(minutes, "minute"))
	}
	if seconds > 0 {
		parts = append(parts, plural(seconds, "second"))
	}

	// Join with commas and "and" for last item
	if len(parts) == 1 {
		return parts[0]
	}
	if len(parts) == 2 {
		return parts[0] + " and " + parts[1]
	}
	last := parts[len(parts)-1]
	rest := strings.Join(parts[:len(parts)-1], ", ")
	return rest + ", and " + last
}

func initialStatsModel(connInfo string, vocab *lorris.Vocabulary, showAll bool) model {
	return model{
		connInfo:      connInfo,
		vocab:         vocab,
		showAll:       showAll,
		stats:         lorris.NewStatistics(),
		errorLog:      make([]errorLogEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
		lastFrames:    make(map[uint8]*lorris.Packet),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		tea.EnterAltScreen,
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			m.stats.Reset()
			m.lastFrames = make(map[uint8]*lorris.Packet)
			m.addLogEntry("Statistics reset", false)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.stats.CalculateRates()
		return m, tickCmd()

	case syncMsg:
		m.synchronized = true
		m.invalidBytes = msg.invalidBytes
		if msg.invalidBytes > 0 {
			m.addLogEntry(fmt.Sprintf("Synchronized after skipping %d invalid bytes", msg.invalidBytes), false)
		} else {
			m.addLogEntry("Synchronized", false)
		}

	case frameMsg:
		m.stats.Update(msg.packet, msg.validationErrors)
		m.stats.SetDiscarded(msg.discarded)
		m.lastFrames[msg.packet.Command()] = msg.packet

		name := m.vocab.CommandName(msg.packet.Command())
		if len(msg.validationErrors) > 0 {
			for _, err := range msg.validationErrors {
				m.addLogEntry(fmt.Sprintf("%s: %s", name, err.Message), true)
			}
		} else if m.showAll {
			m.addLogEntry(fmt.Sprintf("%s (valid)", name), false)
		}

	case connectionLostMsg:
		m.disconnected = true
		m.addLogEntry(fmt.Sprintf("Connection lost: %v", msg.err), true)
	}

	return m, nil
}

func (m *model) addLogEntry(message string, isError bool) {
	entry := errorLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.errorLog = append(m.errorLog, entry)

	// Keep only last N entries
	if len(m.errorLog) > m.maxLogEntries {
		m.errorLog = m.errorLog[len(m.errorLog)-m.maxLogEntries:]
	}
}

// tuiStyles are the shared lipgloss styles of the terminal UIs
type tuiStyles struct {
	title, header, label, value, err, warning, box lipgloss.Style
}

func newTUIStyles() tuiStyles {
	return tuiStyles{
		title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1),
		header:  lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		label:   lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true),
		value:   lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		err:     lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		warning: lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		box: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1),
	}
}

// renderEventLog renders the newest entries that fit in height lines
func renderEventLog(st tuiStyles, entries []errorLogEntry, height, width int) string {
	if height < 5 {
		height = 5
	}
	var content strings.Builder
	startIdx := len(entries) - height
	if startIdx < 0 {
		startIdx = 0
	}

	if len(entries) == 0 {
		content.WriteString(st.header.Render("  (no events yet)"))
	}
	for _, entry := range entries[startIdx:] {
		timestamp := st.header.Render(entry.timestamp.Format("15:04:05.000"))
		if entry.isError {
			content.WriteString(fmt.Sprintf("%s %s\n", timestamp, st.err.Render("✗ "+entry.message)))
		} else {
			content.WriteString(fmt.Sprintf("%s %s\n", timestamp, st.warning.Render("ℹ "+entry.message)))
		}
	}
	if width > 4 {
		return st.box.Width(width - 4).Render(content.String())
	}
	return st.box.Render(content.String())
}

func (m model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	st := newTUIStyles()

	var s strings.Builder
	s.WriteString(st.title.Render("LORRIS - STATISTICS"))
	s.WriteString("\n")
	mode := "Anomalies only"
	if m.showAll {
		mode = "All frames"
	}
	s.WriteString(st.header.Render(fmt.Sprintf("%s | Vocabulary: %s | Mode: %s | 'r' reset, 'q' quit",
		m.connInfo, m.vocab.Name(), mode)))
	s.WriteString("\n\n")

	switch {
	case m.disconnected:
		s.WriteString(st.err.Render("✗ Disconnected"))
	case !m.synchronized:
		s.WriteString(st.warning.Render("⏳ Waiting for synchronization..."))
	default:
		s.WriteString(st.value.Render("✓ Synchronized"))
		if m.invalidBytes > 0 {
			s.WriteString(st.header.Render(fmt.Sprintf(" (skipped %d invalid bytes)", m.invalidBytes)))
		}
	}
	s.WriteString("\n\n")

	s.WriteString(st.box.Render(m.renderStatistics(st)))
	s.WriteString("\n\n")

	if len(m.lastFrames) > 0 {
		s.WriteString(st.label.Render("Latest Frames:"))
		s.WriteString("\n")
		s.WriteString(st.box.Render(m.renderLatest()))
		s.WriteString("\n\n")
	}

	s.WriteString(st.label.Render("Recent Events:"))
	s.WriteString("\n")
	s.WriteString(renderEventLog(st, m.errorLog, m.height-15-len(m.lastFrames), m.width))

	return s.String()
}

func (m model) renderStatistics(st tuiStyles) string {
	stats := m.stats
	stats.CalculateRates()
	var validPercent, errorPercent float64
	if stats.TotalFrames > 0 {
		validPercent = float64(stats.ValidFrames) * 100.0 / float64(stats.TotalFrames)
		errorPercent = float64(stats.AnomalousFrames) * 100.0 / float64(stats.TotalFrames)
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		st.label.Render("Total:"), st.value.Render(fmt.Sprintf("%d", stats.TotalFrames)),
		st.label.Render("Valid:"), st.value.Render(fmt.Sprintf("%d (%.1f%%)", stats.ValidFrames, validPercent)),
		st.label.Render("Anomalous:"), st.err.Render(fmt.Sprintf("%d (%.1f%%)", stats.AnomalousFrames, errorPercent)),
	))

	if stats.AnomalousFrames > 0 {
		b.WriteString(fmt.Sprintf("%s %d   %s %d   %s %d   %s %d\n",
			st.header.Render("unknown:"), stats.UnknownCommands,
			st.header.Render("length:"), stats.LengthMismatch,
			st.header.Render("value:"), stats.InvalidValues,
			st.header.Render("read:"), stats.ReadErrors,
		))
	}

	if stats.DiscardedBytes > 0 {
		b.WriteString(fmt.Sprintf("%s %s\n",
			st.label.Render("Discarded:"), st.warning.Render(fmt.Sprintf("%d bytes", stats.DiscardedBytes))))
	}

	errorRate := st.value.Render(fmt.Sprintf("%.1f err/s", stats.ErrorRate))
	if stats.ErrorRate > 0 {
		errorRate = st.err.Render(fmt.Sprintf("%.1f err/s", stats.ErrorRate))
	}
	b.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s",
		st.label.Render("Frame Rate:"), st.value.Render(fmt.Sprintf("%.1f frames/s", stats.FrameRate)),
		st.label.Render("Error Rate:"), errorRate,
		st.label.Render("Running:"), st.value.Render(formatDuration(time.Since(stats.StartTime))),
	))
	return b.String()
}

// renderLatest shows the most recent frame of every command, by id
func (m model) renderLatest() string {
	ids := make([]int, 0, len(m.lastFrames))
	for id := range m.lastFrames {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)

	var b strings.Builder
	for _, id := range ids {
		b.WriteString(lorris.FormatPacket(m.lastFrames[uint8(id)], m.vocab))
	}
	return strings.TrimRight(b.String(), "\n")
}
