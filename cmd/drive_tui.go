// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/time/rate"

	"github.com/Thermoquad/lorris/pkg/lorris"
	"github.com/Thermoquad/lorris/pkg/robutek"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

const (
	// keepaliveInterval must stay below robutek.StopTimeout
	keepaliveInterval = robutek.StopTimeout / 4

	// Minimum spacing of SET_PARAMS frames caused by key repeat
	minSendInterval = 50 * time.Millisecond
)

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// driveKeyMap lists the drive bindings shown in the help line
type driveKeyMap struct {
	Forward  key.Binding
	Backward key.Binding
	Left     key.Binding
	Right    key.Binding
	Stop     key.Binding
	Quit     key.Binding
}

func newDriveKeyMap() driveKeyMap {
	return driveKeyMap{
		Forward:  key.NewBinding(key.WithKeys("w", "up"), key.WithHelp("w/↑", "forward")),
		Backward: key.NewBinding(key.WithKeys("s", "down"), key.WithHelp("s/↓", "backward")),
		Left:     key.NewBinding(key.WithKeys("a", "left"), key.WithHelp("a/←", "left")),
		Right:    key.NewBinding(key.WithKeys("d", "right"), key.WithHelp("d/→", "right")),
		Stop:     key.NewBinding(key.WithKeys(" ", "x"), key.WithHelp("space", "stop")),
		Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k driveKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Forward, k.Backward, k.Left, k.Right, k.Stop, k.Quit}
}

func (k driveKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Forward, k.Backward, k.Left, k.Right}, {k.Stop, k.Quit}}
}

// frameSender transmits command frames
type frameSender interface {
	send(p *lorris.Packet) error
}

// driveModel is the Bubble Tea model for the drive TUI
type driveModel struct {
	sender   frameSender
	connInfo string
	deviceID uint8
	keys     driveKeyMap
	help     help.Model

	// Control
	direction robutek.Direction
	pending   bool // direction changed but not yet sent
	limiter   *rate.Limiter
	sent      uint64
	lastSent  time.Time

	// Monitoring
	telemetry     robutek.Telemetry
	stats         *lorris.Statistics
	errorLog      []errorLogEntry
	maxLogEntries int

	// UI state
	width          int
	height         int
	synchronized   bool
	quitting       bool
	connectionLost bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type driveTickMsg time.Time

type driveBatchMsg struct {
	messages []frameMsg
	syncMsg  *syncMsg
}

type reconnectedMsg struct {
	connInfo string
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func initialDriveModel(sender frameSender, connInfo string, deviceID uint8) driveModel {
	return driveModel{
		sender:        sender,
		connInfo:      connInfo,
		deviceID:      deviceID,
		keys:          newDriveKeyMap(),
		help:          help.New(),
		direction:     robutek.DirStop,
		limiter:       rate.NewLimiter(rate.Every(minSendInterval), 1),
		stats:         lorris.NewStatistics(),
		errorLog:      make([]errorLogEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m driveModel) Init() tea.Cmd {
	return driveTickCmd()
}

func driveTickCmd() tea.Cmd {
	return tea.Tick(minSendInterval, func(t time.Time) tea.Msg {
		return driveTickMsg(t)
	})
}

func (m driveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width

	case driveTickMsg:
		m.stats.CalculateRates()
		now := time.Time(msg)
		switch {
		case m.pending:
			m.trySend(now)
		case m.direction != robutek.DirStop && now.Sub(m.lastSent) >= keepaliveInterval:
			// Keep the watchdog armed
			m.pending = true
			m.trySend(now)
		}
		return m, driveTickCmd()

	case driveBatchMsg:
		if msg.syncMsg != nil {
			m.synchronized = true
			if msg.syncMsg.invalidBytes > 0 {
				m.addLogEntry(fmt.Sprintf("Synchronized after skipping %d invalid bytes", msg.syncMsg.invalidBytes), false)
			} else {
				m.addLogEntry("Synchronized", false)
			}
		}
		for _, data := range msg.messages {
			m.processFrame(data)
		}

	case connectionLostMsg:
		m.connectionLost = true
		m.addLogEntry(fmt.Sprintf("Connection lost (%v) - reconnecting...", msg.err), true)

	case reconnectedMsg:
		m.connectionLost = false
		m.connInfo = msg.connInfo
		m.synchronized = false
		m.addLogEntry("Reconnected", false)
		m.pending = true
	}

	return m, nil
}

func (m driveModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		m.quitting = true
		return m, tea.Quit
	}

	d, ok := robutek.DirectionFromKey(msg.String())
	if !ok {
		return m, nil
	}
	if d != m.direction {
		m.addLogEntry(fmt.Sprintf("Direction: %s", d), false)
	}
	m.direction = d
	m.pending = true
	m.trySend(time.Now())
	return m, nil
}

// trySend transmits the current direction if the limiter allows it.
// Otherwise the frame stays pending for the next tick.
func (m *driveModel) trySend(now time.Time) {
	if !m.pending || m.connectionLost {
		return
	}
	if !m.limiter.AllowN(now, 1) {
		return
	}
	m.pending = false
	m.lastSent = now
	if err := m.sender.send(robutek.NewSetParams(m.deviceID, m.direction)); err != nil {
		m.addLogEntry(fmt.Sprintf("Send failed: %v", err), true)
		return
	}
	m.sent++
}

func (m *driveModel) processFrame(msg frameMsg) {
	m.stats.Update(msg.packet, msg.validationErrors)
	m.stats.SetDiscarded(msg.discarded)

	if len(msg.validationErrors) > 0 {
		name := robutek.Vocabulary.CommandName(msg.packet.Command())
		for _, err := range msg.validationErrors {
			m.addLogEntry(fmt.Sprintf("%s: %s", name, err.Message), true)
		}
		return
	}

	wasPressed := m.telemetry.Button
	if m.telemetry.Apply(msg.packet) && msg.packet.Command() == robutek.CmdButton && wasPressed != m.telemetry.Button {
		if m.telemetry.Button {
			m.addLogEntry("Button pressed", false)
		} else {
			m.addLogEntry("Button released", false)
		}
	}
}

func (m *driveModel) addLogEntry(message string, isError bool) {
	m.errorLog = append(m.errorLog, errorLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	})
	if len(m.errorLog) > m.maxLogEntries {
		m.errorLog = m.errorLog[len(m.errorLog)-m.maxLogEntries:]
	}
}

//////////////////////////////////////////////////////////////
// View
//////////////////////////////////////////////////////////////

func (m driveModel) View() string {
	if m.quitting {
		return "Stopping robot...\n"
	}

	st := newTUIStyles()

	var s strings.Builder
	s.WriteString(st.title.Render("LORRIS - ROBUTEK DRIVE"))
	s.WriteString("\n")
	s.WriteString(st.header.Render(fmt.Sprintf("%s | Device %d", m.connInfo, m.deviceID)))
	s.WriteString("\n")
	s.WriteString(m.help.View(m.keys))
	s.WriteString("\n\n")

	switch {
	case m.connectionLost:
		s.WriteString(st.err.Render("✗ Connection lost - reconnecting..."))
	case !m.synchronized:
		s.WriteString(st.warning.Render("⏳ Waiting for telemetry..."))
	default:
		s.WriteString(st.value.Render("✓ Receiving telemetry"))
	}
	s.WriteString("\n\n")

	left, right := m.direction.Speeds()
	var control strings.Builder
	control.WriteString(fmt.Sprintf("%s %s   %s %s\n",
		st.label.Render("Direction:"), st.value.Render(strings.ToUpper(m.direction.String())),
		st.label.Render("Speeds:"), st.value.Render(fmt.Sprintf("L %+d  R %+d", left, right)),
	))
	control.WriteString(fmt.Sprintf("%s %s", st.label.Render("Commands sent:"), st.value.Render(fmt.Sprintf("%d", m.sent))))
	s.WriteString(st.box.Render(control.String()))
	s.WriteString("\n\n")

	s.WriteString(st.label.Render("Telemetry:"))
	s.WriteString("\n")
	var tel strings.Builder
	button := st.header.Render("released")
	if m.telemetry.Button {
		button = st.warning.Render("PRESSED")
	}
	tel.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		st.label.Render("Encoder L:"), st.value.Render(fmt.Sprintf("%d", m.telemetry.EncoderLeft)),
		st.label.Render("Encoder R:"), st.value.Render(fmt.Sprintf("%d", m.telemetry.EncoderRight)),
		st.label.Render("Button:"), button,
	))
	tel.WriteString(fmt.Sprintf("%s %s   %s %s",
		st.label.Render("Frames:"), st.value.Render(fmt.Sprintf("%d", m.stats.TotalFrames)),
		st.label.Render("Rate:"), st.value.Render(fmt.Sprintf("%.1f frames/s", m.stats.FrameRate)),
	))
	s.WriteString(st.box.Render(tel.String()))
	s.WriteString("\n\n")

	s.WriteString(st.label.Render("Recent Events:"))
	s.WriteString("\n")
	s.WriteString(renderEventLog(st, m.errorLog, m.height-18, m.width))

	return s.String()
}
