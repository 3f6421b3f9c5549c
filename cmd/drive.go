// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/lorris/pkg/lorris"
	"github.com/Thermoquad/lorris/pkg/robutek"
)

var driveCmd = &cobra.Command{
	Use:   "drive",
	Short: "Interactive TUI for driving a robutek robot",
	Long: `Drive a robutek robot via an interactive terminal UI.

Keys:
  w / up      forward
  s / down    backward
  a / left    turn left
  d / right   turn right
  space / x   stop
  q           quit

The current direction is resent periodically so the robot's stop watchdog
stays armed while a key is held. Encoder and button telemetry are shown
live.

Features:
  - Real-time telemetry display
  - Statistics tracking
  - Event logging
  - Automatic reconnection on connection loss

Supports serial, WebSocket and UDP connections.`,
	RunE: runDrive,
}

var errNotConnected = errors.New("not connected")

func init() {
	rootCmd.AddCommand(driveCmd)
}

// connectionManager handles connection lifecycle and reconnection
type connectionManager struct {
	conn     Connection
	connInfo string
	mu       sync.RWMutex
	p        *tea.Program
	done     chan struct{}
}

func (cm *connectionManager) getConn() Connection {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.conn
}

func (cm *connectionManager) setConn(conn Connection, connInfo string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.conn = conn
	cm.connInfo = connInfo
}

// send writes a frame to the current connection
func (cm *connectionManager) send(p *lorris.Packet) error {
	conn := cm.getConn()
	if conn == nil {
		return errNotConnected
	}
	_, err := p.WriteTo(conn)
	return err
}

func runDrive(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}

	cm := &connectionManager{
		conn:     conn,
		connInfo: connInfo,
		done:     make(chan struct{}),
	}

	m := initialDriveModel(cm, connInfo, cfg.Device)

	p := tea.NewProgram(m, tea.WithAltScreen())
	cm.p = p

	go cm.readerLoop()

	_, err = p.Run()

	// Leave the robot stopped
	cm.send(robutek.NewSetParams(cfg.Device, robutek.DirStop))

	close(cm.done)
	cm.getConn().Close()
	if err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

// readerLoop handles reading from connection with automatic reconnection
func (cm *connectionManager) readerLoop() {
	for {
		select {
		case <-cm.done:
			return
		default:
		}

		err := cm.readFromConnection()
		if err == nil {
			return // Shutdown requested
		}

		cm.p.Send(connectionLostMsg{err: err})
		if !cm.reconnect() {
			return // Shutdown requested during reconnect
		}
	}
}

// readFromConnection decodes frames until the connection fails and
// forwards them to the TUI in batches. It returns nil on shutdown.
func (cm *connectionManager) readFromConnection() error {
	batchChan := make(chan frameMsg, 100)
	syncChan := make(chan syncMsg, 1)
	readerDone := make(chan error, 1)

	go func() {
		reader := lorris.NewReader(cm.getConn())
		synchronized := false
		for {
			packet, err := reader.ReadPacket()
			if err != nil {
				readerDone <- err
				return
			}
			if !synchronized {
				synchronized = true
				syncChan <- syncMsg{invalidBytes: reader.Discarded()}
			}
			select {
			case batchChan <- frameMsg{
				packet:           packet,
				validationErrors: robutek.Vocabulary.Validate(packet),
				discarded:        reader.Discarded(),
			}:
			default:
			}
		}
	}()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-cm.done:
			return nil

		case err := <-readerDone:
			select {
			case <-cm.done:
				return nil
			default:
				return err
			}

		case <-ticker.C:
			var batch driveBatchMsg

			select {
			case sm := <-syncChan:
				batch.syncMsg = &sm
			default:
			}

		drainLoop:
			for {
				select {
				case msg := <-batchChan:
					batch.messages = append(batch.messages, msg)
				default:
					break drainLoop
				}
			}

			if batch.syncMsg != nil || len(batch.messages) > 0 {
				cm.p.Send(batch)
			}
		}
	}
}

// reconnect attempts to reconnect with exponential backoff
// Returns false if shutdown was requested during reconnection
func (cm *connectionManager) reconnect() bool {
	if conn := cm.getConn(); conn != nil {
		conn.Close()
	}

	backoff := 1 * time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-cm.done:
			return false
		case <-time.After(backoff):
		}

		conn, connInfo, err := OpenConnection()
		if err == nil {
			cm.setConn(conn, connInfo)
			cm.p.Send(reconnectedMsg{connInfo: connInfo})
			return true
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
