// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"go.bug.st/serial"
	"golang.org/x/term"

	"github.com/Thermoquad/lorris/internal/config"
	"github.com/Thermoquad/lorris/internal/transport"
)

// Connection provides a common interface for reading/writing bytes from
// serial, WebSocket or UDP
type Connection interface {
	io.Reader
	io.Writer
	io.Closer
}

// SerialConnection wraps a serial port
type SerialConnection struct {
	port serial.Port
}

func (s *SerialConnection) Read(p []byte) (int, error) {
	return s.port.Read(p)
}

func (s *SerialConnection) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

func (s *SerialConnection) Close() error {
	return s.port.Close()
}

// ErrConnectionClosed is returned when reading from a closed connection
var ErrConnectionClosed = errors.New("connection closed")

// messageBuffer hands out one message at a time to byte-oriented readers
type messageBuffer struct {
	buf       []byte
	bufOffset int
}

func (m *messageBuffer) drain(p []byte) (int, bool) {
	if m.bufOffset < len(m.buf) {
		n := copy(p, m.buf[m.bufOffset:])
		m.bufOffset += n
		return n, true
	}
	return 0, false
}

func (m *messageBuffer) fill(data []byte, p []byte) int {
	m.buf = data
	m.bufOffset = copy(p, data)
	return m.bufOffset
}

// WebSocketConnection wraps a WebSocket connection for byte-level reading
type WebSocketConnection struct {
	conn   *websocket.Conn
	pend   messageBuffer
	closed bool // Track if connection has failed/closed
}

func (w *WebSocketConnection) Read(p []byte) (int, error) {
	// Return immediately if connection is known to be closed
	if w.closed {
		return 0, ErrConnectionClosed
	}

	if n, ok := w.pend.drain(p); ok {
		return n, nil
	}

	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			// Mark connection as closed to prevent further read attempts
			w.closed = true
			return 0, err
		}

		// Lorris frames travel in binary messages
		if messageType != websocket.BinaryMessage {
			continue
		}

		return w.pend.fill(data, p), nil
	}
}

func (w *WebSocketConnection) Write(p []byte) (int, error) {
	err := w.conn.WriteMessage(websocket.BinaryMessage, p)
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *WebSocketConnection) Close() error {
	return w.conn.Close()
}

// UDPConnection wraps a connected UDP socket. Each datagram is read whole
// and handed out across Read calls.
type UDPConnection struct {
	conn net.Conn
	buf  []byte
	pend messageBuffer
}

func (u *UDPConnection) Read(p []byte) (int, error) {
	if n, ok := u.pend.drain(p); ok {
		return n, nil
	}
	for {
		n, err := u.conn.Read(u.buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return 0, ErrConnectionClosed
			}
			return 0, err
		}
		if n == 0 {
			continue
		}
		data := make([]byte, n)
		copy(data, u.buf[:n])
		return u.pend.fill(data, p), nil
	}
}

func (u *UDPConnection) Write(p []byte) (int, error) {
	return u.conn.Write(p)
}

func (u *UDPConnection) Close() error {
	return u.conn.Close()
}

// OpenSerialConnection opens a serial port connection
func OpenSerialConnection(portName string, baudRate int) (Connection, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}

	return &SerialConnection{port: port}, nil
}

// OpenWebSocketConnection opens a WebSocket connection with HTTP Basic auth
func OpenWebSocketConnection(wsURL, username, password string, skipSSLVerify bool) (Connection, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
		// OK
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: skipSSLVerify,
		}
	}

	headers := http.Header{}
	if username != "" && password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}

	return &WebSocketConnection{conn: conn}, nil
}

// OpenUDPConnection connects a UDP socket to addr and announces the client
// with an empty datagram so the peer starts sending telemetry.
func OpenUDPConnection(addr string) (Connection, error) {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to open UDP %s: %w", addr, err)
	}
	if _, err := conn.Write(nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to announce to %s: %w", addr, err)
	}
	return &UDPConnection{conn: conn, buf: make([]byte, transport.MaxDatagramSize)}, nil
}

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	if pw := os.Getenv(config.EnvPrefix + "PASSWORD"); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// OpenConnection opens a WebSocket, UDP or serial connection, in that
// order of preference, from the effective configuration
func OpenConnection() (Connection, string, error) {
	if cfg.WebSocket.URL != "" {
		password := ""
		if cfg.WebSocket.Username != "" {
			var err error
			password, err = GetPassword()
			if err != nil {
				return nil, "", err
			}
		}

		conn, err := OpenWebSocketConnection(cfg.WebSocket.URL, cfg.WebSocket.Username, password, cfg.WebSocket.NoSSLVerify)
		if err != nil {
			return nil, "", err
		}

		return conn, fmt.Sprintf("WebSocket: %s", cfg.WebSocket.URL), nil
	}

	if cfg.UDP != "" {
		conn, err := OpenUDPConnection(cfg.UDP)
		if err != nil {
			return nil, "", err
		}
		return conn, fmt.Sprintf("UDP: %s", cfg.UDP), nil
	}

	if cfg.Serial.Port != "" {
		conn, err := OpenSerialConnection(cfg.Serial.Port, cfg.Serial.Baud)
		if err != nil {
			return nil, "", err
		}

		return conn, fmt.Sprintf("Serial: %s @ %d baud", cfg.Serial.Port, cfg.Serial.Baud), nil
	}

	return nil, "", fmt.Errorf("one of --port, --url or --udp must be specified")
}

// isClosed reports whether err means the connection is gone for good
func isClosed(err error) bool {
	return errors.Is(err, ErrConnectionClosed) || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
}
