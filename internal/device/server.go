// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package device runs a simulated Lorris peer on a UDP port.
package device

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/pion/logging"

	"github.com/Thermoquad/lorris/internal/metrics"
	"github.com/Thermoquad/lorris/internal/transport"
	"github.com/Thermoquad/lorris/pkg/lorris"
)

// Peer is the application side of a simulated device
type Peer interface {
	// Handle applies a command frame received from the controller
	Handle(p *lorris.Packet) error

	// Telemetry emits one period's frames. The packet passed to emit is
	// reused after emit returns.
	Telemetry(emit func(*lorris.Packet) error) error

	// Interval returns the telemetry period. It may change after Handle.
	Interval() time.Duration
}

// ErrNoPeer is returned by NewServer without a Peer
var ErrNoPeer = errors.New("device: no peer configured")

// waitLogInterval is how often Run reports that it is still waiting
const waitLogInterval = time.Second

const (
	// maxPeers bounds the number of remote addresses with a decoder.
	// The least recently seen one is evicted to make room.
	maxPeers = 64

	// peerIdleTimeout drops the decoder of a silent remote address
	peerIdleTimeout = time.Minute
)

// peerState is the decoder of one remote address
type peerState struct {
	parser   *lorris.PacketParser
	lastSeen time.Time
}

// ServerConfig configures a Server
type ServerConfig struct {
	// ListenAddr is the UDP address to listen on. Ignored if Conn is set.
	ListenAddr string

	// Conn is an optional pre-existing PacketConn
	Conn net.PacketConn

	// Peer handles commands and produces telemetry. Required.
	Peer Peer

	// Metrics counts frames. May be nil.
	Metrics *metrics.Collector

	// LoggerFactory creates loggers. If nil, the pion default is used.
	LoggerFactory logging.LoggerFactory
}

// Server receives commands over UDP and streams telemetry back to the
// most recent client.
//
// Each remote address gets its own decoder so interleaved datagrams from
// different controllers cannot corrupt each other's frames. Commands are
// applied and telemetry produced on the Run goroutine only.
type Server struct {
	udp     *transport.UDP
	peer    Peer
	metrics *metrics.Collector
	log     logging.LeveledLogger

	mu     sync.Mutex
	peers  map[string]*peerState
	client net.Addr
	now    func() time.Time

	commands   chan *lorris.Packet
	clientSeen chan struct{}
}

// NewServer binds the UDP socket. Call Run to start serving.
func NewServer(config ServerConfig) (*Server, error) {
	if config.Peer == nil {
		return nil, ErrNoPeer
	}
	factory := config.LoggerFactory
	if factory == nil {
		factory = logging.NewDefaultLoggerFactory()
	}

	s := &Server{
		peer:       config.Peer,
		metrics:    config.Metrics,
		log:        factory.NewLogger("device"),
		peers:      make(map[string]*peerState),
		now:        time.Now,
		commands:   make(chan *lorris.Packet, 64),
		clientSeen: make(chan struct{}, 1),
	}

	udp, err := transport.NewUDP(transport.UDPConfig{
		Conn:          config.Conn,
		ListenAddr:    config.ListenAddr,
		Handler:       s.handleDatagram,
		LoggerFactory: factory,
	})
	if err != nil {
		return nil, err
	}
	s.udp = udp
	return s, nil
}

// LocalAddr returns the bound address
func (s *Server) LocalAddr() net.Addr {
	return s.udp.LocalAddr()
}

// Client returns the address telemetry is sent to, or nil before the first
// datagram
func (s *Server) Client() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client
}

// handleDatagram runs on the transport read loop
func (s *Server) handleDatagram(d transport.Datagram) {
	key := d.Addr.String()

	s.mu.Lock()
	first := s.client == nil
	s.client = d.Addr
	ps, ok := s.peers[key]
	if !ok {
		if len(s.peers) >= maxPeers {
			s.evictOldestLocked()
		}
		ps = &peerState{parser: lorris.NewPacketParser()}
		s.peers[key] = ps
		s.metrics.SetClients(len(s.peers))
	}
	ps.lastSeen = s.now()
	pp := ps.parser
	before := pp.Discarded()

	var frames []*lorris.Packet
	for _, b := range d.Data {
		if pp.AddByte(b) {
			frames = append(frames, pp.Take())
		}
	}
	discarded := pp.Discarded() - before
	s.mu.Unlock()

	if first {
		s.log.Infof("Received data from %s", key)
	}
	if len(d.Data) == 0 {
		s.log.Debugf("hello from %s", key)
	}
	s.metrics.AddDiscarded(discarded)
	select {
	case s.clientSeen <- struct{}{}:
	default:
	}

	for _, f := range frames {
		select {
		case s.commands <- f:
		default:
			s.log.Warnf("command queue full, dropping %s from %s", f, key)
		}
	}
}

// evictOldestLocked drops the least recently seen decoder. s.mu must be held.
func (s *Server) evictOldestLocked() {
	var oldest string
	var oldestSeen time.Time
	for key, ps := range s.peers {
		if oldest == "" || ps.lastSeen.Before(oldestSeen) {
			oldest, oldestSeen = key, ps.lastSeen
		}
	}
	if oldest != "" {
		delete(s.peers, oldest)
		s.log.Debugf("evicted decoder of %s", oldest)
	}
}

// prunePeers drops decoders idle for longer than peerIdleTimeout and
// returns how many were removed
func (s *Server) prunePeers() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-peerIdleTimeout)
	removed := 0
	for key, ps := range s.peers {
		if ps.lastSeen.Before(cutoff) {
			delete(s.peers, key)
			removed++
		}
	}
	if removed > 0 {
		s.metrics.SetClients(len(s.peers))
	}
	return removed
}

// peerCount returns the number of remote addresses with a decoder
func (s *Server) peerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.peers)
}

// Run serves until ctx is cancelled. Telemetry starts once a client has
// sent at least one datagram.
func (s *Server) Run(ctx context.Context) error {
	if err := s.udp.Start(); err != nil {
		return err
	}
	defer s.udp.Stop()

	s.log.Infof("UDP Lorris server listening on %s", s.udp.LocalAddr())
	s.log.Info("Waiting for client connection...")

	waiting := time.NewTicker(waitLogInterval)
	defer waiting.Stop()

	prune := time.NewTicker(peerIdleTimeout / 2)
	defer prune.Stop()

	var ticker *time.Ticker
	var tick <-chan time.Time
	interval := s.peer.Interval()
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-waiting.C:
			if ticker == nil {
				s.log.Info("Still waiting for client connection...")
			}

		case <-prune.C:
			if n := s.prunePeers(); n > 0 {
				s.log.Debugf("dropped %d idle decoders", n)
			}

		case <-s.clientSeen:
			if ticker == nil {
				ticker = time.NewTicker(interval)
				tick = ticker.C
				waiting.Stop()
			}

		case p := <-s.commands:
			s.metrics.ObserveRX(p)
			if err := s.peer.Handle(p); err != nil {
				s.log.Warnf("rejected %s: %v", p, err)
				continue
			}
			// Tick rate may have changed
			if next := s.peer.Interval(); next != interval && next > 0 {
				interval = next
				if ticker != nil {
					ticker.Reset(interval)
				}
			}

		case <-tick:
			s.sendTelemetry()
		}
	}
}

func (s *Server) sendTelemetry() {
	client := s.Client()
	if client == nil {
		return
	}
	err := s.peer.Telemetry(func(p *lorris.Packet) error {
		if err := s.udp.SendPacket(p, client); err != nil {
			return err
		}
		s.metrics.ObserveTX(p)
		return nil
	})
	if err != nil {
		s.log.Warnf("telemetry to %s failed: %v", client, err)
	}
}
