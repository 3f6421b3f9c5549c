// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package device

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/pion/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/lorris/internal/metrics"
	"github.com/Thermoquad/lorris/internal/transport"
	"github.com/Thermoquad/lorris/pkg/lorris"
	"github.com/Thermoquad/lorris/pkg/waveform"
)

// recordingPeer records handled commands and emits one frame per tick
type recordingPeer struct {
	mu      sync.Mutex
	handled []*lorris.Packet
	got     chan *lorris.Packet
}

func newRecordingPeer() *recordingPeer {
	return &recordingPeer{got: make(chan *lorris.Packet, 16)}
}

func (r *recordingPeer) Handle(p *lorris.Packet) error {
	r.mu.Lock()
	r.handled = append(r.handled, p)
	r.mu.Unlock()
	r.got <- p
	return nil
}

func (r *recordingPeer) Telemetry(emit func(*lorris.Packet) error) error {
	return emit(lorris.NewPacket(0x10, 1))
}

func (r *recordingPeer) Interval() time.Duration { return time.Hour }

func startServer(t *testing.T, peer Peer, m *metrics.Collector) *Server {
	t.Helper()
	s, err := NewServer(ServerConfig{
		ListenAddr:    "127.0.0.1:0",
		Peer:          peer,
		Metrics:       m,
		LoggerFactory: logging.NewDefaultLoggerFactory(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("server did not stop")
		}
	})
	return s
}

func newClient(t *testing.T) net.PacketConn {
	t.Helper()
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestNewServer_RequiresPeer(t *testing.T) {
	_, err := NewServer(ServerConfig{ListenAddr: "127.0.0.1:0"})
	assert.ErrorIs(t, err, ErrNoPeer)
}

func TestServer_ParserPerPeer(t *testing.T) {
	peer := newRecordingPeer()
	s := startServer(t, peer, nil)

	a, b := newClient(t), newClient(t)

	frameA := lorris.NewPacket(1, 1)
	frameA.WriteUint32(0xAAAAAAAA)
	frameB := lorris.NewPacket(2, 1)
	frameB.WriteUint32(0xBBBBBBBB)
	rawA, rawB := frameA.Raw(), frameB.Raw()

	// Interleave halves of both frames
	_, err := a.WriteTo(rawA[:3], s.LocalAddr())
	require.NoError(t, err)
	_, err = b.WriteTo(rawB[:5], s.LocalAddr())
	require.NoError(t, err)
	_, err = a.WriteTo(rawA[3:], s.LocalAddr())
	require.NoError(t, err)
	_, err = b.WriteTo(rawB[5:], s.LocalAddr())
	require.NoError(t, err)

	seen := map[uint8]uint32{}
	for len(seen) < 2 {
		select {
		case p := <-peer.got:
			seen[p.Command()] = p.ReadUint32()
		case <-time.After(2 * time.Second):
			t.Fatalf("timeout, got %v", seen)
		}
	}
	assert.Equal(t, uint32(0xAAAAAAAA), seen[1])
	assert.Equal(t, uint32(0xBBBBBBBB), seen[2])

	require.Eventually(t, func() bool {
		return s.Client() != nil && s.Client().String() == b.LocalAddr().String()
	}, time.Second, 10*time.Millisecond)
}

func TestServer_StreamsWaveformTelemetry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewCollector(reg, waveform.Vocabulary)
	gen := waveform.NewGenerator(1, logging.NewDefaultLoggerFactory())
	s := startServer(t, gen, m)

	client := newClient(t)
	params := waveform.NewSetParams(1, waveform.Params{TickRateMs: 10, Step: 0.5})
	_, err := client.WriteTo(params.Raw(), s.LocalAddr())
	require.NoError(t, err)

	pp := lorris.NewPacketParser()
	var sample waveform.Sample
	buf := make([]byte, 1024)
	samples := 0
	deadline := time.Now().Add(3 * time.Second)
	for samples < 3 {
		require.NoError(t, client.SetReadDeadline(deadline))
		n, _, err := client.ReadFrom(buf)
		require.NoError(t, err)
		pp.Feed(buf[:n], func(p *lorris.Packet) {
			if sample.Apply(p) {
				samples++
				assert.True(t, sample.Consistent(), sample.String())
			}
		})
	}

	assert.Equal(t, 10*time.Millisecond, gen.Interval())
	assert.Equal(t, 0.5, sample.Step)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Frames.WithLabelValues(metrics.DirectionRX, "SET_PARAMS")))
	assert.GreaterOrEqual(t, testutil.ToFloat64(m.Frames.WithLabelValues(metrics.DirectionTX, "SIN")), 3.0)
}

func TestServer_CountsDiscardedBytes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewCollector(reg, nil)
	peer := newRecordingPeer()
	s := startServer(t, peer, m)

	client := newClient(t)
	_, err := client.WriteTo([]byte{0x01, 0x02, 0x03, 0xFF, 0x01, 0x05, 0x00}, s.LocalAddr())
	require.NoError(t, err)

	select {
	case p := <-peer.got:
		assert.Equal(t, uint8(5), p.Command())
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for frame")
	}
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Discarded))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Clients))
}

func TestServer_EmptyDatagramStartsTelemetry(t *testing.T) {
	peer := newRecordingPeer()
	s := startServer(t, peer, nil)

	client := newClient(t)
	_, err := client.WriteTo(nil, s.LocalAddr())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return s.Client() != nil && s.Client().String() == client.LocalAddr().String()
	}, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, peer.got)
}

func TestServer_EvictsLeastRecentlySeenPeer(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewCollector(reg, nil)
	s, err := NewServer(ServerConfig{ListenAddr: "127.0.0.1:0", Peer: newRecordingPeer(), Metrics: m})
	require.NoError(t, err)
	t.Cleanup(func() { s.udp.Stop() })

	clock := time.Unix(1000, 0)
	s.now = func() time.Time { return clock }

	addr := func(port int) net.Addr {
		return &net.UDPAddr{IP: net.IPv4(10, 0, 0, 1), Port: port}
	}
	for port := 1; port <= maxPeers; port++ {
		clock = clock.Add(time.Millisecond)
		s.handleDatagram(transport.Datagram{Addr: addr(port)})
	}
	require.Equal(t, maxPeers, s.peerCount())

	// Port 1 talks again, so port 2 becomes the oldest
	clock = clock.Add(time.Millisecond)
	s.handleDatagram(transport.Datagram{Addr: addr(1)})

	clock = clock.Add(time.Millisecond)
	s.handleDatagram(transport.Datagram{Addr: addr(maxPeers + 1)})

	assert.Equal(t, maxPeers, s.peerCount())
	assert.Contains(t, s.peers, addr(1).String())
	assert.NotContains(t, s.peers, addr(2).String())
	assert.Contains(t, s.peers, addr(maxPeers+1).String())
	assert.Equal(t, float64(maxPeers), testutil.ToFloat64(m.Clients))
}

func TestServer_PrunesIdlePeers(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewCollector(reg, nil)
	s, err := NewServer(ServerConfig{ListenAddr: "127.0.0.1:0", Peer: newRecordingPeer(), Metrics: m})
	require.NoError(t, err)
	t.Cleanup(func() { s.udp.Stop() })

	clock := time.Unix(1000, 0)
	s.now = func() time.Time { return clock }

	idle := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 1}
	active := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 2}
	s.handleDatagram(transport.Datagram{Addr: idle})

	clock = clock.Add(peerIdleTimeout)
	s.handleDatagram(transport.Datagram{Addr: active})
	assert.Zero(t, s.prunePeers(), "exactly the timeout is not idle yet")

	clock = clock.Add(time.Second)
	assert.Equal(t, 1, s.prunePeers())
	assert.Equal(t, 1, s.peerCount())
	assert.Contains(t, s.peers, active.String())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Clients))
}
