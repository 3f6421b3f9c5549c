// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/lorris/pkg/lorris"
)

func writeCapture(t *testing.T, records ...lorris.Record) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	enc := cbor.NewEncoder(&buf)
	for _, rec := range records {
		require.NoError(t, enc.Encode(rec))
	}
	return &buf
}

func TestReplayCapture_Pacing(t *testing.T) {
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	frame := sinFrame(t, 0.5).Raw()
	buf := writeCapture(t,
		lorris.Record{Timestamp: base.UnixNano(), Source: "udp", Frame: frame},
		lorris.Record{Timestamp: base.Add(100 * time.Millisecond).UnixNano(), Source: "udp", Frame: frame},
		lorris.Record{Timestamp: base.Add(200 * time.Millisecond).UnixNano(), Frame: []byte{0x01, 0x02}},
		lorris.Record{Timestamp: base.Add(300 * time.Millisecond).UnixNano(), Source: "udp", Frame: frame},
	)

	var sleeps []time.Duration
	var sources []string
	skipped := 0
	n, err := replayCapture(lorris.NewCaptureReader(buf), 2,
		func(d time.Duration) { sleeps = append(sleeps, d) },
		func(rec lorris.Record, p *lorris.Packet) error {
			sources = append(sources, rec.Source)
			assert.Equal(t, rec.Time(), p.Timestamp())
			return nil
		},
		func(error) { skipped++ },
	)

	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 1, skipped)
	assert.Equal(t, []string{"udp", "udp", "udp"}, sources)
	assert.Equal(t, []time.Duration{50 * time.Millisecond, 100 * time.Millisecond}, sleeps)
}

func TestReplayCapture_NoDelay(t *testing.T) {
	base := time.Now()
	frame := sinFrame(t, 0.5).Raw()
	buf := writeCapture(t,
		lorris.Record{Timestamp: base.UnixNano(), Frame: frame},
		lorris.Record{Timestamp: base.Add(time.Second).UnixNano(), Frame: frame},
	)

	n, err := replayCapture(lorris.NewCaptureReader(buf), 0,
		func(time.Duration) { t.Fatal("unexpected sleep") },
		func(lorris.Record, *lorris.Packet) error { return nil },
		func(error) {},
	)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestReplayCapture_EmitError(t *testing.T) {
	frame := sinFrame(t, 0.5).Raw()
	buf := writeCapture(t,
		lorris.Record{Timestamp: 1, Frame: frame},
		lorris.Record{Timestamp: 2, Frame: frame},
	)

	n, err := replayCapture(lorris.NewCaptureReader(buf), 0, func(time.Duration) {},
		func(lorris.Record, *lorris.Packet) error { return assert.AnError },
		func(error) {},
	)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 0, n)
}

func TestReplayCapture_Corrupt(t *testing.T) {
	buf := bytes.NewBuffer([]byte{0xFF, 0xFF, 0xFF})
	_, err := replayCapture(lorris.NewCaptureReader(buf), 1, func(time.Duration) {},
		func(lorris.Record, *lorris.Packet) error { return nil },
		func(error) {},
	)
	assert.Error(t, err)
}
