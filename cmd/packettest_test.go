// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Thermoquad/lorris/pkg/waveform"
)

func TestWaitForFrame_Success(t *testing.T) {
	stream := append([]byte{0x01, 0x02}, sinFrame(t, 0.5).Raw()...)

	var out, errOut bytes.Buffer
	code := waitForFrame(&out, &errOut, bytes.NewReader(stream), waveform.Vocabulary, time.Second)

	assert.Equal(t, exitOK, code)
	assert.Contains(t, out.String(), "skipped 2 invalid bytes")
	assert.Contains(t, out.String(), "Command: SIN (0x01)")
	assert.Empty(t, errOut.String())
}

func TestWaitForFrame_SkipsInvalid(t *testing.T) {
	var stream []byte
	stream = append(stream, sinFrame(t, 3).Raw()...)
	stream = append(stream, sinFrame(t, 0.1).Raw()...)

	var out, errOut bytes.Buffer
	code := waitForFrame(&out, &errOut, bytes.NewReader(stream), waveform.Vocabulary, time.Second)
	assert.Equal(t, exitOK, code)
}

func TestWaitForFrame_EOF(t *testing.T) {
	var out, errOut bytes.Buffer
	code := waitForFrame(&out, &errOut, bytes.NewReader([]byte{0x00, 0x01}), nil, time.Second)

	assert.Equal(t, exitConnFailure, code)
	assert.Contains(t, errOut.String(), "Read error")
}

func TestWaitForFrame_Timeout(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()

	var out, errOut bytes.Buffer
	code := waitForFrame(&out, &errOut, r, nil, 20*time.Millisecond)

	assert.Equal(t, exitTimeout, code)
	assert.Contains(t, errOut.String(), "TIMEOUT")
}
