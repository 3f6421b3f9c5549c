// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lorris

import (
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Record is one captured frame. Captures are a sequence of CBOR maps:
//
//	{1: timestamp-ns, 2: source, 3: frame-bytes}
type Record struct {
	Timestamp int64  `cbor:"1,keyasint"`
	Source    string `cbor:"2,keyasint,omitempty"`
	Frame     []byte `cbor:"3,keyasint"`
}

// Time returns the capture timestamp
func (r Record) Time() time.Time {
	return time.Unix(0, r.Timestamp)
}

// Packet decodes the captured frame
func (r Record) Packet() (*Packet, error) {
	p, err := ParseRaw(r.Frame)
	if err != nil {
		return nil, err
	}
	p.timestamp = r.Time()
	return p, nil
}

// CaptureWriter appends frames to a capture stream
type CaptureWriter struct {
	enc   *cbor.Encoder
	count int
}

// NewCaptureWriter creates a capture writer on w
func NewCaptureWriter(w io.Writer) *CaptureWriter {
	return &CaptureWriter{enc: cbor.NewEncoder(w)}
}

// Write records a frame with its timestamp and source label
func (c *CaptureWriter) Write(p *Packet, source string) error {
	rec := Record{
		Timestamp: p.Timestamp().UnixNano(),
		Source:    source,
		Frame:     p.Raw(),
	}
	if err := c.enc.Encode(rec); err != nil {
		return fmt.Errorf("failed to encode capture record: %w", err)
	}
	c.count++
	return nil
}

// Count returns the number of records written
func (c *CaptureWriter) Count() int {
	return c.count
}

// CaptureReader reads records from a capture stream
type CaptureReader struct {
	dec *cbor.Decoder
}

// NewCaptureReader creates a capture reader on r
func NewCaptureReader(r io.Reader) *CaptureReader {
	return &CaptureReader{dec: cbor.NewDecoder(r)}
}

// Next returns the next record. It returns io.EOF at the end of the stream.
func (c *CaptureReader) Next() (Record, error) {
	var rec Record
	if err := c.dec.Decode(&rec); err != nil {
		if err == io.EOF {
			return Record{}, io.EOF
		}
		return Record{}, fmt.Errorf("failed to decode capture record: %w", err)
	}
	return rec, nil
}
