// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lorris

import "io"

// Reader decodes frames from a byte stream such as a serial port, a
// WebSocket bridge or a connected UDP socket.
type Reader struct {
	r       io.Reader
	parser  *PacketParser
	buf     []byte
	pending []byte
	err     error
}

// NewReader creates a frame reader on top of r
func NewReader(r io.Reader) *Reader {
	return NewReaderWithParser(r, NewPacketParser())
}

// NewReaderWithParser creates a frame reader using an existing parser
func NewReaderWithParser(r io.Reader, parser *PacketParser) *Reader {
	return &Reader{
		r:      r,
		parser: parser,
		buf:    make([]byte, 512),
	}
}

// ReadPacket blocks until a complete frame has been decoded and returns it.
// The packet is owned by the caller. Read errors are returned once all
// bytes read before the error have been decoded.
func (fr *Reader) ReadPacket() (*Packet, error) {
	for {
		for i, b := range fr.pending {
			if fr.parser.AddByte(b) {
				fr.pending = fr.pending[i+1:]
				return fr.parser.Take(), nil
			}
		}
		fr.pending = nil

		if fr.err != nil {
			err := fr.err
			fr.err = nil
			return nil, err
		}

		n, err := fr.r.Read(fr.buf)
		if n > 0 {
			fr.pending = fr.buf[:n]
		}
		if err != nil {
			fr.err = err
		}
	}
}

// Discarded returns the number of bytes dropped while resynchronizing
func (fr *Reader) Discarded() uint64 {
	return fr.parser.Discarded()
}

// Parser returns the underlying parser
func (fr *Reader) Parser() *PacketParser {
	return fr.parser
}
