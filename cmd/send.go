// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/lorris/pkg/lorris"
)

var sendEncoding string

var sendCmd = &cobra.Command{
	Use:   "send <command> [type:value...]",
	Short: "Build a frame from typed fields and send or print it",
	Long: `Build a Lorris frame and send it on the connection or print it as text.

The command is a numeric id (decimal or 0x hex) or a name from --vocab.
Each field is appended in order, little-endian:

  u8:N  u16:N  u32:N   unsigned integers
  i8:N  i16:N  i32:N   signed integers
  f32:X f64:X          floats (double is an alias of f64)
  hex:AABB             raw bytes
  str:text             bytes of the text

Encodings:
  raw     write the frame to the connection (default)
  base64  print base64 text
  latin1  print the frame as ISO-8859-1 text
  hex     print lowercase hex

Example:
  lorris --udp 127.0.0.1:9999 --vocab waveform send SET_PARAMS u32:50 f64:0.25`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVarP(&sendEncoding, "encoding", "e", "raw", "Output encoding (raw, base64, latin1, hex)")
}

func runSend(cmd *cobra.Command, args []string) error {
	vocab, err := lookupVocabulary(cfg.Vocabulary)
	if err != nil {
		return err
	}

	p, err := buildFrame(vocab, cfg.Device, args[0], args[1:])
	if err != nil {
		return err
	}
	for _, e := range vocab.Validate(p) {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", e.Message)
	}

	if sendEncoding != "raw" {
		return printFrame(cmd.OutOrStdout(), p, sendEncoding)
	}

	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := p.WriteTo(conn); err != nil {
		return fmt.Errorf("send failed: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Sent %s to %s\n", p, connInfo)
	return nil
}

// printFrame writes p in a text encoding
func printFrame(w io.Writer, p *lorris.Packet, encoding string) error {
	switch strings.ToLower(encoding) {
	case "base64":
		fmt.Fprintln(w, p.ToBase64())
	case "latin1", "latin-1":
		fmt.Fprintln(w, p.RawLatin1())
	case "hex":
		fmt.Fprintln(w, p.ToHex())
	default:
		return fmt.Errorf("unknown encoding %q (use raw, base64, latin1 or hex)", encoding)
	}
	return nil
}

// parseCommand resolves a numeric id or a vocabulary name
func parseCommand(vocab *lorris.Vocabulary, s string) (uint8, error) {
	if n, err := strconv.ParseUint(s, 0, 8); err == nil {
		return uint8(n), nil
	}
	if c, ok := vocab.ByName(s); ok {
		return c.ID, nil
	}
	return 0, fmt.Errorf("unknown command %q in vocabulary %s", s, vocab.Name())
}

// buildFrame creates a frame from a command and typed field arguments
func buildFrame(vocab *lorris.Vocabulary, deviceID uint8, command string, fields []string) (*lorris.Packet, error) {
	id, err := parseCommand(vocab, command)
	if err != nil {
		return nil, err
	}

	p := lorris.NewPacket(id, deviceID)
	for _, f := range fields {
		if err := appendField(p, f); err != nil {
			return nil, fmt.Errorf("field %q: %w", f, err)
		}
	}
	return p, nil
}

func appendField(p *lorris.Packet, field string) error {
	kind, value, ok := strings.Cut(field, ":")
	if !ok {
		return fmt.Errorf("expected type:value")
	}

	switch strings.ToLower(kind) {
	case "u8":
		n, err := strconv.ParseUint(value, 0, 8)
		if err != nil {
			return err
		}
		return p.WriteUint8(uint8(n))
	case "u16":
		n, err := strconv.ParseUint(value, 0, 16)
		if err != nil {
			return err
		}
		return p.WriteUint16(uint16(n))
	case "u32":
		n, err := strconv.ParseUint(value, 0, 32)
		if err != nil {
			return err
		}
		return p.WriteUint32(uint32(n))
	case "i8":
		n, err := strconv.ParseInt(value, 0, 8)
		if err != nil {
			return err
		}
		return p.WriteInt8(int8(n))
	case "i16":
		n, err := strconv.ParseInt(value, 0, 16)
		if err != nil {
			return err
		}
		return p.WriteInt16(int16(n))
	case "i32":
		n, err := strconv.ParseInt(value, 0, 32)
		if err != nil {
			return err
		}
		return p.WriteInt32(int32(n))
	case "f32":
		x, err := strconv.ParseFloat(value, 32)
		if err != nil {
			return err
		}
		return p.WriteFloat32(float32(x))
	case "f64", "double":
		x, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		return p.WriteFloat64(x)
	case "hex":
		data, err := hex.DecodeString(value)
		if err != nil {
			return err
		}
		return writeBytes(p, data)
	case "str":
		return writeBytes(p, []byte(value))
	default:
		return fmt.Errorf("unknown field type %q", kind)
	}
}

// writeBytes appends data, failing without a partial write if it does not fit
func writeBytes(p *lorris.Packet, data []byte) error {
	if int(p.DataLength())+len(data) > lorris.MaxPayloadSize {
		return lorris.ErrOversizeWrite
	}
	for _, b := range data {
		if err := p.WriteUint8(b); err != nil {
			return err
		}
	}
	return nil
}
