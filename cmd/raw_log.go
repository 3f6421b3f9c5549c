// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/lorris/pkg/lorris"
)

var (
	rawLogRecord string
	rawLogHex    bool
)

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display raw frame log in human-readable format",
	Long: `Continuously decode and display Lorris frames as they arrive.

Each frame is shown with its timestamp, command, device id and payload. With
--vocab the payload is decoded field by field, otherwise it is hex dumped.

With --record every frame is also appended to a CBOR capture file that the
replay command can play back.

Supports serial, WebSocket and UDP connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().StringVar(&rawLogRecord, "record", "", "Append frames to a capture file")
	rawLogCmd.Flags().BoolVar(&rawLogHex, "hex", false, "Also print each frame as hex")
}

func runRawLog(cmd *cobra.Command, args []string) error {
	vocab, err := lookupVocabulary(cfg.Vocabulary)
	if err != nil {
		return err
	}

	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	var capture *lorris.CaptureWriter
	if rawLogRecord != "" {
		f, err := os.OpenFile(rawLogRecord, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open capture: %w", err)
		}
		defer f.Close()
		capture = lorris.NewCaptureWriter(f)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Lorris - Raw Frame Log\n")
	fmt.Fprintf(out, "Connection: %s\n", connInfo)
	fmt.Fprintf(out, "Vocabulary: %s\n", vocab.Name())
	if capture != nil {
		fmt.Fprintf(out, "Recording: %s\n", rawLogRecord)
	}
	fmt.Fprintf(out, "Press Ctrl+C to exit\n\n")

	err = logFrames(out, lorris.NewReader(conn), vocab, capture, connInfo)
	if capture != nil {
		fmt.Fprintf(out, "\nRecorded %d frames\n", capture.Count())
	}
	return err
}

// logFrames prints every frame from r until the stream ends
func logFrames(out io.Writer, r *lorris.Reader, vocab *lorris.Vocabulary, capture *lorris.CaptureWriter, source string) error {
	for {
		p, err := r.ReadPacket()
		if err != nil {
			if isClosed(err) {
				fmt.Fprintln(out, "Connection closed")
				return nil
			}
			return fmt.Errorf("read error: %w", err)
		}

		fmt.Fprint(out, lorris.FormatPacket(p, vocab))
		if rawLogHex {
			fmt.Fprintf(out, "  Frame: %s\n", lorris.FormatHex(p.Raw()))
		}
		for _, e := range vocab.Validate(p) {
			fmt.Fprintf(out, "  ! %s\n", e.Message)
		}

		if capture != nil {
			if err := capture.Write(p, source); err != nil {
				return err
			}
		}
	}
}
