// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/lorris/pkg/lorris"
)

var (
	replaySend  bool
	replaySpeed float64
)

var replayCmd = &cobra.Command{
	Use:   "replay <capture>",
	Short: "Play back a capture recorded with raw_log --record",
	Long: `Read a CBOR capture file and print its frames.

With --send the frames are also written to the connection, keeping the
recorded spacing scaled by --speed (2 plays twice as fast, 0 sends as fast
as possible). Corrupt records are reported and skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().BoolVar(&replaySend, "send", false, "Write frames to the connection")
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 1, "Playback speed factor (0 = no delay)")
}

func runReplay(cmd *cobra.Command, args []string) error {
	vocab, err := lookupVocabulary(cfg.Vocabulary)
	if err != nil {
		return err
	}

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	out := cmd.OutOrStdout()
	var sink io.Writer
	if replaySend {
		conn, connInfo, err := OpenConnection()
		if err != nil {
			return err
		}
		defer conn.Close()
		sink = conn
		fmt.Fprintf(out, "Replaying %s to %s\n\n", args[0], connInfo)
	}

	n, err := replayCapture(lorris.NewCaptureReader(f), replaySpeed, time.Sleep, func(rec lorris.Record, p *lorris.Packet) error {
		fmt.Fprintf(out, "%s ", rec.Source)
		fmt.Fprint(out, lorris.FormatPacket(p, vocab))
		if sink != nil {
			_, err := p.WriteTo(sink)
			return err
		}
		return nil
	}, func(err error) {
		fmt.Fprintf(out, "skipping record: %v\n", err)
	})
	fmt.Fprintf(out, "\n%d frames replayed\n", n)
	return err
}

// replayCapture calls emit for every frame in the capture, sleeping between
// frames for the recorded gap divided by speed. Undecodable frames go to
// skip. It returns the number of frames emitted.
func replayCapture(cr *lorris.CaptureReader, speed float64, sleep func(time.Duration), emit func(lorris.Record, *lorris.Packet) error, skip func(error)) (int, error) {
	var last time.Time
	count := 0
	for {
		rec, err := cr.Next()
		if errors.Is(err, io.EOF) {
			return count, nil
		}
		if err != nil {
			return count, err
		}

		p, err := rec.Packet()
		if err != nil {
			skip(err)
			continue
		}

		t := rec.Time()
		if speed > 0 && !last.IsZero() && t.After(last) {
			sleep(time.Duration(float64(t.Sub(last)) / speed))
		}
		last = t

		if err := emit(rec, p); err != nil {
			return count, err
		}
		count++
	}
}
