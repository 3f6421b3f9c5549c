// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/lorris/pkg/lorris"
)

var (
	showAll       bool
	statsInterval int
	useTUI        bool
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Collect frame statistics and detect anomalous frames",
	Long: `Track frame counts, anomalies and resynchronization with statistics.

Each frame is validated against --vocab and checked for:
  - Unknown command ids
  - Payload length mismatches
  - Out of range values
  - Payloads too short for their fields

By default, only anomalies are displayed. Use --show-all to display valid
frames too. Statistics summaries are printed at a configurable interval, or
shown live in a terminal UI.`,
	RunE: runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().BoolVar(&showAll, "show-all", false, "Show all frames (not just anomalies)")
	statsCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds)")
	statsCmd.Flags().BoolVar(&useTUI, "tui", true, "Use terminal UI (false for text mode)")
}

func runStats(cmd *cobra.Command, args []string) error {
	vocab, err := lookupVocabulary(cfg.Vocabulary)
	if err != nil {
		return err
	}

	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	if useTUI {
		return runStatsTUI(conn, connInfo, vocab)
	}
	return runStatsText(cmd.OutOrStdout(), conn, connInfo, vocab)
}

// printValidationErrors prints the anomalies of a frame
func printValidationErrors(out io.Writer, p *lorris.Packet, vocab *lorris.Vocabulary, errs []lorris.ValidationError) {
	timestamp := p.Timestamp().Format("15:04:05.000")
	fmt.Fprintf(out, "[%s] \033[1;33mANOMALY:\033[0m %s (0x%02X) dev=%d len=%d\n",
		timestamp, vocab.CommandName(p.Command()), p.Command(), p.DeviceID(), p.DataLength())

	for i, e := range errs {
		switch e.Type {
		case lorris.AnomalyLengthMismatch:
			fmt.Fprintf(out, "  Issue %d: \033[1;31m%s\033[0m\n", i+1, e.Message)
			if length, ok := e.Details["length"].(int); ok {
				if expected, ok := e.Details["expected"].(int); ok {
					fmt.Fprintf(out, "    Length: received=%d, expected=%d\n", length, expected)
				}
			}
		case lorris.AnomalyUnknownCommand, lorris.AnomalyReadError:
			fmt.Fprintf(out, "  Issue %d: \033[1;31m%s\033[0m\n", i+1, e.Message)
		default:
			fmt.Fprintf(out, "  Issue %d: \033[1;33m%s\033[0m\n", i+1, e.Message)
		}
	}

	fmt.Fprint(out, lorris.FormatPayload(p.Payload()))
	fmt.Fprintf(out, "  >>> FRAME REJECTED <<<\n\n")
}

// readFrames decodes frames from r on a goroutine. The channel is closed
// after the first read error, which is delivered on errs.
func readFrames(r io.Reader) (*lorris.Reader, <-chan *lorris.Packet, <-chan error) {
	reader := lorris.NewReader(r)
	frames := make(chan *lorris.Packet, 64)
	errs := make(chan error, 1)
	go func() {
		defer close(frames)
		for {
			p, err := reader.ReadPacket()
			if err != nil {
				errs <- err
				return
			}
			frames <- p
		}
	}()
	return reader, frames, errs
}

// runStatsTUI runs statistics in TUI mode
func runStatsTUI(conn Connection, connInfo string, vocab *lorris.Vocabulary) error {
	m := initialStatsModel(connInfo, vocab, showAll)
	p := tea.NewProgram(m)

	go func() {
		reader := lorris.NewReader(conn)
		synchronized := false
		for {
			packet, err := reader.ReadPacket()
			if err != nil {
				p.Send(connectionLostMsg{err: err})
				return
			}
			if !synchronized {
				synchronized = true
				p.Send(syncMsg{invalidBytes: reader.Discarded()})
			}
			p.Send(frameMsg{
				packet:           packet,
				validationErrors: vocab.Validate(packet),
				discarded:        reader.Discarded(),
			})
		}
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

// runStatsText runs statistics in text mode
func runStatsText(out io.Writer, conn Connection, connInfo string, vocab *lorris.Vocabulary) error {
	fmt.Fprintf(out, "Lorris - Statistics Mode\n")
	fmt.Fprintf(out, "Connection: %s\n", connInfo)
	fmt.Fprintf(out, "Vocabulary: %s\n", vocab.Name())
	fmt.Fprintf(out, "Statistics interval: %d seconds\n", statsInterval)
	if showAll {
		fmt.Fprintf(out, "Mode: All frames\n")
	} else {
		fmt.Fprintf(out, "Mode: Anomalies only\n")
	}
	fmt.Fprintf(out, "Press Ctrl+C to exit\n\n")

	stats := lorris.NewStatistics()
	reader, frames, readErr := readFrames(conn)

	statsTicker := time.NewTicker(time.Duration(statsInterval) * time.Second)
	defer statsTicker.Stop()

	synchronized := false
	for {
		select {
		case p, ok := <-frames:
			if !ok {
				err := <-readErr
				fmt.Fprintln(out)
				fmt.Fprint(out, stats.String())
				if isClosed(err) {
					return nil
				}
				return fmt.Errorf("read error: %w", err)
			}
			if !synchronized {
				synchronized = true
				if d := reader.Discarded(); d > 0 {
					fmt.Fprintf(out, "[SYNC] Synchronized after skipping %d invalid bytes\n\n", d)
				} else {
					fmt.Fprintf(out, "[SYNC] Synchronized\n\n")
				}
			}
			recordFrame(out, stats, p, vocab, reader.Discarded(), showAll)

		case <-statsTicker.C:
			fmt.Fprintln(out)
			fmt.Fprint(out, stats.String())
			fmt.Fprintln(out)
		}
	}
}

// recordFrame validates p, updates stats and prints it if requested
func recordFrame(out io.Writer, stats *lorris.Statistics, p *lorris.Packet, vocab *lorris.Vocabulary, discarded uint64, all bool) {
	errs := vocab.Validate(p)
	stats.Update(p, errs)
	stats.SetDiscarded(discarded)

	if len(errs) > 0 {
		printValidationErrors(out, p, vocab, errs)
	} else if all {
		fmt.Fprint(out, lorris.FormatPacket(p, vocab))
	}
}
