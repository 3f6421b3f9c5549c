// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/lorris/pkg/lorris"
)

var (
	packetTestTimeout int
)

// packet_test exit codes
const (
	exitOK          = 0
	exitTimeout     = 1
	exitConnFailure = 2
)

var packetTestCmd = &cobra.Command{
	Use:   "packet_test",
	Short: "Test connection by waiting for a valid Lorris frame",
	Long: `Wait for a valid Lorris frame on the connection until timeout.

This command connects to a serial port, WebSocket or UDP peer and waits for
any complete Lorris frame. Bytes before the first start marker are skipped.
With --vocab the frame must also pass validation.

Exit codes:
  0 - Frame received before timeout
  1 - Timeout reached without receiving a valid frame
  2 - Connection error`,
	RunE: runPacketTest,
}

func init() {
	rootCmd.AddCommand(packetTestCmd)
	packetTestCmd.Flags().IntVar(&packetTestTimeout, "timeout", 10, "Timeout in seconds to wait for a frame")
}

func runPacketTest(cmd *cobra.Command, args []string) error {
	vocab, err := lookupVocabulary(cfg.Vocabulary)
	if err != nil {
		return err
	}

	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(exitConnFailure)
	}
	defer conn.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Lorris - Packet Test\n")
	fmt.Fprintf(out, "Connection: %s\n", connInfo)
	fmt.Fprintf(out, "Timeout: %d seconds\n", packetTestTimeout)
	fmt.Fprintf(out, "Waiting for valid Lorris frame...\n\n")

	code := waitForFrame(out, os.Stderr, conn, vocab, time.Duration(packetTestTimeout)*time.Second)
	conn.Close()
	os.Exit(code)
	return nil
}

// waitForFrame reads from r until a valid frame arrives and returns the
// packet_test exit code
func waitForFrame(out, errOut io.Writer, r io.Reader, vocab *lorris.Vocabulary, timeout time.Duration) int {
	packetChan := make(chan *lorris.Packet, 1)
	errChan := make(chan error, 1)

	go func() {
		reader := lorris.NewReader(r)
		for {
			p, err := reader.ReadPacket()
			if err != nil {
				errChan <- err
				return
			}
			if len(vocab.Validate(p)) > 0 {
				continue
			}
			if d := reader.Discarded(); d > 0 {
				fmt.Fprintf(out, "(skipped %d invalid bytes before sync)\n", d)
			}
			packetChan <- p
			return
		}
	}()

	select {
	case p := <-packetChan:
		fmt.Fprintf(out, "SUCCESS: Received valid frame\n")
		fmt.Fprintf(out, "  Command: %s (0x%02X)\n", vocab.CommandName(p.Command()), p.Command())
		fmt.Fprintf(out, "  Device: %d\n", p.DeviceID())
		fmt.Fprintf(out, "  Length: %d bytes\n", p.DataLength())
		fmt.Fprintf(out, "  Frame: %s\n", lorris.FormatHex(p.Raw()))
		return exitOK

	case err := <-errChan:
		fmt.Fprintf(errOut, "Read error: %v\n", err)
		return exitConnFailure

	case <-time.After(timeout):
		fmt.Fprintf(errOut, "TIMEOUT: No valid frame received within %v\n", timeout)
		return exitTimeout
	}
}
