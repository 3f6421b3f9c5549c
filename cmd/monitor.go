// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/lorris/pkg/lorris"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Monitor raw bytes and connection stability",
	Long: `Watch the connection without decoding application data.

This command connects and just waits, logging every chunk of bytes received
along with the frames it completes. Useful for debugging connection stability
and framing problems.

Exit codes:
  0 - Test completed normally
  1 - Connection failed during the test
  2 - Connection error`,
	RunE: runMonitor,
}

var monitorDuration int

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().IntVar(&monitorDuration, "duration", 30, "Test duration in seconds")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(exitConnFailure)
	}
	defer conn.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Connection Stability Monitor\n")
	fmt.Fprintf(out, "Connection: %s\n", connInfo)
	fmt.Fprintf(out, "Duration: %d seconds\n\n", monitorDuration)

	readChan := make(chan []byte, 100)
	errChan := make(chan error, 1)

	go func() {
		buf := make([]byte, 256)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				errChan <- err
				return
			}
			if n > 0 {
				data := make([]byte, n)
				copy(data, buf[:n])
				readChan <- data
			}
		}
	}()

	start := time.Now()
	endTime := start.Add(time.Duration(monitorDuration) * time.Second)
	bytesReceived := 0
	chunksReceived := 0
	framesDecoded := 0
	parser := lorris.NewPacketParser()

	fmt.Fprintf(out, "Listening for data...\n\n")

	results := func() {
		fmt.Fprintf(out, "\n--- Test Results ---\n")
		fmt.Fprintf(out, "Duration: %v\n", time.Since(start).Round(time.Millisecond))
		fmt.Fprintf(out, "Chunks received: %d\n", chunksReceived)
		fmt.Fprintf(out, "Bytes received: %d\n", bytesReceived)
		fmt.Fprintf(out, "Frames decoded: %d\n", framesDecoded)
		fmt.Fprintf(out, "Bytes discarded: %d\n", parser.Discarded())
	}

	for time.Now().Before(endTime) {
		select {
		case data := <-readChan:
			bytesReceived += len(data)
			chunksReceived++
			fmt.Fprintf(out, "[%s] Received %d bytes: %x\n",
				time.Now().Format("15:04:05.000"), len(data), data)
			framesDecoded += parser.Feed(data, func(p *lorris.Packet) {
				fmt.Fprintf(out, "    frame %s\n", p)
			})

		case err := <-errChan:
			fmt.Fprintf(out, "\n[%s] Connection error: %v\n",
				time.Now().Format("15:04:05.000"), err)
			results()
			fmt.Fprintf(out, "Result: FAILED (connection error)\n")
			os.Exit(exitTimeout)

		case <-time.After(1 * time.Second):
			remaining := time.Until(endTime).Seconds()
			fmt.Fprintf(out, "[%s] Still connected... (%.0fs remaining)\n",
				time.Now().Format("15:04:05.000"), remaining)
		}
	}

	results()
	fmt.Fprintf(out, "Result: PASSED (connection stable)\n")
	return nil
}
