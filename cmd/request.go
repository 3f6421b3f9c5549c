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
	requestTimeout int
	requestCount   int
	requestReply   string
)

var requestCmd = &cobra.Command{
	Use:   "request <command> [type:value...]",
	Short: "Send a frame and wait for a reply, reporting round-trip time",
	Long: `Send a frame built like the send command and wait for a reply frame.

Without --reply the reply must come from the same device and carry the
request's command id, so streamed telemetry is not mistaken for an answer.
With --reply that command id or name is expected instead. Frames received
before a request is sent never count as its reply.

This is useful for verifying:
  - The connection is established
  - The peer is processing frames
  - Bidirectional frame flow works

Exit codes:
  0 - All requests answered
  1 - One or more requests failed or timed out
  2 - Connection error`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRequest,
}

func init() {
	rootCmd.AddCommand(requestCmd)
	requestCmd.Flags().IntVar(&requestTimeout, "timeout", 5, "Timeout in seconds for each request")
	requestCmd.Flags().IntVar(&requestCount, "count", 3, "Number of requests to send")
	requestCmd.Flags().StringVar(&requestReply, "reply", "", "Command expected in reply")
}

// replyMatcher reports whether a frame answers the request
type replyMatcher func(p *lorris.Packet) bool

// newReplyMatcher matches frames from deviceID carrying the reply command,
// or the request's own command when reply is empty
func newReplyMatcher(vocab *lorris.Vocabulary, deviceID, requestCmd uint8, reply string) (replyMatcher, error) {
	id := requestCmd
	if reply != "" {
		var err error
		if id, err = parseCommand(vocab, reply); err != nil {
			return nil, err
		}
	}
	return func(p *lorris.Packet) bool {
		return p.DeviceID() == deviceID && p.Command() == id
	}, nil
}

func runRequest(cmd *cobra.Command, args []string) error {
	vocab, err := lookupVocabulary(cfg.Vocabulary)
	if err != nil {
		return err
	}
	req, err := buildFrame(vocab, cfg.Device, args[0], args[1:])
	if err != nil {
		return err
	}
	match, err := newReplyMatcher(vocab, cfg.Device, req.Command(), requestReply)
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
	fmt.Fprintf(out, "Lorris - Request Test\n")
	fmt.Fprintf(out, "Connection: %s\n", connInfo)
	fmt.Fprintf(out, "Request: %s\n", req)
	fmt.Fprintf(out, "Timeout: %d seconds per request\n", requestTimeout)
	fmt.Fprintf(out, "Count: %d requests\n\n", requestCount)

	ok := runRequests(out, conn, req, match, vocab, requestCount, time.Duration(requestTimeout)*time.Second)
	conn.Close()
	if ok < requestCount {
		os.Exit(exitTimeout)
	}
	return nil
}

// runRequests sends req count times over rw and returns how many were
// answered
func runRequests(out io.Writer, rw io.ReadWriter, req *lorris.Packet, match replyMatcher, vocab *lorris.Vocabulary, count int, timeout time.Duration) int {
	frames := make(chan *lorris.Packet, 16)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	go func() {
		r := lorris.NewReader(rw)
		for {
			p, err := r.ReadPacket()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case frames <- p:
			case <-done:
				return
			}
		}
	}()

	successCount := 0
	var totalRTT time.Duration
	var lost error

	for i := 1; i <= count; i++ {
		fmt.Fprintf(out, "Request %d/%d: ", i, count)
		if lost != nil {
			fmt.Fprintf(out, "READ FAILED: %v\n", lost)
			continue
		}

		// Anything already received cannot answer this request
		for n := len(frames); n > 0; n-- {
			<-frames
		}

		startTime := time.Now()
		if _, err := req.WriteTo(rw); err != nil {
			fmt.Fprintf(out, "SEND FAILED: %v\n", err)
			continue
		}

		deadline := time.After(timeout)
	wait:
		for {
			select {
			case p := <-frames:
				if p.Timestamp().Before(startTime) || !match(p) {
					continue
				}
				rtt := time.Since(startTime)
				totalRTT += rtt
				successCount++
				fmt.Fprintf(out, "reply %s len=%d, rtt=%v\n", vocab.CommandName(p.Command()), p.DataLength(), rtt.Round(time.Microsecond))
				break wait

			case err := <-readErr:
				lost = err
				fmt.Fprintf(out, "READ FAILED: %v\n", err)
				break wait

			case <-deadline:
				fmt.Fprintf(out, "TIMEOUT (no reply in %v)\n", timeout)
				break wait
			}
		}

		// Small delay between requests
		if i < count {
			time.Sleep(100 * time.Millisecond)
		}
	}

	fmt.Fprintf(out, "\n--- Request statistics ---\n")
	loss := 0.0
	if count > 0 {
		loss = float64(count-successCount) / float64(count) * 100
	}
	fmt.Fprintf(out, "%d requests sent, %d replies received, %.0f%% loss\n", count, successCount, loss)
	if successCount > 0 {
		fmt.Fprintf(out, "average rtt %v\n", (totalRTT / time.Duration(successCount)).Round(time.Microsecond))
	}
	return successCount
}
