// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/lorris/pkg/lorris"
)

var decodeEncoding string

var decodeCmd = &cobra.Command{
	Use:   "decode [text...]",
	Short: "Decode frames given as base64, Latin-1 or hex text",
	Long: `Decode Lorris frames from text and print them.

Each argument is one frame. Without arguments, frames are read from stdin,
one per line.

Encodings: base64 (default), latin1, hex.`,
	RunE: runDecode,
}

func init() {
	rootCmd.AddCommand(decodeCmd)
	decodeCmd.Flags().StringVarP(&decodeEncoding, "encoding", "e", "base64", "Input encoding (base64, latin1, hex)")
}

func runDecode(cmd *cobra.Command, args []string) error {
	vocab, err := lookupVocabulary(cfg.Vocabulary)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(args) > 0 {
		for _, a := range args {
			if err := decodeLine(out, a, decodeEncoding, vocab); err != nil {
				return err
			}
		}
		return nil
	}
	return decodeStream(out, cmd.InOrStdin(), decodeEncoding, vocab)
}

// decodeStream decodes one frame per input line. Bad lines are reported
// and skipped.
func decodeStream(out io.Writer, in io.Reader, encoding string, vocab *lorris.Vocabulary) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		if err := decodeLine(out, line, encoding, vocab); err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
		}
	}
	return scanner.Err()
}

func decodeLine(out io.Writer, text, encoding string, vocab *lorris.Vocabulary) error {
	p, err := parseFrameText(text, encoding)
	if err != nil {
		return err
	}
	fmt.Fprint(out, lorris.FormatPacket(p, vocab))
	for _, e := range vocab.Validate(p) {
		fmt.Fprintf(out, "  ! %s\n", e.Message)
	}
	return nil
}

// parseFrameText decodes a frame in one of the text encodings
func parseFrameText(text, encoding string) (*lorris.Packet, error) {
	switch strings.ToLower(encoding) {
	case "base64":
		return lorris.ParseBase64(text)
	case "latin1", "latin-1":
		return lorris.ParseLatin1(text)
	case "hex":
		return lorris.ParseHex(text)
	default:
		return nil, fmt.Errorf("unknown encoding %q (use base64, latin1 or hex)", encoding)
	}
}
