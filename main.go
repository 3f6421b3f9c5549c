// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Lorris - Lorris Protocol Analyzer
//
// A CLI tool for decoding, sending and bridging Lorris protocol frames.

package main

import (
	"os"

	"github.com/Thermoquad/lorris/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
