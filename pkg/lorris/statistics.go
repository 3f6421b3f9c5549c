// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lorris

import (
	"fmt"
	"sort"
	"time"
)

// Statistics tracks frame statistics and error rates
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalFrames     uint64
	ValidFrames     uint64
	AnomalousFrames uint64
	UnknownCommands uint64
	LengthMismatch  uint64
	InvalidValues   uint64
	ReadErrors      uint64
	DiscardedBytes  uint64
	ByCommand       map[uint8]uint64

	// Rates (calculated)
	FrameRate float64 // frames/sec
	ErrorRate float64 // anomalous frames/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
		ByCommand:      make(map[uint8]uint64),
	}
}

// Update records a decoded frame and its validation result
func (s *Statistics) Update(p *Packet, validationErrors []ValidationError) {
	s.TotalFrames++
	s.ByCommand[p.Command()]++

	if len(validationErrors) == 0 {
		s.ValidFrames++
	} else {
		s.AnomalousFrames++
		for _, err := range validationErrors {
			switch err.Type {
			case AnomalyUnknownCommand:
				s.UnknownCommands++
			case AnomalyLengthMismatch:
				s.LengthMismatch++
			case AnomalyInvalidValue:
				s.InvalidValues++
			case AnomalyReadError:
				s.ReadErrors++
			}
		}
	}

	s.LastUpdateTime = time.Now()
}

// SetDiscarded records the parser's discarded byte counter
func (s *Statistics) SetDiscarded(n uint64) {
	s.DiscardedBytes = n
}

// CalculateRates calculates frame and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.TotalFrames) / elapsed
		s.ErrorRate = float64(s.AnomalousFrames) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	var validPercent, anomalousPercent float64
	if s.TotalFrames > 0 {
		validPercent = float64(s.ValidFrames) * 100.0 / float64(s.TotalFrames)
		anomalousPercent = float64(s.AnomalousFrames) * 100.0 / float64(s.TotalFrames)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Frames:    %8d\n", s.TotalFrames)
	result += fmt.Sprintf("Valid Frames:    %8d (%.1f%%)\n", s.ValidFrames, validPercent)

	if s.AnomalousFrames > 0 {
		result += fmt.Sprintf("Anomalous:       %8d (%.1f%%)\n", s.AnomalousFrames, anomalousPercent)
		if s.UnknownCommands > 0 {
			result += fmt.Sprintf("  Unknown Cmd:      %5d\n", s.UnknownCommands)
		}
		if s.LengthMismatch > 0 {
			result += fmt.Sprintf("  Length Mismatch:  %5d\n", s.LengthMismatch)
		}
		if s.InvalidValues > 0 {
			result += fmt.Sprintf("  Invalid Values:   %5d\n", s.InvalidValues)
		}
		if s.ReadErrors > 0 {
			result += fmt.Sprintf("  Read Errors:      %5d\n", s.ReadErrors)
		}
	}
	if s.DiscardedBytes > 0 {
		result += fmt.Sprintf("Discarded Bytes: %8d\n", s.DiscardedBytes)
	}

	if len(s.ByCommand) > 0 {
		ids := make([]int, 0, len(s.ByCommand))
		for id := range s.ByCommand {
			ids = append(ids, int(id))
		}
		sort.Ints(ids)
		result += "Per Command:\n"
		for _, id := range ids {
			result += fmt.Sprintf("  0x%02X:           %8d\n", id, s.ByCommand[uint8(id)])
		}
	}

	result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", s.FrameRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	now := time.Now()
	s.StartTime = now
	s.LastUpdateTime = now
	s.TotalFrames = 0
	s.ValidFrames = 0
	s.AnomalousFrames = 0
	s.UnknownCommands = 0
	s.LengthMismatch = 0
	s.InvalidValues = 0
	s.ReadErrors = 0
	s.DiscardedBytes = 0
	s.ByCommand = make(map[uint8]uint64)
	s.FrameRate = 0
	s.ErrorRate = 0
}
