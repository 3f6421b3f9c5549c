// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lorris

import "fmt"

// AnomalyType represents different types of frame anomalies
type AnomalyType int

const (
	AnomalyUnknownCommand AnomalyType = iota
	AnomalyLengthMismatch
	AnomalyInvalidValue
	AnomalyReadError
)

// String returns the anomaly name
func (a AnomalyType) String() string {
	switch a {
	case AnomalyUnknownCommand:
		return "unknown_command"
	case AnomalyLengthMismatch:
		return "length_mismatch"
	case AnomalyInvalidValue:
		return "invalid_value"
	case AnomalyReadError:
		return "read_error"
	default:
		return "unknown"
	}
}

// ValidationError represents a frame validation failure
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// Validate checks a frame against a vocabulary and returns the anomalies
// found (empty if the frame is valid). A nil vocabulary accepts everything.
func (v *Vocabulary) Validate(p *Packet) []ValidationError {
	errors := []ValidationError{}
	if v == nil {
		return errors
	}

	cmd, ok := v.Lookup(p.Command())
	if !ok {
		return append(errors, ValidationError{
			Type:    AnomalyUnknownCommand,
			Message: fmt.Sprintf("Unknown %s command 0x%02X", v.name, p.Command()),
			Details: map[string]interface{}{"command": p.Command()},
		})
	}

	if cmd.PayloadSize != VariableLength && int(p.DataLength()) != cmd.PayloadSize {
		return append(errors, ValidationError{
			Type:    AnomalyLengthMismatch,
			Message: fmt.Sprintf("%s payload length mismatch (expected %d bytes)", cmd.Name, cmd.PayloadSize),
			Details: map[string]interface{}{"length": int(p.DataLength()), "expected": cmd.PayloadSize},
		})
	}

	if cmd.Check == nil {
		return errors
	}

	// Checks read through their own cursor
	c := p.Clone()
	c.Rewind()
	errors = append(errors, cmd.Check(c)...)
	if c.Err() != nil {
		errors = append(errors, ValidationError{
			Type:    AnomalyReadError,
			Message: fmt.Sprintf("%s: %v", cmd.Name, c.Err()),
			Details: map[string]interface{}{"length": int(p.DataLength())},
		})
	}

	return errors
}
