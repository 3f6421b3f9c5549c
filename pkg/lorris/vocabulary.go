// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package lorris

import (
	"fmt"
	"sort"
	"strings"
)

// VariableLength marks a command without a fixed payload size
const VariableLength = -1

// Command describes one application command id.
//
// The protocol itself gives command ids no meaning; a Vocabulary attaches
// names, expected payload sizes and value checks for one application.
type Command struct {
	ID          uint8
	Name        string
	PayloadSize int

	// Describe renders the payload as indented lines. It reads from a
	// rewound copy of the frame.
	Describe func(p *Packet) string

	// Check returns value anomalies. It reads from a rewound copy.
	Check func(p *Packet) []ValidationError
}

// Vocabulary is the command set of one application
type Vocabulary struct {
	name     string
	commands map[uint8]Command
}

// NewVocabulary creates a vocabulary from a list of commands.
// Later commands replace earlier ones with the same id.
func NewVocabulary(name string, commands ...Command) *Vocabulary {
	v := &Vocabulary{
		name:     name,
		commands: make(map[uint8]Command, len(commands)),
	}
	for _, c := range commands {
		v.commands[c.ID] = c
	}
	return v
}

// Name returns the vocabulary name
func (v *Vocabulary) Name() string {
	if v == nil {
		return "none"
	}
	return v.name
}

// Lookup returns the command registered for id
func (v *Vocabulary) Lookup(id uint8) (Command, bool) {
	if v == nil {
		return Command{}, false
	}
	c, ok := v.commands[id]
	return c, ok
}

// ByName finds a command by name, case-insensitively
func (v *Vocabulary) ByName(name string) (Command, bool) {
	if v == nil {
		return Command{}, false
	}
	for _, c := range v.commands {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return Command{}, false
}

// CommandName returns the human-readable name for a command id
func (v *Vocabulary) CommandName(id uint8) string {
	if c, ok := v.Lookup(id); ok {
		return c.Name
	}
	if v == nil {
		return fmt.Sprintf("CMD_%d", id)
	}
	return "UNKNOWN"
}

// Commands returns all commands ordered by id
func (v *Vocabulary) Commands() []Command {
	if v == nil {
		return nil
	}
	out := make([]Command, 0, len(v.commands))
	for _, c := range v.commands {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
