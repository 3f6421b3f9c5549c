// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package robutek

import (
	"fmt"

	"github.com/Thermoquad/lorris/pkg/lorris"
)

// Vocabulary is the Robutek command set
var Vocabulary = lorris.NewVocabulary("robutek",
	lorris.Command{
		ID:          CmdSetParams,
		Name:        "SET_PARAMS",
		PayloadSize: 1,
		Describe: func(p *lorris.Packet) string {
			d := Direction(p.ReadUint8())
			return fmt.Sprintf("  Direction: %s (%d)\n", d, uint8(d))
		},
		Check: func(p *lorris.Packet) []lorris.ValidationError {
			d := Direction(p.ReadUint8())
			if d.Valid() {
				return nil
			}
			return []lorris.ValidationError{{
				Type:    lorris.AnomalyInvalidValue,
				Message: fmt.Sprintf("Unknown direction %d", uint8(d)),
				Details: map[string]interface{}{"direction": uint8(d)},
			}}
		},
	},
	lorris.Command{
		ID:          CmdEncoderLeft,
		Name:        "ENCODER_LEFT",
		PayloadSize: 4,
		Describe: func(p *lorris.Packet) string {
			return fmt.Sprintf("  Position: %d\n", p.ReadInt32())
		},
	},
	lorris.Command{
		ID:          CmdEncoderRight,
		Name:        "ENCODER_RIGHT",
		PayloadSize: 4,
		Describe: func(p *lorris.Packet) string {
			return fmt.Sprintf("  Position: %d\n", p.ReadInt32())
		},
	},
	lorris.Command{
		ID:          CmdButton,
		Name:        "BUTTON",
		PayloadSize: 1,
		Describe: func(p *lorris.Packet) string {
			state := "released"
			if p.ReadUint8() != 0 {
				state = "pressed"
			}
			return fmt.Sprintf("  Button: %s\n", state)
		},
		Check: func(p *lorris.Packet) []lorris.ValidationError {
			if v := p.ReadUint8(); v > 1 {
				return []lorris.ValidationError{{
					Type:    lorris.AnomalyInvalidValue,
					Message: fmt.Sprintf("Button state %d is not 0 or 1", v),
					Details: map[string]interface{}{"button": v},
				}}
			}
			return nil
		},
	},
)
