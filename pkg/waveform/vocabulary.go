// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package waveform

import (
	"fmt"
	"math"

	"github.com/Thermoquad/lorris/pkg/lorris"
)

func describeFloat(label string) func(p *lorris.Packet) string {
	return func(p *lorris.Packet) string {
		return fmt.Sprintf("  %s: %.6f\n", label, p.ReadFloat64())
	}
}

// checkUnit flags sin/cos values outside [-1, 1]
func checkUnit(name string) func(p *lorris.Packet) []lorris.ValidationError {
	return func(p *lorris.Packet) []lorris.ValidationError {
		v := p.ReadFloat64()
		if v >= -1 && v <= 1 {
			return nil
		}
		return []lorris.ValidationError{{
			Type:    lorris.AnomalyInvalidValue,
			Message: fmt.Sprintf("%s value %v outside [-1, 1]", name, v),
			Details: map[string]interface{}{"value": v},
		}}
	}
}

// Vocabulary is the waveform demo command set
var Vocabulary = lorris.NewVocabulary("waveform",
	lorris.Command{
		ID:          CmdSetParams,
		Name:        "SET_PARAMS",
		PayloadSize: 12,
		Describe: func(p *lorris.Packet) string {
			tick := p.ReadUint32()
			step := p.ReadFloat64()
			return fmt.Sprintf("  Tick Rate: %d ms\n  Step: %v\n", tick, step)
		},
		Check: func(p *lorris.Packet) []lorris.ValidationError {
			if p.ReadUint32() != 0 {
				return nil
			}
			return []lorris.ValidationError{{
				Type:    lorris.AnomalyInvalidValue,
				Message: "Tick rate of 0 ms",
				Details: map[string]interface{}{"tick_rate_ms": 0},
			}}
		},
	},
	lorris.Command{ID: CmdSin, Name: "SIN", PayloadSize: 8, Describe: describeFloat("Sin"), Check: checkUnit("SIN")},
	lorris.Command{ID: CmdCos, Name: "COS", PayloadSize: 8, Describe: describeFloat("Cos"), Check: checkUnit("COS")},
	lorris.Command{ID: CmdTan, Name: "TAN", PayloadSize: 8, Describe: describeFloat("Tan")},
	lorris.Command{
		ID:          CmdIndex,
		Name:        "INDEX",
		PayloadSize: 1,
		Describe: func(p *lorris.Packet) string {
			return fmt.Sprintf("  Index: %d\n", p.ReadUint8())
		},
	},
	lorris.Command{
		ID:          CmdStep,
		Name:        "STEP",
		PayloadSize: 8,
		Describe:    describeFloat("Step"),
		Check: func(p *lorris.Packet) []lorris.ValidationError {
			if v := p.ReadFloat64(); math.IsNaN(v) || math.IsInf(v, 0) {
				return []lorris.ValidationError{{
					Type:    lorris.AnomalyInvalidValue,
					Message: fmt.Sprintf("Step %v is not finite", v),
				}}
			}
			return nil
		},
	},
)
