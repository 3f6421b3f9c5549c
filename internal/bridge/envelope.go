// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/lorris/pkg/lorris"
)

// Envelope is the JSON form of a forwarded frame
type Envelope struct {
	Session   string    `json:"session"`
	Source    string    `json:"source,omitempty"`
	Time      time.Time `json:"time"`
	Device    uint8     `json:"device"`
	Command   uint8     `json:"command"`
	Name      string    `json:"name"`
	Length    uint8     `json:"length"`
	Frame     string    `json:"frame"` // base64 of the complete frame
	Anomalies []string  `json:"anomalies,omitempty"`
}

// NewEnvelope wraps a frame. vocab may be nil.
func NewEnvelope(session, source string, p *lorris.Packet, vocab *lorris.Vocabulary, errs []lorris.ValidationError) Envelope {
	env := Envelope{
		Session: session,
		Source:  source,
		Time:    p.Timestamp(),
		Device:  p.DeviceID(),
		Command: p.Command(),
		Name:    vocab.CommandName(p.Command()),
		Length:  p.DataLength(),
		Frame:   p.ToBase64(),
	}
	for _, e := range errs {
		env.Anomalies = append(env.Anomalies, fmt.Sprintf("%s: %s", e.Type, e.Message))
	}
	return env
}

// Packet decodes the carried frame
func (e Envelope) Packet() (*lorris.Packet, error) {
	return lorris.ParseBase64(e.Frame)
}

// Subject returns the NATS subject for a frame: <prefix>.<device>.<name>
func Subject(prefix string, device uint8, name string) string {
	return fmt.Sprintf("%s.%d.%s", prefix, device, strings.ToLower(name))
}

// DownlinkSubject returns the subject the bridge takes frames to send from
func DownlinkSubject(prefix string) string {
	return prefix + ".downlink"
}
