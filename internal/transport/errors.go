// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import "errors"

// Transport errors
var (
	ErrClosed          = errors.New("transport: closed")
	ErrAlreadyStarted  = errors.New("transport: already started")
	ErrNoHandler       = errors.New("transport: no datagram handler configured")
	ErrInvalidAddress  = errors.New("transport: invalid address")
	ErrMessageTooLarge = errors.New("transport: message too large")
)
