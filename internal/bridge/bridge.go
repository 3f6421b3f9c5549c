// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package bridge forwards Lorris frames from a device connection to NATS
// and keeps a per-device shadow of the latest frames in Redis.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pion/logging"

	"github.com/Thermoquad/lorris/internal/metrics"
	"github.com/Thermoquad/lorris/pkg/lorris"
)

// DefaultPrefix is the default subject and key prefix
const DefaultPrefix = "lorris"

// Publisher publishes a message on a subject. *nats.Conn satisfies it.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Shadow stores the latest envelopes per device
type Shadow interface {
	Store(ctx context.Context, env Envelope) error
	Load(ctx context.Context, device uint8) (map[string]Envelope, error)
}

// Config configures a Bridge
type Config struct {
	Prefix     string
	Source     string // label of the device connection
	Vocabulary *lorris.Vocabulary

	Publisher Publisher          // may be nil
	Shadow    Shadow             // may be nil
	Metrics   *metrics.Collector // may be nil

	// Device receives frames arriving on the downlink subject. May be nil.
	Device io.Writer

	LoggerFactory logging.LoggerFactory
}

// Bridge forwards decoded frames. Each Bridge has its own session id so
// consumers can tell restarts apart.
type Bridge struct {
	session string
	prefix  string
	source  string
	vocab   *lorris.Vocabulary
	pub     Publisher
	shadow  Shadow
	metrics *metrics.Collector
	log     logging.LeveledLogger

	deviceMu sync.Mutex
	device   io.Writer

	forwarded atomic.Uint64
}

// New creates a bridge
func New(config Config) *Bridge {
	factory := config.LoggerFactory
	if factory == nil {
		factory = logging.NewDefaultLoggerFactory()
	}
	prefix := config.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Bridge{
		session: uuid.NewString(),
		prefix:  prefix,
		source:  config.Source,
		vocab:   config.Vocabulary,
		pub:     config.Publisher,
		shadow:  config.Shadow,
		metrics: config.Metrics,
		device:  config.Device,
		log:     factory.NewLogger("bridge"),
	}
}

// Session returns the bridge session id
func (b *Bridge) Session() string {
	return b.session
}

// Forwarded returns the number of frames forwarded
func (b *Bridge) Forwarded() uint64 {
	return b.forwarded.Load()
}

// Forward publishes one frame and updates the shadow
func (b *Bridge) Forward(ctx context.Context, p *lorris.Packet) error {
	var errs []lorris.ValidationError
	if b.metrics != nil {
		errs = b.metrics.ObserveRX(p)
	} else {
		errs = b.vocab.Validate(p)
	}
	env := NewEnvelope(b.session, b.source, p, b.vocab, errs)

	if b.pub != nil {
		data, err := json.Marshal(env)
		if err != nil {
			return err
		}
		subject := Subject(b.prefix, env.Device, env.Name)
		if err := b.pub.Publish(subject, data); err != nil {
			return fmt.Errorf("failed to publish %s: %w", subject, err)
		}
		b.log.Tracef("published %s", subject)
	}

	if b.shadow != nil {
		if err := b.shadow.Store(ctx, env); err != nil {
			return err
		}
	}

	b.forwarded.Add(1)
	return nil
}

// Run forwards every frame read from r until ctx is cancelled or r fails.
// Forwarding errors are logged and do not stop the bridge.
func (b *Bridge) Run(ctx context.Context, r *lorris.Reader) error {
	var reported uint64
	for {
		p, err := r.ReadPacket()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		if d := r.Discarded(); d > reported {
			b.metrics.AddDiscarded(d - reported)
			reported = d
		}

		if err := b.Forward(ctx, p); err != nil {
			b.log.Warnf("forward failed: %v", err)
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}

// downlinkMessage is the payload accepted on the downlink subject
type downlinkMessage struct {
	Frame string `json:"frame"`
}

// HandleDownlink writes a frame received from NATS to the device. The
// message is either an Envelope-like JSON object with a base64 "frame" or
// the bare base64 text.
func (b *Bridge) HandleDownlink(data []byte) error {
	text := string(data)
	var msg downlinkMessage
	if json.Unmarshal(data, &msg) == nil && msg.Frame != "" {
		text = msg.Frame
	}

	p, err := lorris.ParseBase64(text)
	if err != nil {
		return fmt.Errorf("invalid downlink frame: %w", err)
	}

	b.deviceMu.Lock()
	defer b.deviceMu.Unlock()
	if b.device == nil {
		return errors.New("bridge: no device writer for downlink")
	}
	if _, err := p.WriteTo(b.device); err != nil {
		return err
	}
	b.metrics.ObserveTX(p)
	b.log.Debugf("downlink %s", p)
	return nil
}

// RegisterRoutes adds the shadow query endpoints to r
func (b *Bridge) RegisterRoutes(r gin.IRoutes) {
	r.GET("/session", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"session": b.session, "forwarded": b.forwarded.Load()})
	})
	r.GET("/shadow/:device", func(c *gin.Context) {
		if b.shadow == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "shadow disabled"})
			return
		}
		id, err := strconv.ParseUint(c.Param("device"), 10, 8)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "device must be 0-255"})
			return
		}
		entries, err := b.shadow.Load(c.Request.Context(), uint8(id))
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, entries)
	})
}
