// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultShadowTTL is how long a device shadow outlives its last frame
const DefaultShadowTTL = 24 * time.Hour

// HashStore is the subset of the Redis client used for device shadows.
// *redis.Client satisfies it.
type HashStore interface {
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

// RedisShadow keeps the last envelope per command of every device in a
// Redis hash, keyed <prefix>:shadow:<device>
type RedisShadow struct {
	store  HashStore
	prefix string
	ttl    time.Duration
}

// NewRedisShadow creates a shadow store. A zero ttl uses DefaultShadowTTL.
func NewRedisShadow(store HashStore, prefix string, ttl time.Duration) *RedisShadow {
	if ttl == 0 {
		ttl = DefaultShadowTTL
	}
	return &RedisShadow{store: store, prefix: prefix, ttl: ttl}
}

func (s *RedisShadow) key(device uint8) string {
	return fmt.Sprintf("%s:shadow:%d", s.prefix, device)
}

// Store records env as the latest frame for its command
func (s *RedisShadow) Store(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	key := s.key(env.Device)
	if err := s.store.HSet(ctx, key, env.Name, data, "ts", env.Time.Unix()).Err(); err != nil {
		return fmt.Errorf("failed to update shadow %s: %w", key, err)
	}
	return s.store.Expire(ctx, key, s.ttl).Err()
}

// Load returns the latest envelope per command name for a device
func (s *RedisShadow) Load(ctx context.Context, device uint8) (map[string]Envelope, error) {
	fields, err := s.store.HGetAll(ctx, s.key(device)).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]Envelope, len(fields))
	for name, raw := range fields {
		if name == "ts" {
			continue
		}
		var env Envelope
		if err := json.Unmarshal([]byte(raw), &env); err != nil {
			return nil, fmt.Errorf("corrupt shadow entry %s: %w", name, err)
		}
		out[name] = env
	}
	return out, nil
}
