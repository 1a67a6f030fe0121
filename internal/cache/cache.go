// Package cache stores provider responses so identical requests skip the
// network.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Cache is a JSON value store with expiry.
type Cache interface {
	GetJSON(ctx context.Context, key string, dst any) (hit bool, err error)
	SetJSON(ctx context.Context, key string, val any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// Key derives a stable cache key from its parts.
func Key(namespace string, parts ...string) string {
	h := sha256.New()
	for _, part := range parts {
		h.Write([]byte(strings.TrimSpace(part)))
		h.Write([]byte{0})
	}
	return "intervue:" + namespace + ":" + hex.EncodeToString(h.Sum(nil))
}

// Nop never hits and discards writes.
type Nop struct{}

// GetJSON implements Cache.
func (Nop) GetJSON(context.Context, string, any) (bool, error) { return false, nil }

// SetJSON implements Cache.
func (Nop) SetJSON(context.Context, string, any, time.Duration) error { return nil }

// Del implements Cache.
func (Nop) Del(context.Context, ...string) error { return nil }
