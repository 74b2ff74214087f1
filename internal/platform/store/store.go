// Package store is the persistent key-value layer behind every named
// collection. Each key holds the JSON serialization of one collection's
// array; writes always replace the whole value.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrNotExist is returned by backends for keys that were never written.
	ErrNotExist = errors.New("store: key does not exist")
	// ErrMalformed wraps decode failures of a stored value.
	ErrMalformed = errors.New("store: malformed stored value")
)

// Store is implemented by every backend. Load reports ok=false for absent keys
// instead of returning ErrNotExist.
type Store interface {
	Load(ctx context.Context, key string) (value []byte, ok bool, err error)
	Save(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
	Close() error
}

// Get reads the array stored under key. When the key is absent the defaults
// are written and returned, so a second Get with different defaults returns
// the first result.
func Get[T any](ctx context.Context, s Store, key string, defaults []T) ([]T, error) {
	raw, ok, err := s.Load(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	if !ok {
		if defaults == nil {
			defaults = []T{}
		}
		if err := Set(ctx, s, key, defaults); err != nil {
			return nil, err
		}
		return defaults, nil
	}

	var out []T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: key %s: %v", ErrMalformed, key, err)
	}
	if out == nil {
		out = []T{}
	}
	return out, nil
}

// Set serializes data and overwrites whatever is stored under key.
func Set[T any](ctx context.Context, s Store, key string, data []T) error {
	if data == nil {
		data = []T{}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.Save(ctx, key, raw); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// Exists reports whether key has been written.
func Exists(ctx context.Context, s Store, key string) (bool, error) {
	_, ok, err := s.Load(ctx, key)
	return ok, err
}

// ValidKey rejects keys that cannot be mapped onto every backend (file names,
// object keys, SQL text).
func ValidKey(key string) error {
	if key == "" {
		return fmt.Errorf("store: empty key")
	}
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return fmt.Errorf("store: invalid key %q", key)
		}
	}
	return nil
}
