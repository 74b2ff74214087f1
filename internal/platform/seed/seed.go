// Package seed performs the one-time population of every collection with
// fixture records. The "initialized" sentinel key gates the whole step.
package seed

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/platform/store"
)

// SentinelKey marks a store as seeded.
const SentinelKey = "initialized"

//go:embed fixtures/*.json
var fixtureFS embed.FS

// Fixtures maps a collection key to the raw JSON array seeded under it.
type Fixtures map[string]json.RawMessage

// Keys returns the fixture keys, sorted.
func (f Fixtures) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Default returns the fixtures embedded in the binary, one file per key.
func Default() (Fixtures, error) {
	return Load(fixtureFS, "fixtures")
}

// Load reads every <key>.json file under dir of fsys. Each file must hold a
// JSON array.
func Load(fsys fs.FS, dir string) (Fixtures, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read fixtures: %w", err)
	}
	out := Fixtures{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		key := strings.TrimSuffix(e.Name(), ".json")
		raw, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read fixture %s: %w", key, err)
		}
		var probe []json.RawMessage
		if err := json.Unmarshal(raw, &probe); err != nil {
			return nil, fmt.Errorf("fixture %s is not a JSON array: %w", key, err)
		}
		out[key] = json.RawMessage(raw)
	}
	return out, nil
}

// Result reports what Run did.
type Result struct {
	Skipped bool     `json:"skipped"`
	Seeded  []string `json:"seeded"`
	Kept    []string `json:"kept"`
}

// Run seeds every fixture key that is absent from s, then writes the
// sentinel. When the sentinel already exists nothing is touched.
func Run(ctx context.Context, s store.Store, fixtures Fixtures, logger zerolog.Logger) (Result, error) {
	var res Result
	done, err := store.Exists(ctx, s, SentinelKey)
	if err != nil {
		return res, fmt.Errorf("check %s: %w", SentinelKey, err)
	}
	if done {
		res.Skipped = true
		logger.Debug().Msg("store already initialized, skipping seed")
		return res, nil
	}

	for _, key := range fixtures.Keys() {
		exists, err := store.Exists(ctx, s, key)
		if err != nil {
			return res, fmt.Errorf("check %s: %w", key, err)
		}
		if exists {
			res.Kept = append(res.Kept, key)
			continue
		}
		if err := s.Save(ctx, key, fixtures[key]); err != nil {
			return res, fmt.Errorf("seed %s: %w", key, err)
		}
		res.Seeded = append(res.Seeded, key)
	}

	if err := s.Save(ctx, SentinelKey, []byte("true")); err != nil {
		return res, fmt.Errorf("write %s: %w", SentinelKey, err)
	}
	logger.Info().
		Int("seeded", len(res.Seeded)).
		Int("kept", len(res.Kept)).
		Msg("store initialized")
	return res, nil
}

// Reset removes the sentinel so the next Run seeds absent keys again.
func Reset(ctx context.Context, s store.Store) error {
	return s.Delete(ctx, SentinelKey)
}
