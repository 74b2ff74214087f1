package seed

import (
	"context"
	"encoding/json"
	"testing"
	"testing/fstest"

	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/platform/store"
)

func TestRun_SeedsAbsentKeysAndSentinel(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	_ = s.Save(ctx, "beds", []byte(`[{"id":"mine"}]`))

	fx := Fixtures{
		"beds":     json.RawMessage(`[{"id":"bed-1"}]`),
		"patients": json.RawMessage(`[{"id":"p1"}]`),
	}
	res, err := Run(ctx, s, fx, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Skipped || len(res.Seeded) != 1 || res.Seeded[0] != "patients" {
		t.Errorf("unexpected result: %+v", res)
	}
	if len(res.Kept) != 1 || res.Kept[0] != "beds" {
		t.Errorf("expected beds kept, got %+v", res.Kept)
	}

	raw, _, _ := s.Load(ctx, "beds")
	if string(raw) != `[{"id":"mine"}]` {
		t.Errorf("existing key overwritten: %s", raw)
	}
	if ok, _ := store.Exists(ctx, s, SentinelKey); !ok {
		t.Error("expected sentinel to be written")
	}
}

func TestRun_SentinelGatesReseed(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	fx := Fixtures{"vitals": json.RawMessage(`[{"id":"v1"}]`)}

	if _, err := Run(ctx, s, fx, zerolog.Nop()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_ = s.Delete(ctx, "vitals")

	res, err := Run(ctx, s, fx, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Skipped {
		t.Error("expected second run to be skipped")
	}
	if ok, _ := store.Exists(ctx, s, "vitals"); ok {
		t.Error("expected no reseed after initialization")
	}

	if err := Reset(ctx, s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res, _ = Run(ctx, s, fx, zerolog.Nop())
	if res.Skipped || len(res.Seeded) != 1 {
		t.Errorf("expected reseed after reset, got %+v", res)
	}
}

func TestLoad_RejectsNonArray(t *testing.T) {
	fsys := fstest.MapFS{
		"fx/beds.json": {Data: []byte(`[]`)},
		"fx/bad.json":  {Data: []byte(`{"id":"x"}`)},
		"fx/notes.txt": {Data: []byte(`ignored`)},
	}
	if _, err := Load(fsys, "fx"); err == nil {
		t.Fatal("expected error for non-array fixture")
	}

	delete(fsys, "fx/bad.json")
	fx, err := Load(fsys, "fx")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fx) != 1 {
		t.Errorf("expected only beds, got %v", fx.Keys())
	}
}

func TestDefault_FixturesAreArrays(t *testing.T) {
	fx, err := Default()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, key := range []string{"patients", "bills", "medicines", "users", "staffAttendance"} {
		if _, ok := fx[key]; !ok {
			t.Errorf("expected embedded fixture %s", key)
		}
	}
	if _, ok := fx[SentinelKey]; ok {
		t.Error("sentinel must not be a fixture")
	}
}
