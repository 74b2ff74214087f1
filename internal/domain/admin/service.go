package admin

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hms/hms/internal/platform/clock"
	"github.com/hms/hms/internal/platform/collection"
	"github.com/hms/hms/internal/platform/store"
)

// Defaults fill in for settings that were never stored.
type Defaults struct {
	HospitalName           string
	Currency               string
	TaxRate                float64
	PharmacyExpiryWarnDays int
	BloodExpiryWarnDays    int
}

func (d Defaults) settings() Settings {
	return Settings{
		ID:                     SettingsID,
		HospitalName:           d.HospitalName,
		Currency:               d.Currency,
		TaxRate:                d.TaxRate,
		PharmacyExpiryWarnDays: d.PharmacyExpiryWarnDays,
		BloodExpiryWarnDays:    d.BloodExpiryWarnDays,
		LowStockAlerts:         true,
	}
}

func Open(ctx context.Context, reg *collection.Registry) (*collection.Collection[Settings], error) {
	return collection.Open[Settings](ctx, reg, Key, nil)
}

type Service struct {
	settings *collection.Collection[Settings]
	reg      *collection.Registry
	defaults Defaults
	clock    clock.Clock
}

func NewService(settings *collection.Collection[Settings], reg *collection.Registry, defaults Defaults, clk clock.Clock) *Service {
	settings.SetValidator(Settings.Validate)
	return &Service{settings: settings, reg: reg, defaults: defaults, clock: clk}
}

// Settings returns the stored settings, or the defaults when none are
// stored.
func (s *Service) Settings() Settings {
	if st, ok := s.settings.Get(SettingsID); ok {
		return st
	}
	return s.defaults.settings()
}

// UpdateSettings merges partial into the current settings, storing the
// defaults first when nothing was stored yet.
func (s *Service) UpdateSettings(ctx context.Context, partial map[string]any) (Settings, error) {
	delete(partial, "updatedAt")
	stamp := s.clock.Now().UTC().Format(time.RFC3339)
	var out Settings
	err := s.settings.Apply(ctx, func(cur []Settings) ([]Settings, error) {
		idx := -1
		base := s.defaults.settings()
		for i, st := range cur {
			if st.ID == SettingsID {
				idx, base = i, st
			}
		}
		merged, err := collection.Merge(base, partial)
		if err != nil {
			return nil, err
		}
		merged.UpdatedAt = stamp
		if err := merged.Validate(); err != nil {
			return nil, collection.Invalid(err)
		}
		out = merged
		if idx < 0 {
			return append(cur, merged), nil
		}
		cur[idx] = merged
		return cur, nil
	})
	if err != nil {
		return Settings{}, err
	}
	return out, nil
}

func (s *Service) TaxRate() float64 {
	return s.Settings().TaxRate
}

func (s *Service) PharmacyExpiryWarnDays() int {
	if d := s.Settings().PharmacyExpiryWarnDays; d > 0 {
		return d
	}
	return s.defaults.PharmacyExpiryWarnDays
}

func (s *Service) BloodExpiryWarnDays() int {
	if d := s.Settings().BloodExpiryWarnDays; d > 0 {
		return d
	}
	return s.defaults.BloodExpiryWarnDays
}

// -- Collections --

func (s *Service) Collections() []collection.Stat {
	return s.reg.Stats()
}

// Reload re-reads key from the store, e.g. after an out-of-band edit.
func (s *Service) Reload(ctx context.Context, key string) (collection.Stat, error) {
	stat, ok := s.stat(key)
	if !ok {
		return collection.Stat{}, collection.NotFoundf("collection %s is not open", key)
	}
	if err := s.reg.Reload(ctx, key); err != nil {
		return collection.Stat{}, err
	}
	stat, _ = s.stat(key)
	return stat, nil
}

// Export returns the persisted value of key exactly as stored.
func (s *Service) Export(ctx context.Context, key string) (json.RawMessage, error) {
	raw, ok, err := s.reg.Store().Load(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, collection.NotFoundf("key %s is not stored", key)
	}
	if !json.Valid(raw) {
		return nil, store.ErrMalformed
	}
	return raw, nil
}

func (s *Service) stat(key string) (collection.Stat, bool) {
	for _, st := range s.reg.Stats() {
		if st.Key == key {
			return st, true
		}
	}
	return collection.Stat{}, false
}
