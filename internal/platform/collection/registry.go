package collection

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/platform/store"
)

// owner is the type-erased view of a Collection the registry keeps.
type owner interface {
	Key() string
	Len() int
	Revision() uint64
	Reload(ctx context.Context) error
}

// Stat summarizes one open collection.
type Stat struct {
	Key      string `json:"key"`
	Records  int    `json:"records"`
	Revision uint64 `json:"revision"`
}

// Registry hands out exactly one Collection per key and carries the shared
// store, logger, publisher and observer.
type Registry struct {
	store    store.Store
	logger   zerolog.Logger
	pub      Publisher
	observer Observer

	mu     sync.RWMutex
	owners map[string]owner
}

type RegistryOption func(*Registry)

func WithPublisher(p Publisher) RegistryOption {
	return func(r *Registry) { r.pub = p }
}

func WithObserver(o Observer) RegistryOption {
	return func(r *Registry) { r.observer = o }
}

func NewRegistry(s store.Store, logger zerolog.Logger, opts ...RegistryOption) *Registry {
	r := &Registry{
		store:  s,
		logger: logger.With().Str("component", "collection").Logger(),
		owners: make(map[string]owner),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Registry) Store() store.Store { return r.store }

func (r *Registry) register(o owner) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.owners[o.Key()]; ok {
		return fmt.Errorf("collection %s already open", o.Key())
	}
	r.owners[o.Key()] = o
	return nil
}

// Keys returns the keys of all open collections, sorted.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.owners))
	for k := range r.owners {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Stats returns record counts and revisions for every open collection.
func (r *Registry) Stats() []Stat {
	r.mu.RLock()
	owners := make([]owner, 0, len(r.owners))
	for _, o := range r.owners {
		owners = append(owners, o)
	}
	r.mu.RUnlock()

	stats := make([]Stat, 0, len(owners))
	for _, o := range owners {
		stats = append(stats, Stat{Key: o.Key(), Records: o.Len(), Revision: o.Revision()})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Key < stats[j].Key })
	return stats
}

// Reload re-reads one collection from the store. Unknown keys are ignored so
// that signals for collections this process never opened are harmless.
func (r *Registry) Reload(ctx context.Context, key string) error {
	r.mu.RLock()
	o, ok := r.owners[key]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	return o.Reload(ctx)
}

func (r *Registry) emit(ctx context.Context, ev ChangeEvent, size int) {
	if r.observer != nil {
		r.observer.Mutated(ev.Collection, ev.Action)
		r.observer.Resized(ev.Collection, size)
	}
	if r.pub != nil {
		if err := r.pub.Publish(ctx, ev); err != nil {
			r.logger.Warn().Err(err).
				Str("collection", ev.Collection).
				Str("action", string(ev.Action)).
				Msg("publish change event")
		}
	}
}
