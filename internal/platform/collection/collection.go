// Package collection binds a named store key to an in-memory array of typed
// records. A Collection is the single owner of its key inside the process:
// every mutation runs under its lock, rewrites the whole array through the
// store and then notifies subscribers.
//
// Writers in other processes are not coordinated; the store stays
// last-writer-wins across processes and peers are expected to Reload when
// they receive a change signal.
package collection

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/hms/hms/internal/platform/store"
)

// Record is implemented by every collection element.
type Record interface {
	RecordID() string
}

type mutateConfig struct {
	ifRevision *uint64
}

// MutateOption tunes a single mutation.
type MutateOption func(*mutateConfig)

// IfRevision makes the mutation fail with ErrConflict unless the collection
// is still at rev.
func IfRevision(rev uint64) MutateOption {
	return func(c *mutateConfig) { c.ifRevision = &rev }
}

type Collection[T Record] struct {
	key string
	reg *Registry

	mu       sync.RWMutex
	items    []T
	rev      uint64
	validate func(T) error

	subMu   sync.Mutex
	subs    map[int]func(ChangeEvent)
	nextSub int
}

// Open loads key through store.Get, seeding it with defaults when absent,
// and registers the returned Collection as the key's owner.
func Open[T Record](ctx context.Context, reg *Registry, key string, defaults []T) (*Collection[T], error) {
	items, err := store.Get(ctx, reg.store, key, defaults)
	if err != nil {
		return nil, err
	}
	c := &Collection[T]{
		key:   key,
		reg:   reg,
		items: items,
		subs:  make(map[int]func(ChangeEvent)),
	}
	if err := reg.register(c); err != nil {
		return nil, err
	}
	if reg.observer != nil {
		reg.observer.Resized(key, len(items))
	}
	return c, nil
}

func (c *Collection[T]) Key() string { return c.key }

func (c *Collection[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *Collection[T]) Revision() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rev
}

// SetValidator installs a check run on every record before it is persisted
// by Add, Update, Mutate and SetData.
func (c *Collection[T]) SetValidator(fn func(T) error) {
	c.mu.Lock()
	c.validate = fn
	c.mu.Unlock()
}

// List returns a copy of the array. Records are values; slices nested inside
// a record still share backing arrays and must not be modified in place.
func (c *Collection[T]) List() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]T, len(c.items))
	copy(out, c.items)
	return out
}

func (c *Collection[T]) Get(id string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, it := range c.items {
		if it.RecordID() == id {
			return it, true
		}
	}
	var zero T
	return zero, false
}

// Find returns the records matching pred in stored order.
func (c *Collection[T]) Find(pred func(T) bool) []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []T
	for _, it := range c.items {
		if pred(it) {
			out = append(out, it)
		}
	}
	return out
}

// Add appends rec. The id must be set and unused.
func (c *Collection[T]) Add(ctx context.Context, rec T, opts ...MutateOption) error {
	id := rec.RecordID()
	_, _, err := c.mutate(ctx, opts, func(cur []T) ([]T, ChangeEvent, error) {
		if id == "" {
			return nil, ChangeEvent{}, fmt.Errorf("%w: id is required", ErrInvalid)
		}
		if indexOf(cur, id) >= 0 {
			return nil, ChangeEvent{}, fmt.Errorf("%w: %s %s already exists", ErrDuplicate, c.key, id)
		}
		if err := c.check(rec); err != nil {
			return nil, ChangeEvent{}, err
		}
		next := make([]T, len(cur), len(cur)+1)
		copy(next, cur)
		next = append(next, rec)
		return next, ChangeEvent{Action: ActionCreated, ID: id}, nil
	})
	return err
}

// Update shallow-merges partial into the record with the given id. The "id"
// key of partial is ignored. A missing id is a silent no-op: found is false
// and err is nil.
func (c *Collection[T]) Update(ctx context.Context, id string, partial map[string]any, opts ...MutateOption) (T, bool, error) {
	return c.Mutate(ctx, id, func(rec *T) error {
		merged, err := Merge(*rec, partial)
		if err != nil {
			return err
		}
		*rec = merged
		return nil
	}, opts...)
}

// Mutate applies fn to a copy of the record with the given id and persists
// the result. The record's id cannot be changed. A missing id is a silent
// no-op.
func (c *Collection[T]) Mutate(ctx context.Context, id string, fn func(*T) error, opts ...MutateOption) (T, bool, error) {
	var updated T
	found, _, err := c.mutate(ctx, opts, func(cur []T) ([]T, ChangeEvent, error) {
		i := indexOf(cur, id)
		if i < 0 {
			return nil, ChangeEvent{}, nil
		}
		rec := cur[i]
		if err := fn(&rec); err != nil {
			return nil, ChangeEvent{}, err
		}
		if rec.RecordID() != id {
			return nil, ChangeEvent{}, fmt.Errorf("%w: id cannot be changed", ErrInvalid)
		}
		if err := c.check(rec); err != nil {
			return nil, ChangeEvent{}, err
		}
		next := make([]T, len(cur))
		copy(next, cur)
		next[i] = rec
		updated = rec
		return next, ChangeEvent{Action: ActionUpdated, ID: id}, nil
	})
	return updated, found, err
}

// Delete removes the record with the given id. Deleting a missing id is a
// no-op that reports found=false.
func (c *Collection[T]) Delete(ctx context.Context, id string, opts ...MutateOption) (bool, error) {
	found, _, err := c.mutate(ctx, opts, func(cur []T) ([]T, ChangeEvent, error) {
		i := indexOf(cur, id)
		if i < 0 {
			return nil, ChangeEvent{}, nil
		}
		next := make([]T, 0, len(cur)-1)
		next = append(next, cur[:i]...)
		next = append(next, cur[i+1:]...)
		return next, ChangeEvent{Action: ActionDeleted, ID: id}, nil
	})
	return found, err
}

// SetData replaces the whole collection. Every record is validated and ids
// must be unique.
func (c *Collection[T]) SetData(ctx context.Context, items []T, opts ...MutateOption) error {
	_, _, err := c.mutate(ctx, opts, func([]T) ([]T, ChangeEvent, error) {
		for _, it := range items {
			if err := c.check(it); err != nil {
				return nil, ChangeEvent{}, err
			}
		}
		next := make([]T, len(items))
		copy(next, items)
		return next, ChangeEvent{Action: ActionReplaced}, nil
	})
	return err
}

// Apply runs fn against the current array under the owner lock and persists
// what it returns. Records are not passed through the validator; fn is
// expected to check what it changes. Returning a nil slice with a nil error
// leaves the collection untouched.
func (c *Collection[T]) Apply(ctx context.Context, fn func(cur []T) ([]T, error), opts ...MutateOption) error {
	_, _, err := c.mutate(ctx, opts, func(cur []T) ([]T, ChangeEvent, error) {
		view := make([]T, len(cur))
		copy(view, cur)
		next, err := fn(view)
		if err != nil || next == nil {
			return nil, ChangeEvent{}, err
		}
		return next, ChangeEvent{Action: ActionReplaced}, nil
	})
	return err
}

// Reload replaces the in-memory array with what the store currently holds.
// An absent key leaves the collection as it is.
func (c *Collection[T]) Reload(ctx context.Context) error {
	raw, ok, err := c.reg.store.Load(ctx, c.key)
	if err != nil {
		return fmt.Errorf("%w: reload %s: %v", ErrStore, c.key, err)
	}
	if !ok {
		return nil
	}
	var items []T
	if err := json.Unmarshal(raw, &items); err != nil {
		return fmt.Errorf("%w: key %s: %v", store.ErrMalformed, c.key, err)
	}

	c.mu.Lock()
	c.items = items
	c.rev++
	ev := ChangeEvent{Collection: c.key, Action: ActionReloaded, Revision: c.rev, At: time.Now().UTC()}
	size := len(items)
	c.mu.Unlock()

	c.notify(ctx, ev, size)
	return nil
}

// Subscribe registers fn to be called after every mutation. The returned
// function removes the subscription.
func (c *Collection[T]) Subscribe(fn func(ChangeEvent)) func() {
	c.subMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.subMu.Unlock()

	return func() {
		c.subMu.Lock()
		delete(c.subs, id)
		c.subMu.Unlock()
	}
}

// mutate is the single write path. step returns the next array and the event
// describing it; an empty event action means nothing changed.
func (c *Collection[T]) mutate(ctx context.Context, opts []MutateOption, step func(cur []T) ([]T, ChangeEvent, error)) (bool, ChangeEvent, error) {
	var cfg mutateConfig
	for _, o := range opts {
		o(&cfg)
	}

	c.mu.Lock()
	if cfg.ifRevision != nil && *cfg.ifRevision != c.rev {
		rev := c.rev
		c.mu.Unlock()
		return false, ChangeEvent{}, fmt.Errorf("%w: %s is at revision %d, expected %d", ErrConflict, c.key, rev, *cfg.ifRevision)
	}

	next, ev, err := step(c.items)
	if err != nil || ev.Action == "" {
		c.mu.Unlock()
		return false, ChangeEvent{}, err
	}
	if dup := firstDuplicate(next); dup != "" {
		c.mu.Unlock()
		return false, ChangeEvent{}, fmt.Errorf("%w: %s %s appears twice", ErrDuplicate, c.key, dup)
	}
	if err := store.Set(ctx, c.reg.store, c.key, next); err != nil {
		c.mu.Unlock()
		c.reg.logger.Error().Err(err).Str("collection", c.key).Msg("persist failed, keeping previous state")
		return false, ChangeEvent{}, fmt.Errorf("%w: %v", ErrStore, err)
	}
	c.items = next
	c.rev++
	ev.Collection = c.key
	ev.Revision = c.rev
	ev.At = time.Now().UTC()
	size := len(next)
	c.mu.Unlock()

	c.reg.logger.Debug().
		Str("collection", c.key).
		Str("action", string(ev.Action)).
		Str("id", ev.ID).
		Uint64("revision", ev.Revision).
		Msg("collection mutated")

	c.notify(ctx, ev, size)
	return true, ev, nil
}

func (c *Collection[T]) notify(ctx context.Context, ev ChangeEvent, size int) {
	c.subMu.Lock()
	subs := make([]func(ChangeEvent), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.subMu.Unlock()

	for _, fn := range subs {
		fn(ev)
	}
	c.reg.emit(ctx, ev, size)
}

func (c *Collection[T]) check(rec T) error {
	if c.validate == nil {
		return nil
	}
	if err := c.validate(rec); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

func indexOf[T Record](items []T, id string) int {
	for i, it := range items {
		if it.RecordID() == id {
			return i
		}
	}
	return -1
}

func firstDuplicate[T Record](items []T) string {
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		id := it.RecordID()
		if _, ok := seen[id]; ok {
			return id
		}
		seen[id] = struct{}{}
	}
	return ""
}

// Merge overlays the top-level JSON fields of partial onto rec. The "id"
// key is skipped.
func Merge[T any](rec T, partial map[string]any) (T, error) {
	var out T
	base, err := json.Marshal(rec)
	if err != nil {
		return out, err
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(base, &fields); err != nil {
		return out, err
	}
	for k, v := range partial {
		if k == "id" {
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return out, fmt.Errorf("%w: field %s: %v", ErrInvalid, k, err)
		}
		fields[k] = raw
	}
	merged, err := json.Marshal(fields)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(merged, &out); err != nil {
		return out, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return out, nil
}
