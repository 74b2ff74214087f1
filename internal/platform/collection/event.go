package collection

import (
	"context"
	"time"
)

// Action describes what a mutation did to a collection.
type Action string

const (
	ActionCreated  Action = "created"
	ActionUpdated  Action = "updated"
	ActionDeleted  Action = "deleted"
	ActionReplaced Action = "replaced"
	ActionReloaded Action = "reloaded"
)

// ChangeEvent is emitted after every successful mutation or reload.
type ChangeEvent struct {
	Collection string    `json:"collection"`
	Action     Action    `json:"action"`
	ID         string    `json:"id,omitempty"`
	Revision   uint64    `json:"revision"`
	At         time.Time `json:"at"`
}

// Publisher fans change events out of the process (websocket clients, other
// server instances).
type Publisher interface {
	Publish(ctx context.Context, ev ChangeEvent) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, ev ChangeEvent) error

func (f PublisherFunc) Publish(ctx context.Context, ev ChangeEvent) error {
	return f(ctx, ev)
}

// Publishers publishes to every member in order and returns the first error.
type Publishers []Publisher

func (ps Publishers) Publish(ctx context.Context, ev ChangeEvent) error {
	var first error
	for _, p := range ps {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Observer receives mutation counts and sizes, used for metrics.
type Observer interface {
	Mutated(collection string, action Action)
	Resized(collection string, records int)
}
