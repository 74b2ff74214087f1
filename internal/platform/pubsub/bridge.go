// Package pubsub relays collection change events between server instances
// over a Redis channel. An instance that receives an event for a
// collection it owns reloads that collection from the shared store.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/platform/collection"
)

// Reloader re-reads one collection from the store.
type Reloader interface {
	Reload(ctx context.Context, key string) error
}

type envelope struct {
	Origin string                 `json:"origin"`
	Event  collection.ChangeEvent `json:"event"`
}

// Bridge implements collection.Publisher on top of Redis pub/sub.
type Bridge struct {
	client   redis.UniversalClient
	channel  string
	origin   string
	reloader Reloader
	logger   zerolog.Logger
}

func NewBridge(client redis.UniversalClient, channel string, reloader Reloader, logger zerolog.Logger) *Bridge {
	return &Bridge{
		client:   client,
		channel:  channel,
		origin:   uuid.NewString(),
		reloader: reloader,
		logger:   logger.With().Str("component", "pubsub").Str("channel", channel).Logger(),
	}
}

// Origin identifies this instance on the channel.
func (b *Bridge) Origin() string { return b.origin }

// Publish announces a local mutation. Reload events are not relayed; they
// are the reaction to a remote event and would echo forever.
func (b *Bridge) Publish(ctx context.Context, ev collection.ChangeEvent) error {
	if ev.Action == collection.ActionReloaded {
		return nil
	}
	payload, err := json.Marshal(envelope{Origin: b.origin, Event: ev})
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", b.channel, err)
	}
	return nil
}

// Run subscribes to the channel until ctx is cancelled, resubscribing with
// exponential backoff when the connection drops.
func (b *Bridge) Run(ctx context.Context) error {
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		err := b.listen(ctx)
		if ctx.Err() != nil {
			return nil
		}
		b.logger.Warn().Err(err).Dur("retry_in", backoff).Msg("subscription lost")
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (b *Bridge) listen(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	b.logger.Info().Str("origin", b.origin).Msg("listening for remote changes")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("channel %s closed", b.channel)
			}
			b.handle(ctx, msg.Payload)
		}
	}
}

// handle reloads the collection named by a remote event. Malformed
// payloads and our own events are ignored.
func (b *Bridge) handle(ctx context.Context, payload string) bool {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		b.logger.Warn().Err(err).Msg("ignoring malformed change event")
		return false
	}
	if env.Origin == b.origin || env.Event.Collection == "" {
		return false
	}
	if err := b.reloader.Reload(ctx, env.Event.Collection); err != nil {
		b.logger.Error().Err(err).Str("collection", env.Event.Collection).Msg("reload after remote change")
		return false
	}
	b.logger.Debug().
		Str("collection", env.Event.Collection).
		Str("from", env.Origin).
		Uint64("remote_revision", env.Event.Revision).
		Msg("reloaded after remote change")
	return true
}
