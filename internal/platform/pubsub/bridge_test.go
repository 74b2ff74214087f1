package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/platform/collection"
)

type recordingReloader struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (r *recordingReloader) Reload(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, key)
	return r.err
}

func (r *recordingReloader) reloaded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.keys...)
}

func payload(t *testing.T, origin string, ev collection.ChangeEvent) string {
	t.Helper()
	raw, err := json.Marshal(envelope{Origin: origin, Event: ev})
	if err != nil {
		t.Fatal(err)
	}
	return string(raw)
}

func TestHandle(t *testing.T) {
	r := &recordingReloader{}
	b := NewBridge(nil, "hms:changes", r, zerolog.Nop())
	ctx := context.Background()

	if !b.handle(ctx, payload(t, "other", collection.ChangeEvent{Collection: "bills", Action: collection.ActionCreated})) {
		t.Error("expected remote event to trigger reload")
	}
	if b.handle(ctx, payload(t, b.Origin(), collection.ChangeEvent{Collection: "beds"})) {
		t.Error("own events must be ignored")
	}
	if b.handle(ctx, "not json") {
		t.Error("malformed payload must be ignored")
	}
	if b.handle(ctx, payload(t, "other", collection.ChangeEvent{})) {
		t.Error("event without collection must be ignored")
	}

	got := r.reloaded()
	if len(got) != 1 || got[0] != "bills" {
		t.Errorf("expected one reload of bills, got %v", got)
	}

	r.err = errors.New("store down")
	if b.handle(ctx, payload(t, "other", collection.ChangeEvent{Collection: "beds"})) {
		t.Error("failed reload must report false")
	}
}

func TestPublish_SkipsReloaded(t *testing.T) {
	// A nil client would panic if Publish reached Redis.
	b := NewBridge(nil, "hms:changes", &recordingReloader{}, zerolog.Nop())
	if err := b.Publish(context.Background(), collection.ChangeEvent{Collection: "bills", Action: collection.ActionReloaded}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestBridge_Redis(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	channel := "hms:test:" + time.Now().Format("150405.000000")
	r := &recordingReloader{}
	listener := NewBridge(client, channel, r, zerolog.Nop())
	sender := NewBridge(client, channel, &recordingReloader{}, zerolog.Nop())
	go listener.Run(ctx)

	deadline := time.Now().Add(3 * time.Second)
	for len(r.reloaded()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("listener never reloaded")
		}
		_ = sender.Publish(ctx, collection.ChangeEvent{Collection: "patients", Action: collection.ActionUpdated})
		time.Sleep(50 * time.Millisecond)
	}
	if got := r.reloaded()[0]; got != "patients" {
		t.Errorf("expected patients, got %s", got)
	}
}
