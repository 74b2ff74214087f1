package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/platform/collection"
)

func newClient(hub *Hub, id string, topics ...string) *Client {
	return &Client{
		ID:     id,
		Topics: topics,
		Send:   make(chan []byte, 256),
		hub:    hub,
	}
}

func receive(t *testing.T, c *Client) collection.ChangeEvent {
	t.Helper()
	select {
	case msg := <-c.Send:
		var ev collection.ChangeEvent
		if err := json.Unmarshal(msg, &ev); err != nil {
			t.Fatalf("failed to unmarshal: %v", err)
		}
		return ev
	case <-time.After(time.Second):
		t.Fatalf("client %s did not receive event", c.ID)
	}
	return collection.ChangeEvent{}
}

func TestHub_RegisterUnregister(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := newClient(hub, "client-1", "bills")

	hub.Register(client)
	if hub.ClientCount() != 1 || hub.TopicCount("bills") != 1 {
		t.Fatalf("expected 1 client on bills, got %d/%d", hub.ClientCount(), hub.TopicCount("bills"))
	}

	hub.Unregister(client)
	if hub.ClientCount() != 0 || hub.TopicCount("bills") != 0 {
		t.Fatalf("expected hub to be empty, got %d/%d", hub.ClientCount(), hub.TopicCount("bills"))
	}
	if _, ok := <-client.Send; ok {
		t.Fatal("expected Send to be closed")
	}

	// second unregister is a no-op
	hub.Unregister(client)
}

func TestHub_PublishToSubscribers(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	c1 := newClient(hub, "c1", "patients")
	c2 := newClient(hub, "c2", AllTopics)
	c3 := newClient(hub, "c3", "bills")
	hub.Register(c1)
	hub.Register(c2)
	hub.Register(c3)

	ev := collection.ChangeEvent{Collection: "patients", Action: collection.ActionCreated, ID: "p-9", Revision: 4}
	if err := hub.Publish(context.Background(), ev); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	for _, c := range []*Client{c1, c2} {
		got := receive(t, c)
		if got.ID != "p-9" || got.Revision != 4 {
			t.Fatalf("client %s: unexpected event %+v", c.ID, got)
		}
	}
	select {
	case <-c3.Send:
		t.Fatal("c3 should not have received a patients event")
	default:
	}
}

func TestHub_PublishOnceForOverlappingTopics(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	c := newClient(hub, "both", "bills", AllTopics)
	hub.Register(c)

	_ = hub.Publish(context.Background(), collection.ChangeEvent{Collection: "bills", Action: collection.ActionUpdated})
	receive(t, c)
	select {
	case <-c.Send:
		t.Fatal("event delivered twice")
	default:
	}
}

func TestHub_FullBufferDoesNotBlock(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	c := &Client{ID: "slow", Topics: []string{"beds"}, Send: make(chan []byte, 1)}
	hub.Register(c)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			_ = hub.Publish(context.Background(), collection.ChangeEvent{Collection: "beds"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full client buffer")
	}
}

func TestHub_SubscribeUnsubscribe(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := newClient(hub, "dyn")
	hub.Register(client)

	hub.ProcessMessage(client, ClientMessage{Action: "subscribe", Topics: []string{"vitals", "nurseAlerts", "vitals"}})
	if hub.TopicCount("vitals") != 1 || hub.TopicCount("nurseAlerts") != 1 {
		t.Fatal("expected subscriptions on vitals and nurseAlerts")
	}
	if len(client.Topics) != 2 {
		t.Fatalf("expected duplicate topic ignored, got %v", client.Topics)
	}

	hub.ProcessMessage(client, ClientMessage{Action: "unsubscribe", Topics: []string{"vitals"}})
	if hub.TopicCount("vitals") != 0 || hub.TopicCount("nurseAlerts") != 1 {
		t.Fatal("expected only nurseAlerts to remain")
	}
	if len(client.Topics) != 1 || client.Topics[0] != "nurseAlerts" {
		t.Fatalf("unexpected topics %v", client.Topics)
	}

	hub.ProcessMessage(client, ClientMessage{Action: "dance"})
}

func TestHub_ConcurrentRegisterUnregister(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := newClient(hub, "c", "bills")
			hub.Register(c)
			_ = hub.Publish(context.Background(), collection.ChangeEvent{Collection: "bills"})
			hub.Unregister(c)
		}()
	}
	wg.Wait()
	if hub.ClientCount() != 0 {
		t.Fatalf("expected 0 clients, got %d", hub.ClientCount())
	}
}

func TestHub_IsPublisher(t *testing.T) {
	var _ collection.Publisher = NewHub(zerolog.Nop())
}

func TestHandler_RequiresWebSocket(t *testing.T) {
	h := NewHandler(NewHub(zerolog.Nop()), nil)
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/ws", nil), rec)

	err := h.HandleConnect(c)
	if err == nil && rec.Code == http.StatusSwitchingProtocols {
		t.Fatal("expected upgrade to fail for non-websocket request")
	}
}

func TestHandler_FullUpgradeWithDialer(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	e := echo.New()
	NewHandler(hub, []string{"*"}).RegisterRoutes(e.Group(""))

	server := httptest.NewServer(e)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?topic=appointments"
	conn, resp, err := gorillawebsocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	defer conn.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("expected 101, got %d", resp.StatusCode)
	}

	if err := conn.WriteJSON(ClientMessage{Action: "subscribe", Topics: []string{"bills"}}); err != nil {
		t.Fatalf("failed to send subscribe: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for hub.TopicCount("bills") != 1 || hub.TopicCount("appointments") != 1 {
		if time.Now().After(deadline) {
			t.Fatal("subscriptions were not registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	_ = hub.Publish(context.Background(), collection.ChangeEvent{Collection: "bills", Action: collection.ActionDeleted, ID: "bill-1"})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var received collection.ChangeEvent
	if err := conn.ReadJSON(&received); err != nil {
		t.Fatalf("failed to read event: %v", err)
	}
	if received.Action != collection.ActionDeleted || received.ID != "bill-1" {
		t.Fatalf("unexpected event %+v", received)
	}
}

func TestHandler_RejectsForeignOrigin(t *testing.T) {
	e := echo.New()
	NewHandler(NewHub(zerolog.Nop()), []string{"http://hms.local"}).RegisterRoutes(e.Group(""))
	server := httptest.NewServer(e)
	defer server.Close()

	header := http.Header{"Origin": []string{"http://evil.test"}}
	_, _, err := gorillawebsocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/ws", header)
	if err == nil {
		t.Fatal("expected handshake to fail for foreign origin")
	}
}
