package live

import (
	"encoding/json"
	"testing"
	"time"
)

func newTestClient(tenantID string) *Client {
	return &Client{
		ID:       tenantID + "-client",
		TenantID: tenantID,
		Messages: make(chan []byte, 8),
	}
}

func waitForClients(t *testing.T, b *Broker, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if b.ClientCount() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d clients, got %d", want, b.ClientCount())
}

func receiveEvent(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case msg := <-c.Messages:
		var ev Event
		if err := json.Unmarshal(msg, &ev); err != nil {
			t.Fatalf("failed to decode event %q: %v", msg, err)
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestBroadcastReachesOnlyTheTenant(t *testing.T) {
	b := NewBroker()
	defer b.Stop()

	demo := newTestClient("demo")
	acme := newTestClient("acme")
	if !b.addClient(demo) || !b.addClient(acme) {
		t.Fatal("failed to register clients")
	}
	waitForClients(t, b, 2)

	b.Broadcast("demo", Event{Type: EventEntityCreated, Resource: "products"})

	ev := receiveEvent(t, demo)
	if ev.Type != EventEntityCreated || ev.Resource != "products" {
		t.Errorf("unexpected event: %+v", ev)
	}

	select {
	case msg := <-acme.Messages:
		t.Errorf("other tenant received event: %s", msg)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBroadcastEmptyTenantReachesAll(t *testing.T) {
	b := NewBroker()
	defer b.Stop()

	demo := newTestClient("demo")
	acme := newTestClient("acme")
	b.addClient(demo)
	b.addClient(acme)
	waitForClients(t, b, 2)

	b.Broadcast("", Event{Type: EventLowStock})

	if ev := receiveEvent(t, demo); ev.Type != EventLowStock {
		t.Errorf("unexpected event for demo: %+v", ev)
	}
	if ev := receiveEvent(t, acme); ev.Type != EventLowStock {
		t.Errorf("unexpected event for acme: %+v", ev)
	}
}

func TestRemoveClientUpdatesCount(t *testing.T) {
	b := NewBroker()
	defer b.Stop()

	client := newTestClient("demo")
	b.addClient(client)
	waitForClients(t, b, 1)

	b.removeClient(client)
	waitForClients(t, b, 0)
}

func TestAddClientAfterStopDoesNotBlock(t *testing.T) {
	b := NewBroker()
	b.Stop()

	done := make(chan bool, 1)
	go func() {
		done <- b.addClient(newTestClient("demo"))
	}()

	select {
	case ok := <-done:
		if ok {
			t.Error("addClient on a stopped broker should report failure")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("addClient blocked on a stopped broker")
	}

	// The counterpart must not block either.
	b.removeClient(newTestClient("demo"))
}
