package notification

import (
	"context"
	"testing"
	"time"
)

// recordingProvider captures sent events for assertions.
type recordingProvider struct {
	events chan Event
	tested chan struct{}
}

func newRecordingProvider() *recordingProvider {
	return &recordingProvider{
		events: make(chan Event, 8),
		tested: make(chan struct{}, 1),
	}
}

func (p *recordingProvider) Name() string { return "recording" }

func (p *recordingProvider) Send(_ context.Context, event Event) error {
	p.events <- event
	return nil
}

func (p *recordingProvider) Test(_ context.Context) error {
	p.tested <- struct{}{}
	return nil
}

func TestRegisterStartsAndUnregisterStops(t *testing.T) {
	m := NewManager()
	if m.IsRunning() {
		t.Fatal("manager should not run without providers")
	}
	if m.Start() {
		t.Fatal("Start without providers should report false")
	}

	p := newRecordingProvider()
	m.RegisterProvider("recording", p)
	if !m.IsRunning() {
		t.Fatal("registering the first provider should start the manager")
	}

	m.UnregisterProvider("recording")
	if m.IsRunning() {
		t.Fatal("unregistering the last provider should stop the manager")
	}
}

func TestNotifyDispatchesToProvider(t *testing.T) {
	m := NewManager()
	p := newRecordingProvider()
	m.RegisterProvider("recording", p)
	defer m.Stop()

	m.NotifySimple(EventOrderSubmitted, "demo", "Order submitted", "Order #7")

	select {
	case got := <-p.events:
		if got.Type != EventOrderSubmitted || got.TenantID != "demo" {
			t.Errorf("unexpected event: %+v", got)
		}
		if got.Timestamp.IsZero() {
			t.Error("expected a timestamp to be stamped on dispatch")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dispatch")
	}
}

func TestTestProvider(t *testing.T) {
	m := NewManager()
	p := newRecordingProvider()
	m.RegisterProvider("recording", p)
	defer m.Stop()

	if err := m.TestProvider("recording"); err != nil {
		t.Fatalf("test provider failed: %v", err)
	}
	select {
	case <-p.tested:
	case <-time.After(2 * time.Second):
		t.Fatal("provider Test was not invoked")
	}

	if err := m.TestProvider("nope"); err == nil {
		t.Error("expected an error for an unknown provider")
	}
}
