package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
)

// mockTransport implements sentry.Transport for testing.
type mockTransport struct {
	mu     sync.RWMutex
	events []*sentry.Event
}

//nolint:gocritic // hugeParam: interface requirement, cannot change signature
func (t *mockTransport) Configure(_ sentry.ClientOptions) {}

func (t *mockTransport) SendEvent(event *sentry.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, event)
}

func (t *mockTransport) Flush(time.Duration) bool { return true }

func (t *mockTransport) FlushWithContext(context.Context) bool { return true }

func (t *mockTransport) Close() {}

func (t *mockTransport) Events() []*sentry.Event {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*sentry.Event, len(t.events))
	copy(out, t.events)
	return out
}

// newTestHub returns a hub whose client sends to a mock transport.
func newTestHub(t interface{ Fatalf(string, ...any) }) (*sentry.Hub, *mockTransport) {
	transport := &mockTransport{}
	client, err := sentry.NewClient(sentry.ClientOptions{
		Transport:  transport,
		SampleRate: 1.0,
	})
	if err != nil {
		t.Fatalf("failed to create sentry client: %v", err)
	}
	return sentry.NewHub(client, sentry.NewScope()), transport
}
