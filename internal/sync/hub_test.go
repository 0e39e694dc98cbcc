package sync

import (
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// mockSession creates a Session with a send channel but no real connection.
func mockSession(hub *Hub) *Session {
	return &Session{
		hub:  hub,
		send: make(chan []byte, sendBufferSize),
	}
}

func TestRegisterUnregister(t *testing.T) {
	hub := NewHub(slog.Default())

	s1 := mockSession(hub)
	s2 := mockSession(hub)

	hub.Register(s1)
	hub.Register(s2)

	if got := hub.SessionCount(); got != 2 {
		t.Fatalf("expected 2 sessions, got %d", got)
	}

	hub.Unregister(s1)

	if got := hub.SessionCount(); got != 1 {
		t.Fatalf("expected 1 session after unregister, got %d", got)
	}

	hub.Unregister(s2)

	if got := hub.SessionCount(); got != 0 {
		t.Fatalf("expected 0 sessions, got %d", got)
	}
}

func TestDoubleUnregister(t *testing.T) {
	hub := NewHub(slog.Default())
	s := mockSession(hub)
	hub.Register(s)
	hub.Unregister(s)
	// Should not panic
	hub.Unregister(s)

	if got := hub.SessionCount(); got != 0 {
		t.Fatalf("expected 0 sessions, got %d", got)
	}
}

func TestBroadcast(t *testing.T) {
	hub := NewHub(slog.Default())

	s1 := mockSession(hub)
	s2 := mockSession(hub)
	hub.Register(s1)
	hub.Register(s2)

	hub.Broadcast(Envelope{ID: NewID(), Type: TypeError, Error: "shutting down"})

	for _, s := range []*Session{s1, s2} {
		select {
		case data := <-s.send:
			var got Envelope
			if err := json.Unmarshal(data, &got); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got.Type != TypeError {
				t.Errorf("expected type %s, got %s", TypeError, got.Type)
			}
			if got.Error != "shutting down" {
				t.Errorf("expected error text, got %q", got.Error)
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatal("timeout waiting for envelope")
		}
	}

	hub.Unregister(s1)
	hub.Unregister(s2)
}

func TestBroadcastFullBuffer(t *testing.T) {
	hub := NewHub(slog.Default())

	s := mockSession(hub)
	hub.Register(s)

	for i := 0; i < sendBufferSize; i++ {
		hub.Broadcast(Envelope{ID: NewID(), Type: TypeResult})
	}

	// This should drop the envelope, not panic or block
	hub.Broadcast(Envelope{ID: NewID(), Type: TypeResult})

	count := 0
	for {
		select {
		case <-s.send:
			count++
		default:
			if count != sendBufferSize {
				t.Errorf("expected %d envelopes, got %d", sendBufferSize, count)
			}
			hub.Unregister(s)
			return
		}
	}
}

func TestConcurrentAccess(t *testing.T) {
	hub := NewHub(slog.Default())
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := mockSession(hub)
			hub.Register(s)
			hub.Broadcast(Envelope{ID: NewID(), Type: TypeResult})
			for {
				select {
				case <-s.send:
				default:
					hub.Unregister(s)
					return
				}
			}
		}()
	}

	wg.Wait()

	if got := hub.SessionCount(); got != 0 {
		t.Errorf("expected 0 sessions after concurrent test, got %d", got)
	}
}
