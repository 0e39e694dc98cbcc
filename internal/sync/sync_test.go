package sync

import (
	"context"
	"log/slog"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"chicklist/internal/database"
	"chicklist/internal/docstore"
)

func testEndpoint(t *testing.T) (*Client, *docstore.SQLiteStore) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	store := docstore.NewSQLiteStore(db)

	hub := NewHub(slog.Default())
	srv := httptest.NewServer(Handler(hub, store, slog.Default()))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	client, err := Dial(ctx, srv.URL, "")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(client.Close)
	return client, store
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestRemoteGetAbsent(t *testing.T) {
	client, _ := testEndpoint(t)
	ctx := context.Background()

	snap, err := client.Get(ctx, "lists", "ABCDEF")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if snap.Exists {
		t.Error("absent document reported as existing")
	}
}

func TestRemoteSetGetDelete(t *testing.T) {
	client, store := testEndpoint(t)
	ctx := context.Background()

	doc := docstore.Document{"name": "Ma Liste", "items": []any{}}
	if err := client.Set(ctx, "lists", "ABCDEF", doc, false); err != nil {
		t.Fatalf("set: %v", err)
	}

	// Visible through the wire and in the backing store.
	snap, err := client.Get(ctx, "lists", "ABCDEF")
	if err != nil || !snap.Exists {
		t.Fatalf("get: %v, exists=%v", err, snap.Exists)
	}
	if snap.Data["name"] != "Ma Liste" {
		t.Errorf("name = %v", snap.Data["name"])
	}
	local, _ := store.Get(ctx, "lists", "ABCDEF")
	if !local.Exists {
		t.Error("document missing from the backing store")
	}

	if err := client.Delete(ctx, "lists", "ABCDEF"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	snap, _ = client.Get(ctx, "lists", "ABCDEF")
	if snap.Exists {
		t.Error("document still exists after delete")
	}
}

func TestRemoteMerge(t *testing.T) {
	client, _ := testEndpoint(t)
	ctx := context.Background()

	if err := client.Set(ctx, "lists", "ABCDEF", docstore.Document{"name": "Courses", "color": "green"}, false); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := client.Set(ctx, "lists", "ABCDEF", docstore.Document{"name": "Vacances"}, true); err != nil {
		t.Fatalf("merge: %v", err)
	}

	snap, _ := client.Get(ctx, "lists", "ABCDEF")
	if snap.Data["name"] != "Vacances" || snap.Data["color"] != "green" {
		t.Errorf("merge lost fields: %#v", snap.Data)
	}
}

func TestRemoteSubscribe(t *testing.T) {
	client, store := testEndpoint(t)
	ctx := context.Background()

	if err := store.Set(ctx, "lists", "ABCDEF", docstore.Document{"name": "Courses"}, false); err != nil {
		t.Fatalf("seed: %v", err)
	}

	var mu sync.Mutex
	var got []docstore.Snapshot
	cancel, err := client.Subscribe(ctx, "lists", "ABCDEF", func(snap docstore.Snapshot) {
		mu.Lock()
		got = append(got, snap)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	// Current snapshot arrives first.
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) >= 1
	})
	mu.Lock()
	if !got[0].Exists || got[0].Data["name"] != "Courses" {
		t.Errorf("initial snapshot = %+v", got[0])
	}
	mu.Unlock()

	// A write behind the server reaches the client.
	if err := store.Set(ctx, "lists", "ABCDEF", docstore.Document{"name": "Vacances"}, false); err != nil {
		t.Fatalf("set: %v", err)
	}
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) >= 2 && got[len(got)-1].Data["name"] == "Vacances"
	})

	// After cancel, further writes stay silent.
	cancel()
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	seen := len(got)
	mu.Unlock()
	if err := store.Set(ctx, "lists", "ABCDEF", docstore.Document{"name": "Fantôme"}, false); err != nil {
		t.Fatalf("set: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	if len(got) != seen {
		t.Errorf("snapshots after cancel: %d -> %d", seen, len(got))
	}
	mu.Unlock()
}

func TestRemoteSubscribeCollection(t *testing.T) {
	client, store := testEndpoint(t)
	ctx := context.Background()

	var mu sync.Mutex
	var last []docstore.Snapshot
	cancel, err := client.SubscribeCollection(ctx, "users/u1/lists", func(snaps []docstore.Snapshot) {
		mu.Lock()
		last = snaps
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("subscribe collection: %v", err)
	}
	defer cancel()

	if err := store.Set(ctx, "users/u1/lists", "ABCDEF", docstore.Document{"code": "ABCDEF"}, false); err != nil {
		t.Fatalf("set: %v", err)
	}
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(last) == 1 && last[0].Key == "ABCDEF"
	})
}

func TestClientFailsAfterClose(t *testing.T) {
	client, _ := testEndpoint(t)
	client.Close()

	waitFor(t, func() bool {
		_, err := client.Get(context.Background(), "lists", "ABCDEF")
		return err != nil
	})
}
