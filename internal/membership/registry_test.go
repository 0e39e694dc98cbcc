package membership

import (
	"context"
	"testing"

	"chicklist/internal/database"
	"chicklist/internal/docstore"
)

func setupRegistry(t *testing.T) (*Registry, *docstore.SQLiteStore) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	docs := docstore.NewSQLiteStore(db)
	return NewRegistry(docs), docs
}

func TestJoinLeaveSubscribe(t *testing.T) {
	reg, _ := setupRegistry(t)
	ctx := context.Background()

	var got []Record
	cancel, err := reg.Subscribe(ctx, "u1", func(records []Record) {
		got = records
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	if len(got) != 0 {
		t.Fatalf("expected no records initially, got %d", len(got))
	}

	if err := reg.Join(ctx, "u1", "A3B7K2", "Courses"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if len(got) != 1 || got[0].Code != "A3B7K2" || got[0].Name != "Courses" {
		t.Fatalf("after join got %#v", got)
	}
	if got[0].JoinedAt.IsZero() {
		t.Error("joinedAt not recorded")
	}

	if err := reg.Leave(ctx, "u1", "A3B7K2"); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("after leave got %#v", got)
	}
}

func TestJoinMergeKeepsConcurrentName(t *testing.T) {
	reg, docs := setupRegistry(t)
	ctx := context.Background()

	// Another device already wrote a name for this membership.
	err := docs.Set(ctx, CollectionFor("u1"), "A3B7K2", docstore.Document{"name": "Maison"}, false)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	// Joining without a name must not clobber it.
	if err := reg.Join(ctx, "u1", "A3B7K2", ""); err != nil {
		t.Fatalf("join: %v", err)
	}

	snap, err := docs.Get(ctx, CollectionFor("u1"), "A3B7K2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if snap.Data["name"] != "Maison" {
		t.Errorf("name = %v, want Maison", snap.Data["name"])
	}
	if snap.Data["code"] != "A3B7K2" {
		t.Errorf("code = %v, want A3B7K2", snap.Data["code"])
	}
}

func TestRecordCodeFallsBackToKey(t *testing.T) {
	reg, docs := setupRegistry(t)
	ctx := context.Background()

	// Legacy record without an explicit code field.
	err := docs.Set(ctx, CollectionFor("u1"), "ZZTTPP", docstore.Document{"name": "Vacances"}, false)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	var got []Record
	cancel, err := reg.Subscribe(ctx, "u1", func(records []Record) { got = records })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	if len(got) != 1 || got[0].Code != "ZZTTPP" {
		t.Fatalf("expected code fallback to document key, got %#v", got)
	}
}

func TestCollectionsIsolatedPerUser(t *testing.T) {
	reg, _ := setupRegistry(t)
	ctx := context.Background()

	if err := reg.Join(ctx, "u1", "A3B7K2", "Courses"); err != nil {
		t.Fatalf("join: %v", err)
	}

	var got []Record
	cancel, err := reg.Subscribe(ctx, "u2", func(records []Record) { got = records })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	if len(got) != 0 {
		t.Fatalf("u2 sees u1 memberships: %#v", got)
	}
}
