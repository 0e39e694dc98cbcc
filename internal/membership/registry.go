// Package membership tracks which lists a user has joined: one record per
// (user, share code) in a per-user collection of the document store.
package membership

import (
	"context"
	"time"

	"chicklist/internal/docstore"
)

// Record associates a share code with the display name the list had when the
// user joined. The document key is the share code itself; Code is carried in
// the body as well so consumers can fall back either way.
type Record struct {
	Code     string
	Name     string
	JoinedAt time.Time
}

// Registry reads and writes membership records for any user.
type Registry struct {
	docs docstore.Store
}

func NewRegistry(docs docstore.Store) *Registry {
	return &Registry{docs: docs}
}

// CollectionFor names the per-user membership collection.
func CollectionFor(userID string) string {
	return "users/" + userID + "/lists"
}

// Join records that the user joined the list behind code. The write is a
// field-level merge so it never clobbers a name written concurrently by
// another device.
func (r *Registry) Join(ctx context.Context, userID, code, name string) error {
	doc := docstore.Document{
		"code":     code,
		"joinedAt": time.Now().UTC().Format(time.RFC3339),
	}
	if name != "" {
		doc["name"] = name
	}
	return r.docs.Set(ctx, CollectionFor(userID), code, doc, true)
}

// Leave deletes the membership record for code.
func (r *Registry) Leave(ctx context.Context, userID, code string) error {
	return r.docs.Delete(ctx, CollectionFor(userID), code)
}

// Subscribe delivers the user's current membership records immediately and
// again on every change, until cancelled.
func (r *Registry) Subscribe(ctx context.Context, userID string, fn func([]Record)) (docstore.CancelFunc, error) {
	return r.docs.SubscribeCollection(ctx, CollectionFor(userID), func(snaps []docstore.Snapshot) {
		fn(recordsFromSnapshots(snaps))
	})
}

func recordsFromSnapshots(snaps []docstore.Snapshot) []Record {
	records := make([]Record, 0, len(snaps))
	for _, snap := range snaps {
		if !snap.Exists {
			continue
		}
		rec := Record{Code: snap.Key}
		if code, ok := snap.Data["code"].(string); ok && code != "" {
			rec.Code = code
		}
		if name, ok := snap.Data["name"].(string); ok {
			rec.Name = name
		}
		if raw, ok := snap.Data["joinedAt"].(string); ok {
			if ts, err := time.Parse(time.RFC3339, raw); err == nil {
				rec.JoinedAt = ts
			}
		}
		records = append(records, rec)
	}
	return records
}
