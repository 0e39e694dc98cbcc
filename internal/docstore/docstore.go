// Package docstore defines the document-store contract the sync layer is
// written against: a remote, multi-client database of JSON documents grouped
// into named collections, with point reads/writes and live subscriptions.
package docstore

import "context"

// Document is a decoded JSON document.
type Document = map[string]any

// Snapshot is the state of a single document at a point in time. Exists is
// false when the document is absent; Data is nil in that case.
type Snapshot struct {
	Key    string
	Data   Document
	Exists bool
}

// CancelFunc tears down a subscription. Safe to call more than once.
type CancelFunc func()

// Store is the abstract document database. Subscriptions deliver the current
// state immediately and again on every subsequent change, until cancelled.
//
// Set overwrites the full document when merge is false (list documents) and
// performs a field-level merge when merge is true (membership records).
type Store interface {
	Get(ctx context.Context, collection, key string) (Snapshot, error)
	Set(ctx context.Context, collection, key string, doc Document, merge bool) error
	Delete(ctx context.Context, collection, key string) error
	Subscribe(ctx context.Context, collection, key string, fn func(Snapshot)) (CancelFunc, error)
	SubscribeCollection(ctx context.Context, collection string, fn func([]Snapshot)) (CancelFunc, error)
}

// Sanitize returns a copy of doc with nil ("absent") fields stripped
// recursively. Backends reject documents carrying absent markers, so every
// write path runs through this first.
func Sanitize(doc Document) Document {
	if doc == nil {
		return nil
	}
	out := make(Document, len(doc))
	for k, v := range doc {
		if v == nil {
			continue
		}
		out[k] = sanitizeValue(v)
	}
	return out
}

func sanitizeValue(v any) any {
	switch val := v.(type) {
	case Document:
		return Sanitize(val)
	case []any:
		out := make([]any, 0, len(val))
		for _, el := range val {
			if el == nil {
				continue
			}
			out = append(out, sanitizeValue(el))
		}
		return out
	default:
		return v
	}
}

// Merge deep-merges patch into base and returns the result. Patch fields win;
// nested documents merge recursively; any other value replaces wholesale.
func Merge(base, patch Document) Document {
	out := make(Document, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		pm, pok := v.(Document)
		bm, bok := out[k].(Document)
		if pok && bok {
			out[k] = Merge(bm, pm)
			continue
		}
		out[k] = v
	}
	return out
}
