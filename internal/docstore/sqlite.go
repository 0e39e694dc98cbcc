package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
)

// SQLiteStore is a Store backed by a SQLite documents table. Change
// notification is in-process: every writer goes through this value, so
// subscribers registered on it see all changes. Suitable for the daemon
// (which owns the database) and for the single-user local mode.
type SQLiteStore struct {
	db *sql.DB

	mu       sync.Mutex
	nextSub  int
	docSubs  map[string]map[int]func(Snapshot)
	collSubs map[string]map[int]func([]Snapshot)
}

// NewSQLiteStore wraps an already-opened database (see database.Open).
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{
		db:       db,
		docSubs:  make(map[string]map[int]func(Snapshot)),
		collSubs: make(map[string]map[int]func([]Snapshot)),
	}
}

func topic(collection, key string) string {
	return collection + "\x00" + key
}

func (s *SQLiteStore) Get(ctx context.Context, collection, key string) (Snapshot, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = ? AND key = ?`,
		collection, key,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return Snapshot{Key: key}, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("get document %s/%s: %w", collection, key, err)
	}

	var doc Document
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		return Snapshot{}, fmt.Errorf("decode document %s/%s: %w", collection, key, err)
	}
	return Snapshot{Key: key, Data: doc, Exists: true}, nil
}

func (s *SQLiteStore) Set(ctx context.Context, collection, key string, doc Document, merge bool) error {
	doc = Sanitize(doc)
	if merge {
		existing, err := s.Get(ctx, collection, key)
		if err != nil {
			return err
		}
		if existing.Exists {
			doc = Merge(existing.Data, doc)
		}
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document %s/%s: %w", collection, key, err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (collection, key, data, updated_at) VALUES (?, ?, ?, datetime('now'))
		 ON CONFLICT (collection, key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		collection, key, string(data),
	)
	if err != nil {
		return fmt.Errorf("set document %s/%s: %w", collection, key, err)
	}

	s.notify(ctx, collection, key)
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, collection, key string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = ? AND key = ?`,
		collection, key,
	)
	if err != nil {
		return fmt.Errorf("delete document %s/%s: %w", collection, key, err)
	}

	s.notify(ctx, collection, key)
	return nil
}

// Subscribe registers fn for the document and delivers the current snapshot
// before returning.
func (s *SQLiteStore) Subscribe(ctx context.Context, collection, key string, fn func(Snapshot)) (CancelFunc, error) {
	snap, err := s.Get(ctx, collection, key)
	if err != nil {
		return nil, err
	}

	t := topic(collection, key)
	s.mu.Lock()
	s.nextSub++
	id := s.nextSub
	if s.docSubs[t] == nil {
		s.docSubs[t] = make(map[int]func(Snapshot))
	}
	s.docSubs[t][id] = fn
	s.mu.Unlock()

	fn(snap)

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.docSubs[t], id)
			if len(s.docSubs[t]) == 0 {
				delete(s.docSubs, t)
			}
			s.mu.Unlock()
		})
	}
	return cancel, nil
}

// SubscribeCollection registers fn for every document in the collection and
// delivers the current contents before returning.
func (s *SQLiteStore) SubscribeCollection(ctx context.Context, collection string, fn func([]Snapshot)) (CancelFunc, error) {
	snaps, err := s.collectionSnapshots(ctx, collection)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.nextSub++
	id := s.nextSub
	if s.collSubs[collection] == nil {
		s.collSubs[collection] = make(map[int]func([]Snapshot))
	}
	s.collSubs[collection][id] = fn
	s.mu.Unlock()

	fn(snaps)

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.collSubs[collection], id)
			if len(s.collSubs[collection]) == 0 {
				delete(s.collSubs, collection)
			}
			s.mu.Unlock()
		})
	}
	return cancel, nil
}

func (s *SQLiteStore) collectionSnapshots(ctx context.Context, collection string) ([]Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, data FROM documents WHERE collection = ? ORDER BY key ASC`,
		collection,
	)
	if err != nil {
		return nil, fmt.Errorf("list collection %s: %w", collection, err)
	}
	defer rows.Close()

	var snaps []Snapshot
	for rows.Next() {
		var key, data string
		if err := rows.Scan(&key, &data); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		var doc Document
		if err := json.Unmarshal([]byte(data), &doc); err != nil {
			return nil, fmt.Errorf("decode document %s/%s: %w", collection, key, err)
		}
		snaps = append(snaps, Snapshot{Key: key, Data: doc, Exists: true})
	}
	return snaps, rows.Err()
}

// notify fans the fresh state out to document and collection subscribers.
// Callbacks run outside the lock so they may call back into the store.
func (s *SQLiteStore) notify(ctx context.Context, collection, key string) {
	s.mu.Lock()
	docFns := make([]func(Snapshot), 0, len(s.docSubs[topic(collection, key)]))
	for _, fn := range s.docSubs[topic(collection, key)] {
		docFns = append(docFns, fn)
	}
	collFns := make([]func([]Snapshot), 0, len(s.collSubs[collection]))
	for _, fn := range s.collSubs[collection] {
		collFns = append(collFns, fn)
	}
	s.mu.Unlock()

	if len(docFns) > 0 {
		snap, err := s.Get(ctx, collection, key)
		if err == nil {
			for _, fn := range docFns {
				fn(snap)
			}
		}
	}
	if len(collFns) > 0 {
		snaps, err := s.collectionSnapshots(ctx, collection)
		if err == nil {
			for _, fn := range collFns {
				fn(snaps)
			}
		}
	}
}
