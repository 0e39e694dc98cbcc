package sync

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	ws "github.com/coder/websocket"

	"chicklist/internal/docstore"
	"chicklist/internal/identity"
)

const (
	sendBufferSize = 64
	pingInterval   = 30 * time.Second
)

var errUnknownType = errors.New("unknown envelope type")

// Session is one connected client: a read loop dispatching store requests
// and a write pump draining responses and snapshot pushes.
type Session struct {
	hub    *Hub
	conn   *ws.Conn
	store  docstore.Store
	logger *slog.Logger
	user   string
	send   chan []byte
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	subs   map[string]docstore.CancelFunc
}

func newSession(hub *Hub, conn *ws.Conn, store docstore.Store, logger *slog.Logger, user string) *Session {
	return &Session{
		hub:    hub,
		conn:   conn,
		store:  store,
		logger: logger,
		user:   user,
		send:   make(chan []byte, sendBufferSize),
		subs:   make(map[string]docstore.CancelFunc),
	}
}

// run registers the session, starts the write pump, and runs the read loop.
// It blocks until the connection is closed, then cancels every subscription
// and unregisters.
func (s *Session) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	defer cancel()

	s.hub.Register(s)
	defer func() {
		s.mu.Lock()
		s.closed = true
		cancels := make([]docstore.CancelFunc, 0, len(s.subs))
		for id, c := range s.subs {
			cancels = append(cancels, c)
			delete(s.subs, id)
		}
		s.mu.Unlock()
		for _, c := range cancels {
			c()
		}
		s.hub.Unregister(s)
	}()

	go s.writePump(ctx)
	s.readPump(ctx)
}

func (s *Session) readPump(ctx context.Context) {
	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			return
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.logger.Warn("unreadable frame", "user", s.user, "error", err)
			continue
		}
		s.handle(ctx, env)
	}
}

func (s *Session) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-s.send:
			if !ok {
				return
			}
			if err := s.conn.Write(ctx, ws.MessageText, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := s.conn.Ping(ctx); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *Session) handle(ctx context.Context, env Envelope) {
	switch env.Type {
	case TypeGet:
		snap, err := s.store.Get(ctx, env.Collection, env.Key)
		if err != nil {
			s.fail(env.ID, err)
			return
		}
		s.enqueue(Envelope{ID: env.ID, Type: TypeResult, Key: snap.Key, Exists: snap.Exists, Doc: snap.Data})

	case TypeSet:
		if err := s.store.Set(ctx, env.Collection, env.Key, env.Doc, env.Merge); err != nil {
			s.fail(env.ID, err)
			return
		}
		s.enqueue(Envelope{ID: env.ID, Type: TypeResult})

	case TypeDelete:
		if err := s.store.Delete(ctx, env.Collection, env.Key); err != nil {
			s.fail(env.ID, err)
			return
		}
		s.enqueue(Envelope{ID: env.ID, Type: TypeResult})

	case TypeSubscribe:
		subID := env.ID
		cancel, err := s.store.Subscribe(ctx, env.Collection, env.Key, func(snap docstore.Snapshot) {
			s.enqueue(Envelope{ID: subID, Type: TypeSnapshot, Key: snap.Key, Exists: snap.Exists, Doc: snap.Data})
		})
		if err != nil {
			s.fail(env.ID, err)
			return
		}
		s.track(subID, cancel)
		s.enqueue(Envelope{ID: env.ID, Type: TypeResult})

	case TypeSubscribeCollection:
		subID := env.ID
		cancel, err := s.store.SubscribeCollection(ctx, env.Collection, func(snaps []docstore.Snapshot) {
			payload := make([]SnapshotPayload, len(snaps))
			for i, snap := range snaps {
				payload[i] = SnapshotPayload{Key: snap.Key, Exists: snap.Exists, Doc: snap.Data}
			}
			s.enqueue(Envelope{ID: subID, Type: TypeCollectionSnapshot, Snapshots: payload})
		})
		if err != nil {
			s.fail(env.ID, err)
			return
		}
		s.track(subID, cancel)
		s.enqueue(Envelope{ID: env.ID, Type: TypeResult})

	case TypeUnsubscribe:
		s.mu.Lock()
		cancel, ok := s.subs[env.Key]
		delete(s.subs, env.Key)
		s.mu.Unlock()
		if ok {
			cancel()
		}
		s.enqueue(Envelope{ID: env.ID, Type: TypeResult})

	default:
		s.fail(env.ID, errUnknownType)
	}
}

func (s *Session) track(id string, cancel docstore.CancelFunc) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		return
	}
	s.subs[id] = cancel
	s.mu.Unlock()
}

func (s *Session) fail(id string, err error) {
	s.enqueue(Envelope{ID: id, Type: TypeError, Error: err.Error()})
}

// enqueue hands an envelope to the write pump. A session that cannot keep
// up with its snapshot stream is disconnected rather than silently skipped.
func (s *Session) enqueue(env Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		s.logger.Error("marshal envelope", "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.send <- data:
	default:
		s.logger.Warn("slow sync session, disconnecting", "user", s.user)
		s.cancel()
	}
}

// Handler upgrades connections and runs them as sync sessions against the
// given store. Authentication happens upstream; the user id is read from the
// request context for logging.
func Handler(hub *Hub, store docstore.Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			InsecureSkipVerify: true, // clients connect from any origin
		})
		if err != nil {
			logger.Warn("websocket accept", "error", err)
			return
		}

		user := identity.UserID(r.Context())
		logger.Info("sync session opened", "user", user)
		sess := newSession(hub, conn, store, logger, user)
		sess.run(r.Context())
		logger.Info("sync session closed", "user", user)
	}
}
