package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	ws "github.com/coder/websocket"

	"chicklist/internal/docstore"
)

// ErrClosed is returned by every operation after the connection drops.
var ErrClosed = errors.New("sync: connection closed")

// Client speaks the sync protocol and satisfies docstore.Store, so the rest
// of the application cannot tell a remote store from a local one.
type Client struct {
	conn   *ws.Conn
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	closed   bool
	pending  map[string]chan Envelope
	docSubs  map[string]func(docstore.Snapshot)
	collSubs map[string]func([]docstore.Snapshot)
}

var _ docstore.Store = (*Client)(nil)

// Dial connects to a daemon's sync endpoint. The token, when non-empty, is
// sent as a bearer credential.
func Dial(ctx context.Context, url, token string) (*Client, error) {
	opts := &ws.DialOptions{}
	if token != "" {
		opts.HTTPHeader = http.Header{"Authorization": []string{"Bearer " + token}}
	}
	conn, _, err := ws.Dial(ctx, url, opts)
	if err != nil {
		return nil, fmt.Errorf("dial sync endpoint: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c := &Client{
		conn:     conn,
		ctx:      runCtx,
		cancel:   cancel,
		pending:  make(map[string]chan Envelope),
		docSubs:  make(map[string]func(docstore.Snapshot)),
		collSubs: make(map[string]func([]docstore.Snapshot)),
	}
	go c.readLoop()
	return c, nil
}

// Close tears down the connection. In-flight calls fail with ErrClosed.
func (c *Client) Close() {
	c.cancel()
	c.conn.Close(ws.StatusNormalClosure, "")
}

func (c *Client) readLoop() {
	defer c.shutdown()
	for {
		_, data, err := c.conn.Read(c.ctx)
		if err != nil {
			return
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		c.dispatch(env)
	}
}

func (c *Client) dispatch(env Envelope) {
	switch env.Type {
	case TypeResult, TypeError:
		c.mu.Lock()
		ch, ok := c.pending[env.ID]
		delete(c.pending, env.ID)
		c.mu.Unlock()
		if ok {
			ch <- env
		}
	case TypeSnapshot:
		c.mu.Lock()
		fn := c.docSubs[env.ID]
		c.mu.Unlock()
		if fn != nil {
			fn(docstore.Snapshot{Key: env.Key, Data: env.Doc, Exists: env.Exists})
		}
	case TypeCollectionSnapshot:
		c.mu.Lock()
		fn := c.collSubs[env.ID]
		c.mu.Unlock()
		if fn != nil {
			snaps := make([]docstore.Snapshot, len(env.Snapshots))
			for i, p := range env.Snapshots {
				snaps[i] = docstore.Snapshot{Key: p.Key, Data: p.Doc, Exists: p.Exists}
			}
			fn(snaps)
		}
	}
}

// shutdown fails every pending call and drops the subscription handlers.
func (c *Client) shutdown() {
	c.cancel()
	c.mu.Lock()
	c.closed = true
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.docSubs = make(map[string]func(docstore.Snapshot))
	c.collSubs = make(map[string]func([]docstore.Snapshot))
	c.mu.Unlock()
}

// roundTrip sends a request and waits for the envelope that answers it.
func (c *Client) roundTrip(ctx context.Context, env Envelope) (Envelope, error) {
	ch := make(chan Envelope, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Envelope{}, ErrClosed
	}
	c.pending[env.ID] = ch
	c.mu.Unlock()

	if err := c.write(ctx, env); err != nil {
		c.mu.Lock()
		delete(c.pending, env.ID)
		c.mu.Unlock()
		return Envelope{}, err
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return Envelope{}, ErrClosed
		}
		if resp.Type == TypeError {
			return Envelope{}, errors.New(resp.Error)
		}
		return resp, nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, env.ID)
		c.mu.Unlock()
		return Envelope{}, ctx.Err()
	case <-c.ctx.Done():
		return Envelope{}, ErrClosed
	}
}

func (c *Client) write(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return c.conn.Write(ctx, ws.MessageText, data)
}

func (c *Client) Get(ctx context.Context, collection, key string) (docstore.Snapshot, error) {
	resp, err := c.roundTrip(ctx, Envelope{ID: NewID(), Type: TypeGet, Collection: collection, Key: key})
	if err != nil {
		return docstore.Snapshot{}, err
	}
	return docstore.Snapshot{Key: key, Data: resp.Doc, Exists: resp.Exists}, nil
}

func (c *Client) Set(ctx context.Context, collection, key string, doc docstore.Document, merge bool) error {
	_, err := c.roundTrip(ctx, Envelope{ID: NewID(), Type: TypeSet, Collection: collection, Key: key, Doc: doc, Merge: merge})
	return err
}

func (c *Client) Delete(ctx context.Context, collection, key string) error {
	_, err := c.roundTrip(ctx, Envelope{ID: NewID(), Type: TypeDelete, Collection: collection, Key: key})
	return err
}

// Subscribe registers the handler before the request goes out: the server
// may push the current snapshot ahead of the subscribe acknowledgement.
func (c *Client) Subscribe(ctx context.Context, collection, key string, fn func(docstore.Snapshot)) (docstore.CancelFunc, error) {
	id := NewID()
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.docSubs[id] = fn
	c.mu.Unlock()

	if _, err := c.roundTrip(ctx, Envelope{ID: id, Type: TypeSubscribe, Collection: collection, Key: key}); err != nil {
		c.mu.Lock()
		delete(c.docSubs, id)
		c.mu.Unlock()
		return nil, err
	}
	return c.cancelFunc(id, true), nil
}

func (c *Client) SubscribeCollection(ctx context.Context, collection string, fn func([]docstore.Snapshot)) (docstore.CancelFunc, error) {
	id := NewID()
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.collSubs[id] = fn
	c.mu.Unlock()

	if _, err := c.roundTrip(ctx, Envelope{ID: id, Type: TypeSubscribeCollection, Collection: collection}); err != nil {
		c.mu.Lock()
		delete(c.collSubs, id)
		c.mu.Unlock()
		return nil, err
	}
	return c.cancelFunc(id, false), nil
}

// cancelFunc builds the idempotent cancel for one subscription. The
// unsubscribe frame names the subscription in its Key field.
func (c *Client) cancelFunc(id string, doc bool) docstore.CancelFunc {
	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			if doc {
				delete(c.docSubs, id)
			} else {
				delete(c.collSubs, id)
			}
			closed := c.closed
			c.mu.Unlock()
			if closed {
				return
			}
			if err := c.write(c.ctx, Envelope{ID: NewID(), Type: TypeUnsubscribe, Key: id}); err != nil {
				return
			}
		})
	}
}
