// Package docstore is an embedded real-time document store. Documents live
// in named collections, queries can be run once or kept live, and every
// committed write is pushed to the live queries it affects.
package docstore

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"wordflight/internal/storage"
)

var (
	ErrClientClosed  = errors.New("docstore: client closed")
	ErrAlreadyExists = errors.New("docstore: document already exists")
)

// WriteResult describes a committed write.
type WriteResult struct {
	Version    uint64
	UpdateTime time.Time
}

// Store is shared by all clients of one database file.
type Store struct {
	backend *storage.BboltStorage
	now     func() time.Time

	mu      sync.Mutex
	clients map[*Client]struct{}
}

func New(backend *storage.BboltStorage) *Store {
	return &Store{
		backend: backend,
		now:     time.Now,
		clients: make(map[*Client]struct{}),
	}
}

// NewClient returns a client with its network enabled.
func (s *Store) NewClient() *Client {
	c := &Client{
		store:  s,
		online: true,
		subs:   make(map[*Subscription]struct{}),
	}
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
	return c
}

func (s *Store) update(ctx context.Context, fn func(tx *storage.Tx) error) (WriteResult, error) {
	if err := ctx.Err(); err != nil {
		return WriteResult{}, err
	}
	commit, err := s.backend.Update(s.now(), fn)
	if err != nil {
		return WriteResult{}, err
	}
	if len(commit.Changes) > 0 {
		s.broadcast(commit.Changes)
	}
	return WriteResult{Version: commit.Version, UpdateTime: time.UnixMilli(commit.Timestamp)}, nil
}

func (s *Store) broadcast(changes []storage.Change) {
	s.mu.Lock()
	clients := make([]*Client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		c.notify(changes)
	}
}

// Client is one consumer of the store, typically a single user session. It
// owns its live queries and its network toggle.
type Client struct {
	store *Store

	mu     sync.Mutex
	online bool
	closed bool
	subs   map[*Subscription]struct{}
}

// Collection returns a reference to a collection.
func (c *Client) Collection(name string) *CollectionRef {
	return &CollectionRef{
		Query: Query{client: c, collection: name},
		ID:    name,
	}
}

// ServerTime returns the timestamp of the latest commit. Documents written
// afterwards carry a strictly greater server timestamp.
func (c *Client) ServerTime(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var ts int64
	err := c.store.backend.View(func(tx *storage.Tx) error {
		ts = tx.Timestamp()
		return nil
	})
	return ts, err
}

// Online reports whether live queries are delivered.
func (c *Client) Online() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.online
}

// DisableNetwork pauses delivery to every live query of the client.
// Writes keep committing.
func (c *Client) DisableNetwork() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.online = false
}

// EnableNetwork resumes delivery. Live queries whose result changed while
// offline receive a fresh snapshot.
func (c *Client) EnableNetwork() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.online {
		return
	}
	c.online = true
	for s := range c.subs {
		s.wake()
	}
}

// Close stops every live query and waits for callbacks in flight. Further
// writes fail with ErrClientClosed. It must not be called from a callback.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	subs := make([]*Subscription, 0, len(c.subs))
	for s := range c.subs {
		subs = append(subs, s)
	}
	c.mu.Unlock()

	for _, s := range subs {
		s.Unsubscribe()
	}
	for _, s := range subs {
		<-s.Done()
	}

	c.store.mu.Lock()
	delete(c.store.clients, c)
	c.store.mu.Unlock()
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Client) register(s *Subscription) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.subs[s] = struct{}{}
	return true
}

func (c *Client) unregister(s *Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subs, s)
}

// notify wakes the live queries whose result a commit can change.
func (c *Client) notify(changes []storage.Change) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.online {
		return
	}
	for s := range c.subs {
		if slices.ContainsFunc(changes, s.query.affectedBy) {
			s.wake()
		}
	}
}

func (c *Client) update(ctx context.Context, fn func(tx *storage.Tx) error) (WriteResult, error) {
	if c.isClosed() {
		return WriteResult{}, ErrClientClosed
	}
	return c.store.update(ctx, fn)
}
