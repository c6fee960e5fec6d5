package docstore

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"wordflight/internal/storage"
)

// Subscription is a live query registration. Callbacks run on the
// subscription's own goroutine, one at a time, so a slow consumer never
// stalls writers or other listeners.
type Subscription struct {
	query  Query
	fn     func(*QuerySnapshot, error)
	client *Client

	signal chan struct{}
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
	closed atomic.Bool

	// owned by run
	prev      []*DocumentSnapshot
	version   uint64
	delivered bool
}

// Snapshots starts listening to the query. The first callback carries the
// full result with every document reported as added.
func (q Query) Snapshots(fn func(*QuerySnapshot, error)) *Subscription {
	s := &Subscription{
		query:  q,
		fn:     fn,
		client: q.client,
		signal: make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	s.signal <- struct{}{}

	if !q.client.register(s) {
		s.closed.Store(true)
		close(s.stop)
		close(s.done)
		return s
	}

	go s.run()
	return s
}

// Unsubscribe stops delivery. A callback already running finishes, no new
// one starts afterwards.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.stop)
		s.client.unregister(s)
	})
}

// Done is closed once the subscription is stopped, either by Unsubscribe
// or after a query error, and its last callback has returned.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

func (s *Subscription) wake() {
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *Subscription) run() {
	defer close(s.done)
	for {
		select {
		case <-s.stop:
			return
		case <-s.signal:
		}

		if !s.client.Online() {
			// EnableNetwork wakes every listener again.
			continue
		}

		snap, err := s.read()
		if s.closed.Load() {
			return
		}
		if err != nil {
			slog.Error("live query failed", "collection", s.query.collection, "error", err)
			s.fn(nil, err)
			s.Unsubscribe()
			return
		}
		if snap == nil {
			continue
		}
		s.fn(snap, nil)
	}
}

// read runs the query and diffs it against the previous delivery. It
// returns nil when nothing changed.
func (s *Subscription) read() (*QuerySnapshot, error) {
	var (
		docs    []*DocumentSnapshot
		version uint64
	)
	err := s.client.store.backend.View(func(tx *storage.Tx) error {
		var err error
		docs, err = s.query.run(tx)
		version = tx.Version()
		return err
	})
	if err != nil {
		return nil, err
	}
	if s.delivered && version <= s.version {
		return nil, nil
	}

	changes := diff(s.prev, docs)
	s.version = version
	if s.delivered && len(changes) == 0 {
		return nil, nil
	}

	s.prev = docs
	s.delivered = true
	return &QuerySnapshot{
		Docs:     docs,
		Changes:  changes,
		Version:  version,
		ReadTime: s.client.store.now(),
	}, nil
}
