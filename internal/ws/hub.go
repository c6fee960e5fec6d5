package ws

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"wordflight/internal/docstore"
	"wordflight/internal/models"
	"wordflight/internal/session"

	"github.com/go-playground/validator/v10"
)

type hubSession struct {
	userName string
	session  *session.Session
	inbox    chan models.ClientMessage
	cancel   context.CancelFunc
	done     chan struct{}
}

// Hub runs one session per connection.
type Hub struct {
	store    *docstore.Store
	opts     session.Options
	validate *validator.Validate

	// Map of connID -> running session
	sessions map[string]*hubSession

	mu sync.RWMutex
}

func NewHub(store *docstore.Store, opts session.Options) *Hub {
	h := &Hub{
		store:    store,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		sessions: make(map[string]*hubSession),
	}
	opts.Presence = h.present
	h.opts = opts
	return h
}

// Join starts a session for the connection and returns its outbound
// stream. The stream is closed when the session stops.
func (h *Hub) Join(connID, userName string) <-chan models.ServerMessage {
	h.mu.Lock()
	if old, ok := h.sessions[connID]; ok {
		old.cancel()
	}

	s := session.New(h.store.NewClient(), userName, h.opts)
	ctx, cancel := context.WithCancel(context.Background())
	hs := &hubSession{
		userName: userName,
		session:  s,
		inbox:    make(chan models.ClientMessage, 64),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	h.sessions[connID] = hs

	go func() {
		defer close(hs.done)
		s.Run(ctx, hs.inbox)
	}()
	h.mu.Unlock()

	slog.Info("session started", "conn", connID, "user", userName)
	h.refresh(connID)
	return s.Out()
}

func (h *Hub) Leave(connID string) {
	h.mu.Lock()
	hs, ok := h.sessions[connID]
	delete(h.sessions, connID)
	h.mu.Unlock()

	if !ok {
		return
	}
	hs.cancel()
	<-hs.done
	slog.Info("session stopped", "conn", connID, "user", hs.userName)
	h.refresh(connID)
}

// refresh re-renders every session except skip so presence stays current.
func (h *Hub) refresh(skip string) {
	h.mu.RLock()
	others := make([]*session.Session, 0, len(h.sessions))
	for id, hs := range h.sessions {
		if id != skip {
			others = append(others, hs.session)
		}
	}
	h.mu.RUnlock()

	for _, s := range others {
		s.Refresh()
	}
}

// Dispatch validates a client command and queues it for the session.
// Invalid commands are logged and dropped.
func (h *Hub) Dispatch(connID string, msg models.ClientMessage) {
	if err := h.validate.Struct(msg); err != nil {
		slog.Warn("invalid client message", "conn", connID, "type", msg.Type, "error", err)
		return
	}

	h.mu.RLock()
	hs, ok := h.sessions[connID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	select {
	case hs.inbox <- msg:
	case <-hs.done:
	}
}

// Online returns the number of running sessions per user.
func (h *Hub) Online() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make(map[string]int)
	for _, hs := range h.sessions {
		out[hs.userName]++
	}
	return out
}

// present lists the connected users, sorted.
func (h *Hub) present() []string {
	return slices.Sorted(maps.Keys(h.Online()))
}

// Close stops every session.
func (h *Hub) Close() {
	h.mu.Lock()
	sessions := h.sessions
	h.sessions = make(map[string]*hubSession)
	h.mu.Unlock()

	for _, hs := range sessions {
		hs.cancel()
	}
	for _, hs := range sessions {
		<-hs.done
	}
}
