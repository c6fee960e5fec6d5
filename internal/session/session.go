// Package session runs the per-connection chat state.
//
// A Session owns the room registry, the message feed and the unread
// tracker of one user. All of them are touched only by the goroutine in
// Run: client commands, listener deliveries and timers are funnelled into
// that loop. Listener callbacks carry the generation of the subscription
// that produced them, so deliveries that race with an unsubscribe are
// dropped.
package session

import (
	"context"
	"log/slog"
	"time"

	"wordflight/internal/chat"
	"wordflight/internal/docstore"
	"wordflight/internal/models"
	"wordflight/internal/notify"
	"wordflight/internal/unread"
)

const (
	DefaultTitle = "WordFlight"
	outboxSize   = 256
)

type Options struct {
	Title    string
	ToastTTL time.Duration
	// Pusher delivers native notifications. Nil disables them.
	Pusher notify.Pusher
	// Now is the tracker clock.
	Now func() time.Time
	// Presence lists the users connected right now. Nil leaves the list
	// empty.
	Presence func() []string
}

type watcher struct {
	sub *docstore.Subscription
	gen uint64
}

// heldMessage arrived before its room was listed.
type heldMessage struct {
	msg     models.Message
	version uint64
}

type Session struct {
	userName string
	title    string
	toastTTL time.Duration
	pusher   notify.Pusher
	presence func() []string

	db     *docstore.Client
	chat   *chat.Service
	rooms  *chat.Registry
	feed   *chat.Feed
	unread *unread.Tracker

	visible              bool
	notificationsEnabled bool
	soundEnabled         bool
	toast                *models.Toast
	toastTimer           *time.Timer

	gen         uint64
	roomsSub    watcher
	feedSub     watcher
	incomingSub watcher
	held        []heldMessage

	events chan func()
	out    chan models.ServerMessage
	done   chan struct{}
}

// New creates a session for userName over its own store client. The
// session closes the client when Run returns.
func New(db *docstore.Client, userName string, opts Options) *Session {
	if opts.Title == "" {
		opts.Title = DefaultTitle
	}
	if opts.ToastTTL <= 0 {
		opts.ToastTTL = notify.DefaultToastTTL
	}

	return &Session{
		userName:             userName,
		title:                opts.Title,
		toastTTL:             opts.ToastTTL,
		pusher:               opts.Pusher,
		presence:             opts.Presence,
		db:                   db,
		chat:                 chat.NewService(db),
		rooms:                chat.NewRegistry(),
		feed:                 chat.NewFeed(),
		unread:               unread.New(opts.Now),
		visible:              true,
		notificationsEnabled: true,
		soundEnabled:         true,
		events:               make(chan func()),
		out:                  make(chan models.ServerMessage, outboxSize),
		done:                 make(chan struct{}),
	}
}

func (s *Session) UserName() string {
	return s.userName
}

// Out is the stream of messages for the client. It is closed when Run
// returns.
func (s *Session) Out() <-chan models.ServerMessage {
	return s.out
}

// Run processes commands from in until ctx is done or in is closed.
func (s *Session) Run(ctx context.Context, in <-chan models.ClientMessage) {
	defer func() {
		s.teardown()
		close(s.out)
	}()

	s.start(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			s.handle(ctx, msg)
		case fn := <-s.events:
			fn()
		}
	}
}

// Refresh re-renders the view, for changes that happen outside the
// session such as users joining.
func (s *Session) Refresh() {
	s.post(s.render)
}

func (s *Session) start(ctx context.Context) {
	gen := s.nextGen()
	s.roomsSub = watcher{gen: gen}
	s.roomsSub.sub = s.chat.WatchRooms(func(snap chat.RoomsSnapshot, err error) {
		s.post(func() {
			if err != nil {
				slog.Error("rooms listener failed", "user", s.userName, "error", err)
				return
			}
			s.onRooms(gen, snap)
		})
	})

	gen = s.nextGen()
	s.incomingSub = watcher{gen: gen}
	sub, err := s.chat.WatchIncoming(ctx, func(snap chat.MessagesSnapshot, err error) {
		s.post(func() {
			if s.incomingSub.gen != gen {
				return
			}
			if err != nil {
				slog.Error("incoming messages listener failed", "user", s.userName, "error", err)
				return
			}
			s.onIncoming(snap)
		})
	})
	if err != nil {
		slog.Error("failed to watch incoming messages", "user", s.userName, "error", err)
	}
	s.incomingSub.sub = sub

	if s.pusher != nil && s.pusher.Permission(s.userName) == notify.PermissionDefault {
		s.send(models.ServerMessage{
			Type:       models.ServerMessageTypePermission,
			Permission: string(notify.PermissionDefault),
		})
	}
	s.render()
}

func (s *Session) teardown() {
	close(s.done)
	if s.roomsSub.sub != nil {
		s.roomsSub.sub.Unsubscribe()
	}
	if s.feedSub.sub != nil {
		s.feedSub.sub.Unsubscribe()
	}
	if s.incomingSub.sub != nil {
		s.incomingSub.sub.Unsubscribe()
	}
	if s.toastTimer != nil {
		s.toastTimer.Stop()
	}
	s.db.Close()
}

// post hands fn to the event loop. It gives up once the session is gone.
func (s *Session) post(fn func()) {
	select {
	case s.events <- fn:
	case <-s.done:
	}
}

func (s *Session) nextGen() uint64 {
	s.gen++
	return s.gen
}

func (s *Session) send(msg models.ServerMessage) {
	select {
	case s.out <- msg:
	default:
		slog.Warn("client outbox full, dropping message", "user", s.userName, "type", msg.Type)
	}
}

func (s *Session) onRooms(gen uint64, snap chat.RoomsSnapshot) {
	if s.roomsSub.gen != gen {
		return
	}
	if s.rooms.Apply(snap) {
		s.activate()
	}
	s.forgetVanished()
	s.releaseHeld(snap.Version)
	s.render()
}

// forgetVanished drops tracker state of rooms that are no longer listed.
func (s *Session) forgetVanished() {
	for _, id := range s.unread.Rooms() {
		if _, ok := s.rooms.Room(id); ok || id == s.rooms.ActiveID() {
			continue
		}
		s.unread.Forget(id)
	}
}

// releaseHeld observes held messages whose room is now listed. Messages of
// rooms missing from a list at or after their own version belong to
// deleted rooms and are dropped.
func (s *Session) releaseHeld(version uint64) {
	kept := s.held[:0]
	for _, h := range s.held {
		if room, ok := s.rooms.Room(h.msg.RoomID); ok {
			s.observe(room, h.msg)
			continue
		}
		if version < h.version {
			kept = append(kept, h)
		}
	}
	clear(s.held[len(kept):])
	s.held = kept
}

// activate points the feed at the active room. The previous feed
// subscription is released first.
func (s *Session) activate() {
	id := s.rooms.ActiveID()
	if id == s.feed.RoomID() {
		return
	}

	if s.feedSub.sub != nil {
		s.feedSub.sub.Unsubscribe()
		s.feedSub = watcher{}
	}
	s.feed.Reset(id)
	if id == "" {
		return
	}

	gen := s.nextGen()
	s.feedSub = watcher{gen: gen}
	s.feedSub.sub = s.chat.WatchMessages(id, func(snap chat.MessagesSnapshot, err error) {
		s.post(func() {
			if s.feedSub.gen != gen {
				return
			}
			if err != nil {
				slog.Error("messages listener failed", "user", s.userName, "room", id, "error", err)
				return
			}
			if s.feed.Apply(snap) {
				s.render()
			}
		})
	})

	if s.visible {
		s.unread.MarkRead(id)
	}
}

func (s *Session) onIncoming(snap chat.MessagesSnapshot) {
	for _, msg := range snap.Added {
		room, ok := s.rooms.Room(msg.RoomID)
		if !ok {
			s.held = append(s.held, heldMessage{msg: msg, version: snap.Version})
			continue
		}
		s.observe(room, msg)
	}
	s.render()
}

func (s *Session) observe(room models.Room, msg models.Message) {
	focused := s.visible && s.rooms.ActiveID() == room.ID
	if d := s.unread.Observe(room.ID, msg, s.userName, focused); d.Counted {
		s.notify(room, msg)
	}
}

func (s *Session) notify(room models.Room, msg models.Message) {
	if !s.notificationsEnabled {
		return
	}

	s.showToast(notify.NewToast(room, msg))
	if s.soundEnabled {
		s.send(models.ServerMessage{Type: models.ServerMessageTypeSound, Sound: notify.SoundPath})
	}

	if s.pusher == nil || s.pusher.Permission(s.userName) != notify.PermissionGranted {
		return
	}
	native := notify.NewNative(room, msg)
	go func(pusher notify.Pusher, userName string) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := pusher.Notify(ctx, userName, native); err != nil {
			slog.Warn("failed to push notification", "user", userName, "room", native.Tag, "error", err)
		}
	}(s.pusher, s.userName)
}

// showToast replaces the current toast and schedules its dismissal.
func (s *Session) showToast(toast models.Toast) {
	if s.toastTimer != nil {
		s.toastTimer.Stop()
	}
	s.toast = &toast
	s.send(models.ServerMessage{Type: models.ServerMessageTypeToast, Toast: &toast})

	id := toast.ID
	s.toastTimer = time.AfterFunc(s.toastTTL, func() {
		s.post(func() { s.dismissToast(id) })
	})
}

// dismissToast removes the current toast. A non-empty id only dismisses
// that toast.
func (s *Session) dismissToast(id string) {
	if s.toast == nil || (id != "" && s.toast.ID != id) {
		return
	}
	if s.toastTimer != nil {
		s.toastTimer.Stop()
		s.toastTimer = nil
	}
	dismissed := models.Toast{ID: s.toast.ID, RoomID: s.toast.RoomID}
	s.toast = nil
	s.send(models.ServerMessage{Type: models.ServerMessageTypeToastDismissed, Toast: &dismissed})
}
