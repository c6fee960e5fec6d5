package session

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"wordflight/internal/chat"
	"wordflight/internal/docstore"
	"wordflight/internal/models"
	"wordflight/internal/notify"
	"wordflight/internal/storage"
)

type fakePusher struct {
	permission notify.Permission

	mu   sync.Mutex
	sent []notify.Native
}

func (p *fakePusher) Permission(string) notify.Permission {
	return p.permission
}

func (p *fakePusher) Notify(_ context.Context, _ string, n notify.Native) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, n)
	return nil
}

func (p *fakePusher) notifications() []notify.Native {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]notify.Native(nil), p.sent...)
}

func newTestStore(t *testing.T) *docstore.Store {
	t.Helper()
	backend, err := storage.NewBboltStorage(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	t.Cleanup(func() { _ = backend.Close() })
	return docstore.New(backend)
}

type harness struct {
	t       *testing.T
	session *Session
	in      chan models.ClientMessage
}

// startSession runs a session whose tracker clock is a minute in the past,
// so every message written by the test is newer than any watermark.
func startSession(t *testing.T, store *docstore.Store, userName string, opts Options) *harness {
	t.Helper()

	if opts.Now == nil {
		past := time.Now().Add(-time.Minute)
		opts.Now = func() time.Time { return past }
	}
	s := New(store.NewClient(), userName, opts)
	in := make(chan models.ClientMessage)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx, in)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return &harness{t: t, session: s, in: in}
}

func (h *harness) do(msg models.ClientMessage) {
	h.t.Helper()
	select {
	case h.in <- msg:
	case <-time.After(time.Second):
		h.t.Fatal("timeout sending command")
	}
}

// waitFor reads server messages until one satisfies pred.
func (h *harness) waitFor(desc string, pred func(models.ServerMessage) bool) models.ServerMessage {
	h.t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg, ok := <-h.session.Out():
			if !ok {
				h.t.Fatalf("session closed while waiting for %s", desc)
			}
			if pred(msg) {
				return msg
			}
		case <-deadline:
			h.t.Fatalf("timeout waiting for %s", desc)
		}
	}
}

func (h *harness) waitState(desc string, pred func(*models.View) bool) *models.View {
	h.t.Helper()
	msg := h.waitFor(desc, func(m models.ServerMessage) bool {
		return m.Type == models.ServerMessageTypeState && pred(m.State)
	})
	return msg.State
}

// expectNo fails if a matching message shows up within a short window.
func (h *harness) expectNo(desc string, pred func(models.ServerMessage) bool) {
	h.t.Helper()
	deadline := time.After(200 * time.Millisecond)
	for {
		select {
		case msg := <-h.session.Out():
			if pred(msg) {
				h.t.Fatalf("unexpected %s: %+v", desc, msg)
			}
		case <-deadline:
			return
		}
	}
}

func isToast(m models.ServerMessage) bool {
	return m.Type == models.ServerMessageTypeToast
}

func roomUnread(v *models.View, roomID string) int {
	for _, r := range v.Rooms {
		if r.ID == roomID {
			return r.Unread
		}
	}
	return -1
}

func createRoom(t *testing.T, svc *chat.Service, name, by string) string {
	t.Helper()
	id, _, err := svc.CreateRoom(context.Background(), chat.NewRoom{Name: name, CreatedBy: by})
	if err != nil {
		t.Fatalf("CreateRoom() error: %v", err)
	}
	return id
}

func sendAs(t *testing.T, svc *chat.Service, roomID, author, text string) {
	t.Helper()
	room := &models.Room{ID: roomID}
	if _, err := svc.SendMessage(context.Background(), room, author, text); err != nil {
		t.Fatalf("SendMessage() error: %v", err)
	}
}

func TestSession_HiddenRoomNotifies(t *testing.T) {
	store := newTestStore(t)
	alice := chat.NewService(store.NewClient())
	r1 := createRoom(t, alice, "general", "Alice")

	pusher := &fakePusher{permission: notify.PermissionGranted}
	bob := startSession(t, store, "Bob", Options{Pusher: pusher})
	bob.waitState("r1 active", func(v *models.View) bool { return v.ActiveRoomID == r1 })

	bob.do(models.ClientMessage{Type: models.ClientMessageTypeVisibility, Hidden: true})
	bob.waitState("hidden", func(v *models.View) bool { return !v.Visible })

	sendAs(t, alice, r1, "Alice", "hello")

	toast := bob.waitFor("toast", isToast).Toast
	if toast.Title != "New message in #general" || toast.Text != "hello" || toast.RoomID != r1 {
		t.Errorf("unexpected toast %+v", toast)
	}
	bob.waitFor("sound", func(m models.ServerMessage) bool {
		return m.Type == models.ServerMessageTypeSound && m.Sound == notify.SoundPath
	})

	view := bob.waitState("unread", func(v *models.View) bool { return v.UnreadTotal == 1 })
	if roomUnread(view, r1) != 1 {
		t.Errorf("expected r1 unread 1, got %d", roomUnread(view, r1))
	}
	if view.Title != "(1) WordFlight" {
		t.Errorf("unexpected title %q", view.Title)
	}

	// Native notifications go out asynchronously.
	deadline := time.Now().Add(time.Second)
	for len(pusher.notifications()) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	sent := pusher.notifications()
	if len(sent) != 1 || sent[0].Body != "Alice: hello" || sent[0].Tag != r1 {
		t.Errorf("unexpected native notifications %+v", sent)
	}

	// Becoming visible reads the active room.
	bob.do(models.ClientMessage{Type: models.ClientMessageTypeFocus})
	view = bob.waitState("read", func(v *models.View) bool { return v.Visible })
	if view.UnreadTotal != 0 || view.Title != "WordFlight" {
		t.Errorf("expected read state, got total %d title %q", view.UnreadTotal, view.Title)
	}
}

func TestSession_ActiveVisibleRoomStaysRead(t *testing.T) {
	store := newTestStore(t)
	alice := chat.NewService(store.NewClient())
	r1 := createRoom(t, alice, "general", "Alice")

	bob := startSession(t, store, "Bob", Options{})
	bob.waitState("r1 active", func(v *models.View) bool { return v.ActiveRoomID == r1 })

	sendAs(t, alice, r1, "Alice", "hello")

	notified := func(m models.ServerMessage) bool {
		return isToast(m) || (m.Type == models.ServerMessageTypeState && m.State.UnreadTotal > 0)
	}
	var saw bool
	msg := bob.waitFor("message", func(m models.ServerMessage) bool {
		saw = saw || notified(m)
		return m.Type == models.ServerMessageTypeState && len(m.State.Messages) == 1
	}).State.Messages[0]
	if saw {
		t.Fatal("active visible room produced a notification")
	}
	if msg.Text != "hello" || msg.UserName != "Alice" || msg.Own || msg.CanDelete {
		t.Errorf("unexpected message view %+v", msg)
	}
	if msg.HTML != "<p>hello</p>" {
		t.Errorf("unexpected html %q", msg.HTML)
	}

	bob.expectNo("notification", notified)
}

func TestSession_SwitchRooms(t *testing.T) {
	store := newTestStore(t)
	alice := chat.NewService(store.NewClient())
	r1 := createRoom(t, alice, "general", "Alice")
	r2 := createRoom(t, alice, "random", "Alice")

	bob := startSession(t, store, "Bob", Options{})
	bob.waitState("r1 active", func(v *models.View) bool { return v.ActiveRoomID == r1 && len(v.Rooms) == 2 })
	bob.do(models.ClientMessage{Type: models.ClientMessageTypeBlur})
	bob.waitState("hidden", func(v *models.View) bool { return !v.Visible })

	sendAs(t, alice, r1, "Alice", "one")
	sendAs(t, alice, r2, "Alice", "two")
	bob.waitState("two unread", func(v *models.View) bool { return v.UnreadTotal == 2 })

	bob.do(models.ClientMessage{Type: models.ClientMessageTypeSelectRoom, RoomID: r2})
	view := bob.waitState("r2 feed", func(v *models.View) bool {
		return v.ActiveRoomID == r2 && len(v.Messages) == 1
	})
	if view.Messages[0].Text != "two" {
		t.Errorf("expected r2 messages, got %+v", view.Messages)
	}
	if roomUnread(view, r1) != 1 || roomUnread(view, r2) != 0 || view.UnreadTotal != 1 {
		t.Errorf("unexpected counters r1=%d r2=%d total=%d", roomUnread(view, r1), roomUnread(view, r2), view.UnreadTotal)
	}
	for _, r := range view.Rooms {
		if r.ID == r2 && r.LastSeenAt == 0 {
			t.Errorf("expected a watermark on the selected room, got %+v", r)
		}
	}
}

func TestSession_ToastClickAndExpiry(t *testing.T) {
	store := newTestStore(t)
	alice := chat.NewService(store.NewClient())
	r1 := createRoom(t, alice, "general", "Alice")
	r2 := createRoom(t, alice, "random", "Alice")

	bob := startSession(t, store, "Bob", Options{ToastTTL: 300 * time.Millisecond})
	bob.waitState("rooms", func(v *models.View) bool { return v.ActiveRoomID == r1 && len(v.Rooms) == 2 })

	sendAs(t, alice, r2, "Alice", "first")
	first := bob.waitFor("toast", isToast).Toast
	dismissed := bob.waitFor("expiry", func(m models.ServerMessage) bool {
		return m.Type == models.ServerMessageTypeToastDismissed
	})
	if dismissed.Toast.ID != first.ID {
		t.Errorf("expected %s dismissed, got %s", first.ID, dismissed.Toast.ID)
	}

	sendAs(t, alice, r2, "Alice", "second")
	second := bob.waitFor("toast", isToast).Toast
	if second.RoomID != r2 {
		t.Fatalf("unexpected toast room %s", second.RoomID)
	}
	bob.do(models.ClientMessage{Type: models.ClientMessageTypeToastClick})
	bob.waitFor("dismiss", func(m models.ServerMessage) bool {
		return m.Type == models.ServerMessageTypeToastDismissed && m.Toast.ID == second.ID
	})
	view := bob.waitState("r2 active", func(v *models.View) bool { return v.ActiveRoomID == r2 })
	if roomUnread(view, r2) != 0 {
		t.Errorf("expected r2 read after click, got %d", roomUnread(view, r2))
	}
}

func TestSession_Toggles(t *testing.T) {
	store := newTestStore(t)
	alice := chat.NewService(store.NewClient())
	r1 := createRoom(t, alice, "general", "Alice")
	r2 := createRoom(t, alice, "random", "Alice")

	bob := startSession(t, store, "Bob", Options{})
	bob.waitState("rooms", func(v *models.View) bool { return v.ActiveRoomID == r1 && len(v.Rooms) == 2 })

	bob.do(models.ClientMessage{Type: models.ClientMessageTypeToggleNotifications})
	bob.waitState("notifications off", func(v *models.View) bool { return !v.NotificationsEnabled })

	sendAs(t, alice, r2, "Alice", "quiet")
	var toasted bool
	bob.waitFor("counted", func(m models.ServerMessage) bool {
		toasted = toasted || isToast(m)
		return m.Type == models.ServerMessageTypeState && roomUnread(m.State, r2) == 1
	})
	if toasted {
		t.Fatal("toast shown with notifications off")
	}
	bob.expectNo("toast", isToast)

	bob.do(models.ClientMessage{Type: models.ClientMessageTypeToggleNotifications})
	bob.do(models.ClientMessage{Type: models.ClientMessageTypeToggleSound})
	bob.waitState("sound off", func(v *models.View) bool { return v.NotificationsEnabled && !v.SoundEnabled })

	sendAs(t, alice, r2, "Alice", "loud")
	bob.waitFor("toast", isToast)
	bob.expectNo("sound", func(m models.ServerMessage) bool { return m.Type == models.ServerMessageTypeSound })
}

func TestSession_CreateSendDelete(t *testing.T) {
	store := newTestStore(t)
	reader := chat.NewService(store.NewClient())

	bob := startSession(t, store, "Bob", Options{})
	bob.waitState("empty", func(v *models.View) bool { return len(v.Rooms) == 0 && v.ActiveRoomID == "" })

	bob.do(models.ClientMessage{Type: models.ClientMessageTypeCreateRoom, Name: "   "})
	bob.do(models.ClientMessage{Type: models.ClientMessageTypeCreateRoom, Name: " lounge ", Description: " chill "})
	view := bob.waitState("created", func(v *models.View) bool { return len(v.Rooms) == 1 })
	room := view.Rooms[0]
	if room.Name != "lounge" || room.Description != "chill" || room.CreatedBy != "Bob" || !room.CanDelete {
		t.Errorf("unexpected room %+v", room)
	}
	if view.ActiveRoomID != room.ID {
		t.Errorf("expected new room active, got %q", view.ActiveRoomID)
	}

	bob.do(models.ClientMessage{Type: models.ClientMessageTypeSend, Text: "  "})
	bob.do(models.ClientMessage{Type: models.ClientMessageTypeSend, Text: "**hi**"})
	view = bob.waitState("sent", func(v *models.View) bool { return len(v.Messages) == 1 })
	msg := view.Messages[0]
	if !msg.Own || !msg.CanDelete || msg.HTML != "<p><strong>hi</strong></p>" {
		t.Errorf("unexpected message %+v", msg)
	}

	bob.do(models.ClientMessage{Type: models.ClientMessageTypeDeleteMessage, MessageID: msg.ID})
	bob.waitState("message deleted", func(v *models.View) bool { return len(v.Messages) == 0 })

	bob.do(models.ClientMessage{Type: models.ClientMessageTypeSend, Text: "again"})
	bob.waitState("resent", func(v *models.View) bool { return len(v.Messages) == 1 })

	bob.do(models.ClientMessage{Type: models.ClientMessageTypeDeleteRoom, RoomID: room.ID})
	bob.waitState("room deleted", func(v *models.View) bool {
		return len(v.Rooms) == 0 && v.ActiveRoomID == "" && len(v.Messages) == 0
	})

	left, err := reader.ListMessages(context.Background(), room.ID)
	if err != nil {
		t.Fatalf("ListMessages() error: %v", err)
	}
	if len(left) != 0 {
		t.Errorf("expected messages deleted with the room, got %d", len(left))
	}
}

func TestSession_Offline(t *testing.T) {
	store := newTestStore(t)
	alice := chat.NewService(store.NewClient())
	r1 := createRoom(t, alice, "general", "Alice")

	bob := startSession(t, store, "Bob", Options{})
	bob.waitState("r1 active", func(v *models.View) bool { return v.ActiveRoomID == r1 && v.Online })

	bob.do(models.ClientMessage{Type: models.ClientMessageTypeOffline})
	bob.waitState("offline", func(v *models.View) bool { return !v.Online })

	sendAs(t, alice, r1, "Alice", "while away")
	bob.expectNo("message while offline", func(m models.ServerMessage) bool {
		return m.Type == models.ServerMessageTypeState && len(m.State.Messages) > 0
	})

	bob.do(models.ClientMessage{Type: models.ClientMessageTypeOnline})
	bob.waitState("caught up", func(v *models.View) bool { return v.Online && len(v.Messages) == 1 })
}

func TestSession_PermissionRequest(t *testing.T) {
	store := newTestStore(t)

	bob := startSession(t, store, "Bob", Options{Pusher: &fakePusher{permission: notify.PermissionDefault}})
	msg := bob.waitFor("first message", func(models.ServerMessage) bool { return true })
	if msg.Type != models.ServerMessageTypePermission || msg.Permission != "default" {
		t.Errorf("expected permission request first, got %+v", msg)
	}

	granted := startSession(t, store, "Carol", Options{Pusher: &fakePusher{permission: notify.PermissionGranted}})
	msg = granted.waitFor("first message", func(models.ServerMessage) bool { return true })
	if msg.Type != models.ServerMessageTypeState {
		t.Errorf("expected state first, got %+v", msg)
	}
}

func TestSession_BurstCountsEveryMessage(t *testing.T) {
	store := newTestStore(t)
	alice := chat.NewService(store.NewClient())
	r1 := createRoom(t, alice, "general", "Alice")
	r2 := createRoom(t, alice, "random", "Alice")

	bob := startSession(t, store, "Bob", Options{})
	bob.waitState("r1 active", func(v *models.View) bool { return v.ActiveRoomID == r1 && len(v.Rooms) == 2 })

	const n = 20
	for i := range n {
		sendAs(t, alice, r2, "Alice", fmt.Sprintf("message %d", i))
	}

	view := bob.waitState("every message counted", func(v *models.View) bool { return roomUnread(v, r2) == n })
	if view.UnreadTotal != n || roomUnread(view, r1) != 0 {
		t.Errorf("unexpected counters r1=%d total=%d", roomUnread(view, r1), view.UnreadTotal)
	}
	bob.expectNo("extra unread", func(m models.ServerMessage) bool {
		return m.Type == models.ServerMessageTypeState && m.State.UnreadTotal > n
	})
}

func TestSession_HistoryNotCounted(t *testing.T) {
	store := newTestStore(t)
	alice := chat.NewService(store.NewClient())
	r1 := createRoom(t, alice, "general", "Alice")
	r2 := createRoom(t, alice, "random", "Alice")
	sendAs(t, alice, r2, "Alice", "before Bob connected")

	bob := startSession(t, store, "Bob", Options{})
	bob.waitState("r1 active", func(v *models.View) bool { return v.ActiveRoomID == r1 && len(v.Rooms) == 2 })
	bob.expectNo("history counted", func(m models.ServerMessage) bool {
		return isToast(m) || (m.Type == models.ServerMessageTypeState && m.State.UnreadTotal > 0)
	})

	sendAs(t, alice, r2, "Alice", "after")
	view := bob.waitState("new message counted", func(v *models.View) bool { return v.UnreadTotal == 1 })
	if roomUnread(view, r2) != 1 {
		t.Errorf("expected r2 unread 1, got %d", roomUnread(view, r2))
	}
}

func TestSession_PresenceInView(t *testing.T) {
	store := newTestStore(t)

	bob := startSession(t, store, "Bob", Options{
		Presence: func() []string { return []string{"Alice", "Bob"} },
	})
	view := bob.waitState("present", func(v *models.View) bool { return len(v.Present) == 2 })
	if view.Present[0] != "Alice" || view.Present[1] != "Bob" {
		t.Errorf("unexpected presence %v", view.Present)
	}
}
