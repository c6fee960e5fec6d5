package session

import (
	"context"
	"log/slog"

	"wordflight/internal/chat"
	"wordflight/internal/models"
)

func (s *Session) handle(ctx context.Context, msg models.ClientMessage) {
	switch msg.Type {
	case models.ClientMessageTypeSend:
		s.sendMessage(ctx, msg.Text)
	case models.ClientMessageTypeCreateRoom:
		s.createRoom(ctx, msg.Name, msg.Description)
	case models.ClientMessageTypeDeleteRoom:
		s.deleteRoom(ctx, msg.RoomID)
	case models.ClientMessageTypeDeleteMessage:
		s.deleteMessage(ctx, msg.MessageID)
	case models.ClientMessageTypeSelectRoom:
		s.selectRoom(msg.RoomID)
	case models.ClientMessageTypeVisibility:
		s.setVisible(!msg.Hidden)
	case models.ClientMessageTypeFocus:
		s.setVisible(true)
	case models.ClientMessageTypeBlur:
		s.setVisible(false)
	case models.ClientMessageTypeToggleNotifications:
		s.notificationsEnabled = !s.notificationsEnabled
	case models.ClientMessageTypeToggleSound:
		s.soundEnabled = !s.soundEnabled
	case models.ClientMessageTypeToastClick:
		s.toastClick()
	case models.ClientMessageTypeToastClose:
		s.dismissToast(msg.ToastID)
	case models.ClientMessageTypeOnline:
		s.db.EnableNetwork()
	case models.ClientMessageTypeOffline:
		s.db.DisableNetwork()
	default:
		slog.Warn("unknown client message", "user", s.userName, "type", msg.Type)
		return
	}
	s.render()
}

func (s *Session) sendMessage(ctx context.Context, text string) {
	room, ok := s.rooms.Active()
	if !ok && s.rooms.ActiveID() != "" {
		// Created by us and not listed yet.
		room = models.Room{ID: s.rooms.ActiveID(), CreatedBy: s.userName}
		ok = true
	}

	var active *models.Room
	if ok {
		active = &room
	}
	if _, err := s.chat.SendMessage(ctx, active, s.userName, text); err != nil {
		slog.Error("failed to send message", "user", s.userName, "room", room.ID, "error", err)
		return
	}
	s.unread.MarkRead(room.ID)
}

func (s *Session) createRoom(ctx context.Context, name, description string) {
	id, version, err := s.chat.CreateRoom(ctx, chat.NewRoom{
		Name:        name,
		Description: description,
		CreatedBy:   s.userName,
	})
	if err != nil {
		slog.Error("failed to create room", "user", s.userName, "error", err)
		return
	}
	s.rooms.Select(id, version)
	s.activate()
}

func (s *Session) deleteRoom(ctx context.Context, roomID string) {
	version, err := s.chat.DeleteRoom(ctx, roomID)
	if err != nil {
		slog.Error("failed to delete room", "user", s.userName, "room", roomID, "error", err)
		return
	}
	s.unread.Forget(roomID)
	if s.rooms.Clear(roomID, version) {
		s.activate()
	}
}

func (s *Session) deleteMessage(ctx context.Context, messageID string) {
	msg, ok := s.feed.Message(messageID)
	if !ok {
		slog.Warn("message not in feed", "user", s.userName, "message", messageID)
		return
	}
	var creator string
	if room, ok := s.rooms.Room(msg.RoomID); ok {
		creator = room.CreatedBy
	}
	if err := s.chat.DeleteMessage(ctx, msg, s.userName, creator); err != nil {
		slog.Error("failed to delete message", "user", s.userName, "message", messageID, "error", err)
	}
}

// selectRoom is an explicit pick by the user, so the room is read even if
// the app is not visible.
func (s *Session) selectRoom(roomID string) {
	if _, ok := s.rooms.Room(roomID); !ok {
		slog.Warn("select of unknown room", "user", s.userName, "room", roomID)
		return
	}
	s.rooms.Select(roomID, 0)
	s.activate()
	s.unread.MarkRead(roomID)
}

func (s *Session) setVisible(visible bool) {
	s.visible = visible
	if visible {
		s.unread.MarkRead(s.rooms.ActiveID())
	}
}

func (s *Session) toastClick() {
	if s.toast == nil {
		return
	}
	roomID := s.toast.RoomID
	s.dismissToast("")

	if _, ok := s.rooms.Room(roomID); !ok {
		return
	}
	s.rooms.Select(roomID, 0)
	s.activate()
}
