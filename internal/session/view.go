package session

import (
	"wordflight/internal/chat"
	"wordflight/internal/content"
	"wordflight/internal/models"
	"wordflight/internal/unread"
)

func (s *Session) render() {
	view := s.view()
	s.send(models.ServerMessage{Type: models.ServerMessageTypeState, State: &view})
}

func (s *Session) view() models.View {
	activeID := s.rooms.ActiveID()
	total := s.unread.Total()

	rooms := s.rooms.Rooms()
	roomViews := make([]models.RoomView, 0, len(rooms))
	creator := ""
	for _, room := range rooms {
		if room.ID == activeID {
			creator = room.CreatedBy
		}
		rv := models.RoomView{
			Room:      room,
			Unread:    s.unread.Count(room.ID),
			Active:    room.ID == activeID,
			CanDelete: chat.CanDeleteRoom(room, s.userName),
		}
		if seen, ok := s.unread.Watermark(room.ID); ok {
			rv.LastSeenAt = seen.UnixMilli()
		}
		roomViews = append(roomViews, rv)
	}

	messages := s.feed.Messages()
	messageViews := make([]models.MessageView, 0, len(messages))
	for _, msg := range messages {
		messageViews = append(messageViews, models.MessageView{
			Message:   msg,
			HTML:      content.Render(msg.Text),
			Own:       msg.UserName == s.userName,
			CanDelete: chat.CanDeleteMessage(msg, s.userName, creator),
		})
	}

	var present []string
	if s.presence != nil {
		present = s.presence()
	}

	return models.View{
		UserName:             s.userName,
		Title:                unread.Title(s.title, total),
		Rooms:                roomViews,
		ActiveRoomID:         activeID,
		Messages:             messageViews,
		UnreadTotal:          total,
		Visible:              s.visible,
		NotificationsEnabled: s.notificationsEnabled,
		SoundEnabled:         s.soundEnabled,
		Online:               s.db.Online(),
		Present:              present,
	}
}
