package chat

import (
	"slices"

	"wordflight/internal/models"
)

// Feed holds the live message list of the active room.
type Feed struct {
	roomID   string
	messages []models.Message
}

func NewFeed() *Feed {
	return &Feed{}
}

// Reset empties the feed and points it at another room.
func (f *Feed) Reset(roomID string) {
	f.roomID = roomID
	f.messages = nil
}

// Apply replaces the list wholesale. Snapshots for other rooms are ignored.
func (f *Feed) Apply(snap MessagesSnapshot) bool {
	if snap.RoomID != f.roomID {
		return false
	}
	f.messages = snap.Messages
	return true
}

func (f *Feed) RoomID() string {
	return f.roomID
}

func (f *Feed) Messages() []models.Message {
	return slices.Clone(f.messages)
}

func (f *Feed) Message(id string) (models.Message, bool) {
	i := slices.IndexFunc(f.messages, func(m models.Message) bool {
		return m.ID == id
	})
	if i < 0 {
		return models.Message{}, false
	}
	return f.messages[i], true
}
