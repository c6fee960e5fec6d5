// Package notify builds the three notification surfaces for a new message:
// the in-app toast, the notification tone and the native (Web Push)
// notification.
package notify

import (
	"fmt"
	"time"

	"wordflight/internal/models"

	"github.com/google/uuid"
)

const (
	DefaultToastTTL = 5 * time.Second
	Icon            = "/WFLogo.png"
	SoundPath       = "/api/sounds/notification.wav"
)

// NewToast describes a message that arrived in a room the user is not
// looking at.
func NewToast(room models.Room, msg models.Message) models.Toast {
	return models.Toast{
		ID:       uuid.NewString(),
		RoomID:   room.ID,
		RoomName: room.Name,
		Title:    title(room),
		Text:     msg.Text,
	}
}

// NewNative builds the native notification for a message. The tag is the
// room, so a newer notification replaces an older one of the same room.
func NewNative(room models.Room, msg models.Message) Native {
	return Native{
		Title: title(room),
		Body:  fmt.Sprintf("%s: %s", msg.UserName, msg.Text),
		Icon:  Icon,
		Tag:   room.ID,
	}
}

func title(room models.Room) string {
	return "New message in #" + room.Name
}
