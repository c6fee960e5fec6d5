package models

import "errors"

var (
	ErrNotFound = errors.New("not found")
)

// Room represents a chat room.
type Room struct {
	ID          string `json:"id" msgpack:"-"`
	Name        string `json:"name" msgpack:"name"`
	Description string `json:"description,omitempty" msgpack:"description"`
	CreatedAt   int64  `json:"createdAt" msgpack:"createdAt"` // Unix milliseconds, 0 until assigned by the store
	CreatedBy   string `json:"createdBy,omitempty" msgpack:"createdBy"`
}

// Message represents a chat message.
type Message struct {
	ID          string `json:"id" msgpack:"-"`
	Text        string `json:"text" msgpack:"text"`
	UserName    string `json:"userName" msgpack:"userName"`
	RoomID      string `json:"roomId" msgpack:"roomId"`
	CreatedAt   int64  `json:"createdAt" msgpack:"createdAt"` // Unix milliseconds, 0 until assigned by the store
	RoomCreator string `json:"roomCreator,omitempty" msgpack:"roomCreator"`
}

// APIResponse is the generic JSON answer of the admin API.
type APIResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// ClientMessage represents a command sent from the client to its session.
type ClientMessage struct {
	Type        ClientMessageType `json:"type" validate:"required,oneof=send createRoom deleteRoom deleteMessage selectRoom visibility focus blur toggleNotifications toggleSound toastClick toastClose online offline"`
	RoomID      string            `json:"roomId,omitempty" validate:"required_if=Type deleteRoom,required_if=Type selectRoom"`
	MessageID   string            `json:"messageId,omitempty" validate:"required_if=Type deleteMessage"`
	ToastID     string            `json:"toastId,omitempty"`
	Text        string            `json:"text,omitempty"`
	Name        string            `json:"name,omitempty"`
	Description string            `json:"description,omitempty"`
	Hidden      bool              `json:"hidden,omitempty"`
}

// ServerMessage represents a message to the client.
type ServerMessage struct {
	Type       ServerMessageType `json:"type"`
	State      *View             `json:"state,omitempty"`
	Toast      *Toast            `json:"toast,omitempty"`
	Sound      string            `json:"sound,omitempty"`
	Permission string            `json:"permission,omitempty"`
}

// View is everything the client needs to render the chat.
type View struct {
	UserName             string        `json:"userName"`
	Title                string        `json:"title"`
	Rooms                []RoomView    `json:"rooms"`
	ActiveRoomID         string        `json:"activeRoomId,omitempty"`
	Messages             []MessageView `json:"messages"`
	UnreadTotal          int           `json:"unreadTotal"`
	Visible              bool          `json:"visible"`
	NotificationsEnabled bool          `json:"notificationsEnabled"`
	SoundEnabled         bool          `json:"soundEnabled"`
	Online               bool          `json:"online"`
	// Present lists the users with an open connection.
	Present []string `json:"present,omitempty"`
}

type RoomView struct {
	Room
	Unread     int   `json:"unread"`
	LastSeenAt int64 `json:"lastSeenAt,omitempty"` // Unix milliseconds
	Active     bool  `json:"active"`
	CanDelete  bool  `json:"canDelete"`
}

type MessageView struct {
	Message
	HTML      string `json:"html"`
	Own       bool   `json:"own"`
	CanDelete bool   `json:"canDelete"`
}

// Toast is a transient in-app notification about a message in another room.
type Toast struct {
	ID       string `json:"id"`
	RoomID   string `json:"roomId"`
	RoomName string `json:"roomName"`
	Title    string `json:"title"`
	Text     string `json:"text"`
}

type ClientMessageType string

const (
	ClientMessageTypeSend                ClientMessageType = "send"
	ClientMessageTypeCreateRoom          ClientMessageType = "createRoom"
	ClientMessageTypeDeleteRoom          ClientMessageType = "deleteRoom"
	ClientMessageTypeDeleteMessage       ClientMessageType = "deleteMessage"
	ClientMessageTypeSelectRoom          ClientMessageType = "selectRoom"
	ClientMessageTypeVisibility          ClientMessageType = "visibility"
	ClientMessageTypeFocus               ClientMessageType = "focus"
	ClientMessageTypeBlur                ClientMessageType = "blur"
	ClientMessageTypeToggleNotifications ClientMessageType = "toggleNotifications"
	ClientMessageTypeToggleSound         ClientMessageType = "toggleSound"
	ClientMessageTypeToastClick          ClientMessageType = "toastClick"
	ClientMessageTypeToastClose          ClientMessageType = "toastClose"
	ClientMessageTypeOnline              ClientMessageType = "online"
	ClientMessageTypeOffline             ClientMessageType = "offline"
)

type ServerMessageType string

const (
	ServerMessageTypeState          ServerMessageType = "state"
	ServerMessageTypeToast          ServerMessageType = "toast"
	ServerMessageTypeToastDismissed ServerMessageType = "toastDismissed"
	ServerMessageTypeSound          ServerMessageType = "sound"
	ServerMessageTypePermission     ServerMessageType = "permission"
)
