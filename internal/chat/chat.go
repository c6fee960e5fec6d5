package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"wordflight/internal/docstore"
	"wordflight/internal/models"
)

const (
	roomsCollection    = "rooms"
	messagesCollection = "messages"
)

var (
	ErrBlankRoomName = errors.New("room name is blank")
	ErrBlankMessage  = errors.New("message text is blank")
	ErrNoActiveRoom  = errors.New("no active room")
	ErrRoomNotFound  = errors.New("room not found")
	ErrNotPermitted  = errors.New("only the author or the room creator may delete a message")
)

// Service issues chat writes and live queries against the document store.
// Writes are fire-and-forget: their effect is observed through the live
// queries, never applied locally.
type Service struct {
	db *docstore.Client
}

func NewService(db *docstore.Client) *Service {
	return &Service{db: db}
}

// NewRoom is the input of CreateRoom.
type NewRoom struct {
	Name        string
	Description string
	CreatedBy   string
}

// CreateRoom writes a new room and returns its ID together with the store
// version that contains it.
func (s *Service) CreateRoom(ctx context.Context, in NewRoom) (string, uint64, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return "", 0, ErrBlankRoomName
	}

	ref, wr, err := s.db.Collection(roomsCollection).Add(ctx, map[string]any{
		"name":        name,
		"description": strings.TrimSpace(in.Description),
		"createdAt":   docstore.ServerTimestamp,
		"createdBy":   in.CreatedBy,
	})
	if err != nil {
		return "", 0, fmt.Errorf("failed to create room: %w", err)
	}
	return ref.ID, wr.Version, nil
}

// DeleteRoom removes every message of the room and then the room itself in
// one transaction. It returns the store version of the delete; room lists
// read before that version still contain the room.
//
// The message set is read inside the same transaction, so a message sent
// concurrently either lands before the delete and is removed with it, or
// fails with ErrRoomNotFound.
func (s *Service) DeleteRoom(ctx context.Context, roomID string) (uint64, error) {
	rooms := s.db.Collection(roomsCollection)
	messages := s.db.Collection(messagesCollection)

	wr, err := s.db.RunTransaction(ctx, func(ctx context.Context, tx *docstore.Transaction) error {
		docs, err := tx.Documents(messages.Where("roomId", "==", roomID))
		if err != nil {
			return err
		}
		for _, d := range docs {
			if err := tx.Delete(d.Ref); err != nil {
				return err
			}
		}
		return tx.Delete(rooms.Doc(roomID))
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete room %s: %w", roomID, err)
	}
	return wr.Version, nil
}

// SendMessage writes a message to the room. It fails with ErrRoomNotFound
// when the room no longer exists so no message outlives its room.
func (s *Service) SendMessage(ctx context.Context, room *models.Room, author, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrBlankMessage
	}
	if room == nil || room.ID == "" {
		return "", ErrNoActiveRoom
	}

	rooms := s.db.Collection(roomsCollection)
	ref := s.db.Collection(messagesCollection).NewDoc()
	_, err := s.db.RunTransaction(ctx, func(ctx context.Context, tx *docstore.Transaction) error {
		snap, err := tx.Get(rooms.Doc(room.ID))
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return ErrRoomNotFound
			}
			return err
		}
		creator := room.CreatedBy
		if v, err := snap.DataAt("createdBy"); err == nil {
			if by, ok := v.(string); ok {
				creator = by
			}
		}
		return tx.Create(ref, map[string]any{
			"text":        text,
			"userName":    author,
			"roomId":      room.ID,
			"roomCreator": creator,
			"createdAt":   docstore.ServerTimestamp,
		})
	})
	if err != nil {
		return "", fmt.Errorf("failed to send message: %w", err)
	}
	return ref.ID, nil
}

// CanDeleteMessage is the client-side delete convention: the author or the
// room creator may delete. Nothing enforces it in the store.
func CanDeleteMessage(msg models.Message, requester, roomCreator string) bool {
	if requester == "" {
		return false
	}
	if msg.UserName == requester {
		return true
	}
	if roomCreator == "" {
		roomCreator = msg.RoomCreator
	}
	return roomCreator == requester
}

// CanDeleteRoom mirrors the display convention for the delete control.
func CanDeleteRoom(room models.Room, requester string) bool {
	return requester != "" && room.CreatedBy == requester
}

// DeleteMessage removes a message if CanDeleteMessage allows it.
func (s *Service) DeleteMessage(ctx context.Context, msg models.Message, requester, roomCreator string) error {
	if !CanDeleteMessage(msg, requester, roomCreator) {
		return ErrNotPermitted
	}
	if _, err := s.db.Collection(messagesCollection).Doc(msg.ID).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete message %s: %w", msg.ID, err)
	}
	return nil
}

// RoomsSnapshot is one delivery of the room list.
type RoomsSnapshot struct {
	Rooms   []models.Room
	Version uint64
}

// MessagesSnapshot is one delivery of a message list. Added holds the
// messages that entered the result since the previous delivery.
type MessagesSnapshot struct {
	RoomID   string
	Messages []models.Message
	Added    []models.Message
	Version  uint64
}

// WatchRooms listens to every room ordered by creation time.
func (s *Service) WatchRooms(fn func(RoomsSnapshot, error)) *docstore.Subscription {
	q := s.db.Collection(roomsCollection).OrderBy("createdAt", docstore.Asc)
	return q.Snapshots(func(snap *docstore.QuerySnapshot, err error) {
		if err != nil {
			fn(RoomsSnapshot{}, err)
			return
		}
		rooms := make([]models.Room, 0, len(snap.Docs))
		for _, d := range snap.Docs {
			room, err := decodeRoom(d)
			if err != nil {
				fn(RoomsSnapshot{}, err)
				return
			}
			rooms = append(rooms, room)
		}
		fn(RoomsSnapshot{Rooms: rooms, Version: snap.Version}, nil)
	})
}

// WatchMessages listens to the messages of a room ordered by creation time.
func (s *Service) WatchMessages(roomID string, fn func(MessagesSnapshot, error)) *docstore.Subscription {
	q := s.db.Collection(messagesCollection).
		Where("roomId", "==", roomID).
		OrderBy("createdAt", docstore.Asc)
	return q.Snapshots(messagesHandler(roomID, fn))
}

// WatchIncoming listens to every message written after the call, in all
// rooms. Each delivery reports the messages added since the previous one,
// however many commits it folds together. Messages carries the Added
// messages only, and RoomID is empty.
func (s *Service) WatchIncoming(ctx context.Context, fn func(MessagesSnapshot, error)) (*docstore.Subscription, error) {
	since, err := s.db.ServerTime(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read server time: %w", err)
	}
	q := s.db.Collection(messagesCollection).
		Where("createdAt", ">", since).
		OrderBy("createdAt", docstore.Asc)
	return q.Snapshots(func(snap *docstore.QuerySnapshot, err error) {
		if err != nil {
			fn(MessagesSnapshot{}, err)
			return
		}
		out := MessagesSnapshot{Version: snap.Version}
		for _, ch := range snap.Changes {
			if ch.Kind != docstore.DocumentAdded {
				continue
			}
			msg, err := decodeMessage(ch.Doc)
			if err != nil {
				fn(MessagesSnapshot{}, err)
				return
			}
			out.Added = append(out.Added, msg)
		}
		if len(out.Added) > 0 {
			out.Messages = out.Added
			fn(out, nil)
		}
	}), nil
}

// ListRooms reads the rooms once.
func (s *Service) ListRooms(ctx context.Context) ([]models.Room, error) {
	docs, err := s.db.Collection(roomsCollection).OrderBy("createdAt", docstore.Asc).Documents(ctx)
	if err != nil {
		return nil, err
	}
	rooms := make([]models.Room, 0, len(docs))
	for _, d := range docs {
		room, err := decodeRoom(d)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, nil
}

// ListMessages reads the messages of a room once.
func (s *Service) ListMessages(ctx context.Context, roomID string) ([]models.Message, error) {
	docs, err := s.db.Collection(messagesCollection).
		Where("roomId", "==", roomID).
		OrderBy("createdAt", docstore.Asc).
		Documents(ctx)
	if err != nil {
		return nil, err
	}
	messages := make([]models.Message, 0, len(docs))
	for _, d := range docs {
		msg, err := decodeMessage(d)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func messagesHandler(roomID string, fn func(MessagesSnapshot, error)) func(*docstore.QuerySnapshot, error) {
	return func(snap *docstore.QuerySnapshot, err error) {
		if err != nil {
			fn(MessagesSnapshot{RoomID: roomID}, err)
			return
		}
		out := MessagesSnapshot{
			RoomID:   roomID,
			Messages: make([]models.Message, 0, len(snap.Docs)),
			Version:  snap.Version,
		}
		for _, d := range snap.Docs {
			msg, err := decodeMessage(d)
			if err != nil {
				fn(MessagesSnapshot{RoomID: roomID}, err)
				return
			}
			out.Messages = append(out.Messages, msg)
		}
		for _, ch := range snap.Changes {
			if ch.Kind != docstore.DocumentAdded {
				continue
			}
			msg, err := decodeMessage(ch.Doc)
			if err != nil {
				fn(MessagesSnapshot{RoomID: roomID}, err)
				return
			}
			out.Added = append(out.Added, msg)
		}
		fn(out, nil)
	}
}

func decodeRoom(d *docstore.DocumentSnapshot) (models.Room, error) {
	var room models.Room
	if err := d.DataTo(&room); err != nil {
		return room, err
	}
	room.ID = d.Ref.ID
	return room, nil
}

func decodeMessage(d *docstore.DocumentSnapshot) (models.Message, error) {
	var msg models.Message
	if err := d.DataTo(&msg); err != nil {
		return msg, err
	}
	msg.ID = d.Ref.ID
	return msg, nil
}
