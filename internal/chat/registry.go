package chat

import (
	"slices"

	"wordflight/internal/models"
)

// Registry holds the live room list and derives the active room.
type Registry struct {
	rooms  []models.Room
	active string
	// pending is the store version that must contain a room selected
	// before it showed up in the list, zero when active has been seen.
	pending uint64
	// floor is the version of the latest local delete. Older lists still
	// carry the deleted room and are ignored.
	floor uint64
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Apply replaces the room list. If nothing is active, or the active room
// vanished, the first room becomes active. It reports whether the active
// room changed. Lists older than the last Clear are ignored.
func (r *Registry) Apply(snap RoomsSnapshot) bool {
	if snap.Version < r.floor {
		return false
	}
	r.rooms = snap.Rooms
	prev := r.active

	if r.active != "" && r.indexOf(r.active) >= 0 {
		r.pending = 0
		return false
	}
	if r.active != "" && r.pending != 0 && snap.Version < r.pending {
		// Snapshot predates the room we just created.
		return false
	}

	r.pending = 0
	r.active = ""
	if len(r.rooms) > 0 {
		r.active = r.rooms[0].ID
	}
	return r.active != prev
}

// Select makes a room active. minVersion is the store version the room is
// guaranteed to appear at, or zero for rooms already listed.
func (r *Registry) Select(roomID string, minVersion uint64) bool {
	prev := r.active
	r.active = roomID
	r.pending = 0
	if r.indexOf(roomID) < 0 {
		r.pending = minVersion
	}
	return r.active != prev
}

// Clear forgets a room deleted at version and drops the active selection
// if it is that room. The next Apply at or after version picks a new one.
// It reports whether the active room changed.
func (r *Registry) Clear(roomID string, version uint64) bool {
	r.floor = max(r.floor, version)
	if i := r.indexOf(roomID); i >= 0 {
		r.rooms = slices.Delete(slices.Clone(r.rooms), i, i+1)
	}
	if r.active != roomID {
		return false
	}
	r.active = ""
	r.pending = 0
	return true
}

// Active returns the active room if it is listed.
func (r *Registry) Active() (models.Room, bool) {
	i := r.indexOf(r.active)
	if i < 0 {
		return models.Room{}, false
	}
	return r.rooms[i], true
}

// ActiveID returns the active room ID, which may not be listed yet.
func (r *Registry) ActiveID() string {
	return r.active
}

func (r *Registry) Room(id string) (models.Room, bool) {
	i := r.indexOf(id)
	if i < 0 {
		return models.Room{}, false
	}
	return r.rooms[i], true
}

func (r *Registry) Rooms() []models.Room {
	return slices.Clone(r.rooms)
}

func (r *Registry) indexOf(id string) int {
	if id == "" {
		return -1
	}
	return slices.IndexFunc(r.rooms, func(room models.Room) bool {
		return room.ID == id
	})
}
