// Package unread keeps per-room unread counters and last-seen watermarks.
//
// A message counts as unseen when someone else wrote it and its server
// timestamp is later than the room's watermark. The watermark comes from
// the local clock while message timestamps come from the store, so skew or
// late delivery can make the count drift in either direction.
package unread

import (
	"fmt"
	"sort"
	"time"

	"wordflight/internal/models"
)

// Decision is the outcome of observing one message.
type Decision struct {
	// Eligible is set when the message is by someone else and newer than
	// the watermark.
	Eligible bool
	// Counted is set when the counter was incremented. Counted messages
	// are the ones worth a notification.
	Counted bool
}

type Tracker struct {
	counts     map[string]int
	watermarks map[string]int64 // Unix milliseconds
	now        func() time.Time
}

func New(now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		counts:     make(map[string]int),
		watermarks: make(map[string]int64),
		now:        now,
	}
}

// MarkRead resets the counter and moves the watermark to now.
func (t *Tracker) MarkRead(roomID string) {
	if roomID == "" {
		return
	}
	t.counts[roomID] = 0
	t.watermarks[roomID] = t.now().UnixMilli()
}

// Observe applies a newly added message. focused is true when the room is
// the active room and the app is visible.
func (t *Tracker) Observe(roomID string, msg models.Message, self string, focused bool) Decision {
	if msg.UserName == self {
		return Decision{}
	}
	// A missing watermark is zero: everything timestamped is newer.
	if msg.CreatedAt <= t.watermarks[roomID] {
		return Decision{}
	}
	if focused {
		return Decision{Eligible: true}
	}
	t.counts[roomID]++
	return Decision{Eligible: true, Counted: true}
}

// Forget drops all state of a deleted room.
func (t *Tracker) Forget(roomID string) {
	delete(t.counts, roomID)
	delete(t.watermarks, roomID)
}

func (t *Tracker) Count(roomID string) int {
	return t.counts[roomID]
}

// Watermark returns the last-seen time of a room.
func (t *Tracker) Watermark(roomID string) (time.Time, bool) {
	ms, ok := t.watermarks[roomID]
	if !ok {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

// Total is the badge count.
func (t *Tracker) Total() int {
	total := 0
	for _, n := range t.counts {
		total += n
	}
	return total
}

// Rooms lists every room the tracker holds state for, most unread first.
func (t *Tracker) Rooms() []string {
	ids := make([]string, 0, len(t.counts))
	for id := range t.counts {
		ids = append(ids, id)
	}
	for id := range t.watermarks {
		if _, ok := t.counts[id]; !ok {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		if t.counts[ids[i]] != t.counts[ids[j]] {
			return t.counts[ids[i]] > t.counts[ids[j]]
		}
		return ids[i] < ids[j]
	})
	return ids
}

// Title prefixes the window title with the badge count.
func Title(base string, total int) string {
	if total > 0 {
		return fmt.Sprintf("(%d) %s", total, base)
	}
	return base
}
