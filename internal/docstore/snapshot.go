package docstore

import (
	"fmt"
	"time"

	"wordflight/internal/storage"

	"github.com/vmihailenco/msgpack/v5"
)

// DocumentSnapshot is a read-only copy of a document at some version.
type DocumentSnapshot struct {
	Ref           *DocumentRef
	CreateVersion uint64
	UpdateVersion uint64
	UpdateTime    time.Time

	data map[string]any
}

func newDocumentSnapshot(c *Client, collection string, d storage.DBDocument, fields map[string]any) *DocumentSnapshot {
	return &DocumentSnapshot{
		Ref:           &DocumentRef{client: c, Parent: collection, ID: d.ID},
		CreateVersion: d.CreateVersion,
		UpdateVersion: d.UpdateVersion,
		UpdateTime:    time.UnixMilli(d.UpdateTime),
		data:          fields,
	}
}

// Data returns a copy of the document fields.
func (d *DocumentSnapshot) Data() map[string]any {
	out := make(map[string]any, len(d.data))
	for k, v := range d.data {
		out[k] = v
	}
	return out
}

// DataAt returns a single field.
func (d *DocumentSnapshot) DataAt(path string) (any, error) {
	v, ok := d.data[path]
	if !ok {
		return nil, fmt.Errorf("docstore: no field %q in document %s", path, d.Ref.ID)
	}
	return v, nil
}

// DataTo decodes the document fields into v, a pointer to a struct with
// msgpack tags.
func (d *DocumentSnapshot) DataTo(v any) error {
	b, err := msgpack.Marshal(d.data)
	if err != nil {
		return fmt.Errorf("failed to encode document %s: %w", d.Ref.ID, err)
	}
	if err := msgpack.Unmarshal(b, v); err != nil {
		return fmt.Errorf("failed to decode document %s: %w", d.Ref.ID, err)
	}
	return nil
}

type ChangeKind int

const (
	DocumentAdded ChangeKind = iota
	DocumentRemoved
	DocumentModified
)

func (k ChangeKind) String() string {
	switch k {
	case DocumentAdded:
		return "added"
	case DocumentRemoved:
		return "removed"
	case DocumentModified:
		return "modified"
	}
	return "unknown"
}

// DocumentChange is a difference between two consecutive query results.
// OldIndex is -1 for added documents, NewIndex is -1 for removed ones.
type DocumentChange struct {
	Kind     ChangeKind
	Doc      *DocumentSnapshot
	OldIndex int
	NewIndex int
}

// QuerySnapshot is the full result of a live query plus the changes since
// the previous delivery.
type QuerySnapshot struct {
	Docs     []*DocumentSnapshot
	Changes  []DocumentChange
	Version  uint64
	ReadTime time.Time
}

func diff(prev, next []*DocumentSnapshot) []DocumentChange {
	prevIdx := make(map[string]int, len(prev))
	for i, d := range prev {
		prevIdx[d.Ref.ID] = i
	}
	nextIdx := make(map[string]int, len(next))
	for i, d := range next {
		nextIdx[d.Ref.ID] = i
	}

	var changes []DocumentChange
	for i, d := range prev {
		if _, ok := nextIdx[d.Ref.ID]; !ok {
			changes = append(changes, DocumentChange{Kind: DocumentRemoved, Doc: d, OldIndex: i, NewIndex: -1})
		}
	}
	for j, d := range next {
		i, ok := prevIdx[d.Ref.ID]
		switch {
		case !ok:
			changes = append(changes, DocumentChange{Kind: DocumentAdded, Doc: d, OldIndex: -1, NewIndex: j})
		case prev[i].UpdateVersion != d.UpdateVersion:
			changes = append(changes, DocumentChange{Kind: DocumentModified, Doc: d, OldIndex: i, NewIndex: j})
		}
	}
	return changes
}
