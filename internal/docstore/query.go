package docstore

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"wordflight/internal/storage"
)

type Direction int

const (
	Asc Direction = iota + 1
	Desc
)

type filter struct {
	path  string
	op    string
	value any
}

func (f filter) matches(fields map[string]any) bool {
	v, ok := fields[f.path]
	if !ok {
		return false
	}

	c := compareValues(v, f.value)
	sameType := typeRank(v) == typeRank(f.value)
	switch f.op {
	case "==":
		return sameType && c == 0
	case "!=":
		return !sameType || c != 0
	case "<":
		return sameType && c < 0
	case "<=":
		return sameType && c <= 0
	case ">":
		return sameType && c > 0
	case ">=":
		return sameType && c >= 0
	}
	return false
}

type order struct {
	path string
	dir  Direction
}

// Query selects documents of one collection. Queries are immutable values;
// every builder method returns a modified copy.
type Query struct {
	client     *Client
	collection string
	filters    []filter
	orders     []order
	limit      int
	err        error
}

// Where adds a filter. Supported operators are ==, !=, <, <=, > and >=.
// Documents lacking the field never match.
func (q Query) Where(path, op string, value any) Query {
	switch op {
	case "==", "!=", "<", "<=", ">", ">=":
	default:
		q.err = fmt.Errorf("docstore: invalid operator %q", op)
		return q
	}
	q.filters = append(slices.Clone(q.filters), filter{path: path, op: op, value: normalize(value)})
	return q
}

// OrderBy sorts by a field. Documents lacking the field are excluded.
func (q Query) OrderBy(path string, dir Direction) Query {
	if dir != Asc && dir != Desc {
		q.err = fmt.Errorf("docstore: invalid direction %d", dir)
		return q
	}
	q.orders = append(slices.Clone(q.orders), order{path: path, dir: dir})
	return q
}

// Limit caps the number of returned documents. Zero means no limit.
func (q Query) Limit(n int) Query {
	if n < 0 {
		q.err = fmt.Errorf("docstore: negative limit %d", n)
		return q
	}
	q.limit = n
	return q
}

// Documents runs the query once.
func (q Query) Documents(ctx context.Context) ([]*DocumentSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var docs []*DocumentSnapshot
	err := q.client.store.backend.View(func(tx *storage.Tx) error {
		var err error
		docs, err = q.run(tx)
		return err
	})
	return docs, err
}

func (q Query) run(tx *storage.Tx) ([]*DocumentSnapshot, error) {
	if q.err != nil {
		return nil, q.err
	}

	var docs []*DocumentSnapshot
	err := tx.ForEach(q.collection, func(d storage.DBDocument) error {
		fields := normalizeFields(d.Fields)
		if q.selects(fields) {
			docs = append(docs, newDocumentSnapshot(q.client, q.collection, d, fields))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(docs, func(i, j int) bool {
		return q.less(docs[i], docs[j])
	})

	if q.limit > 0 && len(docs) > q.limit {
		docs = docs[:q.limit]
	}
	return docs, nil
}

// selects reports whether a document with these normalized fields passes
// every filter and carries every ordered field. Limits are not applied.
func (q Query) selects(fields map[string]any) bool {
	if fields == nil {
		return false
	}
	for _, f := range q.filters {
		if !f.matches(fields) {
			return false
		}
	}
	for _, o := range q.orders {
		if _, ok := fields[o.path]; !ok {
			return false
		}
	}
	return true
}

// affectedBy reports whether a committed change can alter the result.
func (q Query) affectedBy(ch storage.Change) bool {
	if ch.Collection != q.collection {
		return false
	}
	if q.err != nil {
		return true
	}
	return q.selects(normalizeFields(ch.Before)) || q.selects(normalizeFields(ch.After))
}

// less orders by the requested fields, then by document ID in the
// direction of the last ordering.
func (q Query) less(a, b *DocumentSnapshot) bool {
	dir := Asc
	for _, o := range q.orders {
		dir = o.dir
		c := compareValues(a.data[o.path], b.data[o.path])
		if c == 0 {
			continue
		}
		if o.dir == Desc {
			return c > 0
		}
		return c < 0
	}
	if dir == Desc {
		return a.Ref.ID > b.Ref.ID
	}
	return a.Ref.ID < b.Ref.ID
}
