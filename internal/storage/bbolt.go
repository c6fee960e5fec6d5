package storage

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"wordflight/internal/models"

	"go.etcd.io/bbolt"
)

var (
	bucketCollections = []byte("collections")
	bucketMeta        = []byte("meta")
	metaKey           = []byte("store")
)

var errReadOnly = errors.New("write in read-only transaction")

type BboltStorage struct {
	db *bbolt.DB
}

func NewBboltStorage(path string) (*BboltStorage, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketCollections); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketMeta); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BboltStorage{db: db}, nil
}

func (s *BboltStorage) Close() error {
	return s.db.Close()
}

// Commit describes a finished read-write transaction.
type Commit struct {
	Version     uint64
	Timestamp   int64 // Unix milliseconds assigned to the commit
	Collections []string
	Changes     []Change
}

// Change is one document written by a commit. Before is nil for created
// documents, After is nil for deleted ones.
type Change struct {
	Collection string
	ID         string
	Before     map[string]any
	After      map[string]any
}

// Tx gives collection level access inside a single bbolt transaction.
type Tx struct {
	tx       *bbolt.Tx
	meta     DBMeta
	writable bool
	touched  map[string]struct{}
	changes  []Change
}

// Version returns the version the transaction reads at, or the version it
// will commit as when it is writable.
func (t *Tx) Version() uint64 {
	return t.meta.Version
}

// Timestamp returns the commit timestamp of a writable transaction.
func (t *Tx) Timestamp() int64 {
	return t.meta.LastTimestamp
}

// Get returns a single document or models.ErrNotFound.
func (t *Tx) Get(collection, id string) (DBDocument, error) {
	var doc DBDocument
	b := t.collection(collection)
	if b == nil {
		return doc, models.ErrNotFound
	}
	data := b.Get([]byte(id))
	if data == nil {
		return doc, models.ErrNotFound
	}
	if err := doc.UnmarshalBinary(data); err != nil {
		return doc, fmt.Errorf("failed to unmarshal document %s/%s: %w", collection, id, err)
	}
	return doc, nil
}

// Put creates or replaces a document, stamping it with the commit version.
func (t *Tx) Put(collection string, doc DBDocument) error {
	if !t.writable {
		return errReadOnly
	}
	if doc.ID == "" {
		return errors.New("document missing id")
	}

	b, err := t.tx.Bucket(bucketCollections).CreateBucketIfNotExists([]byte(collection))
	if err != nil {
		return fmt.Errorf("failed to create collection bucket: %w", err)
	}

	change := Change{Collection: collection, ID: doc.ID, After: doc.Fields}
	doc.CreateVersion = t.meta.Version
	if existing := b.Get(doc.Key()); existing != nil {
		var prev DBDocument
		if err := prev.UnmarshalBinary(existing); err != nil {
			return fmt.Errorf("failed to unmarshal document: %w", err)
		}
		doc.CreateVersion = prev.CreateVersion
		change.Before = prev.Fields
	}
	doc.UpdateVersion = t.meta.Version
	doc.UpdateTime = t.meta.LastTimestamp

	if err := put(b, &doc); err != nil {
		return fmt.Errorf("failed to put document: %w", err)
	}

	t.record(change)
	return nil
}

func (t *Tx) record(change Change) {
	t.touched[change.Collection] = struct{}{}
	t.changes = append(t.changes, change)
}

// put stores a value under its own key.
func put(b *bbolt.Bucket, s Storeable) error {
	data, err := s.MarshalBinary()
	if err != nil {
		return err
	}
	return b.Put(s.Key(), data)
}

// Delete removes a document. Deleting a missing document is not an error.
func (t *Tx) Delete(collection, id string) error {
	if !t.writable {
		return errReadOnly
	}
	b := t.collection(collection)
	if b == nil {
		return nil
	}
	existing := b.Get([]byte(id))
	if existing == nil {
		return nil
	}
	var prev DBDocument
	if err := prev.UnmarshalBinary(existing); err != nil {
		return fmt.Errorf("failed to unmarshal document: %w", err)
	}
	if err := b.Delete([]byte(id)); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	t.record(Change{Collection: collection, ID: id, Before: prev.Fields})
	return nil
}

// ForEach calls fn for every document of the collection in key order.
func (t *Tx) ForEach(collection string, fn func(doc DBDocument) error) error {
	b := t.collection(collection)
	if b == nil {
		return nil
	}
	return b.ForEach(func(k, v []byte) error {
		var doc DBDocument
		if err := doc.UnmarshalBinary(v); err != nil {
			return fmt.Errorf("failed to unmarshal document %s/%s: %w", collection, string(k), err)
		}
		return fn(doc)
	})
}

func (t *Tx) collection(name string) *bbolt.Bucket {
	return t.tx.Bucket(bucketCollections).Bucket([]byte(name))
}

// View runs fn in a read-only transaction.
func (s *BboltStorage) View(fn func(tx *Tx) error) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		meta, err := loadMeta(tx)
		if err != nil {
			return err
		}
		return fn(&Tx{tx: tx, meta: meta})
	})
}

// Update runs fn in a read-write transaction. A transaction that writes
// anything bumps the store version and takes a server timestamp that is
// strictly greater than every previous one.
func (s *BboltStorage) Update(now time.Time, fn func(tx *Tx) error) (Commit, error) {
	var commit Commit
	err := s.db.Update(func(tx *bbolt.Tx) error {
		meta, err := loadMeta(tx)
		if err != nil {
			return err
		}

		next := meta
		next.Version++
		next.LastTimestamp = now.UnixMilli()
		if next.LastTimestamp <= meta.LastTimestamp {
			next.LastTimestamp = meta.LastTimestamp + 1
		}

		t := &Tx{tx: tx, meta: next, writable: true, touched: make(map[string]struct{})}
		if err := fn(t); err != nil {
			return err
		}

		if len(t.touched) == 0 {
			commit = Commit{Version: meta.Version, Timestamp: meta.LastTimestamp}
			return nil
		}

		if err := put(tx.Bucket(bucketMeta), &next); err != nil {
			return fmt.Errorf("failed to save meta: %w", err)
		}

		commit = Commit{Version: next.Version, Timestamp: next.LastTimestamp, Changes: t.changes}
		for name := range t.touched {
			commit.Collections = append(commit.Collections, name)
		}
		sort.Strings(commit.Collections)
		return nil
	})
	if err != nil {
		return Commit{}, err
	}
	return commit, nil
}

func loadMeta(tx *bbolt.Tx) (DBMeta, error) {
	var meta DBMeta
	data := tx.Bucket(bucketMeta).Get(metaKey)
	if data == nil {
		return meta, nil
	}
	if err := meta.UnmarshalBinary(data); err != nil {
		return meta, fmt.Errorf("failed to unmarshal meta: %w", err)
	}
	return meta, nil
}
