package docstore

import (
	"context"
	"errors"

	"wordflight/internal/models"
	"wordflight/internal/storage"

	"github.com/google/uuid"
)

// CollectionRef is a reference to a collection. It embeds the Query that
// selects every document of the collection.
type CollectionRef struct {
	Query
	ID string
}

// Doc returns a reference to the document with the given ID.
func (c *CollectionRef) Doc(id string) *DocumentRef {
	return &DocumentRef{client: c.client, Parent: c.ID, ID: id}
}

// NewDoc returns a reference to a document with a fresh unique ID.
func (c *CollectionRef) NewDoc() *DocumentRef {
	return c.Doc(uuid.NewString())
}

// Add creates a document with a fresh unique ID.
func (c *CollectionRef) Add(ctx context.Context, data any) (*DocumentRef, WriteResult, error) {
	ref := c.NewDoc()
	wr, err := ref.Create(ctx, data)
	if err != nil {
		return nil, WriteResult{}, err
	}
	return ref, wr, nil
}

// DocumentRef is a reference to a single document.
type DocumentRef struct {
	client *Client
	Parent string
	ID     string
}

// Get reads the document. It returns models.ErrNotFound if it does not
// exist.
func (d *DocumentRef) Get(ctx context.Context) (*DocumentSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var snap *DocumentSnapshot
	err := d.client.store.backend.View(func(tx *storage.Tx) error {
		var err error
		snap, err = getDoc(d, tx)
		return err
	})
	return snap, err
}

// Set creates or overwrites the document.
func (d *DocumentRef) Set(ctx context.Context, data any) (WriteResult, error) {
	return d.client.update(ctx, func(tx *storage.Tx) error {
		return setDoc(d, tx, data)
	})
}

// Create writes the document, failing with ErrAlreadyExists if it exists.
func (d *DocumentRef) Create(ctx context.Context, data any) (WriteResult, error) {
	return d.client.update(ctx, func(tx *storage.Tx) error {
		return createDoc(d, tx, data)
	})
}

// Delete removes the document. Deleting a missing document succeeds.
func (d *DocumentRef) Delete(ctx context.Context) (WriteResult, error) {
	return d.client.update(ctx, func(tx *storage.Tx) error {
		return tx.Delete(d.Parent, d.ID)
	})
}

func getDoc(d *DocumentRef, tx *storage.Tx) (*DocumentSnapshot, error) {
	doc, err := tx.Get(d.Parent, d.ID)
	if err != nil {
		return nil, err
	}
	return newDocumentSnapshot(d.client, d.Parent, doc, normalizeFields(doc.Fields)), nil
}

func setDoc(d *DocumentRef, tx *storage.Tx, data any) error {
	fields, err := toFields(data, tx.Timestamp())
	if err != nil {
		return err
	}
	return tx.Put(d.Parent, storage.DBDocument{ID: d.ID, Fields: fields})
}

func createDoc(d *DocumentRef, tx *storage.Tx, data any) error {
	_, err := tx.Get(d.Parent, d.ID)
	switch {
	case err == nil:
		return ErrAlreadyExists
	case !errors.Is(err, models.ErrNotFound):
		return err
	}
	return setDoc(d, tx, data)
}
