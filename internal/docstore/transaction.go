package docstore

import (
	"context"

	"wordflight/internal/storage"
)

// Transaction reads and writes inside a single store transaction. Writes
// become visible to live queries only after the transaction commits.
type Transaction struct {
	tx *storage.Tx
}

// RunTransaction runs fn in one read-write transaction. If fn returns an
// error nothing is written.
func (c *Client) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx *Transaction) error) (WriteResult, error) {
	return c.update(ctx, func(tx *storage.Tx) error {
		return fn(ctx, &Transaction{tx: tx})
	})
}

// Get reads a document, returning models.ErrNotFound if it does not exist.
func (t *Transaction) Get(ref *DocumentRef) (*DocumentSnapshot, error) {
	return getDoc(ref, t.tx)
}

// Documents runs a query inside the transaction.
func (t *Transaction) Documents(q Query) ([]*DocumentSnapshot, error) {
	return q.run(t.tx)
}

func (t *Transaction) Set(ref *DocumentRef, data any) error {
	return setDoc(ref, t.tx, data)
}

func (t *Transaction) Create(ref *DocumentRef, data any) error {
	return createDoc(ref, t.tx, data)
}

func (t *Transaction) Delete(ref *DocumentRef) error {
	return t.tx.Delete(ref.Parent, ref.ID)
}
