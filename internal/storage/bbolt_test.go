package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"wordflight/internal/models"
)

func TestStorage(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "storage_test")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	dbPath := filepath.Join(tmpDir, "test.db")
	store, err := NewBboltStorage(dbPath)
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	defer func() { _ = store.Close() }()

	now := time.UnixMilli(1_000_000)

	t.Run("Put", func(t *testing.T) {
		commit, err := store.Update(now, func(tx *Tx) error {
			return tx.Put("rooms", DBDocument{
				ID:     "r1",
				Fields: map[string]any{"name": "general"},
			})
		})
		if err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		if commit.Version != 1 {
			t.Errorf("expected version 1, got %d", commit.Version)
		}
		if commit.Timestamp != now.UnixMilli() {
			t.Errorf("expected timestamp %d, got %d", now.UnixMilli(), commit.Timestamp)
		}
		if len(commit.Collections) != 1 || commit.Collections[0] != "rooms" {
			t.Errorf("expected touched [rooms], got %v", commit.Collections)
		}

		err = store.View(func(tx *Tx) error {
			doc, err := tx.Get("rooms", "r1")
			if err != nil {
				return err
			}
			if doc.Fields["name"] != "general" {
				t.Errorf("expected name general, got %v", doc.Fields["name"])
			}
			if doc.CreateVersion != 1 || doc.UpdateVersion != 1 {
				t.Errorf("expected versions 1/1, got %d/%d", doc.CreateVersion, doc.UpdateVersion)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("View failed: %v", err)
		}
	})

	t.Run("MonotonicTimestamp", func(t *testing.T) {
		// Clock going backwards must still yield a later timestamp.
		commit, err := store.Update(now.Add(-time.Minute), func(tx *Tx) error {
			return tx.Put("rooms", DBDocument{ID: "r1", Fields: map[string]any{"name": "renamed"}})
		})
		if err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		if commit.Timestamp != now.UnixMilli()+1 {
			t.Errorf("expected timestamp %d, got %d", now.UnixMilli()+1, commit.Timestamp)
		}
		if len(commit.Changes) != 1 || commit.Changes[0].Before["name"] != "general" || commit.Changes[0].After["name"] != "renamed" {
			t.Errorf("expected one change general -> renamed, got %+v", commit.Changes)
		}

		_ = store.View(func(tx *Tx) error {
			doc, err := tx.Get("rooms", "r1")
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if doc.CreateVersion != 1 {
				t.Errorf("expected create version to stay 1, got %d", doc.CreateVersion)
			}
			if doc.UpdateVersion != 2 {
				t.Errorf("expected update version 2, got %d", doc.UpdateVersion)
			}
			return nil
		})
	})

	t.Run("NoopUpdate", func(t *testing.T) {
		commit, err := store.Update(now, func(tx *Tx) error {
			return tx.Delete("rooms", "missing")
		})
		if err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		if commit.Version != 2 {
			t.Errorf("expected version to stay 2, got %d", commit.Version)
		}
		if len(commit.Collections) != 0 {
			t.Errorf("expected nothing touched, got %v", commit.Collections)
		}
	})

	t.Run("ForEachAndDelete", func(t *testing.T) {
		_, err := store.Update(now, func(tx *Tx) error {
			for _, id := range []string{"m1", "m2", "m3"} {
				if err := tx.Put("messages", DBDocument{ID: id, Fields: map[string]any{"roomId": "r1"}}); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			t.Fatalf("Update failed: %v", err)
		}

		commit, err := store.Update(now, func(tx *Tx) error {
			return tx.Delete("messages", "m2")
		})
		if err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if len(commit.Changes) != 1 || commit.Changes[0].ID != "m2" || commit.Changes[0].After != nil || commit.Changes[0].Before["roomId"] != "r1" {
			t.Errorf("expected deleted m2 with its old fields, got %+v", commit.Changes)
		}

		var ids []string
		err = store.View(func(tx *Tx) error {
			return tx.ForEach("messages", func(doc DBDocument) error {
				ids = append(ids, doc.ID)
				return nil
			})
		})
		if err != nil {
			t.Fatalf("ForEach failed: %v", err)
		}
		if len(ids) != 2 || ids[0] != "m1" || ids[1] != "m3" {
			t.Errorf("expected [m1 m3], got %v", ids)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		err := store.View(func(tx *Tx) error {
			_, err := tx.Get("messages", "m2")
			return err
		})
		if !errors.Is(err, models.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ReadOnly", func(t *testing.T) {
		err := store.View(func(tx *Tx) error {
			return tx.Put("rooms", DBDocument{ID: "r2"})
		})
		if err == nil {
			t.Error("expected write in view to fail")
		}
	})

	t.Run("Rollback", func(t *testing.T) {
		_, err := store.Update(now, func(tx *Tx) error {
			if err := tx.Delete("messages", "m1"); err != nil {
				return err
			}
			return errors.New("abort")
		})
		if err == nil {
			t.Fatal("expected error")
		}
		err = store.View(func(tx *Tx) error {
			_, err := tx.Get("messages", "m1")
			return err
		})
		if err != nil {
			t.Errorf("expected m1 to survive rollback, got %v", err)
		}
	})
}
