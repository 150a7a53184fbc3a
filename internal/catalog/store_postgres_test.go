package catalog_test

import (
	"testing"

	"github.com/p-n-ai/pai-learn/internal/catalog"
	"github.com/p-n-ai/pai-learn/internal/platform/database/databasetest"
)

func TestNewPostgresStore_NilPool(t *testing.T) {
	_, err := catalog.NewPostgresStore(nil)
	if err == nil {
		t.Fatal("NewPostgresStore(nil) expected error")
	}
}

func TestPostgresStore(t *testing.T) {
	db := databasetest.New(t)
	runStoreTests(t, func(t *testing.T) catalog.Store {
		databasetest.Reset(t, db)
		store, err := catalog.NewPostgresStore(db.Pool)
		if err != nil {
			t.Fatalf("NewPostgresStore() error = %v", err)
		}
		return store
	})
}

func TestPostgresStore_SequenceFollowsExplicitIDs(t *testing.T) {
	db := databasetest.New(t)
	store, err := catalog.NewPostgresStore(db.Pool)
	if err != nil {
		t.Fatalf("NewPostgresStore() error = %v", err)
	}

	mustCourse(t, store, catalog.Course{ID: 40, Name: "Seeded"})
	fresh := mustCourse(t, store, catalog.Course{Name: "Fresh"})
	if fresh.ID <= 40 {
		t.Errorf("fresh course ID = %d, want > 40", fresh.ID)
	}
}
