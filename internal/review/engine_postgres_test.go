package review_test

import (
	"testing"

	"github.com/p-n-ai/pai-learn/internal/catalog"
	"github.com/p-n-ai/pai-learn/internal/enrollment"
	"github.com/p-n-ai/pai-learn/internal/platform/database/databasetest"
)

func TestEngine_Postgres(t *testing.T) {
	db := databasetest.New(t)
	runEngineTests(t, func(t *testing.T) engineEnv {
		databasetest.Reset(t, db)
		store, err := catalog.NewPostgresStore(db.Pool)
		if err != nil {
			t.Fatalf("NewPostgresStore() error = %v", err)
		}
		ledger, err := enrollment.NewPostgresLedger(db.Pool)
		if err != nil {
			t.Fatalf("NewPostgresLedger() error = %v", err)
		}
		return engineEnv{catalog: store, ledger: ledger}
	})
}
