// Package databasetest starts a disposable PostgreSQL container for integration tests.
package databasetest

import (
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/p-n-ai/pai-learn/internal/platform/config"
	"github.com/p-n-ai/pai-learn/internal/platform/database"
)

const image = "postgres:16-alpine"

// New returns a migrated database backed by a fresh container.
// The test is skipped in short mode or when no container runtime is available.
func New(t *testing.T) *database.DB {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := t.Context()
	ctr, err := postgres.Run(ctx, image,
		postgres.WithDatabase("learn"),
		postgres.WithUsername("learn"),
		postgres.WithPassword("learn"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("starting postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(ctr); err != nil {
			t.Logf("terminating postgres container: %v", err)
		}
	})

	url, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("postgres connection string: %v", err)
	}

	var db *database.DB
	deadline := time.Now().Add(30 * time.Second)
	for {
		db, err = database.New(ctx, config.DatabaseConfig{URL: url, MaxConns: 5, MinConns: 1})
		if err == nil || time.Now().After(deadline) {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("connecting to postgres: %v", err)
	}
	t.Cleanup(db.Close)

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("migrating: %v", err)
	}
	return db
}

// Reset empties every table and restarts the ID sequences, so one container
// can serve several subtests.
func Reset(t *testing.T, db *database.DB) {
	t.Helper()

	_, err := db.Pool.Exec(t.Context(),
		`TRUNCATE courses, lessons, questions, answers,
		   course_enrollments, lesson_enrollments, user_answers, enrollment_events
		 RESTART IDENTITY CASCADE`)
	if err != nil {
		t.Fatalf("resetting database: %v", err)
	}
}
