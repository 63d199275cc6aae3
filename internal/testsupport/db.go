// Package testsupport holds fixtures shared by package tests.
package testsupport

import (
	"context"
	"database/sql"
	"testing"

	"github.com/zime-ai/nucleus/internal/infra/config"
	"github.com/zime-ai/nucleus/internal/infra/sqlite"
)

// JWTSecret is the session signing key used across tests.
const JWTSecret = "test-secret-key-32-chars-min!!!"

// IDPSecret signs identity-provider tokens in tests.
const IDPSecret = "idp-secret-key-32-chars-min!!!!"

// OpenDB opens an in-memory database with all migrations applied.
// The handle is closed when the test ends.
func OpenDB(t testing.TB) *sql.DB {
	t.Helper()
	db, err := sqlite.NewDB(sqlite.MemoryPath)
	if err != nil {
		t.Fatalf("sqlite.NewDB error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := sqlite.MigrateUp(context.Background(), db); err != nil {
		t.Fatalf("MigrateUp error = %v", err)
	}
	return db
}

// Config returns a configuration with secrets set and simulated delays disabled.
func Config() config.Config {
	cfg := config.Default()
	cfg.DBPath = sqlite.MemoryPath
	cfg.Auth.JWTSecret = JWTSecret
	cfg.Auth.IDPSecret = IDPSecret
	cfg.Deal.StageFetchDelay = 0
	cfg.Deal.ConfirmDelay = 0
	return cfg
}
