package testutil

import (
	"context"
	"database/sql"
	"os"
	"strconv"
	"testing"

	"github.com/xxxsen/docqa/internal/config"
	"github.com/xxxsen/docqa/internal/db"
)

// OpenTestDB connects to the postgres named by TEST_DB_HOST and applies the
// migrations. Tests are skipped when the variable is unset.
func OpenTestDB(t *testing.T) (*sql.DB, func()) {
	t.Helper()
	host := os.Getenv("TEST_DB_HOST")
	if host == "" {
		t.Skip("TEST_DB_HOST not set, skipping postgres test")
	}
	port := 5432
	if v, err := strconv.Atoi(os.Getenv("TEST_DB_PORT")); err == nil && v > 0 {
		port = v
	}
	conn, err := db.Open(context.Background(), config.DatabaseConfig{
		Host:     host,
		Port:     port,
		User:     envOr("TEST_DB_USER", "docqa"),
		Password: envOr("TEST_DB_PASSWORD", "docqa_pass"),
		DBName:   envOr("TEST_DB_NAME", "docqa_test"),
		SSLMode:  "disable",
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.ApplyMigrations(context.Background(), conn); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	return conn, func() {
		_ = conn.Close()
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
