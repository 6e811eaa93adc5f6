// Package storagetest opens migrated in-memory sqlite databases for tests.
package storagetest

import (
	"database/sql"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/christopherjohns/socialhub/internal/config"
	"github.com/christopherjohns/socialhub/internal/storage"
)

var seq atomic.Int64

// Open returns a private in-memory database with the schema applied. It is
// closed when the test finishes.
func Open(t testing.TB) *sql.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, seq.Add(1))
	db, err := storage.Open(config.DatabaseConfig{Driver: "sqlite3", DSN: dsn})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}
	return db
}

// CreateUser inserts a user row directly and returns its id.
func CreateUser(t testing.TB, db *sql.DB, username string) int64 {
	t.Helper()
	res, err := db.Exec(
		`INSERT INTO users (username, email, password_hash, display_name, created_at) VALUES (?, ?, ?, ?, ?)`,
		username, username+"@example.com", "x", "", time.Now().UTC(),
	)
	if err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("user id: %v", err)
	}
	return id
}
