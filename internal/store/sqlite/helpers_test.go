package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
)

// openTestDB returns a migrated in-memory database unique to the test.
// The shared-cache URI keeps it alive across pool reconnects.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:test_%s?mode=memory&cache=shared&%s", name, pragmas)

	db, err := open(context.Background(), dsn)
	if err != nil {
		t.Fatalf("openTestDB: %v", err)
	}
	return db
}

// newTestStore returns a Store over openTestDB, closed when the test finishes.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	s := NewWithDB(openTestDB(t))
	t.Cleanup(func() { _ = s.Close() })
	return s
}
