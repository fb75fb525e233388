// Package testdb provides isolated SurrealDB databases for repository tests.
//
// Each TestDB gets its own namespace with the SurrealQL migrations applied,
// and removes that namespace on cleanup. Tests skip when no SurrealDB
// instance is reachable or CANVAS_SKIP_DB_TESTS is set.
//
//	func TestSomething(t *testing.T) {
//	    tdb := testdb.New(t)
//	    repo := repository.NewUserRepository(tdb.DB)
//	}
package testdb

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/forgo/canvas/internal/database"
)

// TestDB is an isolated database namespace
type TestDB struct {
	DB        database.Database
	Namespace string
	t         *testing.T
}

var (
	migrationOnce sync.Once
	migrations    []string
	migrationErr  error

	counter atomic.Int64
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func testConfig() database.Config {
	return database.Config{
		Host:     envOr("TEST_DB_HOST", "localhost"),
		Port:     envOr("TEST_DB_PORT", "8000"),
		User:     envOr("TEST_DB_USER", "root"),
		Password: envOr("TEST_DB_PASSWORD", "root"),
		Database: "test",
	}
}

// migrationDir finds migrations/ relative to the package under test
func migrationDir() string {
	for _, p := range []string{"migrations", "../migrations", "../../migrations", "../../../migrations"} {
		if st, err := os.Stat(p); err == nil && st.IsDir() {
			return p
		}
	}
	if root := os.Getenv("CANVAS_ROOT"); root != "" {
		return filepath.Join(root, "migrations")
	}
	return ""
}

func loadMigrations() ([]string, error) {
	migrationOnce.Do(func() {
		dir := migrationDir()
		if dir == "" {
			migrationErr = fmt.Errorf("could not find migrations directory")
			return
		}

		entries, err := os.ReadDir(dir)
		if err != nil {
			migrationErr = fmt.Errorf("reading migrations dir: %w", err)
			return
		}

		var files []string
		for _, e := range entries {
			if !e.IsDir() && strings.HasSuffix(e.Name(), ".surql") {
				files = append(files, e.Name())
			}
		}
		sort.Strings(files)

		for _, name := range files {
			content, err := os.ReadFile(filepath.Join(dir, name))
			if err != nil {
				migrationErr = fmt.Errorf("reading %s: %w", name, err)
				return
			}
			migrations = append(migrations, string(content))
		}
	})
	return migrations, migrationErr
}

// New creates a fresh namespace with migrations applied
func New(t *testing.T) *TestDB {
	t.Helper()

	if os.Getenv("CANVAS_SKIP_DB_TESTS") != "" {
		t.Skip("testdb: CANVAS_SKIP_DB_TESTS set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg := testConfig()
	cfg.Namespace = fmt.Sprintf("test_%d_%d", time.Now().UnixNano(), counter.Add(1))

	db := database.NewSurrealDB(cfg)
	if err := db.Connect(ctx); err != nil {
		t.Skipf("testdb: SurrealDB unavailable at %s:%s: %v", cfg.Host, cfg.Port, err)
	}

	migs, err := loadMigrations()
	if err != nil {
		_ = db.Close()
		t.Fatalf("testdb: failed to load migrations: %v", err)
	}
	for i, mig := range migs {
		if err := db.Execute(ctx, mig, nil); err != nil {
			_ = db.Close()
			t.Fatalf("testdb: migration %d failed: %v", i+1, err)
		}
	}

	tdb := &TestDB{DB: db, Namespace: cfg.Namespace, t: t}
	t.Cleanup(tdb.close)
	return tdb
}

func (tdb *TestDB) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = tdb.DB.Execute(ctx, fmt.Sprintf("REMOVE NAMESPACE %s", tdb.Namespace), nil)
	_ = tdb.DB.Close()
}

// Ctx returns a context bounded to the test
func (tdb *TestDB) Ctx() context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	tdb.t.Cleanup(cancel)
	return ctx
}

// MustExec executes a query and fails the test on error
func (tdb *TestDB) MustExec(query string, vars map[string]interface{}) {
	tdb.t.Helper()
	if err := tdb.DB.Execute(tdb.Ctx(), query, vars); err != nil {
		tdb.t.Fatalf("testdb: exec failed: %v\nQuery: %s", err, query)
	}
}
