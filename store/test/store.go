package test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hrygo/chronoplan/internal/profile"
	"github.com/hrygo/chronoplan/store"
	"github.com/hrygo/chronoplan/store/db"
)

// NewTestingStore opens a migrated store for t. SQLite in a temp directory is
// used unless DRIVER=postgres, which requires POSTGRES_TEST_DSN.
func NewTestingStore(ctx context.Context, t *testing.T) *store.Store {
	t.Helper()
	p := getTestingProfile(t)
	driver, err := db.NewDBDriver(p)
	if err != nil {
		t.Fatalf("failed to create db driver: %v", err)
	}

	ts := store.New(driver, p)
	if err := ts.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate db: %v", err)
	}
	t.Cleanup(func() {
		if err := ts.Close(); err != nil {
			t.Logf("failed to close store: %v", err)
		}
	})
	return ts
}

func getTestingProfile(t *testing.T) *profile.Profile {
	p := &profile.Profile{
		Mode:     "dev",
		Driver:   getDriverFromEnv(),
		Timezone: "UTC",
		Version:  "test",
	}
	switch p.Driver {
	case "postgres":
		p.DSN = os.Getenv("POSTGRES_TEST_DSN")
		if p.DSN == "" {
			t.Skip("POSTGRES_TEST_DSN is not set")
		}
	default:
		p.Data = t.TempDir()
		p.DSN = filepath.Join(p.Data, "chronoplan_test.db")
	}
	return p
}

func getDriverFromEnv() string {
	if driver := os.Getenv("DRIVER"); driver != "" {
		return driver
	}
	return "sqlite"
}
