package migrate_test

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/angelmondragon/auctionhouse-backend/pkg/migrate"
)

func TestMigrationsDirIsValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestMigrationsContainConstraints(t *testing.T) {
	cases := map[string][]string{
		"*_create_listings.sql": {
			"CREATE TABLE IF NOT EXISTS listings",
			"version bigint NOT NULL DEFAULT 0",
			"UNIQUE (listing_id, user_id)",
			"DROP TABLE IF EXISTS listings",
		},
		"*_create_bids_and_offers.sql": {
			"CREATE TABLE IF NOT EXISTS bids",
			"CREATE UNIQUE INDEX IF NOT EXISTS offers_open_per_bidder",
			"WHERE status IN ('pending', 'active')",
		},
		"*_create_escrow_transactions.sql": {
			"CREATE UNIQUE INDEX IF NOT EXISTS escrow_open_per_listing",
			"WHERE status NOT IN ('completed', 'disputed', 'cancelled')",
			"CHECK (buyer_id <> seller_id)",
		},
		"*_create_notifications.sql": {
			"UNIQUE (event_id, recipient_user_id, type)",
			"DROP TABLE IF EXISTS notifications",
		},
		"*_create_scheduled_tasks_and_payment_ledger.sql": {
			"dedupe_key text NOT NULL UNIQUE",
			"CREATE TABLE IF NOT EXISTS payment_ledger_events",
		},
		"*_create_outbox.sql": {
			"CREATE TABLE IF NOT EXISTS outbox_events",
			"CREATE TABLE IF NOT EXISTS outbox_dlq",
		},
	}

	for pattern, checks := range cases {
		matches, err := filepath.Glob(filepath.Join("migrations", pattern))
		if err != nil {
			t.Fatalf("glob migrations: %v", err)
		}
		if len(matches) != 1 {
			t.Fatalf("expected one migration for %s, got %d", pattern, len(matches))
		}
		data, err := os.ReadFile(matches[0])
		if err != nil {
			t.Fatalf("read migration file: %v", err)
		}
		content := string(data)
		for _, sub := range checks {
			if !strings.Contains(content, sub) {
				t.Errorf("%s: missing expected statement %q", matches[0], sub)
			}
		}
	}
}

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Listing Tags!")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !strings.HasSuffix(path, "_add_listing_tags.sql") {
		t.Fatalf("unexpected filename %s", path)
	}
	if err := migrate.ValidateDir(dir); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestEmbeddedMigrationsMatchDisk(t *testing.T) {
	if err := migrate.ValidateFS(migrate.Migrations()); err != nil {
		t.Fatalf("validate embedded: %v", err)
	}
	embedded, err := fs.Glob(migrate.Migrations(), "*.sql")
	if err != nil {
		t.Fatalf("glob embedded: %v", err)
	}
	onDisk, err := filepath.Glob(filepath.Join("migrations", "*.sql"))
	if err != nil {
		t.Fatalf("glob disk: %v", err)
	}
	if len(embedded) == 0 || len(embedded) != len(onDisk) {
		t.Fatalf("expected embedded and disk migrations to match, got %d and %d", len(embedded), len(onDisk))
	}
}

func TestValidateFSRejectsBadFiles(t *testing.T) {
	cases := map[string]fstest.MapFS{
		"bad name": {"add_bids.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")}},
		"duplicate version": {
			"20260105090000_a.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")},
			"20260105090000_b.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")},
		},
		"missing down": {"20260105090000_a.sql": {Data: []byte("-- +goose Up\n")}},
	}
	for name, fsys := range cases {
		t.Run(name, func(t *testing.T) {
			if err := migrate.ValidateFS(fsys); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestSourceDefaultsToEmbedded(t *testing.T) {
	if _, err := fs.Stat(migrate.Source(""), "20260105090000_create_enums.sql"); err != nil {
		t.Fatalf("expected embedded enums migration: %v", err)
	}
	dir := t.TempDir()
	if _, err := migrate.CreateSQLMigration(dir, "extra"); err != nil {
		t.Fatalf("create: %v", err)
	}
	matches, err := fs.Glob(migrate.Source(dir), "*_extra.sql")
	if err != nil || len(matches) != 1 {
		t.Fatalf("expected custom dir to be used, got %v (%v)", matches, err)
	}
}
