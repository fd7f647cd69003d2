package migrate_test

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/angelmondragon/storefront-backend/pkg/migrate"
)

func TestEmbeddedMigrationsAreValid(t *testing.T) {
	if err := migrate.Validate(migrate.Embedded()); err != nil {
		t.Fatalf("validate migrations: %v", err)
	}
	disk, err := fs.Glob(os.DirFS("migrations"), "*.sql")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	shipped, err := fs.Glob(migrate.Embedded(), "*.sql")
	if err != nil {
		t.Fatalf("glob embedded: %v", err)
	}
	if len(shipped) == 0 || len(shipped) != len(disk) {
		t.Fatalf("embedded %d migrations, disk has %d", len(shipped), len(disk))
	}
}

func TestValidateRejectsBrokenSets(t *testing.T) {
	ok := "-- +goose Up\nSELECT 1;\n-- +goose Down\nSELECT 1;\n"
	cases := map[string]fstest.MapFS{
		"bad name": {"create_orders.sql": {Data: []byte(ok)}},
		"duplicate version": {
			"20260101000000_a.sql": {Data: []byte(ok)},
			"20260101000000_b.sql": {Data: []byte(ok)},
		},
		"missing down": {"20260101000000_a.sql": {Data: []byte("-- +goose Up\nSELECT 1;\n")}},
		"unbalanced":   {"20260101000000_a.sql": {Data: []byte(ok + "-- +goose StatementBegin\n")}},
	}
	for name, fsys := range cases {
		if err := migrate.Validate(fsys); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	if err := migrate.Validate(fstest.MapFS{"README.md": {Data: []byte("notes")}}); err != nil {
		t.Fatalf("non-sql files should be ignored: %v", err)
	}
}

func TestOrdersMigrationContainsSchemas(t *testing.T) {
	content := readMigration(t, "*_create_orders_tables.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS orders",
		"CREATE TABLE IF NOT EXISTS order_items",
		"CONSTRAINT ux_orders_order_code UNIQUE (order_code)",
		"payouts_dispatched_at timestamptz",
		"CREATE INDEX IF NOT EXISTS idx_orders_payment_intent_id",
		"quantity integer NOT NULL CHECK (quantity > 0)",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestMerchantMigrationKeepsProviderAccountUnique(t *testing.T) {
	content := readMigration(t, "*_create_merchants_tables.sql")

	for _, sub := range []string{
		"CREATE TABLE IF NOT EXISTS merchant_payment_accounts",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_merchant_payment_accounts_provider",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_merchants_slug",
	} {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestCreateWritesValidSkeleton(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.Create(dir, "Add Refund Reason!")
	if err != nil {
		t.Fatalf("create migration: %v", err)
	}
	if !strings.HasSuffix(path, "_add_refund_reason.sql") {
		t.Fatalf("unexpected migration path %q", path)
	}
	if err := migrate.Validate(migrate.Source(dir)); err != nil {
		t.Fatalf("generated migration should validate: %v", err)
	}
	if _, err := migrate.Create(dir, "!!!"); err == nil {
		t.Fatal("expected error for a name with no usable characters")
	}
}

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", pattern))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no migration file matching %s", pattern)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}
