package database

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func TestMigrateNewDB(t *testing.T) {
	db := openTestDB(t)

	version, err := getSchemaVersion(db.conn)
	if err != nil {
		t.Fatalf("getSchemaVersion: %v", err)
	}
	if version != latestVersion() {
		t.Errorf("expected version %d, got %d", latestVersion(), version)
	}
}

func TestMigrateSeedsBadgeCatalog(t *testing.T) {
	db := openTestDB(t)

	badges, err := db.GetAllBadges(context.Background())
	if err != nil {
		t.Fatalf("GetAllBadges: %v", err)
	}
	if len(badges) != 6 {
		t.Fatalf("expected 6 catalog badges, got %d", len(badges))
	}

	for _, name := range []string{"First Vote", "Active Voter", "Vote Champion", "Vote Legend", "Daily Reader", "Week Warrior"} {
		b, err := db.GetBadgeByName(context.Background(), name)
		if err != nil {
			t.Fatalf("GetBadgeByName(%q): %v", name, err)
		}
		if b == nil {
			t.Errorf("expected badge %q in catalog", name)
		}
	}
}

func TestMigrateIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "idem.db")

	db1, err := Open(dbPath)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	db1.Close()

	db2, err := Open(dbPath)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	defer db2.Close()

	version, err := getSchemaVersion(db2.conn)
	if err != nil {
		t.Fatalf("getSchemaVersion: %v", err)
	}
	if version != latestVersion() {
		t.Errorf("expected version %d, got %d", latestVersion(), version)
	}

	badges, _ := db2.GetAllBadges(context.Background())
	if len(badges) != 6 {
		t.Errorf("expected catalog not to be duplicated, got %d badges", len(badges))
	}
}

func TestGetSchemaVersionNewDB(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "empty.db")
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()

	version, err := getSchemaVersion(conn)
	if err != nil {
		t.Fatalf("getSchemaVersion: %v", err)
	}
	if version != 0 {
		t.Errorf("expected version 0 on new db, got %d", version)
	}
}
