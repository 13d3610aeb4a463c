package migrate_test

import (
	"context"
	"testing"

	"movetrack/internal/db"
	"movetrack/internal/migrate"
)

func TestMigrateIsIdempotent(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()
	ctx := context.Background()
	if v, err := migrate.CurrentVersion(ctx, conn); err != nil || v != 0 {
		t.Fatalf("fresh db version = %d, %v", v, err)
	}
	for i := 0; i < 2; i++ {
		if err := migrate.Migrate(conn); err != nil {
			t.Fatalf("migrate run %d: %v", i, err)
		}
	}
	latest, err := migrate.Latest()
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	v, err := migrate.CurrentVersion(ctx, conn)
	if err != nil || v != latest {
		t.Fatalf("version = %d (%v), want %d", v, err, latest)
	}
	for _, table := range []string{"movements", "team_responses", "response_history", "users", "user_teams", "events", "reminder_deliveries", "reminder_retries", "api_keys"} {
		var n int
		if err := conn.QueryRow(`SELECT count(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&n); err != nil || n != 1 {
			t.Fatalf("table %s missing (%v)", table, err)
		}
	}
}
