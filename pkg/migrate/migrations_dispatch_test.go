package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", pattern))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no migration file matching %q", pattern)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func TestDispatchJobsMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "*_create_dispatch_jobs.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS dispatch_jobs",
		"ux_dispatch_jobs_idempotency_key",
		"idx_dispatch_jobs_status_scheduled",
		"idx_dispatch_jobs_pool_group",
		"REFERENCES events(id)",
		"REFERENCES subscriptions(id)",
		"CREATE TABLE IF NOT EXISTS dispatch_job_projection_feed",
		"DROP TABLE IF EXISTS dispatch_jobs",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestEventsMigrationDeduplicationIsPartialUnique(t *testing.T) {
	content := readMigration(t, "*_create_events.sql")

	checks := []string{
		"ux_events_deduplication_id",
		"WHERE deduplication_id IS NOT NULL",
		"CREATE TABLE IF NOT EXISTS event_projection_feed",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestSubscriptionsMigrationIndexesBindings(t *testing.T) {
	content := readMigration(t, "*_create_subscriptions.sql")
	if !strings.Contains(content, "USING GIN (event_type_bindings") {
		t.Error("event_type_bindings should carry a GIN index for containment queries")
	}
}
