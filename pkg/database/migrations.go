package database

import (
	"context"
	"fmt"

	"entgo.io/ent/dialect/sql"
)

// CreateGINIndexes creates full-text search GIN indexes for PostgreSQL.
// These indexes enable efficient full-text search over incident root-cause
// text, used by the chat /slash command's "search similar incidents" path.
func CreateGINIndexes(ctx context.Context, driver *sql.Driver) error {
	db := driver.DB()

	_, err := db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_incidents_root_cause_gin
		ON incidents USING gin(to_tsvector('english', COALESCE(root_cause, '')))`)
	if err != nil {
		return fmt.Errorf("failed to create root_cause GIN index: %w", err)
	}

	return nil
}

// CreatePartialUniqueIndexes (re)creates the partial unique index backing
// "at most one non-terminal incident per (service, fingerprint)". ent's own
// schema annotation (ent/schema/incident.go's IndexWhere) already emits this
// during Schema.Create; this is a defensive re-assertion for test setups
// that run auto-migration against a schema created out of band, the same
// belt-and-suspenders role CreateGINIndexes plays for the full-text index.
func CreatePartialUniqueIndexes(ctx context.Context, driver *sql.Driver) error {
	db := driver.DB()

	_, err := db.ExecContext(ctx,
		`CREATE UNIQUE INDEX IF NOT EXISTS incident_service_fingerprint
		ON incidents (service, fingerprint)
		WHERE status NOT IN ('manual_resolved', 'auto_remediated', 'ignored')`)
	if err != nil {
		return fmt.Errorf("failed to create partial unique incident index: %w", err)
	}

	return nil
}
