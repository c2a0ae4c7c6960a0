package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is the full schema for the service. Submission rows are append-only,
// so no migration history table is kept; the statements are idempotent.
const schema = `
CREATE TABLE IF NOT EXISTS submissions (
	id             BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	intent_kind    TEXT NOT NULL,
	source_account TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL,
	result_kind    TEXT NOT NULL DEFAULT '',
	tx_hash        TEXT NOT NULL DEFAULT '',
	summary        TEXT NOT NULL DEFAULT '',
	raw_details    TEXT NOT NULL DEFAULT '',
	error          TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_submissions_source_account
	ON submissions (source_account, created_at DESC);

CREATE INDEX IF NOT EXISTS idx_submissions_tx_hash
	ON submissions (tx_hash) WHERE tx_hash <> '';
`

// Migrate applies the schema. Safe to call on every startup.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
