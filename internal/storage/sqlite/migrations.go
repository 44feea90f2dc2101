package sqlite

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// Money columns are TEXT so decimal values round-trip without float loss.
// applied_sales is a JSON array of sale ids.
const schema = `
CREATE TABLE IF NOT EXISTS sales (
    id                TEXT PRIMARY KEY,
    article           TEXT NOT NULL,
    comment           TEXT NOT NULL DEFAULT '',
    payment_method    TEXT NOT NULL,
    pick_up           INTEGER NOT NULL DEFAULT 0,
    price             TEXT NOT NULL,
    artist_id         TEXT NOT NULL,
    volunteer_id      TEXT NOT NULL,
    completed_payment INTEGER NOT NULL DEFAULT 0,
    date              TEXT NOT NULL,
    artist_settled    INTEGER NOT NULL DEFAULT 0,
    volunteer_settled INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_sales_unsettled ON sales(artist_settled, volunteer_settled);

CREATE TABLE IF NOT EXISTS beneficiaries (
    kind          TEXT NOT NULL,
    id            TEXT NOT NULL,
    name          TEXT NOT NULL,
    email         TEXT NOT NULL,
    category      TEXT NOT NULL DEFAULT '',
    item_sold     INTEGER NOT NULL DEFAULT 0,
    total_revenue TEXT NOT NULL DEFAULT '0',
    owed_amount   TEXT NOT NULL DEFAULT '0',
    version       INTEGER NOT NULL DEFAULT 1,
    last_sale_id  TEXT NOT NULL DEFAULT '',
    applied_sales TEXT NOT NULL DEFAULT '[]',
    PRIMARY KEY (kind, id)
);
`

// runMigrations executes the schema setup.
func runMigrations(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, schema)
	return err
}
