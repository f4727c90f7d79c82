package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the credit store (SQLite).
var Migrations = migrate.NewGroup("credits")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_credits_state",
			Version: "20260101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS credits_state (
    id           INTEGER PRIMARY KEY CHECK (id = 1),
    api_base     TEXT NOT NULL DEFAULT '',
    device_id    TEXT NOT NULL DEFAULT '',
    subject_id   TEXT NOT NULL DEFAULT '',
    access_token TEXT NOT NULL DEFAULT '',
    updated_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

INSERT OR IGNORE INTO credits_state (id) VALUES (1);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS credits_state`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_credits_balance",
			Version: "20260101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS credits_balance (
    id             INTEGER PRIMARY KEY CHECK (id = 1),
    free_remaining INTEGER NOT NULL CHECK (free_remaining >= 0),
    paid_credits   INTEGER NOT NULL CHECK (paid_credits >= 0),
    updated_at     TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS credits_balance`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_credits_pending",
			Version: "20260101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS credits_pending (
    seq        INTEGER PRIMARY KEY AUTOINCREMENT,
    id         TEXT NOT NULL UNIQUE,
    action     TEXT NOT NULL CHECK (action != ''),
    cost       INTEGER NOT NULL CHECK (cost > 0),
    created_at TIMESTAMP NOT NULL
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS credits_pending`)
				return err
			},
		},
	)
}
