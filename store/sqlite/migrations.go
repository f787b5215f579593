package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the Courier store (SQLite).
var Migrations = migrate.NewGroup("courier")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_courier_channels",
			Version: "20240101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS courier_channels (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    name            TEXT NOT NULL DEFAULT '',
    creator         TEXT NOT NULL DEFAULT '',
    is_private      INTEGER NOT NULL DEFAULT 0,
    price_cents     INTEGER NOT NULL DEFAULT 0,
    price_currency  TEXT NOT NULL DEFAULT '',
    members         TEXT NOT NULL DEFAULT '[]',
    message_seq     INTEGER NOT NULL DEFAULT 1,
    message_count   INTEGER NOT NULL DEFAULT 0,
    last_message_at TEXT,
    created_at      TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at      TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_courier_channels_creator ON courier_channels (creator);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS courier_channels`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_courier_messages",
			Version: "20240101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS courier_messages (
    channel_id   INTEGER NOT NULL,
    id           INTEGER NOT NULL,
    sender       TEXT NOT NULL DEFAULT '',
    content      TEXT NOT NULL DEFAULT '',
    timestamp    TEXT NOT NULL DEFAULT (datetime('now')),
    tip_cents    INTEGER NOT NULL DEFAULT 0,
    tip_currency TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (channel_id, id)
);

CREATE INDEX IF NOT EXISTS idx_courier_messages_sender ON courier_messages (sender);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS courier_messages`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_courier_tip_receipts",
			Version: "20240101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS courier_tip_receipts (
    id           TEXT PRIMARY KEY,
    channel_id   INTEGER NOT NULL DEFAULT 0,
    message_id   INTEGER NOT NULL DEFAULT 0,
    from_account TEXT NOT NULL DEFAULT '',
    to_account   TEXT NOT NULL DEFAULT '',
    amount_cents INTEGER NOT NULL DEFAULT 0,
    currency     TEXT NOT NULL DEFAULT '',
    timestamp    TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_courier_receipts_channel ON courier_tip_receipts (channel_id, message_id);
CREATE INDEX IF NOT EXISTS idx_courier_receipts_to ON courier_tip_receipts (to_account);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS courier_tip_receipts`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_courier_balances",
			Version: "20240101000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS courier_balances (
    account      TEXT PRIMARY KEY,
    amount_cents INTEGER NOT NULL DEFAULT 0,
    currency     TEXT NOT NULL DEFAULT '',
    created_at   TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at   TEXT NOT NULL DEFAULT (datetime('now'))
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS courier_balances`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_courier_payouts",
			Version: "20240101000005",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS courier_payouts (
    id           TEXT PRIMARY KEY,
    account      TEXT NOT NULL DEFAULT '',
    amount_cents INTEGER NOT NULL DEFAULT 0,
    currency     TEXT NOT NULL DEFAULT '',
    status       TEXT NOT NULL DEFAULT 'pending',
    attempts     INTEGER NOT NULL DEFAULT 0,
    paid_at      TEXT,
    failed_at    TEXT,
    created_at   TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at   TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_courier_payouts_account ON courier_payouts (account);
CREATE INDEX IF NOT EXISTS idx_courier_payouts_status ON courier_payouts (status);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS courier_payouts`)
				return err
			},
		},
	)
}
