package postgres

import (
	"context"

	"careAlert/pkg/e"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS incidents (
	id                    uuid PRIMARY KEY,
	location              text        NOT NULL,
	occurred_at           timestamptz NOT NULL,
	reporter              text        NOT NULL,
	detail                text        NOT NULL DEFAULT '',
	state                 text        NOT NULL CHECK (state IN ('Pending', 'Attended')),
	is_fall               boolean     NOT NULL DEFAULT false,
	confirmed_by          text,
	intervention_occurred boolean     NOT NULL DEFAULT false,
	received_at           timestamptz NOT NULL,
	attended_at           timestamptz,
	attended_by           text,
	injury_level          smallint CHECK (injury_level BETWEEN 1 AND 3),
	created_at            timestamptz NOT NULL
);

CREATE INDEX IF NOT EXISTS incidents_created_at_idx ON incidents (created_at DESC);
CREATE INDEX IF NOT EXISTS incidents_occurred_at_idx ON incidents (occurred_at DESC);

CREATE TABLE IF NOT EXISTS staff (
	code         text PRIMARY KEY,
	name         text        NOT NULL,
	schedule     text        NOT NULL,
	status       text        NOT NULL CHECK (status IN ('Active', 'Inactive')),
	sub_endpoint text,
	sub_p256dh   text,
	sub_auth     text,
	created_at   timestamptz NOT NULL DEFAULT now(),
	updated_at   timestamptz NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS staff_sub_endpoint_idx ON staff (sub_endpoint) WHERE sub_endpoint IS NOT NULL;

CREATE TABLE IF NOT EXISTS push_subscriptions (
	endpoint   text PRIMARY KEY,
	p256dh     text        NOT NULL,
	auth       text        NOT NULL,
	staff_code text,
	updated_at timestamptz NOT NULL DEFAULT now()
);
`

// EnsureSchema creates the tables when they do not exist yet.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	const op = "postgres.EnsureSchema"

	if _, err := pool.Exec(ctx, schema); err != nil {
		return e.WrapError(ctx, op, err)
	}
	return nil
}
