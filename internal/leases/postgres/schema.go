package postgres

const schemaSQL = `
CREATE TABLE IF NOT EXISTS account_leases (
	account TEXT PRIMARY KEY,
	holder TEXT NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL,
	acquired_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS account_leases_expires_at_idx ON account_leases (expires_at);
`
