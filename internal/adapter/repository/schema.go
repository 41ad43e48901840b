package repository

// Published dates are kept as RFC 3339 text in SQLite, which has no native time type.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS advisories (
	advisory_id             TEXT PRIMARY KEY,
	title                   TEXT NOT NULL,
	url                     TEXT NOT NULL,
	published               TEXT,
	structured_artifact_url TEXT,
	document_artifact_url   TEXT
);

CREATE TABLE IF NOT EXISTS iocs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	ioc_type    TEXT NOT NULL,
	value       TEXT NOT NULL,
	advisory_id TEXT NOT NULL REFERENCES advisories(advisory_id),
	source      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_iocs_value ON iocs(value);
CREATE INDEX IF NOT EXISTS idx_iocs_advisory ON iocs(advisory_id);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS advisories (
	advisory_id             TEXT PRIMARY KEY,
	title                   TEXT NOT NULL,
	url                     TEXT NOT NULL,
	published               TIMESTAMPTZ,
	structured_artifact_url TEXT,
	document_artifact_url   TEXT
);

CREATE TABLE IF NOT EXISTS iocs (
	id          BIGSERIAL PRIMARY KEY,
	ioc_type    TEXT NOT NULL,
	value       TEXT NOT NULL,
	advisory_id TEXT NOT NULL REFERENCES advisories(advisory_id),
	source      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_iocs_value ON iocs(value);
CREATE INDEX IF NOT EXISTS idx_iocs_advisory ON iocs(advisory_id);
`
