package store

// Schema is the DDL for the followmail database.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
    google_id     TEXT PRIMARY KEY,
    email         TEXT NOT NULL,
    refresh_token TEXT NOT NULL DEFAULT '',
    created_at    TEXT NOT NULL,
    updated_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS followed (
    google_id   TEXT NOT NULL,
    role        TEXT NOT NULL CHECK (role IN ('from', 'to')),
    address     TEXT NOT NULL,
    position    INTEGER NOT NULL,
    PRIMARY KEY (google_id, role, address),
    FOREIGN KEY (google_id) REFERENCES users(google_id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_followed_order ON followed(google_id, role, position);
`
