package sqlite

// The three journal tables share one shape: a caller-visible TEXT id, a
// creation timestamp, and a JSON payload in data. SQLite's implicit rowid
// is the row index; it is monotonic for append-only tables and is exposed
// on every read as the authoritative ordering key.
//
// Participants carry two extra columns that are credentials/ML concerns
// rather than payload: auth_token and embedding. No JSON-path indexes are
// created; search scans are filtered by the query compiler at read time.
const schema = `
CREATE TABLE IF NOT EXISTS participants (
    id TEXT PRIMARY KEY,
    created_at DATETIME NOT NULL,
    data TEXT NOT NULL DEFAULT '{}',
    embedding BLOB,
    auth_token TEXT
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_participants_auth_token
    ON participants(auth_token) WHERE auth_token IS NOT NULL;

CREATE TABLE IF NOT EXISTS actions (
    id TEXT PRIMARY KEY,
    created_at DATETIME NOT NULL,
    data TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_actions_created_at ON actions(created_at);

CREATE TABLE IF NOT EXISTS logs (
    id TEXT PRIMARY KEY,
    created_at DATETIME NOT NULL,
    data TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_logs_created_at ON logs(created_at);
`
