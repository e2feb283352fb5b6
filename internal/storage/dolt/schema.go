package dolt

// The idx column is the authoritative ordering key, mirroring rowid in the
// sqlite backend. AUTO_INCREMENT only ever moves forward, so ascending idx
// is insertion order. MySQL requires the AUTO_INCREMENT column to head an
// index, hence the UNIQUE KEY on idx.
//
// A UNIQUE KEY on auth_token admits any number of NULLs, matching the
// sqlite partial index.
const schema = `
CREATE TABLE IF NOT EXISTS participants (
    id VARCHAR(255) NOT NULL,
    idx BIGINT NOT NULL AUTO_INCREMENT,
    created_at DATETIME(6) NOT NULL,
    data JSON NOT NULL,
    embedding LONGBLOB,
    auth_token VARCHAR(512),
    PRIMARY KEY (id),
    UNIQUE KEY uq_participants_idx (idx),
    UNIQUE KEY uq_participants_auth_token (auth_token)
);

CREATE TABLE IF NOT EXISTS actions (
    id VARCHAR(255) NOT NULL,
    idx BIGINT NOT NULL AUTO_INCREMENT,
    created_at DATETIME(6) NOT NULL,
    data JSON NOT NULL,
    PRIMARY KEY (id),
    UNIQUE KEY uq_actions_idx (idx),
    KEY idx_actions_created_at (created_at)
);

CREATE TABLE IF NOT EXISTS logs (
    id VARCHAR(255) NOT NULL,
    idx BIGINT NOT NULL AUTO_INCREMENT,
    created_at DATETIME(6) NOT NULL,
    data JSON NOT NULL,
    PRIMARY KEY (id),
    UNIQUE KEY uq_logs_idx (idx),
    KEY idx_logs_created_at (created_at)
);
`
