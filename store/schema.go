package store

// Schema contains the complete DDL for the formpilot tables.
const Schema = `
-- Profile: semantic key -> value.
CREATE TABLE IF NOT EXISTS profile (
    key        TEXT PRIMARY KEY,
    value      TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);

-- Macros: named, non-empty event sequences (JSON array).
CREATE TABLE IF NOT EXISTS macros (
    name        TEXT PRIMARY KEY,
    events      TEXT NOT NULL,
    event_count INTEGER NOT NULL CHECK (event_count > 0),
    created_at  INTEGER NOT NULL,
    updated_at  INTEGER NOT NULL
);

-- Override mappings learned by the trainer: (site, field identity) -> key.
CREATE TABLE IF NOT EXISTS custom_mappings (
    context     TEXT NOT NULL,
    identity    TEXT NOT NULL,
    profile_key TEXT NOT NULL,
    updated_at  INTEGER NOT NULL,
    PRIMARY KEY (context, identity)
);

-- Settings: single JSON row.
CREATE TABLE IF NOT EXISTS settings (
    id         INTEGER PRIMARY KEY CHECK (id = 1),
    data       TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);

-- Replay history, for spotting selectors that keep failing.
CREATE TABLE IF NOT EXISTS replay_runs (
    id         TEXT PRIMARY KEY,
    macro      TEXT NOT NULL,
    executed   INTEGER NOT NULL,
    skipped    INTEGER NOT NULL,
    failed     INTEGER NOT NULL,
    cancelled  INTEGER NOT NULL DEFAULT 0,
    report     TEXT NOT NULL,
    started_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_replay_runs_macro ON replay_runs(macro, started_at);
`
