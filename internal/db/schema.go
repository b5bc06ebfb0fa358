package db

const schema = `
CREATE TABLE IF NOT EXISTS tracked_issues (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    number INTEGER NOT NULL DEFAULT 0,
    repository TEXT NOT NULL DEFAULT '',
    url TEXT NOT NULL DEFAULT '',
    tracked_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS work_sessions (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    issue_id TEXT NOT NULL,
    issue_title TEXT NOT NULL DEFAULT '',
    issue_number INTEGER NOT NULL DEFAULT 0,
    issue_repository TEXT NOT NULL DEFAULT '',
    issue_url TEXT NOT NULL DEFAULT '',
    start_time INTEGER NOT NULL,
    end_time INTEGER,
    duration INTEGER NOT NULL DEFAULT 0,
    is_active INTEGER NOT NULL DEFAULT 1,
    is_paused INTEGER NOT NULL DEFAULT 0,
    notes TEXT NOT NULL DEFAULT '',
    participants TEXT NOT NULL DEFAULT '[]',
    updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_work_sessions_user ON work_sessions(user_id);
CREATE INDEX IF NOT EXISTS idx_work_sessions_user_active ON work_sessions(user_id, is_active);
CREATE INDEX IF NOT EXISTS idx_work_sessions_issue ON work_sessions(issue_id);

CREATE TABLE IF NOT EXISTS timer_projection (
    user_id TEXT PRIMARY KEY,
    issue_id TEXT NOT NULL DEFAULT '',
    running INTEGER NOT NULL DEFAULT 0,
    updated_at INTEGER NOT NULL
);
`
