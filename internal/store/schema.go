package store

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
    id                    TEXT PRIMARY KEY,
    title                 TEXT,
    status                TEXT,
    created_at            TEXT,
    updated_at            TEXT,
    due_date              TEXT,
    priority              TEXT,
    project_id            TEXT,
    project_name          TEXT,
    time_estimate_minutes INTEGER,
    time_estimate_source  TEXT,
    time_actual_minutes   INTEGER,
    calendar_event_id     TEXT,
    scheduled_start       TEXT,
    scheduled_end         TEXT,
    context               TEXT,
    completed_at          TEXT,
    file_path             TEXT
);

CREATE TABLE IF NOT EXISTS task_tags (
    task_id TEXT NOT NULL,
    tag     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS task_people (
    task_id   TEXT NOT NULL,
    person_id TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS projects (
    id         TEXT PRIMARY KEY,
    title      TEXT,
    status     TEXT,
    created_at TEXT,
    updated_at TEXT,
    deadline   TEXT,
    file_path  TEXT
);

CREATE TABLE IF NOT EXISTS people (
    id                     TEXT PRIMARY KEY,
    name                   TEXT,
    role                   TEXT,
    company                TEXT,
    email                  TEXT,
    phone                  TEXT,
    created_at             TEXT,
    updated_at             TEXT,
    last_contact           TEXT,
    contact_frequency_days INTEGER,
    file_path              TEXT
);

CREATE TABLE IF NOT EXISTS daily_logs (
    id                    TEXT PRIMARY KEY,
    date                  TEXT,
    created_at            TEXT,
    morning_checkin_at    TEXT,
    evening_review_at     TEXT,
    total_planned_minutes INTEGER DEFAULT 0,
    total_actual_minutes  INTEGER DEFAULT 0,
    energy_level_morning  INTEGER,
    energy_level_evening  INTEGER,
    file_path             TEXT
);

CREATE TABLE IF NOT EXISTS daily_log_habits (
    log_id    TEXT NOT NULL,
    habit_key TEXT NOT NULL,
    completed INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS sessions (
    session_id    TEXT PRIMARY KEY,
    user_id       INTEGER NOT NULL,
    chat_id       INTEGER NOT NULL,
    created_at    TEXT NOT NULL,
    updated_at    TEXT NOT NULL,
    expires_at    TEXT NOT NULL,
    context_type  TEXT NOT NULL,
    context_data  TEXT,
    message_count INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_sessions_user_context
    ON sessions(user_id, context_type, created_at);

CREATE TABLE IF NOT EXISTS messages (
    id         TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    role       TEXT NOT NULL,
    content    TEXT NOT NULL,
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_session
    ON messages(session_id, created_at);

CREATE TABLE IF NOT EXISTS notifications (
    id               TEXT PRIMARY KEY,
    type             TEXT NOT NULL,
    scheduled_for    TEXT NOT NULL,
    sent_at          TEXT,
    acknowledged_at  TEXT,
    response_summary TEXT
);

CREATE TABLE IF NOT EXISTS calendar_sync (
    id           INTEGER PRIMARY KEY CHECK (id = 1),
    last_sync_at TEXT,
    sync_token   TEXT
);
`
