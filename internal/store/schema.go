package store

// Schema version tracking:
// 0 - pre-migration
// 1 - initial canonical schema
const currentSchemaVersion = 1

// schemaSQL creates the canonical tables. Statements are idempotent so Open
// can apply them on every start.
//
// Derived columns (sessions.message_count, sessions.token_count,
// documents.chunk_count) are maintained by the repository inside the same
// transaction as the mutation that changes them, not by SQL triggers, so the
// invariant holds regardless of the engine behind the interface.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS workspaces (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	path        TEXT,
	provider    TEXT,
	git_remote  TEXT,
	git_branch  TEXT,
	metadata    TEXT NOT NULL DEFAULT '{}',
	created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_workspaces_path ON workspaces(path);

CREATE TABLE IF NOT EXISTS sessions (
	id                  TEXT PRIMARY KEY,
	workspace_id        TEXT REFERENCES workspaces(id) ON DELETE SET NULL,
	provider            TEXT NOT NULL,
	provider_session_id TEXT,
	title               TEXT NOT NULL DEFAULT '',
	model               TEXT NOT NULL DEFAULT '',
	message_count       INTEGER NOT NULL DEFAULT 0,
	token_count         INTEGER NOT NULL DEFAULT 0,
	archived            INTEGER NOT NULL DEFAULT 0,
	is_agentic          INTEGER NOT NULL DEFAULT 0,
	parent_session_id   TEXT REFERENCES sessions(id) ON DELETE SET NULL,
	current_branch      TEXT NOT NULL DEFAULT 'main',
	created_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_sessions_identity
	ON sessions(provider, provider_session_id);
CREATE INDEX IF NOT EXISTS idx_sessions_workspace ON sessions(workspace_id);

CREATE TABLE IF NOT EXISTS messages (
	id            TEXT PRIMARY KEY,
	session_id    TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	role          TEXT NOT NULL CHECK(role IN ('user', 'assistant', 'system', 'tool')),
	content       TEXT NOT NULL,
	model         TEXT,
	token_count   INTEGER,
	parent_id     TEXT REFERENCES messages(id),
	branch_label  TEXT NOT NULL DEFAULT 'main',
	sequence_num  INTEGER NOT NULL,
	content_hash  TEXT NOT NULL,
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(session_id, branch_label, sequence_num)
);

CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id);
CREATE INDEX IF NOT EXISTS idx_messages_parent ON messages(parent_id);

CREATE TABLE IF NOT EXISTS message_attachments (
	id          TEXT PRIMARY KEY,
	message_id  TEXT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
	name        TEXT NOT NULL DEFAULT '',
	mime_type   TEXT,
	content     TEXT,
	url         TEXT,
	checksum    TEXT NOT NULL,
	created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_attachments_message
	ON message_attachments(message_id);
CREATE INDEX IF NOT EXISTS idx_attachments_checksum
	ON message_attachments(checksum);

CREATE TABLE IF NOT EXISTS documents (
	id           TEXT PRIMARY KEY,
	title        TEXT NOT NULL DEFAULT '',
	content      TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	chunk_count  INTEGER NOT NULL DEFAULT 0,
	metadata     TEXT NOT NULL DEFAULT '{}',
	created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_documents_hash
	ON documents(content_hash);

CREATE TABLE IF NOT EXISTS document_chunks (
	id           TEXT PRIMARY KEY,
	document_id  TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	chunk_index  INTEGER NOT NULL,
	content      TEXT NOT NULL,
	UNIQUE(document_id, chunk_index)
);

CREATE TABLE IF NOT EXISTS embeddings (
	id          TEXT PRIMARY KEY,
	source_type TEXT NOT NULL CHECK(source_type IN ('message', 'document', 'document_chunk', 'memory')),
	source_id   TEXT NOT NULL,
	model       TEXT NOT NULL,
	vector      BLOB NOT NULL,
	dims        INTEGER NOT NULL,
	created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(source_type, source_id, model)
);

CREATE TABLE IF NOT EXISTS checkpoints (
	id              TEXT PRIMARY KEY,
	session_id      TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	name            TEXT NOT NULL,
	description     TEXT,
	state           TEXT NOT NULL,
	last_message_id TEXT,
	message_count   INTEGER NOT NULL,
	created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_checkpoints_session ON checkpoints(session_id);

CREATE TABLE IF NOT EXISTS share_links (
	id          TEXT PRIMARY KEY,
	session_id  TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	url         TEXT NOT NULL,
	created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS import_sources (
	id               TEXT PRIMARY KEY,
	session_id       TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	provider         TEXT NOT NULL,
	source_path      TEXT NOT NULL,
	import_version   INTEGER NOT NULL DEFAULT 1,
	last_imported_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(session_id, source_path)
);

CREATE TABLE IF NOT EXISTS tags (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS session_tags (
	session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	tag_id     TEXT NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
	PRIMARY KEY (session_id, tag_id)
);

CREATE TABLE IF NOT EXISTS document_tags (
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	tag_id      TEXT NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
	PRIMARY KEY (document_id, tag_id)
);

CREATE TABLE IF NOT EXISTS workspace_tags (
	workspace_id TEXT NOT NULL REFERENCES workspaces(id) ON DELETE CASCADE,
	tag_id       TEXT NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
	PRIMARY KEY (workspace_id, tag_id)
);

CREATE TABLE IF NOT EXISTS events (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	event_type  TEXT NOT NULL,
	entity_type TEXT NOT NULL,
	entity_id   TEXT NOT NULL,
	actor       TEXT NOT NULL DEFAULT '',
	data        TEXT NOT NULL DEFAULT '{}',
	version     INTEGER NOT NULL UNIQUE,
	created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
	message_id UNINDEXED,
	session_id UNINDEXED,
	content,
	tokenize='porter'
);

CREATE VIRTUAL TABLE IF NOT EXISTS documents_fts USING fts5(
	document_id UNINDEXED,
	content,
	tokenize='porter'
);
`
