package store

import "time"

// Workspace groups sessions by project. Never auto-deleted.
type Workspace struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Path      string            `json:"path,omitempty"`
	Provider  string            `json:"provider,omitempty"`
	GitRemote string            `json:"git_remote,omitempty"`
	GitBranch string            `json:"git_branch,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Session is one canonical conversation. MessageCount and TokenCount are
// derived from live messages on the current branch path; the repository
// recomputes them inside every message-mutating unit of work.
type Session struct {
	ID                string    `json:"id"`
	WorkspaceID       *string   `json:"workspace_id,omitempty"`
	Provider          string    `json:"provider"`
	ProviderSessionID *string   `json:"provider_session_id,omitempty"`
	Title             string    `json:"title"`
	Model             string    `json:"model,omitempty"`
	MessageCount      int       `json:"message_count"`
	TokenCount        int       `json:"token_count"`
	Archived          bool      `json:"archived"`
	IsAgentic         bool      `json:"is_agentic"`
	ParentSessionID   *string   `json:"parent_session_id,omitempty"`
	CurrentBranch     string    `json:"current_branch"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// MainBranch is the branch label given to a session's original history.
const MainBranch = "main"

// Message is one conversation turn. ParentID links each message to its
// predecessor, forming a tree across branches; BranchLabel plus SequenceNum
// orders the messages within one branch.
type Message struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	Role        string    `json:"role"`
	Content     string    `json:"content"`
	Model       *string   `json:"model,omitempty"`
	TokenCount  *int      `json:"token_count,omitempty"`
	ParentID    *string   `json:"parent_id,omitempty"`
	BranchLabel string    `json:"branch_label"`
	SequenceNum int       `json:"sequence_num"`
	ContentHash string    `json:"content_hash"`
	CreatedAt   time.Time `json:"created_at"`
}

// Attachment is message-owned content, inline or by reference.
type Attachment struct {
	ID        string    `json:"id"`
	MessageID string    `json:"message_id"`
	Name      string    `json:"name,omitempty"`
	MimeType  *string   `json:"mime_type,omitempty"`
	Content   *string   `json:"content,omitempty"`
	URL       *string   `json:"url,omitempty"`
	Checksum  string    `json:"checksum"`
	CreatedAt time.Time `json:"created_at"`
}

// Checkpoint is an immutable full-state snapshot of a session.
type Checkpoint struct {
	ID            string    `json:"id"`
	SessionID     string    `json:"session_id"`
	Name          string    `json:"name"`
	Description   *string   `json:"description,omitempty"`
	State         string    `json:"state"`
	LastMessageID *string   `json:"last_message_id,omitempty"`
	MessageCount  int       `json:"message_count"`
	CreatedAt     time.Time `json:"created_at"`
}

// Document is a knowledge-base entry independent of sessions. ContentHash
// dedups: ingesting the same hash again is a no-op.
type Document struct {
	ID          string            `json:"id"`
	Title       string            `json:"title,omitempty"`
	Content     string            `json:"content"`
	ContentHash string            `json:"content_hash"`
	ChunkCount  int               `json:"chunk_count"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// DocumentChunk is one retrieval unit of a document.
type DocumentChunk struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
	ChunkIndex int    `json:"chunk_index"`
	Content    string `json:"content"`
}

// EmbeddingSource tags the entity kind an embedding belongs to.
type EmbeddingSource string

const (
	EmbedMessage       EmbeddingSource = "message"
	EmbedDocument      EmbeddingSource = "document"
	EmbedDocumentChunk EmbeddingSource = "document_chunk"
	EmbedMemory        EmbeddingSource = "memory"
)

// Embedding associates a vector with a source entity. Unique on
// (SourceType, SourceID, Model); re-embedding overwrites. Vectors are
// stored opaquely; scoring is external.
type Embedding struct {
	ID         string          `json:"id"`
	SourceType EmbeddingSource `json:"source_type"`
	SourceID   string          `json:"source_id"`
	Model      string          `json:"model"`
	Vector     []byte          `json:"vector"`
	Dims       int             `json:"dims"`
	CreatedAt  time.Time       `json:"created_at"`
}

// ShareLink records that a session was published somewhere.
type ShareLink struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}

// ImportSource tracks where a session was harvested from. ImportVersion
// increments on every re-import of the same source.
type ImportSource struct {
	ID             string    `json:"id"`
	SessionID      string    `json:"session_id"`
	Provider       string    `json:"provider"`
	SourcePath     string    `json:"source_path"`
	ImportVersion  int       `json:"import_version"`
	LastImportedAt time.Time `json:"last_imported_at"`
}

// Tag is a free-form organizational label.
type Tag struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Event is one append-only change record. Owned by the sync engine; never
// updated or deleted.
type Event struct {
	ID         int64     `json:"id"`
	EventType  string    `json:"event_type"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Actor      string    `json:"actor,omitempty"`
	Data       string    `json:"data"`
	Version    int64     `json:"version"`
	CreatedAt  time.Time `json:"created_at"`
}

// Event types appended by the core.
const (
	EventSessionCreated    = "session.created"
	EventSessionUpdated    = "session.updated"
	EventSessionDeleted    = "session.deleted"
	EventMessagesAppended  = "messages.appended"
	EventBranchCreated     = "branch.created"
	EventCheckpointCreated = "checkpoint.created"
	EventWorkspaceCreated  = "workspace.created"
	EventDocumentIngested  = "document.ingested"
)

// Entity types carried on events.
const (
	EntitySession    = "session"
	EntityMessage    = "message"
	EntityWorkspace  = "workspace"
	EntityCheckpoint = "checkpoint"
	EntityDocument   = "document"
)
