// Package provider defines the contract every chat-session source implements.
//
// An Adapter turns raw provider data (files on disk, API payloads) into
// provider-neutral SessionRecords. Adapters never touch the canonical store
// and never assign canonical ids; that is the normalizer's job.
package provider

import (
	"context"
	"fmt"
	"time"
)

// Role values for raw turns. These match the canonical message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
)

// SourceLocation is an opaque handle to one extractable source: a session
// file, a database row range, an API endpoint.
type SourceLocation struct {
	Provider string
	// URI identifies the source. For file-based providers this is a path.
	URI string
	// WorkspaceHint carries a filesystem path the source belongs to, when
	// the provider can tell. Used for workspace association.
	WorkspaceHint string
}

func (l SourceLocation) String() string {
	return l.Provider + ":" + l.URI
}

// Turn is one raw conversation turn as the provider recorded it.
type Turn struct {
	Role        string
	Content     string
	Timestamp   time.Time
	Model       string
	TokenCount  int
	ToolCall    string // raw tool-call payload, JSON, optional
	Attachments []Attachment
}

// Attachment is raw attachment data carried by a turn.
type Attachment struct {
	Name     string
	MimeType string
	Content  string // inline content, optional
	URL      string // external reference, optional
}

// SessionRecord is one conversation in provider-neutral shape.
type SessionRecord struct {
	Provider string
	// NativeID is the provider's own session identifier, empty when the
	// provider has no stable id.
	NativeID string
	Title    string
	Model    string
	Turns    []Turn
	// LastModified is a best-effort marker used for change detection.
	LastModified time.Time
	// SourcePath records where the record came from, for provenance.
	SourcePath string
}

// Adapter is implemented by every session source.
//
// Discover and Extract are separate so extraction can run in parallel per
// source and so one unparsable source fails alone (partial-failure
// semantics).
type Adapter interface {
	// ID returns the stable provider identifier, e.g. "vscode".
	ID() string
	// Discover enumerates extractable sources.
	Discover(ctx context.Context) ([]SourceLocation, error)
	// Extract parses one source into session records. A source that cannot
	// be parsed returns *ExtractionError; the caller skips it and continues.
	Extract(ctx context.Context, loc SourceLocation) ([]SessionRecord, error)
}

// ExtractionError reports that a single source could not be parsed.
// It never aborts a harvest; the harvester records it and moves on.
type ExtractionError struct {
	Provider string
	Source   string
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract [%s] %s: %v", e.Provider, e.Source, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}
