// Package testutil holds shared fixtures for chasm tests.
package testutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nervosys/chasm/internal/provider"
	"github.com/nervosys/chasm/internal/store"
)

// OpenStore opens a fresh store in a temp directory, closed on cleanup.
func OpenStore(t *testing.T) *store.Store {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "chasm.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// BaseTime is the fixed timestamp fixtures build on.
var BaseTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// Turn builds a provider turn at BaseTime plus seq minutes.
func Turn(role, content string, seq int) provider.Turn {
	return provider.Turn{
		Role:      role,
		Content:   content,
		Timestamp: BaseTime.Add(time.Duration(seq) * time.Minute),
	}
}

// Record builds a session record with stable identity for merge tests.
func Record(nativeID, title string, turns ...provider.Turn) provider.SessionRecord {
	return provider.SessionRecord{
		Provider:   "test",
		NativeID:   nativeID,
		Title:      title,
		Model:      "test-model",
		Turns:      turns,
		SourcePath: "/fixtures/" + nativeID + ".json",
	}
}

// Conversation is the standard three-turn fixture: user asks, assistant
// answers, user follows up.
func Conversation(nativeID string) provider.SessionRecord {
	return Record(nativeID, "How do I test this?",
		Turn(provider.RoleUser, "How do I test this?", 0),
		Turn(provider.RoleAssistant, "Write a table test.", 1),
		Turn(provider.RoleUser, "Show me an example.", 2),
	)
}

// VSCodeSessionFile is the on-disk JSON shape the vscode adapter reads.
type VSCodeSessionFile struct {
	SessionID       string                 `json:"sessionId"`
	CustomTitle     string                 `json:"customTitle,omitempty"`
	CreationDate    int64                  `json:"creationDate"`
	LastMessageDate int64                  `json:"lastMessageDate"`
	Requests        []VSCodeSessionRequest `json:"requests"`
}

// VSCodeSessionRequest is one request/response pair in a session file.
type VSCodeSessionRequest struct {
	Timestamp int64 `json:"timestamp"`
	Message   struct {
		Text string `json:"text"`
	} `json:"message"`
	ModelID  string `json:"modelId,omitempty"`
	Response []struct {
		Value string `json:"value"`
	} `json:"response,omitempty"`
}

// NewVSCodeRequest builds one request/response pair.
func NewVSCodeRequest(prompt, reply, model string, ts time.Time) VSCodeSessionRequest {
	var req VSCodeSessionRequest
	req.Timestamp = ts.UnixMilli()
	req.Message.Text = prompt
	req.ModelID = model
	if reply != "" {
		req.Response = []struct {
			Value string `json:"value"`
		}{{Value: reply}}
	}
	return req
}

// WriteVSCodeFixture lays out a vscode storage root with one workspace
// containing the given session files, returning the root directory.
func WriteVSCodeFixture(t *testing.T, workspacePath string, files ...VSCodeSessionFile) string {
	t.Helper()

	root := t.TempDir()
	wsDir := filepath.Join(root, "workspaceStorage", "abc123")
	sessionsDir := filepath.Join(wsDir, "chatSessions")
	if err := os.MkdirAll(sessionsDir, 0o755); err != nil {
		t.Fatalf("create fixture dirs: %v", err)
	}

	meta := map[string]string{"folder": "file://" + workspacePath}
	metaJSON, _ := json.Marshal(meta)
	if err := os.WriteFile(filepath.Join(wsDir, "workspace.json"), metaJSON, 0o644); err != nil {
		t.Fatalf("write workspace.json: %v", err)
	}

	for _, file := range files {
		raw, err := json.Marshal(file)
		if err != nil {
			t.Fatalf("marshal session file: %v", err)
		}
		path := filepath.Join(sessionsDir, file.SessionID+".json")
		if err := os.WriteFile(path, raw, 0o644); err != nil {
			t.Fatalf("write session file: %v", err)
		}
	}
	return root
}
