package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nervosys/chasm/internal/logging"
)

// VSCodeAdapter harvests chat sessions stored by VS Code-style editors under
// workspaceStorage/<hash>/chatSessions/*.json. Sessions from windows opened
// without a folder live under emptyWindowChatSessions/.
type VSCodeAdapter struct {
	// Root is the editor's user-data storage directory.
	Root string
}

// NewVSCodeAdapter returns an adapter rooted at dir, or at the platform
// default when dir is empty.
func NewVSCodeAdapter(dir string) *VSCodeAdapter {
	if dir == "" {
		dir = defaultVSCodeRoot()
	}
	return &VSCodeAdapter{Root: dir}
}

func defaultVSCodeRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "Code", "User")
}

// ID implements Adapter.
func (a *VSCodeAdapter) ID() string { return "vscode" }

// Discover implements Adapter. It walks workspaceStorage for workspaces that
// have chat sessions, plus the empty-window session directory.
func (a *VSCodeAdapter) Discover(ctx context.Context) ([]SourceLocation, error) {
	var locations []SourceLocation

	storageDir := filepath.Join(a.Root, "workspaceStorage")
	entries, err := os.ReadDir(storageDir)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read workspace storage: %w", err)
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !entry.IsDir() {
			continue
		}

		wsDir := filepath.Join(storageDir, entry.Name())
		hint := readWorkspaceFolder(wsDir)

		sessions, err := os.ReadDir(filepath.Join(wsDir, "chatSessions"))
		if err != nil {
			continue // workspace without chats
		}
		for _, s := range sessions {
			if s.IsDir() || !strings.HasSuffix(s.Name(), ".json") {
				continue
			}
			locations = append(locations, SourceLocation{
				Provider:      a.ID(),
				URI:           filepath.Join(wsDir, "chatSessions", s.Name()),
				WorkspaceHint: hint,
			})
		}
	}

	// Sessions from windows with no folder open.
	emptyDir := filepath.Join(a.Root, "emptyWindowChatSessions")
	if empties, err := os.ReadDir(emptyDir); err == nil {
		for _, s := range empties {
			if s.IsDir() || !strings.HasSuffix(s.Name(), ".json") {
				continue
			}
			locations = append(locations, SourceLocation{
				Provider: a.ID(),
				URI:      filepath.Join(emptyDir, s.Name()),
			})
		}
	}

	logging.L().Debugw("discovered vscode sources", "count", len(locations))
	return locations, nil
}

// readWorkspaceFolder extracts the project path from workspace.json.
func readWorkspaceFolder(wsDir string) string {
	data, err := os.ReadFile(filepath.Join(wsDir, "workspace.json"))
	if err != nil {
		return ""
	}
	var meta struct {
		Folder string `json:"folder"`
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return ""
	}
	return strings.TrimPrefix(meta.Folder, "file://")
}

// chatSessionFile mirrors the on-disk session JSON.
type chatSessionFile struct {
	SessionID       string `json:"sessionId"`
	CustomTitle     string `json:"customTitle"`
	CreationDate    int64  `json:"creationDate"`
	LastMessageDate int64  `json:"lastMessageDate"`
	Requests        []struct {
		Timestamp int64 `json:"timestamp"`
		Message   struct {
			Text string `json:"text"`
		} `json:"message"`
		ModelID  string `json:"modelId"`
		Response []struct {
			Value string `json:"value"`
		} `json:"response"`
	} `json:"requests"`
}

// Extract implements Adapter. One unreadable file yields an
// *ExtractionError for that file only.
func (a *VSCodeAdapter) Extract(ctx context.Context, loc SourceLocation) ([]SessionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(loc.URI)
	if err != nil {
		return nil, &ExtractionError{Provider: a.ID(), Source: loc.URI, Err: err}
	}

	var file chatSessionFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, &ExtractionError{Provider: a.ID(), Source: loc.URI, Err: err}
	}

	nativeID := file.SessionID
	if nativeID == "" {
		nativeID = strings.TrimSuffix(filepath.Base(loc.URI), ".json")
	}

	rec := SessionRecord{
		Provider:     a.ID(),
		NativeID:     nativeID,
		Title:        file.CustomTitle,
		LastModified: millisToTime(file.LastMessageDate),
		SourcePath:   loc.URI,
	}

	for _, req := range file.Requests {
		ts := millisToTime(req.Timestamp)
		if req.Message.Text != "" {
			rec.Turns = append(rec.Turns, Turn{
				Role:      RoleUser,
				Content:   req.Message.Text,
				Timestamp: ts,
			})
		}

		var response strings.Builder
		for _, part := range req.Response {
			response.WriteString(part.Value)
		}
		if response.Len() > 0 {
			rec.Turns = append(rec.Turns, Turn{
				Role:      RoleAssistant,
				Content:   response.String(),
				Timestamp: ts,
				Model:     req.ModelID,
			})
		}
		if rec.Model == "" && req.ModelID != "" {
			rec.Model = req.ModelID
		}
	}

	if rec.Title == "" && len(rec.Turns) > 0 {
		rec.Title = firstLine(rec.Turns[0].Content, 80)
	}

	return []SessionRecord{rec}, nil
}

func millisToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.Unix(0, ms*int64(time.Millisecond)).UTC()
}

// firstLine truncates s to its first line, capped at max runes.
func firstLine(s string, max int) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	runes := []rune(s)
	if len(runes) > max {
		return string(runes[:max])
	}
	return s
}
