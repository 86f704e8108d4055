// Package export renders canonical sessions to interchange formats.
package export

import (
	"context"
	"fmt"
	"io"

	"github.com/nervosys/chasm/internal/store"
)

// View is the export shape of one session: its metadata plus the messages
// chosen for export. By default this is the live path of the current
// branch; AllBranches includes every branch.
type View struct {
	Session  *store.Session   `json:"session" yaml:"session"`
	Messages []*store.Message `json:"messages" yaml:"messages"`
	Branches []string         `json:"branches,omitempty" yaml:"branches,omitempty"`
}

// Build assembles the export view for a session.
func Build(ctx context.Context, st *store.Store, sessionID string, allBranches bool) (*View, error) {
	var view View
	err := st.View(ctx, func(t *store.Tx) error {
		sess, err := t.GetSession(sessionID)
		if err != nil {
			return err
		}
		view.Session = sess

		if allBranches {
			view.Messages, err = t.AllMessages(sessionID)
		} else {
			view.Messages, err = t.LivePath(sessionID)
		}
		if err != nil {
			return err
		}

		view.Branches, err = t.Branches(sessionID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &view, nil
}

// Exporter renders a session view to a writer.
type Exporter interface {
	Export(view *View, w io.Writer) error
	Extension() string
}

// NewExporter returns the exporter for format.
func NewExporter(format string) (Exporter, error) {
	switch format {
	case "json":
		return &JSONExporter{}, nil
	case "jsonl":
		return &JSONLExporter{}, nil
	case "md", "markdown":
		return &MarkdownExporter{}, nil
	case "yaml":
		return &YAMLExporter{}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s (supported: json, jsonl, md, yaml)", format)
	}
}
