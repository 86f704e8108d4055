package export

import (
	"encoding/json"
	"fmt"
	"io"
)

// JSONLExporter renders one message per line, suitable for streaming
// pipelines and dataset tooling.
type JSONLExporter struct{}

func (e *JSONLExporter) Export(view *View, w io.Writer) error {
	enc := json.NewEncoder(w)
	for _, msg := range view.Messages {
		obj := map[string]any{
			"role":    msg.Role,
			"content": msg.Content,
			"branch":  msg.BranchLabel,
		}
		if !msg.CreatedAt.IsZero() {
			obj["timestamp"] = msg.CreatedAt
		}
		if msg.Model != nil {
			obj["model"] = *msg.Model
		}
		if err := enc.Encode(obj); err != nil {
			return fmt.Errorf("encode message: %w", err)
		}
	}
	return nil
}

func (e *JSONLExporter) Extension() string {
	return "jsonl"
}
