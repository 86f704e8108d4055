package export

import (
	"encoding/json"
	"io"
)

// JSONExporter renders the full view as pretty-printed JSON.
type JSONExporter struct{}

func (e *JSONExporter) Export(view *View, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(view)
}

func (e *JSONExporter) Extension() string {
	return "json"
}
