package export

import (
	"io"

	"gopkg.in/yaml.v3"
)

// YAMLExporter renders the full view as YAML.
type YAMLExporter struct{}

func (e *YAMLExporter) Export(view *View, w io.Writer) error {
	enc := yaml.NewEncoder(w)
	defer func() { _ = enc.Close() }()
	return enc.Encode(view)
}

func (e *YAMLExporter) Extension() string {
	return "yaml"
}
