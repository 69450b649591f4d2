package output

import (
	"io"

	"gopkg.in/yaml.v3"
)

// YAMLWriter writes each record as its own YAML document.
type YAMLWriter struct {
	enc *yaml.Encoder
}

// NewYAMLWriter creates a YAML writer.
func NewYAMLWriter(w io.Writer) *YAMLWriter {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	return &YAMLWriter{enc: enc}
}

// Write encodes a record as a document.
func (w *YAMLWriter) Write(rec Record) error {
	return w.enc.Encode(rec)
}

// Close terminates the document stream.
func (w *YAMLWriter) Close() error {
	return w.enc.Close()
}
