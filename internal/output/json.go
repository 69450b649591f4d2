package output

import (
	"encoding/json"
	"io"
)

// JSONWriter buffers records and writes a single object, or an array when
// more than one record was written.
type JSONWriter struct {
	w       io.Writer
	pretty  bool
	indent  string
	records []Record
}

// NewJSONWriter creates a JSON writer.
func NewJSONWriter(w io.Writer, pretty bool, indent string) *JSONWriter {
	return &JSONWriter{w: w, pretty: pretty, indent: indent}
}

// Write buffers a record.
func (w *JSONWriter) Write(rec Record) error {
	w.records = append(w.records, rec)
	return nil
}

// Close writes the buffered records.
func (w *JSONWriter) Close() error {
	if len(w.records) == 0 {
		return nil
	}
	var v any = w.records
	if len(w.records) == 1 {
		v = w.records[0]
	}

	enc := json.NewEncoder(w.w)
	enc.SetEscapeHTML(false)
	if w.pretty {
		enc.SetIndent("", w.indent)
	}
	w.records = nil
	return enc.Encode(v)
}

// JSONLWriter streams one JSON object per line.
type JSONLWriter struct {
	enc *json.Encoder
}

// NewJSONLWriter creates a JSONL writer.
func NewJSONLWriter(w io.Writer) *JSONLWriter {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &JSONLWriter{enc: enc}
}

// Write writes a record as one line.
func (w *JSONLWriter) Write(rec Record) error {
	return w.enc.Encode(rec)
}

// Close is a no-op; records are written immediately.
func (w *JSONLWriter) Close() error {
	return nil
}
