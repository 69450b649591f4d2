// Package output writes acquisition records for the CLI.
package output

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/jmylchreest/boatimg/pkg/fetcher"
)

// Format represents output format types.
type Format string

const (
	FormatJSON  Format = "json"
	FormatJSONL Format = "jsonl"
	FormatYAML  Format = "yaml"
)

// Record describes one acquisition. Image bytes are never included.
type Record struct {
	URL         string `json:"url" yaml:"url"`
	Success     bool   `json:"success" yaml:"success"`
	Tier        string `json:"tier,omitempty" yaml:"tier,omitempty"`
	SourceURL   string `json:"source_url,omitempty" yaml:"source_url,omitempty"`
	ContentType string `json:"content_type,omitempty" yaml:"content_type,omitempty"`
	Size        int    `json:"size,omitempty" yaml:"size,omitempty"`
	SizeHuman   string `json:"size_human,omitempty" yaml:"size_human,omitempty"`
	Width       int    `json:"width,omitempty" yaml:"width,omitempty"`
	Height      int    `json:"height,omitempty" yaml:"height,omitempty"`
	File        string `json:"file,omitempty" yaml:"file,omitempty"`
	Kind        string `json:"kind,omitempty" yaml:"kind,omitempty"`
	Error       string `json:"error,omitempty" yaml:"error,omitempty"`
	ElapsedMS   int64  `json:"elapsed_ms" yaml:"elapsed_ms"`
}

// NewRecord summarises an outcome for requestURL.
func NewRecord(requestURL string, out fetcher.Outcome, elapsed time.Duration) Record {
	rec := Record{
		URL:       requestURL,
		Success:   out.Success,
		Tier:      string(out.Tier),
		Kind:      string(out.Kind),
		Error:     out.Message(),
		ElapsedMS: elapsed.Milliseconds(),
	}
	if out.Success {
		rec.SourceURL = out.SourceURL
		rec.ContentType = out.ContentType
		rec.Size = out.Size
		rec.SizeHuman = humanize.IBytes(uint64(out.Size))
		rec.Width = out.Width
		rec.Height = out.Height
	}
	return rec
}

// Writer serializes records.
type Writer interface {
	// Write outputs or buffers a single record.
	Write(rec Record) error

	// Close writes anything buffered.
	Close() error
}

// WriterOption configures a writer.
type WriterOption func(*writerConfig)

type writerConfig struct {
	pretty bool
	indent string
}

// WithPretty enables pretty-printing for JSON.
func WithPretty(enabled bool) WriterOption {
	return func(c *writerConfig) {
		c.pretty = enabled
	}
}

// WithIndent sets the JSON indentation string.
func WithIndent(indent string) WriterOption {
	return func(c *writerConfig) {
		c.indent = indent
	}
}

// NewWriter creates a writer for the specified format.
func NewWriter(w io.Writer, format Format, opts ...WriterOption) (Writer, error) {
	cfg := &writerConfig{
		pretty: true,
		indent: "  ",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	switch format {
	case FormatJSON:
		return NewJSONWriter(w, cfg.pretty, cfg.indent), nil
	case FormatJSONL:
		return NewJSONLWriter(w), nil
	case FormatYAML:
		return NewYAMLWriter(w), nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}
