package report

import (
	"encoding/json"
	"io"

	"github.com/khanhnv2901/cmpscan/internal/catalog"
	"github.com/khanhnv2901/cmpscan/internal/detect"
	"github.com/khanhnv2901/cmpscan/internal/scanner"
)

// JSONWriter writes machine-readable reports. Results keep the same shape the
// HTTP API returns.
type JSONWriter struct {
	baseWriter

	indentPrefix string
	indentString string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables indented output.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint indents with two spaces.
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// NewJSONWriter creates a JSONWriter. Output is compact unless an indent option is given.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

type jsonOutcome struct {
	URL        string         `json:"url"`
	Result     *detect.Result `json:"result,omitempty"`
	Error      string         `json:"error,omitempty"`
	DurationMS int64          `json:"durationMs"`
}

type jsonCatalog struct {
	Providers []catalog.Provider      `json:"providers"`
	Cookies   []catalog.CookiePattern `json:"cookies"`
}

// WriteOutcomes writes an array with one entry per URL.
func (w *JSONWriter) WriteOutcomes(outcomes []scanner.Outcome) error {
	entries := make([]jsonOutcome, 0, len(outcomes))
	for _, o := range outcomes {
		entries = append(entries, jsonOutcome{
			URL:        o.URL,
			Result:     o.Result,
			Error:      errorText(o.Err),
			DurationMS: o.Duration.Milliseconds(),
		})
	}
	return w.encode(entries)
}

// WriteCatalog writes the providers and cookie patterns in catalog order.
func (w *JSONWriter) WriteCatalog(cat *catalog.Catalog) error {
	return w.encode(jsonCatalog{
		Providers: cat.Providers(),
		Cookies:   cat.CookiePatterns(),
	})
}

func (w *JSONWriter) encode(v any) error {
	enc := json.NewEncoder(w.output)
	if w.indentPrefix != "" || w.indentString != "" {
		enc.SetIndent(w.indentPrefix, w.indentString)
	}
	return enc.Encode(v)
}
