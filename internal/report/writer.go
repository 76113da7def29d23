package report

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/khanhnv2901/cmpscan/internal/catalog"
	"github.com/khanhnv2901/cmpscan/internal/scanner"
	apperrors "github.com/khanhnv2901/cmpscan/internal/shared/errors"
)

// Format names an output format.
type Format string

const (
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
	FormatText     Format = "text"
)

// ParseFormat accepts json, markdown (or md) and text, case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "text", "":
		return FormatText, nil
	default:
		return "", fmt.Errorf("%w: %q (want json, markdown or text)", apperrors.ErrInvalidFormat, s)
	}
}

// Writer renders reports to one destination.
type Writer interface {
	// WriteOutcomes renders the results of a scan batch in input order.
	WriteOutcomes(outcomes []scanner.Outcome) error
	// WriteCatalog renders the provider and cookie rules.
	WriteCatalog(cat *catalog.Catalog) error
}

// NewWriter returns the Writer for format.
func NewWriter(format Format, output io.Writer) (Writer, error) {
	switch format {
	case FormatJSON:
		return NewJSONWriter(output, WithPrettyPrint()), nil
	case FormatMarkdown:
		return NewMarkdownWriter(output), nil
	case FormatText:
		return NewTextWriter(output), nil
	default:
		return nil, fmt.Errorf("%w: %q", apperrors.ErrInvalidFormat, format)
	}
}

type baseWriter struct {
	output io.Writer
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}

// errorText is the message shown for a failed outcome.
func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
