package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/khanhnv2901/cmpscan/internal/catalog"
	"github.com/khanhnv2901/cmpscan/internal/scanner"
)

var (
	colorSuccess = color.New(color.FgGreen).SprintFunc()
	colorInfo    = color.New(color.FgCyan).SprintFunc()
	colorWarn    = color.New(color.FgYellow).SprintFunc()
	colorError   = color.New(color.FgRed).SprintFunc()
	colorBold    = color.New(color.Bold).SprintFunc()
)

// TextWriter writes colored, human-readable reports. Colors follow fatih/color,
// which disables them when output is not a terminal or NO_COLOR is set.
type TextWriter struct {
	baseWriter
}

// NewTextWriter creates a TextWriter.
func NewTextWriter(output io.Writer) *TextWriter {
	return &TextWriter{baseWriter: newBaseWriter(output)}
}

// WriteOutcomes prints one block per URL.
func (w *TextWriter) WriteOutcomes(outcomes []scanner.Outcome) error {
	var b strings.Builder
	for i, o := range outcomes {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s %s\n", colorBold("URL:"), o.URL)

		if o.Err != nil {
			fmt.Fprintf(&b, "  %s %s\n", colorError("FAILED"), errorText(o.Err))
			continue
		}

		res := o.Result
		if len(res.DetectedCMPs) == 0 {
			fmt.Fprintf(&b, "  %s\n", colorWarn("No CMP detected"))
		} else {
			fmt.Fprintf(&b, "  %s %s\n", colorSuccess("Detected:"), strings.Join(res.DetectedCMPs, ", "))
		}
		for _, name := range res.DetectedCMPs {
			pe := res.Evidence.DetectionDetails[name]
			fmt.Fprintf(&b, "    %s global=%t scripts=%d localStorage=%d sessionStorage=%d indexedDB=%d\n",
				colorInfo(name), pe.GlobalObject, len(pe.Scripts),
				len(pe.Storage.LocalStorage), len(pe.Storage.SessionStorage), len(pe.Storage.IndexedDB))
		}

		if len(res.FoundCookies) > 0 {
			fmt.Fprintf(&b, "  %s\n", colorSuccess("Cookies:"))
			for _, c := range res.FoundCookies {
				fmt.Fprintf(&b, "    - %s\n", c)
			}
		}
		if len(res.Evidence.AllScripts) > 0 {
			fmt.Fprintf(&b, "  %s\n", colorInfo("Scripts:"))
			for _, s := range res.Evidence.AllScripts {
				fmt.Fprintf(&b, "    - %s\n", s)
			}
		}
	}
	_, err := io.WriteString(w.output, b.String())
	return err
}

// WriteCatalog prints providers then cookie patterns.
func (w *TextWriter) WriteCatalog(cat *catalog.Catalog) error {
	var b strings.Builder
	fmt.Fprintln(&b, colorBold("Providers:"))
	for _, p := range cat.Providers() {
		var signals []string
		if p.GlobalObject != "" {
			signals = append(signals, "window."+p.GlobalObject)
		}
		signals = append(signals, p.ScriptSources...)
		fmt.Fprintf(&b, "  %s %s\n", colorInfo(fmt.Sprintf("%-14s", p.Name)), strings.Join(signals, ", "))
	}
	fmt.Fprintln(&b)
	fmt.Fprintln(&b, colorBold("Cookie patterns:"))
	for _, c := range cat.CookiePatterns() {
		fmt.Fprintf(&b, "  %-20s %s\n", c.Pattern, c.Provider)
	}
	_, err := io.WriteString(w.output, b.String())
	return err
}
