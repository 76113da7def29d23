package report

import (
	"io"
	"strconv"
	"strings"

	"github.com/khanhnv2901/cmpscan/internal/catalog"
	"github.com/khanhnv2901/cmpscan/internal/detect"
	"github.com/khanhnv2901/cmpscan/internal/scanner"
	"github.com/nao1215/markdown"
)

// MarkdownWriter writes reports as GitHub-flavored Markdown.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{baseWriter: newBaseWriter(output)}
}

// WriteOutcomes writes a summary table followed by one section per URL.
func (w *MarkdownWriter) WriteOutcomes(outcomes []scanner.Outcome) error {
	md := markdown.NewMarkdown(w.output)

	md.H1("CMP Scan Report")
	md.PlainText("")
	w.writeSummary(md, outcomes)

	for _, o := range outcomes {
		w.writeOutcome(md, o)
	}

	w.writeFooter(md)
	return md.Build()
}

func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, outcomes []scanner.Outcome) {
	rows := make([][]string, 0, len(outcomes))
	failed := 0
	for _, o := range outcomes {
		status := "✅ Scanned"
		detected := "-"
		if o.Err != nil {
			status = "❌ Failed"
			failed++
		} else if len(o.Result.DetectedCMPs) > 0 {
			detected = strings.Join(o.Result.DetectedCMPs, ", ")
		}
		rows = append(rows, []string{"`" + o.URL + "`", status, detected})
	}

	md.Table(markdown.TableSet{
		Header: []string{"URL", "Status", "Detected CMPs"},
		Rows:   rows,
	})
	md.PlainText("")

	if failed > 0 {
		md.Warningf("%d of %d scan(s) failed.", failed, len(outcomes))
		md.PlainText("")
	}
}

func (w *MarkdownWriter) writeOutcome(md *markdown.Markdown, o scanner.Outcome) {
	md.H2(o.URL)
	md.PlainText("")

	if o.Err != nil {
		md.Cautionf("%s", errorText(o.Err))
		md.PlainText("")
		return
	}

	res := o.Result
	if len(res.DetectedCMPs) == 0 {
		md.Note("No consent management platform detected.")
		md.PlainText("")
	}
	for _, name := range res.DetectedCMPs {
		w.writeProvider(md, name, res.Evidence.DetectionDetails[name])
	}

	md.H3("Consent Cookies")
	md.PlainText("")
	if len(res.Evidence.CookieDetails) == 0 {
		md.PlainText("No known consent cookies found.")
	} else {
		rows := make([][]string, 0, len(res.Evidence.CookieDetails))
		for _, key := range sortedKeys(res.Evidence.CookieDetails) {
			d := res.Evidence.CookieDetails[key]
			rows = append(rows, []string{"`" + key + "`", d.Provider, truncateString(d.Value, 40)})
		}
		md.Table(markdown.TableSet{
			Header: []string{"Cookie", "Provider", "Value"},
			Rows:   rows,
		})
	}
	md.PlainText("")

	md.H3("Consent-related Scripts")
	md.PlainText("")
	if len(res.Evidence.AllScripts) == 0 {
		md.PlainText("None.")
	} else {
		md.BulletList(res.Evidence.AllScripts...)
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeProvider(md *markdown.Markdown, name string, pe detect.ProviderEvidence) {
	md.H3(name)
	md.PlainText("")

	global := "no"
	if pe.GlobalObject {
		global = "yes"
	}
	md.Table(markdown.TableSet{
		Header: []string{"Signal", "Value"},
		Rows: [][]string{
			{"Global object", global},
			{"Scripts", strconv.Itoa(len(pe.Scripts))},
			{"localStorage entries", strconv.Itoa(len(pe.Storage.LocalStorage))},
			{"sessionStorage entries", strconv.Itoa(len(pe.Storage.SessionStorage))},
			{"IndexedDB databases", strconv.Itoa(len(pe.Storage.IndexedDB))},
		},
	})
	md.PlainText("")

	if len(pe.Scripts) > 0 {
		md.BulletList(pe.Scripts...)
		md.PlainText("")
	}
}

// WriteCatalog writes the provider and cookie rule tables.
func (w *MarkdownWriter) WriteCatalog(cat *catalog.Catalog) error {
	md := markdown.NewMarkdown(w.output)

	md.H1("CMP Rule Catalog")
	md.PlainText("")

	md.H2("Providers")
	md.PlainText("")
	providers := cat.Providers()
	rows := make([][]string, 0, len(providers))
	for _, p := range providers {
		global := "-"
		if p.GlobalObject != "" {
			global = "`window." + p.GlobalObject + "`"
		}
		scripts := "-"
		if len(p.ScriptSources) > 0 {
			scripts = "`" + strings.Join(p.ScriptSources, "`, `") + "`"
		}
		rows = append(rows, []string{p.Name, global, scripts})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Provider", "Global", "Script sources"},
		Rows:   rows,
	})
	md.PlainText("")

	md.H2("Cookie Patterns")
	md.PlainText("")
	patterns := cat.CookiePatterns()
	rows = make([][]string, 0, len(patterns))
	for _, c := range patterns {
		rows = append(rows, []string{"`" + c.Pattern + "`", c.Provider})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Pattern", "Provider"},
		Rows:   rows,
	})
	md.PlainText("")

	return md.Build()
}

func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainText("*Report generated by cmpscan*")
}

// truncateString shortens s to maxLen bytes with an ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
