package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/khanhnv2901/cmpscan/internal/catalog"
	"github.com/khanhnv2901/cmpscan/internal/detect"
	"github.com/khanhnv2901/cmpscan/internal/scanner"
	apperrors "github.com/khanhnv2901/cmpscan/internal/shared/errors"
)

func init() {
	color.NoColor = true
}

func createTestOutcomes() []scanner.Outcome {
	return []scanner.Outcome{
		{
			URL: "https://shop.example/",
			Result: &detect.Result{
				DetectedCMPs: []string{"Cookiebot"},
				FoundCookies: []string{"IAB TCF 2.0 (euconsent-v2)"},
				Evidence: detect.Evidence{
					DetectionDetails: map[string]detect.ProviderEvidence{
						"Cookiebot": {
							GlobalObject: true,
							Scripts:      []string{"https://consent.cookiebot.com/uc.js"},
							Storage: detect.StorageEvidence{
								LocalStorage:   map[string]string{},
								SessionStorage: map[string]string{},
								IndexedDB:      []string{},
							},
						},
					},
					CookieDetails: map[string]detect.CookieDetail{
						"euconsent-v2": {Provider: "IAB TCF 2.0", Value: "ABC123"},
					},
					AllScripts: []string{"https://consent.cookiebot.com/uc.js"},
				},
			},
			Duration: 1500 * time.Millisecond,
		},
		{
			URL: "https://down.example/",
			Err: &scanner.ScanError{URL: "https://down.example/", Err: errors.New("net::ERR_NAME_NOT_RESOLVED")},
		},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
	}{
		{"json", FormatJSON},
		{"JSON", FormatJSON},
		{"markdown", FormatMarkdown},
		{"md", FormatMarkdown},
		{"text", FormatText},
		{"", FormatText},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if err != nil {
			t.Errorf("ParseFormat(%q) returned error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	if _, err := ParseFormat("xml"); !errors.Is(err, apperrors.ErrInvalidFormat) {
		t.Errorf("expected ErrInvalidFormat, got %v", err)
	}
}

func TestJSONWriter(t *testing.T) {
	t.Parallel()

	t.Run("outcomes", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if err := NewJSONWriter(&buf).WriteOutcomes(createTestOutcomes()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var parsed []struct {
			URL        string         `json:"url"`
			Result     *detect.Result `json:"result"`
			Error      string         `json:"error"`
			DurationMS int64          `json:"durationMs"`
		}
		if err := json.Unmarshal(buf.Bytes(), &parsed); err != nil {
			t.Fatalf("output is not valid JSON: %v", err)
		}
		if len(parsed) != 2 {
			t.Fatalf("expected 2 entries, got %d", len(parsed))
		}
		if parsed[0].Result == nil || parsed[0].Result.DetectedCMPs[0] != "Cookiebot" {
			t.Errorf("unexpected first entry %+v", parsed[0])
		}
		if parsed[0].DurationMS != 1500 {
			t.Errorf("expected durationMs 1500, got %d", parsed[0].DurationMS)
		}
		if parsed[1].Result != nil || !strings.Contains(parsed[1].Error, scanner.ScanFailedMessage) {
			t.Errorf("unexpected failed entry %+v", parsed[1])
		}
	})

	t.Run("compact by default", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if err := NewJSONWriter(&buf).WriteOutcomes(createTestOutcomes()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if strings.Count(buf.String(), "\n") != 1 {
			t.Errorf("expected single-line output, got %q", buf.String())
		}
	})

	t.Run("pretty print", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if err := NewJSONWriter(&buf, WithPrettyPrint()).WriteOutcomes(createTestOutcomes()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "\n  {") {
			t.Errorf("expected indented output, got %q", buf.String())
		}
	})

	t.Run("catalog", func(t *testing.T) {
		t.Parallel()

		cat, err := catalog.Default()
		if err != nil {
			t.Fatalf("load catalog: %v", err)
		}
		var buf bytes.Buffer
		if err := NewJSONWriter(&buf).WriteCatalog(cat); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var parsed struct {
			Providers []catalog.Provider      `json:"providers"`
			Cookies   []catalog.CookiePattern `json:"cookies"`
		}
		if err := json.Unmarshal(buf.Bytes(), &parsed); err != nil {
			t.Fatalf("output is not valid JSON: %v", err)
		}
		if len(parsed.Providers) != len(cat.Providers()) || len(parsed.Cookies) != len(cat.CookiePatterns()) {
			t.Errorf("expected full catalog, got %d providers and %d cookies", len(parsed.Providers), len(parsed.Cookies))
		}
		if parsed.Providers[0].Name != "OneTrust" || parsed.Providers[0].GlobalObject != "OneTrust" {
			t.Errorf("unexpected first provider %+v", parsed.Providers[0])
		}
	})
}

func TestMarkdownWriter(t *testing.T) {
	t.Parallel()

	t.Run("outcomes", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if err := NewMarkdownWriter(&buf).WriteOutcomes(createTestOutcomes()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		for _, want := range []string{
			"# CMP Scan Report",
			"## https://shop.example/",
			"### Cookiebot",
			"`euconsent-v2`",
			"IAB TCF 2.0",
			"https://consent.cookiebot.com/uc.js",
			"1 of 2 scan(s) failed",
			"net::ERR_NAME_NOT_RESOLVED",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q", want)
			}
		}
	})

	t.Run("catalog", func(t *testing.T) {
		t.Parallel()

		cat, err := catalog.Default()
		if err != nil {
			t.Fatalf("load catalog: %v", err)
		}
		var buf bytes.Buffer
		if err := NewMarkdownWriter(&buf).WriteCatalog(cat); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		output := buf.String()
		if !strings.Contains(output, "`window.CookieConsent`") {
			t.Error("expected Cookiebot global in catalog table")
		}
		if !strings.Contains(output, "`sp_*`") {
			t.Error("expected sp_* pattern in catalog table")
		}
	})
}

func TestTextWriter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := NewTextWriter(&buf).WriteOutcomes(createTestOutcomes()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := buf.String()
	for _, want := range []string{
		"URL: https://shop.example/",
		"Detected: Cookiebot",
		"Cookiebot global=true scripts=1",
		"- IAB TCF 2.0 (euconsent-v2)",
		"FAILED",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, output)
		}
	}
}

func TestNewWriterRejectsUnknownFormat(t *testing.T) {
	if _, err := NewWriter(Format("pdf"), &bytes.Buffer{}); !errors.Is(err, apperrors.ErrInvalidFormat) {
		t.Errorf("expected ErrInvalidFormat, got %v", err)
	}
}

func TestTruncateString(t *testing.T) {
	if got := truncateString("abcdefgh", 6); got != "abc..." {
		t.Errorf("expected abc..., got %s", got)
	}
	if got := truncateString("abc", 6); got != "abc" {
		t.Errorf("expected abc, got %s", got)
	}
}
