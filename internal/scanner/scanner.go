// Package scanner runs one CMP detection scan end to end: normalize the target,
// render it, collect evidence and hand it to the detection engine.
package scanner

import (
	"context"
	"fmt"
	"time"

	"github.com/khanhnv2901/cmpscan/internal/browser"
	"github.com/khanhnv2901/cmpscan/internal/catalog"
	"github.com/khanhnv2901/cmpscan/internal/detect"
	"github.com/khanhnv2901/cmpscan/internal/evidence"
	"go.uber.org/zap"
)

// ScanFailedMessage is the public message of a failed scan.
const ScanFailedMessage = "Failed to scan the website"

// ScanError reports a scan that could not produce a result.
type ScanError struct {
	URL string
	Err error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ScanFailedMessage, e.URL, e.Err)
}

func (e *ScanError) Unwrap() error {
	return e.Err
}

// Option customizes a Scanner.
type Option func(*Scanner)

// WithLogger sets the scanner logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Scanner) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithHTTPOnlyCookies also reads cookies that document.cookie hides.
func WithHTTPOnlyCookies(enabled bool) Option {
	return func(s *Scanner) {
		s.httpOnly = enabled
	}
}

// Scanner is safe for concurrent use as long as its Renderer is.
type Scanner struct {
	renderer browser.Renderer
	catalog  *catalog.Catalog
	logger   *zap.Logger
	httpOnly bool

	engine    *detect.Engine
	collector *evidence.Collector
}

// New builds a Scanner over renderer using the rules of cat.
func New(renderer browser.Renderer, cat *catalog.Catalog, opts ...Option) *Scanner {
	s := &Scanner{
		renderer: renderer,
		catalog:  cat,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.engine = detect.NewEngine(cat, s.logger)
	s.collector = &evidence.Collector{
		Globals:                cat.GlobalNames(),
		IncludeHTTPOnlyCookies: s.httpOnly,
		Logger:                 s.logger,
	}
	return s
}

// Catalog returns the rules the scanner detects with.
func (s *Scanner) Catalog() *catalog.Catalog {
	return s.catalog
}

// Scan detects the CMPs present on rawURL. Input errors from NormalizeURL are
// returned unchanged; a page that cannot be rendered yields a *ScanError. Evidence
// that cannot be read is skipped and never fails the scan.
func (s *Scanner) Scan(ctx context.Context, rawURL string) (*detect.Result, error) {
	target, err := NormalizeURL(rawURL)
	if err != nil {
		return nil, err
	}

	logger := s.logger.With(zap.String("url", target))
	start := time.Now()

	page, err := s.renderer.Navigate(ctx, target)
	if err != nil {
		logger.Error("scan failed", zap.Error(err))
		return nil, &ScanError{URL: target, Err: err}
	}
	defer func() {
		if cerr := page.Close(); cerr != nil {
			logger.Debug("close page", zap.Error(cerr))
		}
	}()

	raw := s.collector.Collect(ctx, page)
	if err := ctx.Err(); err != nil {
		return nil, &ScanError{URL: target, Err: err}
	}
	res := s.engine.Detect(raw)

	logger.Info("scan completed",
		zap.Strings("detected", res.DetectedCMPs),
		zap.Int("cookies", len(res.FoundCookies)),
		zap.Int("collection_failures", len(raw.Failures)),
		zap.Duration("duration", time.Since(start)),
	)
	return res, nil
}
