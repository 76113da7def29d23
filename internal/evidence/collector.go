package evidence

import (
	"context"
	"errors"
	"strings"

	"github.com/khanhnv2901/cmpscan/internal/browser"
	consts "github.com/khanhnv2901/cmpscan/internal/shared/constants"
	apperrors "github.com/khanhnv2901/cmpscan/internal/shared/errors"
	"go.uber.org/zap"
)

// Collector reads raw signals from a page. Every step is isolated: a failing step
// is logged and recorded in Raw.Failures, and collection moves on.
type Collector struct {
	// Globals lists the window properties whose truthiness is recorded.
	Globals []string
	// IncludeHTTPOnlyCookies adds cookies hidden from document.cookie.
	IncludeHTTPOnlyCookies bool
	Logger                 *zap.Logger
}

// Collect gathers scripts, cookies, storage, IndexedDB names and globals.
func (c *Collector) Collect(ctx context.Context, page browser.Page) *Raw {
	raw := NewRaw(page.URL())
	logger := c.logger().With(zap.String("url", raw.URL))

	fail := func(field string, err error) {
		logger.Warn("evidence collection failed", zap.String("field", field), zap.Error(err))
		raw.Failures = append(raw.Failures, &CollectionError{Field: field, Err: err})
	}

	if scripts, err := page.Scripts(ctx); err != nil {
		fail("scripts", err)
	} else {
		raw.Scripts = append(raw.Scripts, scripts...)
	}

	c.collectCookies(ctx, page, raw, fail)
	raw.LocalStorage = c.collectStorage(ctx, page, browser.LocalStorage, fail)
	raw.SessionStorage = c.collectStorage(ctx, page, browser.SessionStorage, fail)

	if names, err := page.IndexedDBNames(ctx); err != nil {
		if errors.Is(err, apperrors.ErrUnsupported) {
			logger.Debug("indexedDB enumeration unsupported")
		} else {
			fail("indexedDB", err)
		}
	} else {
		for _, name := range names {
			if Relevant.MatchString(strings.ToLower(name)) {
				raw.IndexedDB = append(raw.IndexedDB, name)
			}
		}
	}

	for _, name := range c.Globals {
		present, err := page.HasGlobal(ctx, name)
		if err != nil {
			fail("global:"+name, err)
			continue
		}
		raw.Globals[name] = present
	}

	logger.Debug("evidence collected",
		zap.Int("scripts", len(raw.Scripts)),
		zap.Int("cookies", len(raw.Cookies)),
		zap.Int("local_storage", len(raw.LocalStorage)),
		zap.Int("session_storage", len(raw.SessionStorage)),
		zap.Int("indexed_db", len(raw.IndexedDB)),
		zap.Int("failures", len(raw.Failures)),
	)
	return raw
}

func (c *Collector) collectCookies(ctx context.Context, page browser.Page, raw *Raw, fail func(string, error)) {
	header, err := page.DocumentCookie(ctx)
	if err != nil {
		fail("cookies", err)
	} else {
		raw.Cookies = append(raw.Cookies, ParseCookieHeader(header)...)
	}

	if !c.IncludeHTTPOnlyCookies {
		return
	}
	jar, err := page.BrowserCookies(ctx)
	if err != nil {
		fail("browser_cookies", err)
		return
	}
	seen := make(map[string]struct{}, len(raw.Cookies))
	for _, ck := range raw.Cookies {
		seen[ck.Key] = struct{}{}
	}
	for _, ck := range jar {
		if _, ok := seen[ck.Name]; ok || ck.Name == "" {
			continue
		}
		seen[ck.Name] = struct{}{}
		raw.Cookies = append(raw.Cookies, Cookie{Key: ck.Name, Value: ck.Value})
	}
}

func (c *Collector) collectStorage(ctx context.Context, page browser.Page, kind browser.StorageKind, fail func(string, error)) map[string]string {
	out := map[string]string{}
	keys, err := page.StorageKeys(ctx, kind)
	if err != nil {
		fail(string(kind), err)
		return out
	}
	for _, key := range keys {
		if !Relevant.MatchString(strings.ToLower(key)) {
			continue
		}
		value, err := page.StorageItem(ctx, kind, key)
		if err != nil {
			fail(string(kind)+":"+key, err)
			value = consts.UnreadableStorageValue
		}
		out[key] = value
	}
	return out
}

func (c *Collector) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}
