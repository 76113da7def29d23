// Package browsertest provides an in-memory browser.Page for tests.
package browsertest

import (
	"context"
	"sort"
	"sync"

	"github.com/khanhnv2901/cmpscan/internal/browser"
	apperrors "github.com/khanhnv2901/cmpscan/internal/shared/errors"
)

// Page is a static snapshot of a rendered document. Err* fields inject failures.
type Page struct {
	PageURL      string
	ScriptURLs   []string
	Cookie       string
	Cookies      []browser.Cookie
	Local        map[string]string
	Session      map[string]string
	LocalOrder   []string // key order; defaults to sorted map keys
	SessionOrder []string
	Databases    []string
	NoIndexedDB  bool
	Globals      map[string]bool
	ScriptsErr   error
	CookieErr    error
	BrowserErr   error
	StorageErr   map[browser.StorageKind]error
	ItemErr      map[string]error // keyed by storage key
	IndexedDBErr error
	GlobalErr    map[string]error

	mu     sync.Mutex
	closed bool
}

var _ browser.Page = (*Page)(nil)

func (p *Page) URL() string { return p.PageURL }

func (p *Page) Scripts(ctx context.Context) ([]string, error) {
	if p.ScriptsErr != nil {
		return nil, p.ScriptsErr
	}
	return append([]string(nil), p.ScriptURLs...), nil
}

func (p *Page) DocumentCookie(ctx context.Context) (string, error) {
	return p.Cookie, p.CookieErr
}

func (p *Page) BrowserCookies(ctx context.Context) ([]browser.Cookie, error) {
	if p.BrowserErr != nil {
		return nil, p.BrowserErr
	}
	return append([]browser.Cookie(nil), p.Cookies...), nil
}

func (p *Page) StorageKeys(ctx context.Context, kind browser.StorageKind) ([]string, error) {
	if err := p.StorageErr[kind]; err != nil {
		return nil, err
	}
	store, order := p.store(kind)
	if order != nil {
		return append([]string(nil), order...), nil
	}
	keys := make([]string, 0, len(store))
	for k := range store {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (p *Page) StorageItem(ctx context.Context, kind browser.StorageKind, key string) (string, error) {
	if err := p.ItemErr[key]; err != nil {
		return "", err
	}
	store, _ := p.store(kind)
	return store[key], nil
}

func (p *Page) IndexedDBNames(ctx context.Context) ([]string, error) {
	if p.NoIndexedDB {
		return nil, apperrors.ErrUnsupported
	}
	if p.IndexedDBErr != nil {
		return nil, p.IndexedDBErr
	}
	return append([]string(nil), p.Databases...), nil
}

func (p *Page) HasGlobal(ctx context.Context, name string) (bool, error) {
	if err := p.GlobalErr[name]; err != nil {
		return false, err
	}
	return p.Globals[name], nil
}

func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Closed reports whether Close was called.
func (p *Page) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Page) store(kind browser.StorageKind) (map[string]string, []string) {
	if kind == browser.SessionStorage {
		return p.Session, p.SessionOrder
	}
	return p.Local, p.LocalOrder
}
