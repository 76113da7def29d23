// Package browser provides the render capability the scanner depends on: navigate to
// a URL and answer structured questions about the live document.
//
// Page requests are fixed functions evaluated in the page with JSON arguments. No
// request ever builds JavaScript from catalog data.
package browser

import (
	"context"
	"errors"
	"fmt"
)

// StorageKind selects a Web Storage area.
type StorageKind string

const (
	LocalStorage   StorageKind = "localStorage"
	SessionStorage StorageKind = "sessionStorage"
)

// Cookie is a cookie visible to the browser for the page URL.
type Cookie struct {
	Name     string
	Value    string
	HTTPOnly bool
}

// Renderer loads pages. Each returned Page is isolated from pages of other scans.
type Renderer interface {
	Navigate(ctx context.Context, url string) (Page, error)
}

// Page is a handle on a rendered document.
type Page interface {
	// URL returns the URL the page was navigated to.
	URL() string
	// Scripts returns the resolved src of every <script src> in document order.
	Scripts(ctx context.Context) ([]string, error)
	// DocumentCookie returns document.cookie.
	DocumentCookie(ctx context.Context) (string, error)
	// BrowserCookies returns every cookie the browser holds for the page URL,
	// including HttpOnly cookies.
	BrowserCookies(ctx context.Context) ([]Cookie, error)
	StorageKeys(ctx context.Context, kind StorageKind) ([]string, error)
	StorageItem(ctx context.Context, kind StorageKind, key string) (string, error)
	// IndexedDBNames returns errors.ErrUnsupported when the page cannot enumerate
	// its databases.
	IndexedDBNames(ctx context.Context) ([]string, error)
	// HasGlobal reports whether window[name] is truthy.
	HasGlobal(ctx context.Context, name string) (bool, error)
	Close() error
}

// NavigationError means the target could not be loaded in time.
type NavigationError struct {
	URL string
	Err error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigate to %s: %v", e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error {
	return e.Err
}

// IsNavigationError reports whether err came from a failed page load.
func IsNavigationError(err error) bool {
	var navErr *NavigationError
	return errors.As(err, &navErr)
}
