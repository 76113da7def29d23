package browsertest

import (
	"context"
	"sync"

	"github.com/khanhnv2901/cmpscan/internal/browser"
)

// Renderer serves canned pages by URL. Unknown URLs fail like an unreachable host.
type Renderer struct {
	Pages map[string]*Page
	Errs  map[string]error

	mu        sync.Mutex
	navigated []string
}

var _ browser.Renderer = (*Renderer)(nil)

func (r *Renderer) Navigate(ctx context.Context, url string) (browser.Page, error) {
	r.mu.Lock()
	r.navigated = append(r.navigated, url)
	r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, &browser.NavigationError{URL: url, Err: err}
	}
	if err := r.Errs[url]; err != nil {
		return nil, &browser.NavigationError{URL: url, Err: err}
	}
	page, ok := r.Pages[url]
	if !ok {
		return nil, &browser.NavigationError{URL: url, Err: errUnreachable}
	}
	if page.PageURL == "" {
		page.PageURL = url
	}
	return page, nil
}

// Navigated returns the URLs requested so far.
func (r *Renderer) Navigated() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.navigated...)
}

type unreachableError struct{}

func (unreachableError) Error() string { return "net::ERR_NAME_NOT_RESOLVED" }

var errUnreachable error = unreachableError{}
