package browser

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	consts "github.com/khanhnv2901/cmpscan/internal/shared/constants"
	apperrors "github.com/khanhnv2901/cmpscan/internal/shared/errors"
	"go.uber.org/zap"
)

// Options configures the headless Chrome renderer.
type Options struct {
	Headless          bool
	NoSandbox         bool
	ExecPath          string // empty = chromedp discovery
	UserAgent         string
	NavigationTimeout time.Duration
	IdleTimeout       time.Duration // wait for networkIdle after load; 0 skips the wait
}

// DefaultOptions runs headless without the sandbox and gives a page 30s to load.
func DefaultOptions() Options {
	return Options{
		Headless:          true,
		NoSandbox:         true,
		NavigationTimeout: consts.DefaultNavigationTimeout,
		IdleTimeout:       consts.DefaultIdleTimeout,
	}
}

// Chrome is a Renderer backed by one headless Chrome process. Every Navigate call
// opens a tab in a fresh browser context, so cookies and storage never leak between
// scans.
type Chrome struct {
	opts          Options
	logger        *zap.Logger
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	closed    atomic.Bool
	closeOnce sync.Once
}

// NewChrome launches the browser. The caller owns the returned handle and must Close it.
func NewChrome(ctx context.Context, opts Options, logger *zap.Logger) (*Chrome, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = consts.DefaultNavigationTimeout
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", opts.NoSandbox),
	)
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	sugar := logger.Sugar()
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(sugar.Debugf),
		chromedp.WithErrorf(sugar.Debugf),
	)

	// The first Run starts the browser process.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	logger.Info("browser started",
		zap.Bool("headless", opts.Headless),
		zap.String("exec_path", opts.ExecPath),
	)

	return &Chrome{
		opts:          opts,
		logger:        logger,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}, nil
}

// Navigate opens url in an isolated tab and waits for the load event, then for
// network idle up to IdleTimeout.
func (c *Chrome) Navigate(ctx context.Context, url string) (Page, error) {
	if c.closed.Load() {
		return nil, &NavigationError{URL: url, Err: apperrors.ErrBrowserClosed}
	}

	tabCtx, tabCancel := chromedp.NewContext(c.browserCtx, chromedp.WithNewBrowserContext())
	stop := context.AfterFunc(ctx, tabCancel)
	p := &chromePage{url: url, tabCtx: tabCtx, tabCancel: tabCancel, stop: stop}

	// Attach the target to tabCtx before any timeout-bound Run, otherwise the
	// timeout would close the tab.
	if err := chromedp.Run(tabCtx); err != nil {
		_ = p.Close()
		return nil, &NavigationError{URL: url, Err: err}
	}

	idle := make(chan struct{})
	var idleOnce sync.Once
	var started atomic.Bool
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		e, ok := ev.(*page.EventLifecycleEvent)
		if !ok {
			return
		}
		switch e.Name {
		case "init":
			started.Store(true)
		case "networkIdle":
			if started.Load() {
				idleOnce.Do(func() { close(idle) })
			}
		}
	})

	navCtx, navCancel := context.WithTimeout(tabCtx, c.opts.NavigationTimeout)
	defer navCancel()

	start := time.Now()
	if err := chromedp.Run(navCtx,
		page.SetLifecycleEventsEnabled(true),
		chromedp.Navigate(url),
	); err != nil {
		_ = p.Close()
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		c.logger.Error("navigation failed", zap.String("url", url), zap.Error(err))
		return nil, &NavigationError{URL: url, Err: err}
	}

	if c.opts.IdleTimeout > 0 {
		timer := time.NewTimer(c.opts.IdleTimeout)
		defer timer.Stop()
		select {
		case <-idle:
		case <-timer.C:
			c.logger.Debug("network idle not reached, continuing",
				zap.String("url", url),
				zap.Duration("idle_timeout", c.opts.IdleTimeout),
			)
		case <-navCtx.Done():
			if ctxErr := ctx.Err(); ctxErr != nil {
				_ = p.Close()
				return nil, &NavigationError{URL: url, Err: ctxErr}
			}
			c.logger.Debug("navigation budget spent waiting for network idle", zap.String("url", url))
		}
	}

	c.logger.Debug("page loaded", zap.String("url", url), zap.Duration("duration", time.Since(start)))
	return p, nil
}

// Ready reports whether the browser can still open pages.
func (c *Chrome) Ready() error {
	if c.closed.Load() {
		return apperrors.ErrBrowserClosed
	}
	if err := c.browserCtx.Err(); err != nil {
		return fmt.Errorf("browser context: %w", err)
	}
	return nil
}

// Close shuts the browser down. Pages still open are closed with it.
func (c *Chrome) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		err = chromedp.Cancel(c.browserCtx)
		c.browserCancel()
		c.allocCancel()
	})
	return err
}

const (
	scriptsFn = `function() {
	return Array.from(document.querySelectorAll('script[src]'), function(s) { return s.src; });
}`
	storageKeysFn = `function(kind) {
	var store = window[kind];
	var keys = [];
	for (var i = 0; i < store.length; i++) {
		keys.push(store.key(i));
	}
	return keys;
}`
	storageItemFn = `function(kind, key) {
	var value = window[kind].getItem(key);
	return value === null ? "" : String(value);
}`
	indexedDBFn = `async function() {
	if (typeof indexedDB === 'undefined' || typeof indexedDB.databases !== 'function') {
		return {supported: false, names: []};
	}
	var dbs = await indexedDB.databases();
	return {supported: true, names: dbs.map(function(db) { return db.name || ""; })};
}`
	hasGlobalFn = `function(name) {
	return !!window[name];
}`
)

type chromePage struct {
	url       string
	tabCtx    context.Context
	tabCancel context.CancelFunc
	stop      func() bool
	closeOnce sync.Once
}

func (p *chromePage) URL() string {
	return p.url
}

// run executes actions on the tab while honoring the caller's ctx. Cancelling the
// derived context does not close the tab.
func (p *chromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.tabCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(runCtx, actions...)
}

func (p *chromePage) Scripts(ctx context.Context) ([]string, error) {
	var scripts []string
	if err := p.run(ctx, chromedp.CallFunctionOn(scriptsFn, &scripts, nil)); err != nil {
		return nil, fmt.Errorf("list scripts: %w", err)
	}
	return scripts, nil
}

func (p *chromePage) DocumentCookie(ctx context.Context) (string, error) {
	var cookie string
	if err := p.run(ctx, chromedp.Evaluate(`document.cookie`, &cookie)); err != nil {
		return "", fmt.Errorf("read document.cookie: %w", err)
	}
	return cookie, nil
}

func (p *chromePage) BrowserCookies(ctx context.Context) ([]Cookie, error) {
	var cookies []Cookie
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var location string
		if err := chromedp.Location(&location).Do(ctx); err != nil {
			return err
		}
		raw, err := network.GetCookies().WithURLs([]string{location}).Do(ctx)
		if err != nil {
			return err
		}
		for _, c := range raw {
			cookies = append(cookies, Cookie{Name: c.Name, Value: c.Value, HTTPOnly: c.HTTPOnly})
		}
		return nil
	}))
	if err != nil {
		return nil, fmt.Errorf("read browser cookies: %w", err)
	}
	return cookies, nil
}

func (p *chromePage) StorageKeys(ctx context.Context, kind StorageKind) ([]string, error) {
	var keys []string
	if err := p.run(ctx, chromedp.CallFunctionOn(storageKeysFn, &keys, nil, string(kind))); err != nil {
		return nil, fmt.Errorf("list %s keys: %w", kind, err)
	}
	return keys, nil
}

func (p *chromePage) StorageItem(ctx context.Context, kind StorageKind, key string) (string, error) {
	var value string
	if err := p.run(ctx, chromedp.CallFunctionOn(storageItemFn, &value, nil, string(kind), key)); err != nil {
		return "", fmt.Errorf("read %s[%q]: %w", kind, key, err)
	}
	return value, nil
}

func (p *chromePage) IndexedDBNames(ctx context.Context) ([]string, error) {
	var res struct {
		Supported bool     `json:"supported"`
		Names     []string `json:"names"`
	}
	awaitPromise := func(params *runtime.CallFunctionOnParams) *runtime.CallFunctionOnParams {
		return params.WithAwaitPromise(true)
	}
	if err := p.run(ctx, chromedp.CallFunctionOn(indexedDBFn, &res, awaitPromise)); err != nil {
		return nil, fmt.Errorf("list indexedDB databases: %w", err)
	}
	if !res.Supported {
		return nil, apperrors.ErrUnsupported
	}
	return res.Names, nil
}

func (p *chromePage) HasGlobal(ctx context.Context, name string) (bool, error) {
	var present bool
	if err := p.run(ctx, chromedp.CallFunctionOn(hasGlobalFn, &present, nil, name)); err != nil {
		return false, fmt.Errorf("check global %s: %w", name, err)
	}
	return present, nil
}

func (p *chromePage) Close() error {
	p.closeOnce.Do(func() {
		p.stop()
		p.tabCancel()
	})
	return nil
}
