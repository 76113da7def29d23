//go:build e2e

package browser

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

const consentPage = `<!doctype html>
<html>
<head>
<script src="/cdn/uc.js"></script>
<script>
window.CookieConsent = {};
document.cookie = "euconsent-v2=ABC123";
localStorage.setItem("cmp_state", "accepted");
localStorage.setItem("theme", "dark");
sessionStorage.setItem("privacy_banner", "shown");
</script>
</head>
<body>hello</body>
</html>`

func TestChromeCollectsPageState(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, consentPage)
	})
	mux.HandleFunc("/cdn/uc.js", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/javascript")
		fmt.Fprint(w, "// consent")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	opts := DefaultOptions()
	opts.IdleTimeout = 2 * time.Second
	chrome, err := NewChrome(ctx, opts, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewChrome: %v", err)
	}
	defer chrome.Close()

	page, err := chrome.Navigate(ctx, srv.URL)
	if err != nil {
		t.Fatalf("Navigate: %v", err)
	}
	defer page.Close()

	t.Run("scripts", func(t *testing.T) {
		scripts, err := page.Scripts(ctx)
		if err != nil {
			t.Fatalf("Scripts: %v", err)
		}
		if len(scripts) != 1 || scripts[0] != srv.URL+"/cdn/uc.js" {
			t.Errorf("unexpected scripts %v", scripts)
		}
	})

	t.Run("cookie", func(t *testing.T) {
		cookie, err := page.DocumentCookie(ctx)
		if err != nil {
			t.Fatalf("DocumentCookie: %v", err)
		}
		if cookie != "euconsent-v2=ABC123" {
			t.Errorf("unexpected document.cookie %q", cookie)
		}
	})

	t.Run("storage", func(t *testing.T) {
		keys, err := page.StorageKeys(ctx, LocalStorage)
		if err != nil {
			t.Fatalf("StorageKeys: %v", err)
		}
		if len(keys) != 2 {
			t.Fatalf("expected 2 localStorage keys, got %v", keys)
		}
		value, err := page.StorageItem(ctx, LocalStorage, "cmp_state")
		if err != nil || value != "accepted" {
			t.Errorf("StorageItem = %q, %v", value, err)
		}
	})

	t.Run("globals", func(t *testing.T) {
		present, err := page.HasGlobal(ctx, "CookieConsent")
		if err != nil || !present {
			t.Errorf("HasGlobal(CookieConsent) = %v, %v", present, err)
		}
		present, err = page.HasGlobal(ctx, "OneTrust")
		if err != nil || present {
			t.Errorf("HasGlobal(OneTrust) = %v, %v", present, err)
		}
	})

	t.Run("isolated contexts", func(t *testing.T) {
		other, err := chrome.Navigate(ctx, srv.URL+"/cdn/uc.js")
		if err != nil {
			t.Fatalf("Navigate: %v", err)
		}
		defer other.Close()
		keys, err := other.StorageKeys(ctx, SessionStorage)
		if err != nil {
			t.Fatalf("StorageKeys: %v", err)
		}
		if len(keys) != 0 {
			t.Errorf("expected fresh session storage, got %v", keys)
		}
	})
}

func TestChromeNavigationFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	chrome, err := NewChrome(ctx, DefaultOptions(), zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewChrome: %v", err)
	}
	defer chrome.Close()

	_, err = chrome.Navigate(ctx, "http://nonexistent.invalid/")
	if !IsNavigationError(err) {
		t.Fatalf("expected NavigationError, got %v", err)
	}
}
