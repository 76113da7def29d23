package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func serveWithID(t *testing.T, clientID string) (ctxID, headerID string) {
	t.Helper()
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxID = GetRequestID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	if clientID != "" {
		req.Header.Set(HeaderRequestID, clientID)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return ctxID, rec.Header().Get(HeaderRequestID)
}

func TestRequestID(t *testing.T) {
	t.Run("generates request ID when not provided", func(t *testing.T) {
		ctxID, headerID := serveWithID(t, "")
		if len(ctxID) != 16 {
			t.Errorf("expected request ID length 16, got %d", len(ctxID))
		}
		if headerID != ctxID {
			t.Errorf("expected header %q to match context %q", headerID, ctxID)
		}
	})

	t.Run("uses client-provided request ID", func(t *testing.T) {
		ctxID, headerID := serveWithID(t, "client-request-123")
		if ctxID != "client-request-123" {
			t.Errorf("expected request ID %q, got %q", "client-request-123", ctxID)
		}
		if headerID != "client-request-123" {
			t.Errorf("expected X-Request-ID header %q, got %q", "client-request-123", headerID)
		}
	})

	t.Run("replaces malformed client IDs", func(t *testing.T) {
		for _, bad := range []string{
			"has space",
			"line\nbreak",
			strings.Repeat("a", 65),
			"<script>",
		} {
			ctxID, _ := serveWithID(t, bad)
			if ctxID == bad {
				t.Errorf("expected %q to be replaced", bad)
			}
			if len(ctxID) != 16 {
				t.Errorf("expected generated ID for %q, got %q", bad, ctxID)
			}
		}
	})

	t.Run("generates unique IDs for different requests", func(t *testing.T) {
		ids := make(map[string]bool)
		for i := 0; i < 100; i++ {
			id, _ := serveWithID(t, "")
			ids[id] = true
		}
		if len(ids) != 100 {
			t.Errorf("expected 100 unique IDs, got %d", len(ids))
		}
	})
}

func TestGetRequestID(t *testing.T) {
	if id := GetRequestID(context.Background()); id != "" {
		t.Errorf("expected empty string, got %q", id)
	}
	if id := GetRequestID(WithRequestID(context.Background(), "abc")); id != "abc" {
		t.Errorf("expected abc, got %q", id)
	}
}

func TestGenerateRequestID(t *testing.T) {
	id := generateRequestID()
	if len(id) != 16 {
		t.Errorf("expected length 16, got %d", len(id))
	}
	for _, c := range id {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			t.Errorf("expected hex character, got %c", c)
		}
	}
	if generateRequestID() == id {
		t.Error("generateRequestID returned same ID twice")
	}
}
