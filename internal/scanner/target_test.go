package scanner

import (
	"errors"
	"testing"

	apperrors "github.com/khanhnv2901/cmpscan/internal/shared/errors"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr error
	}{
		{input: "example.com", want: "https://example.com/"},
		{input: "  https://example.com/path?q=1 ", want: "https://example.com/path?q=1"},
		{input: "http://example.com", want: "http://example.com/"},
		{input: "HTTPS://Example.com/a", want: "https://Example.com/a"},
		{input: "example.com:8080/path", want: "https://example.com:8080/path"},
		{input: "localhost:3000", want: "https://localhost:3000/"},
		{input: "", wantErr: apperrors.ErrMissingURL},
		{input: "   ", wantErr: apperrors.ErrMissingURL},
		{input: "ftp://example.com", wantErr: apperrors.ErrUnsupportedURL},
		{input: "javascript:alert(1)", wantErr: apperrors.ErrUnsupportedURL},
		{input: "https://", wantErr: apperrors.ErrInvalidURL},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := NormalizeURL(tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("NormalizeURL(%q) error = %v, want %v", tt.input, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("NormalizeURL(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("NormalizeURL(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
