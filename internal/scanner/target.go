package scanner

import (
	"fmt"
	"net/url"
	"strings"

	apperrors "github.com/khanhnv2901/cmpscan/internal/shared/errors"
)

// NormalizeURL turns user input into an absolute http(s) URL. Inputs without a
// scheme get https://:
//   - example.com            -> https://example.com/
//   - http://example.com/a   -> http://example.com/a
//   - example.com:8080/path  -> https://example.com:8080/path
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", apperrors.ErrMissingURL
	}

	parsed, err := url.Parse(raw)
	if err != nil || parsed.Scheme == "" || looksLikeHostPort(parsed) {
		parsed, err = url.Parse("https://" + raw)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperrors.ErrInvalidURL, err)
	}

	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
	default:
		return "", fmt.Errorf("%w: %s", apperrors.ErrUnsupportedURL, parsed.Scheme)
	}
	if parsed.Hostname() == "" {
		return "", fmt.Errorf("%w: %q has no host", apperrors.ErrInvalidURL, raw)
	}

	parsed.Scheme = strings.ToLower(parsed.Scheme)
	if parsed.Path == "" {
		parsed.Path = "/"
	}
	return parsed.String(), nil
}

// looksLikeHostPort catches inputs such as example.com:8080 or localhost:3000 that
// url.Parse reads as a scheme followed by an opaque part.
func looksLikeHostPort(u *url.URL) bool {
	if strings.Contains(u.Scheme, ".") {
		return true
	}
	return u.Host == "" && u.Opaque != "" && u.Opaque[0] >= '0' && u.Opaque[0] <= '9'
}
