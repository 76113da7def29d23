package errors

import "errors"

// Domain errors
var (
	// Target errors
	ErrMissingURL     = errors.New("URL parameter is required")
	ErrInvalidURL     = errors.New("invalid URL")
	ErrUnsupportedURL = errors.New("only http and https URLs can be scanned")

	// Browser errors
	ErrUnsupported   = errors.New("capability not supported by the page")
	ErrBrowserClosed = errors.New("browser is closed")

	// Job errors
	ErrJobNotFound = errors.New("job not found")

	// Catalog errors
	ErrInvalidCatalog = errors.New("invalid rule catalog")

	// Validation errors
	ErrInvalidFormat      = errors.New("unsupported output format")
	ErrInvalidConcurrency = errors.New("concurrency must be positive")
	ErrInvalidTimeout     = errors.New("timeout must be positive")
)
