// Package evidence gathers the raw consent signals of a rendered page without
// judging which provider they belong to.
package evidence

import (
	"fmt"
	"regexp"
)

// Relevant matches storage keys and IndexedDB names worth reporting.
var Relevant = regexp.MustCompile(`(?i)consent|privacy|gdpr|ccpa|cookie|cmp`)

// Cookie is one key/value pair of the page's cookie jar.
type Cookie struct {
	Key   string
	Value string
}

// Raw is the per-scan evidence snapshot. It is discarded once the report is built.
type Raw struct {
	URL            string
	Scripts        []string
	Cookies        []Cookie
	LocalStorage   map[string]string
	SessionStorage map[string]string
	IndexedDB      []string
	// Globals holds the truthiness of each requested global. A name whose lookup
	// failed is absent.
	Globals  map[string]bool
	Failures []error
}

// NewRaw returns an empty snapshot with every collection initialized.
func NewRaw(url string) *Raw {
	return &Raw{
		URL:            url,
		Scripts:        []string{},
		Cookies:        []Cookie{},
		LocalStorage:   map[string]string{},
		SessionStorage: map[string]string{},
		IndexedDB:      []string{},
		Globals:        map[string]bool{},
	}
}

// CollectionError records a collection step that failed. The field it names is
// left empty or partial.
type CollectionError struct {
	Field string
	Err   error
}

func (e *CollectionError) Error() string {
	return fmt.Sprintf("collect %s: %v", e.Field, e.Err)
}

func (e *CollectionError) Unwrap() error {
	return e.Err
}
