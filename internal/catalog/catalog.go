package catalog

import (
	"bytes"
	_ "embed"
	"fmt"
	"regexp"
	"strings"
	"sync"

	apperrors "github.com/khanhnv2901/cmpscan/internal/shared/errors"
	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRules []byte

// Provider is the declarative signature of a consent management platform.
type Provider struct {
	Name          string   `yaml:"name" json:"name"`
	GlobalObject  string   `yaml:"global,omitempty" json:"globalObject,omitempty"`
	ScriptSources []string `yaml:"scripts,omitempty" json:"scriptSources,omitempty"`
}

// MatchesScript reports whether src contains one of the provider's script sources.
func (p Provider) MatchesScript(src string) bool {
	for _, needle := range p.ScriptSources {
		if needle != "" && strings.Contains(src, needle) {
			return true
		}
	}
	return false
}

// CookiePattern maps a cookie name pattern to the provider that sets it.
type CookiePattern struct {
	Pattern  string `yaml:"pattern" json:"pattern"`
	Provider string `yaml:"provider" json:"provider"`

	re *regexp.Regexp
}

// Match reports whether a cookie key matches the pattern. The single '*' stands for
// any run of characters; the pattern is anchored at the start of the key only.
func (c CookiePattern) Match(key string) bool {
	re := c.re
	if re == nil {
		compiled, err := compilePattern(c.Pattern)
		if err != nil {
			return false
		}
		re = compiled
	}
	return re.MatchString(key)
}

// Catalog is the immutable rule set loaded once per process.
type Catalog struct {
	providers []Provider
	cookies   []CookiePattern
}

type ruleFile struct {
	Providers []Provider      `yaml:"providers"`
	Cookies   []CookiePattern `yaml:"cookies"`
}

var loadDefault = sync.OnceValues(func() (*Catalog, error) {
	return Load(defaultRules)
})

// Default returns the catalog embedded in the binary.
func Default() (*Catalog, error) {
	return loadDefault()
}

// Load parses and validates a YAML rule file.
func Load(data []byte) (*Catalog, error) {
	var file ruleFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, &CatalogError{Reason: fmt.Sprintf("decode rules: %v", err)}
	}
	return New(file.Providers, file.Cookies)
}

// New builds a catalog from in-memory rules, validating them the same way Load does.
func New(providers []Provider, cookies []CookiePattern) (*Catalog, error) {
	cat := &Catalog{
		providers: make([]Provider, 0, len(providers)),
		cookies:   make([]CookiePattern, 0, len(cookies)),
	}

	seen := make(map[string]struct{}, len(providers))
	for i, p := range providers {
		p.Name = strings.TrimSpace(p.Name)
		p.GlobalObject = strings.TrimSpace(p.GlobalObject)
		if p.Name == "" {
			return nil, &CatalogError{Section: "providers", Index: i, Reason: "name is empty"}
		}
		if _, dup := seen[p.Name]; dup {
			return nil, &CatalogError{Section: "providers", Index: i, Reason: fmt.Sprintf("duplicate provider %q", p.Name)}
		}
		seen[p.Name] = struct{}{}

		sources := make([]string, 0, len(p.ScriptSources))
		for _, src := range p.ScriptSources {
			if src = strings.TrimSpace(src); src != "" {
				sources = append(sources, src)
			}
		}
		p.ScriptSources = sources
		if p.GlobalObject == "" && len(p.ScriptSources) == 0 {
			return nil, &CatalogError{Section: "providers", Index: i, Reason: fmt.Sprintf("provider %q has no global object or script source", p.Name)}
		}
		cat.providers = append(cat.providers, p)
	}

	for i, c := range cookies {
		if c.Pattern == "" {
			return nil, &CatalogError{Section: "cookies", Index: i, Reason: "pattern is empty"}
		}
		if strings.TrimSpace(c.Provider) == "" {
			return nil, &CatalogError{Section: "cookies", Index: i, Reason: fmt.Sprintf("pattern %q has no provider", c.Pattern)}
		}
		if strings.Count(c.Pattern, "*") > 1 {
			return nil, &CatalogError{Section: "cookies", Index: i, Reason: fmt.Sprintf("pattern %q has more than one wildcard", c.Pattern)}
		}
		re, err := compilePattern(c.Pattern)
		if err != nil {
			return nil, &CatalogError{Section: "cookies", Index: i, Reason: err.Error()}
		}
		c.re = re
		cat.cookies = append(cat.cookies, c)
	}

	return cat, nil
}

// Providers returns the signatures in catalog order.
func (c *Catalog) Providers() []Provider {
	out := make([]Provider, len(c.providers))
	for i, p := range c.providers {
		p.ScriptSources = append([]string(nil), p.ScriptSources...)
		out[i] = p
	}
	return out
}

// CookiePatterns returns the cookie patterns in catalog order.
func (c *Catalog) CookiePatterns() []CookiePattern {
	return append([]CookiePattern(nil), c.cookies...)
}

// GlobalNames returns the distinct global object names referenced by providers.
func (c *Catalog) GlobalNames() []string {
	names := make([]string, 0)
	seen := make(map[string]struct{})
	for _, p := range c.providers {
		if p.GlobalObject == "" {
			continue
		}
		if _, ok := seen[p.GlobalObject]; ok {
			continue
		}
		seen[p.GlobalObject] = struct{}{}
		names = append(names, p.GlobalObject)
	}
	return names
}

func compilePattern(pattern string) (*regexp.Regexp, error) {
	parts := strings.SplitN(pattern, "*", 2)
	expr := "^" + regexp.QuoteMeta(parts[0])
	if len(parts) == 2 {
		expr += ".*" + regexp.QuoteMeta(parts[1])
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("compile pattern %q: %w", pattern, err)
	}
	return re, nil
}

// CatalogError reports malformed rule data. It is fatal at startup.
type CatalogError struct {
	Section string
	Index   int
	Reason  string
}

func (e *CatalogError) Error() string {
	if e.Section == "" {
		return fmt.Sprintf("rule catalog: %s", e.Reason)
	}
	return fmt.Sprintf("rule catalog: %s[%d]: %s", e.Section, e.Index, e.Reason)
}

func (e *CatalogError) Unwrap() error {
	return apperrors.ErrInvalidCatalog
}
