// Package detect matches collected page evidence against the rule catalog and
// assembles the detection report.
package detect

import (
	"fmt"
	"strings"

	"github.com/khanhnv2901/cmpscan/internal/catalog"
	"github.com/khanhnv2901/cmpscan/internal/evidence"
	"go.uber.org/zap"
)

// Engine applies catalog signatures to raw evidence. It holds no per-scan state and
// is safe for concurrent use.
type Engine struct {
	providers []catalog.Provider
	cookies   []catalog.CookiePattern
	logger    *zap.Logger
}

// NewEngine snapshots the catalog rules.
func NewEngine(cat *catalog.Catalog, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		providers: cat.Providers(),
		cookies:   cat.CookiePatterns(),
		logger:    logger,
	}
}

// Detect evaluates every provider in catalog order, matches cookies and builds the
// report. The same Raw always yields the same Result.
func (e *Engine) Detect(raw *evidence.Raw) *Result {
	if raw == nil {
		raw = evidence.NewRaw("")
	}

	detected := make([]string, 0)
	details := make(map[string]ProviderEvidence)
	for _, p := range e.providers {
		pe, ok, err := e.evaluate(p, raw)
		if err != nil {
			e.logger.Warn("provider predicate failed",
				zap.String("url", raw.URL),
				zap.String("provider", p.Name),
				zap.Error(err),
			)
			continue
		}
		if !ok {
			continue
		}
		detected = append(detected, p.Name)
		details[p.Name] = pe
	}

	found, cookieDetails := e.matchCookies(raw.Cookies)
	return Assemble(detected, details, found, cookieDetails, raw.Scripts)
}

// evaluate runs one provider's predicate. A panic is turned into a PredicateError
// so the remaining providers are still evaluated.
func (e *Engine) evaluate(p catalog.Provider, raw *evidence.Raw) (pe ProviderEvidence, ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PredicateError{Provider: p.Name, Err: fmt.Errorf("panic: %v", r)}
			ok = false
		}
	}()

	globalPresent := false
	if p.GlobalObject != "" {
		present, known := raw.Globals[p.GlobalObject]
		if !known {
			e.logger.Debug("global object state unknown",
				zap.String("provider", p.Name),
				zap.String("global", p.GlobalObject),
			)
		}
		globalPresent = present
	}

	scriptHit := false
	for _, src := range raw.Scripts {
		if p.MatchesScript(src) {
			scriptHit = true
			break
		}
	}

	if !globalPresent && !scriptHit {
		return ProviderEvidence{}, false, nil
	}

	needle := strings.ToLower(p.Name)
	pe = newProviderEvidence()
	pe.GlobalObject = globalPresent

	seen := make(map[string]struct{})
	for _, src := range raw.Scripts {
		if !strings.Contains(src, needle) {
			continue
		}
		if _, dup := seen[src]; dup {
			continue
		}
		seen[src] = struct{}{}
		pe.Scripts = append(pe.Scripts, src)
	}
	for key, value := range raw.LocalStorage {
		if strings.Contains(key, needle) {
			pe.Storage.LocalStorage[key] = value
		}
	}
	for key, value := range raw.SessionStorage {
		if strings.Contains(key, needle) {
			pe.Storage.SessionStorage[key] = value
		}
	}
	for _, name := range raw.IndexedDB {
		if strings.Contains(name, needle) {
			pe.Storage.IndexedDB = append(pe.Storage.IndexedDB, name)
		}
	}
	return pe, true, nil
}

// matchCookies tests every cookie against every pattern. Each match adds a
// "Provider (key)" entry; cookieDetails keeps the first provider that matched a key.
func (e *Engine) matchCookies(cookies []evidence.Cookie) ([]string, map[string]CookieDetail) {
	found := make([]string, 0)
	details := make(map[string]CookieDetail)
	for _, ck := range cookies {
		for _, pattern := range e.cookies {
			if !pattern.Match(ck.Key) {
				continue
			}
			found = append(found, fmt.Sprintf("%s (%s)", pattern.Provider, ck.Key))
			if _, exists := details[ck.Key]; !exists {
				details[ck.Key] = CookieDetail{Provider: pattern.Provider, Value: ck.Value}
			}
		}
	}
	return found, details
}

// PredicateError reports a provider whose detection predicate could not be evaluated.
// The provider is treated as not detected.
type PredicateError struct {
	Provider string
	Err      error
}

func (e *PredicateError) Error() string {
	return fmt.Sprintf("detect %s: %v", e.Provider, e.Err)
}

func (e *PredicateError) Unwrap() error {
	return e.Err
}
