package detect

import "strings"

// scriptKeywords select the scripts listed in allScripts. Unlike evidence.Relevant
// the match is case-sensitive.
var scriptKeywords = []string{"consent", "cookie", "privacy", "cmp"}

// RelevantScripts keeps the scripts whose URL contains a consent keyword, in order.
func RelevantScripts(scripts []string) []string {
	out := make([]string, 0)
	for _, src := range scripts {
		for _, kw := range scriptKeywords {
			if strings.Contains(src, kw) {
				out = append(out, src)
				break
			}
		}
	}
	return out
}

// Assemble merges detections, cookie matches and page scripts into a Result. Every
// detected provider gets exactly one detail entry, and details for providers that
// were not detected are dropped.
func Assemble(detected []string, details map[string]ProviderEvidence, found []string, cookieDetails map[string]CookieDetail, scripts []string) *Result {
	res := &Result{
		DetectedCMPs: make([]string, 0, len(detected)),
		FoundCookies: append(make([]string, 0, len(found)), found...),
		Evidence: Evidence{
			DetectionDetails: make(map[string]ProviderEvidence, len(detected)),
			CookieDetails:    make(map[string]CookieDetail, len(cookieDetails)),
			AllScripts:       RelevantScripts(scripts),
		},
	}

	for _, name := range detected {
		if _, dup := res.Evidence.DetectionDetails[name]; dup {
			continue
		}
		pe, ok := details[name]
		if !ok {
			pe = newProviderEvidence()
		}
		res.DetectedCMPs = append(res.DetectedCMPs, name)
		res.Evidence.DetectionDetails[name] = normalize(pe)
	}

	for key, detail := range cookieDetails {
		res.Evidence.CookieDetails[key] = detail
	}
	return res
}

func normalize(pe ProviderEvidence) ProviderEvidence {
	if pe.Scripts == nil {
		pe.Scripts = []string{}
	}
	if pe.Storage.LocalStorage == nil {
		pe.Storage.LocalStorage = map[string]string{}
	}
	if pe.Storage.SessionStorage == nil {
		pe.Storage.SessionStorage = map[string]string{}
	}
	if pe.Storage.IndexedDB == nil {
		pe.Storage.IndexedDB = []string{}
	}
	return pe
}
