package detect

// Result is the detection report of one scan. Every collection is non-nil so the
// JSON form always carries [] and {} rather than null.
type Result struct {
	DetectedCMPs []string `json:"detectedCMPs"`
	FoundCookies []string `json:"foundCookies"`
	Evidence     Evidence `json:"evidence"`
}

// Evidence backs the detections of a Result.
type Evidence struct {
	DetectionDetails map[string]ProviderEvidence `json:"detectionDetails"`
	CookieDetails    map[string]CookieDetail     `json:"cookieDetails"`
	AllScripts       []string                    `json:"allScripts"`
}

// ProviderEvidence is what was seen for one detected provider.
type ProviderEvidence struct {
	GlobalObject bool            `json:"globalObject"`
	Scripts      []string        `json:"scripts"`
	Storage      StorageEvidence `json:"storage"`
}

// StorageEvidence holds the storage entries whose key or name mentions the provider.
type StorageEvidence struct {
	LocalStorage   map[string]string `json:"localStorage"`
	SessionStorage map[string]string `json:"sessionStorage"`
	IndexedDB      []string          `json:"indexedDB"`
}

// CookieDetail attributes a cookie to a provider.
type CookieDetail struct {
	Provider string `json:"provider"`
	Value    string `json:"value"`
}

func newProviderEvidence() ProviderEvidence {
	return ProviderEvidence{
		Scripts: []string{},
		Storage: StorageEvidence{
			LocalStorage:   map[string]string{},
			SessionStorage: map[string]string{},
			IndexedDB:      []string{},
		},
	}
}
