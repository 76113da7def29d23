package scanner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/khanhnv2901/cmpscan/internal/browser/browsertest"
	"github.com/khanhnv2901/cmpscan/internal/detect"
)

type scanFunc func(ctx context.Context, rawURL string) (*detect.Result, error)

func (f scanFunc) Scan(ctx context.Context, rawURL string) (*detect.Result, error) {
	return f(ctx, rawURL)
}

func TestRunnerKeepsInputOrder(t *testing.T) {
	r := &browsertest.Renderer{Pages: map[string]*browsertest.Page{
		"https://a.example/": {ScriptURLs: []string{"https://cdn.onetrust.com/a.js"}},
		"https://c.example/": {ScriptURLs: []string{"https://app.termly.io/embed.js"}},
	}}
	s := newTestScanner(t, r)
	runner := &Runner{Concurrency: 3}

	var mu sync.Mutex
	var done []string
	outcomes := runner.Run(context.Background(), s, []string{"a.example", "b.example", "c.example"}, func(o Outcome) {
		mu.Lock()
		done = append(done, o.URL)
		mu.Unlock()
	})

	if len(outcomes) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(outcomes))
	}
	var urls []string
	for _, o := range outcomes {
		urls = append(urls, o.URL)
	}
	if diff := cmp.Diff([]string{"a.example", "b.example", "c.example"}, urls); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
	if len(done) != 3 {
		t.Errorf("expected onDone for every URL, got %v", done)
	}

	if outcomes[0].Err != nil || outcomes[0].Result.DetectedCMPs[0] != "OneTrust" {
		t.Errorf("unexpected first outcome %+v", outcomes[0])
	}
	var scanErr *ScanError
	if !errors.As(outcomes[1].Err, &scanErr) {
		t.Errorf("expected ScanError for unreachable host, got %v", outcomes[1].Err)
	}
	if outcomes[2].Err != nil || outcomes[2].Result.DetectedCMPs[0] != "Termly" {
		t.Errorf("unexpected third outcome %+v", outcomes[2])
	}
}

func TestRunnerBoundsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	s := scanFunc(func(ctx context.Context, rawURL string) (*detect.Result, error) {
		n := inFlight.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		return &detect.Result{}, nil
	})

	urls := make([]string, 10)
	for i := range urls {
		urls[i] = "https://example.com/"
	}
	runner := &Runner{Concurrency: 2}
	runner.Run(context.Background(), s, urls, nil)

	if got := peak.Load(); got > 2 {
		t.Errorf("expected at most 2 scans in flight, saw %d", got)
	}
}

func TestRunnerAppliesTimeout(t *testing.T) {
	s := scanFunc(func(ctx context.Context, rawURL string) (*detect.Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	runner := &Runner{Concurrency: 1, Timeout: 10 * time.Millisecond}
	outcomes := runner.Run(context.Background(), s, []string{"https://slow.example/"}, nil)

	if !errors.Is(outcomes[0].Err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", outcomes[0].Err)
	}
}

func TestRunnerCanceledContext(t *testing.T) {
	var calls atomic.Int32
	s := scanFunc(func(ctx context.Context, rawURL string) (*detect.Result, error) {
		calls.Add(1)
		return &detect.Result{}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := &Runner{Concurrency: 2, RateLimit: 1}
	outcomes := runner.Run(ctx, s, []string{"https://a.example/", "https://b.example/"}, nil)

	for _, o := range outcomes {
		if o.Err == nil {
			t.Errorf("expected error for %s after cancellation", o.URL)
		}
	}
	if calls.Load() != 0 {
		t.Errorf("expected no scans after cancellation, got %d", calls.Load())
	}
}
