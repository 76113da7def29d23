package scanner

import (
	"context"
	"time"

	"github.com/khanhnv2901/cmpscan/internal/detect"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Scanning is what the Runner needs from a Scanner.
type Scanning interface {
	Scan(ctx context.Context, rawURL string) (*detect.Result, error)
}

// Outcome is the result of scanning one URL in a batch.
type Outcome struct {
	URL      string         `json:"url"`
	Result   *detect.Result `json:"result,omitempty"`
	Err      error          `json:"-"`
	Duration time.Duration  `json:"-"`
}

// DoneFunc is called once per URL as soon as its scan finishes. Calls may run
// concurrently.
type DoneFunc func(Outcome)

// Runner scans many URLs with bounded concurrency and a global rate limit.
type Runner struct {
	Concurrency int           // maximum scans in flight
	RateLimit   float64       // scans started per second, 0 = unlimited
	Timeout     time.Duration // per scan, 0 = no extra deadline
	Logger      *zap.Logger
}

// Run scans urls and returns their outcomes in input order. A failed scan never
// stops the others.
func (r *Runner) Run(ctx context.Context, s Scanning, urls []string, onDone DoneFunc) []Outcome {
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	limit := rate.Inf
	burst := 1
	if r.RateLimit > 0 {
		limit = rate.Limit(r.RateLimit)
		if b := int(r.RateLimit); b > 1 {
			burst = b
		}
	}
	limiter := rate.NewLimiter(limit, burst)

	concurrency := r.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	outcomes := make([]Outcome, len(urls))
	g := new(errgroup.Group)
	g.SetLimit(concurrency)

	for i, u := range urls {
		g.Go(func() error {
			out := Outcome{URL: u}
			start := time.Now()

			if err := limiter.Wait(ctx); err != nil {
				out.Err = err
			} else {
				scanCtx, cancel := ctx, context.CancelFunc(func() {})
				if r.Timeout > 0 {
					scanCtx, cancel = context.WithTimeout(ctx, r.Timeout)
				}
				out.Result, out.Err = s.Scan(scanCtx, u)
				cancel()
			}

			out.Duration = time.Since(start)
			if out.Err != nil {
				logger.Debug("batch scan failed", zap.String("url", u), zap.Error(out.Err))
			}
			outcomes[i] = out
			if onDone != nil {
				onDone(out)
			}
			return nil
		})
	}

	_ = g.Wait()
	return outcomes
}
