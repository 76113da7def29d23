package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/khanhnv2901/cmpscan/internal/browser"
	"github.com/khanhnv2901/cmpscan/internal/catalog"
	"github.com/khanhnv2901/cmpscan/internal/report"
	"github.com/khanhnv2901/cmpscan/internal/scanner"
	"github.com/khanhnv2901/cmpscan/internal/shared/security"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// renderer is a browser the commands own for their whole run.
type renderer interface {
	browser.Renderer
	Ready() error
	Close() error
}

// launchRenderer starts headless Chrome. Tests replace it with an in-memory browser.
var launchRenderer = func(ctx context.Context, opts browser.Options, logger *zap.Logger) (renderer, error) {
	chrome, err := browser.NewChrome(ctx, opts, logger)
	if err != nil {
		return nil, err
	}
	return chrome, nil
}

var scanCmd = &cobra.Command{
	Use:   "scan URL...",
	Short: "Detect consent management platforms on one or more websites",
	Long: `Load each URL in headless Chrome and report the consent management platforms found.
URLs without a scheme are scanned over https.`,
	Example: `  cmpscan scan example.com
  cmpscan scan --format json --concurrency 4 https://a.example https://b.example`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		appCtx := getAppContext(cmd)
		cfg := appCtx.Config

		if err := cfg.Scan.Validate(); err != nil {
			return err
		}
		format, err := report.ParseFormat(cfg.Scan.Format)
		if err != nil {
			return err
		}

		cat, err := catalog.Default()
		if err != nil {
			return fmt.Errorf("load catalog: %w", err)
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		chrome, err := launchRenderer(ctx, cfg.Browser.BrowserOptions(), appCtx.Logger)
		if err != nil {
			return fmt.Errorf("failed to start browser: %w", err)
		}
		defer chrome.Close()

		s := scanner.New(chrome, cat,
			scanner.WithLogger(appCtx.Logger),
			scanner.WithHTTPOnlyCookies(cfg.Scan.HTTPOnlyCookies),
		)
		runner := &scanner.Runner{
			Concurrency: cfg.Scan.Concurrency,
			RateLimit:   cfg.Scan.RateLimit,
			Timeout:     cfg.Scan.Timeout,
			Logger:      appCtx.Logger,
		}

		var progress *progressPrinter
		var onDone scanner.DoneFunc
		if cfg.Scan.Progress {
			progress = newProgressPrinter(cmd.ErrOrStderr(), len(args), "scan")
			progress.Start()
			onDone = func(o scanner.Outcome) {
				detected := o.Result != nil && len(o.Result.DetectedCMPs) > 0
				progress.Increment(o.Err == nil, detected, o.Duration)
			}
		}

		start := time.Now()
		outcomes := runner.Run(ctx, s, args, onDone)
		elapsed := time.Since(start)
		if progress != nil {
			progress.Stop()
		}

		var buf bytes.Buffer
		writer, err := report.NewWriter(format, &buf)
		if err != nil {
			return err
		}
		if err := writer.WriteOutcomes(outcomes); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		if _, err := cmd.OutOrStdout().Write(buf.Bytes()); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		if cfg.Scan.SaveAs != "" {
			path, err := security.WriteFileWithin(reportsDir(appCtx.DataDir), cfg.Scan.SaveAs, buf.Bytes())
			if err != nil {
				return fmt.Errorf("save report: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%s report saved to %s\n", colorSuccess("✓"), path)
		}

		if cfg.Telemetry {
			if err := recordTelemetry(appCtx, "scan", outcomes, elapsed); err != nil {
				fmt.Fprintf(os.Stderr, "%s failed to record telemetry: %v\n", colorWarn("!"), err)
			}
		}

		printScanSummary(cmd.ErrOrStderr(), outcomes, elapsed)

		_, failed, _ := summarizeOutcomes(outcomes)
		if failed > 0 {
			return &ScanFailuresError{Failed: failed, Total: len(outcomes)}
		}
		return nil
	},
}

// printScanSummary writes one line with the number of URLs per status.
func printScanSummary(out io.Writer, outcomes []scanner.Outcome, elapsed time.Duration) {
	var detected, none, failed int
	for _, o := range outcomes {
		switch {
		case o.Err != nil || o.Result == nil:
			failed++
		case len(o.Result.DetectedCMPs) > 0:
			detected++
		default:
			none++
		}
	}
	fmt.Fprintf(out, "Scanned %d URL(s) in %s: %d %s, %d %s, %d %s\n",
		len(outcomes), elapsed.Round(time.Millisecond),
		detected, formatStatusWithColor("detected"),
		none, formatStatusWithColor("none"),
		failed, formatStatusWithColor("failed"))
}

func init() {
	flags := scanCmd.Flags()
	flags.StringVarP(&cliConfig.Scan.Format, "format", "f", cliConfig.Scan.Format, "Output format: text, markdown or json")
	flags.IntVarP(&cliConfig.Scan.Concurrency, "concurrency", "c", cliConfig.Scan.Concurrency, "Maximum scans in flight")
	flags.Float64Var(&cliConfig.Scan.RateLimit, "rate-limit", cliConfig.Scan.RateLimit, "Scans started per second (0 = unlimited)")
	flags.DurationVar(&cliConfig.Scan.Timeout, "timeout", cliConfig.Scan.Timeout, "Overall time limit per URL (0 = none)")
	flags.BoolVar(&cliConfig.Scan.Progress, "progress", cliConfig.Scan.Progress, "Show a progress line on stderr")
	flags.StringVar(&cliConfig.Scan.SaveAs, "save", cliConfig.Scan.SaveAs, "Also store the report as NAME under the data directory's reports folder")
	flags.BoolVar(&cliConfig.Telemetry, "telemetry", cliConfig.Telemetry, "Record anonymous run counts in the data directory")
	addBrowserFlags(flags)
}
