package cmd

import (
	"fmt"
	"time"

	"github.com/khanhnv2901/cmpscan/internal/browser"
	consts "github.com/khanhnv2901/cmpscan/internal/shared/constants"
	apperrors "github.com/khanhnv2901/cmpscan/internal/shared/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	defaultConcurrency     = 2
	defaultScanRateLimit   = 2.0
	defaultServeAddr       = "127.0.0.1:8080"
	defaultServeRateLimit  = 10
	defaultServeRateBurst  = 20
	defaultMaxRunningJobs  = 4
	defaultShutdownTimeout = 30 * time.Second
)

// CLIConfig captures runtime configuration shared across commands.
type CLIConfig struct {
	Browser   BrowserConfig
	Scan      ScanRuntimeConfig
	Serve     ServeRuntimeConfig
	Telemetry bool
}

// BrowserConfig drives the headless Chrome renderer.
type BrowserConfig struct {
	Headless          bool
	NoSandbox         bool
	ChromePath        string
	UserAgent         string
	NavigationTimeout time.Duration
	IdleTimeout       time.Duration
}

// ScanRuntimeConfig consolidates flag-driven settings for the scan command.
type ScanRuntimeConfig struct {
	Format          string
	Concurrency     int
	RateLimit       float64
	Timeout         time.Duration
	HTTPOnlyCookies bool
	Progress        bool
	SaveAs          string
}

// ServeRuntimeConfig consolidates flag-driven settings for the serve command.
type ServeRuntimeConfig struct {
	Addr            string
	AuthToken       string
	CORSOrigins     []string
	RateLimit       int
	RateBurst       int
	ShutdownTimeout time.Duration
	JobTimeout      time.Duration
	ScanTimeout     time.Duration
	MaxRunningJobs  int
}

var cliConfig = newCLIConfig()

func newCLIConfig() *CLIConfig {
	return &CLIConfig{
		Browser: BrowserConfig{
			Headless:          true,
			NoSandbox:         true,
			NavigationTimeout: consts.DefaultNavigationTimeout,
			IdleTimeout:       consts.DefaultIdleTimeout,
		},
		Scan: ScanRuntimeConfig{
			Format:      "text",
			Concurrency: defaultConcurrency,
			RateLimit:   defaultScanRateLimit,
		},
		Serve: ServeRuntimeConfig{
			Addr:            defaultServeAddr,
			CORSOrigins:     []string{},
			RateLimit:       defaultServeRateLimit,
			RateBurst:       defaultServeRateBurst,
			ShutdownTimeout: defaultShutdownTimeout,
			JobTimeout:      consts.DefaultJobTimeout,
			MaxRunningJobs:  defaultMaxRunningJobs,
		},
	}
}

// BrowserOptions converts the config into renderer options.
func (c BrowserConfig) BrowserOptions() browser.Options {
	return browser.Options{
		Headless:          c.Headless,
		NoSandbox:         c.NoSandbox,
		ExecPath:          c.ChromePath,
		UserAgent:         c.UserAgent,
		NavigationTimeout: c.NavigationTimeout,
		IdleTimeout:       c.IdleTimeout,
	}
}

// Validate rejects settings the scan command cannot run with.
func (c ScanRuntimeConfig) Validate() error {
	if c.Concurrency <= 0 {
		return fmt.Errorf("%w: got %d", apperrors.ErrInvalidConcurrency, c.Concurrency)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("%w: got %s", apperrors.ErrInvalidTimeout, c.Timeout)
	}
	return nil
}

func addBrowserFlags(flags *pflag.FlagSet) {
	flags.BoolVar(&cliConfig.Browser.Headless, "headless", cliConfig.Browser.Headless, "Run Chrome without a window")
	flags.BoolVar(&cliConfig.Browser.NoSandbox, "no-sandbox", cliConfig.Browser.NoSandbox, "Disable the Chrome sandbox (needed in most containers)")
	flags.StringVar(&cliConfig.Browser.ChromePath, "chrome-path", cliConfig.Browser.ChromePath, "Chrome executable (default: discovered)")
	flags.StringVar(&cliConfig.Browser.UserAgent, "user-agent", cliConfig.Browser.UserAgent, "Override the browser user agent")
	flags.DurationVar(&cliConfig.Browser.NavigationTimeout, "navigation-timeout", cliConfig.Browser.NavigationTimeout, "Page load timeout")
	flags.DurationVar(&cliConfig.Browser.IdleTimeout, "idle-timeout", cliConfig.Browser.IdleTimeout, "Extra wait for network idle after load (0 = skip)")
	flags.BoolVar(&cliConfig.Scan.HTTPOnlyCookies, "http-only-cookies", cliConfig.Scan.HTTPOnlyCookies, "Also match cookies hidden from document.cookie")
}

// applyConfigDefaults merges config file and environment values into the runtime
// config when the user did not explicitly set the corresponding flag.
func applyConfigDefaults(cmd *cobra.Command) {
	flags := cmd.Flags()

	applyBoolDefault(flags, "headless", "scan.headless", func(v bool) { cliConfig.Browser.Headless = v })
	applyBoolDefault(flags, "no-sandbox", "scan.no_sandbox", func(v bool) { cliConfig.Browser.NoSandbox = v })
	applyStringDefault(flags, "chrome-path", "scan.chrome_path", func(v string) { cliConfig.Browser.ChromePath = v })
	applyStringDefault(flags, "user-agent", "scan.user_agent", func(v string) { cliConfig.Browser.UserAgent = v })
	applyDurationDefault(flags, "navigation-timeout", "scan.navigation_timeout", func(v time.Duration) { cliConfig.Browser.NavigationTimeout = v })
	applyDurationDefault(flags, "idle-timeout", "scan.idle_timeout", func(v time.Duration) { cliConfig.Browser.IdleTimeout = v })
	applyBoolDefault(flags, "http-only-cookies", "scan.include_http_only_cookies", func(v bool) { cliConfig.Scan.HTTPOnlyCookies = v })

	applyStringDefault(flags, "format", "scan.format", func(v string) { cliConfig.Scan.Format = v })
	applyIntDefault(flags, "concurrency", "scan.concurrency", func(v int) { cliConfig.Scan.Concurrency = v })
	applyFloatDefault(flags, "rate-limit", "scan.rate_limit", func(v float64) { cliConfig.Scan.RateLimit = v })
	applyDurationDefault(flags, "timeout", "scan.timeout", func(v time.Duration) { cliConfig.Scan.Timeout = v })
	applyBoolDefault(flags, "telemetry", "telemetry.enabled", func(v bool) { cliConfig.Telemetry = v })

	applyStringDefault(flags, "addr", "serve.addr", func(v string) { cliConfig.Serve.Addr = v })
	applyStringDefault(flags, "auth-token", "serve.auth_token", func(v string) { cliConfig.Serve.AuthToken = v })
	if viper.IsSet("serve.cors_origins") && !flagChanged(flags, "cors-origins") {
		cliConfig.Serve.CORSOrigins = viper.GetStringSlice("serve.cors_origins")
	}
	applyIntDefault(flags, "rate-limit", "serve.rate_limit", func(v int) { cliConfig.Serve.RateLimit = v })
	applyIntDefault(flags, "rate-burst", "serve.rate_burst", func(v int) { cliConfig.Serve.RateBurst = v })
	applyDurationDefault(flags, "shutdown-timeout", "serve.shutdown_timeout", func(v time.Duration) { cliConfig.Serve.ShutdownTimeout = v })
	applyDurationDefault(flags, "job-timeout", "serve.job_timeout", func(v time.Duration) { cliConfig.Serve.JobTimeout = v })
	applyDurationDefault(flags, "scan-timeout", "serve.scan_timeout", func(v time.Duration) { cliConfig.Serve.ScanTimeout = v })
	applyIntDefault(flags, "max-jobs", "serve.max_jobs", func(v int) { cliConfig.Serve.MaxRunningJobs = v })
}

func flagChanged(flags *pflag.FlagSet, name string) bool {
	if flags == nil {
		return false
	}
	flag := flags.Lookup(name)
	return flag != nil && flag.Changed
}

// The apply helpers run setter with the config value for key unless the flag
// was given on the command line. Keys absent from config and env are skipped.

func applyIntDefault(flags *pflag.FlagSet, name, key string, setter func(int)) {
	if setter == nil || !viper.IsSet(key) || flagChanged(flags, name) {
		return
	}
	setter(viper.GetInt(key))
}

func applyFloatDefault(flags *pflag.FlagSet, name, key string, setter func(float64)) {
	if setter == nil || !viper.IsSet(key) || flagChanged(flags, name) {
		return
	}
	setter(viper.GetFloat64(key))
}

func applyBoolDefault(flags *pflag.FlagSet, name, key string, setter func(bool)) {
	if setter == nil || !viper.IsSet(key) || flagChanged(flags, name) {
		return
	}
	setter(viper.GetBool(key))
}

func applyStringDefault(flags *pflag.FlagSet, name, key string, setter func(string)) {
	if setter == nil || !viper.IsSet(key) || flagChanged(flags, name) {
		return
	}
	setter(viper.GetString(key))
}

func applyDurationDefault(flags *pflag.FlagSet, name, key string, setter func(time.Duration)) {
	if setter == nil || !viper.IsSet(key) || flagChanged(flags, name) {
		return
	}
	setter(viper.GetDuration(key))
}
