package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func TestStoreAndGetAppContext(t *testing.T) {
	original := globalAppContext
	t.Cleanup(func() { globalAppContext = original })

	cmd := &cobra.Command{Use: "test"}
	cmd.SetContext(context.Background())
	appCtx := &AppContext{DataDir: "/tmp/cmpscan", Config: newCLIConfig()}

	storeAppContext(cmd, appCtx)

	if got := getAppContext(cmd); got != appCtx {
		t.Fatalf("expected stored context, got %+v", got)
	}
	if got := getAppContext(&cobra.Command{Use: "other"}); got != appCtx {
		t.Fatalf("expected global fallback, got %+v", got)
	}
}

func TestStoreAppContextWithoutCommandContext(t *testing.T) {
	original := globalAppContext
	t.Cleanup(func() { globalAppContext = original })

	cmd := &cobra.Command{Use: "test"}
	appCtx := &AppContext{DataDir: "x"}
	storeAppContext(cmd, appCtx)

	if cmd.Context() == nil {
		t.Fatal("expected command context to be set")
	}
	if got := getAppContext(cmd); got != appCtx {
		t.Fatalf("expected stored context, got %+v", got)
	}
}

func TestNewLoggerLevels(t *testing.T) {
	quiet, err := newLogger(false)
	if err != nil {
		t.Fatalf("newLogger(false): %v", err)
	}
	if quiet.Core().Enabled(zap.InfoLevel) {
		t.Error("default logger must not emit info logs")
	}
	if !quiet.Core().Enabled(zap.WarnLevel) {
		t.Error("default logger must emit warnings")
	}

	loud, err := newLogger(true)
	if err != nil {
		t.Fatalf("newLogger(true): %v", err)
	}
	if !loud.Core().Enabled(zap.InfoLevel) {
		t.Error("verbose logger must emit info logs")
	}
}

func TestInitConfigReadsExplicitFile(t *testing.T) {
	resetViper(t)
	originalCfg := cfgFile
	t.Cleanup(func() { cfgFile = originalCfg })

	path := filepath.Join(t.TempDir(), "cmpscan.yaml")
	if err := os.WriteFile(path, []byte("scan:\n  concurrency: 6\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfgFile = path
	t.Setenv("CMPSCAN_SERVE_ADDR", "0.0.0.0:9999")

	if err := initConfig(); err != nil {
		t.Fatalf("initConfig returned error: %v", err)
	}
	if got := viper.GetInt("scan.concurrency"); got != 6 {
		t.Errorf("expected concurrency 6 from file, got %d", got)
	}
	if got := viper.GetString("serve.addr"); got != "0.0.0.0:9999" {
		t.Errorf("expected addr from environment, got %q", got)
	}
}

func TestInitConfigMissingExplicitFile(t *testing.T) {
	resetViper(t)
	originalCfg := cfgFile
	t.Cleanup(func() { cfgFile = originalCfg })

	cfgFile = filepath.Join(t.TempDir(), "missing.yaml")
	if err := initConfig(); err == nil {
		t.Fatal("expected error for a missing --config file")
	}
}
