package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	consts "github.com/khanhnv2901/cmpscan/internal/shared/constants"
	"github.com/spf13/viper"
)

const dataDirEnvVar = "CMPSCAN_DATA_DIR"

// configDir is $XDG_CONFIG_HOME/cmpscan or the platform equivalent.
func configDir() string {
	return filepath.Join(xdg.ConfigHome, consts.AppName)
}

// getDataDir resolves the data directory in order: CMPSCAN_DATA_DIR, the data_dir
// config key, $XDG_DATA_HOME/cmpscan. The directory is created if missing.
func getDataDir() (string, error) {
	dir := os.Getenv(dataDirEnvVar)
	if dir == "" {
		dir = viper.GetString("data_dir")
	}
	if dir == "" {
		dir = filepath.Join(xdg.DataHome, consts.AppName)
	}

	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	if err := os.MkdirAll(dir, consts.DefaultDirPerm); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return dir, nil
}

func telemetryPath(dataDir string) string {
	return filepath.Join(dataDir, "telemetry.jsonl")
}

// reportsDir holds reports stored with scan --save.
func reportsDir(dataDir string) string {
	return filepath.Join(dataDir, "reports")
}
