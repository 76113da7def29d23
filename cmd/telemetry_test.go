package cmd

import (
	"bufio"
	"encoding/json"
	"errors"
	"math"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/khanhnv2901/cmpscan/internal/detect"
	"github.com/khanhnv2901/cmpscan/internal/scanner"
)

func TestRecordTelemetry_WritesMetrics(t *testing.T) {
	appCtx := &AppContext{DataDir: t.TempDir()}

	outcomes := []scanner.Outcome{
		{URL: "https://a.example/", Result: &detect.Result{DetectedCMPs: []string{"OneTrust", "Cookiebot"}}},
		{URL: "https://b.example/", Err: errors.New("boom")},
		{URL: "https://c.example/", Result: &detect.Result{DetectedCMPs: []string{}}},
	}

	if err := recordTelemetry(appCtx, "scan", outcomes, 3*time.Second); err != nil {
		t.Fatalf("recordTelemetry returned error: %v", err)
	}

	data, err := os.ReadFile(telemetryPath(appCtx.DataDir))
	if err != nil {
		t.Fatalf("failed to read telemetry file: %v", err)
	}
	if strings.Contains(string(data), "example") {
		t.Fatalf("telemetry must not contain URLs: %s", data)
	}

	sc := bufio.NewScanner(strings.NewReader(string(data)))
	if !sc.Scan() {
		t.Fatalf("expected telemetry record, file empty")
	}
	var rec telemetryRecord
	if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
		t.Fatalf("failed to unmarshal record: %v", err)
	}

	if rec.Command != "scan" || rec.TargetCount != 3 {
		t.Errorf("unexpected record: %+v", rec)
	}
	if rec.SuccessCount != 2 || rec.ErrorCount != 1 || rec.DetectionCount != 2 {
		t.Errorf("unexpected counts: %+v", rec)
	}
	expectedRate := (2.0 / 3.0) * 100
	if math.Abs(rec.SuccessRate-expectedRate) > 0.0001 {
		t.Errorf("expected success rate %.6f, got %.6f", expectedRate, rec.SuccessRate)
	}
	if rec.DurationSeconds != 3 || rec.AvgDurationPerScan != 1 {
		t.Errorf("unexpected durations: %+v", rec)
	}
}

func TestRecordTelemetry_Appends(t *testing.T) {
	appCtx := &AppContext{DataDir: t.TempDir()}
	for i := 0; i < 2; i++ {
		if err := recordTelemetry(appCtx, "scan", nil, time.Second); err != nil {
			t.Fatalf("recordTelemetry returned error: %v", err)
		}
	}
	data, err := os.ReadFile(telemetryPath(appCtx.DataDir))
	if err != nil {
		t.Fatalf("failed to read telemetry file: %v", err)
	}
	if lines := strings.Count(string(data), "\n"); lines != 2 {
		t.Errorf("expected 2 lines, got %d", lines)
	}
}
