package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/khanhnv2901/cmpscan/internal/scanner"
	consts "github.com/khanhnv2901/cmpscan/internal/shared/constants"
)

// telemetryRecord holds counts only. URLs and results never leave the report.
type telemetryRecord struct {
	Timestamp          time.Time `json:"timestamp"`
	Command            string    `json:"command"`
	TargetCount        int       `json:"target_count"`
	SuccessCount       int       `json:"success_count"`
	ErrorCount         int       `json:"error_count"`
	DetectionCount     int       `json:"detection_count"`
	SuccessRate        float64   `json:"success_rate"`
	DurationSeconds    float64   `json:"duration_seconds"`
	AvgDurationPerScan float64   `json:"avg_duration_per_scan"`
}

func recordTelemetry(appCtx *AppContext, command string, outcomes []scanner.Outcome, duration time.Duration) error {
	okCount, errorCount, detections := summarizeOutcomes(outcomes)
	total := len(outcomes)

	successRate := 0.0
	avgDuration := 0.0
	if total > 0 {
		successRate = (float64(okCount) / float64(total)) * 100
		avgDuration = duration.Seconds() / float64(total)
	}

	record := telemetryRecord{
		Timestamp:          time.Now().UTC(),
		Command:            command,
		TargetCount:        total,
		SuccessCount:       okCount,
		ErrorCount:         errorCount,
		DetectionCount:     detections,
		SuccessRate:        successRate,
		DurationSeconds:    duration.Seconds(),
		AvgDurationPerScan: avgDuration,
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal telemetry: %w", err)
	}

	f, err := os.OpenFile(telemetryPath(appCtx.DataDir), os.O_CREATE|os.O_WRONLY|os.O_APPEND, consts.DefaultFilePerm)
	if err != nil {
		return fmt.Errorf("open telemetry file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write telemetry: %w", err)
	}
	return nil
}

// summarizeOutcomes counts successful scans, failed scans and detected CMPs.
func summarizeOutcomes(outcomes []scanner.Outcome) (okCount, errorCount, detections int) {
	for _, o := range outcomes {
		if o.Err != nil || o.Result == nil {
			errorCount++
			continue
		}
		okCount++
		detections += len(o.Result.DetectedCMPs)
	}
	return okCount, errorCount, detections
}
