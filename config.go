// Package chunkup - Configuration and tunable policy
//
// This file holds the two configuration layers of the library. Config
// carries the programmatic knobs a caller wires at construction time
// (callbacks, logger, timeouts, destination identifiers). Tuning carries
// the numeric policy behind probing, classification and planning; it has
// documented defaults and can be loaded from a YAML file so deployments
// can adjust thresholds without a rebuild.
package chunkup

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Config holds options for batch upload operations.
//
// Use DefaultConfig() to get sensible defaults, then customize as needed:
//
//	config := chunkup.DefaultConfig()
//	config.FolderID = folderID
//	config.ProgressFunc = func(info chunkup.ProgressInfo) {
//		fmt.Printf("Progress: %.1f%%\n", info.Percentage)
//	}
type Config struct {
	// ProjectID and FolderID are the destination identifiers sent with
	// every chunk and finalize request. Both may be empty for uploads
	// into the account root.
	ProjectID string
	FolderID  string

	// PollInterval is the fixed delay between processing status polls.
	// The interval never escalates; transcode duration is unbounded
	// server-side. Minimum 1s (default 5s).
	PollInterval time.Duration

	// ProbeTimeout bounds one full probe pass (ping, download, upload).
	// A probe that cannot finish in time degrades to the conservative
	// default classification instead of failing the upload.
	ProbeTimeout time.Duration

	// ChunkTimeout bounds a single chunk request. A timed-out chunk is
	// treated exactly like a failed chunk.
	ChunkTimeout time.Duration

	// FinalizeTimeout bounds the finalize request. Merging a large file
	// server-side can take a while, so this is generous by default.
	FinalizeTimeout time.Duration

	// RequestTimeout bounds the small control calls (status, cancel,
	// catalog, processing poll).
	RequestTimeout time.Duration

	// ProgressFunc is called after each acknowledged chunk with the
	// task's aggregate progress. Called from the upload goroutine.
	ProgressFunc func(info ProgressInfo)

	// EventFunc is called for upload lifecycle events such as upload
	// started, chunk uploaded, processing started, upload failed.
	EventFunc func(info EventInfo)

	// Logger receives structured debug/warn output. Defaults to a
	// no-op logger; the library never writes to the global logger.
	Logger zerolog.Logger

	// BufferPool provides reusable chunk read buffers. When nil, a pool
	// sized for the planned chunk size is created per session.
	BufferPool *BufferPool
}

// DefaultConfig returns sensible defaults for batch upload operations.
func DefaultConfig() *Config {
	return &Config{
		PollInterval:    5 * time.Second,
		ProbeTimeout:    15 * time.Second,
		ChunkTimeout:    10 * time.Minute,
		FinalizeTimeout: 5 * time.Minute,
		RequestTimeout:  15 * time.Second,
		Logger:          zerolog.Nop(),
	}
}

// validateConfig sanitizes a caller-provided config in place and returns it.
func validateConfig(cfg *Config) *Config {
	if cfg == nil {
		return DefaultConfig()
	}
	if cfg.PollInterval < time.Second {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 15 * time.Second
	}
	if cfg.ChunkTimeout <= 0 {
		cfg.ChunkTimeout = 10 * time.Minute
	}
	if cfg.FinalizeTimeout <= 0 {
		cfg.FinalizeTimeout = 5 * time.Minute
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}
	return cfg
}

const (
	defaultProbeDownloadBytes = 2 * 1024 * 1024
	defaultProbeUploadBytes   = 1 * 1024 * 1024
	defaultLargeFileBytes     = 100 * 1024 * 1024
	defaultLargeBatchBytes    = 25 * 1024 * 1024
)

// Tuning is the numeric policy for probing, classification and the batch
// size triggers. The defaults are the documented contract; deployments
// may override them via LoadTuning.
type Tuning struct {
	// Probe payload sizes in bytes.
	ProbeDownloadBytes int64 `yaml:"probe_download_bytes"`
	ProbeUploadBytes   int64 `yaml:"probe_upload_bytes"`

	// Classification thresholds. A measurement classifies as excellent
	// when upload throughput and latency clear the excellent bounds,
	// else strong, else medium, else weak.
	ExcellentMinMbps      float64 `yaml:"excellent_min_mbps"`
	ExcellentMaxLatencyMs float64 `yaml:"excellent_max_latency_ms"`
	StrongMinMbps         float64 `yaml:"strong_min_mbps"`
	StrongMaxLatencyMs    float64 `yaml:"strong_max_latency_ms"`
	MediumMinMbps         float64 `yaml:"medium_min_mbps"`

	// NominalMbps substitutes for a missing throughput measurement when
	// estimating upload duration, keyed by classification.
	NominalMbps map[NetworkClass]float64 `yaml:"nominal_mbps"`

	// Large batch triggers: the planner summary is surfaced
	// automatically when any single file exceeds LargeFileBytes, or the
	// batch holds more than one file and their combined size exceeds
	// LargeBatchBytes.
	LargeFileBytes  int64 `yaml:"large_file_bytes"`
	LargeBatchBytes int64 `yaml:"large_batch_bytes"`
}

// DefaultTuning returns the documented default policy.
func DefaultTuning() Tuning {
	return Tuning{
		ProbeDownloadBytes:    defaultProbeDownloadBytes,
		ProbeUploadBytes:      defaultProbeUploadBytes,
		ExcellentMinMbps:      50,
		ExcellentMaxLatencyMs: 50,
		StrongMinMbps:         20,
		StrongMaxLatencyMs:    150,
		MediumMinMbps:         5,
		NominalMbps: map[NetworkClass]float64{
			NetworkExcellent: 50,
			NetworkStrong:    20,
			NetworkMedium:    10,
			NetworkWeak:      2,
		},
		LargeFileBytes:  defaultLargeFileBytes,
		LargeBatchBytes: defaultLargeBatchBytes,
	}
}

// LoadTuning reads a YAML policy file from the provided path. If the file
// does not exist or is empty, defaults are returned with no error.
func LoadTuning(path string) (Tuning, error) {
	tuning := DefaultTuning()
	if path == "" {
		return tuning, fmt.Errorf("empty tuning path")
	}
	fileData, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return tuning, nil
		}
		return tuning, fmt.Errorf("read tuning: %w", err)
	}
	if len(fileData) == 0 {
		return tuning, nil
	}
	if err := yaml.Unmarshal(fileData, &tuning); err != nil {
		return tuning, fmt.Errorf("parse yaml: %w", err)
	}
	return tuning, tuning.validate()
}

// validate rejects policies that would break classification or probing.
func (t Tuning) validate() error {
	if t.ProbeDownloadBytes < 1024 || t.ProbeUploadBytes < 1024 {
		return fmt.Errorf("invalid probe payload: download=%d upload=%d (must be >= 1024)", t.ProbeDownloadBytes, t.ProbeUploadBytes)
	}
	if t.MediumMinMbps <= 0 || t.StrongMinMbps <= t.MediumMinMbps || t.ExcellentMinMbps <= t.StrongMinMbps {
		return fmt.Errorf("invalid throughput thresholds: excellent=%.1f strong=%.1f medium=%.1f (must be strictly descending and positive)",
			t.ExcellentMinMbps, t.StrongMinMbps, t.MediumMinMbps)
	}
	if t.ExcellentMaxLatencyMs <= 0 || t.StrongMaxLatencyMs < t.ExcellentMaxLatencyMs {
		return fmt.Errorf("invalid latency thresholds: excellent=%.1f strong=%.1f", t.ExcellentMaxLatencyMs, t.StrongMaxLatencyMs)
	}
	if t.LargeFileBytes <= 0 || t.LargeBatchBytes <= 0 {
		return fmt.Errorf("invalid batch thresholds: file=%d batch=%d", t.LargeFileBytes, t.LargeBatchBytes)
	}
	return nil
}

// nominal returns the nominal throughput for a class, falling back to the
// built-in defaults for unknown classes or incomplete override maps.
func (t Tuning) nominal(class NetworkClass) float64 {
	if v, ok := t.NominalMbps[class]; ok && v > 0 {
		return v
	}
	if v, ok := DefaultTuning().NominalMbps[class]; ok {
		return v
	}
	return DefaultTuning().NominalMbps[NetworkMedium]
}
