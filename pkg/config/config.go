// Package config provides the unified configuration for the harvester.
// A single Config structure carries the endpoint parameters plus the
// performance, timeout and reliability sections every component consumes,
// so no component reads ambient process-wide state.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/oaiharvest/oaiharvest/pkg/errors"
)

// Mode selects what the pagination loop emits per page.
type Mode string

const (
	// ModeIdentifiers lists bare identifiers and fetches each record
	// individually via GetRecord (many small requests, concurrent)
	ModeIdentifiers Mode = "identifiers"
	// ModeRecords lists fully materialized records in pre-batched pages
	// (sequential, larger responses)
	ModeRecords Mode = "records"
)

// Config is the configuration structure all harvester components use.
type Config struct {
	// Endpoint is the OAI-PMH base URL
	Endpoint string `yaml:"endpoint" json:"endpoint"`
	// MetadataPrefix selects the metadata format requested from the endpoint
	MetadataPrefix string `yaml:"metadata_prefix" json:"metadata_prefix"`
	// OutputRoot is the directory records are persisted under, one
	// subdirectory per set
	OutputRoot string `yaml:"output_root" json:"output_root"`
	// Mode selects identifier-fetch or batch-record harvesting
	Mode Mode `yaml:"mode" json:"mode"`

	// Performance settings control concurrency
	Performance PerformanceConfig `yaml:"performance" json:"performance"`

	// Timeouts define per-request timeout durations
	Timeouts TimeoutConfig `yaml:"timeouts" json:"timeouts"`

	// Reliability settings for retry behavior
	Reliability ReliabilityConfig `yaml:"reliability" json:"reliability"`

	// Output settings for the record sink
	Output OutputConfig `yaml:"output" json:"output"`

	// Observability settings for logging and metrics
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

// PerformanceConfig contains concurrency-related settings.
type PerformanceConfig struct {
	// Workers defines the number of concurrent record fetchers
	// (identifier mode only; batch mode is strictly sequential)
	Workers int `yaml:"workers" json:"workers"`
	// RequestsPerSecond caps the request rate against the endpoint
	// across all workers; zero disables the cap
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`
}

// TimeoutConfig contains per-request timeout settings. There is no
// harvest-run-level timeout.
type TimeoutConfig struct {
	// Connect timeout for establishing connections
	Connect time.Duration `yaml:"connect" json:"connect"`
	// Read timeout for receiving response headers
	Read time.Duration `yaml:"read" json:"read"`
	// Request timeout for the whole request including the body
	Request time.Duration `yaml:"request" json:"request"`
}

// ReliabilityConfig contains retry settings.
type ReliabilityConfig struct {
	// MaxRetries caps both the exponential transport retry and the
	// linear application-error retry. The cap is absolute.
	MaxRetries int `yaml:"max_retries" json:"max_retries"`
}

// OutputConfig contains record sink settings.
type OutputConfig struct {
	// Compress writes gzip-compressed record files when set
	Compress bool `yaml:"compress" json:"compress"`
	// CompressionLevel sets the gzip level (1-9)
	CompressionLevel int `yaml:"compression_level" json:"compression_level"`
	// SummaryPath receives a JSON run summary; empty disables it
	SummaryPath string `yaml:"summary_path" json:"summary_path"`
}

// ObservabilityConfig contains logging and metrics settings.
type ObservabilityConfig struct {
	// LogLevel sets logging verbosity (debug, info, warn, error)
	LogLevel string `yaml:"log_level" json:"log_level"`
	// EnableMetrics serves the Prometheus registry over HTTP during a run
	EnableMetrics bool `yaml:"enable_metrics" json:"enable_metrics"`
	// MetricsAddr is the listen address for the metrics endpoint
	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr"`
}

// NewConfig creates a Config with production-ready defaults. The retry cap
// and the connect/read timeouts default to the values the reference
// endpoint was harvested with.
func NewConfig(endpoint, metadataPrefix, outputRoot string) *Config {
	return &Config{
		Endpoint:       endpoint,
		MetadataPrefix: metadataPrefix,
		OutputRoot:     outputRoot,
		Mode:           ModeIdentifiers,
		Performance: PerformanceConfig{
			Workers: runtime.NumCPU(),
		},
		Timeouts: TimeoutConfig{
			Connect: 20 * time.Second,
			Read:    80 * time.Second,
			Request: 5 * time.Minute,
		},
		Reliability: ReliabilityConfig{
			MaxRetries: 10,
		},
		Output: OutputConfig{
			Compress:         false,
			CompressionLevel: 6,
		},
		Observability: ObservabilityConfig{
			LogLevel:      "info",
			EnableMetrics: true,
			MetricsAddr:   ":9090",
		},
	}
}

// Validate validates the configuration for correctness.
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return errors.New(errors.ErrorTypeConfig, "endpoint is required")
	}
	if !strings.HasPrefix(c.Endpoint, "http://") && !strings.HasPrefix(c.Endpoint, "https://") {
		return errors.New(errors.ErrorTypeConfig, "endpoint must be an http(s) URL")
	}
	if c.MetadataPrefix == "" {
		return errors.New(errors.ErrorTypeConfig, "metadata_prefix is required")
	}
	if c.OutputRoot == "" {
		return errors.New(errors.ErrorTypeConfig, "output_root is required")
	}
	if c.Mode != ModeIdentifiers && c.Mode != ModeRecords {
		return errors.New(errors.ErrorTypeConfig,
			fmt.Sprintf("mode must be %q or %q", ModeIdentifiers, ModeRecords))
	}
	if c.Performance.RequestsPerSecond < 0 {
		return errors.New(errors.ErrorTypeConfig, "requests_per_second cannot be negative")
	}
	if c.Reliability.MaxRetries < 0 {
		return errors.New(errors.ErrorTypeConfig, "max_retries cannot be negative")
	}
	if c.Output.CompressionLevel < 0 || c.Output.CompressionLevel > 9 {
		return errors.New(errors.ErrorTypeConfig, "compression_level must be between 0 and 9")
	}
	return nil
}

// GetWorkers returns the number of workers, ensuring it's at least 1
func (p *PerformanceConfig) GetWorkers() int {
	if p.Workers <= 0 {
		return runtime.NumCPU()
	}
	return p.Workers
}
