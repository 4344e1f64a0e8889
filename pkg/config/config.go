// Package config defines the typohmm configuration and its YAML loader.
package config

import (
	"time"

	"github.com/japaniel/typohmm/pkg/segment"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration.
type Config struct {
	LogLevel LogLevel       `yaml:"log_level"`
	Corpus   CorpusConfig   `yaml:"corpus"`
	Database DatabaseConfig `yaml:"database"`
	Model    ModelConfig    `yaml:"model"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// CorpusConfig locates the labelled training corpus.
type CorpusConfig struct {
	// Path is the local corpus file.
	Path string `yaml:"path"`

	// URL is downloaded to Path when the file is missing. Empty disables downloading.
	URL string `yaml:"url"`
}

// DatabaseConfig configures the sqlite store.
type DatabaseConfig struct {
	// Path of the sqlite file. Empty keeps models in memory only.
	Path string `yaml:"path"`
}

// ModelConfig names the stored model to load or save.
type ModelConfig struct {
	Name string `yaml:"name"`
}

// PipelineConfig tunes the correction pipeline.
type PipelineConfig struct {
	Workers       int           `yaml:"workers"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`

	// Segmenter is "whitespace" or "kagome".
	Segmenter string `yaml:"segmenter"`

	// RecordCorrections writes changed words to the corrections table.
	RecordCorrections bool `yaml:"record_corrections"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Addr to serve /metrics on, e.g. ":9464". Empty disables the endpoint.
	Addr string `yaml:"addr"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		LogLevel: LogInfo,
		Corpus:   CorpusConfig{Path: "aspell.txt"},
		Model:    ModelConfig{Name: "default"},
		Pipeline: PipelineConfig{
			Workers:       4,
			BatchSize:     100,
			FlushInterval: 2 * time.Second,
			Segmenter:     segment.NameWhitespace,
		},
	}
}
