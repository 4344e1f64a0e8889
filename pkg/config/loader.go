package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/japaniel/typohmm/pkg/segment"
	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path on top of [Default] and
// returns a validated [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Fields missing from the document keep their [Default] values.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.LogLevel != "" && !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}
	if cfg.Corpus.Path == "" {
		errs = append(errs, errors.New("corpus.path is required"))
	}
	if cfg.Model.Name == "" {
		errs = append(errs, errors.New("model.name is required"))
	}
	if cfg.Pipeline.Workers < 1 {
		errs = append(errs, fmt.Errorf("pipeline.workers must be at least 1, got %d", cfg.Pipeline.Workers))
	}
	if cfg.Pipeline.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("pipeline.batch_size must be at least 1, got %d", cfg.Pipeline.BatchSize))
	}
	if cfg.Pipeline.FlushInterval <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.flush_interval must be positive, got %s", cfg.Pipeline.FlushInterval))
	}
	switch cfg.Pipeline.Segmenter {
	case "", segment.NameWhitespace, segment.NameKagome:
	default:
		errs = append(errs, fmt.Errorf("pipeline.segmenter %q is invalid; valid values: %s, %s",
			cfg.Pipeline.Segmenter, segment.NameWhitespace, segment.NameKagome))
	}
	if cfg.Pipeline.RecordCorrections && cfg.Database.Path == "" {
		errs = append(errs, errors.New("pipeline.record_corrections requires database.path"))
	}

	return errors.Join(errs...)
}
