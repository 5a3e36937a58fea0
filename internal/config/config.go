// Package config loads the batch run's configuration (spec.md §6): a
// YAML file for the bulk of the fields, with environment variables
// layered on top for the handful of values operators typically override
// per-invocation (the caarlos0/env pattern taibuivan-yomira's platform
// config uses). "File format is not part of the contract" per spec.md —
// YAML is this implementation's concrete choice, grounded on the
// gopkg.in/yaml.v3 dependency already present in the pack.
package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// SelectionMode chooses which references a run considers (spec.md §6).
type SelectionMode string

const (
	SelectionRange         SelectionMode = "range"
	SelectionCriteria      SelectionMode = "criteria"
	SelectionAllIncomplete SelectionMode = "all_incomplete"
)

// QueryMode selects the Query Strategist's mode (spec.md §4.C).
type QueryMode string

const (
	QuerySmart    QueryMode = "smart"
	QueryStandard QueryMode = "standard"
)

// Config is the full recognized key set of spec.md §6's config
// contract. yaml tags name the on-disk keys; env tags let an operator
// override individual values without editing the file, per the
// Twelve-Factor pattern taibuivan-yomira's config.go documents.
type Config struct {
	InputFile  string `yaml:"input_file"  env:"REFENRICH_INPUT_FILE"`
	OutputFile string `yaml:"output_file" env:"REFENRICH_OUTPUT_FILE"`

	SelectionMode SelectionMode `yaml:"selection_mode" env:"REFENRICH_SELECTION_MODE"`
	IDStart       int           `yaml:"id_start"`
	IDEnd         int           `yaml:"id_end"`
	NotFinalized  bool          `yaml:"not_finalized"`
	MaxReferences int           `yaml:"max_references" env:"REFENRICH_MAX_REFERENCES"`

	QueryMode      QueryMode `yaml:"query_mode" env:"REFENRICH_QUERY_MODE"`
	PrimarySplit   int       `yaml:"primary_split"`
	SecondarySplit int       `yaml:"secondary_split"`

	PrimaryThreshold   float64 `yaml:"primary_threshold"`
	SecondaryThreshold float64 `yaml:"secondary_threshold"`
	AutoFinalize       bool    `yaml:"auto_finalize" env:"REFENRICH_AUTO_FINALIZE"`

	RateLimit struct {
		SearchMs   int `yaml:"search_ms"`
		InterRefMs int `yaml:"inter_ref_ms"`
	} `yaml:"rate_limit"`

	ValidateTopK   int `yaml:"validate_top_k"`
	RankBatchSize  int `yaml:"rank_batch_size"`
	RankTimeoutMs  int `yaml:"rank_timeout_ms"`
	BatchVersion   string `yaml:"batch_version" env:"REFENRICH_BATCH_VERSION"`

	SearchAPIKey string `yaml:"-" env:"REFENRICH_SEARCH_API_KEY"`
	SearchAPIURL string `yaml:"search_api_url" env:"REFENRICH_SEARCH_API_URL"`
	OpenAIAPIKey string `yaml:"-" env:"REFENRICH_OPENAI_API_KEY"`
	RankModel    string `yaml:"rank_model" env:"REFENRICH_RANK_MODEL"`
}

// Load reads path as YAML, layers environment overrides on top, and
// fills in spec.md §6's documented defaults for any field left zero.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: environment overrides: %w", err)
	}

	normalize(cfg)
	return cfg, nil
}

// normalize fills in spec.md §6's documented defaults for fields left at
// their zero value after YAML + env parsing.
func normalize(cfg *Config) {
	if cfg.SelectionMode == "" {
		cfg.SelectionMode = SelectionAllIncomplete
	}
	if cfg.QueryMode == "" {
		cfg.QueryMode = QuerySmart
	}
	if cfg.PrimarySplit == 0 && cfg.SecondarySplit == 0 {
		cfg.PrimarySplit, cfg.SecondarySplit = 6, 2
	}
	if cfg.PrimaryThreshold == 0 {
		cfg.PrimaryThreshold = 75
	}
	if cfg.SecondaryThreshold == 0 {
		cfg.SecondaryThreshold = 75
	}
	if cfg.RateLimit.SearchMs == 0 {
		cfg.RateLimit.SearchMs = 1000
	}
	if cfg.RateLimit.InterRefMs == 0 {
		cfg.RateLimit.InterRefMs = 3000
	}
	if cfg.ValidateTopK == 0 {
		cfg.ValidateTopK = 20
	}
	if cfg.RankBatchSize == 0 {
		cfg.RankBatchSize = 10
	}
	if cfg.RankTimeoutMs == 0 {
		cfg.RankTimeoutMs = 18000
	}
	if cfg.BatchVersion == "" {
		cfg.BatchVersion = "BATCH_v1.0"
	}
}
