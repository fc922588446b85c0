// Package config defines the pipeline's configuration surface (spec
// §6 "CLI surface"): flag-equivalent fields, an optional TOML file
// layer, and cross-field validation.
package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	pkgerrors "github.com/standardbeagle/langid-train/internal/errors"
)

// Config mirrors the shared and train-specific CLI options of spec.md
// §6. CLI flags override whatever a loaded file sets.
type Config struct {
	Corpus string `toml:"corpus"`
	Model  string `toml:"model"`

	Proportion float64  `toml:"proportion"`
	MinDomain  int      `toml:"min_domain"`
	Langs      []string `toml:"lang"`
	Domains    []string `toml:"domain"`

	Jobs          int    `toml:"jobs"`
	Buckets       int    `toml:"buckets"`
	ChunkSize     int    `toml:"chunksize"`
	MaxOrder      int    `toml:"max_order"`
	DFTokens      int    `toml:"df_tokens"`
	FeatsPerLang  int    `toml:"feats_per_lang"`
	Word          bool   `toml:"word"`
	DFFeatsPath string `toml:"df_feats"`
	LDFeatsPath string `toml:"ld_feats"`
	NoDomainIG  bool   `toml:"no_domain_ig"`
	SampleSize  int    `toml:"sample_size"`
	// SampleCount is the number of sampled windows per document; -1 (the
	// default) means "read the whole document, no sampling". An explicit
	// 0 is rejected by Validate rather than silently treated as -1.
	SampleCount int     `toml:"sample_count"`
	TempDir     string  `toml:"temp"`
	Debug       bool    `toml:"debug"`
	ClassAlpha  float64 `toml:"class_alpha"`
	FeatureBeta float64 `toml:"feature_beta"`
}

// Defaults mirrors the constants at the top of the original
// implementation's train.py (TRAIN_PROP, MIN_DOMAIN, MAX_NGRAM_ORDER,
// TOP_DOC_FREQ, NUM_BUCKETS, CHUNKSIZE, FEATURES_PER_LANG).
func Defaults() Config {
	return Config{
		Proportion:   1.0,
		MinDomain:    1,
		Jobs:         1,
		Buckets:      64,
		ChunkSize:    50,
		MaxOrder:     4,
		DFTokens:     15000,
		FeatsPerLang: 300,
		SampleSize:   140,
		SampleCount:  -1,
		ClassAlpha:   1,
		FeatureBeta:  1,
	}
}

// Load starts from Defaults, overlays path (if it exists) as TOML, and
// returns the merged config. A missing path is not an error: the CLI
// layer is the primary configuration surface, this file is optional.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if path == "" {
		return &cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &cfg, nil
		}
		return nil, pkgerrors.NewIOError("read", path, err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, pkgerrors.NewConfigError("file", path, err)
	}
	return &cfg, nil
}

// Validate enforces the cross-field constraints named in spec.md §6/§9:
// --df_feats and --ld_feats are mutually exclusive, an explicit
// sample_count=0 is always rejected (-1 is the "whole document"
// sentinel), and every numeric knob that divides or scales something
// must be strictly positive.
func (c *Config) Validate() error {
	if c.DFFeatsPath != "" && c.LDFeatsPath != "" {
		return pkgerrors.NewConfigError("df_feats/ld_feats", "both set", fmt.Errorf("mutually exclusive"))
	}
	if c.Proportion <= 0 || c.Proportion > 1 {
		return pkgerrors.NewConfigError("proportion", fmt.Sprint(c.Proportion), fmt.Errorf("must be in (0, 1]"))
	}
	if c.MinDomain < 1 {
		return pkgerrors.NewConfigError("min_domain", fmt.Sprint(c.MinDomain), fmt.Errorf("must be >= 1"))
	}
	if c.Buckets < 1 {
		return pkgerrors.NewConfigError("buckets", fmt.Sprint(c.Buckets), fmt.Errorf("must be >= 1"))
	}
	if c.ChunkSize < 1 {
		return pkgerrors.NewConfigError("chunksize", fmt.Sprint(c.ChunkSize), fmt.Errorf("must be >= 1"))
	}
	if c.MaxOrder < 1 {
		return pkgerrors.NewConfigError("max_order", fmt.Sprint(c.MaxOrder), fmt.Errorf("must be >= 1"))
	}
	if c.Jobs < 1 {
		return pkgerrors.NewConfigError("jobs", fmt.Sprint(c.Jobs), fmt.Errorf("must be >= 1"))
	}
	if c.DFTokens < 1 {
		return pkgerrors.NewConfigError("df_tokens", fmt.Sprint(c.DFTokens), fmt.Errorf("must be >= 1"))
	}
	if c.FeatsPerLang < 1 {
		return pkgerrors.NewConfigError("feats_per_lang", fmt.Sprint(c.FeatsPerLang), fmt.Errorf("must be >= 1"))
	}
	// Open question (i): the intended behavior at sample_count=0 is
	// ambiguous in the original, so it is rejected outright here. -1 is
	// the sentinel for "whole document, no sampling"; any other negative
	// value is also an error.
	if c.SampleCount == 0 {
		return pkgerrors.NewConfigError("sample_count", fmt.Sprint(c.SampleCount), fmt.Errorf("must be -1 (whole document) or >= 1"))
	}
	if c.SampleCount < -1 {
		return pkgerrors.NewConfigError("sample_count", fmt.Sprint(c.SampleCount), fmt.Errorf("must be -1 (whole document) or >= 1"))
	}
	if c.SampleSize < 1 {
		return pkgerrors.NewConfigError("sample_size", fmt.Sprint(c.SampleSize), fmt.Errorf("must be >= 1"))
	}
	if c.ClassAlpha <= 0 {
		return pkgerrors.NewConfigError("class_alpha", fmt.Sprint(c.ClassAlpha), fmt.Errorf("must be > 0"))
	}
	if c.FeatureBeta <= 0 {
		return pkgerrors.NewConfigError("feature_beta", fmt.Sprint(c.FeatureBeta), fmt.Errorf("must be > 0"))
	}
	return nil
}
