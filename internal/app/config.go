package app

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	StudyPath string // .hcl file or directory

	// DBPath enables the run snapshot store.
	DBPath string
	// OutputPath receives the anonymized values of a run as YAML.
	OutputPath string
	// FromRun reloads the inputs of a stored run, "latest" picks the newest
	// succeeded run of the study.
	FromRun string
	// Study filters history listings.
	Study string

	LogFormat string
	LogLevel  string
	MaxPasses int
	DryRun    bool
	Debounce  time.Duration
}

// LatestRun selects the newest succeeded run in FromRun.
const LatestRun = "latest"

const defaultDebounce = 300 * time.Millisecond

// NewConfig validates cfg and fills in defaults.
func NewConfig(cfg Config) (*Config, error) {
	var errs []string

	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		errs = append(errs, "invalid log-format: must be 'text' or 'json'")
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	if _, err := parseLevel(cfg.LogLevel); err != nil {
		errs = append(errs, err.Error())
	}

	if cfg.MaxPasses < 0 {
		errs = append(errs, fmt.Sprintf("max-passes must not be negative, got %d", cfg.MaxPasses))
	}
	if cfg.FromRun != "" && cfg.DBPath == "" {
		errs = append(errs, "from-run needs a snapshot database (--db)")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = defaultDebounce
	}

	if len(errs) > 0 {
		return nil, errors.New("invalid configuration:\n- " + strings.Join(errs, "\n- "))
	}
	return &cfg, nil
}

func (c *Config) requireStudy() error {
	if c.StudyPath == "" {
		return errors.New("a study path is required")
	}
	return nil
}
