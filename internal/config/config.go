package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/LdDl/lineage-go/lineage"
	"github.com/LdDl/lineage-go/mot"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// DefaultConfigName is looked up in the working directory when no --config is given.
const DefaultConfigName = "lineage.yaml"

// Config holds all lineage pipeline configuration.
type Config struct {
	// Dataset name recorded in summaries and the run store
	Dataset string `yaml:"dataset"`

	Input      InputConfig      `yaml:"input"`
	Output     OutputConfig     `yaml:"output"`
	Tracking   TrackingConfig   `yaml:"tracking"`
	Export     ExportConfig     `yaml:"export"`
	Evaluation EvaluationConfig `yaml:"evaluation"`
	Logging    LoggingConfig    `yaml:"logging"`
	Store      StoreConfig      `yaml:"store"`
}

// InputConfig locates segmentation masks and optional precomputed assignments.
type InputConfig struct {
	MaskDir     string `yaml:"mask_dir"`
	MaskPattern string `yaml:"mask_pattern"`
	// CSV dump of an external tracker. Empty means the built-in linker is used.
	Assignments string `yaml:"assignments"`
}

// OutputConfig configures where artifacts go.
type OutputConfig struct {
	Dir string `yaml:"dir"`
	// Napari artifacts are written to this subdirectory of Dir. Empty disables them.
	NapariDir string `yaml:"napari_dir"`
}

// TrackingConfig configures the built-in linker.
type TrackingConfig struct {
	Algorithm     string  `yaml:"algorithm"` // hungarian, greedy
	MinScore      float64 `yaml:"min_score"`
	DivisionScore float64 `yaml:"division_score"`
	DT            float64 `yaml:"dt"`
}

// ExportConfig configures CTC export.
type ExportConfig struct {
	Workers  int  `yaml:"workers"`
	Compress bool `yaml:"compress"`
	PadWidth int  `yaml:"pad_width"`
}

// EvaluationConfig configures the evaluator.
type EvaluationConfig struct {
	ShortTrackThreshold int  `yaml:"short_track_threshold"`
	Plots               bool `yaml:"plots"`
}

// LoggingConfig configures zap.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// StoreConfig configures the run catalogue. Empty path disables it.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	exportDefaults := lineage.DefaultExportConfig()
	return &Config{
		Dataset: "dataset",
		Input: InputConfig{
			MaskDir:     "masks",
			MaskPattern: "*.tif",
		},
		Output: OutputConfig{
			Dir:       "tracking_result",
			NapariDir: "napari",
		},
		Tracking: TrackingConfig{
			Algorithm:     mot.MatchingAlgorithmHungarian.String(),
			MinScore:      mot.DefaultMinScore,
			DivisionScore: mot.DefaultDivisionScore,
			DT:            1.0,
		},
		Export: ExportConfig{
			Workers:  exportDefaults.Workers,
			Compress: exportDefaults.Compress,
			PadWidth: exportDefaults.MinPadWidth,
		},
		Evaluation: EvaluationConfig{
			ShortTrackThreshold: lineage.DefaultEvaluationConfig().ShortTrackThreshold,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Store: StoreConfig{
			Path: "lineage_runs.db",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Defaults if config file doesn't exist
		data = nil
	}

	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	// Override with environment variables
	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if dir := os.Getenv("LINEAGE_OUTPUT"); dir != "" {
		c.Output.Dir = dir
	}
	if path := os.Getenv("LINEAGE_DB"); path != "" {
		c.Store.Path = path
	}
	if level := os.Getenv("LINEAGE_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// ValidLogFormats lists supported log encodings.
var ValidLogFormats = []string{"json", "console"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if _, err := mot.ParseMatchingAlgorithm(c.Tracking.Algorithm); err != nil {
		return err
	}
	if c.Tracking.MinScore < 0 || c.Tracking.MinScore >= 1 {
		return fmt.Errorf("tracking.min_score must be in [0, 1), got %v", c.Tracking.MinScore)
	}
	if c.Tracking.DivisionScore < 0 || c.Tracking.DivisionScore >= 1 {
		return fmt.Errorf("tracking.division_score must be in [0, 1), got %v", c.Tracking.DivisionScore)
	}
	if c.Export.Workers < 0 {
		return fmt.Errorf("export.workers must not be negative, got %d", c.Export.Workers)
	}
	if c.Evaluation.ShortTrackThreshold < 1 {
		return fmt.Errorf("evaluation.short_track_threshold must be positive, got %d", c.Evaluation.ShortTrackThreshold)
	}
	if _, err := zap.ParseAtomicLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid logging.level: %w", err)
	}
	validFormat := false
	for _, f := range ValidLogFormats {
		if c.Logging.Format == f {
			validFormat = true
			break
		}
	}
	if !validFormat {
		return fmt.Errorf("invalid logging.format: %s (valid: %v)", c.Logging.Format, ValidLogFormats)
	}
	return nil
}

// ExportOptions converts export section into lineage.ExportConfig.
func (c *Config) ExportOptions() lineage.ExportConfig {
	cfg := lineage.DefaultExportConfig()
	if c.Export.Workers > 0 {
		cfg.Workers = c.Export.Workers
	}
	cfg.Compress = c.Export.Compress
	if c.Export.PadWidth > 0 {
		cfg.MinPadWidth = c.Export.PadWidth
	}
	return cfg
}

// EvaluationOptions converts evaluation section into lineage.EvaluationConfig.
func (c *Config) EvaluationOptions() lineage.EvaluationConfig {
	return lineage.EvaluationConfig{ShortTrackThreshold: c.Evaluation.ShortTrackThreshold}
}

// Oracle returns assignment source: CSV dump when configured, built-in linker otherwise.
func (c *Config) Oracle(logger *zap.Logger) (lineage.AssignmentOracle, error) {
	if c.Input.Assignments != "" {
		return lineage.CSVAssignments{Path: c.Input.Assignments}, nil
	}
	algorithm, err := mot.ParseMatchingAlgorithm(c.Tracking.Algorithm)
	if err != nil {
		return nil, err
	}
	return &mot.CellOracle{
		Algorithm:     algorithm,
		MinScore:      c.Tracking.MinScore,
		DivisionScore: c.Tracking.DivisionScore,
		DT:            c.Tracking.DT,
		Logger:        logger,
	}, nil
}

// OracleName describes the assignment source for summaries.
func (c *Config) OracleName() string {
	if c.Input.Assignments != "" {
		return "csv:" + filepath.Base(c.Input.Assignments)
	}
	return "linker:" + c.Tracking.Algorithm
}
