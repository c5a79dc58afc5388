// Package config provides configuration management for training runs and the
// prediction service.
//
// Values are resolved in three layers: defaults from New, then an optional YAML file,
// then PROSPENSITY_* environment variables.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	perrors "github.com/letstravel/prospensity/pkg/errors"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PROSPENSITY_"

// Default configuration values
const (
	DefaultSource        = "data/raw/tourism.csv"
	DefaultArtifactPath  = "models/model.gob"
	DefaultTarget        = "ProdTaken"
	DefaultIDColumn      = "CustomerID"
	DefaultRareThreshold = 10
	DefaultTestSize      = 0.2
	DefaultRandomState   = 42
	DefaultSampleSize    = 1000
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "json"
	DefaultListenAddr    = ":8000"
	DefaultAPIURL        = "http://localhost:8000/predict"
)

// Classifier holds the boosted-tree hyperparameters.
type Classifier struct {
	NEstimators    int     `json:"n_estimators" yaml:"n_estimators"`
	LearningRate   float64 `json:"learning_rate" yaml:"learning_rate"`
	MaxDepth       int     `json:"max_depth" yaml:"max_depth"`
	RegAlpha       float64 `json:"reg_alpha" yaml:"reg_alpha"`
	RegLambda      float64 `json:"reg_lambda" yaml:"reg_lambda"`
	MinChildWeight float64 `json:"min_child_weight" yaml:"min_child_weight"`
}

// Config represents the configuration of a training run and the serving process
type Config struct {
	// Training inputs and outputs
	Source       string `json:"source" yaml:"source"`               // Local path or s3://bucket/key
	ArtifactPath string `json:"artifact_path" yaml:"artifact_path"` // Fitted pipeline location
	SamplePath   string `json:"sample_path" yaml:"sample_path"`     // Optional sample export after a remote load
	SampleSize   int    `json:"sample_size" yaml:"sample_size"`
	CleanedPath  string `json:"cleaned_path" yaml:"cleaned_path"` // Optional cleaned CSV export
	JournalPath  string `json:"journal_path" yaml:"journal_path"` // Optional sqlite run journal
	ReportDir    string `json:"report_dir" yaml:"report_dir"`     // Optional feature-importance plots

	// Feature engineering
	Target        string  `json:"target" yaml:"target"`
	IDColumn      string  `json:"id_column" yaml:"id_column"`
	RareThreshold int     `json:"rare_threshold" yaml:"rare_threshold"`
	TestSize      float64 `json:"test_size" yaml:"test_size"`
	RandomState   uint64  `json:"random_state" yaml:"random_state"`

	Classifier Classifier `json:"classifier" yaml:"classifier"`

	// Serving
	ListenAddr string `json:"listen_addr" yaml:"listen_addr"`
	APIURL     string `json:"api_url" yaml:"api_url"`

	// Object store
	AWSRegion   string `json:"aws_region" yaml:"aws_region"`
	AWSEndpoint string `json:"aws_endpoint" yaml:"aws_endpoint"`

	LogLevel  string `json:"log_level" yaml:"log_level"`
	LogFormat string `json:"log_format" yaml:"log_format"` // json (zerolog) or text (slog)
}

// New creates a configuration with default values
func New() Config {
	return Config{
		Source:        DefaultSource,
		ArtifactPath:  DefaultArtifactPath,
		SampleSize:    DefaultSampleSize,
		Target:        DefaultTarget,
		IDColumn:      DefaultIDColumn,
		RareThreshold: DefaultRareThreshold,
		TestSize:      DefaultTestSize,
		RandomState:   DefaultRandomState,
		Classifier: Classifier{
			NEstimators:    100,
			LearningRate:   0.3,
			MaxDepth:       6,
			RegAlpha:       0.1,
			RegLambda:      5,
			MinChildWeight: 1,
		},
		ListenAddr: DefaultListenAddr,
		APIURL:     DefaultAPIURL,
		LogLevel:   DefaultLogLevel,
		LogFormat:  DefaultLogFormat,
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Source) == "" {
		return perrors.NewValidationError("source", "must not be empty", c.Source)
	}
	if strings.TrimSpace(c.ArtifactPath) == "" {
		return perrors.NewValidationError("artifact_path", "must not be empty", c.ArtifactPath)
	}
	if c.Target == "" {
		return perrors.NewValidationError("target", "must not be empty", c.Target)
	}
	if c.SampleSize <= 0 {
		return perrors.NewValidationError("sample_size", "must be positive", c.SampleSize)
	}
	if c.RareThreshold < 0 {
		return perrors.NewValidationError("rare_threshold", "must be non-negative", c.RareThreshold)
	}
	if c.TestSize <= 0 || c.TestSize >= 1 {
		return perrors.NewValidationError("test_size", "must be in (0, 1)", c.TestSize)
	}
	if c.Classifier.NEstimators <= 0 {
		return perrors.NewValidationError("classifier.n_estimators", "must be positive", c.Classifier.NEstimators)
	}
	if c.Classifier.LearningRate <= 0 {
		return perrors.NewValidationError("classifier.learning_rate", "must be positive", c.Classifier.LearningRate)
	}
	if c.Classifier.RegAlpha < 0 || c.Classifier.RegLambda < 0 {
		return perrors.NewValidationError("classifier", "regularization must be non-negative",
			fmt.Sprintf("reg_alpha=%g reg_lambda=%g", c.Classifier.RegAlpha, c.Classifier.RegLambda))
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return perrors.NewValidationError("log_level", "must be debug, info, warn or error", c.LogLevel)
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		return perrors.NewValidationError("log_format", "must be json or text", c.LogFormat)
	}
	return nil
}

// Load builds a configuration from defaults, the YAML file at path (skipped when
// path is empty) and environment overrides, then validates it.
func Load(path string) (Config, error) {
	c := New()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, perrors.Wrapf(err, "reading config file %s", path)
		}
		if err := c.decodeYAML(data); err != nil {
			return Config{}, perrors.Wrapf(err, "parsing config file %s", path)
		}
	}
	if err := c.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// decodeYAML overlays data onto c. Unknown keys are rejected.
func (c *Config) decodeYAML(data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(c)
}

// ApplyEnv overrides fields from PROSPENSITY_* variables looked up with lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"SOURCE":        &c.Source,
		"ARTIFACT_PATH": &c.ArtifactPath,
		"SAMPLE_PATH":   &c.SamplePath,
		"CLEANED_PATH":  &c.CleanedPath,
		"JOURNAL_PATH":  &c.JournalPath,
		"REPORT_DIR":    &c.ReportDir,
		"TARGET":        &c.Target,
		"ID_COLUMN":     &c.IDColumn,
		"LISTEN_ADDR":   &c.ListenAddr,
		"API_URL":       &c.APIURL,
		"AWS_REGION":    &c.AWSRegion,
		"AWS_ENDPOINT":  &c.AWSEndpoint,
		"LOG_LEVEL":     &c.LogLevel,
		"LOG_FORMAT":    &c.LogFormat,
	}
	for name, dst := range strs {
		if val, ok := lookup(EnvPrefix + name); ok {
			*dst = val
		}
	}

	ints := map[string]*int{
		"SAMPLE_SIZE":    &c.SampleSize,
		"RARE_THRESHOLD": &c.RareThreshold,
		"N_ESTIMATORS":   &c.Classifier.NEstimators,
		"MAX_DEPTH":      &c.Classifier.MaxDepth,
	}
	for name, dst := range ints {
		if val, ok := lookup(EnvPrefix + name); ok {
			parsed, err := strconv.Atoi(val)
			if err != nil {
				return perrors.NewValidationError(EnvPrefix+name, "must be an integer", val)
			}
			*dst = parsed
		}
	}

	floats := map[string]*float64{
		"TEST_SIZE":        &c.TestSize,
		"LEARNING_RATE":    &c.Classifier.LearningRate,
		"REG_ALPHA":        &c.Classifier.RegAlpha,
		"REG_LAMBDA":       &c.Classifier.RegLambda,
		"MIN_CHILD_WEIGHT": &c.Classifier.MinChildWeight,
	}
	for name, dst := range floats {
		if val, ok := lookup(EnvPrefix + name); ok {
			parsed, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return perrors.NewValidationError(EnvPrefix+name, "must be a number", val)
			}
			*dst = parsed
		}
	}

	if val, ok := lookup(EnvPrefix + "RANDOM_STATE"); ok {
		parsed, err := strconv.ParseUint(val, 10, 64)
		if err != nil {
			return perrors.NewValidationError(EnvPrefix+"RANDOM_STATE", "must be a non-negative integer", val)
		}
		c.RandomState = parsed
	}
	return nil
}

// ToYAML renders the configuration as YAML.
func (c Config) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}
