// Package config provides configuration loading and management for atlasqc.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"atlasqc/pkg/consensus"
	"atlasqc/pkg/iar"
	"atlasqc/pkg/scoring"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Iterative atlas removal parameters
	IAR struct {
		// Structure is the label evaluated in every atlas
		Structure string `yaml:"structure"`

		// SmoothMaps enables Gaussian smoothing of the angular grids
		SmoothMaps bool `yaml:"smoothMaps"`

		// SmoothSigma is the smoothing width in grid cells
		SmoothSigma float64 `yaml:"smoothSigma"`

		// ZScore selects the dispersion estimator: MAD or std
		ZScore string `yaml:"zScore"`

		// OutlierMethod selects the threshold rule: IQR or std
		OutlierMethod string `yaml:"outlierMethod"`

		// MinBestAtlases is the minimum size of the threshold-setting subset
		MinBestAtlases int `yaml:"minBestAtlases"`

		// OutlierFactor multiplies the IQR or standard deviation
		OutlierFactor float64 `yaml:"outlierFactor"`

		// LogFile is the run log path; {time} and {structure} are expanded
		LogFile string `yaml:"logFile"`

		// SingleStep performs one removal round only
		SingleStep bool `yaml:"singleStep"`

		// TestThreshold reduces each candidate label
		TestThreshold float64 `yaml:"testThreshold"`

		// ConsensusThreshold reduces the combined probability map
		ConsensusThreshold float64 `yaml:"consensusThreshold"`

		// Consensus names the combination method: mean or vote
		Consensus string `yaml:"consensus"`
	} `yaml:"iar"`

	// Angular grid resolution schedule
	Resolution struct {
		Fine              float64 `yaml:"fine"`
		Intermediate      float64 `yaml:"intermediate"`
		Coarse            float64 `yaml:"coarse"`
		IntermediateBelow int     `yaml:"intermediateBelow"`
		CoarseBelow       int     `yaml:"coarseBelow"`
	} `yaml:"resolution"`

	// Processing parameters
	Processing struct {
		// NumCores specifies how many CPU cores to use for parallel processing
		NumCores int `yaml:"numCores"`
	} `yaml:"processing"`

	// Output parameters
	Output struct {
		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`

		// Debug prints Z-score statistics per atlas
		Debug bool `yaml:"debug"`

		// SaveIntermediaryResults writes per-iteration charts and grids
		SaveIntermediaryResults bool `yaml:"saveIntermediaryResults"`

		// IntermediaryDir is where intermediary results are written
		IntermediaryDir string `yaml:"intermediaryDir"`
	} `yaml:"output"`

	// MQTT publishing of iteration results; disabled when Broker is empty
	MQTT struct {
		Broker      string `yaml:"broker"`
		ClientID    string `yaml:"clientId"`
		Username    string `yaml:"username"`
		Password    string `yaml:"password"`
		TopicPrefix string `yaml:"topicPrefix"`
	} `yaml:"mqtt"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default IAR parameters
	cfg.IAR.SmoothMaps = false
	cfg.IAR.SmoothSigma = 1
	cfg.IAR.ZScore = "MAD"
	cfg.IAR.OutlierMethod = "IQR"
	cfg.IAR.MinBestAtlases = 10
	cfg.IAR.OutlierFactor = 1.5
	cfg.IAR.LogFile = "IAR_{time}.log"
	cfg.IAR.TestThreshold = 0.1
	cfg.IAR.ConsensusThreshold = 1
	cfg.IAR.Consensus = "mean"

	// Set default resolution schedule
	sched := iar.DefaultResolutionSchedule()
	cfg.Resolution.Fine = sched.Fine
	cfg.Resolution.Intermediate = sched.Intermediate
	cfg.Resolution.Coarse = sched.Coarse
	cfg.Resolution.IntermediateBelow = sched.IntermediateBelow
	cfg.Resolution.CoarseBelow = sched.CoarseBelow

	cfg.Processing.NumCores = runtime.NumCPU() // Use all available cores by default

	cfg.Output.Verbose = true
	cfg.Output.IntermediaryDir = "intermediary_results"

	cfg.MQTT.ClientID = "atlasqc"
	cfg.MQTT.TopicPrefix = "atlasqc"

	return cfg
}

// Validate checks values that would make a run meaningless. Unknown method
// names are configuration errors.
func (c *Config) Validate() error {
	var errs []error
	if c.IAR.Structure == "" {
		errs = append(errs, errors.New("iar.structure is required"))
	}
	if _, err := scoring.ParseDispersion(c.IAR.ZScore); err != nil {
		errs = append(errs, err)
	}
	if _, err := iar.ParseOutlierRule(c.IAR.OutlierMethod); err != nil {
		errs = append(errs, err)
	}
	if _, err := consensus.ByName(c.IAR.Consensus); err != nil {
		errs = append(errs, err)
	}
	if c.IAR.MinBestAtlases < 1 {
		errs = append(errs, fmt.Errorf("iar.minBestAtlases must be at least 1, got %d", c.IAR.MinBestAtlases))
	}
	if c.IAR.OutlierFactor < 0 {
		errs = append(errs, fmt.Errorf("iar.outlierFactor must not be negative, got %g", c.IAR.OutlierFactor))
	}
	if c.IAR.SmoothMaps && c.IAR.SmoothSigma <= 0 {
		errs = append(errs, fmt.Errorf("iar.smoothSigma must be positive when smoothing, got %g", c.IAR.SmoothSigma))
	}
	for name, v := range map[string]float64{
		"iar.testThreshold":      c.IAR.TestThreshold,
		"iar.consensusThreshold": c.IAR.ConsensusThreshold,
	} {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("%s must be in [0, 1], got %g", name, v))
		}
	}
	if c.Resolution.Fine <= 0 || c.Resolution.Intermediate <= 0 || c.Resolution.Coarse <= 0 {
		errs = append(errs, errors.New("resolution steps must be positive"))
	}
	if c.Resolution.IntermediateBelow < 1 || c.Resolution.CoarseBelow < 1 {
		errs = append(errs, fmt.Errorf("resolution pool-size thresholds must be positive, got intermediateBelow=%d coarseBelow=%d",
			c.Resolution.IntermediateBelow, c.Resolution.CoarseBelow))
	}
	if c.Resolution.CoarseBelow > c.Resolution.IntermediateBelow {
		errs = append(errs, fmt.Errorf("resolution.coarseBelow (%d) must not exceed resolution.intermediateBelow (%d)",
			c.Resolution.CoarseBelow, c.Resolution.IntermediateBelow))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", iar.ErrConfig, err)
	}
	return nil
}

// IARParams converts the configuration into remover parameters. An unknown
// consensus method falls back to the mean; Validate reports it.
func (c *Config) IARParams() *iar.Params {
	p := iar.DefaultParams(c.IAR.Structure)
	if combiner, err := consensus.ByName(c.IAR.Consensus); err == nil {
		p.Combiner = combiner
	}
	p.ZScore = c.IAR.ZScore
	p.OutlierMethod = c.IAR.OutlierMethod
	p.MinBestAtlases = c.IAR.MinBestAtlases
	p.OutlierFactor = c.IAR.OutlierFactor
	p.SmoothMaps = c.IAR.SmoothMaps
	p.SmoothSigma = c.IAR.SmoothSigma
	p.LogFile = c.IAR.LogFile
	p.SingleStep = c.IAR.SingleStep
	p.TestThreshold = c.IAR.TestThreshold
	p.ConsensusThreshold = c.IAR.ConsensusThreshold
	p.Verbose = c.Output.Verbose
	p.Debug = c.Output.Debug
	p.NumCores = c.Processing.NumCores
	p.Resolution = iar.ResolutionSchedule{
		Fine:              c.Resolution.Fine,
		Intermediate:      c.Resolution.Intermediate,
		Coarse:            c.Resolution.Coarse,
		IntermediateBelow: c.Resolution.IntermediateBelow,
		CoarseBelow:       c.Resolution.CoarseBelow,
	}
	return p
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
