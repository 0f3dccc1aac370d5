package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/mde-formula-finder/internal/evolution"
	"github.com/banshee-data/mde-formula-finder/internal/fuelmodel"
	"github.com/banshee-data/mde-formula-finder/internal/optimizer"
)

// DefaultConfigPath is the path to the canonical defaults file.
const DefaultConfigPath = "config/fuelfit.defaults.json"

const maxFileSize = 1 * 1024 * 1024 // 1MB

// FitConfig is the root configuration. Every field is optional; the Get*
// methods supply defaults for anything left out, so partial files are safe.
// The optimizer fields share their JSON names with the start request body.
type FitConfig struct {
	// Optimizer
	PopulationSize *int     `json:"population_size,omitempty"`
	F              *float64 `json:"f,omitempty"`
	CR             *float64 `json:"cr,omitempty"`
	MaxGenerations *int     `json:"max_generations,omitempty"`
	RandomSeed     *uint64  `json:"random_seed,omitempty"`
	StepInterval   *string  `json:"step_interval,omitempty"` // duration string like "10ms"

	// Model
	Seed  *fuelmodel.FitParams           `json:"seed,omitempty"`
	Model *fuelmodel.CylinderModelParams `json:"model,omitempty"`

	// Service
	Listen     *string `json:"listen,omitempty"`
	GRPCListen *string `json:"grpc_listen,omitempty"`
	DBPath     *string `json:"db_path,omitempty"`
	DataFile   *string `json:"data_file,omitempty"`
}

// EmptyFitConfig returns a FitConfig with all fields nil.
func EmptyFitConfig() *FitConfig {
	return &FitConfig{}
}

// LoadFitConfig loads a FitConfig from a JSON file. The file must have a
// .json extension and be at most 1MB.
func LoadFitConfig(path string) (*FitConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyFitConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching upward from the
// working directory. Panics if the file cannot be loaded; intended for tests.
func MustLoadDefaultConfig() *FitConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/<pkg>/
		"../../../" + DefaultConfigPath, // from cmd/<tool>/ subdirectories
	}
	for _, path := range candidates {
		if cfg, err := LoadFitConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks the values that are set.
func (c *FitConfig) Validate() error {
	if c.PopulationSize != nil && *c.PopulationSize < evolution.MinPopulationSize {
		return fmt.Errorf("population_size must be at least %d, got %d", evolution.MinPopulationSize, *c.PopulationSize)
	}
	if c.F != nil && (math.IsNaN(*c.F) || *c.F < 0 || *c.F > 2) {
		return fmt.Errorf("f must be between 0 and 2, got %f", *c.F)
	}
	if c.CR != nil && (math.IsNaN(*c.CR) || *c.CR < 0 || *c.CR > 1) {
		return fmt.Errorf("cr must be between 0 and 1, got %f", *c.CR)
	}
	if c.MaxGenerations != nil && *c.MaxGenerations < 0 {
		return fmt.Errorf("max_generations must be non-negative, got %d", *c.MaxGenerations)
	}
	if c.StepInterval != nil && *c.StepInterval != "" {
		d, err := time.ParseDuration(*c.StepInterval)
		if err != nil {
			return fmt.Errorf("invalid step_interval '%s': %w", *c.StepInterval, err)
		}
		if d < 0 {
			return fmt.Errorf("step_interval must be non-negative, got %s", d)
		}
	}
	if c.Seed != nil {
		if err := c.Seed.Validate(); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
	}
	if c.Model != nil && c.Model.WavePeriod == 0 {
		return fmt.Errorf("model.wave_period must be non-zero")
	}
	return nil
}

// GetPopulationSize returns population_size or the default of 100.
func (c *FitConfig) GetPopulationSize() int {
	if c.PopulationSize == nil {
		return 100
	}
	return *c.PopulationSize
}

// GetF returns the differential weight or the default of 0.4.
func (c *FitConfig) GetF() float64 {
	if c.F == nil {
		return 0.4
	}
	return *c.F
}

// GetCR returns the crossover rate or the default of 0.5.
func (c *FitConfig) GetCR() float64 {
	if c.CR == nil {
		return 0.5
	}
	return *c.CR
}

// GetMaxGenerations returns max_generations or 0 (run until stopped).
func (c *FitConfig) GetMaxGenerations() int {
	if c.MaxGenerations == nil {
		return 0
	}
	return *c.MaxGenerations
}

// GetRandomSeed returns random_seed or 0 (entropy).
func (c *FitConfig) GetRandomSeed() uint64 {
	if c.RandomSeed == nil {
		return 0
	}
	return *c.RandomSeed
}

// GetStepInterval parses step_interval. Unset or invalid values give 0.
func (c *FitConfig) GetStepInterval() time.Duration {
	if c.StepInterval == nil || *c.StepInterval == "" {
		return 0
	}
	d, err := time.ParseDuration(*c.StepInterval)
	if err != nil {
		return 0
	}
	return d
}

// GetSeed returns the configured starting parameters or the defaults.
func (c *FitConfig) GetSeed() fuelmodel.FitParams {
	if c.Seed == nil {
		return fuelmodel.DefaultFitParams()
	}
	return *c.Seed
}

// GetModel returns the configured cylinder curve or the calibrated one.
func (c *FitConfig) GetModel() fuelmodel.CylinderModelParams {
	if c.Model == nil {
		return fuelmodel.DefaultCylinderModel()
	}
	return *c.Model
}

// GetListen returns the HTTP listen address.
func (c *FitConfig) GetListen() string {
	if c.Listen == nil {
		return ":8080"
	}
	return *c.Listen
}

// GetGRPCListen returns the gRPC health listen address. Empty disables it.
func (c *FitConfig) GetGRPCListen() string {
	if c.GRPCListen == nil {
		return ":8081"
	}
	return *c.GRPCListen
}

// GetDBPath returns the run archive path.
func (c *FitConfig) GetDBPath() string {
	if c.DBPath == nil {
		return "fuelfit.db"
	}
	return *c.DBPath
}

// GetDataFile returns the dataset loaded at startup, or "".
func (c *FitConfig) GetDataFile() string {
	if c.DataFile == nil {
		return ""
	}
	return *c.DataFile
}

// Request builds the default start request. The seed is left nil so the
// controller's current parameters are used.
func (c *FitConfig) Request() optimizer.Request {
	req := optimizer.Request{
		PopulationSize: c.GetPopulationSize(),
		F:              c.GetF(),
		CR:             c.GetCR(),
		MaxGenerations: c.GetMaxGenerations(),
		RandomSeed:     c.GetRandomSeed(),
	}
	if d := c.GetStepInterval(); d > 0 {
		req.StepInterval = d.String()
	}
	return req
}
