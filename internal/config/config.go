// Package config loads the miner's configuration: defaults, then an
// optional YAML file, then CORRMINE_* environment variables, each layer
// overriding the previous one.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config is the complete application configuration.
type Config struct {
	Paths   PathsConfig   `yaml:"paths" envconfig:"PATHS"`
	Mining  MiningConfig  `yaml:"mining" envconfig:"MINING"`
	Server  ServerConfig  `yaml:"server" envconfig:"SERVER"`
	Logging LoggingConfig `yaml:"logging" envconfig:"LOGGING"`
}

// PathsConfig locates the dataset directory and the cache directory.
type PathsConfig struct {
	DataDir  string `yaml:"data_dir" envconfig:"DATA_DIR" validate:"required"`
	CacheDir string `yaml:"cache_dir" envconfig:"CACHE_DIR" validate:"required"`
}

// MiningConfig holds the correlation-search parameters.
type MiningConfig struct {
	// Mode selects the search algorithm: "screen" runs the rolling
	// window screen over every pair, "grid" the lag/window grid search.
	Mode string `yaml:"mode" envconfig:"MODE" validate:"oneof=screen grid"`

	// WindowSize is the rolling-correlation window for screen mode.
	WindowSize int `yaml:"window_size" envconfig:"WINDOW_SIZE" validate:"gt=1"`

	// Threshold is the minimum absolute correlation for a screened pair
	// to qualify.
	Threshold float64 `yaml:"threshold" envconfig:"THRESHOLD" validate:"gt=0,lte=1"`

	// Windows is the window-size set for grid mode.
	Windows []int `yaml:"windows" envconfig:"WINDOWS" validate:"min=1,dive,gt=1"`

	// MaxShift bounds the symmetric shift range for grid mode:
	// -MaxShift..+MaxShift inclusive.
	MaxShift int `yaml:"max_shift" envconfig:"MAX_SHIFT" validate:"gte=0"`

	// TopK is how many grid rows to report per pair.
	TopK int `yaml:"top_k" envconfig:"TOP_K" validate:"gt=0"`

	// Workers sizes the pair-evaluation pool; 0 means one per CPU.
	Workers int `yaml:"workers" envconfig:"WORKERS" validate:"gte=0"`

	// DefaultDateColumn and DefaultValueColumn apply to datasets the
	// column map does not mention.
	DefaultDateColumn  string `yaml:"default_date_column" envconfig:"DEFAULT_DATE_COLUMN" validate:"required"`
	DefaultValueColumn string `yaml:"default_value_column" envconfig:"DEFAULT_VALUE_COLUMN" validate:"required"`

	// ColumnMapFile points at the external JSON mapping of dataset file
	// names to their date/value columns. Optional.
	ColumnMapFile string `yaml:"column_map_file" envconfig:"COLUMN_MAP_FILE"`
}

// ServerConfig configures the report HTTP server.
type ServerConfig struct {
	Port         int           `yaml:"port" envconfig:"PORT" validate:"gt=0,lt=65536"`
	ReadTimeout  time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	RateRPS      float64       `yaml:"rate_rps" envconfig:"RATE_RPS" validate:"gt=0"`
	RateBurst    int           `yaml:"rate_burst" envconfig:"RATE_BURST" validate:"gt=0"`
}

// LoggingConfig configures slog output.
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn error"`
	Format   string `yaml:"format" envconfig:"FORMAT" validate:"oneof=json text"`
	Output   string `yaml:"output" envconfig:"OUTPUT" validate:"oneof=console file both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// Default returns the configuration defaults, matching the parameter
// space the grid search was designed around (monthly data, shifts up to
// one year in either direction).
func Default() Config {
	return Config{
		Paths: PathsConfig{
			DataDir:  "data",
			CacheDir: "cache",
		},
		Mining: MiningConfig{
			Mode:               "screen",
			WindowSize:         30,
			Threshold:          0.7,
			Windows:            []int{12, 24, 36, 48, 60},
			MaxShift:           12,
			TopK:               5,
			Workers:            runtime.NumCPU(),
			DefaultDateColumn:  "date",
			DefaultValueColumn: "value",
		},
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
			RateRPS:      100,
			RateBurst:    50,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "console",
			FilePath: "logs/miner.log",
		},
	}
}

// Load builds the configuration: defaults, overridden by the YAML file
// at configFile (skipped when empty or absent), overridden by
// CORRMINE_* environment variables, then validated.
func Load(configFile string) (*Config, error) {
	cfg := Default()

	if configFile != "" {
		if _, err := os.Stat(configFile); err == nil {
			data, err := os.ReadFile(configFile)
			if err != nil {
				return nil, fmt.Errorf("read config file: %w", err)
			}
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config file %s: %w", configFile, err)
			}
		}
	}

	if err := envconfig.Process("CORRMINE", &cfg); err != nil {
		return nil, fmt.Errorf("load config from env: %w", err)
	}

	if err := cfg.resolvePaths(); err != nil {
		return nil, fmt.Errorf("resolve paths: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// resolvePaths makes the configured paths absolute relative to the
// working directory.
func (c *Config) resolvePaths() error {
	wd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(wd, p)
	}

	c.Paths.DataDir = abs(c.Paths.DataDir)
	c.Paths.CacheDir = abs(c.Paths.CacheDir)
	c.Mining.ColumnMapFile = abs(c.Mining.ColumnMapFile)
	c.Logging.FilePath = abs(c.Logging.FilePath)
	return nil
}

// Validate checks field constraints and the cross-field rules the tag
// validator cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	if c.Logging.Output != "console" && c.Logging.FilePath == "" {
		return fmt.Errorf("logging output %q requires file_path", c.Logging.Output)
	}

	return nil
}

// LoadColumnMap reads the external column-mapping JSON: an object from
// dataset file name to a two-element [date_column, value_column] array.
func LoadColumnMap(path string) (map[string][2]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read column map: %w", err)
	}

	var raw map[string][]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse column map %s: %w", path, err)
	}

	out := make(map[string][2]string, len(raw))
	for name, cols := range raw {
		if len(cols) != 2 {
			return nil, fmt.Errorf("column map entry %q: want [date_column, value_column], got %d elements", name, len(cols))
		}
		out[name] = [2]string{cols[0], cols[1]}
	}
	return out, nil
}
