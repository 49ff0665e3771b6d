package config

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultClasses is the class vocabulary of the combined person/PPE datasets
var DefaultClasses = []string{
	"person", "hard-hat", "gloves", "mask", "glasses",
	"boots", "vest", "ppe-suit", "ear-protector", "safety-harness",
}

// Config holds the application configuration
type Config struct {
	Dataset  DatasetConfig  `json:"dataset"`
	Output   OutputConfig   `json:"output"`
	Classes  []string       `json:"classes"`
	Detector DetectorConfig `json:"detector"`
}

// DatasetConfig holds configuration for the label and crop jobs
type DatasetConfig struct {
	PersonClass    int    `json:"person_class"`
	Workers        int    `json:"workers"`
	Rounding       string `json:"rounding"`
	ImageExtension string `json:"image_extension"`
}

// OutputConfig holds configuration for written images. Format applies to
// annotated inference images; empty keeps the input extension. Crops are
// always JPEG.
type OutputConfig struct {
	Format   string `json:"format"`
	Quality  int    `json:"quality"`
	Lossless bool   `json:"lossless"`
}

// DetectorConfig holds configuration for the cascade detectors
type DetectorConfig struct {
	Backend        string  `json:"backend"`
	URL            string  `json:"url"`
	PersonModel    string  `json:"person_model"`
	PPEModel       string  `json:"ppe_model"`
	ConfThreshold  float64 `json:"conf_threshold"`
	IoUThreshold   float64 `json:"iou_threshold"`
	InputSize      int     `json:"input_size"`
	SharedLibPath  string  `json:"onnxruntime_lib"`
	TimeoutSeconds int     `json:"timeout_seconds"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Dataset: DatasetConfig{
			PersonClass:    0,
			Workers:        1,
			Rounding:       "truncate",
			ImageExtension: "jpg",
		},
		Output: OutputConfig{
			Quality: 95,
		},
		Classes: append([]string(nil), DefaultClasses...),
		Detector: DetectorConfig{
			Backend:        "onnx",
			ConfThreshold:  0.25,
			IoUThreshold:   0.45,
			InputSize:      640,
			TimeoutSeconds: 120,
		},
	}
}

// LoadFromFile loads configuration from a JSON file. Fields missing from
// the file keep their default values.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Dataset.Workers < 1 {
		return fmt.Errorf("dataset.workers must be at least 1")
	}

	if c.Dataset.PersonClass < 0 {
		return fmt.Errorf("dataset.person_class must not be negative")
	}

	switch c.Dataset.Rounding {
	case "", "truncate", "round":
	default:
		return fmt.Errorf("dataset.rounding must be truncate or round, got %q", c.Dataset.Rounding)
	}

	if c.Dataset.ImageExtension == "" {
		return fmt.Errorf("dataset.image_extension cannot be empty")
	}

	switch strings.ToLower(c.Output.Format) {
	case "", "jpg", "jpeg", "png", "webp":
	default:
		return fmt.Errorf("output.format must be jpg, png or webp, got %q", c.Output.Format)
	}

	if c.Output.Quality < 1 || c.Output.Quality > 100 {
		return fmt.Errorf("output.quality must be between 1 and 100")
	}

	if len(c.Classes) == 0 {
		return fmt.Errorf("classes cannot be empty")
	}

	switch c.Detector.Backend {
	case "onnx", "ollama", "llamacpp":
	default:
		return fmt.Errorf("detector.backend must be onnx, ollama or llamacpp, got %q", c.Detector.Backend)
	}

	if c.Detector.ConfThreshold < 0 || c.Detector.ConfThreshold > 1 {
		return fmt.Errorf("detector.conf_threshold must be between 0 and 1")
	}

	if c.Detector.IoUThreshold < 0 || c.Detector.IoUThreshold > 1 {
		return fmt.Errorf("detector.iou_threshold must be between 0 and 1")
	}

	if c.Detector.InputSize < 32 || c.Detector.InputSize%32 != 0 {
		return fmt.Errorf("detector.input_size must be a positive multiple of 32")
	}

	if c.Detector.TimeoutSeconds < 0 {
		return fmt.Errorf("detector.timeout_seconds cannot be negative")
	}

	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "ppe-cascade", "config.json")
}

// Load reads the config at path, or the default config path when path is
// empty. A missing default file yields Default().
func Load(path string) (*Config, error) {
	if path == "" {
		path = GetConfigPath()
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return Default(), nil
		}
	}
	cfg, err := LoadFromFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadClassFile reads a class vocabulary, one name per line. Blank lines and
// lines starting with # are ignored.
func LoadClassFile(filename string) ([]string, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open class file: %w", err)
	}
	defer f.Close()

	var classes []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		name := strings.TrimSpace(sc.Text())
		if name == "" || strings.HasPrefix(name, "#") {
			continue
		}
		classes = append(classes, name)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read class file: %w", err)
	}
	if len(classes) == 0 {
		return nil, fmt.Errorf("class file %s is empty", filename)
	}
	return classes, nil
}

// PPEClasses returns the PPE vocabulary: Classes without the person class.
// With person class 0 its indices match the ids written by label separation.
func (c *Config) PPEClasses() []string {
	var out []string
	for i, name := range c.Classes {
		if i != c.Dataset.PersonClass {
			out = append(out, name)
		}
	}
	return out
}

// Timeout returns the per-request timeout of vision-LLM backends; zero means
// the backend default.
func (d DetectorConfig) Timeout() time.Duration {
	return time.Duration(d.TimeoutSeconds) * time.Second
}
