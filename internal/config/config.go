package config

import (
	"encoding/json"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/menta2k/image-placer/pkg/analyzer"
	"github.com/menta2k/image-placer/pkg/detection"
	"github.com/menta2k/image-placer/pkg/swapper"
	"github.com/menta2k/image-placer/pkg/vision"
)

// Config holds the application configuration
type Config struct {
	Placer  PlacerConfig  `yaml:"placer" json:"placer"`
	Margins MarginsConfig `yaml:"margins" json:"margins"`
	Vision  VisionConfig  `yaml:"vision" json:"vision"`
	Output  OutputConfig  `yaml:"output" json:"output"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// PlacerConfig holds target classification and page pass settings
type PlacerConfig struct {
	Catalog      string         `yaml:"catalog,omitempty" json:"catalog,omitempty"`
	MinDimension float64        `yaml:"min_dimension" json:"min_dimension"`
	WideRatio    float64        `yaml:"wide_ratio" json:"wide_ratio"`
	SkinnyRatio  float64        `yaml:"skinny_ratio" json:"skinny_ratio"`
	BigDimension float64        `yaml:"big_dimension" json:"big_dimension"`
	Swap         swapper.Config `yaml:"swap" json:"swap"`
}

// Margin estimation backends
const (
	BackendNone     = "none"
	BackendSaliency = "saliency"
	BackendOllama   = "ollama"
	BackendLlamaCpp = "llamacpp"
)

// MarginsConfig selects how missing crop limits are estimated
type MarginsConfig struct {
	Backend string  `yaml:"backend" json:"backend"`
	Padding float64 `yaml:"padding" json:"padding"`
}

// VisionConfig holds settings of both margin estimators
type VisionConfig struct {
	EdgeThreshold   float64 `yaml:"edge_threshold" json:"edge_threshold"`
	ContrastWeight  float64 `yaml:"contrast_weight" json:"contrast_weight"`
	ColorWeight     float64 `yaml:"color_weight" json:"color_weight"`
	MinSubjectRatio float64 `yaml:"min_subject_ratio" json:"min_subject_ratio"`
	TopRegions      int     `yaml:"top_regions" json:"top_regions"`
	AnalysisSize    int     `yaml:"analysis_size" json:"analysis_size"`

	OllamaURL     string  `yaml:"ollama_url" json:"ollama_url"`
	LlamaCppURL   string  `yaml:"llamacpp_url" json:"llamacpp_url"`
	Model         string  `yaml:"model" json:"model"`
	SendSize      int     `yaml:"send_size" json:"send_size"`
	SendQuality   int     `yaml:"send_quality" json:"send_quality"`
	MinConfidence float64 `yaml:"min_confidence" json:"min_confidence"`
}

// OutputConfig holds configuration for generated files
type OutputConfig struct {
	Format           string  `yaml:"format" json:"format"`
	Dir              string  `yaml:"dir" json:"dir"`
	Prefix           string  `yaml:"prefix,omitempty" json:"prefix,omitempty"`
	Suffix           string  `yaml:"suffix,omitempty" json:"suffix,omitempty"`
	Background       string  `yaml:"background" json:"background"`
	QualityThreshold float64 `yaml:"quality_threshold" json:"quality_threshold"`
	Overlay          bool    `yaml:"overlay" json:"overlay"`
}

// Default returns a configuration with default values
func Default() *Config {
	ac := analyzer.DefaultConfig()
	vc := vision.DefaultConfig()
	dc := detection.DefaultConfig()
	return &Config{
		Placer: PlacerConfig{
			MinDimension: ac.MinDimension,
			WideRatio:    ac.WideRatio,
			SkinnyRatio:  ac.SkinnyRatio,
			BigDimension: ac.BigDimension,
			Swap:         swapper.DefaultConfig(),
		},
		Margins: MarginsConfig{
			Backend: BackendSaliency,
			Padding: vc.Padding,
		},
		Vision: VisionConfig{
			EdgeThreshold:   vc.EdgeThreshold,
			ContrastWeight:  vc.ContrastWeight,
			ColorWeight:     vc.ColorWeight,
			MinSubjectRatio: vc.MinSubjectRatio,
			TopRegions:      vc.TopRegions,
			AnalysisSize:    vc.AnalysisSize,
			OllamaURL:       "http://localhost:11434",
			LlamaCppURL:     "http://localhost:8080",
			Model:           dc.Model,
			SendSize:        dc.SendSize,
			SendQuality:     dc.SendQuality,
			MinConfidence:   dc.MinConfidence,
		},
		Output: OutputConfig{
			Format:     "png",
			Dir:        "./output",
			Suffix:     "-preview",
			Background: "transparent",
		},
		Logging: LoggingConfig{
			Level: "normal",
			Mode:  "overwrite",
		},
	}
}

// LoadFromFile loads configuration on top of the defaults. Files ending in
// .json are read as JSON, anything else as YAML.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if strings.EqualFold(filepath.Ext(filename), ".json") {
		err = json.Unmarshal(data, config)
	} else {
		err = yaml.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", filename, err)
	}
	return config, nil
}

// Marshal renders the configuration as YAML
func (c *Config) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}

// SaveToFile saves configuration, as JSON when filename ends in .json and
// as YAML otherwise
func (c *Config) SaveToFile(filename string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if strings.EqualFold(filepath.Ext(filename), ".json") {
		data, err = json.MarshalIndent(c, "", "  ")
	} else {
		data, err = c.Marshal()
	}
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
	if c.Placer.MinDimension < 0 {
		return fmt.Errorf("placer.min_dimension must not be negative")
	}
	if c.Placer.WideRatio < 1 {
		return fmt.Errorf("placer.wide_ratio must be at least 1")
	}
	if c.Placer.SkinnyRatio < c.Placer.WideRatio {
		return fmt.Errorf("placer.skinny_ratio must not be below placer.wide_ratio")
	}
	if c.Placer.Swap.MaxSwaps < 0 {
		return fmt.Errorf("placer.swap.max_swaps must not be negative")
	}

	switch c.Margins.Backend {
	case BackendNone, BackendSaliency, BackendOllama, BackendLlamaCpp:
	default:
		return fmt.Errorf("margins.backend must be one of none, saliency, ollama, llamacpp")
	}
	if c.Margins.Padding < 0 || c.Margins.Padding > 1 {
		return fmt.Errorf("margins.padding must be between 0 and 1")
	}

	if c.Vision.EdgeThreshold < 0 || c.Vision.EdgeThreshold > 1 {
		return fmt.Errorf("vision.edge_threshold must be between 0 and 1")
	}
	if c.Vision.MinSubjectRatio < 0 || c.Vision.MinSubjectRatio > 1 {
		return fmt.Errorf("vision.min_subject_ratio must be between 0 and 1")
	}
	if c.Vision.SendQuality < 1 || c.Vision.SendQuality > 100 {
		return fmt.Errorf("vision.send_quality must be between 1 and 100")
	}

	switch strings.ToLower(c.Output.Format) {
	case "png", "jpg", "jpeg", "webp":
	default:
		return fmt.Errorf("output.format must be one of png, jpg, webp")
	}
	if _, err := c.Output.BackgroundColor(); err != nil {
		return err
	}
	if c.Output.QualityThreshold < 0 || c.Output.QualityThreshold > 1 {
		return fmt.Errorf("output.quality_threshold must be between 0 and 1")
	}

	switch c.Logging.Level {
	case "none", "normal", "debug":
	default:
		return fmt.Errorf("logging.level must be one of none, normal, debug")
	}
	return nil
}

// AnalyzerConfig returns the size classification thresholds
func (c *Config) AnalyzerConfig() analyzer.Config {
	return analyzer.Config{
		MinDimension: c.Placer.MinDimension,
		WideRatio:    c.Placer.WideRatio,
		SkinnyRatio:  c.Placer.SkinnyRatio,
		BigDimension: c.Placer.BigDimension,
	}
}

// SaliencyConfig returns settings of the local margin estimator
func (c *Config) SaliencyConfig() vision.DetectionConfig {
	return vision.DetectionConfig{
		EdgeThreshold:   c.Vision.EdgeThreshold,
		ContrastWeight:  c.Vision.ContrastWeight,
		ColorWeight:     c.Vision.ColorWeight,
		MinSubjectRatio: c.Vision.MinSubjectRatio,
		TopRegions:      c.Vision.TopRegions,
		Padding:         c.Margins.Padding,
		AnalysisSize:    c.Vision.AnalysisSize,
	}
}

// DetectionConfig returns settings of the model based margin estimator
func (c *Config) DetectionConfig() detection.Config {
	dc := detection.DefaultConfig()
	dc.Model = c.Vision.Model
	dc.SendSize = c.Vision.SendSize
	dc.SendQuality = c.Vision.SendQuality
	dc.MinConfidence = c.Vision.MinConfidence
	dc.Padding = c.Margins.Padding
	return dc
}

// BackgroundColor parses the preview background: "transparent", "#rgb" or
// "#rrggbb"
func (o OutputConfig) BackgroundColor() (color.Color, error) {
	s := strings.TrimSpace(strings.ToLower(o.Background))
	if s == "" || s == "transparent" {
		return color.Transparent, nil
	}

	hex := strings.TrimPrefix(s, "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil || len(hex) != 6 {
		return nil, fmt.Errorf("output.background %q is not a color", o.Background)
	}
	return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.yaml"
	}
	return filepath.Join(home, ".config", "image-placer", "config.yaml")
}
