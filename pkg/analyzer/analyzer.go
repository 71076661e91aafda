package analyzer

import (
	"errors"
	"fmt"
	"image"
	"math"
)

// ErrInvalidSize is returned for targets too small to host a replacement
var ErrInvalidSize = errors.New("invalid target size")

// SizeType classifies a target rectangle for picture selection
type SizeType string

// Known size types
const (
	Wide       SizeType = "wide"
	Tall       SizeType = "tall"
	SkinnyWide SizeType = "skinnywide"
	SkinnyTall SizeType = "skinnytall"
	Big        SizeType = "big"
	Small      SizeType = "small"
)

// SizeTypes returns every size type in a stable order
func SizeTypes() []SizeType {
	return []SizeType{Wide, Tall, SkinnyWide, SkinnyTall, Big, Small}
}

// Landscape reports whether pictures of this type are wider than tall.
// Big and Small have no orientation.
func (s SizeType) Landscape() (landscape, known bool) {
	switch s {
	case Wide, SkinnyWide:
		return true, true
	case Tall, SkinnyTall:
		return false, true
	}
	return false, false
}

// SizeAnalyzer validates and classifies target sizes
type SizeAnalyzer struct {
	config Config
}

// Config holds thresholds for size classification
type Config struct {
	MinDimension float64
	WideRatio    float64
	SkinnyRatio  float64
	BigDimension float64
}

// DefaultConfig returns the thresholds used by the replacement script
func DefaultConfig() Config {
	return Config{
		MinDimension: 60,
		WideRatio:    1.5,
		SkinnyRatio:  7,
		BigDimension: 125,
	}
}

// New creates a new SizeAnalyzer with default configuration
func New() *SizeAnalyzer {
	return &SizeAnalyzer{config: DefaultConfig()}
}

// NewWithConfig creates a new SizeAnalyzer with custom configuration
func NewWithConfig(config Config) *SizeAnalyzer {
	return &SizeAnalyzer{config: config}
}

// ValidateSize checks that both dimensions reach the configured minimum
func (a *SizeAnalyzer) ValidateSize(width, height float64) error {
	if math.IsNaN(width) || math.IsNaN(height) ||
		width < a.config.MinDimension || height < a.config.MinDimension {
		return fmt.Errorf("%w: %.0fx%.0f (minimum: %.0f)",
			ErrInvalidSize, width, height, a.config.MinDimension)
	}
	return nil
}

// Classify picks the size type for a width x height rectangle
func (a *SizeAnalyzer) Classify(width, height float64) SizeType {
	long, short := math.Max(width, height), math.Min(width, height)
	ratio := long / short
	landscape := width > height

	switch {
	case ratio >= a.config.SkinnyRatio:
		if landscape {
			return SkinnyWide
		}
		return SkinnyTall
	case ratio >= a.config.WideRatio:
		if landscape {
			return Wide
		}
		return Tall
	case long > a.config.BigDimension:
		return Big
	default:
		return Small
	}
}

// GetImageInfo returns basic information about an image
func (a *SizeAnalyzer) GetImageInfo(img image.Image) ImageInfo {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	return ImageInfo{
		Width:       width,
		Height:      height,
		AspectRatio: float64(width) / float64(height),
		Area:        width * height,
		Type:        a.Classify(float64(width), float64(height)),
	}
}

// ImageInfo contains basic image metadata
type ImageInfo struct {
	Width       int      `json:"width"`
	Height      int      `json:"height"`
	AspectRatio float64  `json:"aspect_ratio"`
	Area        int      `json:"area"`
	Type        SizeType `json:"type"`
}
