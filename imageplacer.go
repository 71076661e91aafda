// Package imageplacer fits replacement pictures into page elements.
//
// A picture comes with crop limits: how many pixels may be trimmed from each
// edge without losing its subject. Given a target rectangle the placer
// computes how the picture is scaled, which window of it stays visible and
// how that window is centered in the target.
//
// Basic usage:
//
//	placer := imageplacer.New()
//
//	img, err := placer.LoadImage(ctx, "photo.jpg")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	// Crop limits are estimated from the picture content
//	pic, err := placer.PictureFromImage(ctx, img)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	pl := placer.Fit(pic, placement.Target{Width: 300, Height: 250})
//	fmt.Printf("scaled %dx%d, visible %dx%d\n",
//		pl.ScaledWidth, pl.ScaledHeight, pl.VisibleWidth, pl.VisibleHeight)
//
// The package consists of these components:
//
//  1. Placement (pkg/placement): the fitting math
//  2. Analyzer (pkg/analyzer): target validation and size types
//  3. Vision and Detection (pkg/vision, pkg/detection): crop limit estimation
//  4. Provider (pkg/provider): picture catalogs
//  5. Swapper and Render (pkg/swapper, pkg/render): page passes and CSS
//  6. Cropper (pkg/cropper): raster previews of placements
package imageplacer

import (
	"context"
	"fmt"
	"image"

	"github.com/menta2k/image-placer/internal/utils"
	"github.com/menta2k/image-placer/pkg/analyzer"
	"github.com/menta2k/image-placer/pkg/cropper"
	"github.com/menta2k/image-placer/pkg/placement"
	"github.com/menta2k/image-placer/pkg/processing"
	"github.com/menta2k/image-placer/pkg/provider"
	"github.com/menta2k/image-placer/pkg/types"
	"github.com/menta2k/image-placer/pkg/vision"
)

// Version of the image placer library
const Version = "1.0.0"

// ImagePlacer provides a high-level interface for fitting and previewing
// replacement pictures
type ImagePlacer struct {
	analyzer   *analyzer.SizeAnalyzer
	estimator  provider.MarginEstimator
	compositor *cropper.Compositor
	processor  *processing.Processor
}

// New creates a new ImagePlacer with default configuration
func New() *ImagePlacer {
	return &ImagePlacer{
		analyzer:   analyzer.New(),
		estimator:  vision.New(),
		compositor: cropper.New(),
		processor:  processing.NewProcessor(),
	}
}

// NewWithConfig creates a new ImagePlacer with custom configuration
func NewWithConfig(analyzerConfig analyzer.Config, visionConfig vision.DetectionConfig, cropperConfig cropper.Config) *ImagePlacer {
	return &ImagePlacer{
		analyzer:   analyzer.NewWithConfig(analyzerConfig),
		estimator:  vision.NewWithConfig(visionConfig),
		compositor: cropper.NewWithConfig(cropperConfig),
		processor:  processing.NewProcessor(),
	}
}

// SetEstimator replaces the crop limit estimator, for example with a model
// backed detection.Estimator. A nil estimator means pictures may not be
// cropped at all.
func (ip *ImagePlacer) SetEstimator(e provider.MarginEstimator) {
	ip.estimator = e
}

// AnalysisResult contains everything known about a picture
type AnalysisResult struct {
	Info     analyzer.ImageInfo `json:"info"`
	Margins  types.Margins      `json:"margins"`
	Picture  placement.Picture  `json:"picture"`
	Previews []SlotResult       `json:"previews"`
}

// SlotResult is a preview without its raster
type SlotResult struct {
	Slot      string              `json:"slot"`
	Width     int                 `json:"width"`
	Height    int                 `json:"height"`
	Placement placement.Placement `json:"placement"`
	Quality   float64             `json:"quality"`
}

// LoadImage loads an image from a file path or URL
func (ip *ImagePlacer) LoadImage(ctx context.Context, source string) (image.Image, error) {
	return ip.processor.LoadImage(ctx, source)
}

// SaveImage saves an image, the format follows the file extension
func (ip *ImagePlacer) SaveImage(img image.Image, path string) error {
	return ip.processor.SaveImage(img, path, utils.GetFileExtension(path), 90, false)
}

// Classify validates a target and returns its size type
func (ip *ImagePlacer) Classify(width, height float64) (analyzer.SizeType, error) {
	if err := ip.analyzer.ValidateSize(width, height); err != nil {
		return "", err
	}
	return ip.analyzer.Classify(width, height), nil
}

// Fit places pic inside target
func (ip *ImagePlacer) Fit(pic placement.Picture, target placement.Target) placement.Placement {
	return placement.Fit(pic, target)
}

// EstimateMargins returns how much of each edge of img may be cropped
func (ip *ImagePlacer) EstimateMargins(ctx context.Context, img image.Image) (types.Margins, error) {
	if ip.estimator == nil {
		return types.Margins{}, nil
	}
	return ip.estimator.EstimateMargins(ctx, img)
}

// PictureFromImage describes img with estimated crop limits
func (ip *ImagePlacer) PictureFromImage(ctx context.Context, img image.Image) (placement.Picture, error) {
	m, err := ip.EstimateMargins(ctx, img)
	if err != nil {
		return placement.Picture{}, fmt.Errorf("margin estimation failed: %w", err)
	}
	b := img.Bounds()
	return placement.Picture{
		Width:         float64(b.Dx()),
		Height:        float64(b.Dy()),
		CropLeftMax:   m.Left,
		CropRightMax:  m.Right,
		CropTopMax:    m.Top,
		CropBottomMax: m.Bottom,
	}, nil
}

// Preview paints img as it would appear in slot
func (ip *ImagePlacer) Preview(img image.Image, pic placement.Picture, slot cropper.Slot) cropper.Preview {
	return ip.compositor.Preview(img, pic, slot)
}

// AnalyzeImage estimates the crop limits of img and fits it into slots
func (ip *ImagePlacer) AnalyzeImage(ctx context.Context, img image.Image, slots []cropper.Slot) (AnalysisResult, error) {
	pic, err := ip.PictureFromImage(ctx, img)
	if err != nil {
		return AnalysisResult{}, err
	}

	res := AnalysisResult{
		Info: ip.analyzer.GetImageInfo(img),
		Margins: types.Margins{
			Left: pic.CropLeftMax, Right: pic.CropRightMax,
			Top: pic.CropTopMax, Bottom: pic.CropBottomMax,
		},
		Picture: pic,
	}
	for _, s := range slots {
		pl := ip.Fit(pic, s.Target())
		res.Previews = append(res.Previews, SlotResult{
			Slot:      s.Name,
			Width:     s.Width,
			Height:    s.Height,
			Placement: pl,
			Quality:   cropper.Quality(pl, s.Width, s.Height),
		})
	}
	return res, nil
}

// ProcessImageFile loads a picture, renders a preview for every slot and
// saves them into outputDir. It returns the written file names.
func (ip *ImagePlacer) ProcessImageFile(ctx context.Context, source, outputDir, format string, slots []cropper.Slot) ([]string, error) {
	img, err := ip.LoadImage(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("failed to load image: %w", err)
	}
	pic, err := ip.PictureFromImage(ctx, img)
	if err != nil {
		return nil, err
	}
	if err := utils.EnsureDir(outputDir); err != nil {
		return nil, err
	}

	var written []string
	for _, p := range ip.compositor.PreviewAll(img, pic, slots) {
		name := utils.OutputFilename(source, outputDir, format, p.Slot.Name)
		if err := ip.processor.SaveImage(p.Image, name, format, 90, false); err != nil {
			return written, fmt.Errorf("failed to save preview %s: %w", p.Slot.Name, err)
		}
		written = append(written, name)
	}
	return written, nil
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
