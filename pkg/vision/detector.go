package vision

import (
	"context"
	"image"
	"math"
	"sort"

	"github.com/disintegration/imaging"

	"github.com/menta2k/image-placer/pkg/types"
)

// SubjectDetector finds the salient part of a picture and derives how much
// of each edge can be cropped without cutting into it
type SubjectDetector struct {
	config DetectionConfig
}

// DetectionConfig holds configuration for subject detection
type DetectionConfig struct {
	EdgeThreshold   float64
	ContrastWeight  float64
	ColorWeight     float64
	MinSubjectRatio float64
	// TopRegions is how many of the best regions make up the subject
	TopRegions int
	// Padding grows the subject box before margins are computed
	Padding float64
	// AnalysisSize is the long side pictures are reduced to before analysis
	AnalysisSize int
}

// DefaultConfig returns the detector defaults
func DefaultConfig() DetectionConfig {
	return DetectionConfig{
		EdgeThreshold:   0.01,
		ContrastWeight:  0.3,
		ColorWeight:     0.2,
		MinSubjectRatio: 0.05,
		TopRegions:      3,
		Padding:         0.1,
		AnalysisSize:    256,
	}
}

// New creates a new SubjectDetector with default configuration
func New() *SubjectDetector {
	return &SubjectDetector{config: DefaultConfig()}
}

// NewWithConfig creates a new SubjectDetector with custom configuration
func NewWithConfig(config DetectionConfig) *SubjectDetector {
	return &SubjectDetector{config: config}
}

// Region represents a rectangular region of interest
type Region struct {
	X      int
	Y      int
	Width  int
	Height int
	Score  float64
}

// Area returns the area of the region
func (r Region) Area() int {
	return r.Width * r.Height
}

// Rect returns the region as an image rectangle
func (r Region) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// EstimateMargins returns the crop margins of img in its own pixels
func (d *SubjectDetector) EstimateMargins(ctx context.Context, img image.Image) (types.Margins, error) {
	if err := ctx.Err(); err != nil {
		return types.Margins{}, err
	}
	b := img.Bounds()
	box := d.SubjectBox(img).Grow(d.config.Padding)
	return types.MarginsFromBox(box, b.Dx(), b.Dy()), nil
}

// SubjectBox returns the normalized bounding box of the strongest regions.
// A picture without salient regions is treated as all subject.
func (d *SubjectDetector) SubjectBox(img image.Image) types.Box {
	small := img
	if n := d.config.AnalysisSize; n > 0 {
		b := img.Bounds()
		if b.Dx() > n || b.Dy() > n {
			small = imaging.Fit(img, n, n, imaging.Box)
		}
	}
	width, height := small.Bounds().Dx(), small.Bounds().Dy()
	if width == 0 || height == 0 {
		return types.Box{W: 1, H: 1}
	}

	regions := d.DetectSubjects(small)
	top := d.config.TopRegions
	if top <= 0 {
		top = 1
	}
	if len(regions) > top {
		regions = regions[:top]
	}
	if len(regions) == 0 {
		return types.Box{W: 1, H: 1}
	}

	union := regions[0].Rect()
	for _, r := range regions[1:] {
		union = union.Union(r.Rect())
	}
	fw, fh := float64(width), float64(height)
	return types.Box{
		X: float64(union.Min.X) / fw,
		Y: float64(union.Min.Y) / fh,
		W: float64(union.Dx()) / fw,
		H: float64(union.Dy()) / fh,
	}
}

// DetectSubjects analyzes an image and returns regions of interest, best first
func (d *SubjectDetector) DetectSubjects(img image.Image) []Region {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	saliencyMap := d.calculateSaliencyMap(img)
	regions := d.findImportantRegions(saliencyMap, width, height)
	return d.filterAndScoreRegions(regions, width, height)
}

func (d *SubjectDetector) calculateSaliencyMap(img image.Image) [][]float64 {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	saliencyMap := make([][]float64, height)
	for i := range saliencyMap {
		saliencyMap[i] = make([]float64, width)
	}

	neighbors := [][2]int{{-1, -1}, {-1, 0}, {-1, 1}, {0, -1}, {0, 1}, {1, -1}, {1, 0}, {1, 1}}
	for y := 1; y < height-1; y++ {
		for x := 1; x < width-1; x++ {
			r1, g1, b1, _ := img.At(x+bounds.Min.X, y+bounds.Min.Y).RGBA()

			var edgeStrength float64
			for _, off := range neighbors {
				r2, g2, b2, _ := img.At(x+off[0]+bounds.Min.X, y+off[1]+bounds.Min.Y).RGBA()
				dr := float64(r1) - float64(r2)
				dg := float64(g1) - float64(g2)
				db := float64(b1) - float64(b2)
				edgeStrength += math.Sqrt(dr*dr + dg*dg + db*db)
			}
			edgeStrength /= 8.0 * 65535.0

			brightness := (float64(r1) + float64(g1) + float64(b1)) / (3.0 * 65535.0)
			saliencyMap[y][x] = d.config.ContrastWeight*edgeStrength + d.config.ColorWeight*brightness
		}
	}

	return saliencyMap
}

func (d *SubjectDetector) findImportantRegions(saliencyMap [][]float64, width, height int) []Region {
	var regions []Region

	for _, windowSize := range []int{width / 12, width / 8, width / 4, width / 2} {
		if windowSize < 8 || windowSize > height {
			continue
		}
		step := max(windowSize/8, 1)
		for y := 0; y <= height-windowSize; y += step {
			for x := 0; x <= width-windowSize; x += step {
				score := regionScore(saliencyMap, x, y, windowSize, windowSize)
				if score > d.config.EdgeThreshold {
					regions = append(regions, Region{X: x, Y: y, Width: windowSize, Height: windowSize, Score: score})
				}
			}
		}
	}

	return regions
}

func regionScore(saliencyMap [][]float64, x, y, width, height int) float64 {
	var total float64
	count := 0
	for ry := y; ry < y+height && ry < len(saliencyMap); ry++ {
		for rx := x; rx < x+width && rx < len(saliencyMap[ry]); rx++ {
			total += saliencyMap[ry][rx]
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return total / float64(count)
}

func (d *SubjectDetector) filterAndScoreRegions(regions []Region, imageWidth, imageHeight int) []Region {
	minArea := int(float64(imageWidth*imageHeight) * d.config.MinSubjectRatio)

	var filtered []Region
	for _, region := range regions {
		if region.Area() >= minArea {
			filtered = append(filtered, region)
		}
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Score > filtered[j].Score
	})
	return filtered
}
