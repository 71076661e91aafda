// Package cropper paints placements onto a raster canvas, reproducing what a
// browser shows for the generated CSS. It is used for previews and for
// checking placements visually.
package cropper

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"

	"github.com/menta2k/image-placer/pkg/placement"
)

// Slot is a named target rectangle
type Slot struct {
	Name   string
	Width  int
	Height int
}

// Common ad slot sizes
var (
	MediumRectangle = Slot{"medium-rectangle", 300, 250}
	LargeRectangle  = Slot{"large-rectangle", 336, 280}
	Leaderboard     = Slot{"leaderboard", 728, 90}
	Billboard       = Slot{"billboard", 970, 250}
	Skyscraper      = Slot{"skyscraper", 160, 600}
	HalfPage        = Slot{"half-page", 300, 600}
	MobileBanner    = Slot{"mobile-banner", 320, 50}
)

// CommonSlots returns the slot sizes previews are rendered for by default
func CommonSlots() []Slot {
	return []Slot{MediumRectangle, LargeRectangle, Leaderboard, Billboard, Skyscraper, HalfPage, MobileBanner}
}

// SlotByName looks up one of the common slots
func SlotByName(name string) (Slot, error) {
	for _, s := range CommonSlots() {
		if s.Name == name {
			return s, nil
		}
	}
	return Slot{}, fmt.Errorf("unknown slot %q", name)
}

// Target converts the slot into a fitter target
func (s Slot) Target() placement.Target {
	return placement.Target{Width: float64(s.Width), Height: float64(s.Height)}
}

// Preview is a rendered placement
type Preview struct {
	Slot      Slot
	Placement placement.Placement
	Image     *image.NRGBA
	Quality   float64
}

// Config holds preview settings
type Config struct {
	Background       color.Color
	QualityThreshold float64
}

// Compositor fits pictures into slots and paints the result
type Compositor struct {
	config Config
}

// New creates a compositor with a transparent background and no quality
// threshold
func New() *Compositor {
	return NewWithConfig(Config{Background: color.Transparent})
}

// NewWithConfig creates a compositor with custom configuration
func NewWithConfig(config Config) *Compositor {
	if config.Background == nil {
		config.Background = color.Transparent
	}
	return &Compositor{config: config}
}

// Preview fits pic into slot and paints img accordingly
func (c *Compositor) Preview(img image.Image, pic placement.Picture, slot Slot) Preview {
	pl := placement.Fit(pic, slot.Target())
	return Preview{
		Slot:      slot,
		Placement: pl,
		Image:     Compose(img, pl, slot.Width, slot.Height, c.config.Background),
		Quality:   Quality(pl, slot.Width, slot.Height),
	}
}

// PreviewAll renders a preview for every slot, skipping results below the
// configured quality threshold
func (c *Compositor) PreviewAll(img image.Image, pic placement.Picture, slots []Slot) []Preview {
	previews := make([]Preview, 0, len(slots))
	for _, s := range slots {
		p := c.Preview(img, pic, s)
		if p.Quality < c.config.QualityThreshold {
			continue
		}
		previews = append(previews, p)
	}
	return previews
}

// Compose scales img to the placement's scaled size, clips the visible
// window at the crop offsets and pastes it at the padding offsets onto a
// targetW x targetH canvas filled with bg.
func Compose(img image.Image, pl placement.Placement, targetW, targetH int, bg color.Color) *image.NRGBA {
	canvas := imaging.New(targetW, targetH, bg)
	if pl.ScaledWidth <= 0 || pl.ScaledHeight <= 0 {
		return canvas
	}

	scaled := imaging.Resize(img, pl.ScaledWidth, pl.ScaledHeight, imaging.Lanczos)
	window := visibleWindow(pl)
	clipped := window.Intersect(scaled.Bounds())
	if clipped.Empty() {
		return canvas
	}

	at := image.Pt(pl.PaddingLeft+clipped.Min.X-window.Min.X, pl.PaddingTop+clipped.Min.Y-window.Min.Y)
	return imaging.Paste(canvas, imaging.Crop(scaled, clipped), at)
}

// Quality is the fraction of the target area covered by picture pixels
func Quality(pl placement.Placement, targetW, targetH int) float64 {
	if targetW <= 0 || targetH <= 0 {
		return 0
	}

	window := visibleWindow(pl)
	painted := window.Intersect(image.Rect(0, 0, pl.ScaledWidth, pl.ScaledHeight))
	if painted.Empty() {
		return 0
	}
	painted = painted.Add(image.Pt(pl.PaddingLeft-window.Min.X, pl.PaddingTop-window.Min.Y))
	covered := painted.Intersect(image.Rect(0, 0, targetW, targetH))
	if covered.Empty() {
		return 0
	}
	return float64(covered.Dx()*covered.Dy()) / float64(targetW*targetH)
}

func visibleWindow(pl placement.Placement) image.Rectangle {
	return image.Rect(pl.CropOffsetLeft, pl.CropOffsetTop,
		pl.CropOffsetLeft+pl.VisibleWidth, pl.CropOffsetTop+pl.VisibleHeight)
}

// SourceWindow maps the visible window of pl back onto the original
// picture of picW x picH pixels
func SourceWindow(pl placement.Placement, picW, picH int) image.Rectangle {
	if pl.ScaledWidth <= 0 || pl.ScaledHeight <= 0 {
		return image.Rectangle{}
	}
	sx := float64(picW) / float64(pl.ScaledWidth)
	sy := float64(picH) / float64(pl.ScaledHeight)
	w := visibleWindow(pl).Intersect(image.Rect(0, 0, pl.ScaledWidth, pl.ScaledHeight))
	return image.Rect(
		int(math.Round(float64(w.Min.X)*sx)), int(math.Round(float64(w.Min.Y)*sy)),
		int(math.Round(float64(w.Max.X)*sx)), int(math.Round(float64(w.Max.Y)*sy)),
	)
}
