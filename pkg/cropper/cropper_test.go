package cropper

import (
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/menta2k/image-placer/pkg/placement"
)

var (
	red   = color.NRGBA{255, 0, 0, 255}
	blue  = color.NRGBA{0, 0, 255, 255}
	black = color.NRGBA{0, 0, 0, 255}
)

// createTestImage fills the left half of the image with left and the right
// half with right
func createTestImage(width, height int, left, right color.Color) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if x < width/2 {
				img.Set(x, y, left)
			} else {
				img.Set(x, y, right)
			}
		}
	}
	return img
}

func sameColor(a, b color.Color) bool {
	r1, g1, b1, a1 := a.RGBA()
	r2, g2, b2, a2 := b.RGBA()
	return r1 == r2 && g1 == g2 && b1 == b2 && a1 == a2
}

func TestComposeCentersVertically(t *testing.T) {
	img := createTestImage(200, 100, red, red)
	pl := placement.Placement{
		ScaledWidth: 100, ScaledHeight: 50,
		VisibleWidth: 100, VisibleHeight: 50,
		PaddingTop: 25,
	}

	out := Compose(img, pl, 100, 100, black)
	if out.Bounds() != image.Rect(0, 0, 100, 100) {
		t.Fatalf("unexpected canvas bounds %v", out.Bounds())
	}

	tests := []struct {
		x, y int
		want color.Color
	}{
		{50, 10, black},
		{50, 50, red},
		{50, 90, black},
	}
	for _, tt := range tests {
		if got := out.At(tt.x, tt.y); !sameColor(got, tt.want) {
			t.Errorf("pixel (%d,%d) = %v, want %v", tt.x, tt.y, got, tt.want)
		}
	}

	if q := Quality(pl, 100, 100); q != 0.5 {
		t.Errorf("expected quality 0.5, got %f", q)
	}
}

func TestComposeAppliesCropOffset(t *testing.T) {
	img := createTestImage(100, 100, red, blue)
	pl := placement.Placement{
		ScaledWidth: 100, ScaledHeight: 100,
		CropOffsetLeft: 50,
		VisibleWidth:   50, VisibleHeight: 100,
	}

	out := Compose(img, pl, 50, 100, black)
	if got := out.At(10, 50); !sameColor(got, blue) {
		t.Errorf("expected the right half of the picture, got %v", got)
	}
	if q := Quality(pl, 50, 100); q != 1 {
		t.Errorf("expected full coverage, got %f", q)
	}
}

func TestComposeNegativeCropOffset(t *testing.T) {
	img := createTestImage(50, 50, red, red)
	pl := placement.Placement{
		ScaledWidth: 50, ScaledHeight: 50,
		CropOffsetLeft: -10,
		VisibleWidth:   50, VisibleHeight: 50,
	}

	out := Compose(img, pl, 50, 50, black)
	if got := out.At(5, 25); !sameColor(got, black) {
		t.Errorf("expected background left of the picture, got %v", got)
	}
	if got := out.At(20, 25); !sameColor(got, red) {
		t.Errorf("expected picture pixel, got %v", got)
	}
	if q := Quality(pl, 50, 50); math.Abs(q-0.8) > 1e-9 {
		t.Errorf("expected quality 0.8, got %f", q)
	}
}

func TestComposeEmptyPlacement(t *testing.T) {
	img := createTestImage(10, 10, red, red)
	out := Compose(img, placement.Placement{}, 20, 10, black)

	if got := out.At(5, 5); !sameColor(got, black) {
		t.Errorf("expected bare canvas, got %v", got)
	}
	if q := Quality(placement.Placement{}, 20, 10); q != 0 {
		t.Errorf("expected zero quality, got %f", q)
	}
	if q := Quality(placement.Placement{VisibleWidth: 5, VisibleHeight: 5}, 0, 0); q != 0 {
		t.Errorf("expected zero quality for empty target, got %f", q)
	}
}

func TestPreviewExactFit(t *testing.T) {
	c := New()
	img := createTestImage(300, 250, red, blue)
	pic := placement.Picture{Width: 300, Height: 250}

	p := c.Preview(img, pic, MediumRectangle)
	if p.Quality != 1 {
		t.Errorf("expected full coverage, got %f", p.Quality)
	}
	if p.Image.Bounds().Dx() != 300 || p.Image.Bounds().Dy() != 250 {
		t.Errorf("unexpected preview size %v", p.Image.Bounds())
	}
}

func TestPreviewAllHonorsThreshold(t *testing.T) {
	c := NewWithConfig(Config{QualityThreshold: 0.99})
	img := createTestImage(300, 250, red, blue)
	pic := placement.Picture{Width: 300, Height: 250}

	previews := c.PreviewAll(img, pic, []Slot{MediumRectangle, Leaderboard})
	if len(previews) != 1 {
		t.Fatalf("expected 1 preview, got %d", len(previews))
	}
	if previews[0].Slot != MediumRectangle {
		t.Errorf("expected medium rectangle, got %s", previews[0].Slot.Name)
	}
}

func TestSlotByName(t *testing.T) {
	s, err := SlotByName("leaderboard")
	if err != nil {
		t.Fatal(err)
	}
	if s.Width != 728 || s.Height != 90 {
		t.Errorf("unexpected leaderboard size %dx%d", s.Width, s.Height)
	}

	if _, err := SlotByName("nope"); err == nil {
		t.Error("expected error for unknown slot")
	}
}

func TestSourceWindow(t *testing.T) {
	// 1000x500 picture shown at half size with 100px cropped on the left
	pl := placement.Placement{
		ScaledWidth: 500, ScaledHeight: 250,
		CropOffsetLeft: 50,
		VisibleWidth:   300, VisibleHeight: 250,
	}
	want := image.Rect(100, 0, 700, 500)
	if got := SourceWindow(pl, 1000, 500); got != want {
		t.Errorf("SourceWindow = %v, want %v", got, want)
	}
	if got := SourceWindow(placement.Placement{}, 10, 10); !got.Empty() {
		t.Errorf("expected empty window, got %v", got)
	}
}

func BenchmarkCompose(b *testing.B) {
	img := createTestImage(1200, 800, red, blue)
	pic := placement.Picture{Width: 1200, Height: 800, CropLeftMax: 200, CropRightMax: 200}
	pl := placement.Fit(pic, MediumRectangle.Target())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Compose(img, pl, MediumRectangle.Width, MediumRectangle.Height, color.Transparent)
	}
}
