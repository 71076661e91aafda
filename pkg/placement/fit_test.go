package placement

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFitWidePictureIntoSquare(t *testing.T) {
	got := Fit(Picture{Width: 1600, Height: 900}, Target{Width: 300, Height: 300})

	assert.Equal(t, Placement{
		ScaledWidth:    300,
		ScaledHeight:   169,
		CropOffsetLeft: 0,
		CropOffsetTop:  0,
		VisibleWidth:   300,
		VisibleHeight:  169,
		PaddingTop:     66,
		PaddingLeft:    0,
	}, got)
}

func TestFitRotatesForWideTarget(t *testing.T) {
	// Left and right margins become top and bottom margins once the problem
	// is rotated, so they cannot help with the vertical crop a wide target
	// needs. The picture is letterboxed horizontally instead.
	got := Fit(
		Picture{Width: 300, Height: 300, CropLeftMax: 150, CropRightMax: 150},
		Target{Width: 600, Height: 200},
	)
	assert.Equal(t, Placement{
		ScaledWidth:    200,
		ScaledHeight:   200,
		CropOffsetLeft: 0,
		CropOffsetTop:  0,
		VisibleWidth:   200,
		VisibleHeight:  200,
		PaddingTop:     0,
		PaddingLeft:    200,
	}, got)

	// With vertical margins the whole budget is usable and the fit is exact.
	got = Fit(
		Picture{Width: 300, Height: 300, CropTopMax: 150, CropBottomMax: 150},
		Target{Width: 600, Height: 200},
	)
	assert.Equal(t, Placement{
		ScaledWidth:    600,
		ScaledHeight:   600,
		CropOffsetLeft: 0,
		CropOffsetTop:  200,
		VisibleWidth:   600,
		VisibleHeight:  200,
		PaddingTop:     0,
		PaddingLeft:    0,
	}, got)
}

var fitCases = []struct {
	name string
	p    Picture
	t    Target
}{
	{"wide into square", Picture{Width: 1600, Height: 900}, Target{Width: 300, Height: 300}},
	{"wide with margins", Picture{Width: 1200, Height: 800, CropLeftMax: 100, CropRightMax: 300}, Target{Width: 400, Height: 300}},
	{"tall into banner", Picture{Width: 400, Height: 900, CropTopMax: 200, CropBottomMax: 50}, Target{Width: 728, Height: 90}},
	{"square into skyscraper", Picture{Width: 500, Height: 500, CropLeftMax: 120, CropRightMax: 80}, Target{Width: 160, Height: 600}},
	{"small budget", Picture{Width: 1000, Height: 500, CropLeftMax: 10, CropRightMax: 10}, Target{Width: 300, Height: 250}},
	{"fractional target", Picture{Width: 640, Height: 480, CropLeftMax: 40, CropRightMax: 40}, Target{Width: 299.5, Height: 250.25}},
}

func TestFitDirectBranchFormulas(t *testing.T) {
	for _, tc := range fitCases {
		t.Run(tc.name, func(t *testing.T) {
			p, tg := FromPicture(tc.p), FromTarget(tc.t)
			if tg.Aspect() > p.Aspect() {
				t.Skip("rotated branch")
			}
			cropX, _ := cropBudget(p, tg)
			got := Fit(tc.p, tc.t)

			scale := tg.X / (p.X - cropX)
			assert.Equal(t, int(math.Round(p.X*scale)), got.ScaledWidth)
			assert.Equal(t, int(math.Round(tg.X)), got.VisibleWidth)
			assert.Equal(t, got.ScaledHeight, got.VisibleHeight)
			assert.Zero(t, got.CropOffsetTop)
			assert.Zero(t, got.PaddingLeft)
		})
	}
}

func TestFitRotationRoundTrip(t *testing.T) {
	for _, tc := range fitCases {
		t.Run(tc.name, func(t *testing.T) {
			p, tg := FromPicture(tc.p), FromTarget(tc.t)

			direct := FitGeometry(p, tg)
			rotated := Rotate(FitGeometry(Rotate(p), Rotate(tg)))

			assert.Equal(t, direct, rotated)
			assert.Equal(t, direct.Placement(), rotated.Placement())
		})
	}
}

func TestRotateTwiceIsIdentity(t *testing.T) {
	g := Geometry{X: 1, Y: 2, Left: 3, Right: 4, Top: 5, Bot: 6, OffsetLeft: 7, OffsetTop: 8, Width: 9, Height: 10}
	assert.Equal(t, g, Rotate(Rotate(g)))

	r := Rotate(g)
	assert.Equal(t, Geometry{X: 2, Y: 1, Left: 5, Right: 6, Top: 3, Bot: 4, OffsetLeft: 8, OffsetTop: 7, Width: 10, Height: 9}, r)
}

func TestCropBudgetWithoutMargins(t *testing.T) {
	tests := []struct {
		name      string
		p, t      Geometry
		wantCropX float64
	}{
		{"needed crop larger than floor", FromPicture(Picture{Width: 1600, Height: 900}), FromTarget(Target{Width: 300, Height: 300}), minCropBudget},
		{"same aspect", FromPicture(Picture{Width: 300, Height: 300}), FromTarget(Target{Width: 120, Height: 120}), 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cropX, cropLeft := cropBudget(tc.p, tc.t)
			assert.Zero(t, cropLeft)
			assert.InDelta(t, tc.wantCropX, cropX, 1e-12)
		})
	}
}

func TestCropBudgetSplitsProportionally(t *testing.T) {
	p := FromPicture(Picture{Width: 1200, Height: 800, CropLeftMax: 100, CropRightMax: 300})
	tg := FromTarget(Target{Width: 400, Height: 300})

	cropX, cropLeft := cropBudget(p, tg)
	assert.InDelta(t, 1200-800*4.0/3.0, cropX, 1e-9)
	assert.InDelta(t, cropX/4, cropLeft, 1e-9)
}

func TestCropBudgetKeepsNegativeCrop(t *testing.T) {
	p := FromPicture(Picture{Width: 100, Height: 200, CropLeftMax: 10})
	tg := FromTarget(Target{Width: 100, Height: 100})

	cropX, cropLeft := cropBudget(p, tg)
	assert.Equal(t, -100.0, cropX)
	assert.Equal(t, -100.0, cropLeft)
}

func TestFitMatchesTargetAspectWhenBudgetSuffices(t *testing.T) {
	tests := []struct {
		p  Picture
		tg Target
	}{
		{Picture{Width: 1000, Height: 500, CropLeftMax: 300, CropRightMax: 300}, Target{Width: 300, Height: 300}},
		{Picture{Width: 1200, Height: 800, CropLeftMax: 100, CropRightMax: 300}, Target{Width: 400, Height: 300}},
		{Picture{Width: 400, Height: 900, CropTopMax: 300, CropBottomMax: 300}, Target{Width: 300, Height: 250}},
	}
	for _, tc := range tests {
		got := Fit(tc.p, tc.tg)
		assert.InDelta(t, tc.tg.Width, got.VisibleWidth, 1)
		assert.InDelta(t, tc.tg.Height, got.VisibleHeight, 1)
		assert.InDelta(t, 0, got.PaddingTop, 1)
		assert.InDelta(t, 0, got.PaddingLeft, 1)
	}
}

func TestFitCentersVertically(t *testing.T) {
	p := Picture{Width: 1600, Height: 900}
	single := Fit(p, Target{Width: 300, Height: 300})
	double := Fit(p, Target{Width: 300, Height: 600})

	require.Equal(t, single.VisibleHeight, double.VisibleHeight)
	assert.Equal(t, int(math.Round(float64(2*300-double.VisibleHeight)/2)), double.PaddingTop)
	assert.Equal(t, 216, double.PaddingTop)
}

func TestComposeOverflowGivesNegativePadding(t *testing.T) {
	p := FromPicture(Picture{Width: 200, Height: 100})
	tg := FromTarget(Target{Width: 300, Height: 100})

	got := compose(p, tg, 0, 0)
	assert.Equal(t, 150.0, got.Height)
	assert.Equal(t, -25.0, got.Top)
	assert.Equal(t, -25, got.Placement().PaddingTop)
}

func TestFitDegenerateInput(t *testing.T) {
	g := FitGeometry(
		FromPicture(Picture{Width: 100, Height: 100, CropLeftMax: 100, CropRightMax: 100}),
		FromTarget(Target{Width: 0, Height: 100}),
	)
	assert.True(t, math.IsNaN(g.X))
	assert.Equal(t, 0, g.Placement().ScaledWidth)

	got := Fit(Picture{Width: 100, Height: 0, CropLeftMax: 50, CropRightMax: 50}, Target{Width: 100, Height: 100})
	assert.Equal(t, math.MaxInt32, got.ScaledWidth)
}

func BenchmarkFit(b *testing.B) {
	p := Picture{Width: 1600, Height: 900, CropLeftMax: 200, CropRightMax: 200}
	tg := Target{Width: 728, Height: 90}
	for i := 0; i < b.N; i++ {
		Fit(p, tg)
	}
}
