// Package placement computes how a replacement picture is scaled, cropped and
// centered so that it fills a target rectangle.
//
// The math only handles targets that are narrower (by aspect ratio) than the
// picture, which means the picture gets cropped horizontally. Wider targets
// are solved by rotating both rectangles about their diagonal, fitting, and
// rotating the answer back.
//
// Fit never validates its inputs. Pictures and targets with non-positive
// sizes should be filtered out by the caller before fitting.
package placement

import "math"

// minCropBudget keeps the crop share division defined when a picture allows
// no cropping at all.
const minCropBudget = 0.001

// Fit places picture p inside target t.
func Fit(p Picture, t Target) Placement {
	return FitGeometry(FromPicture(p), FromTarget(t)).Placement()
}

// FitGeometry is Fit on raw geometries. Fields of the result are already
// rounded to whole pixels but may hold NaN or Inf for degenerate input.
func FitGeometry(p, t Geometry) Geometry {
	if t.Aspect() > p.Aspect() {
		return Rotate(fitHorizontal(Rotate(p), Rotate(t)))
	}
	return fitHorizontal(p, t)
}

// fitHorizontal solves the case where the target is at most as wide (by
// aspect) as the picture.
func fitHorizontal(p, t Geometry) Geometry {
	cropX, cropLeft := cropBudget(p, t)
	return compose(p, t, cropX, cropLeft)
}

// cropBudget returns the total horizontal crop and the part of it taken from
// the left edge. The crop is capped by the picture's allowed margins and may
// come out negative when the picture is relatively taller than the target.
func cropBudget(p, t Geometry) (cropX, cropLeft float64) {
	cropMax := math.Max(p.Left+p.Right, minCropBudget)
	targetAspect := t.X / t.Y
	cropX = math.Min(p.X-p.Y*targetAspect, cropMax)
	cropLeft = p.Left * (cropX / cropMax)
	return cropX, cropLeft
}

// compose scales the picture so that its cropped width matches the target
// and centers it vertically. Height overflow is expressed as negative padding.
func compose(p, t Geometry, cropX, cropLeft float64) Geometry {
	scale := t.X / (p.X - cropX)

	r := Geometry{
		X:          math.Round(p.X * scale),
		Y:          math.Round(p.Y * scale),
		OffsetLeft: math.Round(cropLeft * scale),
		OffsetTop:  0,
		Width:      math.Round(t.X),
	}
	r.Height = r.Y
	r.Top = math.Round((t.Y - r.Height) / 2)
	r.Left = 0
	return r
}

// round converts a pixel value to int. NaN becomes 0 and infinities saturate
// at the int32 range so that degenerate fits stay printable.
func round(v float64) int {
	switch {
	case math.IsNaN(v):
		return 0
	case v >= math.MaxInt32:
		return math.MaxInt32
	case v <= math.MinInt32:
		return math.MinInt32
	}
	return int(math.Round(v))
}
