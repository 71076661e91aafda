package types

// Box represents a normalized bounding box with coordinates in [0,1] range
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Subject is the part of a picture that must stay visible after cropping
type Subject struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
}

// SubjectResult is what a vision model reports about a picture
type SubjectResult struct {
	Subject     Subject  `json:"subject"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// Margins holds how many pixels may be trimmed from each edge of a picture
type Margins struct {
	Left   float64 `json:"left" yaml:"left"`
	Right  float64 `json:"right" yaml:"right"`
	Top    float64 `json:"top" yaml:"top"`
	Bottom float64 `json:"bottom" yaml:"bottom"`
}

// MarginsFromBox converts a normalized subject box into pixel margins of a
// width x height picture. Everything outside the box may be cropped.
func MarginsFromBox(b Box, width, height int) Margins {
	x0 := clamp01(b.X)
	y0 := clamp01(b.Y)
	x1 := clamp01(b.X + b.W)
	y1 := clamp01(b.Y + b.H)
	if x1 < x0 {
		x1 = x0
	}
	if y1 < y0 {
		y1 = y0
	}
	w, h := float64(width), float64(height)
	return Margins{
		Left:   x0 * w,
		Right:  (1 - x1) * w,
		Top:    y0 * h,
		Bottom: (1 - y1) * h,
	}
}

// Grow widens the box by ratio of its size on every side, staying inside [0,1]
func (b Box) Grow(ratio float64) Box {
	dx, dy := b.W*ratio, b.H*ratio
	x0, y0 := clamp01(b.X-dx), clamp01(b.Y-dy)
	x1, y1 := clamp01(b.X+b.W+dx), clamp01(b.Y+b.H+dy)
	return Box{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
