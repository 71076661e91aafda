package placement

// Picture describes the geometry of a replacement picture and how much of
// each edge may be trimmed while fitting it.
type Picture struct {
	Width         float64 `json:"width" yaml:"width"`
	Height        float64 `json:"height" yaml:"height"`
	CropLeftMax   float64 `json:"crop_left_max,omitempty" yaml:"crop_left_max,omitempty"`
	CropRightMax  float64 `json:"crop_right_max,omitempty" yaml:"crop_right_max,omitempty"`
	CropTopMax    float64 `json:"crop_top_max,omitempty" yaml:"crop_top_max,omitempty"`
	CropBottomMax float64 `json:"crop_bottom_max,omitempty" yaml:"crop_bottom_max,omitempty"`
}

// Target is the rectangle a picture has to fill. LeftMax and RightMax mirror
// the picture crop fields and are never read by Fit.
type Target struct {
	Width    float64 `json:"width" yaml:"width"`
	Height   float64 `json:"height" yaml:"height"`
	LeftMax  float64 `json:"left_max,omitempty" yaml:"left_max,omitempty"`
	RightMax float64 `json:"right_max,omitempty" yaml:"right_max,omitempty"`
}

// Placement is the outcome of fitting one picture into one target.
type Placement struct {
	ScaledWidth    int `json:"scaled_width"`
	ScaledHeight   int `json:"scaled_height"`
	CropOffsetLeft int `json:"crop_offset_left"`
	CropOffsetTop  int `json:"crop_offset_top"`
	VisibleWidth   int `json:"visible_width"`
	VisibleHeight  int `json:"visible_height"`
	PaddingTop     int `json:"padding_top"`
	PaddingLeft    int `json:"padding_left"`
}

// Geometry is the working record shared by pictures, targets and results.
//
// For pictures and targets X and Y are the size, Left/Right/Top/Bot the
// allowed crop per edge. For results X and Y are the scaled picture size,
// Width and Height the visible window, OffsetLeft/OffsetTop the crop offset
// into the scaled picture and Top/Left the padding around the window.
type Geometry struct {
	X, Y                  float64
	Left, Right, Top, Bot float64
	OffsetLeft, OffsetTop float64
	Width, Height         float64
}

// FromPicture builds the geometry of a picture, margins default to zero.
func FromPicture(p Picture) Geometry {
	return Geometry{
		X:      p.Width,
		Y:      p.Height,
		Left:   p.CropLeftMax,
		Right:  p.CropRightMax,
		Top:    p.CropTopMax,
		Bot:    p.CropBottomMax,
		Width:  p.Width,
		Height: p.Height,
	}
}

// FromTarget builds the geometry of a target rectangle.
func FromTarget(t Target) Geometry {
	return Geometry{
		X:      t.Width,
		Y:      t.Height,
		Left:   t.LeftMax,
		Right:  t.RightMax,
		Width:  t.Width,
		Height: t.Height,
	}
}

// Rotate mirrors g about its NW-SE diagonal. Rotating twice yields g again.
func Rotate(g Geometry) Geometry {
	g.X, g.Y = g.Y, g.X
	g.Left, g.Top = g.Top, g.Left
	g.Right, g.Bot = g.Bot, g.Right
	g.OffsetLeft, g.OffsetTop = g.OffsetTop, g.OffsetLeft
	g.Width, g.Height = g.Height, g.Width
	return g
}

// Placement converts a result geometry into its integer pixel form.
func (g Geometry) Placement() Placement {
	return Placement{
		ScaledWidth:    round(g.X),
		ScaledHeight:   round(g.Y),
		CropOffsetLeft: round(g.OffsetLeft),
		CropOffsetTop:  round(g.OffsetTop),
		VisibleWidth:   round(g.Width),
		VisibleHeight:  round(g.Height),
		PaddingTop:     round(g.Top),
		PaddingLeft:    round(g.Left),
	}
}

// Aspect returns X/Y.
func (g Geometry) Aspect() float64 {
	return g.X / g.Y
}
