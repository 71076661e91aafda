// Package provider holds the catalog of replacement pictures and picks the
// best candidate for a target.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	yaml "gopkg.in/yaml.v3"

	"github.com/menta2k/image-placer/pkg/analyzer"
	"github.com/menta2k/image-placer/pkg/placement"
	"github.com/menta2k/image-placer/pkg/types"
)

// ErrNoCandidate means no catalog picture suits the request
var ErrNoCandidate = errors.New("no suitable picture")

// Entry is one picture of the catalog
type Entry struct {
	URL            string              `json:"url" yaml:"url"`
	Width          float64             `json:"width,omitempty" yaml:"width,omitempty"`
	Height         float64             `json:"height,omitempty" yaml:"height,omitempty"`
	Types          []analyzer.SizeType `json:"types,omitempty" yaml:"types,omitempty"`
	CropLeftMax    *float64            `json:"crop_left_max,omitempty" yaml:"crop_left_max,omitempty"`
	CropRightMax   *float64            `json:"crop_right_max,omitempty" yaml:"crop_right_max,omitempty"`
	CropTopMax     *float64            `json:"crop_top_max,omitempty" yaml:"crop_top_max,omitempty"`
	CropBottomMax  *float64            `json:"crop_bottom_max,omitempty" yaml:"crop_bottom_max,omitempty"`
	AttributionURL string              `json:"attribution_url,omitempty" yaml:"attribution_url,omitempty"`
	Title          string              `json:"title,omitempty" yaml:"title,omitempty"`
	ChannelName    string              `json:"channel_name,omitempty" yaml:"channel_name,omitempty"`
	CustomImage    bool                `json:"custom_image,omitempty" yaml:"custom_image,omitempty"`
}

// HasMargins reports whether all four crop limits are known
func (e Entry) HasMargins() bool {
	return e.CropLeftMax != nil && e.CropRightMax != nil && e.CropTopMax != nil && e.CropBottomMax != nil
}

// SetMargins fills crop limits that are not set yet
func (e *Entry) SetMargins(m types.Margins) {
	fill := func(dst **float64, v float64) {
		if *dst == nil {
			*dst = &v
		}
	}
	fill(&e.CropLeftMax, m.Left)
	fill(&e.CropRightMax, m.Right)
	fill(&e.CropTopMax, m.Top)
	fill(&e.CropBottomMax, m.Bottom)
}

// Picture returns the geometry used for fitting. Unknown margins are 0.
func (e Entry) Picture() placement.Picture {
	val := func(p *float64) float64 {
		if p == nil {
			return 0
		}
		return *p
	}
	return placement.Picture{
		Width:         e.Width,
		Height:        e.Height,
		CropLeftMax:   val(e.CropLeftMax),
		CropRightMax:  val(e.CropRightMax),
		CropTopMax:    val(e.CropTopMax),
		CropBottomMax: val(e.CropBottomMax),
	}
}

func (e Entry) hasType(t analyzer.SizeType) bool {
	for _, et := range e.Types {
		if et == t {
			return true
		}
	}
	return false
}

// Catalog is the list of pictures to choose from
type Catalog struct {
	Channel string  `json:"channel,omitempty" yaml:"channel,omitempty"`
	Entries []Entry `json:"pictures" yaml:"pictures"`
}

// LoadCatalog reads a catalog file; .json files are JSON, anything else YAML
func LoadCatalog(filename string) (*Catalog, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	var c Catalog
	if strings.EqualFold(filepath.Ext(filename), ".json") {
		err = json.Unmarshal(data, &c)
	} else {
		err = yaml.Unmarshal(data, &c)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse catalog %s: %w", filename, err)
	}
	for i, e := range c.Entries {
		if e.URL == "" {
			return nil, fmt.Errorf("catalog %s: picture %d has no url", filename, i)
		}
	}
	return &c, nil
}

// Request describes the target a picture is wanted for
type Request struct {
	Width    float64
	Height   float64
	Type     analyzer.SizeType
	Position string
}

// Candidate is a picked picture together with its pass-through metadata
type Candidate struct {
	URL            string            `json:"url"`
	Picture        placement.Picture `json:"picture"`
	AttributionURL string            `json:"attribution_url,omitempty"`
	Title          string            `json:"title,omitempty"`
	ChannelName    string            `json:"channel_name,omitempty"`
	CustomImage    bool              `json:"custom_image,omitempty"`
}

// MarginEstimator derives crop limits for a picture
type MarginEstimator interface {
	EstimateMargins(ctx context.Context, img image.Image) (types.Margins, error)
}

// ImageLoader fetches pictures for probing
type ImageLoader interface {
	ProbeSize(ctx context.Context, source string) (int, int, error)
	LoadImage(ctx context.Context, source string) (image.Image, error)
}

// Provider picks catalog pictures for targets
type Provider struct {
	catalog *Catalog
	log     *zap.Logger
}

// New creates a provider over catalog
func New(catalog *Catalog, log *zap.Logger) *Provider {
	if log == nil {
		log = zap.NewNop()
	}
	if catalog == nil {
		catalog = &Catalog{}
	}
	return &Provider{catalog: catalog, log: log}
}

// Catalog returns the catalog the provider picks from
func (p *Provider) Catalog() *Catalog {
	return p.catalog
}

// Pick returns the best picture for req. Custom pictures are preferred,
// then pictures tagged with the request type, then pictures of the same
// orientation. Within a tier the closest aspect ratio wins.
func (p *Provider) Pick(req Request) (Candidate, bool) {
	tiers := [3][]Entry{}
	landscape, oriented := req.Type.Landscape()
	for _, e := range p.catalog.Entries {
		if e.Width <= 0 || e.Height <= 0 {
			continue
		}
		switch {
		case e.CustomImage:
			tiers[0] = append(tiers[0], e)
		case e.hasType(req.Type):
			tiers[1] = append(tiers[1], e)
		case oriented && (e.Width > e.Height) == landscape:
			tiers[2] = append(tiers[2], e)
		case !oriented:
			tiers[2] = append(tiers[2], e)
		}
	}

	want := req.Width / req.Height
	for _, tier := range tiers {
		if len(tier) == 0 {
			continue
		}
		best, bestDist := tier[0], aspectDistance(tier[0], want)
		for _, e := range tier[1:] {
			if d := aspectDistance(e, want); d < bestDist {
				best, bestDist = e, d
			}
		}
		p.log.Debug("Picture picked", zap.String("url", best.URL), zap.String("type", string(req.Type)), zap.Float64("aspect_distance", bestDist))
		return Candidate{
			URL:            best.URL,
			Picture:        best.Picture(),
			AttributionURL: best.AttributionURL,
			Title:          best.Title,
			ChannelName:    best.ChannelName,
			CustomImage:    best.CustomImage,
		}, true
	}
	return Candidate{}, false
}

// aspectDistance compares aspect ratios on a log scale so that 2:1 and 1:2
// are equally far from 1:1
func aspectDistance(e Entry, want float64) float64 {
	return math.Abs(math.Log((e.Width / e.Height) / want))
}

// Probe completes catalog entries: unknown sizes are read from the pictures
// and unknown crop limits come from estimator (when not nil). Entries that
// cannot be probed are dropped, their errors are returned together. When ctx
// is cancelled the entries not reached yet are kept unprobed.
func (p *Provider) Probe(ctx context.Context, loader ImageLoader, estimator MarginEstimator) error {
	var (
		errs error
		kept = make([]Entry, 0, len(p.catalog.Entries))
	)
	for i, e := range p.catalog.Entries {
		if err := ctx.Err(); err != nil {
			p.catalog.Entries = append(kept, p.catalog.Entries[i:]...)
			return multierr.Append(errs, err)
		}
		if err := p.probeEntry(ctx, &e, loader, estimator); err != nil {
			p.log.Warn("Dropping catalog picture", zap.String("url", e.URL), zap.Error(err))
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", e.URL, err))
			continue
		}
		kept = append(kept, e)
	}
	p.catalog.Entries = kept
	return errs
}

func (p *Provider) probeEntry(ctx context.Context, e *Entry, loader ImageLoader, estimator MarginEstimator) error {
	needMargins := estimator != nil && !e.HasMargins()
	if e.Width > 0 && e.Height > 0 && !needMargins {
		return nil
	}

	if !needMargins {
		w, h, err := loader.ProbeSize(ctx, e.URL)
		if err != nil {
			return err
		}
		e.Width, e.Height = float64(w), float64(h)
		return nil
	}

	img, err := loader.LoadImage(ctx, e.URL)
	if err != nil {
		return err
	}
	b := img.Bounds()
	// Margins are in the picture's own pixels; a declared size different
	// from the file is respected by scaling.
	sx, sy := 1.0, 1.0
	if e.Width > 0 && e.Height > 0 {
		sx, sy = e.Width/float64(b.Dx()), e.Height/float64(b.Dy())
	} else {
		e.Width, e.Height = float64(b.Dx()), float64(b.Dy())
	}

	m, err := estimator.EstimateMargins(ctx, img)
	if err != nil {
		return fmt.Errorf("margin estimation failed: %w", err)
	}
	e.SetMargins(types.Margins{Left: m.Left * sx, Right: m.Right * sx, Top: m.Top * sy, Bottom: m.Bottom * sy})
	p.log.Debug("Picture probed", zap.String("url", e.URL), zap.Float64("width", e.Width), zap.Float64("height", e.Height), zap.Any("margins", m))
	return nil
}
