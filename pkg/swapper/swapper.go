// Package swapper runs a replacement pass over a page: it finds elements
// that can host a picture, picks one for each and produces the CSS that
// paints it.
package swapper

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/menta2k/image-placer/pkg/analyzer"
	"github.com/menta2k/image-placer/pkg/page"
	"github.com/menta2k/image-placer/pkg/placement"
	"github.com/menta2k/image-placer/pkg/provider"
	"github.com/menta2k/image-placer/pkg/render"
)

// DefaultMaxSwaps is how many elements a single pass replaces by default
const DefaultMaxSwaps = 2

// Picker chooses a picture for a target
type Picker interface {
	Pick(req provider.Request) (provider.Candidate, bool)
}

// Limiter bounds the number of replacements of a single pass
type Limiter interface {
	Exhausted() bool
	Record()
}

type countLimiter struct {
	max, used int
}

// CountLimiter allows up to n replacements
func CountLimiter(n int) Limiter {
	return &countLimiter{max: n}
}

func (l *countLimiter) Exhausted() bool { return l.used >= l.max }
func (l *countLimiter) Record()         { l.used++ }

// Config selects which elements are replaced
type Config struct {
	Tags      []string `yaml:"tags" json:"tags"`
	AdIDs     []string `yaml:"ad_ids" json:"ad_ids"`
	AdClasses []string `yaml:"ad_classes" json:"ad_classes"`
	MaxSwaps  int      `yaml:"max_swaps" json:"max_swaps"`
}

// DefaultConfig replaces images and iframes plus a few common ad containers
func DefaultConfig() Config {
	return Config{
		Tags:      []string{"img", "iframe"},
		AdIDs:     []string{"ad", "ads", "banner"},
		AdClasses: []string{"ad", "ads", "advert", "banner-ad", "adsbygoogle"},
		MaxSwaps:  DefaultMaxSwaps,
	}
}

// Result is the outcome of one pass. Elements without an id are hidden
// through a generated one that the caller assigns to them; the page itself is
// never modified.
type Result struct {
	Replacements []render.Replacement `json:"replacements"`
	Hidden       []string             `json:"hidden"`
	CSS          []string             `json:"css"`
}

// Stylesheet joins the generated rules and the rule hiding the replaced
// elements
func (r Result) Stylesheet() string {
	var b strings.Builder
	for _, rule := range r.CSS {
		b.WriteString(rule)
	}
	b.WriteString(render.HideRule(r.Hidden))
	return b.String()
}

// Swapper replaces page elements with catalog pictures
type Swapper struct {
	picker     Picker
	analyzer   *analyzer.SizeAnalyzer
	renderer   *render.Renderer
	newLimiter func() Limiter
	config     Config
	log        *zap.Logger
}

// New creates a swapper picking pictures from picker
func New(picker Picker, config Config, log *zap.Logger) *Swapper {
	if log == nil {
		log = zap.NewNop()
	}
	if config.MaxSwaps <= 0 {
		config.MaxSwaps = DefaultMaxSwaps
	}
	maxSwaps := config.MaxSwaps
	return &Swapper{
		picker:     picker,
		analyzer:   analyzer.New(),
		renderer:   render.New(),
		newLimiter: func() Limiter { return CountLimiter(maxSwaps) },
		config:     config,
		log:        log,
	}
}

// SetAnalyzer replaces the size analyzer
func (s *Swapper) SetAnalyzer(a *analyzer.SizeAnalyzer) {
	s.analyzer = a
}

// SetRenderer replaces the CSS renderer
func (s *Swapper) SetRenderer(r *render.Renderer) {
	s.renderer = r
}

// SetLimiter makes every pass use a limiter produced by newLimiter
func (s *Swapper) SetLimiter(newLimiter func() Limiter) {
	s.newLimiter = newLimiter
}

// Run walks pg in document order and replaces candidate elements until the
// limiter is exhausted. Elements inside a replaced element are skipped.
// Rendering failures are collected and returned with the partial result.
func (s *Swapper) Run(ctx context.Context, pg *page.Page) (Result, error) {
	var (
		res      Result
		errs     error
		limiter  = s.newLimiter()
		replaced = make(map[*page.Element]bool)
	)

	pg.Walk(func(e *page.Element) bool {
		if err := ctx.Err(); err != nil {
			errs = multierr.Append(errs, err)
			return false
		}
		if limiter.Exhausted() {
			return false
		}
		if !s.isCandidate(e) || insideReplaced(e, replaced) {
			return true
		}

		rep, css, err := s.replace(e)
		if err != nil {
			if errors.Is(err, errSkipped) {
				s.log.Debug("Element skipped", zap.String("tag", e.Tag), zap.String("id", e.ID), zap.Error(err))
			} else {
				errs = multierr.Append(errs, err)
			}
			return true
		}

		limiter.Record()
		replaced[e] = true
		res.Replacements = append(res.Replacements, rep)
		res.Hidden = append(res.Hidden, rep.ElementID)
		res.CSS = append(res.CSS, css)
		s.log.Info("Element replaced",
			zap.String("id", rep.ElementID),
			zap.String("picture", rep.Candidate.URL),
			zap.Int("visible_width", rep.Placement.VisibleWidth),
			zap.Int("visible_height", rep.Placement.VisibleHeight))
		return true
	})
	return res, errs
}

var errSkipped = errors.New("element skipped")

func (s *Swapper) replace(e *page.Element) (render.Replacement, string, error) {
	size := page.ReadSize(e)
	if !size.Complete() {
		return render.Replacement{}, "", fmt.Errorf("%w: size unknown", errSkipped)
	}
	if err := s.analyzer.ValidateSize(size.X, size.Y); err != nil {
		return render.Replacement{}, "", fmt.Errorf("%w: %w", errSkipped, err)
	}

	typ := s.analyzer.Classify(size.X, size.Y)
	cand, ok := s.picker.Pick(provider.Request{Width: size.X, Height: size.Y, Type: typ, Position: size.Position})
	if !ok {
		return render.Replacement{}, "", fmt.Errorf("%w: %w for %s target", errSkipped, provider.ErrNoCandidate, typ)
	}

	rep := render.Replacement{
		ElementID: e.ID,
		Position:  size.Position,
		Candidate: cand,
		Placement: placement.Fit(cand.Picture, placement.Target{Width: size.X, Height: size.Y}),
	}
	s.renderer.Assign(&rep)
	if rep.ElementID == "" {
		rep.ElementID = rep.ContainerID + "-target"
	}

	css, err := s.renderer.Render(&rep)
	if err != nil {
		return render.Replacement{}, "", err
	}
	return rep, css, nil
}

func (s *Swapper) isCandidate(e *page.Element) bool {
	for _, tag := range s.config.Tags {
		if strings.EqualFold(e.Tag, tag) {
			return true
		}
	}
	for _, id := range s.config.AdIDs {
		if e.ID != "" && e.ID == id {
			return true
		}
	}
	for _, class := range s.config.AdClasses {
		if e.HasClass(class) {
			return true
		}
	}
	return false
}

func insideReplaced(e *page.Element, replaced map[*page.Element]bool) bool {
	for p := e.Parent(); p != nil; p = p.Parent() {
		if replaced[p] {
			return true
		}
	}
	return false
}
