package provider

import (
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/menta2k/image-placer/pkg/analyzer"
	"github.com/menta2k/image-placer/pkg/types"
)

func ptr(v float64) *float64 { return &v }

func sampleCatalog() *Catalog {
	return &Catalog{Entries: []Entry{
		{URL: "wide.jpg", Width: 1600, Height: 900, Types: []analyzer.SizeType{analyzer.Wide}, Title: "Wide"},
		{URL: "banner.jpg", Width: 1456, Height: 180, Types: []analyzer.SizeType{analyzer.SkinnyWide}},
		{URL: "portrait.jpg", Width: 600, Height: 1000, Types: []analyzer.SizeType{analyzer.Tall}},
		{URL: "square.jpg", Width: 800, Height: 800},
		{URL: "unsized.jpg"},
	}}
}

func TestPickByType(t *testing.T) {
	p := New(sampleCatalog(), nil)

	c, ok := p.Pick(Request{Width: 728, Height: 90, Type: analyzer.SkinnyWide})
	require.True(t, ok)
	assert.Equal(t, "banner.jpg", c.URL)
	assert.Equal(t, 1456.0, c.Picture.Width)

	c, ok = p.Pick(Request{Width: 160, Height: 600, Type: analyzer.Tall})
	require.True(t, ok)
	assert.Equal(t, "portrait.jpg", c.URL)
}

func TestPickFallsBackToOrientation(t *testing.T) {
	p := New(sampleCatalog(), nil)

	// No entry is tagged skinnytall; the only portrait picture qualifies.
	c, ok := p.Pick(Request{Width: 90, Height: 728, Type: analyzer.SkinnyTall})
	require.True(t, ok)
	assert.Equal(t, "portrait.jpg", c.URL)
}

func TestPickClosestAspectForBig(t *testing.T) {
	p := New(sampleCatalog(), nil)

	c, ok := p.Pick(Request{Width: 300, Height: 250, Type: analyzer.Big})
	require.True(t, ok)
	assert.Equal(t, "square.jpg", c.URL)
}

func TestPickPrefersCustomImages(t *testing.T) {
	cat := sampleCatalog()
	cat.Entries = append(cat.Entries, Entry{URL: "mine.png", Width: 100, Height: 400, CustomImage: true})
	p := New(cat, nil)

	c, ok := p.Pick(Request{Width: 728, Height: 90, Type: analyzer.SkinnyWide})
	require.True(t, ok)
	assert.Equal(t, "mine.png", c.URL)
	assert.True(t, c.CustomImage)
}

func TestPickNothingSuitable(t *testing.T) {
	p := New(&Catalog{Entries: []Entry{{URL: "wide.jpg", Width: 1600, Height: 900}}}, nil)

	_, ok := p.Pick(Request{Width: 160, Height: 600, Type: analyzer.Tall})
	assert.False(t, ok)
}

func TestEntryPictureMargins(t *testing.T) {
	e := Entry{URL: "x", Width: 100, Height: 50, CropLeftMax: ptr(10)}
	assert.False(t, e.HasMargins())

	e.SetMargins(types.Margins{Left: 99, Right: 20, Top: 5, Bottom: 6})
	require.True(t, e.HasMargins())

	pic := e.Picture()
	assert.Equal(t, 10.0, pic.CropLeftMax, "existing limit must not be overwritten")
	assert.Equal(t, 20.0, pic.CropRightMax)
	assert.Equal(t, 5.0, pic.CropTopMax)
	assert.Equal(t, 6.0, pic.CropBottomMax)
}

func TestLoadCatalog(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "catalog.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
channel: cats
pictures:
  - url: https://example.com/cat.jpg
    width: 1200
    height: 800
    types: [wide, big]
    crop_left_max: 100
    crop_right_max: 50
    title: A cat
`), 0o644))

	c, err := LoadCatalog(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "cats", c.Channel)
	require.Len(t, c.Entries, 1)
	assert.Equal(t, []analyzer.SizeType{analyzer.Wide, analyzer.Big}, c.Entries[0].Types)
	assert.Equal(t, 100.0, c.Entries[0].Picture().CropLeftMax)
	assert.Nil(t, c.Entries[0].CropTopMax)

	jsonPath := filepath.Join(dir, "catalog.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"pictures":[{"width":10}]}`), 0o644))
	_, err = LoadCatalog(jsonPath)
	assert.Error(t, err, "entry without url must be rejected")
}

type fakeLoader struct {
	sizes map[string][2]int
}

func (f fakeLoader) ProbeSize(_ context.Context, source string) (int, int, error) {
	s, ok := f.sizes[source]
	if !ok {
		return 0, 0, errors.New("not found")
	}
	return s[0], s[1], nil
}

func (f fakeLoader) LoadImage(ctx context.Context, source string) (image.Image, error) {
	w, h, err := f.ProbeSize(ctx, source)
	if err != nil {
		return nil, err
	}
	return image.NewRGBA(image.Rect(0, 0, w, h)), nil
}

type fixedEstimator struct{ m types.Margins }

func (f fixedEstimator) EstimateMargins(context.Context, image.Image) (types.Margins, error) {
	return f.m, nil
}

func TestProbe(t *testing.T) {
	cat := &Catalog{Entries: []Entry{
		{URL: "a.jpg"},
		{URL: "b.jpg", Width: 400, Height: 200},
		{URL: "missing.jpg"},
	}}
	loader := fakeLoader{sizes: map[string][2]int{"a.jpg": {300, 200}, "b.jpg": {200, 100}}}
	p := New(cat, nil)

	err := p.Probe(context.Background(), loader, fixedEstimator{types.Margins{Left: 10, Right: 20, Top: 30, Bottom: 40}})
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 1)

	require.Len(t, cat.Entries, 2)
	a, b := cat.Entries[0], cat.Entries[1]
	assert.Equal(t, 300.0, a.Width)
	assert.Equal(t, 10.0, a.Picture().CropLeftMax)

	// Declared size is twice the file size, margins scale along.
	assert.Equal(t, 400.0, b.Width)
	assert.Equal(t, 20.0, b.Picture().CropLeftMax)
	assert.Equal(t, 80.0, b.Picture().CropBottomMax)
}

func TestProbeSizeOnly(t *testing.T) {
	cat := &Catalog{Entries: []Entry{{URL: "a.jpg"}}}
	p := New(cat, nil)

	require.NoError(t, p.Probe(context.Background(), fakeLoader{sizes: map[string][2]int{"a.jpg": {64, 48}}}, nil))
	assert.Equal(t, 64.0, cat.Entries[0].Width)
	assert.False(t, cat.Entries[0].HasMargins())
}

// cancellingLoader cancels its context once the picture named last was loaded
type cancellingLoader struct {
	fakeLoader
	last   string
	cancel context.CancelFunc
}

func (c cancellingLoader) LoadImage(ctx context.Context, source string) (image.Image, error) {
	img, err := c.fakeLoader.LoadImage(ctx, source)
	if source == c.last {
		c.cancel()
	}
	return img, err
}

func TestCancelledCatalogKeepsRemainingEntries(t *testing.T) {
	cat := &Catalog{Entries: []Entry{
		{URL: "missing.jpg"},
		{URL: "b.jpg"},
		{URL: "c.jpg"},
	}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	loader := cancellingLoader{
		fakeLoader: fakeLoader{sizes: map[string][2]int{"b.jpg": {200, 100}, "c.jpg": {100, 100}}},
		last:       "b.jpg",
		cancel:     cancel,
	}

	err := New(cat, nil).Probe(ctx, loader, fixedEstimator{types.Margins{Left: 5}})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, multierr.Errors(err), 2)

	require.Len(t, cat.Entries, 2)
	assert.Equal(t, "b.jpg", cat.Entries[0].URL)
	assert.Equal(t, 200.0, cat.Entries[0].Width)
	assert.Equal(t, "c.jpg", cat.Entries[1].URL)
	assert.False(t, cat.Entries[1].HasMargins(), "entries after cancellation keep no margins")
}
