package main

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"os"
	"strconv"
	"strings"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	imageplacer "github.com/menta2k/image-placer"
	"github.com/menta2k/image-placer/internal/config"
	"github.com/menta2k/image-placer/internal/state"
	"github.com/menta2k/image-placer/internal/utils"
	"github.com/menta2k/image-placer/pkg/analyzer"
	"github.com/menta2k/image-placer/pkg/cropper"
	"github.com/menta2k/image-placer/pkg/detection"
	"github.com/menta2k/image-placer/pkg/llamacpp"
	"github.com/menta2k/image-placer/pkg/ollama"
	"github.com/menta2k/image-placer/pkg/page"
	"github.com/menta2k/image-placer/pkg/placement"
	"github.com/menta2k/image-placer/pkg/processing"
	"github.com/menta2k/image-placer/pkg/provider"
	"github.com/menta2k/image-placer/pkg/render"
	"github.com/menta2k/image-placer/pkg/swapper"
	"github.com/menta2k/image-placer/pkg/types"
	"github.com/menta2k/image-placer/pkg/vision"
)

const outputQuality = 90

// parseSize reads "WxH"
func parseSize(s string) (float64, float64, error) {
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return 0, 0, fmt.Errorf("size %q is not WxH", s)
	}
	width, err := strconv.ParseFloat(w, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("size %q has bad width: %w", s, err)
	}
	height, err := strconv.ParseFloat(h, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("size %q has bad height: %w", s, err)
	}
	if width <= 0 || height <= 0 {
		return 0, 0, fmt.Errorf("size %q must be positive", s)
	}
	return width, height, nil
}

// newEstimator builds the margin estimator for backend, falling back to the
// configured one. BackendNone yields a nil estimator.
func newEstimator(env *state.LocalEnv, backend string) (provider.MarginEstimator, error) {
	if backend == "" {
		backend = env.Cfg.Margins.Backend
	}
	switch backend {
	case config.BackendNone:
		return nil, nil
	case config.BackendSaliency:
		return vision.NewWithConfig(env.Cfg.SaliencyConfig()), nil
	case config.BackendOllama:
		c, err := ollama.NewClient(env.Cfg.Vision.OllamaURL)
		if err != nil {
			return nil, fmt.Errorf("unable to create ollama client: %w", err)
		}
		return detection.NewEstimator(c, env.Cfg.DetectionConfig(), env.Log), nil
	case config.BackendLlamaCpp:
		c, err := llamacpp.NewClient(env.Cfg.Vision.LlamaCppURL)
		if err != nil {
			return nil, fmt.Errorf("unable to create llama.cpp client: %w", err)
		}
		return detection.NewEstimator(c, env.Cfg.DetectionConfig(), env.Log), nil
	}
	return nil, fmt.Errorf("unknown margin estimation backend %q", backend)
}

func newPlacer(env *state.LocalEnv, backend string) (*imageplacer.ImagePlacer, error) {
	bg, err := env.Cfg.Output.BackgroundColor()
	if err != nil {
		return nil, err
	}
	est, err := newEstimator(env, backend)
	if err != nil {
		return nil, err
	}
	ip := imageplacer.NewWithConfig(env.Cfg.AnalyzerConfig(), env.Cfg.SaliencyConfig(),
		cropper.Config{Background: bg, QualityThreshold: env.Cfg.Output.QualityThreshold})
	ip.SetEstimator(est)
	return ip, nil
}

// createOutput opens fname for writing, STDOUT when fname is empty
func createOutput(fname string) (io.WriteCloser, string, error) {
	if len(fname) == 0 {
		return nopCloser{os.Stdout}, "STDOUT", nil
	}
	f, err := os.Create(fname)
	if err != nil {
		return nil, fname, fmt.Errorf("unable to create destination file '%s': %w", fname, err)
	}
	return f, fname, nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runFit(ctx context.Context, cmd *cli.Command) error {
	env := state.EnvFromContext(ctx)

	tw, th, err := parseSize(cmd.String("target"))
	if err != nil {
		return err
	}

	pic := placement.Picture{
		CropLeftMax:   cmd.Float("left"),
		CropRightMax:  cmd.Float("right"),
		CropTopMax:    cmd.Float("top"),
		CropBottomMax: cmd.Float("bottom"),
	}
	source := cmd.String("image")
	switch {
	case len(source) > 0:
		ip, err := newPlacer(env, cmd.String("backend"))
		if err != nil {
			return err
		}
		img, err := ip.LoadImage(ctx, source)
		if err != nil {
			return err
		}
		explicit := cmd.IsSet("left") || cmd.IsSet("right") || cmd.IsSet("top") || cmd.IsSet("bottom")
		if explicit {
			b := img.Bounds()
			pic.Width, pic.Height = float64(b.Dx()), float64(b.Dy())
		} else if pic, err = ip.PictureFromImage(ctx, img); err != nil {
			return err
		}
	case len(cmd.String("picture")) > 0:
		if pic.Width, pic.Height, err = parseSize(cmd.String("picture")); err != nil {
			return err
		}
	default:
		return fmt.Errorf("either --picture or --image is required")
	}

	target := placement.Target{Width: tw, Height: th}
	pl := placement.Fit(pic, target)
	env.Log.Debug("Placement computed", zap.Any("picture", pic), zap.Any("target", target), zap.Any("placement", pl))

	if cmd.Bool("css") {
		rep := render.Replacement{Position: "static", Candidate: provider.Candidate{URL: source, Picture: pic}, Placement: pl}
		css, err := render.New().Render(&rep)
		if err != nil {
			return err
		}
		_, err = io.WriteString(os.Stdout, css)
		return err
	}
	return writeJSON(os.Stdout, struct {
		Picture   placement.Picture   `json:"picture"`
		Target    placement.Target    `json:"target"`
		Placement placement.Placement `json:"placement"`
	}{pic, target, pl})
}

func runClassify(ctx context.Context, cmd *cli.Command) error {
	env := state.EnvFromContext(ctx)

	if cmd.Args().Len() != 1 {
		return fmt.Errorf("expected exactly one WxH argument")
	}
	w, h, err := parseSize(cmd.Args().First())
	if err != nil {
		return err
	}

	a := analyzer.NewWithConfig(env.Cfg.AnalyzerConfig())
	if err := a.ValidateSize(w, h); err != nil {
		return err
	}
	_, err = fmt.Fprintln(os.Stdout, a.Classify(w, h))
	return err
}

func runMargins(ctx context.Context, cmd *cli.Command) (err error) {
	env := state.EnvFromContext(ctx)

	source := cmd.Args().First()
	if len(source) == 0 {
		return fmt.Errorf("no picture to estimate margins for")
	}
	backend := cmd.String("backend")
	if backend == config.BackendNone {
		return fmt.Errorf("backend %q cannot estimate margins", backend)
	}
	ip, err := newPlacer(env, backend)
	if err != nil {
		return err
	}

	img, err := ip.LoadImage(ctx, source)
	if err != nil {
		return err
	}
	m, err := ip.EstimateMargins(ctx, img)
	if err != nil {
		return err
	}
	env.Log.Info("Margins estimated", zap.String("source", source), zap.Any("margins", m))

	if fname := cmd.String("overlay"); len(fname) > 0 {
		proc := processing.NewProcessor()
		overlay := proc.CreateDebugOverlay(img, m, image.Rectangle{})
		if err := proc.SaveImage(overlay, fname, utils.GetFileExtension(fname), outputQuality, false); err != nil {
			return fmt.Errorf("unable to save overlay: %w", err)
		}
	}
	return writeJSON(os.Stdout, m)
}

func previewSlots(cmd *cli.Command) ([]cropper.Slot, error) {
	var slots []cropper.Slot
	for _, name := range cmd.StringSlice("slot") {
		s, err := cropper.SlotByName(name)
		if err != nil {
			return nil, err
		}
		slots = append(slots, s)
	}
	for _, size := range cmd.StringSlice("size") {
		w, h, err := parseSize(size)
		if err != nil {
			return nil, err
		}
		slots = append(slots, cropper.Slot{Name: size, Width: int(w), Height: int(h)})
	}
	if len(slots) == 0 {
		slots = cropper.CommonSlots()
	}
	return slots, nil
}

func runPreview(ctx context.Context, cmd *cli.Command) error {
	env := state.EnvFromContext(ctx)

	source := cmd.Args().First()
	if len(source) == 0 {
		return fmt.Errorf("no picture to preview")
	}
	dest := cmd.Args().Get(1)
	if len(dest) == 0 {
		dest = env.Cfg.Output.Dir
	}
	format := cmd.String("format")
	if len(format) == 0 {
		format = env.Cfg.Output.Format
	}

	slots, err := previewSlots(cmd)
	if err != nil {
		return err
	}
	ip, err := newPlacer(env, cmd.String("backend"))
	if err != nil {
		return err
	}
	if err := utils.EnsureDir(dest); err != nil {
		return err
	}

	sources := []string{source}
	if utils.DirExists(source) {
		if sources, err = utils.ListImageFiles(source); err != nil {
			return fmt.Errorf("unable to list pictures in %s: %w", source, err)
		}
	}

	overlay := cmd.Bool("overlay") || env.Cfg.Output.Overlay
	var errs error
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return multierr.Append(errs, err)
		}
		if err := previewOne(ctx, env, ip, src, dest, format, slots, overlay); err != nil {
			env.Log.Error("Preview failed", zap.String("source", src), zap.Error(err))
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

func previewOne(ctx context.Context, env *state.LocalEnv, ip *imageplacer.ImagePlacer, src, dest, format string, slots []cropper.Slot, overlay bool) error {
	img, err := ip.LoadImage(ctx, src)
	if err != nil {
		return err
	}
	pic, err := ip.PictureFromImage(ctx, img)
	if err != nil {
		return err
	}
	proc := processing.NewProcessor()

	for _, slot := range slots {
		p := ip.Preview(img, pic, slot)
		if p.Quality < env.Cfg.Output.QualityThreshold {
			env.Log.Info("Slot skipped, picture covers too little of it", zap.String("slot", slot.Name), zap.Float64("quality", p.Quality))
			continue
		}

		name := utils.OutputFilename(src, dest, format, env.Cfg.Output.Prefix, slot.Name, env.Cfg.Output.Suffix)
		if err := proc.SaveImage(p.Image, name, format, outputQuality, false); err != nil {
			return fmt.Errorf("unable to save preview %s: %w", name, err)
		}
		env.Log.Info("Preview written", zap.String("file", name), zap.Float64("quality", p.Quality))

		if overlay {
			b := img.Bounds()
			margins := types.Margins{Left: pic.CropLeftMax, Right: pic.CropRightMax, Top: pic.CropTopMax, Bottom: pic.CropBottomMax}
			ov := proc.CreateDebugOverlay(img, margins, cropper.SourceWindow(p.Placement, b.Dx(), b.Dy()))
			name := utils.OutputFilename(src, dest, format, env.Cfg.Output.Prefix, slot.Name, "overlay")
			if err := proc.SaveImage(ov, name, format, outputQuality, false); err != nil {
				return fmt.Errorf("unable to save overlay %s: %w", name, err)
			}
		}
	}
	return nil
}

func runSwap(ctx context.Context, cmd *cli.Command) (err error) {
	env := state.EnvFromContext(ctx)

	pagePath := cmd.Args().First()
	if len(pagePath) == 0 {
		return fmt.Errorf("no page to process")
	}
	catalogPath := cmd.String("catalog")
	if len(catalogPath) == 0 {
		catalogPath = env.Cfg.Placer.Catalog
	}
	if len(catalogPath) == 0 {
		return fmt.Errorf("no picture catalog, use --catalog or placer.catalog")
	}

	f, err := os.Open(pagePath)
	if err != nil {
		return fmt.Errorf("unable to open page: %w", err)
	}
	pg, err := page.Load(f)
	closeWith(&err, f, "page")
	if err != nil {
		return err
	}

	catalog, err := provider.LoadCatalog(catalogPath)
	if err != nil {
		return err
	}
	prov := provider.New(catalog, env.Log)

	if cmd.Bool("probe") {
		est, err := newEstimator(env, cmd.String("backend"))
		if err != nil {
			return err
		}
		if err := prov.Probe(ctx, processing.NewProcessor(), est); err != nil {
			for _, e := range multierr.Errors(err) {
				env.Log.Warn("Catalog picture dropped", zap.Error(e))
			}
		}
	}

	swp := swapper.New(prov, env.Cfg.Placer.Swap, env.Log)
	swp.SetAnalyzer(analyzer.NewWithConfig(env.Cfg.AnalyzerConfig()))
	res, err := swp.Run(ctx, pg)
	if err != nil {
		return err
	}
	env.Log.Info("Page processed", zap.String("page", pagePath), zap.Int("replaced", len(res.Replacements)))

	out, fname, err := createOutput(cmd.Args().Get(1))
	if err != nil {
		return err
	}
	defer closeWith(&err, out, fname)

	if cmd.Bool("json") {
		return writeJSON(out, res)
	}
	_, err = io.WriteString(out, res.Stylesheet())
	return err
}

func outputConfiguration(ctx context.Context, cmd *cli.Command) (err error) {
	env := state.EnvFromContext(ctx)
	if cmd.Args().Len() > 1 {
		env.Log.Warn("Malformed command line, too many destinations", zap.Strings("ignoring", cmd.Args().Slice()[1:]))
	}

	var (
		data []byte
		kind string
	)
	if cmd.Bool("default") {
		kind = "default"
		data, err = config.Default().Marshal()
	} else {
		kind = "actual"
		data, err = env.Cfg.Marshal()
	}
	if err != nil {
		return fmt.Errorf("unable to get configuration: %w", err)
	}

	out, fname, err := createOutput(cmd.Args().First())
	if err != nil {
		return err
	}
	defer closeWith(&err, out, fname)

	env.Log.Info("Outputing configuration", zap.String("state", kind), zap.String("file", fname))
	if _, err = out.Write(data); err != nil {
		return fmt.Errorf("unable to write configuration: %w", err)
	}
	return nil
}
