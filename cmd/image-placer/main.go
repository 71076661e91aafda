package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	imageplacer "github.com/menta2k/image-placer"
	"github.com/menta2k/image-placer/internal/config"
	"github.com/menta2k/image-placer/internal/state"
)

const appName = "image-placer"

// initializeAppContext prepares application context before command execution but
// after command line has been parsed
func initializeAppContext(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	var err error

	if cmd.NArg() == 0 {
		return ctx, nil
	}

	env := state.EnvFromContext(ctx)

	configFile := cmd.String("config")
	if len(configFile) > 0 {
		if env.Cfg, err = config.LoadFromFile(configFile); err != nil {
			return ctx, fmt.Errorf("unable to prepare configuration: %w", err)
		}
	}
	if cmd.Bool("debug") {
		env.Cfg.Logging.Level = "debug"
	}
	if env.Log, err = env.Cfg.Logging.Prepare(); err != nil {
		return ctx, fmt.Errorf("unable to prepare logs: %w", err)
	}
	env.RedirectStdLog()

	env.Log.Debug("Program started", zap.Strings("args", os.Args), zap.String("ver", imageplacer.GetVersion()), zap.String("runtime", runtime.Version()))
	if len(configFile) == 0 {
		env.Log.Debug("Using defaults (no configuration file)")
	}
	return ctx, nil
}

func destroyAppContext(ctx context.Context, cmd *cli.Command) (err error) {
	env := state.EnvFromContext(ctx)

	env.Log.Debug("Program ended", zap.Duration("elapsed", env.Uptime()), zap.Strings("parsed args", cmd.Args().Slice()))
	env.RestoreStdLog()
	return
}

var errWasHandled bool

func exitErrHandler(ctx context.Context, _ *cli.Command, err error) {
	env := state.EnvFromContext(ctx)
	if env.Log != nil && env.Log.Core().Enabled(zap.ErrorLevel) {
		env.Log.Error("Program ended with error", zap.Error(err))
		errWasHandled = true
	}
}

func usageErrorHandler(_ context.Context, _ *cli.Command, err error, _ bool) error {
	return err
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:            appName,
		Usage:           "fits replacement pictures into page elements",
		Version:         imageplacer.GetVersion() + " (" + runtime.Version() + ")",
		HideHelpCommand: true,
		Before:          initializeAppContext,
		After:           destroyAppContext,
		OnUsageError:    usageErrorHandler,
		ExitErrHandler:  exitErrHandler,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "load configuration from `FILE` (YAML or JSON)"},
			&cli.BoolFlag{Name: "debug", Aliases: []string{"d"}, Usage: "enable debug logging"},
		},
		Commands: []*cli.Command{
			{
				Name:         "fit",
				Usage:        "Computes the placement of a picture inside a target",
				OnUsageError: usageErrorHandler,
				Action:       runFit,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "picture", Aliases: []string{"p"}, Usage: "picture size as `WxH`"},
					&cli.StringFlag{Name: "image", Aliases: []string{"i"}, Usage: "read picture size and crop limits from image `SOURCE` (path or URL)"},
					&cli.StringFlag{Name: "target", Aliases: []string{"t"}, Required: true, Usage: "target size as `WxH`"},
					&cli.FloatFlag{Name: "left", Usage: "pixels that may be cropped on the left"},
					&cli.FloatFlag{Name: "right", Usage: "pixels that may be cropped on the right"},
					&cli.FloatFlag{Name: "top", Usage: "pixels that may be cropped at the top"},
					&cli.FloatFlag{Name: "bottom", Usage: "pixels that may be cropped at the bottom"},
					&cli.StringFlag{Name: "backend", Usage: "margin estimation `BACKEND` used with --image (none, saliency, ollama, llamacpp)"},
					&cli.BoolFlag{Name: "css", Usage: "print the CSS rule instead of JSON"},
				},
			},
			{
				Name:         "classify",
				Usage:        "Validates a target size and prints its size type",
				OnUsageError: usageErrorHandler,
				Action:       runClassify,
				ArgsUsage:    "WxH",
			},
			{
				Name:         "margins",
				Usage:        "Estimates how much of each edge of a picture may be cropped",
				OnUsageError: usageErrorHandler,
				Action:       runMargins,
				ArgsUsage:    "SOURCE",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "backend", Usage: "margin estimation `BACKEND` (saliency, ollama, llamacpp)"},
					&cli.StringFlag{Name: "overlay", Usage: "write an image with the crop limits marked to `FILE`"},
				},
			},
			{
				Name:         "preview",
				Usage:        "Renders how a picture looks in common ad slots",
				OnUsageError: usageErrorHandler,
				Action:       runPreview,
				ArgsUsage:    "SOURCE [DESTINATION]",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "slot", Usage: "slot `NAME` to render, may be repeated (default: all common slots)"},
					&cli.StringSliceFlag{Name: "size", Usage: "additional slot size as `WxH`, may be repeated"},
					&cli.StringFlag{Name: "backend", Usage: "margin estimation `BACKEND` (none, saliency, ollama, llamacpp)"},
					&cli.StringFlag{Name: "format", Usage: "output `FORMAT` (png, jpg, webp)"},
					&cli.BoolFlag{Name: "overlay", Usage: "also write the source picture with crop limits and visible window marked"},
				},
				CustomHelpTemplate: fmt.Sprintf(`%s
SOURCE:
    picture path or http(s) URL, or a directory - all pictures under it are processed

DESTINATION:
    output directory, if absent - output.dir from configuration
`, cli.CommandHelpTemplate),
			},
			{
				Name:         "swap",
				Usage:        "Replaces elements of a page with catalog pictures and prints the stylesheet",
				OnUsageError: usageErrorHandler,
				Action:       runSwap,
				ArgsUsage:    "PAGE [DESTINATION]",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "catalog", Usage: "picture catalog `FILE` (YAML or JSON), overrides placer.catalog"},
					&cli.BoolFlag{Name: "probe", Usage: "load catalog pictures to fill in missing sizes and crop limits"},
					&cli.StringFlag{Name: "backend", Usage: "margin estimation `BACKEND` used with --probe"},
					&cli.BoolFlag{Name: "json", Usage: "output the full result as JSON instead of CSS"},
				},
				CustomHelpTemplate: fmt.Sprintf(`%s
PAGE:
    JSON document with the element tree of the page

DESTINATION:
    file to write the result to, if absent - STDOUT
`, cli.CommandHelpTemplate),
			},
			{
				Name:         "dumpconfig",
				Usage:        "Dumps either default or actual configuration (YAML)",
				OnUsageError: usageErrorHandler,
				Action:       outputConfiguration,
				ArgsUsage:    "DESTINATION",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "default", Usage: "output default configuration"},
				},
			},
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(state.ContextWithEnv(context.Background()), os.Interrupt, syscall.SIGTERM)
	app := newApp()

	var err error
	// NOTE: os.Exit is called at the end of main to set exit code, make sure
	// there are no other deferred functions after that
	defer func() {
		stop()
		if err != nil {
			if !errWasHandled {
				fmt.Fprintf(os.Stderr, "Program ended with error: %v\n", err)
			}
			os.Exit(1)
		}
	}()
	err = app.Run(ctx, os.Args)
}

// closeWith appends the error of closing c to err
func closeWith(err *error, c interface{ Close() error }, what string) {
	if e := c.Close(); e != nil {
		*err = multierr.Append(*err, fmt.Errorf("unable to close %s: %w", what, e))
	}
}
