package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/aintyourcupoftea/PDF-Signer/internal/config"
	"github.com/aintyourcupoftea/PDF-Signer/internal/logging"
)

// Execute runs pdfsign with the process arguments and returns the exit code.
func Execute() int {
	return run(context.Background(), os.Args[1:], os.Stdout, os.Stderr)
}

// app carries state shared by all subcommands of one invocation.
type app struct {
	cfg     config.Config
	base    config.Config
	cfgPath string
	changed map[string]bool

	logger zerolog.Logger
	stdout io.Writer
	stderr io.Writer
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{
		cfg:    config.DefaultConfig(),
		logger: zerolog.New(zerolog.ConsoleWriter{Out: stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger(),
		stdout: stdout,
		stderr: stderr,
	}

	root := a.rootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		a.logger.Error().Err(err).Msg("pdfsign")
		return 1
	}
	return 0
}

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "pdfsign",
		Short:         "Stamp a signature image onto a PDF page",
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.loadConfig(cmd)
		},
	}

	root.PersistentFlags().StringVar(&a.cfgPath, "config", "", "path to config file (default: $HOME/.pdfsign/config.toml)")
	root.PersistentFlags().StringVar(&a.cfg.LogLevel, "log-level", a.cfg.LogLevel, "log level (trace, debug, info, warn, error)")
	root.PersistentFlags().StringVar(&a.cfg.LogFormat, "log-format", a.cfg.LogFormat, "log format (console or json)")

	root.AddCommand(a.serveCommand(), a.signCommand(), a.inspectCommand())
	return root
}

// loadConfig layers the config file and environment under the flags that
// were set on the command line, then rebuilds the logger.
func (a *app) loadConfig(cmd *cobra.Command) error {
	if a.cfgPath == "" {
		a.cfgPath = config.DefaultConfigPath()
	}

	a.changed = map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { a.changed[f.Name] = true })
	a.base = a.cfg

	cfg, err := config.Load(a.cfgPath, a.cfg, a.changed)
	if err != nil {
		return err
	}
	a.cfg = cfg

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, a.stderr)
	if err != nil {
		return err
	}
	a.logger = logger
	return nil
}

func addPlacementFlags(fs *pflag.FlagSet, cfg *config.Config) {
	fs.IntVar(&cfg.PageIndex, "page", cfg.PageIndex, "zero-based index of the page to sign")
	fs.Float64Var(&cfg.Scale, "scale", cfg.Scale, "scale factor applied to the signature")
	fs.Float64Var(&cfg.OffsetX, "offset-x", cfg.OffsetX, "horizontal offset of the signature in points")
	fs.Float64Var(&cfg.OffsetY, "offset-y", cfg.OffsetY, "vertical offset of the signature in points")
	fs.Float64Var(&cfg.DPI, "dpi", cfg.DPI, "resolution used to size the signature image")
	fs.Int64Var(&cfg.MaxImagePixels, "max-image-pixels", cfg.MaxImagePixels, "largest signature image accepted, in pixels")
}
