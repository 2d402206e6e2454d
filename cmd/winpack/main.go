// Command winpack packages a Python desktop application into single-file
// executables and puts an entry for the result on the desktop.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/backupwatcher/winpack/internal/artifacts"
	"github.com/backupwatcher/winpack/internal/build"
	"github.com/backupwatcher/winpack/internal/config"
	"github.com/backupwatcher/winpack/internal/logging"
	"github.com/backupwatcher/winpack/internal/shortcut"
)

const defaultLogLevel = "info"

// packagerWorkDir is the scratch directory the packaging tool leaves behind
// next to the build directory.
const packagerWorkDir = "build"

func main() {
	var levelVar slog.LevelVar
	levelVar.Set(slog.LevelInfo)

	logger := logging.NewCLI(os.Stderr, &levelVar)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCommand(&levelVar)

	if err := root.ExecuteContext(ctx); err != nil {
		var usageErr *usageError
		if errors.As(err, &usageErr) {
			fmt.Fprintf(os.Stderr, "winpack: %s\n\n", usageErr.Message)
			fmt.Fprint(os.Stderr, root.UsageString())
			os.Exit(2)
		}
		if errors.Is(err, context.Canceled) {
			slog.Warn("command interrupted", "error", err)
			os.Exit(130)
		}
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// usageError marks invocation mistakes that should print usage and exit with
// status 2 instead of being logged as failures.
type usageError struct {
	Message string
}

func (e *usageError) Error() string {
	return e.Message
}

func usageErrorf(format string, args ...any) error {
	return &usageError{Message: fmt.Sprintf(format, args...)}
}

func newRootCommand(levelVar *slog.LevelVar) *cobra.Command {
	var (
		logLevel   string
		logJSON    bool
		configPath string

		debugMode   bool
		releaseMode bool
		allMode     bool
	)

	root := &cobra.Command{
		Use:   "winpack",
		Short: "Package a Python app into single-file executables and provision a desktop entry",
		Long: "winpack drives PyInstaller to build debug (console) and release " +
			"(windowed) executables from a Python script, then places a shortcut " +
			"or copy of the result on the desktop.",
		SilenceErrors: true,
		SilenceUsage:  true,
		// Positional arguments are validated in RunE so mistakes surface
		// as usage errors rather than unknown-command failures.
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := selectMode(debugMode, releaseMode, allMode, args)
			if err != nil {
				return err
			}
			cfg, err := resolveConfig(cmd, configPath)
			if err != nil {
				return err
			}
			return runPipeline(cmd.Context(), cfg, mode)
		},
	}

	root.PersistentFlags().StringVar(&logLevel, "log-level", defaultLogLevel,
		"Log verbosity (debug, info, warning, error)")
	root.PersistentFlags().BoolVar(&logJSON, "log-json", false,
		"Emit logs as JSON records")
	root.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath,
		"Path to the configuration file")

	root.Flags().BoolVarP(&debugMode, "debug", "d", false,
		"Build only the debug variant (console attached)")
	root.Flags().BoolVarP(&releaseMode, "no-debug", "n", false,
		"Build only the release variant (windowed)")
	root.Flags().BoolVarP(&allMode, "all", "a", false,
		"Build the debug variant, then the release variant")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		level, err := parseLogLevel(logLevel)
		if err != nil {
			return err
		}
		levelVar.Set(level)
		if logJSON {
			slog.SetDefault(logging.NewJSON(os.Stderr, levelVar))
		}
		return nil
	}

	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &usageError{Message: err.Error()}
	})

	root.AddCommand(
		newListCommand(&configPath),
		newDoctorCommand(&configPath),
		newCleanCommand(&configPath),
	)

	return root
}

// selectMode maps the mutually exclusive mode flags onto a build mode.
// Positional arguments are rejected, including empty strings left behind by
// shell quoting.
func selectMode(debugMode, releaseMode, allMode bool, args []string) (build.Mode, error) {
	for _, arg := range args {
		if strings.TrimSpace(arg) != "" {
			return "", usageErrorf("unexpected argument %q", arg)
		}
	}

	var modes []build.Mode
	if debugMode {
		modes = append(modes, build.ModeDebug)
	}
	if releaseMode {
		modes = append(modes, build.ModeRelease)
	}
	if allMode {
		modes = append(modes, build.ModeAll)
	}

	switch len(modes) {
	case 1:
		return modes[0], nil
	case 0:
		return "", usageErrorf("select a build mode: --debug, --no-debug, or --all")
	default:
		return "", usageErrorf("--debug, --no-debug, and --all are mutually exclusive")
	}
}

// resolveConfig loads the configuration, treating the default path as
// optional and an explicitly given one as required.
func resolveConfig(cmd *cobra.Command, path string) (config.Config, error) {
	if cmd.Root().PersistentFlags().Changed("config") {
		return config.Load(path)
	}
	return config.LoadDefault()
}

func runPipeline(ctx context.Context, cfg config.Config, mode build.Mode) error {
	logger := slog.Default().With("command", "build")

	variants, err := build.VariantsFor(mode, cfg.DebugVariant(), cfg.ReleaseVariant())
	if err != nil {
		return err
	}

	desktopDir, err := cfg.DesktopDir()
	if err != nil {
		return err
	}

	strategy, err := shortcut.Select(cfg.Shortcut.Strategy, runtime.GOOS,
		cfg.OverwritePolicy(), logger.With("component", "shortcut"))
	if err != nil {
		return err
	}

	service := &build.Service{
		Logger: logger,
		Driver: &build.PyInstallerDriver{
			Binary:   cfg.Build.Packager,
			BuildDir: cfg.Build.Dir,
			Logger:   logger.With("component", "packager"),
		},
		Provisioner:       strategy,
		Manifest:          &artifacts.Writer{Path: filepath.Join(cfg.Build.Dir, artifacts.ManifestName)},
		Out:               os.Stdout,
		ProvisioningFatal: cfg.Shortcut.Fatal,
	}

	return service.Run(ctx, build.RunRequest{
		SourceScript: cfg.App.Script,
		IconPath:     cfg.App.Icon,
		Variants:     variants,
		DesktopDir:   desktopDir,
	})
}

func newListCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List build variants and whether their artifacts exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, *configPath)
			if err != nil {
				return err
			}
			for _, variant := range []build.Variant{cfg.DebugVariant(), cfg.ReleaseVariant()} {
				artifact := filepath.Join(cfg.Build.Dir, variant.OutputName)
				_, statErr := os.Stat(artifact)
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t(built: %t)\n",
					variant.Name, variant.OutputName, statErr == nil)
			}
			return nil
		},
	}
}

func newDoctorCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check that the packager, script, icon, and desktop directory are usable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, *configPath)
			if err != nil {
				return err
			}

			problems := config.Preflight(cfg)
			out := cmd.OutOrStdout()
			if len(problems) == 0 {
				fmt.Fprintln(out, "all checks passed")
				return nil
			}

			failed := 0
			for _, problem := range problems {
				fmt.Fprintf(out, "%s\t%s: %s\n", problem.Severity, problem.Subject, problem.Detail)
				if problem.Severity == config.SeverityError {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d preflight check(s) failed", failed)
			}
			slog.Default().Warn("environment has warnings", "count", len(problems))
			return nil
		},
	}
}

func newCleanCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Remove build outputs, the packager work directory, and spec files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, *configPath)
			if err != nil {
				return err
			}
			logger := slog.Default().With("command", "clean")

			if err := artifacts.Clean(cfg.Build.Dir); err != nil {
				return err
			}
			logger.Info("cleaned build directory", "dir", cfg.Build.Dir)

			if err := artifacts.Clean(packagerWorkDir); err != nil {
				return err
			}
			logger.Info("cleaned packager work directory", "dir", packagerWorkDir)

			for _, variant := range []build.Variant{cfg.DebugVariant(), cfg.ReleaseVariant()} {
				specFile := strings.TrimSuffix(variant.OutputName, filepath.Ext(variant.OutputName)) + ".spec"
				if err := artifacts.RemoveIfPresent(specFile); err != nil {
					return err
				}
			}
			logger.Info("removed packager spec files")
			return nil
		},
	}
}

func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level: %s", level)
	}
}
