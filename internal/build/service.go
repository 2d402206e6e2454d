package build

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/backupwatcher/winpack/internal/artifacts"
	"github.com/backupwatcher/winpack/internal/shortcut"
)

// Service runs the packaging pipeline: it builds each requested variant in
// order, records the produced executables in the run manifest, and provisions
// a desktop entry for the last one.
type Service struct {
	Logger      *slog.Logger
	Driver      PackagerDriver
	Provisioner shortcut.Strategy
	Manifest    *artifacts.Writer
	Out         io.Writer // confirmation output, defaults to os.Stdout

	// ProvisioningFatal promotes a failed desktop entry to a pipeline
	// failure. By default a finished build wins and the failure is only
	// logged.
	ProvisioningFatal bool
}

// RunRequest describes one invocation of the pipeline.
type RunRequest struct {
	SourceScript string
	IconPath     string
	Variants     []Variant
	DesktopDir   string
}

// Run executes the pipeline for the given request. The first failing variant
// aborts the run; later variants are not attempted and no desktop entry is
// provisioned.
func (s *Service) Run(ctx context.Context, request RunRequest) error {
	if s.Driver == nil {
		return errors.New("packager driver is not configured")
	}
	if len(request.Variants) == 0 {
		return errors.New("at least one build variant is required")
	}

	logger := s.logger()

	results := make([]Result, 0, len(request.Variants))
	for _, variant := range request.Variants {
		variantLogger := logger.With("variant", variant.Name)
		variantLogger.Info("starting build",
			"windowed", variant.Windowed,
			"output", variant.OutputName,
		)

		result, err := s.Driver.Package(ctx, Request{
			SourceScript: request.SourceScript,
			IconPath:     request.IconPath,
			Variant:      variant,
		})
		if err != nil {
			variantLogger.Error("build failed", "error", err)
			return err
		}

		variantLogger.Info("build completed", "artifact", result.ExecutablePath)
		results = append(results, result)
	}

	s.writeManifest(logger, results)

	// The last variant is the one the user asked for most recently in
	// --all mode, so its executable backs the desktop entry.
	final := results[len(results)-1]
	if s.Provisioner == nil {
		logger.Warn("no shortcut strategy configured, skipping desktop entry")
		return nil
	}

	destination, err := s.Provisioner.Provision(ctx, shortcut.Request{
		TargetPath: final.ExecutablePath,
		DesktopDir: request.DesktopDir,
		IconPath:   request.IconPath,
	})
	if err != nil {
		if s.ProvisioningFatal {
			logger.Error("desktop entry provisioning failed", "error", err)
			return err
		}
		logger.Warn("desktop entry provisioning failed, executable is still available",
			"error", err,
			"artifact", final.ExecutablePath,
		)
		return nil
	}

	logger.Info("desktop entry provisioned",
		"strategy", s.Provisioner.Name(),
		"destination", destination,
	)
	fmt.Fprintf(s.out(), "Created %s\n", destination)
	return nil
}

// writeManifest records the run's artifacts. Manifest trouble never fails the
// pipeline, the executables on disk are the deliverable.
func (s *Service) writeManifest(logger *slog.Logger, results []Result) {
	if s.Manifest == nil {
		return
	}

	produced := make([]artifacts.Produced, 0, len(results))
	for _, result := range results {
		produced = append(produced, artifacts.Produced{
			Variant: result.Variant.Name,
			Path:    result.ExecutablePath,
		})
	}

	manifest, err := s.Manifest.Write(produced)
	if err != nil {
		logger.Warn("manifest write failed", "error", err)
		return
	}
	logger.Info("manifest written",
		"run_id", manifest.RunID,
		"entries", len(manifest.Entries),
	)
}

func (s *Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *Service) out() io.Writer {
	if s.Out != nil {
		return s.Out
	}
	return os.Stdout
}
