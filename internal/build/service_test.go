package build

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/backupwatcher/winpack/internal/artifacts"
	"github.com/backupwatcher/winpack/internal/shortcut"
)

type stubDriver struct {
	dir      string
	failOn   string
	requests []Request
}

func (d *stubDriver) Package(_ context.Context, req Request) (Result, error) {
	d.requests = append(d.requests, req)
	if req.Variant.Name == d.failOn {
		return Result{}, &Error{Message: "packager exited with status 1"}
	}

	path := filepath.Join(d.dir, req.Variant.OutputName)
	if err := os.WriteFile(path, []byte(req.Variant.Name), 0o755); err != nil {
		return Result{}, err
	}
	return Result{Variant: req.Variant, ExecutablePath: path}, nil
}

type stubStrategy struct {
	err      error
	requests []shortcut.Request
}

func (s *stubStrategy) Name() string { return "stub" }

func (s *stubStrategy) Provision(_ context.Context, req shortcut.Request) (string, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return "", s.err
	}
	return filepath.Join(req.DesktopDir, filepath.Base(req.TargetPath)), nil
}

func testVariants() []Variant {
	return []Variant{
		{Name: "debug", Windowed: false, OutputName: "GameBackupWatcher-debug.exe"},
		{Name: "release", Windowed: true, OutputName: "GameBackupWatcher.exe"},
	}
}

func TestServiceRunBuildsVariantsInOrder(t *testing.T) {
	t.Parallel()

	tempDir := t.TempDir()
	driver := &stubDriver{dir: tempDir}
	strategy := &stubStrategy{}
	var out bytes.Buffer

	service := &Service{
		Driver:      driver,
		Provisioner: strategy,
		Manifest:    &artifacts.Writer{Path: filepath.Join(tempDir, artifacts.ManifestName)},
		Out:         &out,
	}

	err := service.Run(context.Background(), RunRequest{
		SourceScript: "app.py",
		IconPath:     "app.ico",
		Variants:     testVariants(),
		DesktopDir:   tempDir,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(driver.requests) != 2 {
		t.Fatalf("expected 2 build requests, got %d", len(driver.requests))
	}
	if driver.requests[0].Variant.Name != "debug" || driver.requests[1].Variant.Name != "release" {
		t.Fatalf("unexpected build order: %q then %q",
			driver.requests[0].Variant.Name, driver.requests[1].Variant.Name)
	}
	if driver.requests[0].IconPath != "app.ico" {
		t.Fatalf("icon path not forwarded: got %q want %q", driver.requests[0].IconPath, "app.ico")
	}
}

func TestServiceRunProvisionsLastVariant(t *testing.T) {
	t.Parallel()

	tempDir := t.TempDir()
	driver := &stubDriver{dir: tempDir}
	strategy := &stubStrategy{}
	var out bytes.Buffer

	service := &Service{
		Driver:      driver,
		Provisioner: strategy,
		Out:         &out,
	}

	err := service.Run(context.Background(), RunRequest{
		SourceScript: "app.py",
		IconPath:     "app.ico",
		Variants:     testVariants(),
		DesktopDir:   tempDir,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(strategy.requests) != 1 {
		t.Fatalf("expected 1 provisioning request, got %d", len(strategy.requests))
	}

	wantTarget := filepath.Join(tempDir, "GameBackupWatcher.exe")
	if strategy.requests[0].TargetPath != wantTarget {
		t.Fatalf("provisioned wrong variant: got %q want %q", strategy.requests[0].TargetPath, wantTarget)
	}
	if strategy.requests[0].IconPath != "app.ico" {
		t.Fatalf("icon path not forwarded to provisioner: got %q", strategy.requests[0].IconPath)
	}
	if !strings.Contains(out.String(), "Created ") {
		t.Fatalf("expected confirmation line, got %q", out.String())
	}
}

func TestServiceRunWritesManifest(t *testing.T) {
	t.Parallel()

	tempDir := t.TempDir()
	manifestPath := filepath.Join(tempDir, artifacts.ManifestName)

	service := &Service{
		Driver:      &stubDriver{dir: tempDir},
		Provisioner: &stubStrategy{},
		Manifest:    &artifacts.Writer{Path: manifestPath},
		Out:         &bytes.Buffer{},
	}

	err := service.Run(context.Background(), RunRequest{
		SourceScript: "app.py",
		Variants:     testVariants(),
		DesktopDir:   tempDir,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	manifest, err := artifacts.Read(manifestPath)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(manifest.Entries) != 2 {
		t.Fatalf("expected 2 manifest entries, got %d", len(manifest.Entries))
	}
	if manifest.Entries[0].Variant != "debug" || manifest.Entries[1].Variant != "release" {
		t.Fatalf("unexpected manifest variants: %q, %q",
			manifest.Entries[0].Variant, manifest.Entries[1].Variant)
	}
}

func TestServiceRunFailsFast(t *testing.T) {
	t.Parallel()

	tempDir := t.TempDir()
	driver := &stubDriver{dir: tempDir, failOn: "debug"}
	strategy := &stubStrategy{}
	manifestPath := filepath.Join(tempDir, artifacts.ManifestName)

	service := &Service{
		Driver:      driver,
		Provisioner: strategy,
		Manifest:    &artifacts.Writer{Path: manifestPath},
		Out:         &bytes.Buffer{},
	}

	err := service.Run(context.Background(), RunRequest{
		SourceScript: "app.py",
		Variants:     testVariants(),
		DesktopDir:   tempDir,
	})
	if err == nil {
		t.Fatalf("Run() error = nil, want error")
	}

	var buildErr *Error
	if !errors.As(err, &buildErr) {
		t.Fatalf("expected build error, got %T", err)
	}

	if len(driver.requests) != 1 {
		t.Fatalf("expected the run to stop after the first failure, got %d requests", len(driver.requests))
	}
	if len(strategy.requests) != 0 {
		t.Fatalf("expected no provisioning after a failed build, got %d requests", len(strategy.requests))
	}
	if _, err := os.Stat(manifestPath); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected no manifest after a failed build, stat error = %v", err)
	}
}

func TestServiceRunProvisioningFailureIsNonFatal(t *testing.T) {
	t.Parallel()

	tempDir := t.TempDir()
	strategy := &stubStrategy{err: &shortcut.ProvisionError{Message: "desktop unavailable"}}
	var out bytes.Buffer

	service := &Service{
		Driver:      &stubDriver{dir: tempDir},
		Provisioner: strategy,
		Out:         &out,
	}

	err := service.Run(context.Background(), RunRequest{
		SourceScript: "app.py",
		Variants:     testVariants(),
		DesktopDir:   tempDir,
	})
	if err != nil {
		t.Fatalf("Run() error = %v, want nil when provisioning is non-fatal", err)
	}
	if strings.Contains(out.String(), "Created ") {
		t.Fatalf("expected no confirmation line after failed provisioning, got %q", out.String())
	}
}

func TestServiceRunProvisioningFailureCanBeFatal(t *testing.T) {
	t.Parallel()

	tempDir := t.TempDir()
	strategy := &stubStrategy{err: &shortcut.ProvisionError{Message: "desktop unavailable"}}

	service := &Service{
		Driver:            &stubDriver{dir: tempDir},
		Provisioner:       strategy,
		Out:               &bytes.Buffer{},
		ProvisioningFatal: true,
	}

	err := service.Run(context.Background(), RunRequest{
		SourceScript: "app.py",
		Variants:     testVariants(),
		DesktopDir:   tempDir,
	})
	if err == nil {
		t.Fatalf("Run() error = nil, want error when provisioning is fatal")
	}

	var provisionErr *shortcut.ProvisionError
	if !errors.As(err, &provisionErr) {
		t.Fatalf("expected provisioning error, got %T", err)
	}
}

func TestServiceRunManifestFailureDoesNotFailRun(t *testing.T) {
	t.Parallel()

	tempDir := t.TempDir()
	blocked := filepath.Join(tempDir, "manifest-as-dir")
	if err := os.Mkdir(blocked, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	strategy := &stubStrategy{}
	service := &Service{
		Driver:      &stubDriver{dir: tempDir},
		Provisioner: strategy,
		Manifest:    &artifacts.Writer{Path: blocked},
		Out:         &bytes.Buffer{},
	}

	err := service.Run(context.Background(), RunRequest{
		SourceScript: "app.py",
		Variants:     testVariants(),
		DesktopDir:   tempDir,
	})
	if err != nil {
		t.Fatalf("Run() error = %v, want nil when only the manifest fails", err)
	}
	if len(strategy.requests) != 1 {
		t.Fatalf("expected provisioning to proceed, got %d requests", len(strategy.requests))
	}
}

func TestServiceRunRequiresDriver(t *testing.T) {
	t.Parallel()

	service := &Service{}
	err := service.Run(context.Background(), RunRequest{Variants: testVariants()})
	if err == nil {
		t.Fatalf("Run() error = nil, want error")
	}
}

func TestServiceRunRequiresVariants(t *testing.T) {
	t.Parallel()

	service := &Service{Driver: &stubDriver{dir: t.TempDir()}}
	err := service.Run(context.Background(), RunRequest{})
	if err == nil {
		t.Fatalf("Run() error = nil, want error")
	}
}
