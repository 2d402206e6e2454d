package build

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/backupwatcher/winpack/internal/logging"
)

// PackagerDriver invokes the external packaging tool for one variant.
type PackagerDriver interface {
	Package(ctx context.Context, req Request) (Result, error)
}

// PyInstallerDriver shells out to PyInstaller (or a compatible tool) to turn
// a Python script into a single-file executable. The tool's own output is
// streamed through so packaging progress stays visible.
type PyInstallerDriver struct {
	Binary   string // packager executable, defaults to "pyinstaller"
	BuildDir string // where finished executables land, defaults to "dist"
	Logger   *slog.Logger
	Stdout   io.Writer // defaults to os.Stdout
	Stderr   io.Writer // defaults to os.Stderr
}

var _ PackagerDriver = (*PyInstallerDriver)(nil)

func (d *PyInstallerDriver) Package(ctx context.Context, req Request) (Result, error) {
	if err := validateRequest(req); err != nil {
		return Result{}, err
	}

	args := composeArgs(d.dir(), req)
	logger := logging.Ensure(d.Logger).With("variant", req.Variant.Name)
	logger.Info("invoking packager", "binary", d.binary(), "args", strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, d.binary(), args...)
	cmd.Stdout = d.stdout()
	cmd.Stderr = d.stderr()

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return Result{}, &Error{Message: fmt.Sprintf(
			"%s failed for variant %s: %v", d.binary(), req.Variant.Name, err,
		)}
	}

	artifact := filepath.Join(d.dir(), req.Variant.OutputName)
	if _, err := os.Stat(artifact); err != nil {
		return Result{}, &Error{Message: fmt.Sprintf(
			"%s reported success but produced no artifact at %s", d.binary(), artifact,
		)}
	}

	logger.Info("packager finished", "artifact", artifact)
	return Result{Variant: req.Variant, ExecutablePath: artifact}, nil
}

func (d *PyInstallerDriver) binary() string {
	if d.Binary != "" {
		return d.Binary
	}
	return "pyinstaller"
}

func (d *PyInstallerDriver) dir() string {
	if d.BuildDir != "" {
		return d.BuildDir
	}
	return "dist"
}

func (d *PyInstallerDriver) stdout() io.Writer {
	if d.Stdout != nil {
		return d.Stdout
	}
	return os.Stdout
}

func (d *PyInstallerDriver) stderr() io.Writer {
	if d.Stderr != nil {
		return d.Stderr
	}
	return os.Stderr
}

func validateRequest(req Request) error {
	info, err := os.Stat(req.SourceScript)
	if errors.Is(err, fs.ErrNotExist) {
		return &Error{Message: fmt.Sprintf("source script %s does not exist", req.SourceScript)}
	}
	if err != nil {
		return &Error{Message: fmt.Sprintf("source script %s is not readable: %v", req.SourceScript, err)}
	}
	if info.IsDir() {
		return &Error{Message: fmt.Sprintf("source script %s is a directory, expected a file", req.SourceScript)}
	}
	if req.IconPath != "" {
		if _, err := os.Stat(req.IconPath); err != nil {
			return &Error{Message: fmt.Sprintf("icon %s does not exist", req.IconPath)}
		}
	}
	if req.Variant.OutputName == "" {
		return &Error{Message: fmt.Sprintf("variant %s has no output name", req.Variant.Name)}
	}
	return nil
}

// composeArgs assembles the packager argument list for one variant. The
// executable name is the output name with its extension stripped, since the
// tool appends the platform suffix itself.
func composeArgs(buildDir string, req Request) []string {
	args := []string{"--onefile"}
	if req.Variant.Windowed {
		args = append(args, "--windowed")
	}
	if req.IconPath != "" {
		args = append(args, "--icon", req.IconPath)
	}
	args = append(args, "--distpath", buildDir)
	args = append(args, "--name", stripExtension(req.Variant.OutputName))
	return append(args, req.SourceScript)
}

func stripExtension(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}
