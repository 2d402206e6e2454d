// Package shortcut places a desktop-visible entry point for a built
// executable. Two strategies exist: Link drives the Windows scripting host to
// create a real .lnk shortcut, Copy duplicates the executable onto the
// desktop for platforms without a shortcut facility.
package shortcut

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/backupwatcher/winpack/internal/logging"
)

// Request identifies the executable to expose and where.
type Request struct {
	TargetPath string // built executable
	DesktopDir string // directory that should receive the entry
	IconPath   string // optional icon, passed through unvalidated
}

// OverwritePolicy controls what happens when the destination entry already
// exists.
type OverwritePolicy string

// Supported overwrite policies.
const (
	OverwriteAlways OverwritePolicy = "always"
	OverwriteWarn   OverwritePolicy = "warn"
	OverwriteFail   OverwritePolicy = "fail"
)

// Strategy provisions one desktop entry and returns its destination path.
type Strategy interface {
	Name() string
	Provision(ctx context.Context, req Request) (string, error)
}

// ProvisionError represents a failure to place the desktop entry. The built
// executable is unaffected when this is returned.
type ProvisionError struct {
	Message string
}

func (e *ProvisionError) Error() string {
	return e.Message
}

// Select maps a configured strategy name to an implementation. The "auto"
// kind (or an empty string) picks by operating system: Windows gets a real
// shortcut, everything else a desktop copy.
func Select(kind, goos string, policy OverwritePolicy, logger *slog.Logger) (Strategy, error) {
	switch kind {
	case "", "auto":
		return ForPlatform(goos, policy, logger), nil
	case "link":
		return &LinkStrategy{Overwrite: policy, Logger: logger}, nil
	case "copy":
		return &CopyStrategy{Overwrite: policy, Logger: logger}, nil
	default:
		return nil, fmt.Errorf("unknown shortcut strategy %q", kind)
	}
}

// ForPlatform returns the natural strategy for the given GOOS.
func ForPlatform(goos string, policy OverwritePolicy, logger *slog.Logger) Strategy {
	if goos == "windows" {
		return &LinkStrategy{Overwrite: policy, Logger: logger}
	}
	return &CopyStrategy{Overwrite: policy, Logger: logger}
}

// checkDestination applies the overwrite policy against an existing entry.
// A clear destination always passes.
func checkDestination(policy OverwritePolicy, logger *slog.Logger, destination string) error {
	if _, err := os.Stat(destination); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return &ProvisionError{Message: fmt.Sprintf("inspect destination %s: %v", destination, err)}
	}

	switch policy {
	case OverwriteFail:
		return &ProvisionError{Message: fmt.Sprintf("destination %s already exists", destination)}
	case OverwriteWarn:
		logging.Ensure(logger).Warn("replacing existing desktop entry", "destination", destination)
	}
	return nil
}

func stripExtension(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}
