package shortcut

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/backupwatcher/winpack/internal/logging"
)

// CopyStrategy places a byte-for-byte copy of the executable on the desktop,
// keeping its file name. Used where no shortcut facility exists.
type CopyStrategy struct {
	Overwrite OverwritePolicy
	Logger    *slog.Logger
}

func (s *CopyStrategy) Name() string {
	return "copy"
}

func (s *CopyStrategy) Provision(_ context.Context, req Request) (string, error) {
	if req.DesktopDir == "" {
		return "", &ProvisionError{Message: "desktop directory is not set"}
	}

	destination := filepath.Join(req.DesktopDir, filepath.Base(req.TargetPath))
	if err := checkDestination(s.Overwrite, s.Logger, destination); err != nil {
		return "", err
	}

	logging.Ensure(s.Logger).Debug("copying executable to desktop",
		"source", req.TargetPath,
		"destination", destination,
	)

	source, err := os.Open(req.TargetPath)
	if err != nil {
		return "", &ProvisionError{Message: fmt.Sprintf("open executable: %v", err)}
	}
	defer source.Close()

	target, err := os.OpenFile(destination, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o755)
	if err != nil {
		return "", &ProvisionError{Message: fmt.Sprintf("create desktop copy: %v", err)}
	}

	if _, err := io.Copy(target, source); err != nil {
		target.Close()
		return "", &ProvisionError{Message: fmt.Sprintf("copy executable to %s: %v", destination, err)}
	}
	if err := target.Close(); err != nil {
		return "", &ProvisionError{Message: fmt.Sprintf("finalize desktop copy: %v", err)}
	}
	return destination, nil
}
