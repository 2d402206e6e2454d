package shortcut

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/backupwatcher/winpack/internal/logging"
)

// CommandRunner executes the platform automation command that materializes a
// shortcut. The default implementation shells out, tests substitute their
// own.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// LinkStrategy creates a Windows .lnk shortcut through the WScript.Shell COM
// automation interface, driven by a generated PowerShell script.
type LinkStrategy struct {
	Overwrite OverwritePolicy
	Logger    *slog.Logger
	Runner    CommandRunner // defaults to invoking powershell
}

func (s *LinkStrategy) Name() string {
	return "link"
}

func (s *LinkStrategy) Provision(ctx context.Context, req Request) (string, error) {
	if req.DesktopDir == "" {
		return "", &ProvisionError{Message: "desktop directory is not set"}
	}

	target, err := filepath.Abs(req.TargetPath)
	if err != nil {
		return "", &ProvisionError{Message: fmt.Sprintf("resolve executable path: %v", err)}
	}

	linkName := stripExtension(filepath.Base(target)) + ".lnk"
	linkPath := filepath.Join(req.DesktopDir, linkName)

	if err := checkDestination(s.Overwrite, s.Logger, linkPath); err != nil {
		return "", err
	}

	script := linkScript(linkPath, target, filepath.Dir(target), req.IconPath)
	logging.Ensure(s.Logger).Debug("creating shortcut",
		"link", linkPath,
		"target", target,
	)

	output, err := s.runner().Run(ctx, "powershell",
		"-NoProfile", "-NonInteractive", "-Command", script)
	if err != nil {
		return "", &ProvisionError{Message: fmt.Sprintf(
			"create shortcut %s: %v: %s", linkPath, err, strings.TrimSpace(string(output)),
		)}
	}
	return linkPath, nil
}

func (s *LinkStrategy) runner() CommandRunner {
	if s.Runner != nil {
		return s.Runner
	}
	return execRunner{}
}

// linkScript renders the PowerShell program that asks the scripting host to
// write the shortcut. The icon line is only emitted when an icon is
// configured, the shell applies its default otherwise.
func linkScript(linkPath, targetPath, workingDir, iconPath string) string {
	var b strings.Builder
	b.WriteString("$WshShell = New-Object -ComObject WScript.Shell\n")
	fmt.Fprintf(&b, "$Shortcut = $WshShell.CreateShortcut(%s)\n", psQuote(linkPath))
	fmt.Fprintf(&b, "$Shortcut.TargetPath = %s\n", psQuote(targetPath))
	fmt.Fprintf(&b, "$Shortcut.WorkingDirectory = %s\n", psQuote(workingDir))
	if iconPath != "" {
		fmt.Fprintf(&b, "$Shortcut.IconLocation = %s\n", psQuote(iconPath))
	}
	b.WriteString("$Shortcut.Save()")
	return b.String()
}

// psQuote wraps a value as a PowerShell single-quoted literal, where the only
// escape is doubling embedded quotes.
func psQuote(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}
