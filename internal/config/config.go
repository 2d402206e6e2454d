// Package config loads the winpack configuration file and checks the
// environment the pipeline depends on.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/backupwatcher/winpack/internal/build"
	"github.com/backupwatcher/winpack/internal/shortcut"
)

// DefaultPath is where the configuration file is looked up when no explicit
// path is given.
const DefaultPath = "winpack.yaml"

// Config is the root of the configuration file.
type Config struct {
	App      AppConfig      `yaml:"app"`
	Build    BuildConfig    `yaml:"build"`
	Shortcut ShortcutConfig `yaml:"shortcut"`
}

// AppConfig names the application being packaged.
type AppConfig struct {
	Script string `yaml:"script"` // Python entry point handed to the packager
	Icon   string `yaml:"icon"`   // optional icon for executable and shortcut
}

// BuildConfig controls the packaging tool invocation.
type BuildConfig struct {
	Packager    string `yaml:"packager"`     // packager executable name or path
	Dir         string `yaml:"dir"`          // where executables land
	DebugName   string `yaml:"debug_name"`   // output name of the console variant
	ReleaseName string `yaml:"release_name"` // output name of the windowed variant
}

// ShortcutConfig controls desktop entry provisioning.
type ShortcutConfig struct {
	Strategy   string `yaml:"strategy"`    // auto, link, or copy
	Overwrite  string `yaml:"overwrite"`   // always, warn, or fail
	Fatal      bool   `yaml:"fatal"`       // treat provisioning failure as pipeline failure
	DesktopDir string `yaml:"desktop_dir"` // overrides the resolved desktop directory
}

// Default returns the built-in configuration, tuned for the
// GameBackupWatcher application this tool grew around.
func Default() Config {
	return Config{
		App: AppConfig{
			Script: "GameBackupWatcher.py",
		},
		Build: BuildConfig{
			Packager:    "pyinstaller",
			Dir:         "dist",
			DebugName:   "GameBackupWatcher-debug.exe",
			ReleaseName: "GameBackupWatcher.exe",
		},
		Shortcut: ShortcutConfig{
			Strategy:  "auto",
			Overwrite: string(shortcut.OverwriteAlways),
		},
	}
}

// Load reads and validates the configuration file at path. A missing file is
// an error; callers that treat DefaultPath as optional use LoadDefault.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	return parse(data, path)
}

// LoadDefault loads DefaultPath from the working directory when present, and
// falls back to the built-in defaults when it does not exist.
func LoadDefault() (Config, error) {
	data, err := os.ReadFile(DefaultPath)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	return parse(data, DefaultPath)
}

// parse unmarshals on top of the defaults so omitted fields keep their
// built-in values.
func parse(data []byte, path string) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects configurations the pipeline cannot act on.
func (c Config) Validate() error {
	if strings.TrimSpace(c.App.Script) == "" {
		return errors.New("app.script must not be empty")
	}
	if strings.TrimSpace(c.Build.Packager) == "" {
		return errors.New("build.packager must not be empty")
	}
	if strings.TrimSpace(c.Build.Dir) == "" {
		return errors.New("build.dir must not be empty")
	}
	if strings.TrimSpace(c.Build.DebugName) == "" {
		return errors.New("build.debug_name must not be empty")
	}
	if strings.TrimSpace(c.Build.ReleaseName) == "" {
		return errors.New("build.release_name must not be empty")
	}

	switch c.Shortcut.Strategy {
	case "", "auto", "link", "copy":
	default:
		return fmt.Errorf("shortcut.strategy must be auto, link, or copy, got %q", c.Shortcut.Strategy)
	}

	switch shortcut.OverwritePolicy(c.Shortcut.Overwrite) {
	case "", shortcut.OverwriteAlways, shortcut.OverwriteWarn, shortcut.OverwriteFail:
	default:
		return fmt.Errorf("shortcut.overwrite must be always, warn, or fail, got %q", c.Shortcut.Overwrite)
	}
	return nil
}

// DebugVariant is the console build, kept around for inspecting crashes.
func (c Config) DebugVariant() build.Variant {
	return build.Variant{
		Name:       "debug",
		Windowed:   false,
		OutputName: c.Build.DebugName,
	}
}

// ReleaseVariant is the windowed build end users run.
func (c Config) ReleaseVariant() build.Variant {
	return build.Variant{
		Name:       "release",
		Windowed:   true,
		OutputName: c.Build.ReleaseName,
	}
}

// OverwritePolicy returns the configured policy, defaulting to replacing
// existing desktop entries.
func (c Config) OverwritePolicy() shortcut.OverwritePolicy {
	if c.Shortcut.Overwrite == "" {
		return shortcut.OverwriteAlways
	}
	return shortcut.OverwritePolicy(c.Shortcut.Overwrite)
}

// DesktopDir returns the directory that should receive the desktop entry,
// either the configured override or Desktop under the user's home.
func (c Config) DesktopDir() (string, error) {
	if c.Shortcut.DesktopDir != "" {
		return c.Shortcut.DesktopDir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, "Desktop"), nil
}

// Severity grades a preflight problem.
type Severity string

// Problem severities. Errors will fail a build, warnings only degrade it.
const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Problem describes one failed preflight check.
type Problem struct {
	Subject  string
	Severity Severity
	Detail   string
}

// Preflight inspects the environment the pipeline needs without touching
// anything. It reports everything it finds rather than stopping at the first
// problem.
func Preflight(c Config) []Problem {
	var problems []Problem

	if _, err := exec.LookPath(c.Build.Packager); err != nil {
		problems = append(problems, Problem{
			Subject:  "packager",
			Severity: SeverityError,
			Detail:   fmt.Sprintf("%s not found on PATH", c.Build.Packager),
		})
	}

	if info, err := os.Stat(c.App.Script); err != nil {
		problems = append(problems, Problem{
			Subject:  "script",
			Severity: SeverityError,
			Detail:   fmt.Sprintf("%s does not exist", c.App.Script),
		})
	} else if info.IsDir() {
		problems = append(problems, Problem{
			Subject:  "script",
			Severity: SeverityError,
			Detail:   fmt.Sprintf("%s is a directory, expected a file", c.App.Script),
		})
	}

	if c.App.Icon != "" {
		if _, err := os.Stat(c.App.Icon); err != nil {
			problems = append(problems, Problem{
				Subject:  "icon",
				Severity: SeverityError,
				Detail:   fmt.Sprintf("%s does not exist", c.App.Icon),
			})
		}
	}

	desktop, err := c.DesktopDir()
	if err != nil {
		problems = append(problems, Problem{
			Subject:  "desktop",
			Severity: SeverityWarning,
			Detail:   err.Error(),
		})
	} else if _, err := os.Stat(desktop); err != nil {
		problems = append(problems, Problem{
			Subject:  "desktop",
			Severity: SeverityWarning,
			Detail:   fmt.Sprintf("%s does not exist, provisioning would fail", desktop),
		})
	}

	return problems
}
