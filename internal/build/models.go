package build

import "fmt"

// Mode selects which variants a single invocation builds.
type Mode string

// Supported build modes.
const (
	ModeDebug   Mode = "debug"
	ModeRelease Mode = "release"
	ModeAll     Mode = "all"
)

// Variant is one named configuration handed to the packaging tool. Windowed
// variants are built without an attached console; OutputName is the file name
// the finished executable carries inside the build directory.
type Variant struct {
	Name       string
	Windowed   bool
	OutputName string
}

// Request carries everything the packager driver needs for one build.
type Request struct {
	SourceScript string
	IconPath     string
	Variant      Variant
}

// Result reports a finished build.
type Result struct {
	Variant        Variant
	ExecutablePath string
}

// VariantsFor expands a mode into the ordered list of variants to build.
// ModeAll builds the debug variant first so a shared failure surfaces with
// console output attached.
func VariantsFor(mode Mode, debug, release Variant) ([]Variant, error) {
	switch mode {
	case ModeDebug:
		return []Variant{debug}, nil
	case ModeRelease:
		return []Variant{release}, nil
	case ModeAll:
		return []Variant{debug, release}, nil
	default:
		return nil, fmt.Errorf("unknown build mode %q", mode)
	}
}
