package rdp

import (
	"os/exec"
	"strings"

	"github.com/yllada/swiftrdp/common"
)

// Dependency is one external tool the launcher relies on.
type Dependency struct {
	Name     string
	Purpose  string
	Path     string
	Required bool
}

// Found reports whether the tool is on PATH.
func (d Dependency) Found() bool {
	return d.Path != ""
}

// lookPath is replaced in tests.
var lookPath = exec.LookPath

// CheckDependencies resolves the client binary, the window lister and the
// notification helper.
func CheckDependencies(clientBinary, windowLister string) []Dependency {
	if clientBinary == "" {
		clientBinary = DetectClientBinary()
	}
	lister := common.WindowLister
	if fields := strings.Fields(windowLister); len(fields) > 0 {
		lister = fields[0]
	}

	deps := []Dependency{
		{Name: clientBinary, Purpose: "remote desktop client", Required: true},
		{Name: lister, Purpose: "window detection", Required: true},
		{Name: "notify-send", Purpose: "desktop notifications fallback", Required: false},
	}
	for i := range deps {
		if path, err := lookPath(deps[i].Name); err == nil {
			deps[i].Path = path
		}
	}
	return deps
}

// MissingRequired returns the names of required tools that were not found.
func MissingRequired(deps []Dependency) []string {
	missing := make([]string, 0)
	for _, d := range deps {
		if d.Required && !d.Found() {
			missing = append(missing, d.Name)
		}
	}
	return missing
}
