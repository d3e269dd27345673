// Package version carries build metadata injected with -ldflags, e.g.
//
//	go build -ldflags "-X github.com/MeKo-Tech/labelscan/internal/version.Version=1.4.0" ./cmd/labelscan
package version

import (
	"fmt"
	"runtime"
)

var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Build describes the running binary.
type Build struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
}

// Current returns the build metadata of this binary.
func Current() Build {
	return Build{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
	}
}

// IsRelease reports whether the binary was built with a version injected.
func (b Build) IsRelease() bool { return b.Version != "dev" && b.Version != "" }

func (b Build) String() string {
	return fmt.Sprintf("%s (commit: %s, built: %s, %s)", b.Version, b.GitCommit, b.BuildDate, b.GoVersion)
}

// String formats the current build on one line.
func String() string { return Current().String() }
