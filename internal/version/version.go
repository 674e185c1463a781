// Package version exposes build metadata for the health endpoint and the
// version command.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set via -ldflags at release build time. A plain `go build` leaves them
// empty and the module build info fills in what it can.
var (
	Version   = ""
	GitCommit = ""
	BuildDate = ""
)

// Info is the resolved build metadata.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit,omitempty"`
	BuildDate string `json:"build_date,omitempty"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

func Get() Info {
	return Info{
		Version:   GetVersion(),
		GitCommit: commit(),
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

// GetVersion resolves the version string: ldflags first, then the module
// version stamped into the binary, then "dev".
func GetVersion() string {
	if Version != "" {
		return Version
	}

	if info, ok := debug.ReadBuildInfo(); ok {
		if v := info.Main.Version; v != "" && v != "(devel)" {
			return v
		}
	}

	return "dev"
}

// commit prefers the ldflags value and falls back to the vcs revision
// recorded in the build info.
func commit() string {
	if GitCommit != "" {
		return GitCommit
	}

	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" {
				return setting.Value
			}
		}
	}

	return ""
}
