// Package version reports build information injected with -ldflags.
package version

import (
	"fmt"
	"runtime"
)

var (
	// Version is injected at build time via -ldflags.
	Version = "dev"
	// BuildTime is injected at build time via -ldflags.
	BuildTime = "unknown"
	// GitCommit is injected at build time via -ldflags.
	GitCommit = "unknown"
)

const appName = "twitchbot"

// Info is the build description served by the gateway and the CLI.
type Info struct {
	App       string `json:"app"`
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	Go        string `json:"go"`
	Platform  string `json:"platform"`
}

// Get returns the current build info.
func Get() Info {
	return Info{
		App:       appName,
		Version:   Version,
		Commit:    GitCommit,
		BuildTime: BuildTime,
		Go:        runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// GetVersion returns the short semantic version.
func GetVersion() string {
	return Version
}

// GetFullVersion returns a user-facing build string. Development builds
// include the commit so bug reports can be traced.
func GetFullVersion() string {
	if Version == "dev" {
		return fmt.Sprintf("%s/%s (commit: %s)", appName, Version, GitCommit)
	}
	return fmt.Sprintf("%s/%s", appName, Version)
}

// String renders the info on one line for `twitchbot version`.
func (i Info) String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s, %s %s)",
		i.App, i.Version, i.Commit, i.BuildTime, i.Go, i.Platform)
}
