// Package version holds build metadata set through ldflags:
//
//	go build -ldflags "-X github.com/abduznik/AI-PR-Analyzer/internal/version.Version=v1.0.0"
package version

import (
	"fmt"
	"runtime/debug"
)

// Version is the release version.
var Version = "unknown"

// Build metadata.
var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Info is the build metadata reported by --version and /status.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildTime string `json:"build_time"`
}

// Get returns the build metadata. When ldflags were not set, the module
// version recorded by the Go toolchain is used if there is one.
func Get() Info {
	info := Info{Version: Version, GitCommit: GitCommit, BuildTime: BuildTime}
	if info.Version == "unknown" {
		if bi, ok := debug.ReadBuildInfo(); ok && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			info.Version = bi.Main.Version
		}
	}
	return info
}

func (i Info) String() string {
	return fmt.Sprintf("prbot %s (commit %s, built %s)", i.Version, i.GitCommit, i.BuildTime)
}
