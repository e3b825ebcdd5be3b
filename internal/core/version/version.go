// Package version provides information about the build version of the tool.
package version

import (
	"runtime/debug"
	"sync"
)

// BuildInfo holds version information about the build. It is stamped into
// validation reports, log lines and clickhouse client info.
type BuildInfo struct {
	Service string `json:"service"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

// Info returns the build information. The version, commit, and date variables
// are intended to be set at build time using -ldflags; an unstamped commit
// falls back to the vcs revision recorded by the go toolchain.
func Info() BuildInfo {
	// Set via -ldflags "-X 'visawh/internal/core/version.version=v0.1.0'
	// -X 'visawh/internal/core/version.commit=abcd' -X 'visawh/internal/core/version.date=2026-10-01'"
	c := commit
	if c == "none" {
		if rev := vcsRevision(); rev != "" {
			c = rev
		}
	}
	return BuildInfo{
		Service: "visawh-build",
		Version: version,
		Commit:  c,
		Date:    date,
	}
}

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var vcsRevision = sync.OnceValue(func() string {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range bi.Settings {
		if s.Key == "vcs.revision" {
			return s.Value[:min(len(s.Value), 12)]
		}
	}
	return ""
})
