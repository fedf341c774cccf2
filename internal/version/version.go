// Package version holds build metadata injected with -ldflags.
package version

import "fmt"

// Set at build time:
//
//	go build -ldflags "-X langpacks/internal/version.Version=v1.2.0 -X langpacks/internal/version.Commit=abc123"
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Info returns a single-line description of the build.
func Info() string {
	return fmt.Sprintf("langpacks %s (commit %s, built %s)", Version, Commit, Date)
}

// UserAgent is sent on every outbound CDN request.
func UserAgent() string {
	return "langpacks/" + Version
}
