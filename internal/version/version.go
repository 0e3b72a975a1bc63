// Package version carries build metadata injected at link time.
package version

import "fmt"

var (
	// Version is the semantic version, overridden via -ldflags "-X".
	Version = "0.1.0"
	// Commit is the git commit hash injected at build time.
	Commit = "dev"
	// BuildDate is the build timestamp injected at build time.
	BuildDate = "unknown"
)

// Full returns a human-friendly version string for the CLI and daemon.
func Full() string {
	return fmt.Sprintf("%s (commit:%s, built:%s)", Version, Commit, BuildDate)
}

// UserAgent identifies the binary to external generation services.
func UserAgent() string {
	return "ykgen/" + Version
}
