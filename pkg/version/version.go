// Package version carries build metadata injected at link time.
package version

// Set via -ldflags "-X github.com/dataflock/dataflock/pkg/version.Version=...".
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)
