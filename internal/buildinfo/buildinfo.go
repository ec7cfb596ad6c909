// Package buildinfo exposes compile-time metadata stamped into the
// runtime's binaries.
package buildinfo

// Overridden via -ldflags on release builds; the defaults identify a
// local development build.
var (
	// Version is the semantic version or git describe output.
	Version = "dev"

	// Commit is the git commit SHA.
	Commit = "none"

	// BuildDate records when the binary was built, in UTC.
	BuildDate = "unknown"
)
