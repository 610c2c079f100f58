package shared

import "fmt"

// Version variables that can be set at build time using ldflags
var (
	// Version is the flowchat service version
	Version = "dev"

	// BuildTime is the time when the binary was built
	BuildTime = "unknown"

	// GitCommit is the git commit hash
	GitCommit = "unknown"
)

// VersionInfo returns a formatted version string
func VersionInfo() string {
	return fmt.Sprintf("%s (build: %s, commit: %s)", Version, BuildTime, GitCommit)
}
