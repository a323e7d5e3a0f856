package version

import "fmt"

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String describes the build for log headers and the run summary.
func String() string {
	return fmt.Sprintf("mea-sync %s (%s, built %s)", Version, GitSHA, BuildTime)
}
