// Package version carries build metadata stamped in with -ldflags, e.g.
//
//	go build -ldflags "-X github.com/banshee-data/objdetect/internal/version.Version=v0.1.0"
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

// String formats the build metadata for a -version flag.
func String(binary string) string {
	return fmt.Sprintf("%s %s (%s, built %s)", binary, Version, GitSHA, BuildTime)
}
