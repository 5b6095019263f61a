// Package version exposes build metadata stamped in at link time.
//
// The release build overrides these through ldflags:
//
//	go build -ldflags "\
//	  -X github.com/ekurt/marketfeed/internal/version.Version=$(VERSION) \
//	  -X github.com/ekurt/marketfeed/internal/version.Commit=$(git rev-parse --short HEAD) \
//	  -X github.com/ekurt/marketfeed/internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package version

import "fmt"

var (
	// Version is the semantic release version; "dev" for local builds.
	Version = "dev"

	// Commit is the short git hash of the built tree.
	Commit = "unknown"

	// BuildTime is the UTC build timestamp.
	BuildTime = "unknown"
)

// String renders the stamped metadata as a single line.
func String() string {
	return fmt.Sprintf("%s (%s) built %s", Version, Commit, BuildTime)
}
