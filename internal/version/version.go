// Package version carries build metadata set with -ldflags, e.g.
//
//	-X github.com/banshee-data/mde-formula-finder/internal/version.Version=v0.3.0
package version

import "fmt"

var (
	Version   = "dev"
	GitSHA    = "unknown"
	BuildTime = "unknown"
)

// String formats the build metadata for -version output and the health
// endpoint.
func String() string {
	return fmt.Sprintf("fuelfit %s (%s, built %s)", Version, GitSHA, BuildTime)
}
