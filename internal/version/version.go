// Package version carries build metadata stamped in via -ldflags.
package version

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String returns a single-line rendering for logs and the health endpoint.
func String() string {
	return Version + " (" + GitSHA + ", built " + BuildTime + ")"
}
