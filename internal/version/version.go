// Package version carries build identification stamped in via -ldflags.
package version

var (
	// Version is the release version, "dev" for local builds.
	Version = "dev"
	// GitSHA identifies the commit the binary was built from.
	GitSHA = "unknown"
	// BuildTime is the build timestamp.
	BuildTime = "unknown"
)
