// Package version carries build identity for the updater image itself
// (not the application image it installs).
package version

// Build information, injected via ldflags at link time. Must not have
// default values here: an empty Version at runtime means the binary
// was built without the release pipeline.
var (
	Version   string
	GitSHA    string
	BuildDate string
)

// BuildMarker is a hardcoded string bumped by hand on every updater
// release, independent of the ldflags values, so a unit mismatch
// between the two is itself a build-system bug signal.
const BuildMarker = "updater-007"
