package otelgz

import "github.com/go-faster/gzblock/internal/version"

// Version is the current release version of the gzblock instrumentation.
func Version() string {
	return version.Get().Raw
}

// SemVersion is the semantic version to be supplied to tracer/meter creation.
func SemVersion() string {
	return "semver:" + Version()
}
