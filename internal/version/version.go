// Package version holds the SDK version string shared by the service
// clients and the server identification header.
package version

import "os"

// Version is the SDK release version. Overridden at build time via
// -ldflags, or at runtime by ENSO_SDK_VERSION (set by the CLI wrapper).
var Version = "dev"

// SDKVersion returns the effective SDK version.
func SDKVersion() string {
	if v := os.Getenv("ENSO_SDK_VERSION"); v != "" {
		return v
	}
	return Version
}

// UserAgent returns the versioned User-Agent string sent on all outbound
// calls to the cloud services.
func UserAgent() string {
	return "Enso Go SDK/" + SDKVersion()
}
