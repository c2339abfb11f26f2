package version

// version is the version of the table engine.
//
// This value is expected to be set via build-time injection:
//
//	-ldflags "-X github.com/yanet-platform/yatable/controlplane/internal/version.version=..."
var version string

// Version returns the version of the table engine, "dev" when it was not
// injected.
func Version() string {
	if version == "" {
		return "dev"
	}
	return version
}
