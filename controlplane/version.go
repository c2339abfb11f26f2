package controlplane

import (
	"github.com/yanet-platform/yatable/controlplane/internal/version"
)

// Version returns the current yatable version.
func Version() string {
	return version.Version()
}
