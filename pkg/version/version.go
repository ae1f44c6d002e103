// Package version exposes build metadata injected at link time.
package version

import (
	"fmt"
	"runtime/debug"
)

// Build metadata, set with -ldflags "-X github.com/Sumatoshi-tech/treediff/pkg/version.Version=...".
var (
	Version = "dev"     //nolint:gochecknoglobals // set by the linker
	Commit  = "unknown" //nolint:gochecknoglobals // set by the linker
	Date    = "unknown" //nolint:gochecknoglobals // set by the linker
)

const revisionKey = "vcs.revision"

func init() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}

	if Version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		Version = info.Main.Version
	}

	if Commit != "unknown" {
		return
	}

	for _, setting := range info.Settings {
		if setting.Key == revisionKey {
			Commit = setting.Value
		}
	}
}

// String returns the one-line version banner for binary.
func String(binary string) string {
	return fmt.Sprintf("%s %s (commit: %s, built: %s)", binary, Version, Commit, Date)
}
