package version

import (
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Version is the current semantic version of hopper
const Version = "0.1.0"

// Set with -ldflags "-X github.com/standardbeagle/hopper/internal/version.GitCommit=..."
var (
	BuildDate = "development"
	GitCommit = "unknown"
)

// Info returns the short version string
func Info() string {
	return Version
}

// FullInfo returns version, commit and build date
func FullInfo() string {
	return fmt.Sprintf("hopper %s (commit: %s, built: %s)", Version, GitCommit, BuildDate)
}

var (
	buildID     string
	buildIDOnce sync.Once
)

// BuildID fingerprints the running binary so the CLI can replace a daemon
// left over from an older build.
func BuildID() string {
	buildIDOnce.Do(func() {
		buildID = computeBuildID()
	})
	return buildID
}

func computeBuildID() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return Version + "-" + GitCommit
	}

	h := xxhash.New()
	_, _ = h.WriteString(info.GoVersion)
	_, _ = h.WriteString(info.Main.Path)
	_, _ = h.WriteString(info.Main.Version)
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision", "vcs.modified", "vcs.time":
			_, _ = h.WriteString(s.Key)
			_, _ = h.WriteString(s.Value)
		}
	}
	return fmt.Sprintf("%016x", h.Sum64())
}
