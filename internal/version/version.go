package version

import (
	"runtime"
	"runtime/debug"
	"time"
)

// Set at build time via -ldflags "-X .../internal/version.Version=...".
var (
	Version   = "dev"
	BuildTime = "unknown"
	CommitID  = "unknown"
)

const displayTimeLayout = "Mon Jan 2 15:04:05 2006"

// Commit returns CommitID, falling back to the VCS revision stamped by the
// go tool when ldflags were not set.
func Commit() string {
	if CommitID != "unknown" {
		return CommitID
	}
	if rev := vcsSetting("vcs.revision"); rev != "" {
		if len(rev) > 12 {
			rev = rev[:12]
		}
		return rev
	}
	return CommitID
}

func vcsSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == key {
			return s.Value
		}
	}
	return ""
}

// FormattedBuildTime renders BuildTime for humans, or returns it as is
// when it is not RFC 3339.
func FormattedBuildTime() string {
	t, err := time.Parse(time.RFC3339, BuildTime)
	if err != nil {
		return BuildTime
	}
	return t.Format(displayTimeLayout)
}

// ClientInfo returns version fields keyed by display name.
func ClientInfo() map[string]string {
	return map[string]string{
		"Version":       Version,
		"GitCommit":     Commit(),
		"BuildTime":     BuildTime,
		"FormattedTime": FormattedBuildTime(),
		"GoVersion":     runtime.Version(),
		"OS":            runtime.GOOS,
		"Arch":          runtime.GOARCH,
	}
}
