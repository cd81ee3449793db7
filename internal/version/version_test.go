package version

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func withBuildVars(t *testing.T, version, buildTime, commit string) {
	t.Helper()
	oldVersion, oldTime, oldCommit := Version, BuildTime, CommitID
	Version, BuildTime, CommitID = version, buildTime, commit
	t.Cleanup(func() {
		Version, BuildTime, CommitID = oldVersion, oldTime, oldCommit
	})
}

func TestClientInfo(t *testing.T) {
	withBuildVars(t, "v1.2.3", "2025-03-04T05:06:07Z", "abc1234")

	info := ClientInfo()
	assert.Equal(t, "v1.2.3", info["Version"])
	assert.Equal(t, "abc1234", info["GitCommit"])
	assert.Equal(t, "Tue Mar 4 05:06:07 2025", info["FormattedTime"])
	assert.Equal(t, runtime.Version(), info["GoVersion"])
	assert.Equal(t, runtime.GOOS, info["OS"])
}

func TestFormattedBuildTimeKeepsUnparsedValue(t *testing.T) {
	withBuildVars(t, "dev", "unknown", "unknown")
	assert.Equal(t, "unknown", FormattedBuildTime())

	BuildTime = "yesterday"
	assert.Equal(t, "yesterday", FormattedBuildTime())
}

func TestCommitFallback(t *testing.T) {
	withBuildVars(t, "dev", "unknown", "unknown")
	commit := Commit()
	assert.NotEmpty(t, commit)
	assert.LessOrEqual(t, len(commit), 12)
}
