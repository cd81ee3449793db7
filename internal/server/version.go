package server

import (
	"fmt"
	"os"
	"runtime"

	"github.com/babelcloud/gbox/packages/sensorframe/internal/version"
)

// BuildInfo contains build-time information
var BuildInfo = struct {
	Version   string
	BuildTime string
	GitCommit string
	GoVersion string
}{
	Version:   version.Version,
	BuildTime: version.BuildTime,
	GitCommit: version.Commit(),
	GoVersion: runtime.Version(),
}

// GetBuildID identifies the running binary by commit, mtime and size.
func GetBuildID() string {
	fallback := BuildInfo.BuildTime + "-" + BuildInfo.GitCommit + "-unknown"

	execPath, err := os.Executable()
	if err != nil {
		return fallback
	}
	info, err := os.Stat(execPath)
	if err != nil {
		return fallback
	}
	return fmt.Sprintf("%s-%s-%d", info.ModTime().Format("2006-01-02T15:04:05"), BuildInfo.GitCommit, info.Size())
}
