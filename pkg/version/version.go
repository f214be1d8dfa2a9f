package version

import (
	"fmt"
	"runtime"
)

// Name is the program name reported by the CLI, logs and the state endpoint.
const Name = "reel"

// Set at build time with -ldflags "-X github.com/fishannotator/reel/pkg/version.Version=...".
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

type Info struct {
	Name      string `json:"name" yaml:"name"`
	Version   string `json:"version" yaml:"version"`
	GitCommit string `json:"git_commit" yaml:"git_commit"`
	BuildTime string `json:"build_time" yaml:"build_time"`
	Runtime   string `json:"runtime" yaml:"runtime"`
}

func GetInfo() Info {
	return Info{
		Name:      Name,
		Version:   Version,
		GitCommit: GitCommit,
		BuildTime: BuildTime,
		Runtime:   fmt.Sprintf("%s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH),
	}
}

// String is the long form printed by "reel --version".
func (i Info) String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s, %s)", i.Name, i.Version, i.GitCommit, i.BuildTime, i.Runtime)
}

// Short is the form attached to every log line.
func (i Info) Short() string {
	return fmt.Sprintf("%s %s", i.Name, i.Version)
}

// Dev reports whether the binary was built without release ldflags.
func (i Info) Dev() bool {
	return i.Version == "dev"
}
