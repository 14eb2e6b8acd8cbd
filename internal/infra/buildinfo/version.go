// Package buildinfo reports the version of the running binary.
//
// Values may be injected with ldflags:
//
//	go build -ldflags "-X github.com/yndnr/muxd/internal/infra/buildinfo.Version=v1.0.0"
//
// Anything left unset is filled from the module build info embedded by the
// Go toolchain (module version, vcs.revision, vcs.time).
package buildinfo

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
)

// Set via ldflags.
var (
	Version   = ""
	Commit    = ""
	BuildTime = ""
)

const unknown = "unknown"

// Info describes a build.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
	Modified  bool   `json:"modified,omitempty"`
}

var (
	once   sync.Once
	cached Info
)

// Get returns the build information of the running binary.
func Get() Info {
	once.Do(func() {
		bi, _ := debug.ReadBuildInfo()
		cached = resolve(bi)
	})
	return cached
}

func resolve(bi *debug.BuildInfo) Info {
	info := Info{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	}
	if bi != nil {
		if info.Version == "" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			info.Version = bi.Main.Version
		}
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if info.Commit == "" {
					info.Commit = s.Value
				}
			case "vcs.time":
				if info.BuildTime == "" {
					info.BuildTime = s.Value
				}
			case "vcs.modified":
				info.Modified = s.Value == "true"
			}
		}
		if bi.GoVersion != "" {
			info.GoVersion = bi.GoVersion
		}
	}
	if info.Version == "" {
		info.Version = "dev"
	}
	if info.Commit == "" {
		info.Commit = unknown
	}
	if len(info.Commit) > 12 {
		info.Commit = info.Commit[:12]
	}
	if info.BuildTime == "" {
		info.BuildTime = unknown
	}
	return info
}

// String formats the info as "muxd v1.0.0 (abc123, go1.24.4)".
func (i Info) String() string {
	commit := i.Commit
	if i.Modified {
		commit += "-dirty"
	}
	return fmt.Sprintf("muxd %s (%s, %s)", i.Version, commit, i.GoVersion)
}

// String returns Get().String().
func String() string {
	return Get().String()
}
