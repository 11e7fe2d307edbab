package obs

import "runtime/debug"

// Version and Commit are set with -ldflags at build time.
var (
	Version = "dev"
	Commit  = ""
)

// SetBuildInfo publishes build_info{version,commit} 1.
func (m *Metrics) SetBuildInfo(version, commit string) {
	if m == nil {
		return
	}
	if commit == "" {
		commit = vcsRevision()
	}
	m.buildInfo.WithLabelValues(version, commit).Set(1)
}

func vcsRevision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" {
			return s.Value
		}
	}
	return "unknown"
}
