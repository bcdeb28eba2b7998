package main

import (
	"runtime/debug"

	"github.com/marcus/scopes/cmd"
)

// Version is set at release time with -ldflags "-X main.Version=...".
var Version = "dev"

// buildVersion falls back to module and VCS metadata for go install and
// local builds.
func buildVersion() string {
	if Version != "dev" && Version != "" {
		return Version
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return Version
	}
	if v := info.Main.Version; v != "" && v != "(devel)" {
		return v
	}

	var rev string
	dirty := false
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if rev == "" {
		return Version
	}
	if len(rev) > 12 {
		rev = rev[:12]
	}
	if dirty {
		return "devel+" + rev + "+dirty"
	}
	return "devel+" + rev
}

func main() {
	cmd.SetVersion(buildVersion())
	cmd.Execute()
}
