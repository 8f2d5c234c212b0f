// Package version reports build information stamped in with -ldflags or
// read back from the module's embedded build info.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

// Set at build time:
//
//	go build -ldflags "-X github.com/conneroisu/sitepipe/internal/version.Version=v1.2.0"
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version   string    `json:"version"`
	GitCommit string    `json:"git_commit"`
	BuildTime time.Time `json:"build_time"`
	GoVersion string    `json:"go_version"`
	Platform  string    `json:"platform"`
	Dirty     bool      `json:"dirty,omitempty"`
}

// readSettings is swapped out in tests.
var readSettings = func() (string, map[string]string) {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "", nil
	}
	settings := make(map[string]string, len(info.Settings))
	for _, s := range info.Settings {
		settings[s.Key] = s.Value
	}
	return info.Main.Version, settings
}

// GetBuildInfo returns the binary's build information.
func GetBuildInfo() BuildInfo {
	_, settings := readSettings()
	return BuildInfo{
		Version:   GetVersion(),
		GitCommit: GetGitCommit(),
		BuildTime: parseBuildTime(BuildTime),
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		Dirty:     settings["vcs.modified"] == "true",
	}
}

// GetVersion prefers the stamped version, then the module version, then
// a dev version derived from the VCS revision.
func GetVersion() string {
	if Version != "" && Version != "dev" {
		return Version
	}
	mainVersion, settings := readSettings()
	if mainVersion != "" && mainVersion != "(devel)" {
		return mainVersion
	}
	if rev := settings["vcs.revision"]; len(rev) >= 7 {
		return "dev-" + rev[:7]
	}
	return "dev"
}

// GetGitCommit returns the full commit hash, or "unknown".
func GetGitCommit() string {
	if GitCommit != "" && GitCommit != "unknown" {
		return GitCommit
	}
	_, settings := readSettings()
	if rev := settings["vcs.revision"]; rev != "" {
		return rev
	}
	return "unknown"
}

// GetShortVersion is the one-line form used in logs and the health
// endpoint.
func GetShortVersion() string {
	v := GetVersion()
	commit := GetGitCommit()
	if commit == "unknown" || len(commit) < 7 || strings.HasPrefix(v, "dev-") {
		return v
	}
	if v == "dev" {
		return "dev-" + commit[:7]
	}
	return fmt.Sprintf("%s (%s)", v, commit[:7])
}

// GetDetailedVersion is the multi-line form printed by the version command.
func GetDetailedVersion() string {
	info := GetBuildInfo()
	lines := []string{"sitepipe " + info.Version}
	if info.GitCommit != "unknown" {
		commit := "commit:   " + info.GitCommit
		if info.Dirty {
			commit += " (dirty)"
		}
		lines = append(lines, commit)
	}
	if !info.BuildTime.IsZero() {
		lines = append(lines, "built:    "+info.BuildTime.Format(time.RFC3339))
	}
	lines = append(lines,
		"go:       "+info.GoVersion,
		"platform: "+info.Platform,
	)
	return strings.Join(lines, "\n")
}

// IsRelease reports whether the binary carries a release version.
func IsRelease() bool {
	v := GetVersion()
	return v != "dev" && !strings.HasPrefix(v, "dev-")
}

func parseBuildTime(s string) time.Time {
	if s == "" || s == "unknown" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
