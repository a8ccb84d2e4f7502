// Package version provides centralized version management for LM Buddy.
// It supports semantic versioning, build-time injection and the compatibility
// check applied to configuration files.
package version

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Build information that can be set at compile time via -ldflags
var (
	// Version is the semantic version of the application
	Version = "0.9.6"

	// GitCommit is the git commit hash when the binary was built
	GitCommit = "unknown"

	// BuildDate is the date when the binary was built
	BuildDate = "unknown"
)

// ConfigSchemaVersion is the newest configuration layout this build understands.
const ConfigSchemaVersion = "1.0.0"

// Info represents comprehensive version information
type Info struct {
	Version   string          `json:"version"`
	GitCommit string          `json:"gitCommit"`
	BuildDate string          `json:"buildDate"`
	GoVersion string          `json:"goVersion"`
	Platform  string          `json:"platform"`
	SemVer    *semver.Version `json:"-"`
}

// GetInfo returns comprehensive version information
func GetInfo() (*Info, error) {
	sv, err := semver.NewVersion(Version)
	if err != nil {
		return nil, fmt.Errorf("invalid semantic version '%s': %w", Version, err)
	}

	return &Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
		SemVer:    sv,
	}, nil
}

// GetFormattedVersion returns a one-line version string suitable for window titles.
func GetFormattedVersion() string {
	info, err := GetInfo()
	if err != nil {
		return fmt.Sprintf("LM Buddy v%s (invalid version)", Version)
	}

	parts := []string{fmt.Sprintf("LM Buddy v%s", info.Version)}

	if info.GitCommit != "unknown" && info.GitCommit != "" {
		shortCommit := info.GitCommit
		if len(shortCommit) > 7 {
			shortCommit = shortCommit[:7]
		}
		parts = append(parts, fmt.Sprintf("commit %s", shortCommit))
	}

	if info.BuildDate != "unknown" && info.BuildDate != "" {
		parts = append(parts, fmt.Sprintf("built %s", info.BuildDate))
	}

	return strings.Join(parts, ", ")
}

// GetDetailedVersion returns detailed version information for debugging
func GetDetailedVersion() string {
	info, err := GetInfo()
	if err != nil {
		return fmt.Sprintf("LM Buddy v%s (error: %v)", Version, err)
	}

	lines := []string{
		fmt.Sprintf("LM Buddy v%s", info.Version),
		fmt.Sprintf("Git Commit: %s", info.GitCommit),
		fmt.Sprintf("Build Date: %s", info.BuildDate),
		fmt.Sprintf("Go Version: %s", info.GoVersion),
		fmt.Sprintf("Platform: %s", info.Platform),
		fmt.Sprintf("Config Schema: %s", ConfigSchemaVersion),
	}
	return strings.Join(lines, "\n")
}

// CompareVersions compares two version strings and returns:
// -1 if v1 < v2, 0 if v1 == v2, 1 if v1 > v2
func CompareVersions(v1, v2 string) (int, error) {
	sv1, err := semver.NewVersion(v1)
	if err != nil {
		return 0, fmt.Errorf("invalid version v1 '%s': %w", v1, err)
	}

	sv2, err := semver.NewVersion(v2)
	if err != nil {
		return 0, fmt.Errorf("invalid version v2 '%s': %w", v2, err)
	}

	return sv1.Compare(sv2), nil
}

// CheckConfigVersion reports whether a configuration file written with the given
// schema version can be read by this build. Files from a newer major version are
// rejected; missing versions are treated as the current schema.
func CheckConfigVersion(fileVersion string) error {
	if strings.TrimSpace(fileVersion) == "" {
		return nil
	}

	constraint, err := semver.NewConstraint("<" + nextMajor(ConfigSchemaVersion))
	if err != nil {
		return fmt.Errorf("invalid schema constraint: %w", err)
	}

	sv, err := semver.NewVersion(fileVersion)
	if err != nil {
		return fmt.Errorf("invalid config version '%s': %w", fileVersion, err)
	}

	if !constraint.Check(sv) {
		return fmt.Errorf("config version %s is newer than supported schema %s", sv, ConfigSchemaVersion)
	}
	return nil
}

// nextMajor returns the first version of the following major release.
func nextMajor(v string) string {
	sv := semver.MustParse(v)
	return sv.IncMajor().String()
}

// SetBuildInfo sets build information (used for testing)
func SetBuildInfo(version, gitCommit, buildDate string) {
	Version = version
	GitCommit = gitCommit
	BuildDate = buildDate
}
