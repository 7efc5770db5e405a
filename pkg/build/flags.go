// SPDX-License-Identifier: MIT
//
// Package build carries the metadata stamped into the binary with linker
// flags, for example:
//
//	go build -ldflags "-X visualizer/pkg/build.buildName=visualizer \
//	  -X visualizer/pkg/build.buildVersion=0.3.0 ..."
//
// A binary built without any flags is a development build and reports the
// defaults below. A binary with only some flags set is rejected by Initialize.
package build

import "fmt"

const (
	DefaultName        = "visualizer"
	DefaultDescription = "Drive a light array from the spectrum of a playing track"
	devValue           = "dev"
)

type ldFlags struct {
	Name        string
	Description string
	Time        string
	Commit      string
	Version     string
}

var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
	buildFlags   = &ldFlags{
		Name:        DefaultName,
		Description: DefaultDescription,
		Time:        devValue,
		Commit:      devValue,
		Version:     devValue,
	}
)

// Initialize copies the ldflags variables into the build info. It must run
// before GetBuildFlags is used for anything user facing.
func Initialize() error {
	set := 0
	for _, v := range []string{buildName, buildTime, buildCommit, buildVersion} {
		if v != "" {
			set++
		}
	}
	if set == 0 {
		return nil
	}

	if buildName == "" {
		return fmt.Errorf("BuildName is required")
	}
	if buildTime == "" {
		return fmt.Errorf("BuildTime is required")
	}
	if buildCommit == "" {
		return fmt.Errorf("BuildCommit is required")
	}
	if buildVersion == "" {
		return fmt.Errorf("BuildVersion is required")
	}

	buildFlags.Name = buildName
	buildFlags.Time = buildTime
	buildFlags.Commit = buildCommit
	buildFlags.Version = buildVersion

	return nil
}

// GetBuildFlags returns the current build information.
func GetBuildFlags() *ldFlags {
	return buildFlags
}

// IsDevelopment reports whether the binary was built without ldflags.
func IsDevelopment() bool {
	return buildFlags.Version == devValue
}

// String formats the build info for version output.
func (f *ldFlags) String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", f.Name, f.Version, f.Commit, f.Time)
}
