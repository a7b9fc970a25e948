// This file is part of modloader.
//
// modloader is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// modloader is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with modloader.  If not, see <https://www.gnu.org/licenses/>.

// Package version reports the version and vcs revision of the loader.
package version

import (
	"fmt"
	"runtime/debug"
)

// ApplicationName is the name to use when referring to the application.
const ApplicationName = "modloader"

// set by the linker for release builds
var number string

var (
	version  string
	revision string
	release  bool
)

// Version returns the version string, the revision string and whether this is
// a numbered release.
//
// The version string is "unreleased" when the build carries vcs information
// but no version number, and "local" when there is neither. The revision is
// suffixed with "+dirty" if the working tree had uncommitted changes.
func Version() (string, string, bool) {
	return version, revision, release
}

// String returns a single line suitable for the VERSION mode.
func String() string {
	if release {
		return fmt.Sprintf("%s %s", ApplicationName, version)
	}
	return fmt.Sprintf("%s %s (%s)", ApplicationName, version, revision)
}

func init() {
	version, revision, release = fromBuildInfo(number, debug.ReadBuildInfo)
}

func fromBuildInfo(number string, read func() (*debug.BuildInfo, bool)) (string, string, bool) {
	var vcs bool
	var vcsRevision string
	var vcsModified bool

	if info, ok := read(); ok {
		for _, v := range info.Settings {
			switch v.Key {
			case "vcs":
				vcs = true
			case "vcs.revision":
				vcsRevision = v.Value
			case "vcs.modified":
				vcsModified = v.Value == "true"
			}
		}
	}

	rev := "no revision information"
	if vcsRevision != "" {
		rev = vcsRevision
		if vcsModified {
			rev = fmt.Sprintf("%s+dirty", rev)
		}
	}

	if number != "" {
		return number, rev, true
	}
	if vcs {
		return "unreleased", rev, false
	}
	return "local", rev, false
}
