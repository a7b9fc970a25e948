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

package performance

import (
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
	"strings"

	"github.com/jetsetilly/modloader/curated"
)

// Sentinal errors returned by the performance package.
const (
	UnknownProfile = "performance: unknown profile (%s)"
	ProfileError   = "performance: %s: %v"
)

// Profile specifies which profiles to create. Values can be combined.
type Profile int

// List of valid Profile values.
const (
	ProfileNone  Profile = 0
	ProfileCPU   Profile = 0x01
	ProfileMem   Profile = 0x02
	ProfileTrace Profile = 0x04
)

func (p Profile) String() string {
	if p == ProfileNone {
		return "NONE"
	}
	var s []string
	if p&ProfileCPU == ProfileCPU {
		s = append(s, "CPU")
	}
	if p&ProfileMem == ProfileMem {
		s = append(s, "MEM")
	}
	if p&ProfileTrace == ProfileTrace {
		s = append(s, "TRACE")
	}
	return strings.Join(s, ",")
}

// ParseProfile parses a comma separated list of profile names. Valid names
// are CPU, MEM, TRACE and NONE. Names are not case sensitive.
func ParseProfile(s string) (Profile, error) {
	var p Profile
	for _, n := range strings.Split(s, ",") {
		switch strings.ToUpper(strings.TrimSpace(n)) {
		case "", "NONE":
		case "CPU":
			p |= ProfileCPU
		case "MEM":
			p |= ProfileMem
		case "TRACE":
			p |= ProfileTrace
		default:
			return ProfileNone, curated.Errorf(UnknownProfile, n)
		}
	}
	return p, nil
}

// RunProfiler runs the function while collecting the profiles specified by
// profile. The filenameHeader is prepended to the name of each profile file.
//
// The memory profile is written after run() has returned.
func RunProfiler(profile Profile, filenameHeader string, run func() error) error {
	if profile&ProfileCPU == ProfileCPU {
		fn := fmt.Sprintf("%s.cpu.profile", filenameHeader)
		f, err := os.Create(fn)
		if err != nil {
			return curated.Errorf(ProfileError, fn, err)
		}
		defer f.Close()

		err = pprof.StartCPUProfile(f)
		if err != nil {
			return curated.Errorf(ProfileError, fn, err)
		}
		defer pprof.StopCPUProfile()
	}

	if profile&ProfileTrace == ProfileTrace {
		fn := fmt.Sprintf("%s.trace", filenameHeader)
		f, err := os.Create(fn)
		if err != nil {
			return curated.Errorf(ProfileError, fn, err)
		}
		defer f.Close()

		err = trace.Start(f)
		if err != nil {
			return curated.Errorf(ProfileError, fn, err)
		}
		defer trace.Stop()
	}

	err := run()
	if err != nil {
		return err
	}

	if profile&ProfileMem == ProfileMem {
		fn := fmt.Sprintf("%s.mem.profile", filenameHeader)
		f, err := os.Create(fn)
		if err != nil {
			return curated.Errorf(ProfileError, fn, err)
		}
		defer f.Close()

		runtime.GC()
		err = pprof.WriteHeapProfile(f)
		if err != nil {
			return curated.Errorf(ProfileError, fn, err)
		}
	}

	return nil
}
