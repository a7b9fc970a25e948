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

package environment

import (
	"fmt"

	"github.com/jetsetilly/modloader/curated"
	"github.com/jetsetilly/modloader/logger"
	"github.com/jetsetilly/modloader/paths"
	"github.com/jetsetilly/modloader/prefs"
	"github.com/xyproto/env/v2"
)

// Names of environment variables that override the values in the
// preferences file.
const (
	EnvArenaSize   = "MODLOADER_ARENA_SIZE"
	EnvTrampolines = "MODLOADER_TRAMPOLINES"
	EnvLogEcho     = "MODLOADER_LOG_ECHO"
	EnvExports     = "MODLOADER_EXPORTS"
)

// Sentinal error returned when an environment variable can not be applied.
const InvalidOverride = "environment: %s: %v"

// Preferences for the loader.
type Preferences struct {
	dsk *prefs.Disk

	// the memory available to the loader
	ArenaOrigin prefs.Address
	ArenaSize   prefs.Address

	// number of trampolines in the pool
	Trampolines prefs.Int

	// free heap required in addition to the size of a module
	HeapHeadroom prefs.Address

	// echo log entries to stderr as they are made
	LogEcho prefs.Bool

	// file describing the libraries available to modules. an empty string
	// means there are no libraries
	Exports prefs.String
}

func (p *Preferences) String() string {
	return p.dsk.String()
}

// NewPreferences is the preferred method of initialisation for the
// Preferences type. Values are read from the preferences file in the
// resource path and then from the environment.
func NewPreferences() (*Preferences, error) {
	pth, err := paths.ResourcePath("", prefs.DefaultPrefsFile)
	if err != nil {
		return nil, err
	}
	return newPreferences(pth)
}

func newPreferences(pth string) (*Preferences, error) {
	p := &Preferences{}
	p.SetDefaults()

	p.Trampolines.SetHookPre(func(v prefs.Value) error {
		if v.(int) <= 0 {
			return fmt.Errorf("number of trampolines must be positive")
		}
		return nil
	})

	var err error

	p.dsk, err = prefs.NewDisk(pth)
	if err != nil {
		return nil, err
	}
	err = p.dsk.Add("loader.arena.origin", &p.ArenaOrigin)
	if err != nil {
		return nil, err
	}
	err = p.dsk.Add("loader.arena.size", &p.ArenaSize)
	if err != nil {
		return nil, err
	}
	err = p.dsk.Add("loader.trampolines", &p.Trampolines)
	if err != nil {
		return nil, err
	}
	err = p.dsk.Add("loader.heap.headroom", &p.HeapHeadroom)
	if err != nil {
		return nil, err
	}
	err = p.dsk.Add("loader.log.echo", &p.LogEcho)
	if err != nil {
		return nil, err
	}
	err = p.dsk.Add("loader.exports", &p.Exports)
	if err != nil {
		return nil, err
	}

	err = p.dsk.Load(true)
	if err != nil {
		return nil, err
	}

	err = p.overrides()
	if err != nil {
		return nil, err
	}

	return p, nil
}

// overrides applies values from environment variables.
func (p *Preferences) overrides() error {
	if env.Has(EnvArenaSize) {
		if err := p.ArenaSize.Set(env.Str(EnvArenaSize)); err != nil {
			return curated.Errorf(InvalidOverride, EnvArenaSize, err)
		}
		logger.Logf(logger.Allow, "env", "%s: arena size %s", EnvArenaSize, &p.ArenaSize)
	}
	if env.Has(EnvTrampolines) {
		if err := p.Trampolines.Set(env.Str(EnvTrampolines)); err != nil {
			return curated.Errorf(InvalidOverride, EnvTrampolines, err)
		}
		logger.Logf(logger.Allow, "env", "%s: %s trampolines", EnvTrampolines, &p.Trampolines)
	}
	if env.Has(EnvExports) {
		if err := p.Exports.Set(env.Str(EnvExports)); err != nil {
			return curated.Errorf(InvalidOverride, EnvExports, err)
		}
		logger.Logf(logger.Allow, "env", "%s: exports from %s", EnvExports, &p.Exports)
	}
	if env.Has(EnvLogEcho) {
		if err := p.LogEcho.Set(env.Bool(EnvLogEcho)); err != nil {
			return curated.Errorf(InvalidOverride, EnvLogEcho, err)
		}
	}
	return nil
}

// SetDefaults reverts all preferences to the default values.
func (p *Preferences) SetDefaults() {
	p.ArenaOrigin.Set(0x00800000)
	p.ArenaSize.Set(0x01000000)
	p.Trampolines.Set(500)
	p.HeapHeadroom.Set(0x10000)
	p.LogEcho.Set(false)
	p.Exports.Set("")
}

// Load loads the preferences from disk. Environment variables are applied
// again after the file has been read.
func (p *Preferences) Load() error {
	if err := p.dsk.Load(false); err != nil {
		return err
	}
	return p.overrides()
}

// Save current preferences to disk.
func (p *Preferences) Save() error {
	return p.dsk.Save()
}
