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
	"os"

	"github.com/jetsetilly/modloader/curated"
	"github.com/jetsetilly/modloader/digest"
	"github.com/jetsetilly/modloader/dynload"
	"github.com/jetsetilly/modloader/elfreader"
	"github.com/jetsetilly/modloader/logger"
	"github.com/jetsetilly/modloader/memory"
	"github.com/jetsetilly/modloader/module"
	"github.com/jetsetilly/modloader/relocation"
)

// Sentinal errors returned by the Environment type.
const (
	InvalidLayout      = "environment: invalid layout: %s"
	InsufficientMemory = "environment: module requires %d bytes but only %d bytes are available"
	ExportsFile        = "environment: exports: %v"
)

// the heap starts on a boundary of this size
const heapBoundary = 0x10000

// Environment is the memory and libraries that modules are loaded into.
type Environment struct {
	Prefs *Preferences

	Arena     *memory.Arena
	Heap      *memory.Heap
	Pool      *relocation.Pool
	Linker    *relocation.Linker
	Libraries *dynload.Registry
}

// NewEnvironment is the preferred method of initialisation for the
// Environment type. If prefs is nil the preferences are loaded from disk.
func NewEnvironment(prefs *Preferences) (*Environment, error) {
	var err error

	if prefs == nil {
		prefs, err = NewPreferences()
		if err != nil {
			return nil, err
		}
	}

	if prefs.LogEcho.Get().(bool) {
		logger.SetEcho(os.Stderr)
	}

	e := &Environment{
		Prefs:     prefs,
		Libraries: dynload.NewRegistry(),
	}

	if fn := prefs.Exports.String(); fn != "" {
		if err := e.readExports(fn); err != nil {
			return nil, err
		}
	}

	origin := prefs.ArenaOrigin.Uint32()
	size := prefs.ArenaSize.Uint32()

	e.Arena, err = memory.NewArena(origin, size)
	if err != nil {
		return nil, curated.Errorf(InvalidLayout, err)
	}

	e.Pool, err = relocation.NewPool(e.Arena, origin, prefs.Trampolines.Get().(int))
	if err != nil {
		_ = e.Arena.Close()
		return nil, curated.Errorf(InvalidLayout, err)
	}

	heapOrigin := uint64(origin) + uint64(e.Pool.Size())
	heapOrigin = (heapOrigin + heapBoundary - 1) &^ (heapBoundary - 1)
	if heapOrigin >= uint64(origin)+uint64(size) {
		_ = e.Arena.Close()
		return nil, curated.Errorf(InvalidLayout, fmt.Sprintf("no room for a heap after %d trampolines", e.Pool.Len()))
	}

	e.Heap, err = memory.NewHeap(e.Arena, uint32(heapOrigin), uint32(uint64(origin)+uint64(size)-heapOrigin))
	if err != nil {
		_ = e.Arena.Close()
		return nil, curated.Errorf(InvalidLayout, err)
	}

	e.Linker = relocation.NewLinker(e.Arena)

	logger.Logf(logger.Allow, "env", "arena: %s", e.Arena)
	logger.Logf(logger.Allow, "env", "pool: %s", e.Pool)
	logger.Logf(logger.Allow, "env", "heap: %s", e.Heap)

	return e, nil
}

func (e *Environment) readExports(fn string) error {
	f, err := os.Open(fn)
	if err != nil {
		return curated.Errorf(ExportsFile, err)
	}
	defer f.Close()

	if err := e.Libraries.ReadExports(f); err != nil {
		return curated.Errorf(ExportsFile, err)
	}
	logger.Logf(logger.Allow, "env", "libraries: %s", e.Libraries)

	return nil
}

// Close releases the memory used by the environment. Any sessions must be
// unloaded first.
func (e *Environment) Close() error {
	return e.Arena.Close()
}

// LoadModule loads the ELF image, links it and resolves its imports. The
// returned Session must be unloaded once the module has finished.
func (e *Environment) LoadModule(image []byte) (*Session, error) {
	f, err := elfreader.Open(image)
	if err != nil {
		return nil, err
	}

	required := uint64(module.SizeOfModule(f)) + uint64(e.Prefs.HeapHeadroom.Uint32())
	if required > uint64(e.Heap.Available()) {
		return nil, curated.Errorf(InsufficientMemory, required, e.Heap.Available())
	}

	cp := e.Pool.Checkpoint()

	mod, err := module.Load(f, e.Heap, e.Linker, e.Pool)
	if err != nil {
		return nil, err
	}

	acq, err := dynload.ResolveImports(mod.PendingImports(), e.Linker, e.Pool, e.Libraries)
	if err != nil {
		if rerr := acq.Release(); rerr != nil {
			logger.Logf(logger.Allow, "env", "%v", rerr)
		}
		if _, rerr := e.Pool.Rollback(cp); rerr != nil {
			logger.Logf(logger.Allow, "env", "%v", rerr)
		}
		if ferr := mod.Free(); ferr != nil {
			logger.Logf(logger.Allow, "env", "%v", ferr)
		}
		return nil, err
	}

	start, end := mod.AddressRange()
	memory.Sync(e.Arena, start, end-start)

	if n := mod.Unimplemented(); n > 0 {
		logger.Logf(logger.Allow, "env", "%d relocations were not applied", n)
	}

	return &Session{
		env:      e,
		Module:   mod,
		acquired: acq,
	}, nil
}

// Session is a module that has been loaded by an Environment.
type Session struct {
	env      *Environment
	Module   *module.Module
	acquired dynload.Acquired
	unloaded bool
}

// Libraries returns the number of libraries that were acquired for the
// module.
func (s *Session) Libraries() int {
	return s.acquired.Len()
}

// Digest returns a hash of the module's text and data blocks. Two loads of
// the same image into the same layout produce the same digest.
func (s *Session) Digest() (string, error) {
	dig := digest.NewMemory(s.env.Arena)
	if err := dig.AddBlocks(s.Module.Text(), s.Module.Data()); err != nil {
		return "", err
	}
	return dig.Hash(), nil
}

// Unload releases the libraries acquired for the module, frees the module and
// resets the trampoline pool. Calling Unload more than once has no effect.
func (s *Session) Unload() error {
	if s.unloaded {
		return nil
	}
	s.unloaded = true

	if err := s.acquired.Release(); err != nil {
		return err
	}
	if err := s.Module.Free(); err != nil {
		return err
	}
	return s.env.Pool.Reset()
}
