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

package dynload

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jetsetilly/modloader/curated"
	"github.com/jetsetilly/modloader/logger"
)

// Sentinal errors returned by the Registry type.
const (
	UnknownLibrary   = "dynload: unknown library (%s)"
	DuplicateLibrary = "dynload: library already registered (%s)"
	InvalidHandle    = "dynload: invalid handle (%d)"
	NotAcquired      = "dynload: library has not been acquired (%s)"
)

// ExportKind distinguishes data exports from function exports. A library
// can have a function and a data export of the same name.
type ExportKind int

// List of valid ExportKind values.
const (
	FunctionExport ExportKind = iota
	DataExport
)

func (k ExportKind) String() string {
	switch k {
	case FunctionExport:
		return "func"
	case DataExport:
		return "data"
	}
	return "unknown export kind"
}

// Handle identifies an acquired or resident library. The zero value is never
// a valid handle.
type Handle uint32

// Resolver is the interface to the libraries that can satisfy imports.
type Resolver interface {
	// IsLoaded returns the handle of the library if it is already loaded.
	IsLoaded(name string) (Handle, bool)

	// Acquire loads the library, or adds a reference to it if it is already
	// loaded.
	Acquire(name string) (Handle, error)

	// FindExport returns the address of the export or zero if the library
	// has no such export.
	FindExport(h Handle, kind ExportKind, name string) uint32

	// Release removes a reference that was added by Acquire().
	Release(h Handle) error
}

// Library is a collection of exports.
type Library struct {
	Name string

	// resident libraries are always loaded and do not need to be acquired
	Resident bool

	Functions map[string]uint32
	Data      map[string]uint32
}

// NewLibrary is the preferred method of initialisation for the Library type.
func NewLibrary(name string) *Library {
	return &Library{
		Name:      name,
		Functions: make(map[string]uint32),
		Data:      make(map[string]uint32),
	}
}

// Export adds an export to the library. An existing export of the same name
// and kind is replaced.
func (lib *Library) Export(kind ExportKind, name string, addr uint32) {
	switch kind {
	case DataExport:
		lib.Data[name] = addr
	default:
		lib.Functions[name] = addr
	}
}

func (lib *Library) String() string {
	return fmt.Sprintf("%s (%d functions, %d data)", lib.Name, len(lib.Functions), len(lib.Data))
}

type entry struct {
	lib    *Library
	handle Handle
	refs   int
}

func (e *entry) loaded() bool {
	return e.lib.Resident || e.refs > 0
}

// Registry is an in-memory implementation of the Resolver interface.
// Libraries are reference counted. A library is loaded while it has been
// acquired more times than it has been released, or if it is resident.
type Registry struct {
	byName   map[string]*entry
	byHandle map[Handle]*entry
	next     Handle
}

// NewRegistry is the preferred method of initialisation for the Registry
// type.
func NewRegistry() *Registry {
	return &Registry{
		byName:   make(map[string]*entry),
		byHandle: make(map[Handle]*entry),
	}
}

// Register adds a library to the registry.
func (reg *Registry) Register(lib *Library) error {
	if _, ok := reg.byName[lib.Name]; ok {
		return curated.Errorf(DuplicateLibrary, lib.Name)
	}

	reg.next++
	e := &entry{
		lib:    lib,
		handle: reg.next,
	}
	reg.byName[lib.Name] = e
	reg.byHandle[e.handle] = e

	logger.Logf(logger.Verbose, "dynload", "registered %s", lib)

	return nil
}

// Libraries returns the names of all registered libraries in alphabetical
// order.
func (reg *Registry) Libraries() []string {
	var n []string
	for k := range reg.byName {
		n = append(n, k)
	}
	sort.Strings(n)
	return n
}

// References returns the reference count of the library.
func (reg *Registry) References(name string) int {
	if e, ok := reg.byName[name]; ok {
		return e.refs
	}
	return 0
}

// IsLoaded implements the Resolver interface.
func (reg *Registry) IsLoaded(name string) (Handle, bool) {
	e, ok := reg.byName[name]
	if !ok || !e.loaded() {
		return 0, false
	}
	return e.handle, true
}

// Acquire implements the Resolver interface.
func (reg *Registry) Acquire(name string) (Handle, error) {
	e, ok := reg.byName[name]
	if !ok {
		return 0, curated.Errorf(UnknownLibrary, name)
	}
	e.refs++
	logger.Logf(logger.Allow, "dynload", "acquired %s (%d references)", name, e.refs)
	return e.handle, nil
}

// FindExport implements the Resolver interface.
func (reg *Registry) FindExport(h Handle, kind ExportKind, name string) uint32 {
	e, ok := reg.byHandle[h]
	if !ok || !e.loaded() {
		return 0
	}
	if kind == DataExport {
		return e.lib.Data[name]
	}
	return e.lib.Functions[name]
}

// Release implements the Resolver interface.
func (reg *Registry) Release(h Handle) error {
	e, ok := reg.byHandle[h]
	if !ok {
		return curated.Errorf(InvalidHandle, h)
	}
	if e.refs == 0 {
		return curated.Errorf(NotAcquired, e.lib.Name)
	}
	e.refs--
	logger.Logf(logger.Allow, "dynload", "released %s (%d references)", e.lib.Name, e.refs)
	return nil
}

func (reg *Registry) String() string {
	s := strings.Builder{}
	for _, n := range reg.Libraries() {
		e := reg.byName[n]
		fmt.Fprintf(&s, "%s: %d references", e.lib, e.refs)
		if e.lib.Resident {
			s.WriteString(" (resident)")
		}
		s.WriteString("\n")
	}
	return s.String()
}
