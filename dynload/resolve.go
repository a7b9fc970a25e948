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
	"github.com/jetsetilly/modloader/curated"
	"github.com/jetsetilly/modloader/logger"
	"github.com/jetsetilly/modloader/relocation"
)

// Sentinal errors returned by ResolveImports().
const (
	UnresolvedImport = "dynload: %v %s not found in %s"
	ImportFailed     = "dynload: %s: %v"
)

// Acquired is the list of libraries that were acquired by ResolveImports().
type Acquired struct {
	libs    Resolver
	handles map[string]Handle
}

// Len returns the number of acquired libraries.
func (acq Acquired) Len() int {
	return len(acq.handles)
}

// Release releases every acquired library. All libraries are released even
// if an error occurs. The first error is returned.
func (acq Acquired) Release() error {
	var first error
	for name, h := range acq.handles {
		if err := acq.libs.Release(h); err != nil {
			logger.Logf(logger.Allow, "dynload", "release %s: %v", name, err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// ResolveImports applies every pending import relocation. Each library is
// acquired at most once and only if it is not already loaded. Acquired
// libraries are returned, even on error, and must be released by the caller
// when the module has finished.
//
// Import trampolines created by a successful call are committed in the pool.
// If the call fails the trampolines created by it are freed.
func ResolveImports(records []relocation.Record, lnk *relocation.Linker, pool *relocation.Pool, libs Resolver) (Acquired, error) {
	acq := Acquired{
		libs:    libs,
		handles: make(map[string]Handle),
	}

	err := resolve(records, lnk, pool, libs, acq)
	if err != nil {
		if pool != nil {
			if _, perr := pool.AbortImports(); perr != nil {
				logger.Logf(logger.Allow, "dynload", "%v", perr)
			}
		}
		return acq, err
	}

	if pool != nil {
		n := pool.CommitImports()
		pool.Flush()
		logger.Logf(logger.Allow, "dynload", "%d import trampolines: %s", n, pool)
	}

	logger.Logf(logger.Allow, "dynload", "resolved %d imports", len(records))

	return acq, nil
}

func resolve(records []relocation.Record, lnk *relocation.Linker, pool *relocation.Pool, libs Resolver, acq Acquired) error {
	for _, rec := range records {
		lib := rec.Import.Library

		h, ok := libs.IsLoaded(lib)
		if !ok {
			if h, ok = acq.handles[lib]; !ok {
				var err error
				h, err = libs.Acquire(lib)
				if err != nil {
					return curated.Errorf(ImportFailed, rec.Symbol, err)
				}
				acq.handles[lib] = h
			}
		}

		kind := FunctionExport
		if rec.Import.IsData {
			kind = DataExport
		}

		addr := libs.FindExport(h, kind, rec.Symbol)
		if addr == 0 {
			return curated.Errorf(UnresolvedImport, kind, rec.Symbol, lib)
		}

		logger.Logf(logger.Verbose, "dynload", "%s => %08x", rec, addr)

		if err := rec.Link(lnk, addr, pool); err != nil {
			return curated.Errorf(ImportFailed, rec.Symbol, err)
		}
	}

	return nil
}
