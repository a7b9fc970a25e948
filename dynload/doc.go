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

// Package dynload resolves the imports of a loaded module against the
// exports of other libraries.
//
// The Resolver interface is how libraries are found, acquired and released.
// The Registry type is an implementation of Resolver that keeps libraries and
// their exports in memory. Libraries can be added to a Registry
// programmatically or read from an exports file with ParseExports().
//
// ResolveImports() applies the pending relocations of a module. Libraries
// that were not loaded at the time are acquired and returned to the caller,
// who must release them once the module has finished running.
package dynload
