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

// Package environment bundles the resources required to load and run
// modules: the memory arena, the heap that modules are allocated from, the
// trampoline pool and the registry of libraries that modules import from.
//
// The layout of the arena is set by the Preferences type. The trampoline
// pool is placed at the origin of the arena and the heap follows it, starting
// on a 64KB boundary.
//
// Modules are loaded with LoadModule(), which returns a Session. Sessions
// must be unloaded in the reverse order they were created, and only one
// module should be running at any one time.
package environment
