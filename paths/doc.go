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

// Package paths contains functions to prepare paths to modloader resources.
//
// The ResourcePath() function modifies the supplied resource string such that
// it is prepended with the appropriate config directory. For example, the
// following will return the path to the exports table for the host libraries.
//
//	d, err := paths.ResourcePath("", "exports")
//
// For development builds the base path is ".modloader" in the program's current
// directory. For release builds (the "release" build tag) the user's config
// directory is used, as returned by os.UserConfigDir(). On a modern Linux
// system the path in the example above will be:
//
//	/home/user/.config/modloader/exports
//
// Any missing directories in the path are created. The file itself is not.
package paths
