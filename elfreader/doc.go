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

// Package elfreader is a thin layer over the debug/elf package of the Go
// standard library. It presents the parts of a 32bit big-endian PowerPC ELF
// image that are needed to load it as a module: the sections, the entry
// point, the relocation entries of a relocation section and the symbols of a
// symbol table.
//
// Sections that have been compressed with zlib (those with the
// SHF_RPL_ZLIB flag) are inflated when the image is opened. The size of such
// a section is the inflated size.
package elfreader
