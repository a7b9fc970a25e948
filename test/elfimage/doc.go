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

// Package elfimage builds small 32bit big-endian PowerPC ELF images. It is
// only intended for creating test fixtures and supports just enough of the
// format for modules to be loaded: sections, one symbol table and RELA
// relocation sections.
//
// Sections are added in order and are given the index returned by the Add
// functions. Relocation sections, the symbol table and the string tables are
// created when Bytes() is called and follow the added sections.
//
//	img := elfimage.New(0x02000000)
//	text := img.AddProgbits(".text", elf.SHF_ALLOC|elf.SHF_EXECINSTR, 0x02000000, 4, code)
//	sym := img.AddSymbol("main", 0x02000000, text)
//	img.AddRela(text, 0x02000004, sym, 1, 0)
//	data := img.Bytes()
package elfimage
