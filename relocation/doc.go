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

// Package relocation applies PowerPC relocations to target memory.
//
// The Linker type applies a single relocation entry once the address of the
// symbol is known. Most kinds are a simple write of an address, or part of an
// address, to memory. The PC-relative branch kinds (REL14 and REL24) patch the
// displacement field of the instruction already in memory, leaving the opcode
// bits as they are.
//
// A REL24 branch can reach 32MB either side of the instruction. If the symbol
// is further away than that the branch is redirected through a trampoline: a
// four instruction stub that loads the full address of the symbol into the
// count register and branches to it. Trampolines are allocated from a Pool,
// which the caller creates once and passes to every call to Link().
//
// Trampolines belong to one of two classes, depending on the Class of the
// relocation. Fixed trampolines are for relocations inside a module and are
// only released when the pool is Reset(). Import trampolines are for
// relocations against other libraries and are reused on the next load,
// because the next load will relink its imports anyway. While imports are
// being linked their trampolines are "in progress". CommitImports() and
// AbortImports() end the import pass.
//
// The pool is not safe for concurrent use. Module lifetimes must be
// sequential: a module's imports must not be relinked while another module
// that uses the same import trampolines is still running.
//
// A Record is a relocation that could not be applied when the module was
// placed because the symbol is in another library. The Import type describes
// that library.
package relocation
