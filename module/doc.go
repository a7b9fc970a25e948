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

// Package module places the loadable sections of an ELF image into memory
// and links them.
//
// Module authors link their code at fixed addresses. Addresses from
// 0x02000000 are code, addresses from 0x10000000 are data and addresses from
// 0xc0000000 are imports from other libraries. The Classify() function is the
// only place these regions are defined.
//
// Load() allocates one block of memory for the code region and one block for
// the data region, copies each section into its block and applies every
// relocation that refers to a symbol in the module. Relocations that refer to
// an import are returned by the Module's PendingImports() function, to be
// resolved once the libraries they refer to are available.
//
// If Load() fails for any reason, all memory allocated by the load is freed.
// Trampolines created in the pool before the failure remain until the pool is
// reset.
package module
