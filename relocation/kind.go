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

package relocation

import (
	"debug/elf"
	"fmt"
)

// Kind is the type of a relocation entry, as found in the low byte of the
// r_info field.
//
// Only the kinds listed below are supported. Known() returns false for any
// other value and Link() will fail with the UnsupportedKind error.
type Kind uint8

// List of supported relocation kinds.
const (
	None       = Kind(elf.R_PPC_NONE)
	Addr32     = Kind(elf.R_PPC_ADDR32)
	Addr16Lo   = Kind(elf.R_PPC_ADDR16_LO)
	Addr16Hi   = Kind(elf.R_PPC_ADDR16_HI)
	Addr16Ha   = Kind(elf.R_PPC_ADDR16_HA)
	Rel24      = Kind(elf.R_PPC_REL24)
	Rel14      = Kind(elf.R_PPC_REL14)
	DTPMod32   = Kind(elf.R_PPC_DTPMOD32)
	DTPRel32   = Kind(elf.R_PPC_DTPREL32)
	GHSRel16Ha = Kind(251)
	GHSRel16Hi = Kind(252)
	GHSRel16Lo = Kind(253)
)

// KindFromInfo returns the Kind encoded in the r_info field of a relocation
// entry.
func KindFromInfo(info uint32) Kind {
	return Kind(info & 0xff)
}

// Known returns true if the kind is one of the supported kinds.
func (k Kind) Known() bool {
	switch k {
	case None, Addr32, Addr16Lo, Addr16Hi, Addr16Ha, Rel24, Rel14, DTPMod32, DTPRel32:
		return true
	case GHSRel16Ha, GHSRel16Hi, GHSRel16Lo:
		return true
	}
	return false
}

func (k Kind) String() string {
	switch k {
	case GHSRel16Ha:
		return "R_PPC_GHS_REL16_HA"
	case GHSRel16Hi:
		return "R_PPC_GHS_REL16_HI"
	case GHSRel16Lo:
		return "R_PPC_GHS_REL16_LO"
	}
	if k.Known() {
		return elf.R_PPC(k).String()
	}
	return fmt.Sprintf("unsupported kind %d", uint8(k))
}

// Class of a relocation. The class decides how a trampoline created for the
// relocation is treated by the Pool.
type Class int

// List of valid Class values.
const (
	// relocations inside a module. trampolines are kept until the pool is
	// reset
	ClassFixed Class = iota

	// relocations against an imported symbol. trampolines may be reused by
	// the next import pass
	ClassImport
)

func (c Class) String() string {
	switch c {
	case ClassFixed:
		return "fixed"
	case ClassImport:
		return "import"
	}
	return "unknown class"
}
