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
	"github.com/jetsetilly/modloader/curated"
	"github.com/jetsetilly/modloader/logger"
	"github.com/jetsetilly/modloader/memory"
)

// Sentinal error patterns.
const (
	UnsupportedKind      = "relocation: %v at %#08x"
	OutOfRange           = "relocation: %v at %#08x: distance %#x to %#08x is out of range"
	Misaligned           = "relocation: %v at %#08x: distance %#x to %#08x is not a multiple of four"
	SignExtension        = "relocation: %v at %#08x: upper bits of distance %#x are not a sign extension"
	NoTrampolinePool     = "relocation: %v at %#08x: distance %#x to %#08x needs a trampoline but there is no pool"
	PoolExhausted        = "relocation: %v at %#08x: trampoline pool is full (%d slots)"
	TrampolineOutOfRange = "relocation: %v at %#08x: trampoline at %#08x is too far away (distance %#x)"
	MemoryFault          = "relocation: %v at %#08x: %v"
)

// branch field limits
const (
	rel14Limit = 0x7ffc
	rel14Sign  = 0xffff8000
	rel14Keep  = 0xffbf0003
	rel14Field = 0x0000fffc

	rel24Limit = 0x1fffffc
	rel24Sign  = 0xfe000000
	rel24Keep  = 0xfc000003
	rel24Field = 0x03fffffc
)

// Linker applies relocations to target memory.
type Linker struct {
	mem memory.Access

	// the number of relocations that were of a kind that is recognised but
	// which has no implementation. the relocation is skipped and memory is
	// not changed
	Unimplemented int
}

// NewLinker is the preferred method of initialisation for the Linker type.
func NewLinker(mem memory.Access) *Linker {
	return &Linker{mem: mem}
}

// Link applies a single relocation. The address being relocated is
// destination+offset. The symbol is the final address of the symbol that
// the relocation refers to.
//
// The pool can be nil, in which case a REL24 relocation that is out of range
// will fail. The class decides the status of any trampoline that is created.
//
// Memory is not changed if the relocation fails, with the exception of a
// trampoline slot if the failure happens after the slot has been written.
func (lnk *Linker) Link(kind Kind, offset uint32, addend int32, destination uint32, symbol uint32, pool *Pool, class Class) error {
	target := destination + offset
	value := symbol + uint32(addend)
	relValue := value - target

	var err error

	switch kind {
	case None:
		return nil

	case Addr32, DTPRel32:
		err = lnk.mem.Write32(target, value)

	case Addr16Lo:
		err = lnk.mem.Write16(target, uint16(value))

	case Addr16Hi:
		err = lnk.mem.Write16(target, uint16(value>>16))

	case Addr16Ha:
		// the low half is sign extended when it is added to the high half.
		// the high half is adjusted to compensate
		err = lnk.mem.Write16(target, uint16((value+0x8000)>>16))

	case DTPMod32:
		// thread local storage is not supported
		lnk.Unimplemented++
		logger.Logf(logger.Allow, "reloc", "unimplemented: %v at %08x", kind, target)
		return nil

	case GHSRel16Ha:
		err = lnk.mem.Write16(target, uint16((relValue+0x8000)>>16))

	case GHSRel16Hi:
		err = lnk.mem.Write16(target, uint16(relValue>>16))

	case GHSRel16Lo:
		err = lnk.mem.Write16(target, uint16(relValue))

	case Rel14:
		distance := int32(value) - int32(target)
		if distance > rel14Limit || distance < -rel14Limit {
			return curated.Errorf(OutOfRange, kind, target, distance, value)
		}
		if err := checkBranch(kind, target, value, distance, rel14Sign); err != nil {
			return err
		}
		err = lnk.patch(target, rel14Keep, uint32(distance)&rel14Field)

	case Rel24:
		distance := int32(value) - int32(target)

		// alignment is checked before any trampoline is considered. a
		// trampoline would hide a misaligned value
		if distance&3 != 0 {
			return curated.Errorf(Misaligned, kind, target, distance, value)
		}

		if distance > rel24Limit || distance < -rel24Limit {
			distance, err = lnk.trampoline(kind, target, value, addend, pool, class)
			if err != nil {
				return err
			}
		}

		if err := checkBranch(kind, target, value, distance, rel24Sign); err != nil {
			return err
		}
		err = lnk.patch(target, rel24Keep, uint32(distance)&rel24Field)

	default:
		return curated.Errorf(UnsupportedKind, kind, target)
	}

	if err != nil {
		return curated.Errorf(MemoryFault, kind, target, err)
	}

	memory.Sync(lnk.mem, target, 4)

	logger.Logf(logger.Verbose, "reloc", "%v at %08x => %08x", kind, target, value)

	return nil
}

// checkBranch makes sure the branch distance can be encoded in the
// displacement field of an instruction. the bits covered by the sign mask
// must be all zeros or all ones.
func checkBranch(kind Kind, target uint32, value uint32, distance int32, sign uint32) error {
	if distance&3 != 0 {
		return curated.Errorf(Misaligned, kind, target, distance, value)
	}
	if distance >= 0 && uint32(distance)&sign != 0 {
		return curated.Errorf(SignExtension, kind, target, distance)
	}
	if distance < 0 && uint32(distance)&sign != sign {
		return curated.Errorf(SignExtension, kind, target, distance)
	}
	return nil
}

// patch the displacement field of the instruction at target. keep is the
// mask of the bits in the existing instruction to preserve.
func (lnk *Linker) patch(target uint32, keep uint32, field uint32) error {
	ins, err := lnk.mem.Read32(target)
	if err != nil {
		return err
	}
	return lnk.mem.Write32(target, ins&keep|field)
}

// trampoline creates a trampoline to value in the pool and returns the new
// branch distance from target to the trampoline.
func (lnk *Linker) trampoline(kind Kind, target uint32, value uint32, addend int32, pool *Pool, class Class) (int32, error) {
	if pool == nil {
		return 0, curated.Errorf(NoTrampolinePool, kind, target, int32(value)-int32(target), value)
	}

	i, ok := pool.claim()
	if !ok {
		return 0, curated.Errorf(PoolExhausted, kind, target, pool.Len())
	}

	slot := pool.Address(i)
	distance := int32(slot+uint32(addend)) - int32(target)
	if distance > rel24Limit || distance < -rel24Limit {
		return 0, curated.Errorf(TrampolineOutOfRange, kind, target, slot, distance)
	}
	if err := checkBranch(kind, target, slot, distance, rel24Sign); err != nil {
		return 0, err
	}

	st := Fixed
	if class == ClassImport {
		st = ImportInProgress
	}

	if err := pool.emit(i, value, st); err != nil {
		return 0, curated.Errorf(MemoryFault, kind, target, err)
	}

	return distance, nil
}
