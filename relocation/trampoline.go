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
	"fmt"
	"strings"

	"github.com/jetsetilly/modloader/curated"
	"github.com/jetsetilly/modloader/logger"
	"github.com/jetsetilly/modloader/memory"
)

// Sentinal error patterns.
const (
	InvalidPool = "relocation: invalid trampoline pool: %s"
)

// SlotSize is the size in bytes of a trampoline.
const SlotSize = 16

// the trampoline stub. value is loaded into r11 which is moved to the count
// register
const (
	stubLis   = 0x3d600000 // lis r11, value@h
	stubOri   = 0x616b0000 // ori r11, r11, value@l
	stubMtctr = 0x7d6903a6 // mtctr r11
	stubBctr  = 0x4e800420 // bctr
)

// Status of a trampoline slot.
type Status int

// List of valid Status values.
const (
	Free Status = iota
	Fixed
	ImportInProgress
	ImportDone
)

func (s Status) String() string {
	switch s {
	case Free:
		return "free"
	case Fixed:
		return "fixed"
	case ImportInProgress:
		return "import in progress"
	case ImportDone:
		return "import done"
	}
	return "unknown status"
}

// Slot is a single trampoline in the pool.
type Slot struct {
	Instructions [4]uint32
	Status       Status
}

// Pool is a fixed number of trampoline slots in target memory. Slots are
// contiguous from the origin address.
type Pool struct {
	mem    memory.Access
	origin uint32
	slots  []Slot
}

// NewPool creates a pool of count slots at origin. The origin must be word
// aligned. The memory for the pool is zeroed.
func NewPool(mem memory.Access, origin uint32, count int) (*Pool, error) {
	if count <= 0 {
		return nil, curated.Errorf(InvalidPool, fmt.Sprintf("%d slots", count))
	}
	if origin&3 != 0 {
		return nil, curated.Errorf(InvalidPool, fmt.Sprintf("origin %#08x is not word aligned", origin))
	}
	if uint64(origin)+uint64(count)*SlotSize > 0xffffffff {
		return nil, curated.Errorf(InvalidPool, "pool extends beyond the address space")
	}

	p := &Pool{
		mem:    mem,
		origin: origin,
		slots:  make([]Slot, count),
	}

	if err := mem.Fill(origin, p.Size(), 0); err != nil {
		return nil, curated.Errorf(InvalidPool, err)
	}
	p.Flush()

	return p, nil
}

func (p *Pool) String() string {
	s := strings.Builder{}
	fmt.Fprintf(&s, "%d trampolines at %08x:", len(p.slots), p.origin)
	for _, st := range []Status{Free, Fixed, ImportInProgress, ImportDone} {
		fmt.Fprintf(&s, " %s=%d", st, p.Count(st))
	}
	return s.String()
}

// Origin returns the address of the first slot.
func (p *Pool) Origin() uint32 {
	return p.origin
}

// Size returns the number of bytes of memory used by the pool.
func (p *Pool) Size() uint32 {
	return uint32(len(p.slots)) * SlotSize
}

// Len returns the number of slots in the pool.
func (p *Pool) Len() int {
	return len(p.slots)
}

// Address returns the address of the numbered slot.
func (p *Pool) Address(i int) uint32 {
	return p.origin + uint32(i)*SlotSize
}

// Slot returns a copy of the numbered slot.
func (p *Pool) Slot(i int) Slot {
	return p.slots[i]
}

// Count returns the number of slots with the status.
func (p *Pool) Count(st Status) int {
	var n int
	for _, s := range p.slots {
		if s.Status == st {
			n++
		}
	}
	return n
}

// SetStatus changes the status of a slot without changing its instructions.
// It is intended for restoring the state of a pool.
func (p *Pool) SetStatus(i int, st Status) {
	p.slots[i].Status = st
}

// claim returns the index of the first slot in the pool that can be used for
// a new trampoline. import slots from an earlier pass can be reused.
func (p *Pool) claim() (int, bool) {
	for i := range p.slots {
		if p.slots[i].Status == Free || p.slots[i].Status == ImportDone {
			return i, true
		}
	}
	return 0, false
}

// emit writes the trampoline for value to the slot and sets its status.
func (p *Pool) emit(i int, value uint32, st Status) error {
	ins := [4]uint32{
		stubLis | (value>>16)&0xffff,
		stubOri | value&0xffff,
		stubMtctr,
		stubBctr,
	}

	addr := p.Address(i)
	for j, v := range ins {
		if err := p.mem.Write32(addr+uint32(j*4), v); err != nil {
			return err
		}
	}
	memory.Sync(p.mem, addr, SlotSize)

	p.slots[i] = Slot{
		Instructions: ins,
		Status:       st,
	}

	logger.Logf(logger.Verbose, "reloc", "trampoline %d at %08x to %08x (%s)", i, addr, value, st)

	return nil
}

// clear zeroes the slot and marks it as free.
func (p *Pool) clear(i int) error {
	p.slots[i] = Slot{}
	return p.mem.Fill(p.Address(i), SlotSize, 0)
}

// CommitImports marks all slots that were created during an import pass as
// done. The slots will be reused by the next import pass. Returns the number
// of slots committed.
func (p *Pool) CommitImports() int {
	var n int
	for i := range p.slots {
		if p.slots[i].Status == ImportInProgress {
			p.slots[i].Status = ImportDone
			n++
		}
	}
	return n
}

// AbortImports frees all slots that were created during an import pass that
// did not complete. Returns the number of slots freed.
func (p *Pool) AbortImports() (int, error) {
	var n int
	for i := range p.slots {
		if p.slots[i].Status == ImportInProgress {
			if err := p.clear(i); err != nil {
				return n, err
			}
			n++
		}
	}
	p.Flush()
	return n, nil
}

// Checkpoint records which slots in a pool are fixed. It is used to undo the
// fixed trampolines of a load that did not complete.
type Checkpoint struct {
	fixed []bool
}

// Checkpoint returns the current set of fixed slots.
func (p *Pool) Checkpoint() Checkpoint {
	cp := Checkpoint{fixed: make([]bool, len(p.slots))}
	for i := range p.slots {
		cp.fixed[i] = p.slots[i].Status == Fixed
	}
	return cp
}

// Rollback frees every fixed slot that was not fixed when the checkpoint was
// taken. Import slots are not affected. Returns the number of slots freed.
func (p *Pool) Rollback(cp Checkpoint) (int, error) {
	var n int
	for i := range p.slots {
		if p.slots[i].Status != Fixed {
			continue
		}
		if i < len(cp.fixed) && cp.fixed[i] {
			continue
		}
		if err := p.clear(i); err != nil {
			return n, err
		}
		n++
	}
	p.Flush()
	if n > 0 {
		logger.Logf(logger.Allow, "reloc", "%d trampolines rolled back", n)
	}
	return n, nil
}

// Reset frees every slot in the pool, including fixed slots. It must only be
// called once no code that branches through the pool is still resident.
func (p *Pool) Reset() error {
	for i := range p.slots {
		if err := p.clear(i); err != nil {
			return err
		}
	}
	p.Flush()
	logger.Logf(logger.Allow, "reloc", "trampoline pool reset")
	return nil
}

// Flush makes the whole pool coherent.
func (p *Pool) Flush() {
	memory.Sync(p.mem, p.origin, p.Size())
}
