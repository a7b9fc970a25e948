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

package module

import (
	"debug/elf"
	"fmt"

	"github.com/jetsetilly/modloader/curated"
	"github.com/jetsetilly/modloader/elfreader"
	"github.com/jetsetilly/modloader/logger"
	"github.com/jetsetilly/modloader/memory"
)

// Sentinal errors returned by Load() when placing sections.
const (
	BufferOverflow    = "module: %s: section at %#08x (%d bytes) overflows %s block ending at %#08x"
	BufferUnderflow   = "module: %s: section at %#08x underflows %s block starting at %#08x"
	MisalignedSection = "module: %s: section at %#08x is not aligned to %#x"
	MalformedSection  = "module: %s: %s"
	ImportSection     = "module: %s: loading sections from the import region is not supported"
	UnhandledSection  = "module: %s: %v"
	AllocationFailed  = "module: %v block: %v"
)

// alignment of the text and data blocks
const blockAlignment = 0x100

// the section that describes the load bounds of the module. it is not
// loaded
const loadBoundsSection = ".wut_load_bounds"

// placeable returns true if the section is copied to memory.
func placeable(sec *elfreader.Section) bool {
	if sec.Type == elfreader.SHT_RPL_IMPORTS || sec.Name == loadBoundsSection {
		return false
	}
	return sec.Loadable()
}

func alignment(sec *elfreader.Section) uint32 {
	if sec.Align == 0 {
		return 1
	}
	return sec.Align
}

// SizeOfModule returns the number of bytes required to load the image. The
// size of each section is padded by its alignment.
func SizeOfModule(f *elfreader.File) uint32 {
	var size uint32
	for _, sec := range f.Sections {
		if placeable(sec) {
			size += sec.Size + alignment(sec)
		}
	}
	return size
}

// plan is the number of bytes required for each of the two blocks.
type plan struct {
	text uint32
	data uint32
}

func planSections(f *elfreader.File) (plan, error) {
	var p plan

	for _, sec := range f.Sections {
		if !placeable(sec) {
			continue
		}

		if sec.Type == elf.SHT_PROGBITS && uint32(len(sec.Data())) < sec.Size {
			return p, curated.Errorf(MalformedSection, sec.Name,
				fmt.Sprintf("%d bytes of data for a section of %d bytes", len(sec.Data()), sec.Size))
		}

		r, err := Classify(sec.Addr)
		if err != nil {
			return p, curated.Errorf(UnhandledSection, sec.Name, err)
		}

		switch r {
		case RegionText:
			p.text += sec.Size + alignment(sec)
		case RegionData:
			p.data += sec.Size + alignment(sec)
		case RegionExternal:
			return p, curated.Errorf(ImportSection, sec.Name)
		default:
			return p, curated.Errorf(UnhandledSection, sec.Name, curated.Errorf(UnhandledAddress, sec.Addr))
		}
	}

	return p, nil
}

// placement is the result of placing every section in memory.
type placement struct {
	mem  memory.Access
	text *memory.Block
	data *memory.Block

	// the base address of the block for each placed section, keyed by
	// section index
	bases map[int]uint32
}

// block returns the block for the region.
func (pl *placement) block(r Region) *memory.Block {
	if r == RegionText {
		return pl.text
	}
	return pl.data
}

// free releases any blocks that have been allocated.
func (pl *placement) free() {
	for _, blk := range []*memory.Block{pl.text, pl.data} {
		if blk != nil && !blk.Freed() {
			if err := blk.Free(); err != nil {
				logger.Logf(logger.Allow, "module", "%v", err)
			}
		}
	}
}

// placeSections allocates the text and data blocks and copies every placeable
// section into them. On error the caller must call free() on the returned
// placement.
func placeSections(f *elfreader.File, heap *memory.Heap) (*placement, error) {
	p, err := planSections(f)
	if err != nil {
		return nil, err
	}

	pl := &placement{
		mem:   heap.Memory(),
		bases: make(map[int]uint32),
	}

	pl.text, err = heap.Alloc(p.text, blockAlignment)
	if err != nil {
		return pl, curated.Errorf(AllocationFailed, RegionText, err)
	}

	pl.data, err = heap.Alloc(p.data, blockAlignment)
	if err != nil {
		return pl, curated.Errorf(AllocationFailed, RegionData, err)
	}

	logger.Logf(logger.Allow, "module", "text block: %s", pl.text)
	logger.Logf(logger.Allow, "module", "data block: %s", pl.data)

	mem := pl.mem

	for _, sec := range f.Sections {
		if !placeable(sec) {
			continue
		}

		// the region was checked by planSections()
		r, _ := Classify(sec.Addr)
		blk := pl.block(r)
		dest := blk.Base() + sec.Addr - r.Origin()

		if uint64(dest)+uint64(sec.Size) > uint64(blk.End()) {
			return pl, curated.Errorf(BufferOverflow, sec.Name, dest, sec.Size, r, blk.End())
		}
		if dest < blk.Base() {
			return pl, curated.Errorf(BufferUnderflow, sec.Name, dest, r, blk.Base())
		}
		if dest&(alignment(sec)-1) != 0 {
			return pl, curated.Errorf(MisalignedSection, sec.Name, dest, alignment(sec))
		}

		switch sec.Type {
		case elf.SHT_NOBITS:
			err = mem.Fill(dest, sec.Size, 0)
			logger.Logf(logger.Verbose, "module", "zero %s at %08x (%d bytes)", sec.Name, dest, sec.Size)
		default:
			err = mem.WriteBytes(dest, sec.Data()[:sec.Size])
			logger.Logf(logger.Verbose, "module", "copy %s to %08x (%d bytes)", sec.Name, dest, sec.Size)
		}
		if err != nil {
			return pl, curated.Errorf(MalformedSection, sec.Name, err)
		}

		memory.Sync(mem, dest, sec.Size)

		pl.bases[sec.Index] = blk.Base()
	}

	return pl, nil
}
