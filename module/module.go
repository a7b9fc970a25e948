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
	"github.com/jetsetilly/modloader/relocation"
)

// Sentinal errors returned by Load() when linking sections.
const (
	LinkFailed              = "module: %s: symbol %s: %v"
	UnknownImportSection    = "module: %s: symbol %s refers to section %d which is not an import section"
	UnsupportedSectionIndex = "module: %s: symbol %s is in unsupported section %#04x"
)

// relocations returns the relocation sections that apply to the section.
func relocations(f *elfreader.File, target *elfreader.Section) []*elfreader.Section {
	var rels []*elfreader.Section
	for _, sec := range f.Sections {
		if (sec.Type == elf.SHT_RELA || sec.Type == elf.SHT_REL) && sec.Info == uint32(target.Index) {
			rels = append(rels, sec)
		}
	}
	return rels
}

// importSections parses the name of every import section in the image.
// Records for relocations against the same section share the same Import.
func importSections(f *elfreader.File) (map[elf.SectionIndex]*relocation.Import, error) {
	imports := make(map[elf.SectionIndex]*relocation.Import)
	for _, sec := range f.Sections {
		if sec.Type != elfreader.SHT_RPL_IMPORTS {
			continue
		}
		imp, err := relocation.ParseImportSection(sec.Name)
		if err != nil {
			return nil, err
		}
		imports[elf.SectionIndex(sec.Index)] = imp
	}
	return imports, nil
}

// linker applies the relocations of every placed section.
type linker struct {
	f    *elfreader.File
	pl   *placement
	lnk  *relocation.Linker
	pool *relocation.Pool

	imports map[elf.SectionIndex]*relocation.Import
	pending []relocation.Record
}

func (l *linker) linkSection(sec *elfreader.Section) error {
	destination, ok := l.pl.bases[sec.Index]
	if !ok {
		return nil
	}

	for _, rel := range relocations(l.f, sec) {
		symtab, err := l.f.Section(rel.Link)
		if err != nil {
			return err
		}

		entries, err := l.f.Relocations(rel)
		if err != nil {
			return err
		}

		for _, e := range entries {
			sym, err := l.f.Symbol(symtab, e.Symbol)
			if err != nil {
				return err
			}

			value, r, err := Rebase(sym.Value, l.pl.text.Base(), l.pl.data.Base())
			if err != nil {
				return curated.Errorf(LinkFailed, sec.Name, sym.Name, err)
			}

			kind := relocation.KindFromInfo(e.Info)
			offset := RegionOffset(e.Offset)

			if r == RegionExternal {
				imp, ok := l.imports[sym.Section]
				if !ok {
					return curated.Errorf(UnknownImportSection, sec.Name, sym.Name, sym.Section)
				}
				l.pending = append(l.pending, relocation.Record{
					Kind:        kind,
					Offset:      offset,
					Addend:      e.Addend,
					Destination: destination,
					Symbol:      sym.Name,
					Import:      imp,
				})
				continue
			}

			if sym.Section != elf.SHN_ABS && sym.Section > elf.SHN_LORESERVE {
				return curated.Errorf(UnsupportedSectionIndex, sec.Name, sym.Name, uint16(sym.Section))
			}

			err = l.lnk.Link(kind, offset, e.Addend, destination, value, l.pool, relocation.ClassFixed)
			if err != nil {
				return curated.Errorf(LinkFailed, sec.Name, sym.Name, err)
			}
		}
	}

	return nil
}

// Load places the image in memory allocated from the heap and links it. All
// relocations against symbols in the module are applied. Relocations against
// imports are returned by the PendingImports() function of the Module.
//
// The pool can be nil, in which case any REL24 relocation that needs a
// trampoline will fail.
//
// If an error is returned, all memory allocated by the load has been freed and
// any fixed trampolines created by the load have been returned to the pool.
func Load(f *elfreader.File, heap *memory.Heap, lnk *relocation.Linker, pool *relocation.Pool) (*Module, error) {
	imports, err := importSections(f)
	if err != nil {
		return nil, err
	}

	pl, err := placeSections(f, heap)
	if err != nil {
		if pl != nil {
			pl.free()
		}
		return nil, err
	}

	var cp relocation.Checkpoint
	if pool != nil {
		cp = pool.Checkpoint()
	}

	mod, err := link(f, pl, lnk, pool, imports)
	if err != nil {
		if pool != nil {
			if _, rerr := pool.Rollback(cp); rerr != nil {
				logger.Logf(logger.Allow, "module", "%v", rerr)
			}
		}
		pl.free()
		return nil, err
	}

	logger.Logf(logger.Allow, "module", "loaded: %s", mod)

	return mod, nil
}

// LoadImage is the same as Load() but takes the raw bytes of an ELF image.
func LoadImage(data []byte, heap *memory.Heap, lnk *relocation.Linker, pool *relocation.Pool) (*Module, error) {
	f, err := elfreader.Open(data)
	if err != nil {
		return nil, err
	}
	return Load(f, heap, lnk, pool)
}

func link(f *elfreader.File, pl *placement, lnk *relocation.Linker, pool *relocation.Pool, imports map[elf.SectionIndex]*relocation.Import) (*Module, error) {
	// the entry point is always in the text region
	if r, err := Classify(f.Entry); err != nil || r != RegionText {
		return nil, curated.Errorf(InvalidEntrypoint, f.Entry)
	}
	entrypoint := pl.text.Base() + f.Entry - textOrigin
	if !pl.text.Contains(entrypoint, 1) {
		return nil, curated.Errorf(InvalidEntrypoint, f.Entry)
	}

	l := &linker{
		f:       f,
		pl:      pl,
		lnk:     lnk,
		pool:    pool,
		imports: imports,
	}

	unimplemented := lnk.Unimplemented

	for _, sec := range f.Sections {
		if err := l.linkSection(sec); err != nil {
			return nil, err
		}
	}

	mem := pl.mem
	mem.FlushData(pl.data.Base(), pl.data.Size())
	mem.InvalidateInstruction(pl.text.Base(), pl.text.Size())

	logger.Logf(logger.Allow, "module", "entrypoint %08x", entrypoint)
	if len(l.pending) > 0 {
		logger.Logf(logger.Allow, "module", "%d relocations pending import", len(l.pending))
	}

	return &Module{
		entrypoint:    entrypoint,
		text:          pl.text,
		data:          pl.data,
		pending:       l.pending,
		unimplemented: lnk.Unimplemented - unimplemented,
	}, nil
}

// Sentinal error returned by Load() if the entry point of the image is not in
// the text block.
const InvalidEntrypoint = "module: entrypoint %#08x is not in the text block"

// Module is a loaded module.
type Module struct {
	entrypoint uint32
	text       *memory.Block
	data       *memory.Block
	pending    []relocation.Record

	unimplemented int
}

func (mod *Module) String() string {
	start, end := mod.AddressRange()
	return fmt.Sprintf("entrypoint %08x in %08x to %08x", mod.entrypoint, start, end)
}

// Entrypoint returns the address of the entry point of the module.
func (mod *Module) Entrypoint() uint32 {
	return mod.entrypoint
}

// PendingImports returns the relocations that were not applied because the
// symbol is in another library.
func (mod *Module) PendingImports() []relocation.Record {
	return mod.pending
}

// AddressRange returns the first address used by the module and the address
// immediately after the last address.
func (mod *Module) AddressRange() (uint32, uint32) {
	start := min(mod.text.Base(), mod.data.Base())
	end := max(mod.text.End(), mod.data.End())
	return start, end
}

// Text returns the block containing the text sections.
func (mod *Module) Text() *memory.Block {
	return mod.text
}

// Data returns the block containing the data sections.
func (mod *Module) Data() *memory.Block {
	return mod.data
}

// Unimplemented returns the number of relocations that were skipped because
// their kind has no implementation.
func (mod *Module) Unimplemented() int {
	return mod.unimplemented
}

// Free releases the memory used by the module. The module can not be used
// after it has been freed.
//
// Both blocks are always freed. If either fails the first error is returned.
func (mod *Module) Free() error {
	var first error
	for _, blk := range []*memory.Block{mod.text, mod.data} {
		if err := blk.Free(); err != nil {
			logger.Logf(logger.Allow, "module", "%v", err)
			if first == nil {
				first = err
			}
		}
	}
	if first != nil {
		return first
	}
	logger.Logf(logger.Allow, "module", "freed: %s", mod)
	return nil
}
