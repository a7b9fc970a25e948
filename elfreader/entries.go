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

package elfreader

import (
	"debug/elf"
	"encoding/binary"
	"fmt"

	"github.com/jetsetilly/modloader/curated"
)

// size of the entries in relocation and symbol sections.
const (
	relSize  = 8
	relaSize = 12
	symSize  = 16
)

// Rela is a single relocation entry. Entries from SHT_REL sections have an
// addend of zero.
//
// Info is the r_info field as it appears in the image. The type of the
// relocation is in the low byte and is interpreted by the relocation package.
type Rela struct {
	Offset uint32
	Symbol uint32
	Info   uint32
	Addend int32
}

func (r Rela) String() string {
	return fmt.Sprintf("offset %08x symbol %d info %#08x addend %d", r.Offset, r.Symbol, r.Info, r.Addend)
}

// Relocations returns the entries of a SHT_RELA or SHT_REL section. There is
// no explicit relocation entry type in the debug/elf package so we walk over
// the data and extract the fields manually.
func (f *File) Relocations(sec *Section) ([]Rela, error) {
	var entrySize int
	switch sec.Type {
	case elf.SHT_RELA:
		entrySize = relaSize
	case elf.SHT_REL:
		entrySize = relSize
	default:
		return nil, curated.Errorf(MalformedImage, fmt.Sprintf("%s is not a relocation section", sec.Name))
	}

	data := sec.Data()
	if len(data)%entrySize != 0 {
		return nil, curated.Errorf(MalformedImage, fmt.Sprintf("%s has a partial relocation entry", sec.Name))
	}

	rels := make([]Rela, 0, len(data)/entrySize)
	for i := 0; i < len(data); i += entrySize {
		info := binary.BigEndian.Uint32(data[i+4:])
		r := Rela{
			Offset: binary.BigEndian.Uint32(data[i:]),
			Symbol: info >> 8,
			Info:   info,
		}
		if entrySize == relaSize {
			r.Addend = int32(binary.BigEndian.Uint32(data[i+8:]))
		}
		rels = append(rels, r)
	}

	return rels, nil
}

// Symbol is a single entry in a symbol table.
type Symbol struct {
	Name    string
	Value   uint32
	Size    uint32
	Bind    elf.SymBind
	Type    elf.SymType
	Section elf.SectionIndex
}

func (s Symbol) String() string {
	return fmt.Sprintf("%s %08x (%s %s section %d)", s.Name, s.Value, s.Bind, s.Type, s.Section)
}

// Symbol returns the entry in the symbol table with the index. Unlike the
// Symbols() function in the debug/elf package, the index is the index as used
// by relocation entries, ie. zero is the null symbol.
func (f *File) Symbol(symtab *Section, index uint32) (Symbol, error) {
	if symtab.Type != elf.SHT_SYMTAB && symtab.Type != elf.SHT_DYNSYM {
		return Symbol{}, curated.Errorf(MalformedImage, fmt.Sprintf("%s is not a symbol table", symtab.Name))
	}

	data := symtab.Data()
	i := uint64(index) * symSize
	if i+symSize > uint64(len(data)) {
		return Symbol{}, curated.Errorf(MalformedImage, fmt.Sprintf("symbol %d is not in %s", index, symtab.Name))
	}
	ent := data[i : i+symSize]

	info := ent[12]
	sym := Symbol{
		Value:   binary.BigEndian.Uint32(ent[4:]),
		Size:    binary.BigEndian.Uint32(ent[8:]),
		Bind:    elf.ST_BIND(info),
		Type:    elf.ST_TYPE(info),
		Section: elf.SectionIndex(binary.BigEndian.Uint16(ent[14:])),
	}

	strtab, err := f.Section(symtab.Link)
	if err != nil {
		return Symbol{}, err
	}

	sym.Name, err = stringAt(strtab, binary.BigEndian.Uint32(ent[0:]))
	if err != nil {
		return Symbol{}, err
	}

	return sym, nil
}

// stringAt returns the null terminated string at the offset in a string
// table.
func stringAt(strtab *Section, offset uint32) (string, error) {
	data := strtab.Data()
	if offset >= uint32(len(data)) {
		if offset == 0 {
			return "", nil
		}
		return "", curated.Errorf(MalformedImage, fmt.Sprintf("string offset %d is not in %s", offset, strtab.Name))
	}
	end := offset
	for end < uint32(len(data)) && data[end] != 0 {
		end++
	}
	return string(data[offset:end]), nil
}
