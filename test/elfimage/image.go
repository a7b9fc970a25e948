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

package elfimage

import (
	"bytes"
	"compress/zlib"
	"debug/elf"
	"encoding/binary"
)

const (
	ehdrSize = 52
	shdrSize = 40
	symSize  = 16
	relaSize = 12
)

// the SHT_RPL_IMPORTS section type and SHF_RPL_ZLIB flag.
const (
	sectionImports elf.SectionType = 0x80000002
	flagZlib       elf.SectionFlag = 0x08000000
)

type section struct {
	name  string
	typ   elf.SectionType
	flags elf.SectionFlag
	addr  uint32
	align uint32
	link  uint32
	info  uint32
	esize uint32

	// size is only used for NOBITS sections. the size of other sections is
	// the length of data
	size uint32
	data []byte
}

type symbol struct {
	name    string
	value   uint32
	size    uint32
	info    uint8
	section elf.SectionIndex
}

type rela struct {
	offset uint32
	symbol int
	kind   uint8
	addend int32
}

// Image is an ELF image under construction.
type Image struct {
	entry    uint32
	sections []*section
	symbols  []symbol

	// relocations for each section index, in the order the sections were
	// added
	relas map[int][]rela
	order []int
}

// New creates an image with the entry point.
func New(entry uint32) *Image {
	return &Image{
		entry:    entry,
		sections: []*section{{}},
		symbols:  []symbol{{}},
		relas:    make(map[int][]rela),
	}
}

func (img *Image) add(sec *section) int {
	img.sections = append(img.sections, sec)
	return len(img.sections) - 1
}

// AddProgbits adds a PROGBITS section and returns its index.
func (img *Image) AddProgbits(name string, flags elf.SectionFlag, addr uint32, align uint32, data []byte) int {
	return img.add(&section{
		name:  name,
		typ:   elf.SHT_PROGBITS,
		flags: flags,
		addr:  addr,
		align: align,
		data:  append([]byte{}, data...),
	})
}

// AddCompressed adds a PROGBITS section that is stored compressed with the
// SHF_RPL_ZLIB flag set. Returns the index of the section.
func (img *Image) AddCompressed(name string, flags elf.SectionFlag, addr uint32, align uint32, data []byte) int {
	var b bytes.Buffer
	_ = binary.Write(&b, binary.BigEndian, uint32(len(data)))
	w := zlib.NewWriter(&b)
	_, _ = w.Write(data)
	_ = w.Close()

	return img.add(&section{
		name:  name,
		typ:   elf.SHT_PROGBITS,
		flags: flags | flagZlib,
		addr:  addr,
		align: align,
		data:  b.Bytes(),
	})
}

// AddNobits adds a NOBITS section and returns its index.
func (img *Image) AddNobits(name string, flags elf.SectionFlag, addr uint32, align uint32, size uint32) int {
	return img.add(&section{
		name:  name,
		typ:   elf.SHT_NOBITS,
		flags: flags,
		addr:  addr,
		align: align,
		size:  size,
	})
}

// AddSection adds a section of any type. Returns the index of the section.
func (img *Image) AddSection(name string, typ elf.SectionType, flags elf.SectionFlag, addr uint32, align uint32, data []byte) int {
	return img.add(&section{
		name:  name,
		typ:   typ,
		flags: flags,
		addr:  addr,
		align: align,
		data:  append([]byte{}, data...),
	})
}

// AddImports adds an import section for a library. The name should be of the
// form ".fimport_<library>" or ".dimport_<library>". The section is given one
// 8 byte stub for each of count imports. Returns the index of the section.
func (img *Image) AddImports(name string, addr uint32, count int) int {
	return img.add(&section{
		name:  name,
		typ:   sectionImports,
		flags: elf.SHF_ALLOC,
		addr:  addr,
		align: 4,
		data:  make([]byte, count*8),
	})
}

// AddSymbol adds a global function symbol with the value. The section is the
// index returned by one of the Add functions, or a special index such as
// elf.SHN_ABS. Returns the index of the symbol as used by AddRela().
func (img *Image) AddSymbol(name string, value uint32, section int) int {
	img.symbols = append(img.symbols, symbol{
		name:    name,
		value:   value,
		info:    uint8(elf.STB_GLOBAL)<<4 | uint8(elf.STT_FUNC),
		section: elf.SectionIndex(section),
	})
	return len(img.symbols) - 1
}

// AddRela adds a relocation entry for the section.
func (img *Image) AddRela(section int, offset uint32, symbol int, kind uint8, addend int32) {
	if _, ok := img.relas[section]; !ok {
		img.order = append(img.order, section)
	}
	img.relas[section] = append(img.relas[section], rela{
		offset: offset,
		symbol: symbol,
		kind:   kind,
		addend: addend,
	})
}

// strtab is a string table under construction.
type strtab struct {
	data []byte
}

func newStrtab() *strtab {
	return &strtab{data: []byte{0}}
}

func (s *strtab) add(name string) uint32 {
	if name == "" {
		return 0
	}
	offset := uint32(len(s.data))
	s.data = append(s.data, name...)
	s.data = append(s.data, 0)
	return offset
}

// Bytes returns the image as a byte slice.
func (img *Image) Bytes() []byte {
	be := binary.BigEndian

	sections := append([]*section{}, img.sections...)

	// the symbol table and string table indexes are known before the data
	// is generated
	symtabIdx := uint32(len(sections) + len(img.order))
	strtabIdx := symtabIdx + 1
	shstrtabIdx := strtabIdx + 1

	for _, idx := range img.order {
		var data []byte
		for _, r := range img.relas[idx] {
			data = be.AppendUint32(data, r.offset)
			data = be.AppendUint32(data, uint32(r.symbol)<<8|uint32(r.kind))
			data = be.AppendUint32(data, uint32(r.addend))
		}
		sections = append(sections, &section{
			name:  ".rela" + img.sections[idx].name,
			typ:   elf.SHT_RELA,
			align: 4,
			link:  symtabIdx,
			info:  uint32(idx),
			esize: relaSize,
			data:  data,
		})
	}

	strs := newStrtab()
	var syms []byte
	for _, s := range img.symbols {
		syms = be.AppendUint32(syms, strs.add(s.name))
		syms = be.AppendUint32(syms, s.value)
		syms = be.AppendUint32(syms, s.size)
		syms = append(syms, s.info, 0)
		syms = be.AppendUint16(syms, uint16(s.section))
	}

	sections = append(sections, &section{
		name:  ".symtab",
		typ:   elf.SHT_SYMTAB,
		align: 4,
		link:  strtabIdx,
		info:  1,
		esize: symSize,
		data:  syms,
	})
	sections = append(sections, &section{
		name:  ".strtab",
		typ:   elf.SHT_STRTAB,
		align: 1,
		data:  strs.data,
	})

	shstrs := newStrtab()
	names := make([]uint32, len(sections)+1)
	for i, sec := range sections {
		names[i] = shstrs.add(sec.name)
	}
	names[len(sections)] = shstrs.add(".shstrtab")
	sections = append(sections, &section{
		name:  ".shstrtab",
		typ:   elf.SHT_STRTAB,
		align: 1,
		data:  shstrs.data,
	})

	// section data follows the file header
	out := make([]byte, ehdrSize)
	offsets := make([]uint32, len(sections))
	for i, sec := range sections {
		if sec.typ == elf.SHT_NULL || sec.typ == elf.SHT_NOBITS {
			offsets[i] = uint32(len(out))
			continue
		}
		for len(out)%4 != 0 {
			out = append(out, 0)
		}
		offsets[i] = uint32(len(out))
		out = append(out, sec.data...)
	}
	for len(out)%4 != 0 {
		out = append(out, 0)
	}
	shoff := uint32(len(out))

	// section header table
	for i, sec := range sections {
		size := uint32(len(sec.data))
		if sec.typ == elf.SHT_NOBITS {
			size = sec.size
		}
		out = be.AppendUint32(out, names[i])
		out = be.AppendUint32(out, uint32(sec.typ))
		out = be.AppendUint32(out, uint32(sec.flags))
		out = be.AppendUint32(out, sec.addr)
		out = be.AppendUint32(out, offsets[i])
		out = be.AppendUint32(out, size)
		out = be.AppendUint32(out, sec.link)
		out = be.AppendUint32(out, sec.info)
		out = be.AppendUint32(out, sec.align)
		out = be.AppendUint32(out, sec.esize)
	}

	// file header
	hdr := out[:ehdrSize]
	copy(hdr, []byte{0x7f, 'E', 'L', 'F', byte(elf.ELFCLASS32), byte(elf.ELFDATA2MSB), byte(elf.EV_CURRENT)})
	be.PutUint16(hdr[16:], uint16(elf.ET_EXEC))
	be.PutUint16(hdr[18:], uint16(elf.EM_PPC))
	be.PutUint32(hdr[20:], uint32(elf.EV_CURRENT))
	be.PutUint32(hdr[24:], img.entry)
	be.PutUint32(hdr[28:], 0)
	be.PutUint32(hdr[32:], shoff)
	be.PutUint32(hdr[36:], 0)
	be.PutUint16(hdr[40:], ehdrSize)
	be.PutUint16(hdr[42:], 0)
	be.PutUint16(hdr[44:], 0)
	be.PutUint16(hdr[46:], shdrSize)
	be.PutUint16(hdr[48:], uint16(len(sections)))
	be.PutUint16(hdr[50:], uint16(shstrtabIdx))

	return out
}
