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
	"bytes"
	"compress/zlib"
	"debug/elf"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/jetsetilly/modloader/curated"
	"github.com/jetsetilly/modloader/logger"
)

// Sentinal error patterns.
const (
	MalformedImage = "elf: malformed image: %v"
)

// Section types and flags that are not defined by the debug/elf package.
const (
	SHT_RPL_EXPORTS  elf.SectionType = 0x80000001
	SHT_RPL_IMPORTS  elf.SectionType = 0x80000002
	SHT_RPL_CRCS     elf.SectionType = 0x80000003
	SHT_RPL_FILEINFO elf.SectionType = 0x80000004

	SHF_RPL_ZLIB elf.SectionFlag = 0x08000000
)

// File is an opened ELF image.
type File struct {
	// entry point of the image in the address space of the image
	Entry uint32

	// all sections in the image in index order. the first section is always
	// the null section
	Sections []*Section
}

// Section is a single section of the image.
type Section struct {
	Index int
	Name  string
	Type  elf.SectionType
	Flags elf.SectionFlag
	Addr  uint32
	Size  uint32
	Align uint32
	Link  uint32
	Info  uint32

	data []byte
}

func (sec *Section) String() string {
	return fmt.Sprintf("%s (%s) %08x (%d bytes)", sec.Name, typeName(sec.Type), sec.Addr, sec.Size)
}

// Data returns the contents of the section. NOBITS sections have no data.
func (sec *Section) Data() []byte {
	return sec.data
}

// Loadable returns true if the section occupies memory when the image is
// loaded.
func (sec *Section) Loadable() bool {
	return (sec.Type == elf.SHT_PROGBITS || sec.Type == elf.SHT_NOBITS) && sec.Flags&elf.SHF_ALLOC == elf.SHF_ALLOC
}

// Open an ELF image. The image must be a 32bit big-endian PowerPC image.
func Open(data []byte) (*File, error) {
	ef, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, curated.Errorf(MalformedImage, err)
	}
	defer ef.Close()

	if ef.Class != elf.ELFCLASS32 {
		return nil, curated.Errorf(MalformedImage, fmt.Sprintf("unsupported class (%s)", ef.Class))
	}
	if ef.Data != elf.ELFDATA2MSB {
		return nil, curated.Errorf(MalformedImage, fmt.Sprintf("unsupported byte order (%s)", ef.Data))
	}
	if ef.Machine != elf.EM_PPC {
		return nil, curated.Errorf(MalformedImage, fmt.Sprintf("unsupported machine (%s)", ef.Machine))
	}

	f := &File{
		Entry:    uint32(ef.Entry),
		Sections: make([]*Section, len(ef.Sections)),
	}

	for i, s := range ef.Sections {
		sec := &Section{
			Index: i,
			Name:  s.Name,
			Type:  s.Type,
			Flags: s.Flags,
			Addr:  uint32(s.Addr),
			Size:  uint32(s.Size),
			Align: uint32(s.Addralign),
			Link:  s.Link,
			Info:  s.Info,
		}

		if s.Type != elf.SHT_NOBITS && s.Type != elf.SHT_NULL {
			sec.data, err = s.Data()
			if err != nil {
				return nil, curated.Errorf(MalformedImage, fmt.Sprintf("%s: %v", s.Name, err))
			}

			if sec.Flags&SHF_RPL_ZLIB == SHF_RPL_ZLIB {
				sec.data, err = inflate(sec.data)
				if err != nil {
					return nil, curated.Errorf(MalformedImage, fmt.Sprintf("%s: %v", s.Name, err))
				}
				sec.Size = uint32(len(sec.data))
				logger.Logf(logger.Verbose, "elf", "%s: inflated to %d bytes", sec.Name, sec.Size)
			}
		}

		f.Sections[i] = sec
	}

	logger.Logf(logger.Allow, "elf", "%d sections, entry point %08x", len(f.Sections), f.Entry)

	return f, nil
}

// inflate the contents of a SHF_RPL_ZLIB section. the data is the inflated
// size as a 32bit big-endian value followed by the zlib stream.
func inflate(data []byte) ([]byte, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("compressed section is too short")
	}

	size := binary.BigEndian.Uint32(data)

	r, err := zlib.NewReader(bytes.NewReader(data[4:]))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	inflated := make([]byte, size)
	if _, err := io.ReadFull(r, inflated); err != nil {
		return nil, fmt.Errorf("inflating: %w", err)
	}

	return inflated, nil
}

// Section returns the section with the index. Returns an error if there is no
// such section.
func (f *File) Section(index uint32) (*Section, error) {
	if index >= uint32(len(f.Sections)) {
		return nil, curated.Errorf(MalformedImage, fmt.Sprintf("no section with index %d", index))
	}
	return f.Sections[index], nil
}

func typeName(t elf.SectionType) string {
	switch t {
	case SHT_RPL_EXPORTS:
		return "RPL_EXPORTS"
	case SHT_RPL_IMPORTS:
		return "RPL_IMPORTS"
	case SHT_RPL_CRCS:
		return "RPL_CRCS"
	case SHT_RPL_FILEINFO:
		return "RPL_FILEINFO"
	}
	return t.String()
}
