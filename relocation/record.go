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
)

// Sentinal error patterns.
const (
	InvalidImportSection = "relocation: invalid import section name (%s)"
)

// prefixes of import section names
const (
	functionImport = ".fimport_"
	dataImport     = ".dimport_"
)

// Import describes the library that an imported symbol is found in. One
// Import is shared by every Record that refers to the same import section.
type Import struct {
	Library string
	IsData  bool
}

// ParseImportSection creates an Import from the name of an import section.
// Sections named .fimport_<library> import functions and sections named
// .dimport_<library> import data.
func ParseImportSection(name string) (*Import, error) {
	var imp Import

	switch {
	case strings.HasPrefix(name, functionImport):
		imp.Library = strings.TrimPrefix(name, functionImport)
	case strings.HasPrefix(name, dataImport):
		imp.Library = strings.TrimPrefix(name, dataImport)
		imp.IsData = true
	default:
		return nil, curated.Errorf(InvalidImportSection, name)
	}

	if imp.Library == "" {
		return nil, curated.Errorf(InvalidImportSection, name)
	}

	return &imp, nil
}

func (imp *Import) String() string {
	if imp.IsData {
		return fmt.Sprintf("%s (data)", imp.Library)
	}
	return fmt.Sprintf("%s (function)", imp.Library)
}

// Record is a relocation against a symbol in another library. It is applied
// once the library has been found, using the address of the symbol in that
// library.
type Record struct {
	Kind   Kind
	Offset uint32
	Addend int32

	// the base address that offset is relative to
	Destination uint32

	// name of the symbol in the library
	Symbol string

	Import *Import
}

func (rec Record) String() string {
	return fmt.Sprintf("%s from %s: %v at %08x%+d", rec.Symbol, rec.Import, rec.Kind, rec.Destination+rec.Offset, rec.Addend)
}

// Link applies the relocation now that the address of the symbol is known.
// The relocation is of the import class.
func (rec Record) Link(lnk *Linker, symbol uint32, pool *Pool) error {
	return lnk.Link(rec.Kind, rec.Offset, rec.Addend, rec.Destination, symbol, pool, ClassImport)
}
