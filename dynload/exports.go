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

package dynload

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jetsetilly/modloader/curated"
)

// Sentinal error returned by ParseExports().
const (
	InvalidExports = "dynload: exports: line %d: %s"
)

// ParseExports reads a description of libraries and their exports. Each line
// is one of:
//
//	<library> func <name> <address>
//	<library> data <name> <address>
//	<library> resident
//
// Addresses are hexadecimal with an optional 0x prefix. Everything after a #
// character is a comment. Libraries are returned in the order they first
// appear.
func ParseExports(r io.Reader) ([]*Library, error) {
	var libs []*Library
	byName := make(map[string]*Library)

	scanner := bufio.NewScanner(r)
	n := 0
	for scanner.Scan() {
		n++

		line, _, _ := strings.Cut(scanner.Text(), "#")
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		lib, ok := byName[fields[0]]
		if !ok {
			lib = NewLibrary(fields[0])
			byName[lib.Name] = lib
			libs = append(libs, lib)
		}

		if len(fields) == 2 && fields[1] == "resident" {
			lib.Resident = true
			continue
		}

		if len(fields) != 4 {
			return nil, curated.Errorf(InvalidExports, n, fmt.Sprintf("expected 4 fields, found %d", len(fields)))
		}

		var kind ExportKind
		switch fields[1] {
		case "func":
			kind = FunctionExport
		case "data":
			kind = DataExport
		default:
			return nil, curated.Errorf(InvalidExports, n, fmt.Sprintf("unknown export kind (%s)", fields[1]))
		}

		addr, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(fields[3]), "0x"), 16, 32)
		if err != nil {
			return nil, curated.Errorf(InvalidExports, n, err)
		}
		if addr == 0 {
			return nil, curated.Errorf(InvalidExports, n, fmt.Sprintf("%s has an address of zero", fields[2]))
		}

		lib.Export(kind, fields[2], uint32(addr))
	}

	if err := scanner.Err(); err != nil {
		return nil, curated.Errorf(InvalidExports, n, err)
	}

	return libs, nil
}

// ReadExports parses the exports description and registers every library in
// it.
func (reg *Registry) ReadExports(r io.Reader) error {
	libs, err := ParseExports(r)
	if err != nil {
		return err
	}
	for _, lib := range libs {
		if err := reg.Register(lib); err != nil {
			return err
		}
	}
	return nil
}
