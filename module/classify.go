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
	"fmt"

	"github.com/jetsetilly/modloader/curated"
)

// Sentinal error returned by Classify() and Rebase().
const (
	UnhandledAddress = "module: unhandled address (%#08x)"
)

// Region is the part of the module's address space an address belongs to.
type Region int

// List of valid Region values.
const (
	RegionAbsolute Region = iota
	RegionText
	RegionData
	RegionExternal
)

// the first address of each region
const (
	textOrigin     = 0x02000000
	dataOrigin     = 0x10000000
	externalOrigin = 0xc0000000
)

func (r Region) String() string {
	switch r {
	case RegionAbsolute:
		return "absolute"
	case RegionText:
		return "text"
	case RegionData:
		return "data"
	case RegionExternal:
		return "external"
	}
	return fmt.Sprintf("unknown region %d", int(r))
}

// Origin returns the first address in the region.
func (r Region) Origin() uint32 {
	switch r {
	case RegionText:
		return textOrigin
	case RegionData:
		return dataOrigin
	case RegionExternal:
		return externalOrigin
	}
	return 0
}

// Classify returns the region of an address in the module's address space.
// Zero is an absolute value. Any other address below the text region is not
// handled.
func Classify(addr uint32) (Region, error) {
	switch {
	case addr == 0:
		return RegionAbsolute, nil
	case addr >= externalOrigin:
		return RegionExternal, nil
	case addr >= dataOrigin:
		return RegionData, nil
	case addr >= textOrigin:
		return RegionText, nil
	}
	return RegionAbsolute, curated.Errorf(UnhandledAddress, addr)
}

// Rebase returns the runtime value of a symbol value, given the base
// addresses of the text and data blocks. Absolute values are unchanged.
// External values can not be rebased and the value is returned unchanged. The
// caller must check the returned Region.
func Rebase(value uint32, text uint32, data uint32) (uint32, Region, error) {
	r, err := Classify(value)
	if err != nil {
		return value, r, err
	}

	switch r {
	case RegionText:
		return value - textOrigin + text, r, nil
	case RegionData:
		return value - dataOrigin + data, r, nil
	}

	return value, r, nil
}

// RegionOffset returns the address relative to the origin of its region.
// Addresses below the text region are returned unchanged.
func RegionOffset(addr uint32) uint32 {
	r, err := Classify(addr)
	if err != nil {
		return addr
	}
	return addr - r.Origin()
}
