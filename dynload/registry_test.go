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

package dynload_test

import (
	"strings"
	"testing"

	"github.com/jetsetilly/modloader/curated"
	"github.com/jetsetilly/modloader/dynload"
	"github.com/jetsetilly/modloader/test"
)

func TestRegistry(t *testing.T) {
	reg := dynload.NewRegistry()

	lib := dynload.NewLibrary("coreinit")
	lib.Export(dynload.FunctionExport, "OSReport", 0x01000100)
	lib.Export(dynload.DataExport, "OSReport", 0x10000100)
	test.DemandSuccess(t, reg.Register(lib))
	test.ExpectSuccess(t, curated.Is(reg.Register(dynload.NewLibrary("coreinit")), dynload.DuplicateLibrary))

	_, ok := reg.IsLoaded("coreinit")
	test.ExpectFailure(t, ok)

	_, err := reg.Acquire("nsysnet")
	test.ExpectSuccess(t, curated.Is(err, dynload.UnknownLibrary))

	h, err := reg.Acquire("coreinit")
	test.DemandSuccess(t, err)
	test.ExpectInequality(t, h, 0)

	loaded, ok := reg.IsLoaded("coreinit")
	test.ExpectSuccess(t, ok)
	test.ExpectEquality(t, loaded, h)

	test.ExpectEquality(t, reg.FindExport(h, dynload.FunctionExport, "OSReport"), 0x01000100)
	test.ExpectEquality(t, reg.FindExport(h, dynload.DataExport, "OSReport"), 0x10000100)
	test.ExpectEquality(t, reg.FindExport(h, dynload.FunctionExport, "OSFatal"), 0)

	_, err = reg.Acquire("coreinit")
	test.DemandSuccess(t, err)
	test.ExpectEquality(t, reg.References("coreinit"), 2)

	test.ExpectSuccess(t, reg.Release(h))
	test.ExpectSuccess(t, reg.Release(h))
	test.ExpectSuccess(t, curated.Is(reg.Release(h), dynload.NotAcquired))
	test.ExpectSuccess(t, curated.Is(reg.Release(100), dynload.InvalidHandle))

	// exports of a library that is not loaded can not be found
	_, ok = reg.IsLoaded("coreinit")
	test.ExpectFailure(t, ok)
	test.ExpectEquality(t, reg.FindExport(h, dynload.FunctionExport, "OSReport"), 0)
}

func TestResident(t *testing.T) {
	reg := dynload.NewRegistry()

	lib := dynload.NewLibrary("coreinit")
	lib.Resident = true
	lib.Export(dynload.FunctionExport, "OSReport", 0x01000100)
	test.DemandSuccess(t, reg.Register(lib))

	h, ok := reg.IsLoaded("coreinit")
	test.DemandSuccess(t, ok)
	test.ExpectEquality(t, reg.FindExport(h, dynload.FunctionExport, "OSReport"), 0x01000100)
	test.ExpectEquality(t, reg.References("coreinit"), 0)
	test.ExpectSuccess(t, strings.Contains(reg.String(), "(resident)"))
}

func TestParseExports(t *testing.T) {
	const exports = `# libraries available to modules
coreinit resident
coreinit func OSReport 0x01000100
coreinit data MEMAllocFromDefaultHeapEx 10000200   # pointer

nsysnet func socket 0x01800000
`
	libs, err := dynload.ParseExports(strings.NewReader(exports))
	test.DemandSuccess(t, err)
	test.DemandEquality(t, len(libs), 2)

	test.ExpectEquality(t, libs[0].Name, "coreinit")
	test.ExpectSuccess(t, libs[0].Resident)
	test.ExpectEquality(t, libs[0].Functions["OSReport"], 0x01000100)
	test.ExpectEquality(t, libs[0].Data["MEMAllocFromDefaultHeapEx"], 0x10000200)
	test.ExpectEquality(t, libs[1].Name, "nsysnet")
	test.ExpectFailure(t, libs[1].Resident)
	test.ExpectEquality(t, libs[1].Functions["socket"], 0x01800000)

	reg := dynload.NewRegistry()
	test.DemandSuccess(t, reg.ReadExports(strings.NewReader(exports)))
	test.ExpectEquality(t, strings.Join(reg.Libraries(), ","), "coreinit,nsysnet")
}

func TestParseExportsErrors(t *testing.T) {
	for _, s := range []string{
		"coreinit func OSReport",
		"coreinit code OSReport 0x100",
		"coreinit func OSReport 0xzz",
		"coreinit func OSReport 0x100000000",
		"coreinit func OSReport 0",
		"coreinit\n",
	} {
		_, err := dynload.ParseExports(strings.NewReader(s))
		test.ExpectSuccess(t, curated.Is(err, dynload.InvalidExports), s)
	}
}
