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

package prefs_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/jetsetilly/modloader/curated"
	"github.com/jetsetilly/modloader/prefs"
	"github.com/jetsetilly/modloader/test"
)

const tempFile = "modloader_prefs_test"

func getTmpPrefFile(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), tempFile)
}

func cmpTmpFile(t *testing.T, fn string, expected string) {
	t.Helper()

	data, err := os.ReadFile(fn)
	if err != nil {
		t.Errorf("error reading tmp file: %v", err)
		return
	}

	expected = fmt.Sprintf("%s\n%s", prefs.WarningBoilerPlate, expected)
	test.ExpectEquality(t, string(data), expected)
}

func TestBool(t *testing.T) {
	fn := getTmpPrefFile(t)

	dsk, err := prefs.NewDisk(fn)
	test.DemandSuccess(t, err)

	var v prefs.Bool
	var w prefs.Bool
	var x prefs.Bool
	test.ExpectSuccess(t, dsk.Add("test", &v))
	test.ExpectSuccess(t, dsk.Add("testB", &w))
	test.ExpectSuccess(t, dsk.Add("testC", &x))

	test.ExpectSuccess(t, v.Set(true))
	test.ExpectSuccess(t, w.Set("foo"))
	test.ExpectSuccess(t, x.Set("true"))

	test.DemandSuccess(t, dsk.Save())
	cmpTmpFile(t, fn, "test :: true\ntestB :: false\ntestC :: true\n")
}

func TestString(t *testing.T) {
	fn := getTmpPrefFile(t)

	dsk, err := prefs.NewDisk(fn)
	test.DemandSuccess(t, err)

	var v prefs.String
	test.ExpectSuccess(t, dsk.Add("foo", &v))
	test.ExpectSuccess(t, v.Set("bar"))

	test.DemandSuccess(t, dsk.Save())
	cmpTmpFile(t, fn, "foo :: bar\n")
}

func TestInt(t *testing.T) {
	fn := getTmpPrefFile(t)

	dsk, err := prefs.NewDisk(fn)
	test.DemandSuccess(t, err)

	var v prefs.Int
	var w prefs.Int
	test.ExpectSuccess(t, dsk.Add("number", &v))
	test.ExpectSuccess(t, dsk.Add("numberB", &w))

	test.ExpectSuccess(t, v.Set(10))

	// string conversion to int, including a base prefix
	test.ExpectSuccess(t, w.Set("0x63"))

	test.DemandSuccess(t, dsk.Save())
	cmpTmpFile(t, fn, "number :: 10\nnumberB :: 99\n")

	// failure conditions
	test.ExpectFailure(t, v.Set("---"))
	test.ExpectFailure(t, v.Set(1.0))
}

func TestAddress(t *testing.T) {
	fn := getTmpPrefFile(t)

	dsk, err := prefs.NewDisk(fn)
	test.DemandSuccess(t, err)

	var a prefs.Address
	test.ExpectSuccess(t, dsk.Add("origin", &a))
	test.ExpectSuccess(t, a.Set(uint32(0x00800000)))
	test.ExpectEquality(t, a.Uint32(), 0x00800000)

	test.DemandSuccess(t, dsk.Save())
	cmpTmpFile(t, fn, "origin :: 0x800000\n")

	// value read back from disk
	test.ExpectSuccess(t, a.Set(0))
	test.DemandSuccess(t, dsk.Load(false))
	test.ExpectEquality(t, a.Uint32(), 0x00800000)
}

func TestLoadMissing(t *testing.T) {
	fn := getTmpPrefFile(t)

	dsk, err := prefs.NewDisk(fn)
	test.DemandSuccess(t, err)

	var v prefs.Int
	test.ExpectSuccess(t, dsk.Add("number", &v))
	test.ExpectSuccess(t, v.Set(500))

	err = dsk.Load(false)
	test.ExpectSuccess(t, curated.Is(err, prefs.NoPrefsFile))

	// missing file is allowed and value is unchanged
	test.ExpectSuccess(t, dsk.Load(true))
	test.ExpectEquality(t, v.Get().(int), 500)
}

func TestLoadWithCommandLine(t *testing.T) {
	fn := getTmpPrefFile(t)

	dsk, err := prefs.NewDisk(fn)
	test.DemandSuccess(t, err)

	var v prefs.Int
	var s prefs.String
	test.ExpectSuccess(t, dsk.Add("number", &v))
	test.ExpectSuccess(t, dsk.Add("name", &s))
	test.ExpectSuccess(t, v.Set(10))
	test.ExpectSuccess(t, s.Set("coreinit"))
	test.DemandSuccess(t, dsk.Save())

	prefs.PushCommandLineStack("number::20")
	defer prefs.PopCommandLineStack()

	test.DemandSuccess(t, dsk.Load(false))
	test.ExpectEquality(t, v.Get().(int), 20)
	test.ExpectEquality(t, s.String(), "coreinit")
}

func TestPreserveUnknownKeys(t *testing.T) {
	fn := getTmpPrefFile(t)

	dskA, err := prefs.NewDisk(fn)
	test.DemandSuccess(t, err)
	var a prefs.Bool
	test.ExpectSuccess(t, dskA.Add("a", &a))
	test.ExpectSuccess(t, a.Set(true))
	test.DemandSuccess(t, dskA.Save())

	dskB, err := prefs.NewDisk(fn)
	test.DemandSuccess(t, err)
	var b prefs.String
	test.ExpectSuccess(t, dskB.Add("b", &b))
	test.ExpectSuccess(t, b.Set("rpl"))
	test.DemandSuccess(t, dskB.Save())

	cmpTmpFile(t, fn, "a :: true\nb :: rpl\n")
}

func TestStringHooks(t *testing.T) {
	var s prefs.String
	var posted string

	s.SetHookPre(func(v prefs.Value) error {
		if v.(string) == "" {
			return fmt.Errorf("empty path")
		}
		return nil
	})
	s.SetHookPost(func(v prefs.Value) error {
		posted = v.(string)
		return nil
	})

	test.ExpectSuccess(t, s.Set("exports.txt"))
	test.ExpectEquality(t, s.String(), "exports.txt")
	test.ExpectEquality(t, posted, "exports.txt")

	// rejected values leave the existing value in place
	test.ExpectFailure(t, s.Reset())
	test.ExpectEquality(t, s.String(), "exports.txt")
	test.ExpectEquality(t, posted, "exports.txt")

	test.ExpectSuccess(t, s.Set(0x10))
	test.ExpectEquality(t, s.Get().(string), "16")
}
