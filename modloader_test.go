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

package main

import (
	"debug/elf"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jetsetilly/modloader/relocation"
	"github.com/jetsetilly/modloader/test"
	"github.com/jetsetilly/modloader/test/elfimage"
	"github.com/jetsetilly/modloader/version"
)

func writeModule(t *testing.T) string {
	t.Helper()

	img := elfimage.New(0x02000000)
	text := img.AddProgbits(".text", elf.SHF_ALLOC|elf.SHF_EXECINSTR, 0x02000000, 4, make([]byte, 8))
	imp := img.AddImports(".fimport_coreinit", 0xc0000000, 1)
	report := img.AddSymbol("OSReport", 0xc0000000, imp)
	img.AddRela(text, 0x02000004, report, uint8(relocation.Addr32), 0)

	fn := filepath.Join(t.TempDir(), "homebrew.elf")
	test.DemandSuccess(t, os.WriteFile(fn, img.Bytes(), 0o644))
	return fn
}

func TestInfo(t *testing.T) {
	fn := writeModule(t)

	out := &strings.Builder{}
	test.ExpectEquality(t, launch(out, []string{"INFO", fn}), 0)
	test.ExpectSuccess(t, strings.Contains(out.String(), "entry: 02000000"), out.String())
	test.ExpectSuccess(t, strings.Contains(out.String(), "import: coreinit (function)"), out.String())
	test.ExpectSuccess(t, strings.Contains(out.String(), "text: .text"), out.String())
	test.ExpectSuccess(t, strings.Contains(out.String(), "size of module: 12 bytes"), out.String())
}

func TestLoad(t *testing.T) {
	fn := writeModule(t)
	chdir(t, t.TempDir())

	exports := filepath.Join(t.TempDir(), "exports")
	test.DemandSuccess(t, os.WriteFile(exports, []byte("coreinit func OSReport 0x01000100\n"), 0o644))

	out := &strings.Builder{}
	status := launch(out, []string{"LOAD", "-exports", exports, "-prefs", "loader.arena.size::0x100000; loader.trampolines::8", "-memviz", "imports.dot", fn})
	test.ExpectEquality(t, status, 0, out.String())
	test.ExpectSuccess(t, strings.Contains(out.String(), "entrypoint: 00810000"), out.String())
	test.ExpectSuccess(t, strings.Contains(out.String(), "imports: 1 (1 libraries acquired)"), out.String())
	test.ExpectSuccess(t, strings.Contains(out.String(), "8 trampolines"), out.String())

	_, err := os.Stat("imports.dot")
	test.ExpectSuccess(t, err)
}

func TestLoadFailures(t *testing.T) {
	fn := writeModule(t)
	chdir(t, t.TempDir())

	// no library exports OSReport
	out := &strings.Builder{}
	test.ExpectEquality(t, launch(out, []string{"LOAD", "-prefs", "loader.arena.size::0x100000", fn}), 20)
	test.ExpectSuccess(t, strings.Contains(out.String(), "* error in LOAD mode"), out.String())

	out.Reset()
	test.ExpectEquality(t, launch(out, []string{"LOAD"}), 20)
	test.ExpectSuccess(t, strings.Contains(out.String(), "module file required"), out.String())

	out.Reset()
	test.ExpectEquality(t, launch(out, []string{"INFO", fn, fn}), 20)
	test.ExpectSuccess(t, strings.Contains(out.String(), "too many arguments"), out.String())
}

func TestHelp(t *testing.T) {
	out := &strings.Builder{}
	test.ExpectEquality(t, launch(out, []string{"-help"}), 0)
	test.ExpectSuccess(t, strings.Contains(out.String(), "LOAD"), out.String())
}

func TestVersion(t *testing.T) {
	out := &strings.Builder{}
	test.ExpectEquality(t, launch(out, []string{"VERSION"}), 0)
	v, _, _ := version.Version()
	test.ExpectEquality(t, strings.TrimSpace(out.String()), v)
}

func TestProfile(t *testing.T) {
	fn := writeModule(t)
	chdir(t, t.TempDir())

	exports := filepath.Join(t.TempDir(), "exports")
	test.DemandSuccess(t, os.WriteFile(exports, []byte("coreinit func OSReport 0x01000100\n"), 0o644))

	out := &strings.Builder{}
	status := launch(out, []string{"LOAD", "-exports", exports, "-prefs", "loader.arena.size::0x100000; loader.trampolines::8", "-profile", "mem", fn})
	test.ExpectEquality(t, status, 0, out.String())
	_, err := os.Stat("load.mem.profile")
	test.ExpectSuccess(t, err)

	out.Reset()
	status = launch(out, []string{"LOAD", "-profile", "disk", fn})
	test.ExpectEquality(t, status, 20, out.String())
}

// chdir changes the working directory for the duration of the test, restoring
// it on cleanup (equivalent to testing.T.Chdir, which requires go1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
