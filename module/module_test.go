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

package module_test

import (
	"bytes"
	"debug/elf"
	"testing"

	"github.com/jetsetilly/modloader/curated"
	"github.com/jetsetilly/modloader/elfreader"
	"github.com/jetsetilly/modloader/memory"
	"github.com/jetsetilly/modloader/module"
	"github.com/jetsetilly/modloader/relocation"
	"github.com/jetsetilly/modloader/test"
	"github.com/jetsetilly/modloader/test/elfimage"
)

const (
	origin   = 0x00800000
	heapSize = 0xf000
)

const (
	textFlags = elf.SHF_ALLOC | elf.SHF_EXECINSTR
	dataFlags = elf.SHF_ALLOC | elf.SHF_WRITE
)

type loader struct {
	arn  *memory.Arena
	heap *memory.Heap
	lnk  *relocation.Linker
	pool *relocation.Pool
}

func prepare(t *testing.T) *loader {
	t.Helper()

	arn, err := memory.NewArena(origin, 0x10000)
	test.DemandSuccess(t, err)
	t.Cleanup(func() {
		_ = arn.Close()
	})

	heap, err := memory.NewHeap(arn, origin, heapSize)
	test.DemandSuccess(t, err)

	pool, err := relocation.NewPool(arn, origin+heapSize, 16)
	test.DemandSuccess(t, err)

	return &loader{
		arn:  arn,
		heap: heap,
		lnk:  relocation.NewLinker(arn),
		pool: pool,
	}
}

func (l *loader) load(t *testing.T, img *elfimage.Image) (*module.Module, error) {
	t.Helper()
	return module.LoadImage(img.Bytes(), l.heap, l.lnk, l.pool)
}

func (l *loader) read32(t *testing.T, addr uint32) uint32 {
	t.Helper()
	v, err := l.arn.Read32(addr)
	test.DemandSuccess(t, err)
	return v
}

// one text section of 10 bytes with an ADDR32 relocation to a symbol in a
// data section of 16 bytes
func simpleImage() *elfimage.Image {
	img := elfimage.New(0x02000000)
	text := img.AddProgbits(".text", textFlags, 0x02000000, 4, []byte{
		0x60, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0x4e, 0x80,
	})
	data := img.AddProgbits(".data", dataFlags, 0x10000000, 4, []byte{
		0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07,
		0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f,
	})
	counter := img.AddSymbol("counter", 0x10000004, data)
	img.AddRela(text, 0x02000004, counter, uint8(relocation.Addr32), 0)
	return img
}

func TestEndToEnd(t *testing.T) {
	l := prepare(t)

	mod, err := l.load(t, simpleImage())
	test.DemandSuccess(t, err)

	text := mod.Text().Base()
	data := mod.Data().Base()
	test.ExpectEquality(t, mod.Entrypoint(), text)
	test.ExpectEquality(t, l.read32(t, text+4), data+4)

	// the bytes around the relocation are as they were in the image
	test.ExpectEquality(t, l.read32(t, text), 0x60000000)
	test.ExpectEquality(t, l.read32(t, data), 0x00010203)
	test.ExpectEquality(t, l.read32(t, data+12), 0x0c0d0e0f)

	start, end := mod.AddressRange()
	test.ExpectSuccess(t, start <= mod.Entrypoint())
	test.ExpectSuccess(t, mod.Entrypoint() < end)
	test.ExpectEquality(t, len(mod.PendingImports()), 0)
	test.ExpectEquality(t, mod.Unimplemented(), 0)
	test.ExpectEquality(t, text%0x100, 0)
	test.ExpectEquality(t, data%0x100, 0)

	// code can be executed
	test.ExpectSuccess(t, l.arn.Coherent(mod.Text().Base(), mod.Text().Size()))
	_, err = l.arn.Fetch32(text + 4)
	test.ExpectSuccess(t, err)

	test.ExpectSuccess(t, mod.Free())
	test.ExpectEquality(t, l.heap.Live(), 0)
	test.ExpectEquality(t, l.read32(t, text+4), 0)
	test.ExpectFailure(t, mod.Free())
}

func TestAddend(t *testing.T) {
	l := prepare(t)

	img := elfimage.New(0x02000008)
	text := img.AddProgbits(".text", textFlags, 0x02000000, 4, make([]byte, 16))
	img.AddProgbits(".data", dataFlags, 0x10000000, 4, make([]byte, 32))
	fn := img.AddSymbol("fn", 0x02000008, text)
	buffer := img.AddSymbol("buffer", 0x10000010, text)
	img.AddRela(text, 0x02000000, buffer, uint8(relocation.Addr16Ha), 0x7ff8)
	img.AddRela(text, 0x02000002, buffer, uint8(relocation.Addr16Lo), 0x7ff8)
	img.AddRela(text, 0x0200000c, fn, uint8(relocation.Addr32), -4)

	mod, err := l.load(t, img)
	test.DemandSuccess(t, err)

	text0 := mod.Text().Base()
	value := mod.Data().Base() + 0x10 + 0x7ff8
	ha := l.read32(t, text0) >> 16
	lo := int32(int16(l.read32(t, text0)))
	test.ExpectEquality(t, ha<<16+uint32(lo), value)
	test.ExpectEquality(t, l.read32(t, text0+0x0c), text0+4)
	test.ExpectEquality(t, mod.Entrypoint(), text0+8)
}

func TestDeterminism(t *testing.T) {
	var entrypoint uint32
	var text, data []byte

	for i := 0; i < 2; i++ {
		l := prepare(t)
		mod, err := l.load(t, simpleImage())
		test.DemandSuccess(t, err)

		t2, err := l.arn.ReadBytes(mod.Text().Base(), mod.Text().Size())
		test.DemandSuccess(t, err)
		d2, err := l.arn.ReadBytes(mod.Data().Base(), mod.Data().Size())
		test.DemandSuccess(t, err)

		if i == 0 {
			entrypoint, text, data = mod.Entrypoint(), t2, d2
			continue
		}

		test.ExpectEquality(t, mod.Entrypoint(), entrypoint)
		test.ExpectSuccess(t, bytes.Equal(t2, text))
		test.ExpectSuccess(t, bytes.Equal(d2, data))
	}

	// loading again after freeing gives the same result
	l := prepare(t)
	mod, err := l.load(t, simpleImage())
	test.DemandSuccess(t, err)
	first := mod.Entrypoint()
	test.DemandSuccess(t, mod.Free())
	mod, err = l.load(t, simpleImage())
	test.DemandSuccess(t, err)
	test.ExpectEquality(t, mod.Entrypoint(), first)
}

func TestBSS(t *testing.T) {
	l := prepare(t)

	// memory is not zero before the load
	test.DemandSuccess(t, l.arn.Fill(origin, heapSize, 0xaa))
	memory.Sync(l.arn, origin, heapSize)

	img := elfimage.New(0x02000000)
	img.AddProgbits(".text", textFlags, 0x02000000, 4, make([]byte, 8))
	img.AddProgbits(".data", dataFlags, 0x10000000, 4, []byte{1, 2, 3, 4})
	img.AddNobits(".bss", dataFlags, 0x10000010, 16, 0x20)

	mod, err := l.load(t, img)
	test.DemandSuccess(t, err)

	b, err := l.arn.ReadBytes(mod.Data().Base()+0x10, 0x20)
	test.DemandSuccess(t, err)
	test.ExpectSuccess(t, bytes.Equal(b, make([]byte, 0x20)))
	test.ExpectEquality(t, l.read32(t, mod.Data().Base()), 0x01020304)
}

func TestSizeOfModule(t *testing.T) {
	img := simpleImage()
	img.AddNobits(".bss", dataFlags, 0x10000010, 8, 0x40)
	img.AddImports(".fimport_coreinit", 0xc0000000, 4)
	img.AddProgbits(".wut_load_bounds", dataFlags, 0x10001000, 4, make([]byte, 8))
	img.AddProgbits(".comment", 0, 0, 1, make([]byte, 100))

	f, err := elfreader.Open(img.Bytes())
	test.DemandSuccess(t, err)
	test.ExpectEquality(t, module.SizeOfModule(f), (10+4)+(16+4)+(0x40+8))
}

func TestPendingImports(t *testing.T) {
	l := prepare(t)

	img := simpleImage()
	text := 1
	data := 2
	fimp := img.AddImports(".fimport_coreinit", 0xc0000000, 1)
	dimp := img.AddImports(".dimport_nsysnet", 0xc0001000, 1)
	report := img.AddSymbol("OSReport", 0xc0000000, fimp)
	errno := img.AddSymbol("errno", 0xc0001000, dimp)
	img.AddRela(text, 0x02000000, report, uint8(relocation.Rel24), 0)
	img.AddRela(data, 0x10000008, errno, uint8(relocation.Addr32), 4)
	img.AddRela(data, 0x1000000c, report, uint8(relocation.Addr32), 0)

	mod, err := l.load(t, img)
	test.DemandSuccess(t, err)

	pending := mod.PendingImports()
	test.DemandEquality(t, len(pending), 3)

	rec := pending[0]
	test.ExpectEquality(t, rec.Kind, relocation.Rel24)
	test.ExpectEquality(t, rec.Offset, 0)
	test.ExpectEquality(t, rec.Destination, mod.Text().Base())
	test.ExpectEquality(t, rec.Symbol, "OSReport")
	test.ExpectEquality(t, rec.Import.Library, "coreinit")
	test.ExpectFailure(t, rec.Import.IsData)

	// offsets are relative to the region of the section
	rec = pending[1]
	test.ExpectEquality(t, rec.Offset, 8)
	test.ExpectEquality(t, rec.Addend, 4)
	test.ExpectEquality(t, rec.Destination, mod.Data().Base())
	test.ExpectEquality(t, rec.Import.Library, "nsysnet")
	test.ExpectSuccess(t, rec.Import.IsData)

	// records for the same import section share the descriptor
	test.ExpectEquality(t, pending[2].Import, pending[0].Import)

	// pending relocations do not change memory
	test.ExpectEquality(t, l.read32(t, mod.Text().Base()), 0x60000000)
	test.ExpectEquality(t, l.read32(t, mod.Data().Base()+8), 0x08090a0b)
}

func TestAbsoluteSymbols(t *testing.T) {
	l := prepare(t)

	img := elfimage.New(0x02000000)
	text := img.AddProgbits(".text", textFlags, 0x02000000, 4, make([]byte, 8))
	abs := img.AddSymbol("zero", 0, int(elf.SHN_ABS))
	img.AddRela(text, 0x02000004, abs, uint8(relocation.Addr32), 0x1234)

	mod, err := l.load(t, img)
	test.DemandSuccess(t, err)
	test.ExpectEquality(t, l.read32(t, mod.Text().Base()+4), 0x1234)
}

func TestUnimplementedRelocation(t *testing.T) {
	l := prepare(t)

	img := simpleImage()
	img.AddRela(1, 0x02000000, 1, uint8(relocation.DTPMod32), 0)

	mod, err := l.load(t, img)
	test.DemandSuccess(t, err)
	test.ExpectEquality(t, mod.Unimplemented(), 1)
	test.ExpectEquality(t, l.read32(t, mod.Text().Base()), 0x60000000)
}

// failed loads must not leave any memory allocated
func expectCleanFailure(t *testing.T, l *loader, err error, pattern string) {
	t.Helper()
	test.ExpectSuccess(t, curated.Has(err, pattern), err)
	test.ExpectEquality(t, l.heap.Live(), 0)
	test.ExpectEquality(t, l.heap.Available(), heapSize)
}

func TestPlacementBounds(t *testing.T) {
	l := prepare(t)

	// the section starts beyond the space reserved for the text region
	img := elfimage.New(0x02000000)
	text := img.AddProgbits(".text", textFlags, 0x02001000, 4, make([]byte, 16))
	sym := img.AddSymbol("fn", 0x02001000, text)
	img.AddRela(text, 0x02001000, sym, uint8(relocation.Addr32), 0)

	_, err := l.load(t, img)
	expectCleanFailure(t, l, err, module.BufferOverflow)

	// no relocation work was done
	test.ExpectEquality(t, l.pool.Count(relocation.Free), l.pool.Len())
}

func TestMisalignedSection(t *testing.T) {
	l := prepare(t)

	img := elfimage.New(0x02000000)
	img.AddProgbits(".text", textFlags, 0x02000002, 4, make([]byte, 16))

	_, err := l.load(t, img)
	expectCleanFailure(t, l, err, module.MisalignedSection)
}

func TestSectionRegions(t *testing.T) {
	l := prepare(t)

	img := simpleImage()
	img.AddProgbits(".imported", dataFlags, 0xc0001000, 4, make([]byte, 4))
	_, err := l.load(t, img)
	expectCleanFailure(t, l, err, module.ImportSection)

	img = simpleImage()
	img.AddProgbits(".low", dataFlags, 0x00001000, 4, make([]byte, 4))
	_, err = l.load(t, img)
	expectCleanFailure(t, l, err, module.UnhandledSection)

	// sections without the alloc flag are never loaded
	img = simpleImage()
	img.AddProgbits(".comment", 0, 0x00001000, 4, make([]byte, 4))
	mod, err := l.load(t, img)
	test.DemandSuccess(t, err)
	test.ExpectSuccess(t, mod.Free())
}

func TestInvalidEntrypoint(t *testing.T) {
	l := prepare(t)

	img := elfimage.New(0x10000000)
	img.AddProgbits(".text", textFlags, 0x02000000, 4, make([]byte, 16))
	_, err := l.load(t, img)
	expectCleanFailure(t, l, err, module.InvalidEntrypoint)

	img = elfimage.New(0x02000100)
	img.AddProgbits(".text", textFlags, 0x02000000, 4, make([]byte, 16))
	_, err = l.load(t, img)
	expectCleanFailure(t, l, err, module.InvalidEntrypoint)
}

func TestUnknownImportSection(t *testing.T) {
	l := prepare(t)

	img := simpleImage()
	sym := img.AddSymbol("OSReport", 0xc0000000, 1)
	img.AddRela(1, 0x02000000, sym, uint8(relocation.Rel24), 0)

	_, err := l.load(t, img)
	expectCleanFailure(t, l, err, module.UnknownImportSection)
}

func TestInvalidImportSection(t *testing.T) {
	l := prepare(t)

	img := simpleImage()
	img.AddImports(".fimport_", 0xc0000000, 1)

	_, err := l.load(t, img)
	expectCleanFailure(t, l, err, relocation.InvalidImportSection)
}

func TestUnsupportedSectionIndex(t *testing.T) {
	l := prepare(t)

	img := simpleImage()
	sym := img.AddSymbol("common", 0x10000000, 0xff10)
	img.AddRela(1, 0x02000000, sym, uint8(relocation.Addr32), 0)

	_, err := l.load(t, img)
	expectCleanFailure(t, l, err, module.UnsupportedSectionIndex)
}

func TestLinkFailures(t *testing.T) {
	l := prepare(t)

	// symbol value is not in any region
	img := simpleImage()
	sym := img.AddSymbol("low", 0x00000100, 1)
	img.AddRela(1, 0x02000000, sym, uint8(relocation.Addr32), 0)
	_, err := l.load(t, img)
	expectCleanFailure(t, l, err, module.UnhandledAddress)
	test.ExpectSuccess(t, curated.Is(err, module.LinkFailed))

	img = simpleImage()
	img.AddRela(1, 0x02000000, 1, 0xff, 0)
	_, err = l.load(t, img)
	expectCleanFailure(t, l, err, relocation.UnsupportedKind)

	// misaligned branch
	img = simpleImage()
	fn := img.AddSymbol("fn", 0x02000006, 1)
	img.AddRela(1, 0x02000000, fn, uint8(relocation.Rel24), 0)
	_, err = l.load(t, img)
	expectCleanFailure(t, l, err, relocation.Misaligned)
}

func TestOutOfMemory(t *testing.T) {
	l := prepare(t)

	img := simpleImage()
	img.AddNobits(".bss", dataFlags, 0x10000100, 4, heapSize)

	_, err := l.load(t, img)
	expectCleanFailure(t, l, err, memory.OutOfMemory)
	test.ExpectSuccess(t, curated.Is(err, module.AllocationFailed))
}

func TestMalformedImage(t *testing.T) {
	l := prepare(t)
	_, err := module.LoadImage([]byte{0x7f, 'E', 'L', 'F'}, l.heap, l.lnk, l.pool)
	test.ExpectSuccess(t, curated.Is(err, elfreader.MalformedImage))
}

// farBranch adds a REL24 at the start of the text section to a symbol 32MB
// further on. the symbol is beyond the reach of the branch so a trampoline is
// needed
func farBranch(img *elfimage.Image) {
	far := img.AddSymbol("far", 0x04000000, 1)
	img.AddRela(1, 0x02000000, far, uint8(relocation.Rel24), 0)
}

func TestFailedLoadTrampolines(t *testing.T) {
	l := prepare(t)

	pool, err := relocation.NewPool(l.arn, origin+heapSize, 1)
	test.DemandSuccess(t, err)

	// the trampoline is created before the unsupported relocation fails
	img := simpleImage()
	farBranch(img)
	img.AddRela(1, 0x02000000, 1, 0xff, 0)

	_, err = module.LoadImage(img.Bytes(), l.heap, l.lnk, pool)
	expectCleanFailure(t, l, err, relocation.UnsupportedKind)
	test.ExpectEquality(t, pool.Count(relocation.Free), 1)
	test.ExpectEquality(t, pool.Slot(0).Instructions, [4]uint32{})

	// the slot is available to the next load
	img = simpleImage()
	farBranch(img)
	mod, err := module.LoadImage(img.Bytes(), l.heap, l.lnk, pool)
	test.DemandSuccess(t, err)
	test.ExpectEquality(t, pool.Count(relocation.Fixed), 1)
	test.ExpectSuccess(t, mod.Free())
}

func TestFailedLoadKeepsEarlierTrampolines(t *testing.T) {
	l := prepare(t)

	img := simpleImage()
	farBranch(img)
	mod, err := l.load(t, img)
	test.DemandSuccess(t, err)
	test.ExpectEquality(t, l.pool.Count(relocation.Fixed), 1)
	stub := l.pool.Slot(0)

	img = simpleImage()
	farBranch(img)
	img.AddRela(1, 0x02000000, 1, 0xff, 0)
	_, err = l.load(t, img)
	test.ExpectSuccess(t, curated.Has(err, relocation.UnsupportedKind))

	// only the trampoline of the failed load is removed
	test.ExpectEquality(t, l.pool.Count(relocation.Fixed), 1)
	test.ExpectEquality(t, l.pool.Slot(0), stub)
	test.ExpectEquality(t, l.pool.Slot(1).Status, relocation.Free)
	test.ExpectEquality(t, l.heap.Live(), 2)

	test.ExpectSuccess(t, mod.Free())
}

func TestFreeAfterBlockFailure(t *testing.T) {
	l := prepare(t)

	mod, err := l.load(t, simpleImage())
	test.DemandSuccess(t, err)

	// the text block has already gone but the data block is still released
	test.DemandSuccess(t, mod.Text().Free())
	err = mod.Free()
	test.ExpectSuccess(t, curated.Is(err, memory.DoubleFree))
	test.ExpectSuccess(t, mod.Data().Freed())
	test.ExpectEquality(t, l.heap.Live(), 0)
	test.ExpectEquality(t, l.heap.Available(), heapSize)
}
