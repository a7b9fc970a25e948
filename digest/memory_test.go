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

package digest_test

import (
	"testing"

	"github.com/jetsetilly/modloader/curated"
	"github.com/jetsetilly/modloader/digest"
	"github.com/jetsetilly/modloader/memory"
	"github.com/jetsetilly/modloader/test"
)

func TestMemoryDigest(t *testing.T) {
	arn, err := memory.NewArena(0x00800000, 0x1000)
	test.DemandSuccess(t, err)
	t.Cleanup(func() { arn.Close() })

	var dig digest.Digest
	mem := digest.NewMemory(arn)
	dig = mem

	test.DemandSuccess(t, mem.Add(0x00800000, 0x100))
	empty := dig.Hash()

	// same contents produce the same hash
	dig.ResetDigest()
	test.ExpectEquality(t, mem.Ranges(), 0)
	test.DemandSuccess(t, mem.Add(0x00800000, 0x100))
	test.ExpectEquality(t, dig.Hash(), empty)
	test.ExpectEquality(t, mem.Ranges(), 1)

	// a change that is still in the data cache is seen by the digest
	test.DemandSuccess(t, arn.Write32(0x00800010, 0xdeadbeef))
	dig.ResetDigest()
	test.DemandSuccess(t, mem.Add(0x00800000, 0x100))
	test.ExpectInequality(t, dig.Hash(), empty)

	// chaining means the order of ranges matters
	dig.ResetDigest()
	test.DemandSuccess(t, mem.Add(0x00800000, 0x80))
	test.DemandSuccess(t, mem.Add(0x00800080, 0x80))
	forward := dig.Hash()
	dig.ResetDigest()
	test.DemandSuccess(t, mem.Add(0x00800080, 0x80))
	test.DemandSuccess(t, mem.Add(0x00800000, 0x80))
	test.ExpectInequality(t, dig.Hash(), forward)

	err = mem.Add(0x00800f00, 0x200)
	test.ExpectSuccess(t, curated.Is(err, digest.MemoryDigest))
}

func TestBlockDigest(t *testing.T) {
	arn, err := memory.NewArena(0x00800000, 0x1000)
	test.DemandSuccess(t, err)
	t.Cleanup(func() { arn.Close() })

	hp, err := memory.NewHeap(arn, arn.Origin(), arn.Size())
	test.DemandSuccess(t, err)

	a, err := hp.Alloc(0x20, 4)
	test.DemandSuccess(t, err)
	b, err := hp.Alloc(0x40, 4)
	test.DemandSuccess(t, err)

	mem := digest.NewMemory(arn)
	test.DemandSuccess(t, mem.AddBlocks(a, b))
	test.ExpectEquality(t, mem.Ranges(), 2)

	other := digest.NewMemory(arn)
	test.DemandSuccess(t, other.Add(a.Base(), a.Size()))
	test.DemandSuccess(t, other.Add(b.Base(), b.Size()))
	test.ExpectEquality(t, mem.Hash(), other.Hash())
}
