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

package digest

import (
	"crypto/sha1"
	"fmt"

	"github.com/jetsetilly/modloader/curated"
	"github.com/jetsetilly/modloader/memory"
)

// Sentinal error returned by Memory.Add().
const MemoryDigest = "digest: memory: %v"

// Memory is an implementation of the Digest interface for ranges of target
// memory. Each range added is chained onto the previous digest value.
//
// Note that the use of SHA-1 is fine for this application because this is not
// a cryptographic task.
type Memory struct {
	mem    memory.Access
	digest [sha1.Size]byte
	ranges int
}

// NewMemory is the preferred method of initialisation for the Memory type.
func NewMemory(mem memory.Access) *Memory {
	return &Memory{mem: mem}
}

// Hash implements digest.Digest interface.
func (dig *Memory) Hash() string {
	return fmt.Sprintf("%x", dig.digest)
}

// ResetDigest implements digest.Digest interface.
func (dig *Memory) ResetDigest() {
	for i := range dig.digest {
		dig.digest[i] = 0
	}
	dig.ranges = 0
}

// Ranges returns the number of ranges that have contributed to the digest.
func (dig *Memory) Ranges() int {
	return dig.ranges
}

// Add the contents of the memory range to the digest. The range is flushed
// from the data cache before it is read.
func (dig *Memory) Add(addr uint32, size uint32) error {
	dig.mem.FlushData(addr, size)
	b, err := dig.mem.ReadBytes(addr, size)
	if err != nil {
		return curated.Errorf(MemoryDigest, err)
	}

	// chain fingerprints by placing the previous value at the head of the data
	d := make([]byte, 0, len(dig.digest)+len(b))
	d = append(d, dig.digest[:]...)
	d = append(d, b...)
	dig.digest = sha1.Sum(d)
	dig.ranges++

	return nil
}

// AddBlocks adds the contents of each block in turn.
func (dig *Memory) AddBlocks(blks ...*memory.Block) error {
	for _, blk := range blks {
		if err := dig.Add(blk.Base(), blk.Size()); err != nil {
			return err
		}
	}
	return nil
}
