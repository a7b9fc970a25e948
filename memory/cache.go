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

package memory

// LineSize is the size of a cache line in bytes.
const LineSize = 32

type line struct {
	// the data cache holds writes that have not reached memory
	dirty bool

	// the instruction cache holds an out of date copy of the line
	stale bool
}

// cache is the state of every line in an arena. indexes are relative to the
// origin of the arena, which is always line aligned.
type cache []line

func newCache(size uint32) cache {
	return make(cache, (size+LineSize-1)/LineSize)
}

// lines returns the first and last line touched by a range. size must not be
// zero.
func (c cache) lines(idx uint32, size uint32) (uint32, uint32) {
	return idx / LineSize, (idx + size - 1) / LineSize
}

func (c cache) write(idx uint32, size uint32) {
	if size == 0 {
		return
	}
	first, last := c.lines(idx, size)
	for i := first; i <= last; i++ {
		c[i].dirty = true
		c[i].stale = true
	}
}

func (c cache) flush(idx uint32, size uint32) {
	first, last := c.lines(idx, size)
	for i := first; i <= last; i++ {
		c[i].dirty = false
	}
}

func (c cache) invalidate(idx uint32, size uint32) {
	first, last := c.lines(idx, size)
	for i := first; i <= last; i++ {
		if !c[i].dirty {
			c[i].stale = false
		}
	}
}

func (c cache) coherent(idx uint32, size uint32) bool {
	if size == 0 {
		return true
	}
	first, last := c.lines(idx, size)
	for i := first; i <= last; i++ {
		if c[i].dirty || c[i].stale {
			return false
		}
	}
	return true
}
