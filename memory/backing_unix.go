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

//go:build unix

package memory

import (
	"os"

	"golang.org/x/sys/unix"
)

// allocBacking creates an anonymous private mapping for the arena. the mapping
// is not executable because the arena is never executed by the host.
func allocBacking(size int) ([]byte, func([]byte) error, error) {
	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, nil, os.NewSyscallError("mmap", err)
	}

	release := func(b []byte) error {
		if err := unix.Munmap(b); err != nil {
			return os.NewSyscallError("munmap", err)
		}
		return nil
	}

	return data, release, nil
}
