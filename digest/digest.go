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

// Package digest produces a cryptographic hash of target memory. The hash can
// be used to compare the result of one load with a subsequent load. If the
// hash differs between two loads of the same image into the same layout then
// something has changed.
package digest

// Digest implementations should return a cryptographic hash in response to a
// Hash() request. Generation of the hash is achieved via another interface.
type Digest interface {
	Hash() string
	ResetDigest()
}
