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

// Package test contains helper functions to remove common boilerplate to make
// testing easier.
//
// The ExpectFailure() and ExpectSuccess() functions test for failure and
// success under generic conditions. The documentation for those functions
// describe the currently supported types.
//
// It is worth describing how the "Expect" functions handle the nil type
// because it is not obvious. The nil type is considered a success and
// consequently will cause ExpectFailure to fail and ExpectSuccess to succeed.
// This is how errors usually work (nil to indicate no error) so we interpret
// nil in the same way.
//
// The "Demand" functions are similar to the "Expect" functions but a failed
// test is fatal. Use them when the result is needed for further testing, for
// example that a module loaded before inspecting its memory.
//
// The CompareWriter type implements the io.Writer interface and should be
// used to capture output. The CompareWriter.Compare() function can then be
// used to test for equality.
//
// The elfimage sub-package builds small PowerPC ELF images for use as test
// fixtures.
package test
