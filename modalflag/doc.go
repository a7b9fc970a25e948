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

// Package modalflag is a wrapper for the flag package in the Go standard
// library. It provides a convenient method of handling program modes (and
// sub-modes) and allows different flags for each mode.
//
// Whereas with flag.FlagSet you call Parse() with the array of strings as the
// only argument, with modalflag you first call NewArgs() with the array of
// arguments and then Parse() with no arguments:
//
//	md = Modes{Output: os.Stdout}
//	md.NewArgs(os.Args[1:])
//	_, _ = md.Parse()
//
// Non-flag arguments can then be retrieved with the RemainingArgs() or GetArg()
// function.
//
// Flags are added in a similar way to the flag package:
//
//	echo := md.AddBool("log", false, "echo log entries to stdout")
//	origin := md.AddAddress("origin", 0x00800000, "base address of the arena")
//
// A mode is a special command line argument that puts the program into a
// different mode of operation, in the same way as the go command has build,
// test, etc. Sub-modes are added with AddSubModes(). The first sub-mode in the
// list is the default. All sub-mode comparisons are case insensitive.
//
//	md.AddSubModes("load", "info")
//	_, _ = md.Parse()
//	switch md.Mode() {
//	case "LOAD":
//		md.NewMode()
//		exports := md.AddString("exports", "", "exports table")
//		p, err := md.Parse()
//		...
//	case "INFO":
//		...
//	}
//
// Each call to Parse() after NewMode() processes the flags for that mode and
// checks for any further sub-modes. Modes can be chained as deep as required.
// The Path() function returns the series of modes that have been selected.
package modalflag
