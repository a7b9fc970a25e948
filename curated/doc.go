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

// Package curated is a helper package for the plain Go language error type.
// Curated errors implement the error interface.
//
// Curated errors are created with the Errorf() function. It takes a
// formatting pattern and placeholder values in the same way as fmt.Errorf()
// but the pattern is kept with the error so that the error can later be
// identified. Packages in modloader export their patterns as constants:
//
//	const OutOfRange = "reloc: %s: distance %#08x out of range at %#08x"
//
//	err := curated.Errorf(OutOfRange, kind, distance, target)
//	if curated.Is(err, OutOfRange) {
//		...
//	}
//
// The Has() function is similar but checks if a pattern occurs anywhere in
// the error chain. An error is added to the chain by passing it as one of the
// placeholder values:
//
//	e := curated.Errorf(relocation.PoolExhausted, 500)
//	f := curated.Errorf(module.LinkFailed, ".text", e)
//
//	curated.Has(f, relocation.PoolExhausted) // true
//	curated.Is(f, relocation.PoolExhausted)  // false
//
// Curated errors also take part in the standard library's errors.Is() and
// errors.As() functions. The Unwrap() method returns every error found among
// the placeholder values.
//
// The IsAny() function answers whether the error was created by
// curated.Errorf(). We think of curated errors as 'expected' errors: a module
// that cannot be linked is an expected outcome of loading, whereas an
// uncurated error probably indicates a bug in the loader itself.
//
// The Error() function normalises the message chain by removing duplicate
// adjacent parts. This means that a function can wrap an error with its own
// context without worrying whether the callee has already done so:
//
//	"module: module: overflow of .text block" -> "module: overflow of .text block"
package curated
