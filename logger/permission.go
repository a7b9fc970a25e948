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

package logger

import "sync/atomic"

// Permission implementations indicate whether the environment making a log
// request is allowed to create new log entries. Good for controlling when or if
// log entries are to be made
type Permission interface {
	AllowLogging() bool
}

type allow struct{}

func (_ allow) AllowLogging() bool {
	return true
}

// Allow indicates that the logging request should be allowed. A good default to
// use if a log entry should always be made.
var Allow Permission = allow{}

type verbose struct {
	on atomic.Bool
}

func (v *verbose) AllowLogging() bool {
	return v.on.Load()
}

// Verbose is a Permission for detailed entries (one per relocation, one per
// section copy). It is off by default and is turned on by SetVerbose().
var Verbose Permission = &verbose{}

// SetVerbose turns the Verbose permission on or off.
func SetVerbose(on bool) {
	Verbose.(*verbose).on.Store(on)
}
