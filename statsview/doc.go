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

// Package statsview offers runtime statistics for the modloader process over
// a local HTTP server. The server is only available when the program is built
// with the statsview build tag. Without the tag, Launch() does nothing and
// Available() returns false.
//
// Underlying functionality is provided by "github.com/go-echarts/statsview".
// After launch, graphical statistics will be viewable at:
//
//	localhost:12700/debug/statsview
//
// And standard Go pprof statistics are available at:
//
//	localhost:12700/debug/pprof/
//
// Statistics are useful when loading many modules in succession, to see how
// the heap and goroutine counts behave as sessions are created and unloaded.
package statsview
