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

package prefs

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// the command line stack allows preference values to be specified for the
// duration of a single program run without altering the preferences file. for
// example:
//
//	modloader LOAD -prefs "loader.trampolines::64; loader.log.echo::true" module.elf
//
// each call to PushCommandLineStack() adds a group. values are consumed from
// the top group by GetCommandLinePref(), usually from Disk.Load().
var (
	commandLineCrit  sync.Mutex
	commandLineStack []map[string]string
)

// SizeCommandLineStack returns the number of groups that have been added with
// PushCommandLineStack().
func SizeCommandLineStack() int {
	commandLineCrit.Lock()
	defer commandLineCrit.Unlock()
	return len(commandLineStack)
}

// PopCommandLineStack forgets the most recent group added by
// PushCommandLineStack().
//
// Returns the "unused" preferences of the group, sorted by key and in the same
// format accepted by PushCommandLineStack().
func PopCommandLineStack() string {
	commandLineCrit.Lock()
	defer commandLineCrit.Unlock()

	if len(commandLineStack) == 0 {
		return ""
	}

	popped := commandLineStack[len(commandLineStack)-1]
	commandLineStack = commandLineStack[:len(commandLineStack)-1]

	keys := make([]string, 0, len(popped))
	for key := range popped {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	s := make([]string, 0, len(keys))
	for _, key := range keys {
		s = append(s, fmt.Sprintf("%s::%s", key, popped[key]))
	}

	return strings.Join(s, "; ")
}

// PushCommandLineStack parses a preferences string and adds it as a new group.
// Key/value pairs are separated by semi-colons. Keys and values are separated
// by a double colon. Malformed pairs are ignored.
func PushCommandLineStack(prefs string) {
	cl := make(map[string]string)

	for _, p := range strings.Split(prefs, ";") {
		kv := strings.Split(p, "::")
		if len(kv) == 2 {
			cl[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
		}
	}

	commandLineCrit.Lock()
	defer commandLineCrit.Unlock()
	commandLineStack = append(commandLineStack, cl)
}

// GetCommandLinePref value from current group. The value is deleted when it is returned.
func GetCommandLinePref(key string) (bool, Value) {
	commandLineCrit.Lock()
	defer commandLineCrit.Unlock()

	if len(commandLineStack) == 0 {
		return false, nil
	}

	cl := commandLineStack[len(commandLineStack)-1]
	if v, ok := cl[key]; ok {
		delete(cl, key)
		return true, v
	}

	return false, nil
}
