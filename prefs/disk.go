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
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/jetsetilly/modloader/curated"
)

// DefaultPrefsFile is the default filename of the global preferences file.
const DefaultPrefsFile = "preferences"

// WarningBoilerPlate is written to the top of every preferences file.
const WarningBoilerPlate = "*** do not edit this file by hand while modloader is running ***"

// separator between key and value in the preferences file.
const keySep = " :: "

// Sentinal error patterns.
const (
	NoPrefsFile     = "prefs: file does not exist (%s)"
	UnknownPrefsKey = "prefs: unknown key (%s)"
	PrefsFileError  = "prefs: %v"
)

// Disk represents preference values as stored on disk. Preferences are added
// with Add() and are then loaded and saved together.
type Disk struct {
	path    string
	entries map[string]pref
}

func (dsk *Disk) String() string {
	s := strings.Builder{}
	for _, k := range dsk.keys() {
		s.WriteString(fmt.Sprintf("%s%s%s\n", k, keySep, dsk.entries[k]))
	}
	return s.String()
}

// NewDisk is the preferred method of initialisation for the Disk type.
func NewDisk(path string) (*Disk, error) {
	dsk := &Disk{
		path:    path,
		entries: make(map[string]pref),
	}
	return dsk, nil
}

// Add preference value to list of values to store/load from disk.
func (dsk *Disk) Add(key string, p pref) error {
	if strings.Contains(key, keySep) {
		return curated.Errorf(PrefsFileError, fmt.Errorf("illegal key name (%s)", key))
	}
	dsk.entries[key] = p
	return nil
}

func (dsk *Disk) keys() []string {
	keys := make([]string, 0, len(dsk.entries))
	for k := range dsk.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Reset all preference values to their zero value.
func (dsk *Disk) Reset() error {
	for _, v := range dsk.entries {
		if err := v.Reset(); err != nil {
			return curated.Errorf(PrefsFileError, err)
		}
	}
	return nil
}

// Save current preference values to disk. Values in the file that are not
// registered with this Disk instance are preserved.
func (dsk *Disk) Save() error {
	// load the existing file so that we don't lose values for keys that are
	// not part of this instance
	existing, err := dsk.read()
	if err != nil && !curated.Is(err, NoPrefsFile) {
		return err
	}

	for _, k := range dsk.keys() {
		existing[k] = dsk.entries[k].String()
	}

	keys := make([]string, 0, len(existing))
	for k := range existing {
		if !isDefunct(k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	f, err := os.Create(dsk.path)
	if err != nil {
		return curated.Errorf(PrefsFileError, err)
	}

	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "%s\n", WarningBoilerPlate)
	for _, k := range keys {
		fmt.Fprintf(w, "%s%s%s\n", k, keySep, existing[k])
	}

	if err := w.Flush(); err != nil {
		f.Close()
		return curated.Errorf(PrefsFileError, err)
	}

	if err := f.Close(); err != nil {
		return curated.Errorf(PrefsFileError, err)
	}

	return nil
}

// Load preference values from disk. Values on the command line stack (see
// PushCommandLineStack()) take priority over the values in the file.
//
// A missing file is not an error if the missing argument is true. In that case
// the current values are kept (subject to the command line stack).
func (dsk *Disk) Load(missing bool) error {
	values, err := dsk.read()
	if err != nil {
		if !curated.Is(err, NoPrefsFile) || !missing {
			return err
		}
	}

	for k, v := range values {
		if p, ok := dsk.entries[k]; ok {
			if err := p.Set(v); err != nil {
				return curated.Errorf(PrefsFileError, err)
			}
		}
	}

	for k, p := range dsk.entries {
		if ok, v := GetCommandLinePref(k); ok {
			if err := p.Set(v); err != nil {
				return curated.Errorf(PrefsFileError, err)
			}
		}
	}

	return nil
}

// read the preferences file into a map of strings.
func (dsk *Disk) read() (map[string]string, error) {
	values := make(map[string]string)

	f, err := os.Open(dsk.path)
	if err != nil {
		if os.IsNotExist(err) {
			return values, curated.Errorf(NoPrefsFile, dsk.path)
		}
		return values, curated.Errorf(PrefsFileError, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)

	// first line is the boilerplate warning
	if scanner.Scan() && scanner.Text() != WarningBoilerPlate {
		return values, curated.Errorf(PrefsFileError, fmt.Errorf("not a valid prefs file (%s)", dsk.path))
	}

	for scanner.Scan() {
		kv := strings.SplitN(scanner.Text(), keySep, 2)
		if len(kv) != 2 {
			continue
		}
		values[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
	}

	if err := scanner.Err(); err != nil {
		return values, curated.Errorf(PrefsFileError, err)
	}

	return values, nil
}
