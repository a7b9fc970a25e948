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
	"strconv"
	"strings"
	"sync/atomic"
)

// Value represents the actual Go preference value.
type Value interface{}

// types support by the prefs system must implement the pref interface.
type pref interface {
	fmt.Stringer
	Set(value Value) error
	Get() Value
	Reset() error
}

// Bool implements a boolean type in the prefs system.
type Bool struct {
	pref
	value    atomic.Value // bool
	hookPre  func(value Value) error
	hookPost func(value Value) error
}

func (p *Bool) String() string {
	ov := p.value.Load()
	if ov == nil {
		return "false"
	}
	return fmt.Sprintf("%v", ov.(bool))
}

// Set new value to Bool type. New value must be of type bool or string. A
// string value of anything other than "true" (case insensitive) will set the
// value to false.
func (p *Bool) Set(v Value) error {
	// new value
	var nv bool
	switch v := v.(type) {
	case bool:
		nv = v
	case string:
		switch strings.ToLower(v) {
		case "true":
			nv = true
		default:
			nv = false
		}
	default:
		return fmt.Errorf("set: cannot convert %T to prefs.Bool", v)
	}

	if p.hookPre != nil {
		err := p.hookPre(nv)
		if err != nil {
			return err
		}
	}

	// store new value
	p.value.Store(nv)

	if p.hookPost != nil {
		err := p.hookPost(nv)
		if err != nil {
			return err
		}
	}

	return nil
}

// Get returns the raw pref value.
func (p *Bool) Get() Value {
	ov := p.value.Load()
	if ov == nil {
		return false
	}
	return ov.(bool)
}

// Reset sets the boolean value to false.
func (p *Bool) Reset() error {
	return p.Set(false)
}

// SetHookPre sets the callback function to be called just before the prefs
// value is updated. Note that even if the value hasn't changed, the callback
// will be executed.
//
// Not required but is useful in some contexts.
func (p *Bool) SetHookPre(f func(value Value) error) {
	p.hookPre = f
}

// SetHookPost sets the callback function to be called just after the prefs
// value is updated. Note that even if the value hasn't changed, the callback
// will be executed.
//
// Not required but is useful in some contexts.
func (p *Bool) SetHookPost(f func(value Value) error) {
	p.hookPost = f
}

// String implements a string type in the prefs system. The loader uses it for
// file paths.
type String struct {
	pref
	value    atomic.Value // string
	hookPre  func(value Value) error
	hookPost func(value Value) error
}

func (p *String) String() string {
	ov := p.value.Load()
	if ov == nil {
		return ""
	}
	return ov.(string)
}

// Set new value to String type. Values of any type are converted with the %v
// verb.
//
// The value is not changed if the pre hook returns an error.
func (p *String) Set(v Value) error {
	nv := fmt.Sprintf("%v", v)

	if p.hookPre != nil {
		if err := p.hookPre(nv); err != nil {
			return err
		}
	}

	p.value.Store(nv)

	if p.hookPost != nil {
		if err := p.hookPost(nv); err != nil {
			return err
		}
	}

	return nil
}

// Get returns the raw pref value.
func (p *String) Get() Value {
	return p.String()
}

// Reset sets the string value to the empty string.
func (p *String) Reset() error {
	return p.Set("")
}

// SetHookPre sets the callback function to be called just before the value
// is updated. The callback is called even if the value has not changed.
func (p *String) SetHookPre(f func(value Value) error) {
	p.hookPre = f
}

// SetHookPost sets the callback function to be called just after the value
// is updated.
func (p *String) SetHookPost(f func(value Value) error) {
	p.hookPost = f
}

// Int implements an integer type in the prefs system.
type Int struct {
	pref
	value    atomic.Value // int
	hookPre  func(value Value) error
	hookPost func(value Value) error
}

func (p *Int) String() string {
	ov := p.value.Load()
	if ov == nil {
		return "0"
	}
	return fmt.Sprintf("%d", ov.(int))
}

// Set new value to Int type. New value can be an int or string. Strings may
// use a base prefix (0x, 0o or 0b).
func (p *Int) Set(v Value) error {
	// new value
	var nv int
	switch v := v.(type) {
	case int64:
		nv = int(v)
	case int32:
		nv = int(v)
	case int:
		nv = v
	case uint32:
		nv = int(v)
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 0, 64)
		if err != nil {
			return fmt.Errorf("set: cannot convert %T to prefs.Int: %w", v, err)
		}
		nv = int(n)
	default:
		return fmt.Errorf("set: cannot convert %T to prefs.Int", v)
	}

	if p.hookPre != nil {
		err := p.hookPre(nv)
		if err != nil {
			return err
		}
	}

	// update stored value
	p.value.Store(nv)

	if p.hookPost != nil {
		err := p.hookPost(nv)
		if err != nil {
			return err
		}
	}

	return nil
}

// Get returns the raw pref value.
func (p *Int) Get() Value {
	ov := p.value.Load()
	if ov == nil {
		return 0
	}
	return ov.(int)
}

// Reset sets the int value to zero.
func (p *Int) Reset() error {
	return p.Set(0)
}

// SetHookPre sets the callback function to be called just before the prefs
// value is updated. Note that even if the value hasn't changed, the callback
// will be executed.
//
// Not required but is useful in some contexts.
func (p *Int) SetHookPre(f func(value Value) error) {
	p.hookPre = f
}

// SetHookPost sets the callback function to be called just after the prefs
// value is updated. Note that even if the value hasn't changed, the callback
// will be executed.
//
// Not required but is useful in some contexts.
func (p *Int) SetHookPost(f func(value Value) error) {
	p.hookPost = f
}


// Address implements a 32bit address type in the prefs system. It behaves
// like Int but is always written in hexadecimal.
type Address struct {
	Int
}

func (p *Address) String() string {
	return fmt.Sprintf("%#08x", p.Uint32())
}

// Uint32 returns the address value as a uint32.
func (p *Address) Uint32() uint32 {
	return uint32(p.Get().(int))
}
