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

package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bradleyjkemp/memviz"
	"github.com/jetsetilly/modloader/elfreader"
	"github.com/jetsetilly/modloader/environment"
	"github.com/jetsetilly/modloader/logger"
	"github.com/jetsetilly/modloader/modalflag"
	"github.com/jetsetilly/modloader/module"
	"github.com/jetsetilly/modloader/paths"
	"github.com/jetsetilly/modloader/performance"
	"github.com/jetsetilly/modloader/prefs"
	"github.com/jetsetilly/modloader/relocation"
	"github.com/jetsetilly/modloader/statsview"
	"github.com/jetsetilly/modloader/version"
)

func main() {
	os.Exit(launch(os.Stdout, os.Args[1:]))
}

// launch parses the arguments and runs the selected mode. the return value
// is the exit status of the program.
func launch(output io.Writer, args []string) int {
	md := &modalflag.Modes{Output: output}
	md.NewArgs(args)
	md.NewMode()
	md.AddSubModes("LOAD", "INFO", "VERSION")

	p, err := md.Parse()
	switch p {
	case modalflag.ParseHelp:
		return 0

	case modalflag.ParseError:
		fmt.Fprintf(output, "* error: %v\n", err)
		return 10
	}

	switch md.Mode() {
	case "LOAD":
		err = load(md)

	case "INFO":
		err = info(md)

	case "VERSION":
		err = showVersion(md)
	}

	if err != nil {
		fmt.Fprintf(output, "* error in %s mode: %s\n", md.String(), err)
		return 20
	}

	return 0
}

func load(md *modalflag.Modes) error {
	md.NewMode()

	exports := md.AddString("exports", "", "file describing the libraries available to the module (overrides preferences)")
	origin := md.AddAddress("origin", 0, "origin of the arena (overrides preferences)")
	log := md.AddBool("log", false, "echo debugging log to stdout")
	verbose := md.AddBool("verbose", false, "include verbose entries in the log")
	viz := md.AddString("memviz", "", "write a graph of the pending imports to file (AUTO for a unique name)")
	stats := md.AddBool("statsview", false, fmt.Sprintf("run stats server (%s)", statsview.Address))
	cmdlinePrefs := md.AddString("prefs", "", "preferences for this run (key::value; ...)")
	profile := md.AddString("profile", "none", "create profiling files for the load (CPU, MEM, TRACE)")

	p, err := md.Parse()
	if err != nil || p != modalflag.ParseContinue {
		return err
	}

	if *log {
		logger.SetEcho(md.Output)
	} else {
		logger.SetEcho(nil)
	}
	logger.SetVerbose(*verbose)

	if *stats {
		if !statsview.Available() {
			return fmt.Errorf("stats server not available in this build")
		}
		statsview.Launch(md.Output)
	}

	switch len(md.RemainingArgs()) {
	case 0:
		return fmt.Errorf("module file required for %s mode", md)
	case 1:
	default:
		return fmt.Errorf("too many arguments for %s mode", md)
	}

	prf, err := performance.ParseProfile(*profile)
	if err != nil {
		return err
	}

	if *cmdlinePrefs != "" {
		prefs.PushCommandLineStack(*cmdlinePrefs)
		defer prefs.PopCommandLineStack()
	}

	pr, err := environment.NewPreferences()
	if err != nil {
		return err
	}
	if *origin != 0 {
		if err := pr.ArenaOrigin.Set(*origin); err != nil {
			return err
		}
	}
	if *exports != "" {
		if err := pr.Exports.Set(*exports); err != nil {
			return err
		}
	}

	env, err := environment.NewEnvironment(pr)
	if err != nil {
		return err
	}
	defer env.Close()

	image, err := os.ReadFile(md.GetArg(0))
	if err != nil {
		return err
	}

	var sess *environment.Session
	err = performance.RunProfiler(prf, "load", func() error {
		var err error
		sess, err = env.LoadModule(image)
		return err
	})
	if err != nil {
		return err
	}

	mod := sess.Module
	start, end := mod.AddressRange()
	fmt.Fprintf(md.Output, "entrypoint: %08x\n", mod.Entrypoint())
	fmt.Fprintf(md.Output, "address range: %08x to %08x\n", start, end)
	fmt.Fprintf(md.Output, "text: %s\n", mod.Text())
	fmt.Fprintf(md.Output, "data: %s\n", mod.Data())
	fmt.Fprintf(md.Output, "imports: %d (%d libraries acquired)\n", len(mod.PendingImports()), sess.Libraries())
	for _, rec := range mod.PendingImports() {
		fmt.Fprintf(md.Output, "  %s\n", rec)
	}
	fmt.Fprintf(md.Output, "trampolines: %s\n", env.Pool)
	if hash, err := sess.Digest(); err == nil {
		fmt.Fprintf(md.Output, "digest: %s\n", hash)
	}
	if n := mod.Unimplemented(); n > 0 {
		fmt.Fprintf(md.Output, "unimplemented relocations: %d\n", n)
	}

	if *viz != "" {
		fn := *viz
		if strings.ToUpper(fn) == "AUTO" {
			fn = paths.UniqueFilename("memviz", strings.TrimSuffix(filepath.Base(md.GetArg(0)), filepath.Ext(md.GetArg(0))))
			fn = fmt.Sprintf("%s.dot", fn)
		}
		if err := writeMemviz(fn, mod.PendingImports()); err != nil {
			return err
		}
		fmt.Fprintf(md.Output, "memviz graph written to %s\n", fn)
	}

	return sess.Unload()
}

func writeMemviz(fn string, records []relocation.Record) error {
	f, err := os.Create(fn)
	if err != nil {
		return err
	}
	defer f.Close()
	memviz.Map(f, &records)
	return nil
}

func showVersion(md *modalflag.Modes) error {
	md.NewMode()

	revision := md.AddBool("revision", false, "display revision information")

	p, err := md.Parse()
	if err != nil || p != modalflag.ParseContinue {
		return err
	}

	v, r, _ := version.Version()
	if *revision {
		fmt.Fprintln(md.Output, r)
	} else {
		fmt.Fprintln(md.Output, v)
	}

	return nil
}

func info(md *modalflag.Modes) error {
	md.NewMode()

	p, err := md.Parse()
	if err != nil || p != modalflag.ParseContinue {
		return err
	}

	switch len(md.RemainingArgs()) {
	case 0:
		return fmt.Errorf("module file required for %s mode", md)
	case 1:
	default:
		return fmt.Errorf("too many arguments for %s mode", md)
	}

	image, err := os.ReadFile(md.GetArg(0))
	if err != nil {
		return err
	}

	f, err := elfreader.Open(image)
	if err != nil {
		return err
	}

	fmt.Fprintf(md.Output, "entry: %08x\n", f.Entry)
	for _, sec := range f.Sections {
		switch {
		case sec.Type == elfreader.SHT_RPL_IMPORTS:
			imp, err := relocation.ParseImportSection(sec.Name)
			if err != nil {
				fmt.Fprintf(md.Output, "import: %s (%v)\n", sec.Name, err)
			} else {
				fmt.Fprintf(md.Output, "import: %s\n", imp)
			}
		case sec.Loadable():
			r, err := module.Classify(sec.Addr)
			if err != nil {
				fmt.Fprintf(md.Output, "%s: %s (%v)\n", r, sec, err)
			} else {
				fmt.Fprintf(md.Output, "%s: %s\n", r, sec)
			}
		}
	}
	fmt.Fprintf(md.Output, "size of module: %d bytes\n", module.SizeOfModule(f))

	return nil
}
