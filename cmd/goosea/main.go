// Copyright 2025, Jason S. McMullan <jason.mcmullan@gmail.com>

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"

	"golang.org/x/sync/errgroup"

	"github.com/ezrec/goosea/config"
	"github.com/ezrec/goosea/emulator"
)

// run executes every session for the configured rounds, with the optimizer
// scanning the shared tree in the background.
func run(ctx context.Context, emu *emulator.Emulator, cfg *config.Config, sessions []*emulator.Session) (err error) {
	optCtx, stop := context.WithCancel(ctx)
	defer stop()

	var background errgroup.Group
	if !cfg.Optimizer.Disabled {
		background.Go(func() error {
			return emu.Optimizer.Run(optCtx)
		})
	}

	eg, ctx := errgroup.WithContext(ctx)
	for _, sess := range sessions {
		eg.Go(func() (err error) {
			for range cfg.Run.Rounds {
				err = sess.Run(ctx)
				if err != nil {
					err = fmt.Errorf("session %v: %w", sess.Id(), err)
					return
				}
			}
			return
		})
	}

	err = eg.Wait()
	stop()

	if berr := background.Wait(); err == nil {
		err = berr
	}

	return
}

// snapshot writes the register state of each session.
func snapshot(path string, sessions []*emulator.Session) (err error) {
	for n, sess := range sessions {
		name := path
		if len(sessions) > 1 {
			name = fmt.Sprintf("%v.%d", path, n)
		}

		var ouf *os.File
		ouf, err = os.Create(name)
		if err != nil {
			return
		}

		err = sess.Snapshot(ouf)
		if cerr := ouf.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return
		}
	}

	return
}

func main() {
	var compile string
	var configFile string
	var sessionCount int
	var rounds int
	var save string
	var input string
	var output string
	var snapshotFile string
	var verbose bool

	flag.StringVar(&compile, "c", "", ".s file to compile")
	flag.StringVar(&configFile, "config", "", "goosea.toml configuration")
	flag.IntVar(&sessionCount, "n", 0, "Concurrent sessions (overrides configuration)")
	flag.IntVar(&rounds, "r", 0, "Rounds per session (overrides configuration)")
	flag.StringVar(&save, "s", "", "Save the binary image here, do not execute")
	flag.StringVar(&input, "i", "-", "Console input of the first session")
	flag.StringVar(&output, "o", "-", "Console output")
	flag.StringVar(&snapshotFile, "snapshot", "", "Write register snapshots here after running")
	flag.BoolVar(&verbose, "v", false, "Verbose mode")

	flag.Parse()

	if flag.NArg() != 0 {
		log.Fatalf("%v: Unknown arguments: %v", os.Args[0], flag.Args())
	}

	if len(compile) == 0 {
		log.Fatalf("%v: -c is required", os.Args[0])
	}

	cfg := config.Default()
	if len(configFile) != 0 {
		var err error
		cfg, err = config.Load(configFile)
		if err != nil {
			log.Fatalf("%v: %v", configFile, err)
		}
	}
	if sessionCount > 0 {
		cfg.Run.Sessions = sessionCount
	}
	if rounds > 0 {
		cfg.Run.Rounds = rounds
	}
	if verbose {
		cfg.Run.Verbose = true
	}
	cfg.Apply()

	inf, err := os.Open(compile)
	if err != nil {
		log.Fatalf("%v: %v", compile, err)
	}
	prog, err := emulator.Assemble(inf)
	inf.Close()
	if err != nil {
		log.Fatalf("%v: %v", compile, err)
	}

	if len(save) != 0 {
		err = os.WriteFile(save, prog.Binary(), 0o644)
		if err != nil {
			log.Fatalf("%v: %v", save, err)
		}
		return
	}

	emu := emulator.NewEmulator(prog)
	emu.RamSize = cfg.Memory.Size
	emu.Optimizer.Threshold = cfg.Optimizer.Threshold
	emu.Optimizer.Interval = cfg.Optimizer.Interval
	emu.SetVerbose(cfg.Run.Verbose)

	var consoleIn io.Reader
	if input == "-" {
		consoleIn = os.Stdin
	} else {
		inf, err := os.Open(input)
		if err != nil {
			log.Fatalf("%v: %v", input, err)
		}
		defer inf.Close()
		consoleIn = inf
	}

	var consoleOut io.Writer
	if output == "-" {
		consoleOut = os.Stdout
	} else {
		ouf, err := os.Create(output)
		if err != nil {
			log.Fatalf("%v: %v", output, err)
		}
		defer ouf.Close()
		consoleOut = ouf
	}

	sessions := make([]*emulator.Session, cfg.Run.Sessions)
	for n := range sessions {
		sess, err := emu.NewSession()
		if err != nil {
			log.Fatal(err)
		}
		if n == 0 {
			sess.Console.Input = consoleIn
		}
		sess.Console.Output = consoleOut
		sessions[n] = sess
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	err = run(ctx, emu, cfg, sessions)
	if err != nil {
		log.Fatal(err)
	}

	if len(snapshotFile) != 0 {
		err = snapshot(snapshotFile, sessions)
		if err != nil {
			log.Fatalf("%v: %v", snapshotFile, err)
		}
	}

	if cfg.Run.Verbose {
		for _, sess := range sessions {
			log.Printf("goosea: session %v: %d ticks", sess.Id(), sess.Ticks)
		}
		stats := emu.Optimizer.Stats()
		log.Printf("goosea: optimizer: %d compiled, %d deoptimized, %d live", stats.Compiled, stats.Deoptimized, stats.Live)
		for _, fp := range emu.Optimizer.FastPaths() {
			log.Printf("goosea: fast path %v", fp)
		}
	}

	_ = closeAll(sessions)
}

// closeAll closes every session, logging each failure.
func closeAll(sessions []*emulator.Session) (err error) {
	var errs []error
	for _, sess := range sessions {
		cerr := sess.Close()
		if cerr != nil {
			log.Printf("goosea: session %v: %v", sess.Id(), cerr)
			errs = append(errs, cerr)
		}
	}

	err = errors.Join(errs...)
	return
}
