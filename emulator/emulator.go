// Copyright 2025, Jason S. McMullan <jason.mcmullan@gmail.com>

package emulator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log"
	"maps"

	"github.com/ezrec/goosea/cpu"
	"github.com/ezrec/goosea/internal"
	gio "github.com/ezrec/goosea/io"
	"github.com/ezrec/goosea/node"
	"github.com/ezrec/goosea/optimize"
	"github.com/ezrec/goosea/session"
)

const (
	XLEN     = 64                       // Register width in bits.
	ROM_BASE = cpu.Address(0x2000_0000) // Read-only copy of the program image.
)

var _emulator_defines = map[string]string{
	"XLEN":     fmt.Sprintf("%v", XLEN),
	"ROM_BASE": fmt.Sprintf("%#x", uint64(ROM_BASE)),
}

// Emulator runs sessions of one program over one shared execution tree.
type Emulator struct {
	Verbose bool         // If set, enables verbose logging.
	RamSize uint64       // RAM of each session's CPU; 0 is cpu.RAM_SIZE.
	Program *cpu.Program // Program listing the tree was built from.

	Registry  *session.Registry   // Open sessions.
	Optimizer *optimize.Optimizer // Profiles the tree.

	image []byte // Program image, shared by every session's ROM.
	tree  *node.Sequence
	nodes map[cpu.Address]*node.Instruction
}

// Defines returns an iterator over the defines available to programs.
func Defines() iter.Seq2[string, string] {
	return internal.IterSeq2Concat(maps.All(_emulator_defines),
		(&cpu.Cpu{}).Defines(),
		(&gio.Tape{}).Defines(),
	)
}

// Assemble parses source with the emulator defines.
func Assemble(source io.Reader) (prog *cpu.Program, err error) {
	asm := &cpu.Assembler{}
	asm.PredefineAll(Defines())

	prog, err = asm.Parse(source)
	return
}

// Build creates the execution tree of prog: one instruction node per
// executable word, in program order, resolving sessions with accessor.
func Build(prog *cpu.Program, accessor node.Accessor) (tree *node.Sequence) {
	var children []*node.Instruction
	for addr := range prog.Instructions() {
		children = append(children, node.NewInstruction(addr, accessor))
	}

	tree = node.NewSequence(children...)
	return
}

// NewEmulator creates an emulator for prog, and builds its tree.
func NewEmulator(prog *cpu.Program) (emu *Emulator) {
	emu = &Emulator{
		Program:   prog,
		Registry:  session.NewRegistry(),
		Optimizer: optimize.NewOptimizer(),
		image:     prog.Binary(),
		nodes:     make(map[cpu.Address]*node.Instruction),
	}

	emu.tree = Build(prog, emu.Registry)
	for addr, in := range emu.Nodes() {
		emu.nodes[addr] = in
		emu.Optimizer.Watch(in)
	}

	return
}

// SetVerbose sets the verbosity of the emulator and its components.
func (emu *Emulator) SetVerbose(verbose bool) {
	emu.Verbose = verbose
	emu.Registry.Verbose = verbose
	emu.Optimizer.Verbose = verbose
	for _, in := range emu.nodes {
		in.Verbose = verbose
	}
}

// Tree returns the shared execution tree.
func (emu *Emulator) Tree() *node.Sequence {
	return emu.tree
}

// Nodes iterates over the instruction nodes of the tree, in order.
func (emu *Emulator) Nodes() iter.Seq2[cpu.Address, *node.Instruction] {
	return func(yield func(cpu.Address, *node.Instruction) bool) {
		for _, in := range emu.tree.Children() {
			if !yield(in.Address(), in) {
				return
			}
		}
	}
}

// Node returns the instruction node bound to addr.
func (emu *Emulator) Node(addr cpu.Address) (in *node.Instruction, ok bool) {
	in, ok = emu.nodes[addr]
	return
}

// LineNo returns the source line of the word at addr, or 0.
func (emu *Emulator) LineNo(addr cpu.Address) int {
	dbg := emu.Program.Debug(addr)
	if dbg.Opcode == nil {
		return 0
	}
	return dbg.LineNo
}

// runtimeError locates err in the program listing.
func (emu *Emulator) runtimeError(addr cpu.Address, err error) error {
	var en *node.ErrNode
	if errors.As(err, &en) {
		addr = en.Address
	}

	return &ErrRuntime{
		Address: addr,
		LineNo:  emu.LineNo(addr),
		Err:     err,
	}
}

// Session is one run of the program, with its own CPU.
type Session struct {
	*cpu.Cpu
	Rom gio.Rom // Program image at ROM_BASE, from the program origin.

	emu *Emulator
	ec  *session.ExecutionContext
}

// NewSession creates a CPU loaded with the program, and opens a session
// for it.
func (emu *Emulator) NewSession() (sess *Session, err error) {
	cp := cpu.NewCpu(emu.RamSize)
	cp.Verbose = emu.Verbose

	err = emu.Program.Load(cp.Memory)
	if err != nil {
		return
	}
	cp.Pc = emu.Program.Origin()

	sess = &Session{
		Cpu: cp,
		Rom: gio.Rom{Data: emu.image},
		emu: emu,
	}

	romSize := (uint64(len(emu.image)) + cpu.PAGE_MASK) &^ cpu.PAGE_MASK
	err = cp.Memory.Attach(ROM_BASE, max(romSize, cpu.PAGE_SIZE), &sess.Rom)
	if err != nil {
		sess = nil
		return
	}

	sess.ec = emu.Registry.Open(cp)

	if emu.Verbose {
		log.Printf("emulator: session %v", sess.ec)
	}

	return
}

// Id returns the session's identifier.
func (sess *Session) Id() string {
	return sess.ec.String()
}

// Run executes the shared tree once in this session.
func (sess *Session) Run(ctx context.Context) (err error) {
	err = ctx.Err()
	if err != nil {
		return
	}

	ctx = sess.emu.Registry.Bind(ctx, sess.ec)

	err = sess.emu.tree.Execute(ctx)
	if err != nil {
		err = sess.emu.runtimeError(sess.Cpu.Pc, err)
	}

	return
}

// Step executes the instruction at addr without the tree.
func (sess *Session) Step(addr cpu.Address) (err error) {
	err = sess.Cpu.TickAt(addr)
	if err != nil {
		err = sess.emu.runtimeError(addr, err)
	}

	return
}

// Close ends the session.
func (sess *Session) Close() (err error) {
	return sess.emu.Registry.Close(sess.ec)
}
