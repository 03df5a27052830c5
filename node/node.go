package node

import (
	"context"
	"fmt"

	"github.com/ezrec/goosea/cpu"
)

// Kind discriminates the node variants.
type Kind int

const (
	KIND_INSTRUCTION = Kind(0) // *Instruction
	KIND_SEQUENCE    = Kind(1) // *Sequence
)

var _kind_names = map[Kind]string{
	KIND_INSTRUCTION: "instruction",
	KIND_SEQUENCE:    "sequence",
}

func (kind Kind) String() string {
	name, ok := _kind_names[kind]
	if !ok {
		return fmt.Sprintf("Kind(%d)", int(kind))
	}
	return name
}

// Node is an element of an execution tree. The set of nodes is closed:
// only *Instruction and *Sequence implement it.
type Node interface {
	Kind() Kind
	Execute(ctx context.Context) error

	node()
}

// Model is the CPU model a tree drives.
type Model interface {
	// Fetch returns the instruction word at addr without side effects.
	Fetch(addr cpu.Address) (cpu.Word, error)
	// Tick executes word as the instruction at addr.
	Tick(addr cpu.Address, word cpu.Word) error
}

// Context exposes the CPU model of one session.
type Context interface {
	Model() Model
}

// Accessor resolves the Context of the session executing ctx.
type Accessor interface {
	Lookup(ctx context.Context) (Context, error)
}

// AccessorFunc adapts a function to an Accessor.
type AccessorFunc func(ctx context.Context) (Context, error)

func (fn AccessorFunc) Lookup(ctx context.Context) (Context, error) {
	return fn(ctx)
}

// DecodedModel is a Model that can also execute pre-decoded instructions.
type DecodedModel interface {
	Model
	// TickDecoded executes code, decoded as m, as the instruction at addr.
	TickDecoded(addr cpu.Address, code cpu.Code, m *cpu.Mnemonic) error
}

// Observer is told when an instruction's speculation no longer matches
// memory. It is called before the replacement speculation is stored. The
// first fill of a node is reported with a nil stale speculation.
type Observer interface {
	Invalidated(addr cpu.Address, stale *Speculation)
}

// Compiler supplies fast paths compiled from speculations.
type Compiler interface {
	// Compiled returns the decoded form of spec, if it was compiled and is
	// still valid.
	Compiled(addr cpu.Address, spec *Speculation) (code cpu.Code, m *cpu.Mnemonic, ok bool)
}
