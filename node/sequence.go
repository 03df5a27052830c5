package node

import (
	"context"
	"iter"
	"slices"
)

// Sequence executes a fixed block of instructions in order.
type Sequence struct {
	children []*Instruction
}

var _ Node = (*Sequence)(nil)

// NewSequence creates a sequence of children. The order is fixed.
func NewSequence(children ...*Instruction) (seq *Sequence) {
	seq = &Sequence{
		children: slices.Clone(children),
	}

	return
}

func (seq *Sequence) node() {}

// Kind returns KIND_SEQUENCE.
func (seq *Sequence) Kind() Kind {
	return KIND_SEQUENCE
}

// Len returns the number of children.
func (seq *Sequence) Len() int {
	return len(seq.children)
}

// Children iterates over the children in execution order.
func (seq *Sequence) Children() iter.Seq2[int, *Instruction] {
	return slices.All(seq.children)
}

// Execute runs every child once, in order, stopping at the first failure.
// Effects of the children that already ran are kept.
func (seq *Sequence) Execute(ctx context.Context) (err error) {
	for _, child := range seq.children {
		err = child.Execute(ctx)
		if err != nil {
			return
		}
	}

	return
}
