package node

import (
	"sync/atomic"

	"github.com/ezrec/goosea/cpu"
)

// Assumption is the validity of a speculation. Once invalidated, it stays
// invalid.
type Assumption struct {
	broken atomic.Bool
}

// Valid reports whether the assumption still holds.
func (as *Assumption) Valid() bool {
	return !as.broken.Load()
}

// Invalidate breaks the assumption, and reports whether this call was the
// one that broke it.
func (as *Assumption) Invalidate() bool {
	return as.broken.CompareAndSwap(false, true)
}

// Speculation records that the instruction word at an address was Word
// when last fetched. It is immutable apart from its Assumption.
type Speculation struct {
	word cpu.Word
	*Assumption
}

func newSpeculation(word cpu.Word) *Speculation {
	return &Speculation{
		word:       word,
		Assumption: &Assumption{},
	}
}

// Word returns the fetched instruction word.
func (spec *Speculation) Word() cpu.Word {
	return spec.word
}
