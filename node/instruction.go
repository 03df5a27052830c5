package node

import (
	"context"
	"log"
	"sync"
	"sync/atomic"

	"github.com/ezrec/goosea/cpu"
)

// Stats are the activity counters of an Instruction.
type Stats struct {
	Executions    uint64 // Calls to Execute.
	Fetches       uint64 // Successful fetches.
	Writes        uint64 // Speculations stored.
	Invalidations uint64 // Speculations invalidated.
	Compiled      uint64 // Ticks run from a compiled fast path.
}

// Instruction executes the instruction at one fixed address, always using
// the word currently in memory there.
type Instruction struct {
	Verbose  bool     // If set, logs speculation changes.
	Accessor Accessor // Resolves the session's CPU model.
	Observer Observer // Optional; notified of invalidations.
	Compiler Compiler // Optional; supplies fast paths.

	address cpu.Address

	mu    sync.Mutex                  // Serialises writers of cache.
	cache atomic.Pointer[Speculation] // nil until the first fetch.

	executions    atomic.Uint64
	fetches       atomic.Uint64
	writes        atomic.Uint64
	invalidations atomic.Uint64
	compiled      atomic.Uint64
}

var _ Node = (*Instruction)(nil)

// NewInstruction creates the node bound to addr.
func NewInstruction(addr cpu.Address, accessor Accessor) (in *Instruction) {
	in = &Instruction{
		Accessor: accessor,
		address:  addr,
	}

	return
}

func (in *Instruction) node() {}

// Kind returns KIND_INSTRUCTION.
func (in *Instruction) Kind() Kind {
	return KIND_INSTRUCTION
}

// Address returns the address the node is bound to.
func (in *Instruction) Address() cpu.Address {
	return in.address
}

// Speculation returns the current speculation, or nil if the node has
// never fetched.
func (in *Instruction) Speculation() *Speculation {
	return in.cache.Load()
}

// Cached returns the cached instruction word.
func (in *Instruction) Cached() (word cpu.Word, ok bool) {
	spec := in.cache.Load()
	if spec == nil {
		return
	}

	word = spec.Word()
	ok = true
	return
}

// Stats returns a copy of the node's counters.
func (in *Instruction) Stats() Stats {
	return Stats{
		Executions:    in.executions.Load(),
		Fetches:       in.fetches.Load(),
		Writes:        in.writes.Load(),
		Invalidations: in.invalidations.Load(),
		Compiled:      in.compiled.Load(),
	}
}

// Execute fetches the word at the node's address in the session resolved
// from ctx, refreshes the speculation if the word changed, and ticks the
// session's CPU model with it. A valid fast path for the speculation is
// used in place of the word when the model can run it.
func (in *Instruction) Execute(ctx context.Context) (err error) {
	in.executions.Add(1)

	defer func() {
		if err != nil {
			err = &ErrNode{Address: in.address, Err: err}
		}
	}()

	if in.Accessor == nil {
		err = ErrAccessorMissing
		return
	}

	ec, err := in.Accessor.Lookup(ctx)
	if err != nil {
		return
	}
	model := ec.Model()

	current, err := model.Fetch(in.address)
	if err != nil {
		return
	}
	in.fetches.Add(1)

	spec := in.cache.Load()
	if spec == nil || spec.Word() != current {
		spec = in.refresh(spec, current)
	}

	if in.Compiler != nil {
		if dm, ok := model.(DecodedModel); ok {
			if code, m, ok := in.Compiler.Compiled(in.address, spec); ok {
				in.compiled.Add(1)
				err = dm.TickDecoded(in.address, code, m)
				return
			}
		}
	}

	err = model.Tick(in.address, spec.Word())
	return
}

// refresh replaces the stale speculation with one for current. The stale
// speculation is invalidated before anything is stored.
func (in *Instruction) refresh(stale *Speculation, current cpu.Word) (spec *Speculation) {
	if stale != nil {
		in.invalidate(stale, current)
	}

	in.mu.Lock()
	defer in.mu.Unlock()

	spec = in.cache.Load()
	if spec != nil && spec.Word() == current {
		// A racing writer already stored it.
		return
	}

	// A racing writer may have stored a different word since, or this is
	// the first fill.
	in.invalidate(spec, current)

	spec = newSpeculation(current)
	in.cache.Store(spec)
	in.writes.Add(1)

	return
}

// invalidate breaks the assumption of stale, once, and notifies the
// Observer. A nil stale is the first fill, which has no assumption to break.
func (in *Instruction) invalidate(stale *Speculation, current cpu.Word) {
	if stale != nil {
		if !stale.Invalidate() {
			return
		}

		in.invalidations.Add(1)

		if in.Verbose {
			log.Printf("node: 0x%x: 0x%08x -> 0x%08x", uint64(in.address), uint32(stale.Word()), uint32(current))
		}
	}

	if in.Observer != nil {
		in.Observer.Invalidated(in.address, stale)
	}
}
