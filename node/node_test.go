package node

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/ezrec/goosea/cpu"
)

type tick struct {
	addr cpu.Address
	word cpu.Word
}

// fakeModel is a word-addressed CPU model that records its activity. It
// is its own Context.
type fakeModel struct {
	mu      sync.Mutex
	memory  map[cpu.Address]cpu.Word
	fetches int
	ticks   []tick
	tickErr error
}

func newFakeModel() *fakeModel {
	return &fakeModel{
		memory: map[cpu.Address]cpu.Word{},
	}
}

func (fm *fakeModel) Model() Model {
	return fm
}

func (fm *fakeModel) Fetch(addr cpu.Address) (word cpu.Word, err error) {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	fm.fetches++
	word, ok := fm.memory[addr]
	if !ok {
		err = cpu.ErrFetchFault
	}
	return
}

func (fm *fakeModel) Tick(addr cpu.Address, word cpu.Word) (err error) {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	if fm.tickErr != nil {
		return fm.tickErr
	}

	fm.ticks = append(fm.ticks, tick{addr, word})
	return
}

func (fm *fakeModel) set(addr cpu.Address, word cpu.Word) {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	fm.memory[addr] = word
}

func (fm *fakeModel) ticked() []tick {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	return slices.Clone(fm.ticks)
}

// staticAccessor always resolves to the same context.
func staticAccessor(ec Context) Accessor {
	return AccessorFunc(func(ctx context.Context) (Context, error) {
		return ec, nil
	})
}

type modelKey struct{}

var errUnbound = errors.New("unbound")

// keyAccessor resolves the context stored in ctx by withModel.
var keyAccessor = AccessorFunc(func(ctx context.Context) (Context, error) {
	ec, ok := ctx.Value(modelKey{}).(Context)
	if !ok {
		return nil, errUnbound
	}
	return ec, nil
})

func withModel(ctx context.Context, ec Context) context.Context {
	return context.WithValue(ctx, modelKey{}, ec)
}

// recorder is an Observer that records invalidations.
type recorder struct {
	mu    sync.Mutex
	fills int // First fill notifications.
	stale []*Speculation
	cache []*Speculation // Node speculation at notification time.
	node  *Instruction
}

func (rec *recorder) Invalidated(addr cpu.Address, stale *Speculation) {
	rec.mu.Lock()
	defer rec.mu.Unlock()

	if stale == nil {
		rec.fills++
		return
	}

	rec.stale = append(rec.stale, stale)
	if rec.node != nil {
		rec.cache = append(rec.cache, rec.node.Speculation())
	}
}

// decodedModel is a fakeModel that also runs pre-decoded instructions.
type decodedModel struct {
	*fakeModel
	decoded []tick
}

func (dm *decodedModel) Model() Model {
	return dm
}

func (dm *decodedModel) TickDecoded(addr cpu.Address, code cpu.Code, m *cpu.Mnemonic) (err error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	dm.decoded = append(dm.decoded, tick{addr, cpu.Word(code)})
	return
}

func (dm *decodedModel) ticksDecoded() []tick {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	return slices.Clone(dm.decoded)
}

// compilerFunc adapts a function to a Compiler.
type compilerFunc func(addr cpu.Address, spec *Speculation) (cpu.Code, *cpu.Mnemonic, bool)

func (fn compilerFunc) Compiled(addr cpu.Address, spec *Speculation) (cpu.Code, *cpu.Mnemonic, bool) {
	return fn(addr, spec)
}
