// Package optimize implements the optimizing layer that compiles hot
// instruction nodes into fast paths, and drops them again when the
// instruction they were compiled from changes.
package optimize

import (
	"context"
	"fmt"
	"iter"
	"log"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ezrec/goosea/cpu"
	"github.com/ezrec/goosea/node"
)

const (
	DEFAULT_THRESHOLD = 16                    // Executions before a node is compiled.
	DEFAULT_INTERVAL  = 10 * time.Millisecond // Run scan period.
)

// FastPath is a pre-decoded instruction. It is usable only while the
// speculation it was compiled from holds.
type FastPath struct {
	Address  cpu.Address
	Word     cpu.Word
	Code     cpu.Code
	Mnemonic *cpu.Mnemonic
	*node.Assumption
}

func (fp *FastPath) String() string {
	return fmt.Sprintf("0x%x: %v", uint64(fp.Address), fp.Code)
}

// Stats are the optimizer's counters.
type Stats struct {
	Watched     int    // Nodes being profiled.
	Live        int    // Fast paths currently held.
	Compiled    uint64 // Fast paths ever compiled.
	Deoptimized uint64 // Fast paths dropped by invalidation.
}

// Optimizer profiles instruction nodes, and compiles the hot ones.
type Optimizer struct {
	Verbose   bool          // If set, logs compilations and deoptimizations.
	Threshold uint64        // Executions before a node is compiled.
	Interval  time.Duration // Period between scans in Run.

	mu       sync.RWMutex
	watched  map[cpu.Address]*node.Instruction
	compiled map[cpu.Address]*FastPath

	compiledCount atomic.Uint64
	deoptimized   atomic.Uint64
}

var (
	_ node.Observer = (*Optimizer)(nil)
	_ node.Compiler = (*Optimizer)(nil)
)

// NewOptimizer creates an optimizer with the default tuning.
func NewOptimizer() (opt *Optimizer) {
	opt = &Optimizer{
		Threshold: DEFAULT_THRESHOLD,
		Interval:  DEFAULT_INTERVAL,
		watched:   make(map[cpu.Address]*node.Instruction),
		compiled:  make(map[cpu.Address]*FastPath),
	}

	return
}

// Watch profiles nodes, and makes the optimizer their Observer and
// Compiler. Nodes must be watched before they are first executed.
func (opt *Optimizer) Watch(nodes ...*node.Instruction) {
	opt.mu.Lock()
	defer opt.mu.Unlock()

	for _, in := range nodes {
		in.Observer = opt
		in.Compiler = opt
		opt.watched[in.Address()] = in
	}
}

// Invalidated drops the fast path compiled from a broken speculation.
func (opt *Optimizer) Invalidated(addr cpu.Address, stale *node.Speculation) {
	opt.mu.Lock()
	defer opt.mu.Unlock()

	fp, ok := opt.compiled[addr]
	if !ok || fp.Valid() {
		return
	}

	delete(opt.compiled, addr)
	opt.deoptimized.Add(1)

	if opt.Verbose {
		log.Printf("optimize: deoptimize %v", fp)
	}
}

// Compiled returns the decoded instruction of the fast path compiled from
// spec. A fast path compiled from any other speculation is never returned.
func (opt *Optimizer) Compiled(addr cpu.Address, spec *node.Speculation) (code cpu.Code, m *cpu.Mnemonic, ok bool) {
	if spec == nil {
		return
	}

	opt.mu.RLock()
	fp, found := opt.compiled[addr]
	opt.mu.RUnlock()

	if !found || fp.Assumption != spec.Assumption || !fp.Valid() {
		return
	}

	code, m, ok = fp.Code, fp.Mnemonic, true
	return
}

// Lookup returns the fast path for addr, if one is compiled and still
// valid.
func (opt *Optimizer) Lookup(addr cpu.Address) (fp *FastPath, ok bool) {
	opt.mu.RLock()
	defer opt.mu.RUnlock()

	fp, ok = opt.compiled[addr]
	if ok && !fp.Valid() {
		fp, ok = nil, false
	}
	return
}

// FastPaths iterates over a snapshot of the valid fast paths.
func (opt *Optimizer) FastPaths() iter.Seq2[cpu.Address, *FastPath] {
	opt.mu.RLock()
	compiled := maps.Clone(opt.compiled)
	opt.mu.RUnlock()

	return func(yield func(cpu.Address, *FastPath) bool) {
		for addr, fp := range compiled {
			if !fp.Valid() {
				continue
			}
			if !yield(addr, fp) {
				return
			}
		}
	}
}

// Stats returns the optimizer's counters.
func (opt *Optimizer) Stats() Stats {
	opt.mu.RLock()
	defer opt.mu.RUnlock()

	return Stats{
		Watched:     len(opt.watched),
		Live:        len(opt.compiled),
		Compiled:    opt.compiledCount.Load(),
		Deoptimized: opt.deoptimized.Load(),
	}
}

// compile builds the fast path for the current speculation of in.
func (opt *Optimizer) compile(in *node.Instruction) (fp *FastPath, ok bool) {
	spec := in.Speculation()
	if spec == nil || !spec.Valid() {
		return
	}

	code := cpu.Code(spec.Word())
	m, ok := code.Decode()
	if !ok {
		// Left to the interpreter, which reports it.
		return
	}

	fp = &FastPath{
		Address:    in.Address(),
		Word:       spec.Word(),
		Code:       code,
		Mnemonic:   m,
		Assumption: spec.Assumption,
	}

	return
}

// Scan compiles every hot node without a valid fast path, and returns the
// number compiled.
func (opt *Optimizer) Scan() (count int) {
	opt.mu.RLock()
	var hot []*node.Instruction
	for addr, in := range opt.watched {
		if in.Stats().Executions < opt.Threshold {
			continue
		}
		if fp, ok := opt.compiled[addr]; ok && fp.Valid() {
			continue
		}
		hot = append(hot, in)
	}
	opt.mu.RUnlock()

	for _, in := range hot {
		fp, ok := opt.compile(in)
		if !ok {
			continue
		}

		// An invalidation racing the store leaves an invalid fast path,
		// which Lookup ignores and the next Scan replaces.
		opt.mu.Lock()
		opt.compiled[fp.Address] = fp
		opt.mu.Unlock()

		opt.compiledCount.Add(1)
		count++

		if opt.Verbose {
			log.Printf("optimize: compile %v", fp)
		}
	}

	return
}

// Run scans every Interval until ctx is done. It returns nil on
// cancellation.
func (opt *Optimizer) Run(ctx context.Context) (err error) {
	interval := opt.Interval
	if interval <= 0 {
		interval = DEFAULT_INTERVAL
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			opt.Scan()
		}
	}
}
