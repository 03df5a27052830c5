package emulator

import (
	"bytes"
	"context"
	"errors"
	"maps"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/ezrec/goosea/cpu"
	gio "github.com/ezrec/goosea/io"
	"github.com/ezrec/goosea/node"
	"github.com/ezrec/goosea/session"
)

// selfModify adds the immediate of `patch` to x1, then increments that
// immediate in memory for the next run.
var selfModify = []string{
	"lw t0, patch(zero)",
	"li t1, 0x00100000", // +1 in the I-type immediate
	"add t0, t0, t1",
	"sw t0, patch(zero)",
	"patch: addi x1, x1, 1",
}

func doEmulator(t *testing.T, program []string) (emu *Emulator) {
	prog, err := Assemble(strings.NewReader(strings.Join(program, "\n")))
	require.NoError(t, err)

	emu = NewEmulator(prog)
	return
}

func TestEmulator(t *testing.T) {
	assert := assert.New(t)

	emu := doEmulator(t, []string{
		"addi a0, zero, 1",
		"table: .word 1, 2",
		"addi a0, a0, XLEN",
	})

	assert.False(emu.Verbose)
	assert.Equal(node.KIND_SEQUENCE, emu.Tree().Kind())
	assert.Equal(2, emu.Tree().Len())
	assert.Equal([]cpu.Address{0, 12}, keys(emu))

	in, ok := emu.Node(12)
	assert.True(ok)
	assert.Equal(cpu.Address(12), in.Address())
	_, ok = emu.Node(4)
	assert.False(ok)

	assert.Equal(2, emu.Optimizer.Stats().Watched)
	assert.Equal(3, emu.LineNo(12))
	assert.Equal(0, emu.LineNo(0x100))

	defines := maps.Collect(Defines())
	assert.Equal("64", defines["XLEN"])
	assert.Equal("0x10000000", defines["CONSOLE_BASE"])
	assert.Equal("0x0", defines["TAPE_DATA"])

	sess, err := emu.NewSession()
	assert.NoError(err)
	assert.NoError(sess.Run(context.Background()))
	assert.Equal(uint64(65), sess.X[10])
	assert.Equal(2, sess.Ticks)
	assert.NoError(sess.Close())
}

func keys(emu *Emulator) (addrs []cpu.Address) {
	for addr := range emu.Nodes() {
		addrs = append(addrs, addr)
	}
	return
}

func TestEmulatorSelfModify(t *testing.T) {
	assert := assert.New(t)

	emu := doEmulator(t, selfModify)

	sess, err := emu.NewSession()
	assert.NoError(err)
	defer sess.Close()

	ctx := context.Background()
	for range 3 {
		assert.NoError(sess.Run(ctx))
	}

	// 2 + 3 + 4
	assert.Equal(uint64(9), sess.X[1])

	patch, ok := emu.Node(emu.Program.Opcodes[len(emu.Program.Opcodes)-1].Address)
	if assert.True(ok) {
		stats := patch.Stats()
		assert.Equal(uint64(3), stats.Executions)
		assert.Equal(uint64(3), stats.Writes)
		assert.Equal(uint64(2), stats.Invalidations)

		word, _ := patch.Cached()
		assert.Equal(cpu.Word(0x00408093), word) // addi x1, x1, 4
	}

	// The unmodified instructions hit their cache.
	first, _ := emu.Node(0)
	assert.Equal(uint64(1), first.Stats().Writes)
}

func TestEmulatorSessions(t *testing.T) {
	require := require.New(t)

	emu := doEmulator(t, selfModify)

	rounds := []int{3, 5, 1, 8}
	sessions := make([]*Session, len(rounds))
	for n := range sessions {
		sess, err := emu.NewSession()
		require.NoError(err)
		sessions[n] = sess
	}
	require.Equal(len(rounds), emu.Registry.Len())

	eg, ctx := errgroup.WithContext(context.Background())
	for n, sess := range sessions {
		eg.Go(func() error {
			for range rounds[n] {
				err := sess.Run(ctx)
				if err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(eg.Wait())

	for n, sess := range sessions {
		// Sum of 2..rounds+1
		r := uint64(rounds[n])
		require.Equal(r*(r+3)/2, sess.X[1], n)
		require.Equal(6*rounds[n], sess.Ticks, n)
		require.NoError(sess.Close())
	}
	require.Equal(0, emu.Registry.Len())
}

func TestEmulatorOptimizer(t *testing.T) {
	assert := assert.New(t)

	emu := doEmulator(t, selfModify)
	emu.Optimizer.Threshold = 2

	sess, err := emu.NewSession()
	assert.NoError(err)
	defer sess.Close()

	ctx := context.Background()
	assert.NoError(sess.Run(ctx))
	assert.NoError(sess.Run(ctx))
	assert.Equal(6, emu.Optimizer.Scan())

	patchAddr := emu.Program.Opcodes[len(emu.Program.Opcodes)-1].Address
	fp, ok := emu.Optimizer.Lookup(patchAddr)
	if assert.True(ok) {
		assert.Equal(cpu.Word(0x00308093), fp.Word)
	}

	// The next run rewrites patch, which drops its fast path only.
	assert.NoError(sess.Run(ctx))
	_, ok = emu.Optimizer.Lookup(patchAddr)
	assert.False(ok)
	_, ok = emu.Optimizer.Lookup(0)
	assert.True(ok)
	assert.Equal(uint64(1), emu.Optimizer.Stats().Deoptimized)
}

func TestEmulatorFastPath(t *testing.T) {
	assert := assert.New(t)

	emu := doEmulator(t, selfModify)
	emu.Optimizer.Threshold = 1

	sess, err := emu.NewSession()
	assert.NoError(err)
	defer sess.Close()

	ctx := context.Background()
	assert.NoError(sess.Run(ctx))
	assert.Equal(6, emu.Optimizer.Scan())

	// Every node but patch runs its fast path. Patch was rewritten, so its
	// fast path is dropped and the new word is interpreted.
	assert.NoError(sess.Run(ctx))
	assert.Equal(uint64(2+3), sess.X[1])

	patchAddr := emu.Program.Opcodes[len(emu.Program.Opcodes)-1].Address
	for addr, in := range emu.Nodes() {
		if addr == patchAddr {
			assert.Equal(uint64(0), in.Stats().Compiled, addr)
		} else {
			assert.Equal(uint64(1), in.Stats().Compiled, addr)
		}
	}
	assert.Equal(uint64(1), emu.Optimizer.Stats().Deoptimized)

	assert.Equal(1, emu.Optimizer.Scan())
	assert.NoError(sess.Run(ctx))
	assert.Equal(uint64(2+3+4), sess.X[1])
	assert.Equal(18, sess.Ticks)
	assert.Equal(uint64(2), emu.Optimizer.Stats().Deoptimized)

	patch, _ := emu.Node(patchAddr)
	assert.Equal(uint64(0), patch.Stats().Compiled)
}

func TestEmulatorConsole(t *testing.T) {
	assert := assert.New(t)

	emu := doEmulator(t, []string{
		".macro putc reg",
		"sb reg, TAPE_DATA(s0)",
		".endm",
		"li s0, CONSOLE_BASE",
		"li a0, 'O'",
		"li a1, 'K'",
		"putc a0",
		"putc a1",
	})

	sess, err := emu.NewSession()
	assert.NoError(err)
	defer sess.Close()

	output := &bytes.Buffer{}
	sess.Console.Output = output

	assert.NoError(sess.Run(context.Background()))
	assert.Equal("OK", output.String())
}

func TestEmulatorErrors(t *testing.T) {
	assert := assert.New(t)

	emu := doEmulator(t, []string{
		"li t0, 0x6f", // jal x0, 0
		"sw t0, patch(zero)",
		"addi a0, zero, 1",
		"patch: nop",
		"addi a0, zero, 2",
	})

	sess, err := emu.NewSession()
	assert.NoError(err)

	err = sess.Run(context.Background())
	assert.ErrorIs(err, cpu.ErrUnimplementedOpcode)
	assert.ErrorIs(err, cpu.ErrOpcode(0x6f))

	var re *ErrRuntime
	if assert.True(errors.As(err, &re)) {
		assert.Equal(cpu.Address(12), re.Address)
		assert.Equal(4, re.LineNo)
	}
	// Effects before the failure are kept.
	assert.Equal(uint64(1), sess.X[10])

	err = sess.Step(cpu.Address(cpu.RAM_SIZE))
	assert.ErrorIs(err, cpu.ErrFetchFault)
	if assert.True(errors.As(err, &re)) {
		assert.Equal(cpu.Address(cpu.RAM_SIZE), re.Address)
		assert.Equal(0, re.LineNo)
	}

	assert.NoError(sess.Step(8))
	assert.Equal(uint64(1), sess.X[10])

	assert.NoError(sess.Close())
	assert.ErrorIs(sess.Close(), session.ErrSessionUnknown)
	assert.ErrorIs(sess.Run(context.Background()), session.ErrSessionNotBound)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	other, err := emu.NewSession()
	assert.NoError(err)
	assert.ErrorIs(other.Run(ctx), context.Canceled)
}

func TestEmulatorRom(t *testing.T) {
	assert := assert.New(t)

	// Restores patch from the ROM image before running it.
	emu := doEmulator(t, []string{
		"li s0, ROM_BASE",
		"lw t0, patch(s0)",
		"sw t0, patch(zero)",
		"patch: addi x1, x1, 1",
	})

	sess, err := emu.NewSession()
	assert.NoError(err)
	defer sess.Close()

	patchAddr := cpu.Address(16)
	ctx := context.Background()

	assert.NoError(sess.Run(ctx))
	assert.NoError(sess.Memory.Write32(patchAddr, 0x00508093)) // addi x1, x1, 5
	assert.NoError(sess.Run(ctx))

	assert.Equal(uint64(2), sess.X[1])

	patch, _ := emu.Node(patchAddr)
	assert.Equal(uint64(1), patch.Stats().Writes)

	word, err := sess.Memory.Read32(ROM_BASE + patchAddr)
	assert.NoError(err)
	assert.Equal(uint32(0x00108093), word)

	assert.ErrorIs(sess.Memory.Write32(ROM_BASE, 0), gio.ErrReadOnly)
	_, err = sess.Fetch(ROM_BASE)
	assert.ErrorIs(err, cpu.ErrFetchFault)
}
