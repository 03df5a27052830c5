package session

import (
	"context"
	"testing"

	"github.com/ezrec/goosea/cpu"
	"github.com/ezrec/goosea/node"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestRegistry(t *testing.T) {
	assert := assert.New(t)

	reg := NewRegistry()
	assert.Equal(0, reg.Len())

	model := cpu.NewCpu(cpu.PAGE_SIZE)
	ec := reg.Open(model)
	assert.Equal(1, reg.Len())
	assert.Same(model, ec.Model())
	assert.Equal(ec.Id().String(), ec.String())

	got, ok := reg.Get(ec.Id())
	assert.True(ok)
	assert.Same(ec, got)

	ctx := reg.Bind(context.Background(), ec)
	id, ok := Bound(ctx)
	assert.True(ok)
	assert.Equal(ec.Id(), id)

	found, err := reg.Lookup(ctx)
	assert.NoError(err)
	assert.Same(ec, found)

	assert.NoError(reg.Close(ec))
	assert.Equal(0, reg.Len())
	assert.ErrorIs(reg.Close(ec), ErrSessionUnknown)

	_, err = reg.Lookup(ctx)
	assert.ErrorIs(err, ErrSessionNotBound)
}

func TestRegistryNotBound(t *testing.T) {
	assert := assert.New(t)

	reg := NewRegistry()
	reg.Open(cpu.NewCpu(cpu.PAGE_SIZE))

	_, err := reg.Lookup(context.Background())
	assert.ErrorIs(err, ErrSessionNotBound)

	_, ok := Bound(context.Background())
	assert.False(ok)

	// A node executed outside any session fails the same way.
	in := node.NewInstruction(0, reg)
	err = in.Execute(context.Background())
	assert.ErrorIs(err, ErrSessionNotBound)
}

func TestRegistryIsolation(t *testing.T) {
	require := require.New(t)

	const sessions = 4

	reg := NewRegistry()

	// addi x1, x1, n in each session's memory at address 0.
	var cpus [sessions]*cpu.Cpu
	var ecs [sessions]*ExecutionContext
	for n := range sessions {
		cpus[n] = cpu.NewCpu(cpu.PAGE_SIZE)
		require.NoError(cpus[n].Memory.Write32(0, uint32(0x00008093|(n+1)<<20)))
		ecs[n] = reg.Open(cpus[n])
	}

	in := node.NewInstruction(0, reg)

	var eg errgroup.Group
	for n := range sessions {
		ctx := reg.Bind(context.Background(), ecs[n])
		eg.Go(func() error {
			for range 100 {
				err := in.Execute(ctx)
				if err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(eg.Wait())

	for n := range sessions {
		require.Equal(uint64(100*(n+1)), cpus[n].X[1], n)
		require.Equal(100, cpus[n].Ticks, n)
	}

	// Mutating one session's memory is not visible to another.
	require.NoError(cpus[0].Memory.Write32(0, 0x0000_0013))
	word, err := cpus[1].Fetch(0)
	require.NoError(err)
	require.Equal(cpu.Word(0x00208093), word)
}
