package node

import (
	"context"
	"errors"
	"testing"

	"github.com/ezrec/goosea/cpu"
	"github.com/stretchr/testify/assert"
)

func TestSequence(t *testing.T) {
	assert := assert.New(t)

	fm := newFakeModel()
	fm.set(0, 0x13)
	fm.set(4, 0x37)
	fm.set(8, 0x93)

	accessor := staticAccessor(fm)
	seq := NewSequence(
		NewInstruction(0, accessor),
		NewInstruction(4, accessor),
		NewInstruction(8, accessor),
	)

	assert.Equal(KIND_SEQUENCE, seq.Kind())
	assert.Equal(3, seq.Len())
	for n, child := range seq.Children() {
		assert.Equal(cpu.Address(n*4), child.Address())
	}

	ctx := context.Background()
	assert.NoError(seq.Execute(ctx))
	assert.NoError(seq.Execute(ctx))

	assert.Equal([]tick{
		{0, 0x13}, {4, 0x37}, {8, 0x93},
		{0, 0x13}, {4, 0x37}, {8, 0x93},
	}, fm.ticked())
}

func TestSequenceAbort(t *testing.T) {
	assert := assert.New(t)

	fm := newFakeModel()
	fm.set(0, 0x13)
	fm.set(8, 0x93)

	accessor := staticAccessor(fm)
	last := NewInstruction(8, accessor)
	seq := NewSequence(
		NewInstruction(0, accessor),
		NewInstruction(4, accessor),
		last,
	)

	err := seq.Execute(context.Background())
	assert.ErrorIs(err, cpu.ErrFetchFault)

	var en *ErrNode
	if assert.True(errors.As(err, &en)) {
		assert.Equal(cpu.Address(4), en.Address)
	}

	assert.Equal([]tick{{0, 0x13}}, fm.ticked())
	assert.Equal(uint64(0), last.Stats().Executions)
}

func TestSequenceFixed(t *testing.T) {
	assert := assert.New(t)

	fm := newFakeModel()
	fm.set(0, 0x13)
	fm.set(4, 0x37)

	accessor := staticAccessor(fm)
	children := []*Instruction{
		NewInstruction(0, accessor),
		NewInstruction(4, accessor),
	}
	seq := NewSequence(children...)

	// The caller's slice does not alias the sequence.
	children[0], children[1] = children[1], children[0]

	assert.NoError(seq.Execute(context.Background()))
	assert.Equal([]tick{{0, 0x13}, {4, 0x37}}, fm.ticked())
	assert.Equal("Kind(7)", Kind(7).String())
}
