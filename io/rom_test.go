package io

import (
	"maps"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRom(t *testing.T) {
	assert := assert.New(t)

	rc := &Rom{Data: []byte{0x13, 0x05, 0x10, 0x00, 0xef}}
	rc.Rewind()

	table := [...]struct {
		offset uint64
		width  int
		value  uint64
	}{
		{0, 4, 0x00100513},
		{0, 1, 0x13},
		{1, 2, 0x1005},
		{4, 1, 0xef},
		{4, 4, 0xef},
		{2, 8, 0xef0010},
		{16, 8, 0},
	}

	for _, entry := range table {
		value, err := rc.Read(entry.offset, entry.width)
		assert.NoError(err, entry)
		assert.Equal(entry.value, value, entry)
	}

	_, err := rc.Read(0, 3)
	assert.ErrorIs(err, ErrWidthInvalid)

	assert.ErrorIs(rc.Write(0, 4, 0), ErrReadOnly)
	assert.Equal(0, len(maps.Collect(rc.Defines())))
}
