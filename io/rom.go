package io

import (
	"encoding/binary"
	"iter"
	"maps"
)

var _rom_defines = map[string]string{}

// Rom is a read-only byte image. Reads past the end of Data are zero.
type Rom struct {
	Data []byte
}

var _ Device = (*Rom)(nil)

// Defines returns no registers; the ROM is addressed as plain memory.
func (rc *Rom) Defines() iter.Seq2[string, string] {
	return maps.All(_rom_defines)
}

// Rewind does nothing; the ROM has no state.
func (rc *Rom) Rewind() {}

// Read returns width bytes of the image at offset, little-endian.
func (rc *Rom) Read(offset uint64, width int) (value uint64, err error) {
	if !validWidth(width) {
		err = ErrWidthInvalid
		return
	}

	var buff [8]byte
	if offset < uint64(len(rc.Data)) {
		copy(buff[:width], rc.Data[offset:])
	}

	value = binary.LittleEndian.Uint64(buff[:])
	return
}

// Write always fails with ErrReadOnly.
func (rc *Rom) Write(offset uint64, width int, value uint64) (err error) {
	err = ErrReadOnly
	return
}
