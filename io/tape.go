package io

import (
	"fmt"
	"io"
	"iter"
	"maps"
	"sync"
)

const (
	TAPE_DATA   = 0x0 // Read: next input byte (all ones at end). Write: output byte.
	TAPE_STATUS = 0x4 // Read: TAPE_STATUS_* bits.
	TAPE_COUNT  = 0x8 // Read: bytes written so far.
	TAPE_SIZE   = 0x10

	TAPE_STATUS_INPUT  = 1 << 0 // Input is attached.
	TAPE_STATUS_OUTPUT = 1 << 1 // Output is attached.
	TAPE_STATUS_EOF    = 1 << 2 // Input is exhausted.
)

var _tape_defines = map[string]string{
	"TAPE_DATA":          fmt.Sprintf("%#x", TAPE_DATA),
	"TAPE_STATUS":        fmt.Sprintf("%#x", TAPE_STATUS),
	"TAPE_COUNT":         fmt.Sprintf("%#x", TAPE_COUNT),
	"TAPE_STATUS_INPUT":  fmt.Sprintf("%#x", TAPE_STATUS_INPUT),
	"TAPE_STATUS_OUTPUT": fmt.Sprintf("%#x", TAPE_STATUS_OUTPUT),
	"TAPE_STATUS_EOF":    fmt.Sprintf("%#x", TAPE_STATUS_EOF),
}

// Tape is a byte-wide console. Stores to TAPE_DATA go to Output,
// loads from TAPE_DATA consume Input.
type Tape struct {
	Input  io.Reader
	Output io.Writer

	mu         sync.Mutex
	eof        bool
	writeCount uint64
}

var _ Device = (*Tape)(nil)

// Defines returns the tape register offsets.
func (tc *Tape) Defines() iter.Seq2[string, string] {
	return maps.All(_tape_defines)
}

// Rewind clears the end-of-input flag and output counter. The attached
// streams are not rewound.
func (tc *Tape) Rewind() {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	tc.eof = false
	tc.writeCount = 0
}

// Read reads a tape register.
func (tc *Tape) Read(offset uint64, width int) (value uint64, err error) {
	if !validWidth(width) {
		err = ErrWidthInvalid
		return
	}

	tc.mu.Lock()
	defer tc.mu.Unlock()

	switch offset {
	case TAPE_DATA:
		value = ^uint64(0)
		if tc.Input == nil || tc.eof {
			break
		}
		var one [1]byte
		_, rerr := io.ReadFull(tc.Input, one[:])
		if rerr != nil {
			tc.eof = true
			break
		}
		value = uint64(one[0])
	case TAPE_STATUS:
		if tc.Input != nil {
			value |= TAPE_STATUS_INPUT
		}
		if tc.Output != nil {
			value |= TAPE_STATUS_OUTPUT
		}
		if tc.eof {
			value |= TAPE_STATUS_EOF
		}
	case TAPE_COUNT:
		value = tc.writeCount
	default:
		err = ErrRegisterInvalid
		return
	}

	value &= widthMask(width)
	return
}

// Write writes a tape register. Only the low byte of a TAPE_DATA store is
// sent to the output.
func (tc *Tape) Write(offset uint64, width int, value uint64) (err error) {
	if !validWidth(width) {
		err = ErrWidthInvalid
		return
	}

	tc.mu.Lock()
	defer tc.mu.Unlock()

	switch offset {
	case TAPE_DATA:
		if tc.Output == nil {
			err = ErrDeviceClosed
			return
		}
		_, err = tc.Output.Write([]byte{byte(value)})
		if err != nil {
			return
		}
		tc.writeCount++
	default:
		err = ErrRegisterInvalid
	}

	return
}

// widthMask returns the value mask for an access of width bytes.
func widthMask(width int) uint64 {
	if width >= 8 {
		return ^uint64(0)
	}
	return (uint64(1) << (8 * width)) - 1
}

func validWidth(width int) bool {
	switch width {
	case 1, 2, 4, 8:
		return true
	}
	return false
}
