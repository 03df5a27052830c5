// Package io provides memory-mapped devices for the goosea emulator.
// Devices are attached to a window of emulated memory and see loads and
// stores as register accesses relative to the start of that window.
package io

import (
	"iter"
)

// Device defines the interface for all memory-mapped devices.
type Device interface {
	// Rewind resets the device to its initial state.
	Rewind()
	// Read returns the value of the register at offset, width bytes wide.
	Read(offset uint64, width int) (value uint64, err error)
	// Write stores width bytes of value at the register at offset.
	Write(offset uint64, width int, value uint64) (err error)
	// Defines returns the register names published to the assembler.
	Defines() iter.Seq2[string, string]
}
