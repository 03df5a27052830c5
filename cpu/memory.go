// Copyright 2025, Jason S. McMullan <jason.mcmullan@gmail.com>

package cpu

import (
	"encoding/binary"
	"iter"
	"log"
	"slices"
	"sync"

	"github.com/ezrec/goosea/io"
)

// window is a device attached to a span of the address space.
type window struct {
	base   Address
	size   uint64
	device io.Device
}

func (w *window) contains(addr Address, width int) bool {
	return addr >= w.base && uint64(addr-w.base)+uint64(width) <= w.size
}

// Memory is the emulated address space of one CPU: page-granular RAM plus
// device windows. All accessors are safe for concurrent use.
type Memory struct {
	Verbose bool // If set, logs map changes.

	mu      sync.RWMutex
	pages   map[uint64][]byte // Page number to page contents.
	windows []window
}

// NewMemory creates an empty address space.
func NewMemory() (mem *Memory) {
	mem = &Memory{
		pages: make(map[uint64][]byte),
	}

	return
}

// Map backs [base, base+size) with zeroed RAM. The span is widened to
// whole pages. Already mapped pages keep their contents.
func (mem *Memory) Map(base Address, size uint64) (err error) {
	if size == 0 {
		err = ErrMapEmpty
		return
	}

	first := uint64(base) >> PAGE_SHIFT
	last := (uint64(base) + size - 1) >> PAGE_SHIFT

	mem.mu.Lock()
	defer mem.mu.Unlock()

	for _, w := range mem.windows {
		if uint64(w.base)>>PAGE_SHIFT <= last && (uint64(w.base)+w.size-1)>>PAGE_SHIFT >= first {
			err = ErrMapOverlap
			return
		}
	}

	for page := first; page <= last; page++ {
		if _, ok := mem.pages[page]; !ok {
			mem.pages[page] = make([]byte, PAGE_SIZE)
		}
	}

	if mem.Verbose {
		log.Printf("memory: map 0x%x..0x%x", first<<PAGE_SHIFT, (last+1)<<PAGE_SHIFT)
	}

	return
}

// Attach places a device at [base, base+size).
func (mem *Memory) Attach(base Address, size uint64, device io.Device) (err error) {
	if size == 0 {
		err = ErrMapEmpty
		return
	}

	mem.mu.Lock()
	defer mem.mu.Unlock()

	end := uint64(base) + size - 1
	for page := uint64(base) >> PAGE_SHIFT; page <= end>>PAGE_SHIFT; page++ {
		if _, ok := mem.pages[page]; ok {
			err = ErrMapOverlap
			return
		}
	}
	for _, w := range mem.windows {
		if w.base <= Address(end) && uint64(w.base)+w.size > uint64(base) {
			err = ErrMapOverlap
			return
		}
	}

	mem.windows = append(mem.windows, window{base: base, size: size, device: device})

	if mem.Verbose {
		log.Printf("memory: attach %T at 0x%x+0x%x", device, uint64(base), size)
	}

	return
}

// Devices iterates over the attached devices.
func (mem *Memory) Devices() iter.Seq2[Address, io.Device] {
	mem.mu.RLock()
	windows := slices.Clone(mem.windows)
	mem.mu.RUnlock()

	return func(yield func(Address, io.Device) bool) {
		for _, w := range windows {
			if !yield(w.base, w.device) {
				return
			}
		}
	}
}

// Mapped returns true if every byte of [addr, addr+width) is RAM.
func (mem *Memory) Mapped(addr Address, width int) bool {
	mem.mu.RLock()
	defer mem.mu.RUnlock()

	for n := range width {
		if _, ok := mem.pages[uint64(addr+Address(n))>>PAGE_SHIFT]; !ok {
			return false
		}
	}

	return true
}

// device finds the window covering an access, if any.
func (mem *Memory) device(addr Address, width int) (w *window) {
	for n := range mem.windows {
		if mem.windows[n].contains(addr, width) {
			return &mem.windows[n]
		}
	}
	return nil
}

// Read reads a little-endian value of width bytes (1, 2, 4 or 8).
func (mem *Memory) Read(addr Address, width int) (value uint64, err error) {
	mem.mu.RLock()
	w := mem.device(addr, width)
	if w == nil {
		value, err = mem.readRam(addr, width)
		mem.mu.RUnlock()
		return
	}
	mem.mu.RUnlock()

	return w.device.Read(uint64(addr-w.base), width)
}

// Write writes a little-endian value of width bytes (1, 2, 4 or 8).
func (mem *Memory) Write(addr Address, width int, value uint64) (err error) {
	mem.mu.RLock()
	w := mem.device(addr, width)
	mem.mu.RUnlock()

	if w != nil {
		return w.device.Write(uint64(addr-w.base), width, value)
	}

	mem.mu.Lock()
	defer mem.mu.Unlock()

	return mem.writeRam(addr, width, value)
}

// Read32 reads a 32-bit word.
func (mem *Memory) Read32(addr Address) (value uint32, err error) {
	v64, err := mem.Read(addr, 4)
	value = uint32(v64)
	return
}

// Fetch32 reads an instruction word. Only RAM is fetchable, so a fetch
// never has device side effects.
func (mem *Memory) Fetch32(addr Address) (value uint32, err error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()

	v64, err := mem.readRam(addr, 4)
	if err != nil {
		err = newFault(ACCESS_FETCH, addr, nil)
		return
	}

	value = uint32(v64)
	return
}

// Write32 writes a 32-bit word.
func (mem *Memory) Write32(addr Address, value uint32) (err error) {
	return mem.Write(addr, 4, uint64(value))
}

// Load copies data into RAM at addr. Nothing is copied unless all of data
// fits in RAM.
func (mem *Memory) Load(addr Address, data []byte) (err error) {
	mem.mu.Lock()
	defer mem.mu.Unlock()

	if len(data) == 0 {
		return
	}

	last := uint64(addr) + uint64(len(data)) - 1
	if last < uint64(addr) {
		err = newFault(ACCESS_STORE, addr, nil)
		return
	}

	for page := uint64(addr) >> PAGE_SHIFT; page <= last>>PAGE_SHIFT; page++ {
		if _, ok := mem.pages[page]; !ok {
			fault := max(Address(page<<PAGE_SHIFT), addr)
			err = newFault(ACCESS_STORE, fault, nil)
			return
		}
	}

	for n, b := range data {
		byte_addr := addr + Address(n)
		mem.pages[uint64(byte_addr)>>PAGE_SHIFT][uint64(byte_addr)&PAGE_MASK] = b
	}

	return
}

// Reset zeroes all RAM and rewinds all devices.
func (mem *Memory) Reset() {
	mem.mu.Lock()
	for _, page := range mem.pages {
		clear(page)
	}
	windows := slices.Clone(mem.windows)
	mem.mu.Unlock()

	for _, w := range windows {
		w.device.Rewind()
	}
}

// readRam must be called with mem.mu held.
func (mem *Memory) readRam(addr Address, width int) (value uint64, err error) {
	offset := uint64(addr) & PAGE_MASK
	page, ok := mem.pages[uint64(addr)>>PAGE_SHIFT]
	if ok && offset+uint64(width) <= PAGE_SIZE {
		switch width {
		case 1:
			value = uint64(page[offset])
		case 2:
			value = uint64(binary.LittleEndian.Uint16(page[offset:]))
		case 4:
			value = uint64(binary.LittleEndian.Uint32(page[offset:]))
		default:
			value = binary.LittleEndian.Uint64(page[offset:])
		}
		return
	}

	// Page crossing or unmapped.
	for n := range width {
		byte_addr := addr + Address(n)
		page, ok = mem.pages[uint64(byte_addr)>>PAGE_SHIFT]
		if !ok {
			err = newFault(ACCESS_LOAD, byte_addr, nil)
			return
		}
		value |= uint64(page[uint64(byte_addr)&PAGE_MASK]) << (8 * n)
	}

	return
}

// writeRam must be called with mem.mu held for writing.
func (mem *Memory) writeRam(addr Address, width int, value uint64) (err error) {
	for n := range width {
		if _, ok := mem.pages[uint64(addr+Address(n))>>PAGE_SHIFT]; !ok {
			err = newFault(ACCESS_STORE, addr+Address(n), nil)
			return
		}
	}

	for n := range width {
		byte_addr := addr + Address(n)
		mem.pages[uint64(byte_addr)>>PAGE_SHIFT][uint64(byte_addr)&PAGE_MASK] = byte(value >> (8 * n))
	}

	return
}
