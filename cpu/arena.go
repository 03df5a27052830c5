package cpu

// Address is a location in emulated memory.
type Address uint64

// Word is the raw 32-bit instruction at an Address.
type Word uint32

const (
	PAGE_SHIFT = 12
	PAGE_SIZE  = 1 << PAGE_SHIFT // Granularity of Memory.Map
	PAGE_MASK  = PAGE_SIZE - 1

	RAM_BASE     = Address(0x0000_0000) // Default RAM window.
	RAM_SIZE     = 0x10_0000            // 1MiB
	CONSOLE_BASE = Address(0x1000_0000) // Console (io.Tape) registers.
)
