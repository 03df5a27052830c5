// Copyright 2025, Jason S. McMullan <jason.mcmullan@gmail.com>

package cpu

import (
	"errors"
	"fmt"
	"iter"
	"log"
	"maps"

	"github.com/ezrec/goosea/io"
)

var _cpu_defines = map[string]string{
	"RAM_BASE":     fmt.Sprintf("%#x", uint64(RAM_BASE)),
	"RAM_SIZE":     fmt.Sprintf("%#x", RAM_SIZE),
	"CONSOLE_BASE": fmt.Sprintf("%#x", uint64(CONSOLE_BASE)),
}

// Cpu is the simulation model of one RV64I hart and its address space.
//
// Fetch may be called concurrently with Tick; register state is owned by
// the single session driving Tick.
type Cpu struct {
	Verbose bool // Set to enable verbose logging.

	Memory  *Memory // Address space.
	Console io.Tape // Console device at CONSOLE_BASE.

	Pc    Address    // Address of the last ticked instruction, plus 4.
	X     [32]uint64 // Integer register file. X[0] is always zero.
	Ticks int        // Instructions retired since reset.
}

// NewCpu creates a CPU with ramSize bytes of RAM at RAM_BASE and the
// console attached at CONSOLE_BASE.
func NewCpu(ramSize uint64) (cpu *Cpu) {
	cpu = &Cpu{
		Memory: NewMemory(),
	}

	if ramSize == 0 {
		ramSize = RAM_SIZE
	}

	// Neither can fail on a fresh, empty address space.
	_ = cpu.Memory.Map(RAM_BASE, ramSize)
	_ = cpu.Memory.Attach(CONSOLE_BASE, io.TAPE_SIZE, &cpu.Console)

	return
}

// Defines for the cpu.
func (cpu *Cpu) Defines() iter.Seq2[string, string] {
	return maps.All(_cpu_defines)
}

// String returns the current CPU state as a string.
func (cpu *Cpu) String() (text string) {
	text = fmt.Sprintf("%5s: %016x\n", "pc", uint64(cpu.Pc))
	for n := 0; n < len(cpu.X); n += 4 {
		for k := range 4 {
			text += fmt.Sprintf("%5s: %016x", fmt.Sprintf("x%d", n+k), cpu.X[n+k])
		}
		text += "\n"
	}
	text += fmt.Sprintf("%5s: %d\n", "ticks", cpu.Ticks)

	return
}

// Reset the CPU state.
// - Clears the registers and PC.
// - Zeros statistics counters.
// - Zeros RAM and rewinds all devices.
func (cpu *Cpu) Reset() {
	if cpu.Verbose {
		log.Printf("cpu: reset")
	}

	clear(cpu.X[:])
	cpu.Pc = RAM_BASE
	cpu.Ticks = 0
	cpu.Memory.Reset()
}

// Fetch reads the instruction word at addr. It has no side effects.
func (cpu *Cpu) Fetch(addr Address) (word Word, err error) {
	if addr&3 != 0 {
		err = newFault(ACCESS_FETCH, addr, ErrMisaligned)
		return
	}

	value, err := cpu.Memory.Fetch32(addr)
	if err != nil {
		return
	}

	word = Word(value)
	return
}

// Tick executes word as the instruction at addr.
func (cpu *Cpu) Tick(addr Address, word Word) (err error) {
	cpu.Pc = addr

	err = cpu.Execute(Code(word))
	if err != nil {
		return
	}

	cpu.Pc = addr + 4
	cpu.Ticks++

	return
}

// TickDecoded executes code, already decoded as m, as the instruction at
// addr.
func (cpu *Cpu) TickDecoded(addr Address, code Code, m *Mnemonic) (err error) {
	cpu.Pc = addr

	err = cpu.ExecuteDecoded(code, m)
	if err != nil {
		return
	}

	cpu.Pc = addr + 4
	cpu.Ticks++

	return
}

// TickAt fetches and executes the instruction at addr, with no caching.
func (cpu *Cpu) TickAt(addr Address) (err error) {
	word, err := cpu.Fetch(addr)
	if err != nil {
		return
	}

	return cpu.Tick(addr, word)
}

// Execute executes a single instruction at cpu.Pc.
func (cpu *Cpu) Execute(code Code) (err error) {
	m, ok := code.Decode()
	if !ok {
		if cpu.Verbose {
			log.Printf("%08x: %v", uint64(cpu.Pc), code)
		}
		err = errors.Join(ErrOpcode(code), ErrUnimplementedOpcode)
		return
	}

	return cpu.ExecuteDecoded(code, m)
}

// ExecuteDecoded executes code at cpu.Pc, with m its decoded mnemonic.
func (cpu *Cpu) ExecuteDecoded(code Code, m *Mnemonic) (err error) {
	defer func() {
		if err != nil {
			err = errors.Join(ErrOpcode(code), err)
		}
	}()

	if cpu.Verbose {
		log.Printf("%08x: %v", uint64(cpu.Pc), code)
	}

	rd := code.Rd()
	rs1 := cpu.X[code.Rs1()]
	rs2 := cpu.X[code.Rs2()]

	var result uint64
	write_rd := true

	switch m.Format {
	case FORMAT_U:
		switch m.Opcode {
		case OPCODE_LUI:
			result = uint64(code.ImmU())
		case OPCODE_AUIPC:
			result = uint64(cpu.Pc) + uint64(code.ImmU())
		}
	case FORMAT_I:
		result = cpu.doAlu(m.Name, rs1, uint64(code.ImmI()))
	case FORMAT_SHIFT, FORMAT_SHIFTW:
		result = cpu.doAlu(m.Name, rs1, uint64(code.Shamt(m.Format)))
	case FORMAT_R:
		result = cpu.doAlu(m.Name, rs1, rs2)
	case FORMAT_LOAD:
		result, err = cpu.load(m.Funct3, Address(rs1+uint64(code.ImmI())))
		if err != nil {
			return
		}
	case FORMAT_STORE:
		write_rd = false
		err = cpu.store(m.Funct3, Address(rs1+uint64(code.ImmS())), rs2)
		if err != nil {
			return
		}
	case FORMAT_FENCE:
		// Memory is sequentially consistent per session.
		write_rd = false
	}

	if write_rd && rd != 0 {
		cpu.X[rd] = result
	}

	return
}

// load performs a LOAD of the width selected by funct3.
func (cpu *Cpu) load(funct3 uint32, addr Address) (value uint64, err error) {
	width := 1 << (funct3 & 3)

	value, err = cpu.Memory.Read(addr, width)
	if err != nil {
		return
	}

	switch funct3 {
	case 0: // lb
		value = uint64(int64(int8(value)))
	case 1: // lh
		value = uint64(int64(int16(value)))
	case 2: // lw
		value = uint64(int64(int32(value)))
	}

	return
}

// store performs a STORE of the width selected by funct3.
func (cpu *Cpu) store(funct3 uint32, addr Address, value uint64) (err error) {
	width := 1 << (funct3 & 3)

	if cpu.Verbose {
		log.Printf("cpu: store%d 0x%x <- 0x%x", width*8, uint64(addr), value)
	}

	return cpu.Memory.Write(addr, width, value)
}

// sext32 sign-extends the low 32 bits of value.
func sext32(value uint64) uint64 {
	return uint64(int64(int32(value)))
}

// doAlu performs the named ALU operation.
func (cpu *Cpu) doAlu(name string, a uint64, b uint64) (output uint64) {
	switch name {
	case "add", "addi":
		output = a + b
	case "sub":
		output = a - b
	case "xor", "xori":
		output = a ^ b
	case "or", "ori":
		output = a | b
	case "and", "andi":
		output = a & b
	case "slt", "slti":
		if int64(a) < int64(b) {
			output = 1
		}
	case "sltu", "sltiu":
		if a < b {
			output = 1
		}
	case "sll", "slli":
		output = a << (b & 0x3f)
	case "srl", "srli":
		output = a >> (b & 0x3f)
	case "sra", "srai":
		output = uint64(int64(a) >> (b & 0x3f))
	case "addw", "addiw":
		output = sext32(a + b)
	case "subw":
		output = sext32(a - b)
	case "sllw", "slliw":
		output = sext32(uint64(uint32(a) << (b & 0x1f)))
	case "srlw", "srliw":
		output = sext32(uint64(uint32(a) >> (b & 0x1f)))
	case "sraw", "sraiw":
		output = sext32(uint64(int32(a) >> (b & 0x1f)))
	}

	return
}
