package cpu

import (
	"encoding/binary"
	"iter"
)

// Opcode is a line of assembled code with its source location and
// generated word.
type Opcode struct {
	LineNo  int      // Source line.
	Address Address  // Where the word is placed.
	Words   []string // Source words after expansion.
	Code    Code     // Encoded word.
	Data    bool     // Set for .word data; never executed.

	// Label reference resolved at link time.
	LinkLabel string
	mnemonic  *Mnemonic
	operands  [3]int
}

// Program is an assembled image.
type Program struct {
	Opcodes []Opcode
}

// Debug locates the opcode covering an address.
type Debug struct {
	*Opcode
}

// Debug returns the opcode that placed a word at addr, if any.
func (prog *Program) Debug(addr Address) (dbg Debug) {
	for n, op := range prog.Opcodes {
		if addr >= op.Address && addr < op.Address+4 {
			dbg = Debug{
				Opcode: &prog.Opcodes[n],
			}
			break
		}
	}

	return
}

// Origin returns the lowest address in the image.
func (prog *Program) Origin() (origin Address) {
	for n, op := range prog.Opcodes {
		if n == 0 || op.Address < origin {
			origin = op.Address
		}
	}

	return
}

// Binary returns the image as little-endian bytes starting at Origin().
// Gaps left by .org are zero.
func (prog *Program) Binary() (bins []byte) {
	origin := prog.Origin()
	for addr, word := range prog.Codes() {
		offset := int(addr - origin)
		for len(bins) < offset+4 {
			bins = append(bins, 0)
		}
		binary.LittleEndian.PutUint32(bins[offset:], uint32(word))
	}

	return
}

// Codes iterates over every word in the image, data included.
func (prog *Program) Codes() iter.Seq2[Address, Word] {
	return func(yield func(addr Address, word Word) bool) {
		for _, op := range prog.Opcodes {
			if !yield(op.Address, Word(op.Code)) {
				return
			}
		}
	}
}

// Instructions iterates over the executable words of the image, in
// program order.
func (prog *Program) Instructions() iter.Seq2[Address, Word] {
	return func(yield func(addr Address, word Word) bool) {
		for _, op := range prog.Opcodes {
			if op.Data {
				continue
			}
			if !yield(op.Address, Word(op.Code)) {
				return
			}
		}
	}
}

// Load writes the image into mem.
func (prog *Program) Load(mem *Memory) (err error) {
	for addr, word := range prog.Codes() {
		err = mem.Write32(addr, uint32(word))
		if err != nil {
			return
		}
	}

	return
}
