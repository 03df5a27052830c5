package cpu

import (
	"fmt"
)

// CodeOpcode is the major opcode, the low 7 bits of an instruction.
type CodeOpcode int

const (
	OPCODE_LOAD      = CodeOpcode(0x03) // load
	OPCODE_MISC_MEM  = CodeOpcode(0x0f) // misc-mem
	OPCODE_OP_IMM    = CodeOpcode(0x13) // op-imm
	OPCODE_AUIPC     = CodeOpcode(0x17) // auipc
	OPCODE_OP_IMM_32 = CodeOpcode(0x1b) // op-imm-32
	OPCODE_STORE     = CodeOpcode(0x23) // store
	OPCODE_OP        = CodeOpcode(0x33) // op
	OPCODE_LUI       = CodeOpcode(0x37) // lui
	OPCODE_OP_32     = CodeOpcode(0x3b) // op-32
	OPCODE_BRANCH    = CodeOpcode(0x63) // branch
	OPCODE_JALR      = CodeOpcode(0x67) // jalr
	OPCODE_JAL       = CodeOpcode(0x6f) // jal
	OPCODE_SYSTEM    = CodeOpcode(0x73) // system
)

var _opcode_names = map[CodeOpcode]string{
	OPCODE_LOAD:      "load",
	OPCODE_MISC_MEM:  "misc-mem",
	OPCODE_OP_IMM:    "op-imm",
	OPCODE_AUIPC:     "auipc",
	OPCODE_OP_IMM_32: "op-imm-32",
	OPCODE_STORE:     "store",
	OPCODE_OP:        "op",
	OPCODE_LUI:       "lui",
	OPCODE_OP_32:     "op-32",
	OPCODE_BRANCH:    "branch",
	OPCODE_JALR:      "jalr",
	OPCODE_JAL:       "jal",
	OPCODE_SYSTEM:    "system",
}

func (op CodeOpcode) String() string {
	name, ok := _opcode_names[op]
	if !ok {
		return fmt.Sprintf("CodeOpcode(%#02x)", int(op))
	}
	return name
}

// CodeFormat is the operand layout of an instruction.
type CodeFormat int

const (
	FORMAT_R      = CodeFormat(0) // rd, rs1, rs2
	FORMAT_I      = CodeFormat(1) // rd, rs1, imm12
	FORMAT_SHIFT  = CodeFormat(2) // rd, rs1, shamt6
	FORMAT_SHIFTW = CodeFormat(3) // rd, rs1, shamt5
	FORMAT_LOAD   = CodeFormat(4) // rd, imm12(rs1)
	FORMAT_STORE  = CodeFormat(5) // rs2, imm12(rs1)
	FORMAT_U      = CodeFormat(6) // rd, imm20
	FORMAT_FENCE  = CodeFormat(7) // no operands
)

// Mnemonic describes one supported instruction.
type Mnemonic struct {
	Name   string
	Format CodeFormat
	Opcode CodeOpcode
	Funct3 uint32
	Funct7 uint32 // funct6 for FORMAT_SHIFT
}

// Mnemonics is the supported RV64I subset. Control transfer (branch, jal,
// jalr) and system instructions are deliberately absent.
var Mnemonics = []Mnemonic{
	{"lui", FORMAT_U, OPCODE_LUI, 0, 0},
	{"auipc", FORMAT_U, OPCODE_AUIPC, 0, 0},

	{"addi", FORMAT_I, OPCODE_OP_IMM, 0, 0},
	{"slti", FORMAT_I, OPCODE_OP_IMM, 2, 0},
	{"sltiu", FORMAT_I, OPCODE_OP_IMM, 3, 0},
	{"xori", FORMAT_I, OPCODE_OP_IMM, 4, 0},
	{"ori", FORMAT_I, OPCODE_OP_IMM, 6, 0},
	{"andi", FORMAT_I, OPCODE_OP_IMM, 7, 0},
	{"slli", FORMAT_SHIFT, OPCODE_OP_IMM, 1, 0x00},
	{"srli", FORMAT_SHIFT, OPCODE_OP_IMM, 5, 0x00},
	{"srai", FORMAT_SHIFT, OPCODE_OP_IMM, 5, 0x10},

	{"addiw", FORMAT_I, OPCODE_OP_IMM_32, 0, 0},
	{"slliw", FORMAT_SHIFTW, OPCODE_OP_IMM_32, 1, 0x00},
	{"srliw", FORMAT_SHIFTW, OPCODE_OP_IMM_32, 5, 0x00},
	{"sraiw", FORMAT_SHIFTW, OPCODE_OP_IMM_32, 5, 0x20},

	{"add", FORMAT_R, OPCODE_OP, 0, 0x00},
	{"sub", FORMAT_R, OPCODE_OP, 0, 0x20},
	{"sll", FORMAT_R, OPCODE_OP, 1, 0x00},
	{"slt", FORMAT_R, OPCODE_OP, 2, 0x00},
	{"sltu", FORMAT_R, OPCODE_OP, 3, 0x00},
	{"xor", FORMAT_R, OPCODE_OP, 4, 0x00},
	{"srl", FORMAT_R, OPCODE_OP, 5, 0x00},
	{"sra", FORMAT_R, OPCODE_OP, 5, 0x20},
	{"or", FORMAT_R, OPCODE_OP, 6, 0x00},
	{"and", FORMAT_R, OPCODE_OP, 7, 0x00},

	{"addw", FORMAT_R, OPCODE_OP_32, 0, 0x00},
	{"subw", FORMAT_R, OPCODE_OP_32, 0, 0x20},
	{"sllw", FORMAT_R, OPCODE_OP_32, 1, 0x00},
	{"srlw", FORMAT_R, OPCODE_OP_32, 5, 0x00},
	{"sraw", FORMAT_R, OPCODE_OP_32, 5, 0x20},

	{"lb", FORMAT_LOAD, OPCODE_LOAD, 0, 0},
	{"lh", FORMAT_LOAD, OPCODE_LOAD, 1, 0},
	{"lw", FORMAT_LOAD, OPCODE_LOAD, 2, 0},
	{"ld", FORMAT_LOAD, OPCODE_LOAD, 3, 0},
	{"lbu", FORMAT_LOAD, OPCODE_LOAD, 4, 0},
	{"lhu", FORMAT_LOAD, OPCODE_LOAD, 5, 0},
	{"lwu", FORMAT_LOAD, OPCODE_LOAD, 6, 0},

	{"sb", FORMAT_STORE, OPCODE_STORE, 0, 0},
	{"sh", FORMAT_STORE, OPCODE_STORE, 1, 0},
	{"sw", FORMAT_STORE, OPCODE_STORE, 2, 0},
	{"sd", FORMAT_STORE, OPCODE_STORE, 3, 0},

	{"fence", FORMAT_FENCE, OPCODE_MISC_MEM, 0, 0},
}

// LookupMnemonic finds a mnemonic by name.
func LookupMnemonic(name string) (m *Mnemonic, ok bool) {
	for n := range Mnemonics {
		if Mnemonics[n].Name == name {
			return &Mnemonics[n], true
		}
	}
	return
}

// Code is a single 32-bit instruction.
type Code Word

// NOP is `addi x0, x0, 0`.
const NOP = Code(0x0000_0013)

func (code Code) Opcode() CodeOpcode { return CodeOpcode(code & 0x7f) }
func (code Code) Rd() int            { return int((code >> 7) & 0x1f) }
func (code Code) Funct3() uint32     { return uint32((code >> 12) & 0x7) }
func (code Code) Rs1() int           { return int((code >> 15) & 0x1f) }
func (code Code) Rs2() int           { return int((code >> 20) & 0x1f) }
func (code Code) Funct7() uint32     { return uint32(code >> 25) }
func (code Code) Funct6() uint32     { return uint32(code >> 26) }

// ImmI returns the sign-extended I-type immediate.
func (code Code) ImmI() int64 {
	return int64(int32(code) >> 20)
}

// ImmS returns the sign-extended S-type immediate.
func (code Code) ImmS() int64 {
	return (int64(int32(code)>>25) << 5) | int64((code>>7)&0x1f)
}

// ImmU returns the sign-extended U-type immediate, already shifted.
func (code Code) ImmU() int64 {
	return int64(int32(code & 0xffff_f000))
}

// Shamt returns the shift amount; 6 bits for FORMAT_SHIFT, 5 for FORMAT_SHIFTW.
func (code Code) Shamt(format CodeFormat) uint {
	if format == FORMAT_SHIFTW {
		return uint((code >> 20) & 0x1f)
	}
	return uint((code >> 20) & 0x3f)
}

// Decode finds the mnemonic for the instruction.
func (code Code) Decode() (m *Mnemonic, ok bool) {
	opcode := code.Opcode()
	for n := range Mnemonics {
		cand := &Mnemonics[n]
		if cand.Opcode != opcode {
			continue
		}
		switch cand.Format {
		case FORMAT_U:
			ok = true
		case FORMAT_FENCE:
			ok = code.Funct3() == cand.Funct3
		case FORMAT_I, FORMAT_LOAD, FORMAT_STORE:
			ok = code.Funct3() == cand.Funct3
		case FORMAT_SHIFT:
			ok = code.Funct3() == cand.Funct3 && code.Funct6() == cand.Funct7
		case FORMAT_R, FORMAT_SHIFTW:
			ok = code.Funct3() == cand.Funct3 && code.Funct7() == cand.Funct7
		}
		if ok {
			m = cand
			return
		}
	}

	return
}

// Encode builds an instruction from a mnemonic and its operands. Operands
// not used by the mnemonic's format are ignored.
func Encode(m *Mnemonic, rd, rs1, rs2 int, imm int64) (code Code, err error) {
	for _, reg := range []int{rd, rs1, rs2} {
		if reg < 0 || reg > 31 {
			err = ErrRegisterInvalid
			return
		}
	}

	base := uint32(m.Opcode) | (m.Funct3 << 12)

	var word uint32
	switch m.Format {
	case FORMAT_R:
		word = base | uint32(rd)<<7 | uint32(rs1)<<15 | uint32(rs2)<<20 | m.Funct7<<25
	case FORMAT_I, FORMAT_LOAD:
		if imm < -2048 || imm > 2047 {
			err = ErrImmediateRange
			return
		}
		word = base | uint32(rd)<<7 | uint32(rs1)<<15 | (uint32(imm)&0xfff)<<20
	case FORMAT_SHIFT:
		if imm < 0 || imm > 63 {
			err = ErrImmediateRange
			return
		}
		word = base | uint32(rd)<<7 | uint32(rs1)<<15 | uint32(imm)<<20 | m.Funct7<<26
	case FORMAT_SHIFTW:
		if imm < 0 || imm > 31 {
			err = ErrImmediateRange
			return
		}
		word = base | uint32(rd)<<7 | uint32(rs1)<<15 | uint32(imm)<<20 | m.Funct7<<25
	case FORMAT_STORE:
		if imm < -2048 || imm > 2047 {
			err = ErrImmediateRange
			return
		}
		u := uint32(imm) & 0xfff
		word = base | (u&0x1f)<<7 | uint32(rs1)<<15 | uint32(rs2)<<20 | (u>>5)<<25
	case FORMAT_U:
		// Accepts the 20-bit field, signed or unsigned.
		if imm < -(1<<19) || imm > 0xfffff {
			err = ErrImmediateRange
			return
		}
		word = base | uint32(rd)<<7 | (uint32(imm)&0xfffff)<<12
	case FORMAT_FENCE:
		word = base
	}

	code = Code(word)
	return
}

// String returns the assembly language representation of this instruction.
func (code Code) String() (out string) {
	m, ok := code.Decode()
	if !ok {
		return fmt.Sprintf(".word 0x%08x", uint32(code))
	}

	switch m.Format {
	case FORMAT_R:
		out = fmt.Sprintf("%v x%d, x%d, x%d", m.Name, code.Rd(), code.Rs1(), code.Rs2())
	case FORMAT_I:
		out = fmt.Sprintf("%v x%d, x%d, %d", m.Name, code.Rd(), code.Rs1(), code.ImmI())
	case FORMAT_SHIFT, FORMAT_SHIFTW:
		out = fmt.Sprintf("%v x%d, x%d, %d", m.Name, code.Rd(), code.Rs1(), code.Shamt(m.Format))
	case FORMAT_LOAD:
		out = fmt.Sprintf("%v x%d, %d(x%d)", m.Name, code.Rd(), code.ImmI(), code.Rs1())
	case FORMAT_STORE:
		out = fmt.Sprintf("%v x%d, %d(x%d)", m.Name, code.Rs2(), code.ImmS(), code.Rs1())
	case FORMAT_U:
		out = fmt.Sprintf("%v x%d, 0x%x", m.Name, code.Rd(), uint32(code)>>12)
	case FORMAT_FENCE:
		out = m.Name
	}

	return
}

// registerMap maps register names, numeric and ABI, to register numbers.
var registerMap = map[string]int{
	"zero": 0, "ra": 1, "sp": 2, "gp": 3, "tp": 4,
	"t0": 5, "t1": 6, "t2": 7,
	"s0": 8, "fp": 8, "s1": 9,
	"a0": 10, "a1": 11, "a2": 12, "a3": 13, "a4": 14, "a5": 15, "a6": 16, "a7": 17,
	"s2": 18, "s3": 19, "s4": 20, "s5": 21, "s6": 22, "s7": 23,
	"s8": 24, "s9": 25, "s10": 26, "s11": 27,
	"t3": 28, "t4": 29, "t5": 30, "t6": 31,
}

func init() {
	for n := range 32 {
		registerMap[fmt.Sprintf("x%d", n)] = n
	}
}
