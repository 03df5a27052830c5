// Copyright 2024, Jason S. McMullan <jason.mcmullan@gmail.com>

package cpu

import (
	"bufio"
	"fmt"
	"io"
	"iter"
	"log"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// Macro represents a macro definition in the assembly language.
type Macro struct {
	LineNo int      // Line number of the macro definition.
	Args   []string // Arguments for the macro.
	Lines  []string // Lines of macro text to expand.
}

// Predefined system equates
var sysEquate = map[string]string{
	"LINENO": "0",
	"NOP":    fmt.Sprintf("%#x", uint32(NOP)),
}

var (
	reCharacter = regexp.MustCompile(`'\\?[^']'`)
	reParen     = regexp.MustCompile(`\$\([^\$()]*(\([^\$()]*\)[^\$()]*)*\)`)
	reIndirect  = regexp.MustCompile(`^(.*)\(([A-Za-z0-9]+)\)$`)
	reLabel     = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// Assembler is a single pass macro assembler for the RV64I subset.
type Assembler struct {
	Verbose bool     // If set, verbosely logs the assembler actions.
	Opcode  []Opcode // List of generated opcodes.

	predefine map[string]string   // Predefines
	Label     map[string]Address  // Map of labels to addresses.
	Equate    map[string]string   // Map of equates.
	Macro     map[string](*Macro) // Map of macros.

	pc Address // Address of the next emitted word.
}

// Predefine defines a new equate or redefines an existing equate.
func (asm *Assembler) Predefine(equ string, value string) {
	if asm.predefine == nil {
		asm.predefine = map[string]string{equ: value}
	} else {
		asm.predefine[equ] = value
	}
}

// PredefineAll predefines every equate in defines.
func (asm *Assembler) PredefineAll(defines iter.Seq2[string, string]) {
	for equ, value := range defines {
		asm.Predefine(equ, value)
	}
}

// valueOf returns the value of a simple word.
func (asm *Assembler) valueOf(word string) (value int64, err error) {
	if len(word) == 0 {
		err = ErrParseNumber(word)
		return
	}

	invert := false
	if word[0] == '~' {
		invert = true
		word = word[1:]
	}

	if equate, ok := asm.Equate[word]; ok && equate != word {
		value, err = asm.valueOf(equate)
	} else if addr, ok := asm.Label[word]; ok {
		value = int64(addr)
	} else if v64, perr := strconv.ParseInt(word, 0, 64); perr == nil {
		value = v64
	} else if u64, perr := strconv.ParseUint(word, 0, 64); perr == nil {
		value = int64(u64)
	} else {
		err = ErrParseNumber(word)
	}
	if err != nil {
		return
	}

	if invert {
		value = ^value
	}

	return
}

// parenEval does compile-time $(...) evaluations
func (asm *Assembler) parenEval(expr string) (value int64, err error) {
	thread := starlark.Thread{}
	opts := syntax.FileOptions{}
	pred := starlark.StringDict{}
	for key := range asm.Equate {
		var v int64
		v, err = asm.valueOf(key)
		if err != nil {
			// Ignore non-integer equates. They may be registers
			// or something else.
			err = nil
			continue
		}
		pred[key] = starlark.MakeInt64(v)
	}
	for key, addr := range asm.Label {
		pred[key] = starlark.MakeUint64(uint64(addr))
	}
	prog := "rc=" + expr + "\n"
	dict, err := starlark.ExecFileOptions(&opts, &thread, "expr", prog, pred)
	if err != nil {
		return
	}
	st_rc, ok := dict["rc"]
	if !ok {
		err = ErrParseExpression(expr)
		return
	}
	st_int, ok := st_rc.(starlark.Int)
	if !ok {
		err = ErrParseExpression(expr)
		return
	}
	st_int64, ok := st_int.Int64()
	if !ok {
		st_uint64, uok := st_int.Uint64()
		if !uok {
			err = ErrParseExpression(expr)
			return
		}
		st_int64 = int64(st_uint64)
	}
	value = st_int64
	return
}

// parseLine parses a single line as an opcode.
func (asm *Assembler) parseLine(line string, lineno int) (words []string, err error) {
	// Set line number.
	asm.Equate["LINENO"] = fmt.Sprintf("%v", lineno)

	// Do 'x' evaluations
	line = reCharacter.ReplaceAllStringFunc(line, func(word string) string {
		str := word[1 : len(word)-1]
		if str[0] == '\\' {
			str = str[1:]
			switch str {
			case "\\":
				str = "\\"
			case "n":
				str = "\n"
			case "r":
				str = "\r"
			case "e":
				str = "\033"
			default:
				return word
			}
		} else if len(str) != 1 {
			return word
		}
		return fmt.Sprintf("%v", str[0])
	})

	// Do $() evaluations
	line = reParen.ReplaceAllStringFunc(line, func(str string) string {
		value, _err := asm.parenEval(str[2 : len(str)-1])
		if _err != nil {
			err = _err
		}
		return fmt.Sprintf("%d", value)
	})
	if err != nil {
		return
	}

	line = strings.ReplaceAll(line, ",", " ")
	words = strings.Fields(line)

	if len(words) == 0 {
		return
	}

	// .equ CONST VALUE
	if words[0] == ".equ" {
		if len(words) != 3 {
			err = ErrEquateSyntax
			return
		}
		_, ok := asm.Equate[words[1]]
		if ok {
			err = ErrEquateDuplicate
			return
		}
		asm.Equate[words[1]] = words[2]
		words = words[:0]
		return
	}

	for n, word := range words {
		// Check for equate next
		equate, ok := asm.Equate[word]
		if ok {
			words[n] = equate
		}
	}

	for strings.HasSuffix(words[0], ":") {
		label := words[0][:len(words[0])-1]
		_, ok := asm.Label[label]
		if ok {
			err = ErrLabelDuplicate
			return
		}

		if asm.Label == nil {
			asm.Label = make(map[string]Address, 16)
		}
		asm.Label[label] = asm.pc
		words = words[1:]
		if len(words) == 0 {
			return
		}
	}

	// .macro processing
	macro, ok := asm.Macro[words[0]]
	if ok {
		name := words[0]

		args := words[1:]
		if len(args) != len(macro.Args) {
			err = ErrMacroSyntax
			return
		}
		// Turn args into equs
		old_equate := maps.Clone(asm.Equate)
		for n, arg := range macro.Args {
			asm.Equate[arg] = words[1+n]
		}
		defer func() { asm.Equate = old_equate }()

		for n, line := range macro.Lines {
			lineno := macro.LineNo + n

			line = strings.ReplaceAll(line, "@", fmt.Sprintf("%v_%v_", name, lineno))
			words, err = asm.parseLine(line, lineno)
			if err != nil {
				err = &ErrMacro{Macro: name, Line: lineno, Err: err}
				err = &ErrSyntax{LineNo: lineno, Line: line, Err: err}
				return
			}

			err = asm.parseWords(words, lineno)
			if err != nil {
				err = &ErrMacro{Macro: name, Line: lineno, Err: err}
				err = &ErrSyntax{LineNo: lineno, Line: line, Err: err}
				return
			}
		}

		words = nil
		return
	}

	return
}

// Parse parses an input stream into a Program.
func (asm *Assembler) Parse(input io.Reader) (prog *Program, err error) {
	scanner := bufio.NewScanner(input)

	var line string
	var lineno int
	var macro *Macro

	defer func() {
		if err != nil {
			err = &ErrSyntax{LineNo: lineno, Line: line, Err: err}
		}
	}()

	asm.pc = 0
	clear(asm.Label)
	asm.Opcode = asm.Opcode[:0]
	if asm.Macro == nil {
		asm.Macro = make(map[string](*Macro))
	}
	clear(asm.Macro)
	asm.Equate = maps.Clone(sysEquate)
	for attr, val := range asm.predefine {
		asm.Equate[attr] = val
	}

	for scanner.Scan() {
		text := scanner.Text()
		lineno += 1

		if asm.Verbose {
			log.Printf("%v: %v\n", lineno, text)
		}

		text, _, _ = strings.Cut(text, ";")
		text, _, _ = strings.Cut(text, "#")
		line = strings.TrimSpace(text)
		words := strings.Fields(line)

		// .macro NAME arg...
		if len(words) > 0 && words[0] == ".macro" {
			if macro != nil {
				err = ErrMacroNesting
				return
			}
			if len(words) < 2 {
				err = ErrMacroSyntax
				return
			}
			_, ok := asm.Macro[words[1]]
			if ok {
				err = ErrMacroDuplicate
				return
			}
			macro = &Macro{
				LineNo: lineno + 1,
			}
			if len(words) > 2 {
				macro.Args = words[2:]
			}
			asm.Macro[words[1]] = macro
			continue
		}

		if len(words) > 0 && words[0] == ".endm" {
			if macro == nil {
				err = ErrMacroLonelyEndm
				return
			}
			macro = nil
			continue
		}

		if macro != nil {
			macro.Lines = append(macro.Lines, line)
			continue
		}

		words, err = asm.parseLine(line, lineno)
		if err != nil {
			return
		}

		err = asm.parseWords(words, lineno)
		if err != nil {
			return
		}
	}

	err = scanner.Err()
	if err != nil {
		return
	}

	if macro != nil {
		err = ErrMacroLonely
		return
	}

	// Final linking of label references.
	for n := range asm.Opcode {
		op := &asm.Opcode[n]

		if len(op.LinkLabel) == 0 {
			continue
		}
		lineno = op.LineNo
		line = strings.Join(op.Words, " ")

		addr, ok := asm.Label[op.LinkLabel]
		if !ok {
			err = ErrLabelMissing(op.LinkLabel)
			return
		}

		if op.Data {
			op.Code = Code(addr)
			continue
		}

		imm := int64(addr)
		if op.mnemonic.Format == FORMAT_U {
			imm >>= 12
		}
		op.Code, err = Encode(op.mnemonic, op.operands[0], op.operands[1], op.operands[2], imm)
		if err != nil {
			return
		}
	}

	prog = &Program{
		Opcodes: slices.Clone(asm.Opcode),
	}

	return
}

// register parses a register name.
func (asm *Assembler) register(word string) (reg int, err error) {
	reg, ok := registerMap[strings.ToLower(word)]
	if !ok {
		err = ErrRegisterInvalid
	}
	return
}

// immediate parses an immediate. Unknown identifiers are assumed to be
// labels defined later in the source.
func (asm *Assembler) immediate(word string) (imm int64, link string, err error) {
	imm, err = asm.valueOf(word)
	if err != nil && reLabel.MatchString(word) {
		err = nil
		link = word
	}
	return
}

// emit appends an opcode at the current address.
func (asm *Assembler) emit(op Opcode) {
	op.Address = asm.pc
	asm.Opcode = append(asm.Opcode, op)
	asm.pc += 4
}

// emitCode encodes and emits one instruction.
func (asm *Assembler) emitCode(m *Mnemonic, words []string, lineno int, rd, rs1, rs2 int, imm int64, link string) (err error) {
	if len(link) != 0 {
		// Placeholder until the label is linked.
		imm = 0
	}

	code, err := Encode(m, rd, rs1, rs2, imm)
	if err != nil {
		return
	}

	asm.emit(Opcode{
		LineNo:    lineno,
		Words:     words,
		Code:      code,
		LinkLabel: link,
		mnemonic:  m,
		operands:  [3]int{rd, rs1, rs2},
	})

	return
}

// parseWords evaluates the words in a line of assembly text.
func (asm *Assembler) parseWords(words []string, lineno int) (err error) {
	// no-op
	if len(words) == 0 {
		return
	}

	initial_words := slices.Clone(words)

	// Directives
	switch words[0] {
	case ".org":
		if len(words) != 2 {
			err = ErrOrgSyntax
			return
		}
		var org int64
		org, err = asm.valueOf(words[1])
		if err != nil {
			return
		}
		if Address(org) < asm.pc || org&3 != 0 {
			err = ErrOrgBackwards
			return
		}
		asm.pc = Address(org)
		return
	case ".word":
		if len(words) < 2 {
			err = ErrWordSyntax
			return
		}
		for _, word := range words[1:] {
			var value int64
			var link string
			value, link, err = asm.immediate(word)
			if err != nil {
				return
			}
			asm.emit(Opcode{LineNo: lineno, Words: initial_words, Code: Code(uint32(value)), Data: true, LinkLabel: link})
		}
		return
	}

	// Pseudo-instructions
	switch strings.ToLower(words[0]) {
	case "nop":
		if len(words) != 1 {
			err = ErrOperandCount
			return
		}
		words = []string{"addi", "x0", "x0", "0"}
	case "mv":
		if len(words) != 3 {
			err = ErrOperandCount
			return
		}
		words = []string{"addi", words[1], words[2], "0"}
	case "li":
		if len(words) != 3 {
			err = ErrOperandCount
			return
		}
		var value int64
		value, err = asm.valueOf(words[2])
		if err != nil {
			return
		}
		if value >= -2048 && value <= 2047 {
			words = []string{"addi", words[1], "x0", words[2]}
			break
		}
		if value < -(1<<31) || value > (1<<31)-1 {
			err = ErrImmediateRange
			return
		}
		hi := (value + 0x800) >> 12
		lo := value - (hi << 12)
		var rd int
		rd, err = asm.register(words[1])
		if err != nil {
			return
		}
		lui, _ := LookupMnemonic("lui")
		addiw, _ := LookupMnemonic("addiw")
		err = asm.emitCode(lui, initial_words, lineno, rd, 0, 0, hi&0xfffff, "")
		if err != nil {
			return
		}
		err = asm.emitCode(addiw, initial_words, lineno, rd, rd, 0, lo, "")
		return
	}

	m, ok := LookupMnemonic(strings.ToLower(words[0]))
	if !ok {
		err = ErrInstructionInvalid
		return
	}

	operands := words[1:]

	var rd, rs1, rs2 int
	var imm int64
	var link string

	switch m.Format {
	case FORMAT_FENCE:
		// fence accepts (and ignores) ordering operands.
	case FORMAT_R:
		if len(operands) != 3 {
			err = ErrOperandCount
			return
		}
		if rd, err = asm.register(operands[0]); err != nil {
			return
		}
		if rs1, err = asm.register(operands[1]); err != nil {
			return
		}
		if rs2, err = asm.register(operands[2]); err != nil {
			return
		}
	case FORMAT_I, FORMAT_SHIFT, FORMAT_SHIFTW:
		if len(operands) != 3 {
			err = ErrOperandCount
			return
		}
		if rd, err = asm.register(operands[0]); err != nil {
			return
		}
		if rs1, err = asm.register(operands[1]); err != nil {
			return
		}
		if imm, link, err = asm.immediate(operands[2]); err != nil {
			return
		}
	case FORMAT_U:
		if len(operands) != 2 {
			err = ErrOperandCount
			return
		}
		if rd, err = asm.register(operands[0]); err != nil {
			return
		}
		if imm, link, err = asm.immediate(operands[1]); err != nil {
			return
		}
	case FORMAT_LOAD, FORMAT_STORE:
		// op reg, imm(base)   or   op reg, imm, base
		var reg int
		var offset, base string
		switch len(operands) {
		case 2:
			parts := reIndirect.FindStringSubmatch(operands[1])
			if parts == nil {
				err = ErrOperandCount
				return
			}
			offset, base = parts[1], parts[2]
			if len(offset) == 0 {
				offset = "0"
			}
		case 3:
			offset, base = operands[1], operands[2]
		default:
			err = ErrOperandCount
			return
		}
		if reg, err = asm.register(operands[0]); err != nil {
			return
		}
		if rs1, err = asm.register(base); err != nil {
			return
		}
		if imm, link, err = asm.immediate(offset); err != nil {
			return
		}
		if m.Format == FORMAT_LOAD {
			rd = reg
		} else {
			rs2 = reg
		}
	}

	return asm.emitCode(m, initial_words, lineno, rd, rs1, rs2, imm, link)
}
