package cpu

import (
	"errors"

	"github.com/ezrec/goosea/translate"
)

var f = translate.From

var (
	// Memory errors
	ErrFetchFault    = errors.New(f("fetch fault"))
	ErrLoadFault     = errors.New(f("load fault"))
	ErrStoreFault    = errors.New(f("store fault"))
	ErrMisaligned    = errors.New(f("misaligned"))
	ErrMapOverlap    = errors.New(f("memory map overlap"))
	ErrMapEmpty      = errors.New(f("memory map empty"))
	ErrSnapshotState = errors.New(f("snapshot state invalid"))

	// Instruction decode errors
	ErrUnimplementedOpcode = errors.New(f("unimplemented opcode"))

	// Assembler errors
	ErrEquateSyntax       = errors.New(f(".equ syntax"))
	ErrEquateDuplicate    = errors.New(f(".equ duplicated"))
	ErrLabelDuplicate     = errors.New(f("label duplicated"))
	ErrMacroSyntax        = errors.New(f(".macro syntax"))
	ErrMacroNesting       = errors.New(f(".macro in .macro prohibited"))
	ErrMacroDuplicate     = errors.New(f(".macro duplicated"))
	ErrMacroLonely        = errors.New(f(".macro without .endm"))
	ErrMacroLonelyEndm    = errors.New(f(".endm without .macro"))
	ErrOrgSyntax          = errors.New(f(".org syntax"))
	ErrOrgBackwards       = errors.New(f(".org moves backwards"))
	ErrWordSyntax         = errors.New(f(".word syntax"))
	ErrOperandCount       = errors.New(f("operand count"))
	ErrRegisterInvalid    = errors.New(f("register invalid"))
	ErrImmediateRange     = errors.New(f("immediate out of range"))
	ErrInstructionInvalid = errors.New(f("instruction invalid"))
)

// Access is the kind of memory access that faulted.
type Access int

const (
	ACCESS_FETCH = Access(0)
	ACCESS_LOAD  = Access(1)
	ACCESS_STORE = Access(2)
)

func (access Access) String() string {
	switch access {
	case ACCESS_FETCH:
		return "fetch"
	case ACCESS_LOAD:
		return "load"
	case ACCESS_STORE:
		return "store"
	}
	return "access"
}

// ErrFault reports the address of a memory access that could not complete.
type ErrFault struct {
	Access  Access
	Address Address
	Err     error
}

func (err *ErrFault) Error() string {
	return f("%v 0x%x: %v", err.Access, uint64(err.Address), err.Err)
}

func (err *ErrFault) Unwrap() error {
	return err.Err
}

// newFault builds the fault for access at addr.
func newFault(access Access, addr Address, cause error) error {
	var sentinel error
	switch access {
	case ACCESS_FETCH:
		sentinel = ErrFetchFault
	case ACCESS_LOAD:
		sentinel = ErrLoadFault
	default:
		sentinel = ErrStoreFault
	}

	if cause != nil {
		sentinel = errors.Join(sentinel, cause)
	}

	return &ErrFault{Access: access, Address: addr, Err: sentinel}
}

// ErrOpcode is the instruction word that failed to execute.
type ErrOpcode Word

func (eo ErrOpcode) Error() string {
	return f("bad opcode 0x%08x %v", uint32(eo), Code(eo).String())
}

func (eo ErrOpcode) Is(err error) (ok bool) {
	_, ok = err.(ErrOpcode)
	return
}

type ErrSyntax struct {
	LineNo int
	Line   string
	Err    error
}

func (err ErrSyntax) Error() string {
	return f("line %d '%v' %v", err.LineNo, err.Line, err.Err)
}

func (err ErrSyntax) Unwrap() error {
	return err.Err
}

type ErrLabelMissing string

func (el ErrLabelMissing) Error() string {
	return f("label %v missing", string(el))
}

type ErrParseNumber string

func (err ErrParseNumber) Error() string {
	return f("'%v' is not a number", string(err))
}

type ErrParseExpression string

func (err ErrParseExpression) Error() string {
	return f("$(%v) is not a valid expression", string(err))
}

type ErrMacro struct {
	Macro string
	Line  int
	Err   error
}

func (err ErrMacro) Error() string {
	return f("macro %v line %v %v", err.Macro, err.Line, err.Err.Error())
}

func (err ErrMacro) Unwrap() error {
	return err.Err
}
