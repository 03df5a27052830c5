package emulator

import (
	"github.com/ezrec/goosea/cpu"
	"github.com/ezrec/goosea/translate"
)

var f = translate.From

// ErrRuntime indicates the location of a runtime error.
type ErrRuntime struct {
	Address cpu.Address // Address of the failing instruction.
	LineNo  int         // Source line, or 0 if not from the program.
	Err     error
}

func (err *ErrRuntime) Error() string {
	return f("line %d (0x%x) %v", err.LineNo, uint64(err.Address), err.Err)
}

func (err *ErrRuntime) Unwrap() error {
	return err.Err
}
