package node

import (
	"errors"

	"github.com/ezrec/goosea/cpu"
	"github.com/ezrec/goosea/translate"
)

var f = translate.From

var (
	ErrAccessorMissing = errors.New(f("context accessor missing"))
)

// ErrNode is a failure while executing the node bound to Address.
type ErrNode struct {
	Address cpu.Address
	Err     error
}

func (err *ErrNode) Error() string {
	return f("node 0x%x: %v", uint64(err.Address), err.Err)
}

func (err *ErrNode) Unwrap() error {
	return err.Err
}
