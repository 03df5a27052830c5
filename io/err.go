package io

import (
	"errors"

	"github.com/ezrec/goosea/translate"
)

var f = translate.From

var (
	// Device errors
	ErrRegisterInvalid = errors.New(f("device register invalid"))
	ErrWidthInvalid    = errors.New(f("device access width invalid"))
	ErrDeviceClosed    = errors.New(f("device closed"))
	ErrReadOnly        = errors.New(f("device is read-only"))
)
