package session

import (
	"errors"

	"github.com/ezrec/goosea/translate"
)

var f = translate.From

var (
	ErrSessionNotBound = errors.New(f("session not bound"))
	ErrSessionUnknown  = errors.New(f("session unknown"))
)
