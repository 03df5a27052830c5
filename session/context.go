package session

import (
	"github.com/ezrec/goosea/node"
	"github.com/google/uuid"
)

// ExecutionContext is the state of one session: its id and its CPU model.
type ExecutionContext struct {
	id    uuid.UUID
	model node.Model
}

var _ node.Context = (*ExecutionContext)(nil)

// NewExecutionContext creates a context with a fresh id for model.
func NewExecutionContext(model node.Model) (ec *ExecutionContext) {
	ec = &ExecutionContext{
		id:    uuid.New(),
		model: model,
	}

	return
}

// Id returns the session id.
func (ec *ExecutionContext) Id() uuid.UUID {
	return ec.id
}

// Model returns the session's CPU model.
func (ec *ExecutionContext) Model() node.Model {
	return ec.model
}

func (ec *ExecutionContext) String() string {
	return ec.id.String()
}
