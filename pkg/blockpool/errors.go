package blockpool

import (
	"fmt"

	"github.com/goran-ethernal/chainobserver/pkg/chain"
)

// ErrMissingBlockBody is a program invariant violation: the canonical
// segment named a block whose body was not found in the store. Event
// generation aborts for that step; pool state is left unchanged.
type ErrMissingBlockBody struct {
	Identifier chain.BlockIdentifier
}

func (e *ErrMissingBlockBody) Error() string {
	return fmt.Sprintf("blockpool: missing body for block %s", e.Identifier)
}

func newMissingBlockBodyError(id chain.BlockIdentifier) error {
	return &ErrMissingBlockBody{Identifier: id}
}
