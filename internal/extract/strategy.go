// Package extract pulls the final answer and its citations out of a settled
// content snapshot. Target markup shifts between releases, so no single
// parsing approach is trusted; an ordered cascade of strategies runs until one
// produces acceptable text.
package extract

import (
	"errors"

	"github.com/kvasirlabs/askpilot/api/schemas"
)

// ErrStrategyDeclined is the sentinel a strategy returns when its structural
// assumptions do not hold for this snapshot. Declining is not a failure; the
// cascade simply moves on.
var ErrStrategyDeclined = errors.New("strategy declined")

// Strategy is one self-contained approach to recovering the answer text from
// a snapshot. Extract either succeeds with non-empty text, declines with
// ErrStrategyDeclined, or fails with a real error.
type Strategy interface {
	Name() string
	Extract(snap *schemas.Snapshot) (string, error)
}
