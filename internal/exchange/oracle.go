// File: internal/exchange/oracle.go
package exchange

import (
	"time"

	"github.com/xkilldash9x/parley-cli/internal/wait"
)

// CompletionOracle yields the condition that means a reply has finished
// streaming. It is the only completion signal; text stability is never used.
type CompletionOracle interface {
	Done(timeout time.Duration) wait.Condition
}

// AffordanceOracle treats the appearance of a UI control that only exists
// between replies (the composer's voice button) as completion.
type AffordanceOracle struct {
	Selector string
}

func (o AffordanceOracle) Done(timeout time.Duration) wait.Condition {
	cond := wait.Present(o.Selector, timeout)
	cond.Description = "reply completion (" + o.Selector + ")"
	return cond
}
