package session

import (
	"github.com/sells-group/valuation-console/pkg/valuation"
)

// Kind tags which SessionState holds.
type Kind int

const (
	Idle Kind = iota
	Loading
	Succeeded
	Failed
)

func (k Kind) String() string {
	switch k {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// State is the session's request state. Result is set only when Kind is
// Succeeded and Err only when Kind is Failed.
type State struct {
	Kind   Kind
	Result *valuation.Result
	Err    error
}

// Busy reports whether the submit control must be disabled.
func (s State) Busy() bool {
	return s.Kind == Loading
}

// HasResult reports whether the result panel is shown.
func (s State) HasResult() bool {
	return s.Kind == Succeeded && s.Result != nil
}

func succeeded(r valuation.Result) State {
	return State{Kind: Succeeded, Result: &r}
}

func failed(err error) State {
	return State{Kind: Failed, Err: err}
}
