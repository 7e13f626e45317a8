package call

import (
	"errors"
	"fmt"
)

var (
	ErrMediaAccess       = errors.New("media access denied")
	ErrConnectionSetup   = errors.New("connection setup failed")
	ErrSignalingDelivery = errors.New("signaling delivery failed")
	ErrNegotiation       = errors.New("negotiation failed")
	ErrICEFailure        = errors.New("ice connection failed")

	ErrSessionActive    = errors.New("a call session is already active")
	ErrNoSession        = errors.New("no call session")
	ErrUnknownCall      = errors.New("unknown call id")
	ErrCallCancelled    = errors.New("call cancelled")
	ErrCallTypeMismatch = errors.New("accept type is not covered by the offer")
)

// CallError ties a failure to the call it ended. errors.Is matches both the
// Kind sentinel and the wrapped cause.
type CallError struct {
	CallID string
	Kind   error
	Err    error
}

func newCallError(callID string, kind, err error) *CallError {
	return &CallError{CallID: callID, Kind: kind, Err: err}
}

func (e *CallError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("call %s: %v", e.CallID, e.Kind)
	}
	return fmt.Sprintf("call %s: %v: %v", e.CallID, e.Kind, e.Err)
}

func (e *CallError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// KindOf returns the Kind of the first CallError in err's chain, or nil.
func KindOf(err error) error {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return nil
}
