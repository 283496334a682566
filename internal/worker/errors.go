package worker

import (
	"errors"
	"fmt"
)

// FetchError reports a failed document download.
type FetchError struct{ Err error }

func (e *FetchError) Error() string { return "fetch: " + e.Err.Error() }
func (e *FetchError) Unwrap() error { return e.Err }

// Kind names the failure for the error_reason column.
func (e *FetchError) Kind() State { return StateFetchFailed }

// TransformError reports a failed field extraction.
type TransformError struct{ Err error }

func (e *TransformError) Error() string { return "transform: " + e.Err.Error() }
func (e *TransformError) Unwrap() error { return e.Err }

// Kind names the failure for the error_reason column.
func (e *TransformError) Kind() State { return StateTransformFailed }

// PersistError reports a failed MarkDone write.
type PersistError struct{ Err error }

func (e *PersistError) Error() string { return "persist: " + e.Err.Error() }
func (e *PersistError) Unwrap() error { return e.Err }

// Kind names the failure for the error_reason column.
func (e *PersistError) Kind() State { return StatePersistFailed }

type kinded interface {
	Kind() State
}

// failureState maps a pipeline error to the state it ends in.
func failureState(err error) State {
	var k kinded
	if errors.As(err, &k) {
		return k.Kind()
	}
	return StateTransformFailed
}

// failureReason renders the error_reason stored on the row, e.g.
// "fetch_failed:unexpected status 404".
func failureReason(err error) string {
	cause := err
	if inner := errors.Unwrap(err); inner != nil {
		cause = inner
	}
	return fmt.Sprintf("%s:%s", failureState(err), cause.Error())
}
