package hookgate

import (
	"errors"
	"fmt"

	"github.com/uptrace/hookgate/schema"
)

var (
	// ErrMalformedEvent reports an event whose old/new images do not match its
	// kind. Programmer error; retrying reproduces it.
	ErrMalformedEvent = errors.New("hookgate: malformed mutation event")

	// ErrRegistryLocked reports a Register or Unregister call issued while a
	// dispatch is in flight, e.g. from within a hook.
	ErrRegistryLocked = errors.New("hookgate: registry is locked during dispatch")

	// ErrDuplicateHandle reports a handle registered twice.
	ErrDuplicateHandle = errors.New("hookgate: hook handle already registered")

	// ErrAfterReject reports an AFTER hook that tried to veto. AFTER hooks
	// cannot reject a mutation that is already applied; the attempt aborts the
	// transaction instead.
	ErrAfterReject = errors.New("hookgate: AFTER hook cannot reject")
)

// MutationRejectedError is returned by Apply when a BEFORE hook vetoed the
// mutation. The reason is the hook's verbatim rejection reason, a business
// rule violation rather than a system failure.
type MutationRejectedError struct {
	Entity schema.EntityType
	Kind   Kind
	Reason string
}

func (e *MutationRejectedError) Error() string {
	return fmt.Sprintf("hookgate: %s %s rejected: %s", e.Entity, e.Kind, e.Reason)
}

// StorageError wraps a failure of the underlying store adapter. The cause is
// preserved verbatim and may be transient; the caller decides whether to
// retry.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("hookgate: storage %s: %s", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// PostHookFailedError is returned by Apply when an AFTER hook failed once the
// primary write was already staged. The whole transaction is rolled back; no
// partial audit trail survives.
type PostHookFailedError struct {
	Err error
}

func (e *PostHookFailedError) Error() string {
	return fmt.Sprintf("hookgate: after-hook failed: %s", e.Err)
}

func (e *PostHookFailedError) Unwrap() error {
	return e.Err
}
