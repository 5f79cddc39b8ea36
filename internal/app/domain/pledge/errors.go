package pledge

import "errors"

// Error classes for pledge operations. Call sites wrap these with
// fmt.Errorf("...: %w", Err...) to add detail; callers classify with
// errors.Is. Every error aborts the whole operation with no partial
// mutation.
var (
	// ErrUnauthorized rejects a non-owner invoking an owner-only
	// operation.
	ErrUnauthorized = errors.New("not the contract owner")

	// ErrState rejects an operation the contract state forbids: anything
	// gated on Open while Closed, closing twice, or generating twice.
	ErrState = errors.New("contract state forbids this operation")

	// ErrValidation rejects malformed input: empty text fields, a null
	// receiver identity, or a below-threshold payment.
	ErrValidation = errors.New("invalid argument")

	// ErrNotFound reports that no stored record matched a descriptor.
	ErrNotFound = errors.New("no matching egg")

	// ErrCapacity rejects operations that ran out of allowance: a locked
	// edit, a second transfer, or upkeep on an empty collection.
	ErrCapacity = errors.New("limit reached")

	// ErrTransferFailed reports a payment-forwarding failure on the value
	// rail. Registry state is untouched when it is returned.
	ErrTransferFailed = errors.New("payment transfer failed")
)
