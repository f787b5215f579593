package courier

import (
	"errors"
)

// Sentinel errors for common failure scenarios. Every failing engine
// operation leaves all state unchanged; none of these represent partial
// application.
var (
	// General errors
	ErrNotFound     = errors.New("courier: not found")
	ErrInvalidInput = errors.New("courier: invalid input")

	// Channel errors
	ErrChannelNotFound  = errors.New("courier: channel not found")
	ErrEmptyChannelName = errors.New("courier: channel name is empty")
	ErrNegativePrice    = errors.New("courier: access price is negative")

	// Membership errors
	ErrAccessDenied  = errors.New("courier: access denied")
	ErrAlreadyMember = errors.New("courier: already a member")

	// Join payment errors
	ErrInsufficientPayment = errors.New("courier: payment below access price")
	ErrOverPayment         = errors.New("courier: payment above access price")
	ErrUnexpectedPayment   = errors.New("courier: payment attached to free join")

	// Message errors
	ErrMessageNotFound = errors.New("courier: message not found")
	ErrEmptyContent    = errors.New("courier: message content is empty")

	// Tip errors
	ErrInvalidAmount    = errors.New("courier: amount must be positive")
	ErrSelfTipForbidden = errors.New("courier: cannot tip own message")
	ErrCurrencyMismatch = errors.New("courier: currency mismatch")

	// Payout errors
	ErrPayoutNotFound = errors.New("courier: payout not found")
	ErrPayoutFailed   = errors.New("courier: payout execution failed")
	ErrPayoutSettled  = errors.New("courier: payout already settled")
	ErrNoExecutor     = errors.New("courier: no payout executor configured")

	// Store errors
	ErrStoreClosed       = errors.New("courier: store is closed")
	ErrTransactionFailed = errors.New("courier: transaction failed")
	ErrMigrationFailed   = errors.New("courier: migration failed")
)

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrChannelNotFound) ||
		errors.Is(err, ErrMessageNotFound) ||
		errors.Is(err, ErrPayoutNotFound)
}

// IsInvalidInput returns true if the error reports malformed arguments.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyChannelName) ||
		errors.Is(err, ErrNegativePrice) ||
		errors.Is(err, ErrEmptyContent) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrCurrencyMismatch)
}

// IsPaymentError returns true if the error is a join payment mismatch.
func IsPaymentError(err error) bool {
	return errors.Is(err, ErrInsufficientPayment) ||
		errors.Is(err, ErrOverPayment) ||
		errors.Is(err, ErrUnexpectedPayment)
}

// IsRetryable returns true if the error is temporary and the operation can
// be retried without correcting input. Engine errors are non-retryable by
// design; only infrastructure failures qualify.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreClosed) ||
		errors.Is(err, ErrTransactionFailed) ||
		errors.Is(err, ErrPayoutFailed)
}
