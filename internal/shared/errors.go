package shared

import "errors"

var (
	// ErrValidation indicates malformed or missing input supplied by the caller.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates a referenced product, supplier or customer does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInsufficientStock indicates the requested quantity exceeds available stock.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrPersistence indicates the backing store was unreachable or rejected a write.
	ErrPersistence = errors.New("persistence failure")
	// ErrNotificationDelivery indicates a notification could not be delivered.
	// It is logged only and never returned from a fulfillment operation.
	ErrNotificationDelivery = errors.New("notification delivery failed")
)

// UserSafeMessage converts an error into a message that can be shown to end users.
// Validation and stock errors keep their detail; everything else collapses into a
// generic retry message.
func UserSafeMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInsufficientStock), errors.Is(err, ErrNotFound):
		return err.Error()
	case errors.Is(err, ErrIdempotencyConflict):
		return "this request has already been processed"
	default:
		return "something went wrong, please try again later"
	}
}
