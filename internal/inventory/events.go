package inventory

import (
	"context"
	"time"
)

// MovementRecordedEvent is published after a stock movement commits.
type MovementRecordedEvent struct {
	Transaction Transaction
	Product     Product
	LowStock    bool
	ActorID     int64
	RecordedAt  time.Time
}

// MovementObserver reacts to committed movements. Errors are logged by the
// service and never undo the movement.
type MovementObserver interface {
	HandleMovementRecorded(ctx context.Context, evt MovementRecordedEvent) error
}
