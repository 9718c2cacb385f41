package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RecordInput carries one movement to be appended to the history.
type RecordInput struct {
	Kind        TransactionKind
	ProductID   int64
	Quantity    int64
	UnitPrice   decimal.Decimal
	SupplierID  int64
	CustomerID  int64
	Description string
	Note        string
}

// Recorder appends immutable transaction entries.
type Recorder struct {
	now func() time.Time
}

// NewRecorder builds a Recorder stamping entries with clock. A nil clock uses time.Now.
func NewRecorder(clock func() time.Time) *Recorder {
	if clock == nil {
		clock = time.Now
	}
	return &Recorder{now: clock}
}

// Record appends a COMPLETED entry inside the unit held by tx.
func (r *Recorder) Record(ctx context.Context, tx TxRepository, in RecordInput) (Transaction, error) {
	entry, err := r.build(in, StatusCompleted)
	if err != nil {
		return Transaction{}, err
	}
	return tx.InsertTransaction(ctx, entry)
}

// RecordFailed appends a FAILED entry for an attempt that did not touch stock.
// The cause is kept in the note.
func (r *Recorder) RecordFailed(ctx context.Context, store Store, in RecordInput, cause error) (Transaction, error) {
	if cause != nil {
		if in.Note != "" {
			in.Note += "; "
		}
		in.Note += cause.Error()
	}
	entry, err := r.build(in, StatusFailed)
	if err != nil {
		return Transaction{}, err
	}
	var saved Transaction
	err = store.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		saved, err = tx.InsertTransaction(ctx, entry)
		return err
	})
	return saved, err
}

func (r *Recorder) build(in RecordInput, status TransactionStatus) (Transaction, error) {
	if !in.Kind.Valid() {
		return Transaction{}, errors.New("inventory: unknown transaction kind " + string(in.Kind))
	}
	if in.ProductID <= 0 {
		return Transaction{}, ErrProductRequired
	}
	if in.Quantity < 1 {
		return Transaction{}, ErrInvalidQuantity
	}
	return Transaction{
		Reference:     uuid.NewString(),
		ProductID:     in.ProductID,
		Kind:          in.Kind,
		Quantity:      in.Quantity,
		UnitPrice:     in.UnitPrice,
		TotalPrice:    in.UnitPrice.Mul(decimal.NewFromInt(in.Quantity)),
		TotalProducts: in.Quantity,
		Status:        status,
		SupplierID:    in.SupplierID,
		CustomerID:    in.CustomerID,
		Description:   in.Description,
		Note:          in.Note,
		CreatedAt:     r.now().UTC(),
	}, nil
}
