package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pfirestore "github.com/greenbasket/api/internal/platform/firestore"
)

const countersCollection = "counters"

type counterDocument struct {
	Value     int64     `firestore:"value"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

// CounterRepository issues monotonic sequence numbers, used for human
// readable order numbers.
type CounterRepository struct {
	provider *pfirestore.Provider
}

// NewCounterRepository constructs a Firestore-backed counter repository.
func NewCounterRepository(provider *pfirestore.Provider) (*CounterRepository, error) {
	if provider == nil {
		return nil, errors.New("counter repository requires firestore provider")
	}
	return &CounterRepository{provider: provider}, nil
}

// Next advances the counter by step and returns the new value. The first call
// for a counter id creates the document. Joins the ambient transaction when
// present.
func (r *CounterRepository) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	id := strings.TrimSpace(counterID)
	if id == "" {
		return 0, pfirestore.NewNotFoundError("counters", errors.New("counter id is required"))
	}
	if step <= 0 {
		return 0, pfirestore.NewConflictError("counters", fmt.Errorf("step must be positive, got %d", step))
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return 0, err
	}
	ref := client.Collection(countersCollection).Doc(id)

	apply := func(tx *firestore.Transaction) (int64, error) {
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				doc := counterDocument{Value: step, UpdatedAt: time.Now().UTC()}
				if err := tx.Create(ref, doc); err != nil {
					return 0, pfirestore.WrapError("counters.next", err)
				}
				return step, nil
			}
			return 0, pfirestore.WrapError("counters.next", err)
		}

		var doc counterDocument
		if err := snap.DataTo(&doc); err != nil {
			return 0, fmt.Errorf("counters decode %s: %w", id, err)
		}
		doc.Value += step
		doc.UpdatedAt = time.Now().UTC()
		if err := tx.Set(ref, doc); err != nil {
			return 0, pfirestore.WrapError("counters.next", err)
		}
		return doc.Value, nil
	}

	if tx, ok := pfirestore.TxFromContext(ctx); ok {
		return apply(tx)
	}

	var value int64
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		var txErr error
		value, txErr = apply(tx)
		return txErr
	})
	if err != nil {
		return 0, err
	}
	return value, nil
}
