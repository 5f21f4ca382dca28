package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	domain "github.com/greenbasket/api/internal/domain"
	pfirestore "github.com/greenbasket/api/internal/platform/firestore"
)

const paymentRecordsCollection = "payments"

// PaymentRecordRepository stores gateway reconciliation records.
type PaymentRecordRepository struct {
	provider *pfirestore.Provider
}

// NewPaymentRecordRepository constructs a Firestore-backed payment record repository.
func NewPaymentRecordRepository(provider *pfirestore.Provider) (*PaymentRecordRepository, error) {
	if provider == nil {
		return nil, errors.New("payment record repository requires firestore provider")
	}
	return &PaymentRecordRepository{provider: provider}, nil
}

func (r *PaymentRecordRepository) docRef(ctx context.Context, recordID string) (*firestore.DocumentRef, error) {
	id := strings.TrimSpace(recordID)
	if id == "" {
		return nil, pfirestore.NewNotFoundError("payments", errors.New("payment record id is required"))
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(paymentRecordsCollection).Doc(id), nil
}

// Insert creates the record, failing on duplicates.
func (r *PaymentRecordRepository) Insert(ctx context.Context, record domain.PaymentRecord) error {
	ref, err := r.docRef(ctx, record.ID)
	if err != nil {
		return err
	}
	if tx, ok := pfirestore.TxFromContext(ctx); ok {
		return pfirestore.WrapError("payments.insert", tx.Create(ref, record))
	}
	_, err = ref.Create(ctx, record)
	return pfirestore.WrapError("payments.insert", err)
}

// Update overwrites the record.
func (r *PaymentRecordRepository) Update(ctx context.Context, record domain.PaymentRecord) error {
	ref, err := r.docRef(ctx, record.ID)
	if err != nil {
		return err
	}
	if tx, ok := pfirestore.TxFromContext(ctx); ok {
		return pfirestore.WrapError("payments.update", tx.Set(ref, record))
	}
	_, err = ref.Set(ctx, record)
	return pfirestore.WrapError("payments.update", err)
}

// FindByOrderAndProvider resolves the single record for an (order, provider) pair.
func (r *PaymentRecordRepository) FindByOrderAndProvider(ctx context.Context, orderID string, provider string) (domain.PaymentRecord, error) {
	orderID = strings.TrimSpace(orderID)
	provider = strings.TrimSpace(provider)
	if orderID == "" || provider == "" {
		return domain.PaymentRecord{}, pfirestore.NewNotFoundError("payments", errors.New("order id and provider are required"))
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.PaymentRecord{}, err
	}

	query := client.Collection(paymentRecordsCollection).
		Where("orderId", "==", orderID).
		Where("provider", "==", provider).
		Limit(1)

	var iter *firestore.DocumentIterator
	if tx, ok := pfirestore.TxFromContext(ctx); ok {
		iter = tx.Documents(query)
	} else {
		iter = query.Documents(ctx)
	}
	defer iter.Stop()

	snap, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return domain.PaymentRecord{}, pfirestore.NewNotFoundError("payments.find",
			fmt.Errorf("no payment record for order %s provider %s", orderID, provider))
	}
	if err != nil {
		return domain.PaymentRecord{}, pfirestore.WrapError("payments.find", err)
	}

	var record domain.PaymentRecord
	if err := snap.DataTo(&record); err != nil {
		return domain.PaymentRecord{}, fmt.Errorf("payments decode %s: %w", snap.Ref.ID, err)
	}
	return record, nil
}

// ListByOrder returns every record attached to the order.
func (r *PaymentRecordRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.PaymentRecord, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, pfirestore.NewNotFoundError("payments", errors.New("order id is required"))
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}

	iter := client.Collection(paymentRecordsCollection).
		Where("orderId", "==", orderID).
		OrderBy("createdAt", firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	var records []domain.PaymentRecord
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError("payments.list", err)
		}
		var record domain.PaymentRecord
		if err := snap.DataTo(&record); err != nil {
			return nil, fmt.Errorf("payments decode %s: %w", snap.Ref.ID, err)
		}
		records = append(records, record)
	}
	return records, nil
}
