package firestore

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/greenbasket/api/internal/domain"
	pfirestore "github.com/greenbasket/api/internal/platform/firestore"
	"github.com/greenbasket/api/internal/repositories"
)

const (
	ordersCollection = "orders"
	defaultOrderPage = 20
	maxOrderPage     = 100
)

// OrderRepository implements repositories.OrderRepository on Firestore.
type OrderRepository struct {
	provider *pfirestore.Provider
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{provider: provider}, nil
}

func (r *OrderRepository) docRef(ctx context.Context, orderID string) (*firestore.DocumentRef, error) {
	id := strings.TrimSpace(orderID)
	if id == "" {
		return nil, pfirestore.NewNotFoundError("orders", errors.New("order id is required"))
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(ordersCollection).Doc(id), nil
}

// Insert creates the order document, failing on duplicates.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	ref, err := r.docRef(ctx, order.ID)
	if err != nil {
		return err
	}
	if tx, ok := pfirestore.TxFromContext(ctx); ok {
		return pfirestore.WrapError("orders.insert", tx.Create(ref, order))
	}
	_, err = ref.Create(ctx, order)
	return pfirestore.WrapError("orders.insert", err)
}

// Update overwrites the order document.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	ref, err := r.docRef(ctx, order.ID)
	if err != nil {
		return err
	}
	if tx, ok := pfirestore.TxFromContext(ctx); ok {
		return pfirestore.WrapError("orders.update", tx.Set(ref, order))
	}
	_, err = ref.Set(ctx, order)
	return pfirestore.WrapError("orders.update", err)
}

// Delete removes the order document.
func (r *OrderRepository) Delete(ctx context.Context, orderID string) error {
	ref, err := r.docRef(ctx, orderID)
	if err != nil {
		return err
	}
	if tx, ok := pfirestore.TxFromContext(ctx); ok {
		return pfirestore.WrapError("orders.delete", tx.Delete(ref))
	}
	_, err = ref.Delete(ctx)
	return pfirestore.WrapError("orders.delete", err)
}

// FindByID loads a single order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	ref, err := r.docRef(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}

	var snap *firestore.DocumentSnapshot
	if tx, ok := pfirestore.TxFromContext(ctx); ok {
		snap, err = tx.Get(ref)
	} else {
		snap, err = ref.Get(ctx)
	}
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.find", err)
	}

	var order domain.Order
	if err := snap.DataTo(&order); err != nil {
		return domain.Order{}, fmt.Errorf("orders decode %s: %w", orderID, err)
	}
	return order, nil
}

// List queries orders by owner, status, and date range with cursor paging.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = defaultOrderPage
	}
	if pageSize > maxOrderPage {
		pageSize = maxOrderPage
	}

	query := client.Collection(ordersCollection).Query
	if userID := strings.TrimSpace(filter.UserID); userID != "" {
		query = query.Where("userId", "==", userID)
	}
	if len(filter.Status) == 1 {
		query = query.Where("status", "==", filter.Status[0])
	} else if len(filter.Status) > 1 {
		query = query.Where("status", "in", filter.Status)
	}
	if filter.DateRange.From != nil {
		query = query.Where("createdAt", ">=", filter.DateRange.From.UTC())
	}
	if filter.DateRange.To != nil {
		query = query.Where("createdAt", "<", filter.DateRange.To.UTC())
	}
	query = query.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)

	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		cursor, err := decodeOrderPageToken(token)
		if err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.NewConflictError("orders.list", err)
		}
		query = query.StartAfter(cursor.CreatedAt, cursor.ID)
	}

	iter := query.Limit(pageSize + 1).Documents(ctx)
	defer iter.Stop()

	orders := make([]domain.Order, 0, pageSize)
	var nextToken string
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("orders.list", err)
		}
		var order domain.Order
		if err := snap.DataTo(&order); err != nil {
			return domain.CursorPage[domain.Order]{}, fmt.Errorf("orders decode %s: %w", snap.Ref.ID, err)
		}
		if len(orders) == pageSize {
			last := orders[len(orders)-1]
			nextToken = encodeOrderPageToken(orderPageCursor{CreatedAt: last.CreatedAt, ID: last.ID})
			break
		}
		orders = append(orders, order)
	}

	return domain.CursorPage[domain.Order]{Items: orders, NextPageToken: nextToken}, nil
}

// MarkPaid performs the conditional paid transition inside a transaction. If
// the order is already paid the write is skipped and the stored order is
// returned with Applied=false so callers can treat duplicate confirmations
// as a success.
func (r *OrderRepository) MarkPaid(ctx context.Context, req repositories.MarkPaidRequest) (repositories.MarkPaidResult, error) {
	ref, err := r.docRef(ctx, req.OrderID)
	if err != nil {
		return repositories.MarkPaidResult{}, err
	}

	apply := func(tx *firestore.Transaction) (repositories.MarkPaidResult, error) {
		snap, err := tx.Get(ref)
		if err != nil {
			return repositories.MarkPaidResult{}, pfirestore.WrapError("orders.markPaid", err)
		}
		var order domain.Order
		if err := snap.DataTo(&order); err != nil {
			return repositories.MarkPaidResult{}, fmt.Errorf("orders decode %s: %w", req.OrderID, err)
		}
		if order.PaymentStatus == domain.PaymentStatusPaid {
			return repositories.MarkPaidResult{Order: order, Applied: false}, nil
		}

		paidAt := req.PaidAt.UTC()
		order.PaymentStatus = domain.PaymentStatusPaid
		order.PaidAt = &paidAt
		if order.Status == domain.OrderStatusPending {
			order.Status = domain.OrderStatusProcessing
		}
		order.UpdatedAt = paidAt

		if err := tx.Set(ref, order); err != nil {
			return repositories.MarkPaidResult{}, pfirestore.WrapError("orders.markPaid", err)
		}
		return repositories.MarkPaidResult{Order: order, Applied: true}, nil
	}

	if tx, ok := pfirestore.TxFromContext(ctx); ok {
		return apply(tx)
	}

	var result repositories.MarkPaidResult
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		var txErr error
		result, txErr = apply(tx)
		return txErr
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return repositories.MarkPaidResult{}, pfirestore.WrapError("orders.markPaid", err)
		}
		return repositories.MarkPaidResult{}, err
	}
	return result, nil
}

type orderPageCursor struct {
	CreatedAt time.Time `json:"createdAt"`
	ID        string    `json:"id"`
}

func encodeOrderPageToken(cursor orderPageCursor) string {
	raw, err := json.Marshal(cursor)
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(raw)
}

func decodeOrderPageToken(token string) (orderPageCursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return orderPageCursor{}, fmt.Errorf("invalid page token: %w", err)
	}
	var cursor orderPageCursor
	if err := json.Unmarshal(raw, &cursor); err != nil {
		return orderPageCursor{}, fmt.Errorf("invalid page token: %w", err)
	}
	if cursor.ID == "" || cursor.CreatedAt.IsZero() {
		return orderPageCursor{}, errors.New("invalid page token: incomplete cursor")
	}
	return cursor, nil
}
