package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
)

var (
	errBucketRequired = errors.New("storage: bucket name is required")
	errOrderRequired  = errors.New("storage: order id is required")
)

// ObjectWriterFactory opens a writer for the named object. The GCS client
// satisfies it through gcsWriterFactory; tests substitute an in-memory one.
type ObjectWriterFactory interface {
	NewWriter(ctx context.Context, bucket, object string) io.WriteCloser
}

type gcsWriterFactory struct {
	client *gcs.Client
}

func (f gcsWriterFactory) NewWriter(ctx context.Context, bucket, object string) io.WriteCloser {
	w := f.client.Bucket(bucket).Object(object).NewWriter(ctx)
	w.ContentType = "application/json"
	return w
}

// Receipt is the archived settlement summary written after a successful
// payment capture.
type Receipt struct {
	OrderID     string    `json:"orderId"`
	OrderNumber string    `json:"orderNumber"`
	UserID      string    `json:"userId"`
	Provider    string    `json:"provider"`
	PaymentRef  string    `json:"paymentRef"`
	Amount      int64     `json:"amount"`
	Currency    string    `json:"currency"`
	PaidAt      time.Time `json:"paidAt"`
}

// ReceiptArchiver persists payment receipts to a bucket as immutable JSON
// objects keyed by order.
type ReceiptArchiver struct {
	bucket  string
	writers ObjectWriterFactory
}

// NewReceiptArchiver constructs an archiver writing to the given bucket.
func NewReceiptArchiver(client *gcs.Client, bucket string) (*ReceiptArchiver, error) {
	if client == nil {
		return nil, errors.New("storage: client is required")
	}
	return newReceiptArchiver(gcsWriterFactory{client: client}, bucket)
}

func newReceiptArchiver(writers ObjectWriterFactory, bucket string) (*ReceiptArchiver, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errBucketRequired
	}
	return &ReceiptArchiver{bucket: bucket, writers: writers}, nil
}

// Archive writes the receipt and returns the object path.
func (a *ReceiptArchiver) Archive(ctx context.Context, receipt Receipt) (string, error) {
	if a == nil || a.writers == nil {
		return "", errors.New("storage: archiver not initialised")
	}
	object, err := receiptObjectPath(receipt)
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(receipt)
	if err != nil {
		return "", fmt.Errorf("storage: marshal receipt: %w", err)
	}

	w := a.writers.NewWriter(ctx, a.bucket, object)
	if _, err := w.Write(payload); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("storage: write receipt %s: %w", object, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("storage: close receipt %s: %w", object, err)
	}
	return object, nil
}

func receiptObjectPath(receipt Receipt) (string, error) {
	orderID := strings.TrimSpace(receipt.OrderID)
	if orderID == "" {
		return "", errOrderRequired
	}
	if strings.ContainsAny(orderID, "/\\") || strings.Contains(orderID, "..") {
		return "", fmt.Errorf("storage: order id %q contains invalid path characters", orderID)
	}
	name := strings.TrimSpace(receipt.PaymentRef)
	if name == "" {
		name = "receipt"
	}
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, name)
	return fmt.Sprintf("receipts/%s/%s.json", orderID, name), nil
}
