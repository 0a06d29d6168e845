package order

import (
	"context"
	"errors"
)

// Status mirrors the host platform's order states that this gateway touches.
type Status string

const (
	StatusPending   Status = "pending"
	StatusOnHold    Status = "on-hold"
	StatusPaid      Status = "paid"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Metadata keys persisted on orders to correlate asynchronous callbacks.
const (
	MetaPaymentID         = "_bkash_payment_id"
	MetaTempAgreementID   = "_bkash_temp_agreement_id"
	MetaAgreementID       = "_bkash_agreement_id"
	MetaTransactionID     = "_bkash_transaction_id"
	MetaTransactionStatus = "_bkash_transaction_status"
)

// ErrNotFound is returned when an order or metadata correlation is missing.
var ErrNotFound = errors.New("order: not found")

// Order is the minimal projection of a merchant order this gateway needs:
// enough to build a provider request and to reconcile the callback.
type Order struct {
	ID           int64
	Number       string
	Status       Status
	TotalAmount  string
	BillingPhone string
	Meta         map[string]string
}

// MetaValue returns the named metadata value, or "".
func (o *Order) MetaValue(key string) string {
	if o == nil || o.Meta == nil {
		return ""
	}
	return o.Meta[key]
}

// Store persists the order projection. Implementations must return
// ErrNotFound for missing orders and reverse lookups with no match.
type Store interface {
	// Get loads an order with its metadata.
	Get(ctx context.Context, id int64) (*Order, error)
	// UpdateStatus transitions the order and records a note when non-empty.
	UpdateStatus(ctx context.Context, id int64, status Status, note string) error
	// SetMeta upserts one metadata key.
	SetMeta(ctx context.Context, id int64, key, value string) error
	// DeleteMeta removes one metadata key.
	DeleteMeta(ctx context.Context, id int64, key string) error
	// FindIDByMeta resolves an order by a metadata value, e.g. the stored
	// payment id carried by a callback.
	FindIDByMeta(ctx context.Context, key, value string) (int64, error)
	// AddNote appends an audit note without touching the status.
	AddNote(ctx context.Context, id int64, note string) error
	// MarkPaid marks the order paid and records the settlement reference.
	MarkPaid(ctx context.Context, id int64, trxID string) error
}
