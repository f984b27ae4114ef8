package ar

import (
	"errors"
	"fmt"
	"time"

	"github.com/arikurniawan9/toko-sakinah/internal/shared"
)

var (
	// ErrOverpayment is matched by every OverpaymentError.
	ErrOverpayment = errors.New("ar: payment exceeds outstanding balance")
	// ErrPaymentInFlight means another payment for the same receivable is being applied.
	ErrPaymentInFlight = errors.New("ar: payment already in progress")
)

// OverpaymentError reports the largest acceptable amount.
type OverpaymentError struct {
	Max int64
}

func (e *OverpaymentError) Error() string {
	return fmt.Sprintf("pembayaran melebihi sisa piutang, maksimal %d", e.Max)
}

// Is makes errors.Is(err, ErrOverpayment) true.
func (e *OverpaymentError) Is(target error) bool {
	return target == ErrOverpayment
}

// Receivable is the debt opened by an underpaid sale.
type Receivable struct {
	ID            int64                `json:"id"`
	SaleID        int64                `json:"sale_id"`
	InvoiceNumber string               `json:"invoice_number"`
	StoreID       int64                `json:"store_id"`
	MemberID      int64                `json:"member_id"`
	MemberName    string               `json:"member_name"`
	AmountDue     int64                `json:"amount_due"`
	AmountPaid    int64                `json:"amount_paid"`
	Remaining     int64                `json:"remaining"`
	Status        shared.PaymentStatus `json:"status"`
	Payments      []Payment            `json:"payments,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

// Outstanding returns AmountDue minus AmountPaid.
func (r Receivable) Outstanding() int64 {
	return r.AmountDue - r.AmountPaid
}

// Payment is one instalment applied to a receivable.
type Payment struct {
	ID              int64     `json:"id"`
	ReceivableID    int64     `json:"receivable_id"`
	Amount          int64     `json:"amount"`
	PaymentMethod   string    `json:"payment_method"`
	ReferenceNumber string    `json:"reference_number,omitempty"`
	ReceivedBy      int64     `json:"received_by,omitempty"`
	PaidAt          time.Time `json:"paid_at"`
	IdempotencyKey  string    `json:"-"`
}

// PaymentInput applies Amount to a receivable.
type PaymentInput struct {
	ReceivableID    int64  `json:"-"`
	Amount          int64  `json:"amountPaid" validate:"required,gt=0"`
	PaymentMethod   string `json:"paymentMethod" validate:"required,oneof=CASH TRANSFER QRIS"`
	ReferenceNumber string `json:"referenceNumber,omitempty" validate:"max=100"`
	ActorID         int64  `json:"-"`
	IdempotencyKey  string `json:"-"`
}

// ListFilter narrows List.
type ListFilter struct {
	StoreID  int64
	MemberID int64
	Status   shared.PaymentStatus
	Search   string
	Page     int
	PerPage  int
}

// AgingBucket sums outstanding balances by days since the sale.
type AgingBucket struct {
	Current   int64 `json:"current"`
	Bucket30  int64 `json:"bucket_30"`
	Bucket60  int64 `json:"bucket_60"`
	Bucket90  int64 `json:"bucket_90"`
	Bucket120 int64 `json:"bucket_120"`
}
