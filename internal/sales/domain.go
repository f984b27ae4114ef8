package sales

import (
	"errors"
	"time"

	"github.com/arikurniawan9/toko-sakinah/internal/pricing"
	"github.com/arikurniawan9/toko-sakinah/internal/shared"
)

// PaymentMethod enumerates accepted tenders.
type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "CASH"
	PaymentTransfer PaymentMethod = "TRANSFER"
	PaymentQRIS     PaymentMethod = "QRIS"
)

// Valid reports whether m is a known method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentTransfer, PaymentQRIS:
		return true
	}
	return false
}

// ErrSaleHasReceivable blocks deleting a sale that carries debt history.
var ErrSaleHasReceivable = errors.New("sales: sale has a receivable")

// ============================================================================
// SALE
// ============================================================================

// Sale is a persisted point-of-sale transaction.
type Sale struct {
	ID                 int64                `json:"id"`
	InvoiceNumber      string               `json:"invoice_number"`
	StoreID            int64                `json:"store_id"`
	CashierID          int64                `json:"cashier_id"`
	AttendantID        int64                `json:"attendant_id"`
	MemberID           *int64               `json:"member_id,omitempty"`
	Items              []SaleDetail         `json:"items"`
	Subtotal           int64                `json:"subtotal"`
	ItemDiscount       int64                `json:"item_discount"`
	MemberDiscount     int64                `json:"member_discount"`
	AdditionalDiscount int64                `json:"additional_discount"`
	Discount           int64                `json:"discount"`
	Tax                int64                `json:"tax"`
	Total              int64                `json:"total"`
	Payment            int64                `json:"payment"`
	Change             int64                `json:"change"`
	PaymentMethod      PaymentMethod        `json:"payment_method"`
	ReferenceNumber    string               `json:"reference_number,omitempty"`
	Status             shared.PaymentStatus `json:"status"`
	IdempotencyKey     string               `json:"-"`
	Receivable         *ReceivableSummary   `json:"receivable,omitempty"`
	CreatedAt          time.Time            `json:"created_at"`
	UpdatedAt          time.Time            `json:"updated_at"`
}

// SaleDetail is one immutable line of a sale.
type SaleDetail struct {
	ID          int64  `json:"id"`
	SaleID      int64  `json:"sale_id"`
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	Price       int64  `json:"price"`
	Discount    int64  `json:"discount"`
	Subtotal    int64  `json:"subtotal"`
}

// ReceivableSummary is the debt opened by an underpaid sale.
type ReceivableSummary struct {
	ID         int64                `json:"id"`
	MemberID   int64                `json:"member_id"`
	AmountDue  int64                `json:"amount_due"`
	AmountPaid int64                `json:"amount_paid"`
	Remaining  int64                `json:"remaining"`
	Status     shared.PaymentStatus `json:"status"`
}

// ============================================================================
// CATALOG SNAPSHOT
// ============================================================================

// Store is the selling outlet.
type Store struct {
	ID   int64
	Code string
	Name string
}

// Product is the pricing view of a store product.
type Product struct {
	ID    int64
	Name  string
	Tiers []pricing.PriceTier
}

// Member is a customer eligible for discounts and debt.
type Member struct {
	ID                int64
	Name              string
	DiscountPercent   float64
	IsDefaultCustomer bool
}

// ============================================================================
// INPUT
// ============================================================================

// ItemInput is one cart line. Price and Discount are what the client
// displayed; they are not used for money math.
type ItemInput struct {
	ProductID int64 `json:"productId" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" validate:"required,gt=0"`
	Price     int64 `json:"price" validate:"gte=0"`
	Discount  int64 `json:"discount" validate:"gte=0"`
}

// RecordSaleInput is the cashier submission.
type RecordSaleInput struct {
	StoreID            int64                `json:"storeId" validate:"required,gt=0"`
	CashierID          int64                `json:"cashierId" validate:"required,gt=0"`
	AttendantID        int64                `json:"attendantId"`
	MemberID           *int64               `json:"memberId,omitempty" validate:"omitempty,gt=0"`
	Items              []ItemInput          `json:"items" validate:"dive"`
	Payment            int64                `json:"payment" validate:"gte=0"`
	PaymentMethod      PaymentMethod        `json:"paymentMethod"`
	ReferenceNumber    string               `json:"referenceNumber,omitempty" validate:"max=100"`
	AdditionalDiscount int64                `json:"additionalDiscount" validate:"gte=0"`
	TaxPercent         float64              `json:"tax" validate:"gte=0,lte=100"`
	Status             shared.PaymentStatus `json:"status,omitempty"`
	IdempotencyKey     string               `json:"-"`
}

// IsDebtRequest reports whether the cashier explicitly submitted on credit.
func (in RecordSaleInput) IsDebtRequest() bool {
	return in.Status == shared.PaymentStatusUnpaid || in.Status == shared.PaymentStatusPartiallyPaid
}
