// Package distribution moves stock from the central warehouse to stores.
package distribution

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CentralWarehouseName is the unique name of the singleton warehouse.
const CentralWarehouseName = "Gudang Pusat"

// Status represents the acceptance state of a distribution batch.
type Status string

const (
	StatusPendingAcceptance Status = "PENDING_ACCEPTANCE"
	StatusAccepted          Status = "ACCEPTED"
	StatusRejected          Status = "REJECTED"
)

// IsValid checks if the status is valid.
func (s Status) IsValid() bool {
	switch s {
	case StatusPendingAcceptance, StatusAccepted, StatusRejected:
		return true
	}
	return false
}

// CanDecide reports whether the store may still accept or reject the batch.
func (s Status) CanDecide() bool {
	return s == StatusPendingAcceptance
}

// IsDecision reports whether s is a terminal answer from the store.
func (s Status) IsDecision() bool {
	return s == StatusAccepted || s == StatusRejected
}

var (
	// ErrProductNotInWarehouse is returned when a requested product has no warehouse record.
	ErrProductNotInWarehouse = errors.New("distribution: product not in warehouse")
	// ErrInvalidStatusTransition is returned when a decided batch is decided again.
	ErrInvalidStatusTransition = errors.New("distribution: invalid status transition")
)

// ProductNotInWarehouseError names the products the warehouse does not carry.
type ProductNotInWarehouseError struct {
	ProductIDs []int64
}

func (e *ProductNotInWarehouseError) Error() string {
	ids := make([]string, len(e.ProductIDs))
	for i, id := range e.ProductIDs {
		ids[i] = strconv.FormatInt(id, 10)
	}
	return fmt.Sprintf("produk tidak ada di gudang: %s", strings.Join(ids, ", "))
}

// Is makes errors.Is(err, ErrProductNotInWarehouse) true.
func (e *ProductNotInWarehouseError) Is(target error) bool {
	return target == ErrProductNotInWarehouse
}

// Warehouse is the central stock holder.
type Warehouse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Store is the distribution target.
type Store struct {
	ID   int64  `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

// Product is a warehouse-held product with its purchase price.
type Product struct {
	ID            int64
	Code          string
	Name          string
	PurchasePrice int64
}

// Line is one product row of a batch.
type Line struct {
	ID            int64     `json:"id"`
	BatchID       int64     `json:"batchId"`
	WarehouseID   int64     `json:"warehouseId"`
	StoreID       int64     `json:"storeId"`
	ProductID     int64     `json:"productId"`
	ProductName   string    `json:"productName"`
	Quantity      int       `json:"quantity"`
	UnitPrice     int64     `json:"unitPrice"`
	TotalAmount   int64     `json:"totalAmount"`
	Status        Status    `json:"status"`
	InvoiceNumber string    `json:"invoiceNumber"`
	DistributedAt time.Time `json:"distributedAt"`
	DistributedBy int64     `json:"distributedBy"`
}

// Batch groups the lines sent together under one invoice.
type Batch struct {
	ID             int64      `json:"id"`
	InvoiceNumber  string     `json:"invoiceNumber"`
	WarehouseID    int64      `json:"warehouseId"`
	WarehouseName  string     `json:"warehouseName,omitempty"`
	Store          Store      `json:"store"`
	DistributedAt  time.Time  `json:"distributedAt"`
	DistributedBy  int64      `json:"distributedBy"`
	Status         Status     `json:"status"`
	TotalQuantity  int        `json:"totalQuantity"`
	TotalAmount    int64      `json:"totalAmount"`
	Notes          string     `json:"notes,omitempty"`
	DecidedBy      *int64     `json:"decidedBy,omitempty"`
	DecidedAt      *time.Time `json:"decidedAt,omitempty"`
	Items          []Line     `json:"items"`
	IdempotencyKey string     `json:"-"`
}

// GroupKey identifies the lines that were distributed together.
type GroupKey struct {
	DistributedAt time.Time
	StoreID       int64
	WarehouseID   int64
	DistributedBy int64
}

// ItemInput is one requested product.
type ItemInput struct {
	ProductID     int64  `json:"productId" validate:"required,gt=0"`
	Quantity      int    `json:"quantity" validate:"required,gt=0"`
	PurchasePrice *int64 `json:"purchasePrice,omitempty" validate:"omitempty,gte=0"`
}

// CreateInput is the payload of a new distribution.
type CreateInput struct {
	StoreID          int64       `json:"storeId" validate:"required,gt=0"`
	DistributionDate string      `json:"distributionDate"`
	Items            []ItemInput `json:"items" validate:"required,min=1,dive"`
	DistributedBy    int64       `json:"distributedBy" validate:"required,gt=0"`
	Status           Status      `json:"status,omitempty" validate:"omitempty,oneof=PENDING_ACCEPTANCE ACCEPTED"`
	Notes            string      `json:"notes,omitempty"`
	IdempotencyKey   string      `json:"-"`
}

// StatusInput is the store's answer to a pending batch.
type StatusInput struct {
	BatchID int64  `json:"-"`
	Status  Status `json:"status" validate:"required,oneof=ACCEPTED REJECTED"`
	ActorID int64  `json:"-"`
}

// ListFilter narrows the batch listing.
type ListFilter struct {
	StoreID   int64
	Status    Status
	Search    string
	StartDate *time.Time
	EndDate   *time.Time
	Page      int
	PerPage   int
}
