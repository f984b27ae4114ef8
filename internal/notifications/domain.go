// Package notifications stores store-facing alerts and fans them out over redis.
package notifications

import "time"

// Severity grades a notification.
type Severity string

const (
	SeverityInfo    Severity = "INFO"
	SeverityWarning Severity = "WARNING"
	SeverityError   Severity = "ERROR"
)

// TypeWarehouseDistribution marks a distribution awaiting acceptance.
const TypeWarehouseDistribution = "WAREHOUSE_DISTRIBUTION"

// Notification is one alert addressed to a store.
type Notification struct {
	ID        int64          `json:"id"`
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	StoreID   int64          `json:"store_id"`
	Severity  Severity       `json:"severity"`
	Data      map[string]any `json:"data,omitempty"`
	IsRead    bool           `json:"is_read"`
	CreatedAt time.Time      `json:"created_at"`
}

// DistributionItem is one product line of a pending distribution.
type DistributionItem struct {
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
}

// DistributionPending describes a distribution batch the store has to accept.
type DistributionPending struct {
	BatchID       int64              `json:"batch_id"`
	InvoiceNumber string             `json:"invoice_number"`
	StoreID       int64              `json:"store_id"`
	StoreName     string             `json:"store_name"`
	WarehouseName string             `json:"warehouse_name"`
	TotalAmount   int64              `json:"total_amount"`
	Items         []DistributionItem `json:"items"`
}

// TotalQuantity sums the item quantities.
func (d DistributionPending) TotalQuantity() int {
	total := 0
	for _, item := range d.Items {
		total += item.Quantity
	}
	return total
}
