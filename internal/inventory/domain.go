package inventory

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// LocationKind distinguishes where stock is held.
type LocationKind string

const (
	// LocationStore is a store's on-hand product stock.
	LocationStore LocationKind = "STORE"
	// LocationWarehouse is the central warehouse quantity.
	LocationWarehouse LocationKind = "WAREHOUSE"
)

// Location identifies one stock pool.
type Location struct {
	Kind LocationKind
	ID   int64
}

// StoreLocation returns the stock pool of a store.
func StoreLocation(storeID int64) Location {
	return Location{Kind: LocationStore, ID: storeID}
}

// WarehouseLocation returns the stock pool of a warehouse.
func WarehouseLocation(warehouseID int64) Location {
	return Location{Kind: LocationWarehouse, ID: warehouseID}
}

func (l Location) String() string {
	return fmt.Sprintf("%s:%d", strings.ToLower(string(l.Kind)), l.ID)
}

// Line requests a quantity of one product.
type Line struct {
	ProductID int64
	Quantity  int
}

// StockRow is a locked stock record.
type StockRow struct {
	ProductID   int64
	ProductName string
	Quantity    int
}

// Ref ties a movement to the document that caused it.
type Ref struct {
	Module  string
	ID      string
	ActorID int64
}

// Movement is one applied stock change.
type Movement struct {
	Location     Location
	ProductID    int64
	QtyChange    int
	BalanceAfter int
	RefModule    string
	RefID        string
	ActorID      int64
	PostedAt     time.Time
}

// Shortage describes one under-stocked product.
type Shortage struct {
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name"`
	Available   int    `json:"available"`
	Requested   int    `json:"requested"`
}

// Missing returns how many units are lacking.
func (s Shortage) Missing() int {
	return s.Requested - s.Available
}

var (
	// ErrInsufficientStock is matched by every InsufficientStockError.
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
	// ErrStockRowNotFound is matched by every MissingStockError.
	ErrStockRowNotFound = errors.New("inventory: stock record not found")
	// ErrInvalidQuantity indicates invalid qty.
	ErrInvalidQuantity = errors.New("inventory: quantity must be positive")
)

// InsufficientStockError lists every short product of a rejected batch.
type InsufficientStockError struct {
	Location  Location
	Shortages []Shortage
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, 0, len(e.Shortages))
	for _, s := range e.Shortages {
		name := s.ProductName
		if name == "" {
			name = fmt.Sprintf("produk %d", s.ProductID)
		}
		parts = append(parts, fmt.Sprintf("%s (stok=%d, minta=%d)", name, s.Available, s.Requested))
	}
	return fmt.Sprintf("stok tidak cukup: %s", strings.Join(parts, "; "))
}

// Is makes errors.Is(err, ErrInsufficientStock) true.
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// MissingStockError lists products that have no stock record at the location.
type MissingStockError struct {
	Location   Location
	ProductIDs []int64
}

func (e *MissingStockError) Error() string {
	ids := make([]string, 0, len(e.ProductIDs))
	for _, id := range e.ProductIDs {
		ids = append(ids, fmt.Sprintf("%d", id))
	}
	return fmt.Sprintf("produk %s tidak terdaftar di %s", strings.Join(ids, ", "), e.Location)
}

// Is makes errors.Is(err, ErrStockRowNotFound) true.
func (e *MissingStockError) Is(target error) bool {
	return target == ErrStockRowNotFound
}
