// Package fakes holds in-memory collaborators shared by service tests.
package fakes

import (
	"context"
	"errors"
	"sort"

	"github.com/arikurniawan9/toko-sakinah/internal/inventory"
)

// Stock is an in-memory inventory.StockTx. It is not safe for concurrent use;
// owners serialise access the way row locks would.
type Stock struct {
	rows      map[inventory.Location]map[int64]inventory.StockRow
	Movements []inventory.Movement
	// LockOrder records product ids in the order they were locked.
	LockOrder []int64
	// FailAdjustAfter makes the n-th AdjustStock call fail when positive.
	FailAdjustAfter int
	adjusts         int
}

// NewStock returns an empty Stock.
func NewStock() *Stock {
	return &Stock{rows: make(map[inventory.Location]map[int64]inventory.StockRow)}
}

// Put sets the on-hand quantity of a product at loc.
func (s *Stock) Put(loc inventory.Location, productID int64, name string, qty int) {
	if s.rows[loc] == nil {
		s.rows[loc] = make(map[int64]inventory.StockRow)
	}
	s.rows[loc][productID] = inventory.StockRow{ProductID: productID, ProductName: name, Quantity: qty}
}

// Quantity reports the on-hand quantity, -1 when absent.
func (s *Stock) Quantity(loc inventory.Location, productID int64) int {
	row, ok := s.rows[loc][productID]
	if !ok {
		return -1
	}
	return row.Quantity
}

// Has reports whether a stock record exists.
func (s *Stock) Has(loc inventory.Location, productID int64) bool {
	_, ok := s.rows[loc][productID]
	return ok
}

// LockStock implements inventory.StockTx.
func (s *Stock) LockStock(_ context.Context, loc inventory.Location, productIDs []int64) (map[int64]inventory.StockRow, error) {
	ids := append([]int64(nil), productIDs...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make(map[int64]inventory.StockRow, len(ids))
	for _, id := range ids {
		if row, ok := s.rows[loc][id]; ok {
			out[id] = row
			s.LockOrder = append(s.LockOrder, id)
		}
	}
	return out, nil
}

// AdjustStock implements inventory.StockTx and enforces the non-negative check
// constraint.
func (s *Stock) AdjustStock(_ context.Context, loc inventory.Location, productID int64, delta int) error {
	s.adjusts++
	if s.FailAdjustAfter > 0 && s.adjusts >= s.FailAdjustAfter {
		return errors.New("fakes: adjust failed")
	}
	row, ok := s.rows[loc][productID]
	if !ok {
		return &inventory.MissingStockError{Location: loc, ProductIDs: []int64{productID}}
	}
	if row.Quantity+delta < 0 {
		return errors.New("fakes: stock check constraint violated")
	}
	row.Quantity += delta
	s.rows[loc][productID] = row
	return nil
}

// InsertMovements implements inventory.StockTx.
func (s *Stock) InsertMovements(_ context.Context, movements []inventory.Movement) error {
	s.Movements = append(s.Movements, movements...)
	return nil
}

// Snapshot captures the current state and returns a function restoring it.
func (s *Stock) Snapshot() func() {
	rows := make(map[inventory.Location]map[int64]inventory.StockRow, len(s.rows))
	for loc, m := range s.rows {
		cp := make(map[int64]inventory.StockRow, len(m))
		for k, v := range m {
			cp[k] = v
		}
		rows[loc] = cp
	}
	movements := len(s.Movements)
	return func() {
		s.rows = rows
		s.Movements = s.Movements[:movements]
	}
}
