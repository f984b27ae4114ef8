package inventory

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// StockTx is the transactional port the ledger works against. Implementations
// must hold row locks on every returned row until the surrounding unit of work
// ends.
type StockTx interface {
	// LockStock locks the stock rows of productIDs at loc in ascending product
	// id order. Products without a stock record are absent from the result.
	LockStock(ctx context.Context, loc Location, productIDs []int64) (map[int64]StockRow, error)
	AdjustStock(ctx context.Context, loc Location, productID int64, delta int) error
	InsertMovements(ctx context.Context, movements []Movement) error
}

// Ledger applies all-or-nothing stock changes.
type Ledger struct {
	now func() time.Time
}

// NewLedger constructs a Ledger.
func NewLedger() *Ledger {
	return &Ledger{now: time.Now}
}

// Decrement removes quantities from loc. Every line is checked against the
// locked rows before anything is written; on shortage nothing is mutated and an
// *InsufficientStockError lists every short product.
func (l *Ledger) Decrement(ctx context.Context, tx StockTx, loc Location, lines []Line, ref Ref) ([]Movement, error) {
	merged, err := MergeLines(lines)
	if err != nil {
		return nil, err
	}
	rows, err := l.lock(ctx, tx, loc, merged)
	if err != nil {
		return nil, err
	}
	if shortages := Shortages(rows, merged); len(shortages) > 0 {
		return nil, &InsufficientStockError{Location: loc, Shortages: shortages}
	}
	return l.apply(ctx, tx, loc, rows, merged, -1, ref)
}

// Increment returns quantities to loc, e.g. when a sale is voided or a
// distribution is rejected.
func (l *Ledger) Increment(ctx context.Context, tx StockTx, loc Location, lines []Line, ref Ref) ([]Movement, error) {
	merged, err := MergeLines(lines)
	if err != nil {
		return nil, err
	}
	rows, err := l.lock(ctx, tx, loc, merged)
	if err != nil {
		return nil, err
	}
	return l.apply(ctx, tx, loc, rows, merged, 1, ref)
}

func (l *Ledger) lock(ctx context.Context, tx StockTx, loc Location, merged []Line) (map[int64]StockRow, error) {
	ids := make([]int64, len(merged))
	for i, line := range merged {
		ids[i] = line.ProductID
	}
	rows, err := tx.LockStock(ctx, loc, ids)
	if err != nil {
		return nil, fmt.Errorf("inventory: lock %s: %w", loc, err)
	}
	var missing []int64
	for _, id := range ids {
		if _, ok := rows[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingStockError{Location: loc, ProductIDs: missing}
	}
	return rows, nil
}

func (l *Ledger) apply(ctx context.Context, tx StockTx, loc Location, rows map[int64]StockRow, merged []Line, sign int, ref Ref) ([]Movement, error) {
	now := l.now()
	movements := make([]Movement, 0, len(merged))
	for _, line := range merged {
		delta := sign * line.Quantity
		if err := tx.AdjustStock(ctx, loc, line.ProductID, delta); err != nil {
			return nil, fmt.Errorf("inventory: adjust product %d at %s: %w", line.ProductID, loc, err)
		}
		movements = append(movements, Movement{
			Location:     loc,
			ProductID:    line.ProductID,
			QtyChange:    delta,
			BalanceAfter: rows[line.ProductID].Quantity + delta,
			RefModule:    ref.Module,
			RefID:        ref.ID,
			ActorID:      ref.ActorID,
			PostedAt:     now,
		})
	}
	if err := tx.InsertMovements(ctx, movements); err != nil {
		return nil, fmt.Errorf("inventory: record movements: %w", err)
	}
	return movements, nil
}

// MergeLines sums duplicate products and orders the result by product id, the
// order rows are locked in.
func MergeLines(lines []Line) ([]Line, error) {
	if len(lines) == 0 {
		return nil, ErrInvalidQuantity
	}
	totals := make(map[int64]int, len(lines))
	for _, line := range lines {
		if line.ProductID <= 0 {
			return nil, fmt.Errorf("inventory: invalid product id %d", line.ProductID)
		}
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("%w: product %d", ErrInvalidQuantity, line.ProductID)
		}
		totals[line.ProductID] += line.Quantity
	}
	merged := make([]Line, 0, len(totals))
	for id, qty := range totals {
		merged = append(merged, Line{ProductID: id, Quantity: qty})
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].ProductID < merged[j].ProductID })
	return merged, nil
}

// Shortages compares requested lines against locked rows.
func Shortages(rows map[int64]StockRow, lines []Line) []Shortage {
	var out []Shortage
	for _, line := range lines {
		row := rows[line.ProductID]
		if row.Quantity < line.Quantity {
			out = append(out, Shortage{
				ProductID:   line.ProductID,
				ProductName: row.ProductName,
				Available:   row.Quantity,
				Requested:   line.Quantity,
			})
		}
	}
	return out
}
