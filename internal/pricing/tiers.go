// Package pricing resolves tiered unit prices and computes cart totals.
package pricing

import "sort"

// PriceTier is one step of a product's quantity price function.
type PriceTier struct {
	MinQty int   `json:"min_qty"`
	Price  int64 `json:"price"`
}

// ResolveUnitPrice returns the price of the highest tier whose MinQty <= qty.
// When qty is below every threshold the lowest tier's price applies. An empty
// tier set resolves to 0.
func ResolveUnitPrice(tiers []PriceTier, qty int) int64 {
	if len(tiers) == 0 {
		return 0
	}
	sorted := sortedTiers(tiers)
	price := sorted[0].Price
	for i := len(sorted) - 1; i >= 0; i-- {
		if sorted[i].MinQty <= qty {
			return sorted[i].Price
		}
	}
	return price
}

// ItemDiscount is the tier saving for a line: (price at 1 - price at qty) * qty.
func ItemDiscount(tiers []PriceTier, qty int) int64 {
	if qty <= 0 {
		return 0
	}
	base := ResolveUnitPrice(tiers, 1)
	actual := ResolveUnitPrice(tiers, qty)
	return (base - actual) * int64(qty)
}

// sortedTiers copies tiers so callers' slices are never reordered.
func sortedTiers(tiers []PriceTier) []PriceTier {
	out := make([]PriceTier, len(tiers))
	copy(out, tiers)
	sort.SliceStable(out, func(i, j int) bool { return out[i].MinQty < out[j].MinQty })
	return out
}
