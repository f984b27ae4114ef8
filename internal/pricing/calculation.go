package pricing

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// CartLine is a cart entry priced against its product tiers.
type CartLine struct {
	ProductID int64
	Quantity  int
	Tiers     []PriceTier
}

// Member carries the discount policy of the customer attached to a sale.
type Member struct {
	ID                int64
	DiscountPercent   float64
	IsDefaultCustomer bool
}

// LineResult is the priced form of a CartLine.
type LineResult struct {
	ProductID    int64 `json:"product_id"`
	Quantity     int   `json:"quantity"`
	BasePrice    int64 `json:"base_price"`
	UnitPrice    int64 `json:"unit_price"`
	ItemDiscount int64 `json:"item_discount"`
	Subtotal     int64 `json:"subtotal"`
}

// Calculation is the authoritative money breakdown of a cart.
type Calculation struct {
	Lines              []LineResult `json:"lines"`
	Subtotal           int64        `json:"subtotal"`
	ItemDiscount       int64        `json:"item_discount"`
	MemberDiscount     int64        `json:"member_discount"`
	AdditionalDiscount int64        `json:"additional_discount"`
	Tax                int64        `json:"tax"`
	TotalDiscount      int64        `json:"total_discount"`
	GrandTotal         int64        `json:"grand_total"`
}

// Options tunes ComputeTotals beyond the cart itself.
type Options struct {
	AdditionalDiscount int64
	TaxPercent         float64
}

// ComputeTotals prices every line and aggregates the cart.
//
// The member discount is taken from the tier-priced subtotal. Intermediate
// amounts stay unrounded; only the grand total is rounded, then clamped at 0.
// Lines with a non-positive quantity are skipped.
func ComputeTotals(lines []CartLine, member *Member, opts Options) Calculation {
	calc := Calculation{Lines: make([]LineResult, 0, len(lines))}
	for _, line := range lines {
		if line.Quantity <= 0 {
			continue
		}
		base := ResolveUnitPrice(line.Tiers, 1)
		actual := ResolveUnitPrice(line.Tiers, line.Quantity)
		result := LineResult{
			ProductID:    line.ProductID,
			Quantity:     line.Quantity,
			BasePrice:    base,
			UnitPrice:    actual,
			ItemDiscount: (base - actual) * int64(line.Quantity),
			Subtotal:     actual * int64(line.Quantity),
		}
		calc.Subtotal += result.Subtotal
		calc.ItemDiscount += result.ItemDiscount
		calc.Lines = append(calc.Lines, result)
	}

	additional := opts.AdditionalDiscount
	if additional < 0 {
		additional = 0
	}
	calc.AdditionalDiscount = additional

	subtotal := decimal.NewFromInt(calc.Subtotal)
	memberDiscount := decimal.Zero
	if member != nil && !member.IsDefaultCustomer && member.DiscountPercent > 0 {
		memberDiscount = subtotal.Mul(decimal.NewFromFloat(member.DiscountPercent)).Div(hundred)
	}
	taxable := subtotal.Sub(memberDiscount).Sub(decimal.NewFromInt(additional))
	tax := decimal.Zero
	if opts.TaxPercent > 0 && taxable.IsPositive() {
		tax = taxable.Mul(decimal.NewFromFloat(opts.TaxPercent)).Div(hundred)
	}
	grand := decimal.Max(decimal.Zero, taxable.Add(tax).Round(0))

	calc.MemberDiscount = memberDiscount.Round(0).IntPart()
	calc.Tax = tax.Round(0).IntPart()
	calc.GrandTotal = grand.IntPart()
	calc.TotalDiscount = calc.ItemDiscount + calc.MemberDiscount + calc.AdditionalDiscount
	return calc
}
