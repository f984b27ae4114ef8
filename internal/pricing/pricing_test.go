package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveUnitPriceTiers(t *testing.T) {
	tiers := []PriceTier{{MinQty: 1, Price: 10000}, {MinQty: 10, Price: 9000}}

	assert.Equal(t, int64(10000), ResolveUnitPrice(tiers, 5))
	assert.Equal(t, int64(0), ItemDiscount(tiers, 5))

	assert.Equal(t, int64(9000), ResolveUnitPrice(tiers, 12))
	assert.Equal(t, int64(12000), ItemDiscount(tiers, 12))
}

func TestResolveUnitPriceUnsortedInput(t *testing.T) {
	tiers := []PriceTier{{MinQty: 24, Price: 8000}, {MinQty: 1, Price: 10000}, {MinQty: 12, Price: 9000}}

	assert.Equal(t, int64(10000), ResolveUnitPrice(tiers, 1))
	assert.Equal(t, int64(9000), ResolveUnitPrice(tiers, 12))
	assert.Equal(t, int64(9000), ResolveUnitPrice(tiers, 23))
	assert.Equal(t, int64(8000), ResolveUnitPrice(tiers, 100))
	// caller slice untouched
	assert.Equal(t, 24, tiers[0].MinQty)
}

func TestResolveUnitPriceBelowLowestTier(t *testing.T) {
	tiers := []PriceTier{{MinQty: 3, Price: 7000}, {MinQty: 6, Price: 6500}}
	assert.Equal(t, int64(7000), ResolveUnitPrice(tiers, 1))
}

func TestResolveUnitPriceEmpty(t *testing.T) {
	assert.Equal(t, int64(0), ResolveUnitPrice(nil, 4))
}

func TestResolveUnitPriceMatchesGreatestTier(t *testing.T) {
	tiers := []PriceTier{{MinQty: 1, Price: 500}, {MinQty: 5, Price: 450}, {MinQty: 20, Price: 400}, {MinQty: 50, Price: 380}}
	for q := 1; q <= 80; q++ {
		want := tiers[0].Price
		for _, tier := range tiers {
			if tier.MinQty <= q {
				want = tier.Price
			}
		}
		require.Equal(t, want, ResolveUnitPrice(tiers, q), "qty %d", q)
	}
}

func TestComputeTotalsMemberAndAdditionalDiscount(t *testing.T) {
	lines := []CartLine{{ProductID: 1, Quantity: 10, Tiers: []PriceTier{{MinQty: 1, Price: 10000}}}}
	member := &Member{ID: 7, DiscountPercent: 10}

	calc := ComputeTotals(lines, member, Options{AdditionalDiscount: 5000})

	assert.Equal(t, int64(100000), calc.Subtotal)
	assert.Equal(t, int64(10000), calc.MemberDiscount)
	assert.Equal(t, int64(85000), calc.GrandTotal)
	assert.Equal(t, calc.ItemDiscount+10000+5000, calc.TotalDiscount)
}

func TestComputeTotalsTierDiscountStacksWithMember(t *testing.T) {
	lines := []CartLine{
		{ProductID: 1, Quantity: 12, Tiers: []PriceTier{{MinQty: 1, Price: 10000}, {MinQty: 10, Price: 9000}}},
		{ProductID: 2, Quantity: 2, Tiers: []PriceTier{{MinQty: 1, Price: 2500}}},
	}
	member := &Member{ID: 3, DiscountPercent: 5}

	calc := ComputeTotals(lines, member, Options{})

	require.Len(t, calc.Lines, 2)
	assert.Equal(t, int64(113000), calc.Subtotal)
	assert.Equal(t, int64(12000), calc.ItemDiscount)
	assert.Equal(t, int64(5650), calc.MemberDiscount)
	assert.Equal(t, int64(107350), calc.GrandTotal)
}

func TestComputeTotalsDefaultCustomerGetsNoDiscount(t *testing.T) {
	lines := []CartLine{{ProductID: 1, Quantity: 1, Tiers: []PriceTier{{MinQty: 1, Price: 20000}}}}
	general := &Member{ID: 1, DiscountPercent: 50, IsDefaultCustomer: true}

	calc := ComputeTotals(lines, general, Options{})

	assert.Zero(t, calc.MemberDiscount)
	assert.Equal(t, int64(20000), calc.GrandTotal)
}

func TestComputeTotalsNeverNegative(t *testing.T) {
	lines := []CartLine{{ProductID: 1, Quantity: 1, Tiers: []PriceTier{{MinQty: 1, Price: 3000}}}}
	for _, extra := range []int64{0, 2999, 3000, 3001, 1_000_000} {
		calc := ComputeTotals(lines, nil, Options{AdditionalDiscount: extra})
		assert.GreaterOrEqual(t, calc.GrandTotal, int64(0), "additional %d", extra)
	}
}

func TestComputeTotalsRoundsOnlyGrandTotal(t *testing.T) {
	// 3 x 333 = 999, 12.5% member discount = 124.875 -> grand total 874.125 -> 874
	lines := []CartLine{{ProductID: 1, Quantity: 3, Tiers: []PriceTier{{MinQty: 1, Price: 333}}}}
	calc := ComputeTotals(lines, &Member{ID: 2, DiscountPercent: 12.5}, Options{})
	assert.Equal(t, int64(874), calc.GrandTotal)
	assert.Equal(t, int64(125), calc.MemberDiscount)
}

func TestComputeTotalsSkipsNonPositiveQuantity(t *testing.T) {
	lines := []CartLine{
		{ProductID: 1, Quantity: 0, Tiers: []PriceTier{{MinQty: 1, Price: 1000}}},
		{ProductID: 2, Quantity: 2, Tiers: []PriceTier{{MinQty: 1, Price: 1000}}},
	}
	calc := ComputeTotals(lines, nil, Options{})
	require.Len(t, calc.Lines, 1)
	assert.Equal(t, int64(2000), calc.GrandTotal)
}

func TestComputeTotalsTax(t *testing.T) {
	lines := []CartLine{{ProductID: 1, Quantity: 1, Tiers: []PriceTier{{MinQty: 1, Price: 10000}}}}
	calc := ComputeTotals(lines, nil, Options{TaxPercent: 11})
	assert.Equal(t, int64(1100), calc.Tax)
	assert.Equal(t, int64(11100), calc.GrandTotal)
}
