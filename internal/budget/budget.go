package budget

import "budget-cart-api/internal/models"

// Allocate splits a cart across the three budget categories and computes
// spend, remaining headroom, and cart totals. It is pure and deterministic:
// no I/O, same output for the same input.
//
// Items tagged with an unknown category are left out of every per-category
// partition but still count toward TotalCartCents and TotalItems, so
// uncategorized spend shows up in the cart total without being tracked
// against any bucket.
func Allocate(items []models.CartItem, cfg models.BudgetConfig) models.BudgetBreakdown {
	breakdown := models.BudgetBreakdown{
		Needs:   models.CategoryBreakdown{AllocatedCents: cfg.NeedsCents, Items: []models.CartItem{}},
		Wants:   models.CategoryBreakdown{AllocatedCents: cfg.WantsCents, Items: []models.CartItem{}},
		Savings: models.CategoryBreakdown{AllocatedCents: cfg.SavingsCents, Items: []models.CartItem{}},
	}

	for _, item := range items {
		line := item.LineTotalCents()
		breakdown.TotalCartCents += line
		breakdown.TotalItems += item.Quantity

		switch item.BudgetCategory {
		case models.CategoryNeeds:
			breakdown.Needs.SpentCents += line
			breakdown.Needs.Items = append(breakdown.Needs.Items, item)
		case models.CategoryWants:
			breakdown.Wants.SpentCents += line
			breakdown.Wants.Items = append(breakdown.Wants.Items, item)
		case models.CategorySavings:
			breakdown.Savings.SpentCents += line
			breakdown.Savings.Items = append(breakdown.Savings.Items, item)
		}
	}

	// Remaining is signed: over-budget categories go negative.
	breakdown.Needs.RemainingCents = breakdown.Needs.AllocatedCents - breakdown.Needs.SpentCents
	breakdown.Wants.RemainingCents = breakdown.Wants.AllocatedCents - breakdown.Wants.SpentCents
	breakdown.Savings.RemainingCents = breakdown.Savings.AllocatedCents - breakdown.Savings.SpentCents

	breakdown.Remaining = models.RemainingBudget{
		NeedsCents:   breakdown.Needs.RemainingCents,
		WantsCents:   breakdown.Wants.RemainingCents,
		SavingsCents: breakdown.Savings.RemainingCents,
	}
	breakdown.Remaining.TotalCents = breakdown.Remaining.NeedsCents +
		breakdown.Remaining.WantsCents + breakdown.Remaining.SavingsCents

	return breakdown
}
