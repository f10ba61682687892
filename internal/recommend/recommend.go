package recommend

import "budget-cart-api/internal/models"

// Candidate is one proposed product before it is persisted: the fixed
// catalog entry plus the price and headroom computed for this customer.
type Candidate struct {
	ProductID           string
	Title               string
	PriceCents          int64
	BudgetCategory      models.BudgetCategory
	Reason              string
	RemainingAfterCents int64
	Priority            int
}

// rule is one row of the per-category trigger table. A category yields at
// most one candidate: triggered when remaining headroom exceeds the
// threshold, priced as a fraction of that headroom up to a hard cap.
type rule struct {
	category     models.BudgetCategory
	productID    string
	title        string
	reason       string
	triggerCents int64
	priceFactor  float64
	capCents     int64
}

var rules = []rule{
	{
		category:     models.CategoryNeeds,
		productID:    "rec-needs-staples",
		title:        "Everyday Staples Bundle",
		reason:       "You still have room in your needs budget for essentials",
		triggerCents: 2000,
		priceFactor:  0.8,
		capCents:     3500,
	},
	{
		category:     models.CategoryWants,
		productID:    "rec-wants-treat",
		title:        "Small Treat Pick",
		reason:       "A little left in your wants budget for something fun",
		triggerCents: 1500,
		priceFactor:  0.6,
		capCents:     2800,
	},
	{
		category:     models.CategorySavings,
		productID:    "rec-savings-boost",
		title:        "Savings Booster",
		reason:       "Your savings budget has headroom worth putting to work",
		triggerCents: 5000,
		priceFactor:  0.7,
		capCents:     7500,
	},
}

// Evaluate runs the rule table against the remaining budget and returns the
// candidates in needs/wants/savings order with 1-based priorities assigned
// after exclusions, so excluded products never leave a priority gap.
func Evaluate(remaining models.RemainingBudget, excludeProductIDs []string) []Candidate {
	excluded := make(map[string]bool, len(excludeProductIDs))
	for _, id := range excludeProductIDs {
		excluded[id] = true
	}

	var candidates []Candidate
	for _, r := range rules {
		left := remaining.ForCategory(r.category)
		if left <= r.triggerCents {
			continue
		}
		if excluded[r.productID] {
			continue
		}

		price := int64(float64(left) * r.priceFactor)
		if price > r.capCents {
			price = r.capCents
		}

		candidates = append(candidates, Candidate{
			ProductID:           r.productID,
			Title:               r.title,
			PriceCents:          price,
			BudgetCategory:      r.category,
			Reason:              r.reason,
			RemainingAfterCents: left - price,
			Priority:            len(candidates) + 1,
		})
	}

	return candidates
}
