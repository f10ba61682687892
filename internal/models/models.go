package models

import "time"

// BudgetCategory classifies a cart line item into one of the three
// fixed spending buckets.
type BudgetCategory string

const (
	CategoryNeeds   BudgetCategory = "needs"
	CategoryWants   BudgetCategory = "wants"
	CategorySavings BudgetCategory = "savings"
)

// Categories lists the known budget categories in evaluation order.
var Categories = []BudgetCategory{CategoryNeeds, CategoryWants, CategorySavings}

// Known reports whether c is one of the three fixed categories.
func (c BudgetCategory) Known() bool {
	return c == CategoryNeeds || c == CategoryWants || c == CategorySavings
}

// CartItem is a single cart line supplied by the caller on every tracking
// call. Items are ephemeral; only the session snapshot persists them.
type CartItem struct {
	ProductID      string         `json:"product_id"`
	VariantID      string         `json:"variant_id,omitempty"`
	Title          string         `json:"title"`
	UnitPriceCents int64          `json:"unit_price_cents"` // integer cents
	Quantity       int            `json:"quantity"`
	BudgetCategory BudgetCategory `json:"budget_category"`
}

// LineTotalCents returns the extended price of the line.
func (i CartItem) LineTotalCents() int64 {
	return i.UnitPriceCents * int64(i.Quantity)
}

// BudgetConfig holds the per-period allocation for each category, in cents.
// Deriving these from income and percentages happens upstream.
type BudgetConfig struct {
	NeedsCents   int64 `json:"needs_cents"`
	WantsCents   int64 `json:"wants_cents"`
	SavingsCents int64 `json:"savings_cents"`
}

// CategoryBreakdown is the allocated/spent/remaining triple for one
// category plus the cart items that fell into it. Remaining is signed;
// a negative value means the category is over budget.
type CategoryBreakdown struct {
	AllocatedCents int64      `json:"allocated_cents"`
	SpentCents     int64      `json:"spent_cents"`
	RemainingCents int64      `json:"remaining_cents"`
	Items          []CartItem `json:"items"`
}

// RemainingBudget is the flattened remaining summary denormalized onto the
// session row for cheap display reads.
type RemainingBudget struct {
	NeedsCents   int64 `json:"needs_cents"`
	WantsCents   int64 `json:"wants_cents"`
	SavingsCents int64 `json:"savings_cents"`
	TotalCents   int64 `json:"total_cents"`
}

// ForCategory returns the remaining amount for a known category.
func (r RemainingBudget) ForCategory(c BudgetCategory) int64 {
	switch c {
	case CategoryNeeds:
		return r.NeedsCents
	case CategoryWants:
		return r.WantsCents
	case CategorySavings:
		return r.SavingsCents
	}
	return 0
}

// BudgetBreakdown is the full allocator output: the three per-category
// breakdowns, the flattened remaining summary, and cart totals computed
// over ALL items including ones with an unknown category tag.
type BudgetBreakdown struct {
	Needs          CategoryBreakdown `json:"needs"`
	Wants          CategoryBreakdown `json:"wants"`
	Savings        CategoryBreakdown `json:"savings"`
	Remaining      RemainingBudget   `json:"remaining"`
	TotalCartCents int64             `json:"total_cart_cents"`
	TotalItems     int               `json:"total_items"`
}

// Category returns the breakdown bucket for a known category.
func (b BudgetBreakdown) Category(c BudgetCategory) CategoryBreakdown {
	switch c {
	case CategoryNeeds:
		return b.Needs
	case CategoryWants:
		return b.Wants
	case CategorySavings:
		return b.Savings
	}
	return CategoryBreakdown{}
}

// CartSession is the persisted aggregate: the most recent cart snapshot and
// budget state for one (store, customer, session) triple. At most one active
// row exists per triple, enforced by a unique index in the store.
type CartSession struct {
	ID                  string          `json:"id"`
	StoreID             string          `json:"store_id"`
	CustomerID          string          `json:"customer_id"`
	SessionID           string          `json:"session_id"`
	IsActive            bool            `json:"is_active"`
	Items               []CartItem      `json:"items"`
	ItemCount           int             `json:"item_count"`
	SubtotalCents       int64           `json:"subtotal_cents"`
	Breakdown           BudgetBreakdown `json:"breakdown"`
	Remaining           RemainingBudget `json:"remaining"`
	AppliedDiscounts    []string        `json:"applied_discounts"`
	RecommendedProducts []string        `json:"recommended_products"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// ProductRecommendation is a persisted product suggestion for a customer.
// The click/purchase flags are one-way: once set they are never reset.
type ProductRecommendation struct {
	ID                  string         `json:"id"`
	StoreID             string         `json:"store_id"`
	CustomerID          string         `json:"customer_id"`
	ProductID           string         `json:"product_id"`
	Title               string         `json:"title"`
	PriceCents          int64          `json:"price_cents"`
	BudgetCategory      BudgetCategory `json:"budget_category"`
	Reason              string         `json:"reason"`
	RemainingAfterCents int64          `json:"remaining_after_cents"`
	Priority            int            `json:"priority"`
	IsClicked           bool           `json:"is_clicked"`
	IsPurchased         bool           `json:"is_purchased"`
	CreatedAt           time.Time      `json:"created_at"`
}

// DiscountType distinguishes the two kinds of automatic discount.
type DiscountType string

const (
	DiscountPercentage   DiscountType = "percentage"
	DiscountFreeShipping DiscountType = "free_shipping"
)

// AutoDiscount is a persisted discount granted against a cart session.
// Rows are immutable once written; expiry enforcement is external.
type AutoDiscount struct {
	Code               string       `json:"code"`
	StoreID            string       `json:"store_id"`
	CustomerID         string       `json:"customer_id"`
	CartSessionID      string       `json:"cart_session_id"`
	Type               DiscountType `json:"type"`
	Value              int64        `json:"value"` // percent for percentage, cents saved for free shipping
	MinimumAmountCents int64        `json:"minimum_amount_cents"`
	AppliedAmountCents int64        `json:"applied_amount_cents"`
	IsApplied          bool         `json:"is_applied"`
	ExpiresAt          time.Time    `json:"expires_at"`
	CreatedAt          time.Time    `json:"created_at"`
}

// TrackCartRequest is the request body for POST /cart/track.
type TrackCartRequest struct {
	StoreID    string       `json:"store_id"`
	CustomerID string       `json:"customer_id"`
	SessionID  string       `json:"session_id"`
	Items      []CartItem   `json:"items"`
	Budget     BudgetConfig `json:"budget"`
}

// GenerateRecommendationsRequest is the request body for
// POST /recommendations/generate.
type GenerateRecommendationsRequest struct {
	StoreID           string          `json:"store_id"`
	CustomerID        string          `json:"customer_id"`
	Remaining         RemainingBudget `json:"remaining"`
	ExcludeProductIDs []string        `json:"exclude_product_ids"`
}

// RecommendationsResponse wraps a recommendation list.
type RecommendationsResponse struct {
	Recommendations []ProductRecommendation `json:"recommendations"`
}

// ApplyDiscountsRequest is the request body for POST /discounts/apply.
type ApplyDiscountsRequest struct {
	StoreID            string `json:"store_id"`
	CustomerID         string `json:"customer_id"`
	SessionID          string `json:"session_id"`
	TotalCartCents     int64  `json:"total_cart_cents"`
	MinimumAmountCents int64  `json:"minimum_amount_cents"`
}

// DiscountsResponse wraps the discounts created by one apply call.
type DiscountsResponse struct {
	Discounts []AutoDiscount `json:"discounts"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}
