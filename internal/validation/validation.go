package validation

import (
	"fmt"
	"strings"
	"unicode"

	"budget-cart-api/internal/models"
)

const (
	maxIDLength    = 128
	maxTitleLength = 256
	maxCartItems   = 200
	maxQuantity    = 1000
	maxAmountCents = int64(100_000_000) // 1M in currency units
	maxBudgetCents = int64(100_000_000)
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// ValidateID checks an opaque identifier (store, customer, session, product).
func ValidateID(id, fieldName string) error {
	if id == "" {
		return &ValidationError{
			Field:   fieldName,
			Message: "is required",
		}
	}

	if len(id) > maxIDLength {
		return &ValidationError{
			Field:   fieldName,
			Message: fmt.Sprintf("cannot exceed %d characters", maxIDLength),
		}
	}

	return nil
}

// ValidateSessionKey checks the (store, customer, session) key triple shared
// by every tracking operation.
func ValidateSessionKey(storeID, customerID, sessionID string) error {
	if err := ValidateID(storeID, "store_id"); err != nil {
		return err
	}
	if err := ValidateID(customerID, "customer_id"); err != nil {
		return err
	}
	return ValidateID(sessionID, "session_id")
}

// ValidateCartItem rejects malformed lines before any arithmetic runs on
// them. Unknown categories fail here rather than being silently dropped.
func ValidateCartItem(item models.CartItem) error {
	if err := ValidateID(item.ProductID, "product_id"); err != nil {
		return err
	}

	if len(item.Title) > maxTitleLength {
		return &ValidationError{
			Field:   "title",
			Message: fmt.Sprintf("cannot exceed %d characters", maxTitleLength),
		}
	}

	if item.UnitPriceCents < 0 {
		return &ValidationError{
			Field:   "unit_price_cents",
			Message: "must be non-negative",
		}
	}

	if item.UnitPriceCents > maxAmountCents {
		return &ValidationError{
			Field:   "unit_price_cents",
			Message: "exceeds maximum allowed amount",
		}
	}

	if item.Quantity < 1 {
		return &ValidationError{
			Field:   "quantity",
			Message: "must be a positive integer",
		}
	}

	if item.Quantity > maxQuantity {
		return &ValidationError{
			Field:   "quantity",
			Message: fmt.Sprintf("cannot exceed %d", maxQuantity),
		}
	}

	if !item.BudgetCategory.Known() {
		return &ValidationError{
			Field:   "budget_category",
			Message: "must be one of needs, wants, savings",
		}
	}

	return nil
}

// ValidateCart checks the whole line-item list.
func ValidateCart(items []models.CartItem) error {
	if len(items) > maxCartItems {
		return &ValidationError{
			Field:   "items",
			Message: fmt.Sprintf("cannot contain more than %d items", maxCartItems),
		}
	}

	for i, item := range items {
		if err := ValidateCartItem(item); err != nil {
			return &ValidationError{
				Field:   fmt.Sprintf("items[%d]", i),
				Message: err.Error(),
			}
		}
	}

	return nil
}

// ValidateBudgetConfig checks the per-category allocations.
func ValidateBudgetConfig(cfg models.BudgetConfig) error {
	checks := []struct {
		field string
		cents int64
	}{
		{"budget.needs_cents", cfg.NeedsCents},
		{"budget.wants_cents", cfg.WantsCents},
		{"budget.savings_cents", cfg.SavingsCents},
	}

	for _, c := range checks {
		if c.cents < 0 {
			return &ValidationError{
				Field:   c.field,
				Message: "must be non-negative",
			}
		}
		if c.cents > maxBudgetCents {
			return &ValidationError{
				Field:   c.field,
				Message: "exceeds maximum allowed amount",
			}
		}
	}

	return nil
}

// ValidateDiscountInput checks the amounts fed to the discount engine.
func ValidateDiscountInput(totalCents, minimumCents int64) error {
	if totalCents < 0 {
		return &ValidationError{
			Field:   "total_cart_cents",
			Message: "must be non-negative",
		}
	}
	if minimumCents < 0 {
		return &ValidationError{
			Field:   "minimum_amount_cents",
			Message: "must be non-negative",
		}
	}
	return nil
}

// SanitizeString strips control characters and trims surrounding whitespace.
func SanitizeString(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, s)

	return strings.TrimSpace(s)
}
