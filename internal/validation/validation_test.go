package validation

import (
	"strings"
	"testing"

	"budget-cart-api/internal/models"
)

func validItem() models.CartItem {
	return models.CartItem{
		ProductID:      "p1",
		Title:          "Rice",
		UnitPriceCents: 1200,
		Quantity:       2,
		BudgetCategory: models.CategoryNeeds,
	}
}

func TestValidateCartItem(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*models.CartItem)
		wantErr bool
	}{
		{"valid", func(i *models.CartItem) {}, false},
		{"missing product id", func(i *models.CartItem) { i.ProductID = "" }, true},
		{"negative price", func(i *models.CartItem) { i.UnitPriceCents = -1 }, true},
		{"zero quantity", func(i *models.CartItem) { i.Quantity = 0 }, true},
		{"negative quantity", func(i *models.CartItem) { i.Quantity = -3 }, true},
		{"unknown category", func(i *models.CartItem) { i.BudgetCategory = "impulse" }, true},
		{"empty category", func(i *models.CartItem) { i.BudgetCategory = "" }, true},
		{"huge price", func(i *models.CartItem) { i.UnitPriceCents = maxAmountCents + 1 }, true},
		{"free item", func(i *models.CartItem) { i.UnitPriceCents = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := validItem()
			tt.mutate(&item)
			err := ValidateCartItem(item)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateCartItem() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateCart_TooManyItems(t *testing.T) {
	items := make([]models.CartItem, maxCartItems+1)
	for i := range items {
		items[i] = validItem()
	}

	if err := ValidateCart(items); err == nil {
		t.Error("Expected an error for oversized cart")
	}
}

func TestValidateBudgetConfig(t *testing.T) {
	if err := ValidateBudgetConfig(models.BudgetConfig{NeedsCents: 1, WantsCents: 2, SavingsCents: 3}); err != nil {
		t.Errorf("Expected valid config, got %v", err)
	}
	if err := ValidateBudgetConfig(models.BudgetConfig{WantsCents: -1}); err == nil {
		t.Error("Expected an error for negative allocation")
	}
}

func TestValidateID_Bounds(t *testing.T) {
	if err := ValidateID("", "store_id"); err == nil {
		t.Error("Expected an error for empty id")
	}
	if err := ValidateID(strings.Repeat("x", maxIDLength+1), "store_id"); err == nil {
		t.Error("Expected an error for overlong id")
	}
	if err := ValidateID("store-1", "store_id"); err != nil {
		t.Errorf("Expected valid id, got %v", err)
	}
}

func TestSanitizeString(t *testing.T) {
	if got := SanitizeString("  hello\x00world  "); got != "helloworld" {
		t.Errorf("Expected control characters stripped and trimmed, got %q", got)
	}
}
