package recommend

import (
	"testing"

	"budget-cart-api/internal/models"
)

func TestEvaluate_TriggersAndPricing(t *testing.T) {
	// needs 25.00 triggers (>20.00), wants 10.00 suppressed (<=15.00),
	// savings 60.00 triggers (>50.00).
	remaining := models.RemainingBudget{
		NeedsCents:   2500,
		WantsCents:   1000,
		SavingsCents: 6000,
	}

	got := Evaluate(remaining, nil)

	if len(got) != 2 {
		t.Fatalf("Expected 2 candidates, got %d", len(got))
	}

	needs := got[0]
	if needs.BudgetCategory != models.CategoryNeeds {
		t.Errorf("Expected first candidate from needs, got %s", needs.BudgetCategory)
	}
	if needs.PriceCents != 2000 { // min(2500*0.8, 3500)
		t.Errorf("Expected needs price 2000, got %d", needs.PriceCents)
	}
	if needs.Priority != 1 {
		t.Errorf("Expected needs priority 1, got %d", needs.Priority)
	}
	if needs.RemainingAfterCents != 500 {
		t.Errorf("Expected needs remaining-after 500, got %d", needs.RemainingAfterCents)
	}

	savings := got[1]
	if savings.BudgetCategory != models.CategorySavings {
		t.Errorf("Expected second candidate from savings, got %s", savings.BudgetCategory)
	}
	if savings.PriceCents != 4200 { // min(6000*0.7, 7500)
		t.Errorf("Expected savings price 4200, got %d", savings.PriceCents)
	}
	if savings.Priority != 2 {
		t.Errorf("Expected savings priority 2, got %d", savings.Priority)
	}
}

func TestEvaluate_CapsApply(t *testing.T) {
	remaining := models.RemainingBudget{
		NeedsCents:   100000,
		WantsCents:   100000,
		SavingsCents: 100000,
	}

	got := Evaluate(remaining, nil)

	if len(got) != 3 {
		t.Fatalf("Expected 3 candidates, got %d", len(got))
	}
	caps := []int64{3500, 2800, 7500}
	for i, c := range got {
		if c.PriceCents != caps[i] {
			t.Errorf("Candidate %d: expected capped price %d, got %d", i, caps[i], c.PriceCents)
		}
	}
}

func TestEvaluate_AtThresholdDoesNotTrigger(t *testing.T) {
	// Triggers are strict: exactly at the threshold yields nothing.
	remaining := models.RemainingBudget{
		NeedsCents:   2000,
		WantsCents:   1500,
		SavingsCents: 5000,
	}

	if got := Evaluate(remaining, nil); len(got) != 0 {
		t.Fatalf("Expected no candidates at exact thresholds, got %d", len(got))
	}
}

func TestEvaluate_ExcludedProductsOmittedAndPrioritiesReassigned(t *testing.T) {
	remaining := models.RemainingBudget{
		NeedsCents:   3000,
		WantsCents:   3000,
		SavingsCents: 6000,
	}

	got := Evaluate(remaining, []string{"rec-needs-staples"})

	if len(got) != 2 {
		t.Fatalf("Expected 2 candidates after exclusion, got %d", len(got))
	}
	if got[0].ProductID != "rec-wants-treat" || got[0].Priority != 1 {
		t.Errorf("Expected wants candidate at priority 1, got %s/%d", got[0].ProductID, got[0].Priority)
	}
	if got[1].ProductID != "rec-savings-boost" || got[1].Priority != 2 {
		t.Errorf("Expected savings candidate at priority 2, got %s/%d", got[1].ProductID, got[1].Priority)
	}
}

func TestEvaluate_NegativeRemainingYieldsNothing(t *testing.T) {
	remaining := models.RemainingBudget{
		NeedsCents:   -500,
		WantsCents:   -1,
		SavingsCents: 0,
	}

	if got := Evaluate(remaining, nil); len(got) != 0 {
		t.Fatalf("Expected no candidates when over budget, got %d", len(got))
	}
}
