package service

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"

	"budget-cart-api/internal/cache"
	"budget-cart-api/internal/database"
	"budget-cart-api/internal/models"
	"budget-cart-api/internal/validation"
)

func setupTestDB(t *testing.T) (*database.DB, func()) {
	dbPath := "./test_" + uuid.New().String() + ".db"
	db, err := database.NewDB(dbPath)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	cleanup := func() {
		db.Close()
		os.Remove(dbPath)
	}

	return db, cleanup
}

func testBudget() models.BudgetConfig {
	return models.BudgetConfig{
		NeedsCents:   50000,
		WantsCents:   30000,
		SavingsCents: 20000,
	}
}

func TestTrackCart_CreatesSession(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	svc := NewService(db)
	ctx := context.Background()

	items := []models.CartItem{
		{ProductID: "p1", Title: "Rice", UnitPriceCents: 1200, Quantity: 2, BudgetCategory: models.CategoryNeeds},
		{ProductID: "p2", Title: "Headphones", UnitPriceCents: 9900, Quantity: 1, BudgetCategory: models.CategoryWants},
	}

	session, err := svc.TrackCart(ctx, "store-1", "cust-1", "sess-1", items, testBudget())
	if err != nil {
		t.Fatalf("TrackCart failed: %v", err)
	}

	if !session.IsActive {
		t.Error("Expected session to be active")
	}
	if session.SubtotalCents != 12300 {
		t.Errorf("Expected subtotal 12300, got %d", session.SubtotalCents)
	}
	if session.ItemCount != 3 {
		t.Errorf("Expected 3 items, got %d", session.ItemCount)
	}
	if session.Breakdown.Needs.SpentCents != 2400 {
		t.Errorf("Expected needs spend 2400, got %d", session.Breakdown.Needs.SpentCents)
	}
	if session.Remaining.NeedsCents != 47600 {
		t.Errorf("Expected needs remaining 47600, got %d", session.Remaining.NeedsCents)
	}
}

func TestTrackCart_UpsertOverwritesSameKey(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	svc := NewService(db)
	ctx := context.Background()

	first := []models.CartItem{
		{ProductID: "p1", UnitPriceCents: 1000, Quantity: 1, BudgetCategory: models.CategoryNeeds},
	}
	second := []models.CartItem{
		{ProductID: "p2", UnitPriceCents: 5000, Quantity: 2, BudgetCategory: models.CategoryWants},
	}

	s1, err := svc.TrackCart(ctx, "store-1", "cust-1", "sess-1", first, testBudget())
	if err != nil {
		t.Fatalf("First TrackCart failed: %v", err)
	}

	s2, err := svc.TrackCart(ctx, "store-1", "cust-1", "sess-1", second, testBudget())
	if err != nil {
		t.Fatalf("Second TrackCart failed: %v", err)
	}

	// Same row: the original id and created_at survive the overwrite.
	if s2.ID != s1.ID {
		t.Errorf("Expected the same session row, got ids %s and %s", s1.ID, s2.ID)
	}
	if s2.SubtotalCents != 10000 {
		t.Errorf("Expected second call's subtotal 10000, got %d", s2.SubtotalCents)
	}
	if len(s2.Items) != 1 || s2.Items[0].ProductID != "p2" {
		t.Errorf("Expected second call's items, got %+v", s2.Items)
	}

	got, err := svc.GetActiveSession(ctx, "store-1", "cust-1", "sess-1")
	if err != nil {
		t.Fatalf("GetActiveSession failed: %v", err)
	}
	if got.SubtotalCents != 10000 {
		t.Errorf("Stored row should reflect the second call, got subtotal %d", got.SubtotalCents)
	}
}

func TestTrackCart_RejectsUnknownCategory(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	svc := NewService(db)

	items := []models.CartItem{
		{ProductID: "p1", UnitPriceCents: 1000, Quantity: 1, BudgetCategory: "luxuries"},
	}

	_, err := svc.TrackCart(context.Background(), "store-1", "cust-1", "sess-1", items, testBudget())
	var verr *validation.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Expected a validation error for unknown category, got %v", err)
	}
}

func TestTrackCart_RejectsNegativePrice(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	svc := NewService(db)

	items := []models.CartItem{
		{ProductID: "p1", UnitPriceCents: -100, Quantity: 1, BudgetCategory: models.CategoryNeeds},
	}

	_, err := svc.TrackCart(context.Background(), "store-1", "cust-1", "sess-1", items, testBudget())
	var verr *validation.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Expected a validation error for negative price, got %v", err)
	}
}

func TestGetActiveSession_NotFound(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	svc := NewService(db)

	_, err := svc.GetActiveSession(context.Background(), "store-1", "cust-1", "missing")
	if !errors.Is(err, database.ErrSessionNotFound) {
		t.Fatalf("Expected ErrSessionNotFound, got %v", err)
	}
}

func TestGetActiveSession_RoundTripMatchesWrite(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	svc := NewService(db)
	ctx := context.Background()

	items := []models.CartItem{
		{ProductID: "p1", Title: "Rice", UnitPriceCents: 1234, Quantity: 3, BudgetCategory: models.CategoryNeeds},
		{ProductID: "p2", Title: "Book", UnitPriceCents: 2599, Quantity: 1, BudgetCategory: models.CategoryWants},
		{ProductID: "p3", Title: "Fund", UnitPriceCents: 10000, Quantity: 1, BudgetCategory: models.CategorySavings},
	}

	written, err := svc.TrackCart(ctx, "store-1", "cust-1", "sess-1", items, testBudget())
	if err != nil {
		t.Fatalf("TrackCart failed: %v", err)
	}

	read, err := svc.GetActiveSession(ctx, "store-1", "cust-1", "sess-1")
	if err != nil {
		t.Fatalf("GetActiveSession failed: %v", err)
	}

	if read.SubtotalCents != written.SubtotalCents {
		t.Errorf("Subtotal mismatch: wrote %d, read %d", written.SubtotalCents, read.SubtotalCents)
	}
	if read.ItemCount != written.ItemCount {
		t.Errorf("Item count mismatch: wrote %d, read %d", written.ItemCount, read.ItemCount)
	}
	if read.Remaining != written.Remaining {
		t.Errorf("Remaining mismatch: wrote %+v, read %+v", written.Remaining, read.Remaining)
	}
	if read.Breakdown.Needs.SpentCents != written.Breakdown.Needs.SpentCents ||
		read.Breakdown.Wants.SpentCents != written.Breakdown.Wants.SpentCents ||
		read.Breakdown.Savings.SpentCents != written.Breakdown.Savings.SpentCents {
		t.Errorf("Per-category spend mismatch: wrote %+v, read %+v", written.Breakdown, read.Breakdown)
	}
	if len(read.Items) != len(written.Items) {
		t.Errorf("Item list mismatch: wrote %d items, read %d", len(written.Items), len(read.Items))
	}
}

func TestGetActiveSession_ServedThroughCache(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	svc := NewServiceWithOptions(db, Options{Cache: cache.NewInMemoryCache()})
	ctx := context.Background()

	items := []models.CartItem{
		{ProductID: "p1", UnitPriceCents: 1000, Quantity: 1, BudgetCategory: models.CategoryNeeds},
	}

	if _, err := svc.TrackCart(ctx, "store-1", "cust-1", "sess-1", items, testBudget()); err != nil {
		t.Fatalf("TrackCart failed: %v", err)
	}

	// Two consecutive reads must agree regardless of cache state.
	first, err := svc.GetActiveSession(ctx, "store-1", "cust-1", "sess-1")
	if err != nil {
		t.Fatalf("First read failed: %v", err)
	}
	second, err := svc.GetActiveSession(ctx, "store-1", "cust-1", "sess-1")
	if err != nil {
		t.Fatalf("Second read failed: %v", err)
	}
	if first.ID != second.ID || first.SubtotalCents != second.SubtotalCents {
		t.Errorf("Cache read diverged: %+v vs %+v", first, second)
	}
}

func TestGenerateRecommendations_TriggersAndPriorities(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	svc := NewService(db)
	ctx := context.Background()

	// needs 25.00 and savings 60.00 trigger; wants 10.00 does not.
	remaining := models.RemainingBudget{
		NeedsCents:   2500,
		WantsCents:   1000,
		SavingsCents: 6000,
	}

	recs, err := svc.GenerateRecommendations(ctx, "store-1", "cust-1", remaining, nil)
	if err != nil {
		t.Fatalf("GenerateRecommendations failed: %v", err)
	}

	if len(recs) != 2 {
		t.Fatalf("Expected 2 recommendations, got %d", len(recs))
	}
	if recs[0].BudgetCategory != models.CategoryNeeds || recs[0].Priority != 1 {
		t.Errorf("Expected needs at priority 1, got %s/%d", recs[0].BudgetCategory, recs[0].Priority)
	}
	if recs[0].PriceCents != 2000 {
		t.Errorf("Expected needs price min(2500*0.8, 3500)=2000, got %d", recs[0].PriceCents)
	}
	if recs[1].BudgetCategory != models.CategorySavings || recs[1].Priority != 2 {
		t.Errorf("Expected savings at priority 2, got %s/%d", recs[1].BudgetCategory, recs[1].Priority)
	}

	// The persisted list matches what was returned.
	stored, err := svc.ListRecommendations(ctx, "store-1", "cust-1")
	if err != nil {
		t.Fatalf("ListRecommendations failed: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("Expected 2 stored recommendations, got %d", len(stored))
	}
	if stored[0].Priority < stored[1].Priority {
		t.Error("Expected descending priority order")
	}
}

func TestGenerateRecommendations_HonorsExclusions(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	svc := NewService(db)

	remaining := models.RemainingBudget{
		NeedsCents:   3000,
		WantsCents:   3000,
		SavingsCents: 6000,
	}

	recs, err := svc.GenerateRecommendations(context.Background(), "store-1", "cust-1",
		remaining, []string{"rec-needs-staples", "rec-savings-boost"})
	if err != nil {
		t.Fatalf("GenerateRecommendations failed: %v", err)
	}

	if len(recs) != 1 {
		t.Fatalf("Expected 1 recommendation after exclusions, got %d", len(recs))
	}
	if recs[0].BudgetCategory != models.CategoryWants || recs[0].Priority != 1 {
		t.Errorf("Expected the wants candidate at priority 1, got %s/%d",
			recs[0].BudgetCategory, recs[0].Priority)
	}
}

func TestListRecommendations_CapsAtFive(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	svc := NewService(db)
	ctx := context.Background()

	remaining := models.RemainingBudget{
		NeedsCents:   10000,
		WantsCents:   10000,
		SavingsCents: 10000,
	}

	// Three generation rounds persist nine rows.
	for i := 0; i < 3; i++ {
		if _, err := svc.GenerateRecommendations(ctx, "store-1", "cust-1", remaining, nil); err != nil {
			t.Fatalf("GenerateRecommendations round %d failed: %v", i, err)
		}
	}

	recs, err := svc.ListRecommendations(ctx, "store-1", "cust-1")
	if err != nil {
		t.Fatalf("ListRecommendations failed: %v", err)
	}
	if len(recs) != 5 {
		t.Fatalf("Expected list capped at 5, got %d", len(recs))
	}
}

func TestMarkClicked_IdempotentAndOneWay(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	svc := NewService(db)
	ctx := context.Background()

	remaining := models.RemainingBudget{NeedsCents: 3000}
	recs, err := svc.GenerateRecommendations(ctx, "store-1", "cust-1", remaining, nil)
	if err != nil {
		t.Fatalf("GenerateRecommendations failed: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("Expected 1 recommendation, got %d", len(recs))
	}
	id := recs[0].ID

	if err := svc.MarkClicked(ctx, id); err != nil {
		t.Fatalf("First MarkClicked failed: %v", err)
	}
	if err := svc.MarkClicked(ctx, id); err != nil {
		t.Fatalf("Second MarkClicked should be a no-op success, got %v", err)
	}

	stored, err := svc.ListRecommendations(ctx, "store-1", "cust-1")
	if err != nil {
		t.Fatalf("ListRecommendations failed: %v", err)
	}
	if !stored[0].IsClicked {
		t.Error("Expected clicked flag to be set")
	}
	if stored[0].IsPurchased {
		t.Error("Purchased flag must not be affected by clicks")
	}
}

func TestMarkPurchased_NotFound(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	svc := NewService(db)

	err := svc.MarkPurchased(context.Background(), uuid.New().String())
	if !errors.Is(err, database.ErrRecommendationNotFound) {
		t.Fatalf("Expected ErrRecommendationNotFound, got %v", err)
	}
}

func TestApplyDiscounts_TierSteps(t *testing.T) {
	tests := []struct {
		name       string
		totalCents int64
		wantPct    int64
	}{
		{"meets minimum", 10000, 5},
		{"ratio 1.5", 15000, 7},
		{"ratio 2", 20000, 10},
		{"ratio 3", 30000, 15},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, cleanup := setupTestDB(t)
			defer cleanup()

			svc := NewService(db)

			discounts, err := svc.ApplyDiscounts(context.Background(),
				"store-1", "cust-1", "sess-1", tt.totalCents, 10000)
			if err != nil {
				t.Fatalf("ApplyDiscounts failed: %v", err)
			}

			var pct *models.AutoDiscount
			for i := range discounts {
				if discounts[i].Type == models.DiscountPercentage {
					pct = &discounts[i]
				}
			}
			if pct == nil {
				t.Fatal("Expected a percentage discount")
			}
			if pct.Value != tt.wantPct {
				t.Errorf("Expected %d%%, got %d%%", tt.wantPct, pct.Value)
			}
			if pct.AppliedAmountCents != tt.totalCents*tt.wantPct/100 {
				t.Errorf("Expected applied amount %d, got %d",
					tt.totalCents*tt.wantPct/100, pct.AppliedAmountCents)
			}
			if !pct.IsApplied {
				t.Error("Expected discount to be marked applied")
			}
		})
	}
}

func TestApplyDiscounts_BelowMinimumYieldsNothing(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	svc := NewService(db)

	discounts, err := svc.ApplyDiscounts(context.Background(), "store-1", "cust-1", "sess-1", 9900, 10000)
	if err != nil {
		t.Fatalf("ApplyDiscounts failed: %v", err)
	}
	if len(discounts) != 0 {
		t.Fatalf("Expected no discounts below minimum, got %d", len(discounts))
	}
}

func TestApplyDiscounts_FreeShippingBoundary(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	svc := NewService(db)
	ctx := context.Background()

	// 149.00 against minimum 100.00: percentage only.
	below, err := svc.ApplyDiscounts(ctx, "store-1", "cust-1", "sess-a", 14900, 10000)
	if err != nil {
		t.Fatalf("ApplyDiscounts failed: %v", err)
	}
	if len(below) != 1 || below[0].Type != models.DiscountPercentage {
		t.Fatalf("Expected only a percentage discount at 149.00, got %+v", below)
	}

	// 150.00: percentage plus free shipping.
	at, err := svc.ApplyDiscounts(ctx, "store-1", "cust-1", "sess-b", 15000, 10000)
	if err != nil {
		t.Fatalf("ApplyDiscounts failed: %v", err)
	}
	if len(at) != 2 {
		t.Fatalf("Expected 2 discounts at 150.00, got %d", len(at))
	}

	var free *models.AutoDiscount
	for i := range at {
		if at[i].Type == models.DiscountFreeShipping {
			free = &at[i]
		}
	}
	if free == nil {
		t.Fatal("Expected a free-shipping discount")
	}
	if free.AppliedAmountCents != 1000 {
		t.Errorf("Expected assumed free-shipping saving 1000 cents, got %d", free.AppliedAmountCents)
	}
	if free.Code[:8] != "FREESHIP" {
		t.Errorf("Expected FREESHIP code prefix, got %s", free.Code)
	}
}

func TestApplyDiscounts_BothRowsPersisted(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	svc := NewService(db)
	ctx := context.Background()

	granted, err := svc.ApplyDiscounts(ctx, "store-1", "cust-1", "sess-1", 30000, 10000)
	if err != nil {
		t.Fatalf("ApplyDiscounts failed: %v", err)
	}
	if len(granted) != 2 {
		t.Fatalf("Expected 2 discounts granted, got %d", len(granted))
	}

	stored, err := svc.ListSessionDiscounts(ctx, "sess-1")
	if err != nil {
		t.Fatalf("ListSessionDiscounts failed: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("Expected both discount kinds persisted, got %d rows", len(stored))
	}

	kinds := make(map[models.DiscountType]bool)
	for _, d := range stored {
		kinds[d.Type] = true
		if d.ExpiresAt.Sub(d.CreatedAt).Hours() != 24 {
			t.Errorf("Expected 24h validity, got %v", d.ExpiresAt.Sub(d.CreatedAt))
		}
	}
	if !kinds[models.DiscountPercentage] || !kinds[models.DiscountFreeShipping] {
		t.Errorf("Expected one row of each type, got %v", kinds)
	}
}

func TestApplyDiscounts_ReturnsOnlyThisCall(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	svc := NewService(db)
	ctx := context.Background()

	first, err := svc.ApplyDiscounts(ctx, "store-1", "cust-1", "sess-1", 10000, 10000)
	if err != nil {
		t.Fatalf("First ApplyDiscounts failed: %v", err)
	}
	second, err := svc.ApplyDiscounts(ctx, "store-1", "cust-1", "sess-1", 10000, 10000)
	if err != nil {
		t.Fatalf("Second ApplyDiscounts failed: %v", err)
	}

	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("Expected 1 discount per call, got %d and %d", len(first), len(second))
	}
	if first[0].Code == second[0].Code {
		t.Error("Each call must mint its own code")
	}

	stored, err := db.ListDiscountsForSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("ListDiscountsForSession failed: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("Expected 2 accumulated rows, got %d", len(stored))
	}
}
