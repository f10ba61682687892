package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"budget-cart-api/internal/budget"
	"budget-cart-api/internal/cache"
	"budget-cart-api/internal/database"
	"budget-cart-api/internal/discount"
	"budget-cart-api/internal/events"
	"budget-cart-api/internal/features"
	"budget-cart-api/internal/models"
	"budget-cart-api/internal/recommend"
	"budget-cart-api/internal/validation"
)

const (
	recommendationListLimit = 5
	discountValidity        = 24 * time.Hour
	codeInsertAttempts      = 3
)

// Service is the tracking façade: one instance constructed at startup and
// handed to the HTTP layer. It orchestrates the budget allocator, the rule
// engines, and the row store.
type Service struct {
	db     *database.DB
	cache  cache.Cache
	events *events.Manager
	flags  *features.Manager
	sfg    singleflight.Group // collapses concurrent session cache misses
}

// Options holds the optional collaborators for a Service. Nil fields
// disable the corresponding behavior (no cache, no events) or leave every
// feature enabled (no flags).
type Options struct {
	Cache  cache.Cache
	Events *events.Manager
	Flags  *features.Manager
}

// NewService creates a service backed only by the row store.
func NewService(db *database.DB) *Service {
	return NewServiceWithOptions(db, Options{})
}

// NewServiceWithOptions creates a service with explicit collaborators.
func NewServiceWithOptions(db *database.DB, opts Options) *Service {
	return &Service{
		db:     db,
		cache:  opts.Cache,
		events: opts.Events,
		flags:  opts.Flags,
	}
}

// flagEnabled treats a missing flag manager as everything-on so library
// callers don't have to register flags they never toggle.
func (s *Service) flagEnabled(name string) bool {
	if s.flags == nil {
		return true
	}
	return s.flags.IsEnabled(name)
}

// TrackCart recomputes the budget breakdown for the cart and upserts the
// active session row for the (store, customer, session) key. Calling it
// twice for the same key overwrites the first snapshot; exactly one active
// row exists afterwards.
func (s *Service) TrackCart(ctx context.Context, storeID, customerID, sessionID string, items []models.CartItem, cfg models.BudgetConfig) (models.CartSession, error) {
	if err := validation.ValidateSessionKey(storeID, customerID, sessionID); err != nil {
		return models.CartSession{}, err
	}
	if err := validation.ValidateCart(items); err != nil {
		return models.CartSession{}, err
	}
	if err := validation.ValidateBudgetConfig(cfg); err != nil {
		return models.CartSession{}, err
	}

	breakdown := budget.Allocate(items, cfg)

	session := models.CartSession{
		ID:            uuid.New().String(),
		StoreID:       storeID,
		CustomerID:    customerID,
		SessionID:     sessionID,
		IsActive:      true,
		Items:         items,
		ItemCount:     breakdown.TotalItems,
		SubtotalCents: breakdown.TotalCartCents,
		Breakdown:     breakdown,
		Remaining:     breakdown.Remaining,
	}

	stored, err := s.db.UpsertSession(ctx, session)
	if err != nil {
		return models.CartSession{}, fmt.Errorf("failed to store session: %w", err)
	}

	s.invalidateSessionCache(storeID, customerID, sessionID)

	if s.events != nil && s.flagEnabled(features.FeatureEventHooksEnabled) {
		s.events.PublishSessionUpdated(ctx, stored)
	}

	return stored, nil
}

// GetActiveSession returns the active session for the key triple, serving
// from the cache when possible. Concurrent misses for the same key collapse
// into one store read.
func (s *Service) GetActiveSession(ctx context.Context, storeID, customerID, sessionID string) (models.CartSession, error) {
	if err := validation.ValidateSessionKey(storeID, customerID, sessionID); err != nil {
		return models.CartSession{}, err
	}

	if s.cache == nil || !s.flagEnabled(features.FeatureCacheEnabled) {
		return s.db.GetActiveSession(ctx, storeID, customerID, sessionID)
	}

	key := cache.SessionKey(storeID, customerID, sessionID)
	v, err, _ := s.sfg.Do(key, func() (interface{}, error) {
		var cached models.CartSession
		cacheErr := cache.GetJSON(ctx, s.cache, key, &cached)
		if cacheErr == nil {
			return cached, nil
		}
		if !errors.Is(cacheErr, cache.ErrNotFound) {
			log.Printf("session cache get error: %v", cacheErr)
		}

		session, dbErr := s.db.GetActiveSession(ctx, storeID, customerID, sessionID)
		if dbErr != nil {
			return models.CartSession{}, dbErr
		}

		go func() {
			setErr := cache.SetJSON(context.Background(), s.cache, key, session, cache.DefaultSessionTTL)
			if setErr != nil {
				log.Printf("session cache set error: %v", setErr)
			}
		}()

		return session, nil
	})
	if err != nil {
		return models.CartSession{}, err
	}

	return v.(models.CartSession), nil
}

// GenerateRecommendations evaluates the per-category rule table against the
// remaining budget, skips excluded products, persists the survivors in one
// transaction, and returns the in-memory list.
func (s *Service) GenerateRecommendations(ctx context.Context, storeID, customerID string, remaining models.RemainingBudget, excludeProductIDs []string) ([]models.ProductRecommendation, error) {
	if err := validation.ValidateID(storeID, "store_id"); err != nil {
		return nil, err
	}
	if err := validation.ValidateID(customerID, "customer_id"); err != nil {
		return nil, err
	}

	if !s.flagEnabled(features.FeatureRecommendations) {
		return []models.ProductRecommendation{}, nil
	}

	candidates := recommend.Evaluate(remaining, excludeProductIDs)

	now := time.Now().UTC()
	recs := make([]models.ProductRecommendation, 0, len(candidates))
	for _, c := range candidates {
		recs = append(recs, models.ProductRecommendation{
			ID:                  uuid.New().String(),
			StoreID:             storeID,
			CustomerID:          customerID,
			ProductID:           c.ProductID,
			Title:               c.Title,
			PriceCents:          c.PriceCents,
			BudgetCategory:      c.BudgetCategory,
			Reason:              c.Reason,
			RemainingAfterCents: c.RemainingAfterCents,
			Priority:            c.Priority,
			CreatedAt:           now,
		})
	}

	if err := s.db.InsertRecommendations(ctx, recs); err != nil {
		return nil, fmt.Errorf("failed to store recommendations: %w", err)
	}

	if s.events != nil && s.flagEnabled(features.FeatureEventHooksEnabled) {
		s.events.PublishRecommendationsGenerated(ctx, storeID, customerID, recs)
	}

	return recs, nil
}

// ListRecommendations returns up to 5 stored recommendations for the
// customer, highest priority first.
func (s *Service) ListRecommendations(ctx context.Context, storeID, customerID string) ([]models.ProductRecommendation, error) {
	if err := validation.ValidateID(storeID, "store_id"); err != nil {
		return nil, err
	}
	if err := validation.ValidateID(customerID, "customer_id"); err != nil {
		return nil, err
	}

	return s.db.ListRecommendations(ctx, storeID, customerID, recommendationListLimit)
}

// MarkClicked sets a recommendation's one-way clicked flag. Repeated calls
// succeed without effect; an unknown id fails with NotFound.
func (s *Service) MarkClicked(ctx context.Context, recommendationID string) error {
	if err := validation.ValidateID(recommendationID, "recommendation_id"); err != nil {
		return err
	}

	if err := s.db.MarkRecommendationClicked(ctx, recommendationID); err != nil {
		return err
	}

	if s.events != nil && s.flagEnabled(features.FeatureEventHooksEnabled) {
		s.events.PublishRecommendationEngaged(ctx, recommendationID, false)
	}

	return nil
}

// MarkPurchased sets a recommendation's one-way purchased flag.
func (s *Service) MarkPurchased(ctx context.Context, recommendationID string) error {
	if err := validation.ValidateID(recommendationID, "recommendation_id"); err != nil {
		return err
	}

	if err := s.db.MarkRecommendationPurchased(ctx, recommendationID); err != nil {
		return err
	}

	if s.events != nil && s.flagEnabled(features.FeatureEventHooksEnabled) {
		s.events.PublishRecommendationEngaged(ctx, recommendationID, true)
	}

	return nil
}

// ApplyDiscounts derives the tiered percentage discount and the
// free-shipping bonus for the cart total, persists both in one transaction,
// and returns only the discounts created by this call. Both discount kinds
// are stored consistently; codes are unique, with regeneration on the rare
// collision.
func (s *Service) ApplyDiscounts(ctx context.Context, storeID, customerID, sessionID string, totalCents, minimumCents int64) ([]models.AutoDiscount, error) {
	if err := validation.ValidateSessionKey(storeID, customerID, sessionID); err != nil {
		return nil, err
	}
	if err := validation.ValidateDiscountInput(totalCents, minimumCents); err != nil {
		return nil, err
	}

	var granted []models.AutoDiscount
	for attempt := 0; attempt < codeInsertAttempts; attempt++ {
		discounts, err := s.buildDiscounts(storeID, customerID, sessionID, totalCents, minimumCents)
		if err != nil {
			return nil, err
		}

		if len(discounts) == 0 {
			return []models.AutoDiscount{}, nil
		}

		err = s.db.InsertDiscounts(ctx, discounts)
		if err == nil {
			granted = discounts
			break
		}
		if errors.Is(err, database.ErrDuplicateCode) {
			continue
		}
		return nil, fmt.Errorf("failed to store discounts: %w", err)
	}
	if granted == nil {
		return nil, fmt.Errorf("failed to generate unique discount codes after %d attempts", codeInsertAttempts)
	}

	if s.events != nil && s.flagEnabled(features.FeatureEventHooksEnabled) {
		s.events.PublishDiscountApplied(ctx, sessionID, granted)
	}

	return granted, nil
}

// buildDiscounts assembles the discount rows for one apply call with fresh
// codes. Codes are regenerated wholesale when an insert hits a collision.
func (s *Service) buildDiscounts(storeID, customerID, sessionID string, totalCents, minimumCents int64) ([]models.AutoDiscount, error) {
	now := time.Now().UTC()
	var discounts []models.AutoDiscount

	if pct := discount.TierPercentage(totalCents, minimumCents); pct > 0 {
		code, err := discount.NewCode("BUDGET")
		if err != nil {
			return nil, fmt.Errorf("failed to generate discount code: %w", err)
		}

		discounts = append(discounts, models.AutoDiscount{
			Code:               code,
			StoreID:            storeID,
			CustomerID:         customerID,
			CartSessionID:      sessionID,
			Type:               models.DiscountPercentage,
			Value:              pct,
			MinimumAmountCents: minimumCents,
			AppliedAmountCents: discount.AppliedAmountCents(totalCents, pct),
			IsApplied:          true,
			ExpiresAt:          now.Add(discountValidity),
			CreatedAt:          now,
		})
	}

	if discount.QualifiesFreeShipping(totalCents, minimumCents) && s.flagEnabled(features.FeatureFreeShippingTier) {
		code, err := discount.NewCode("FREESHIP")
		if err != nil {
			return nil, fmt.Errorf("failed to generate discount code: %w", err)
		}

		discounts = append(discounts, models.AutoDiscount{
			Code:               code,
			StoreID:            storeID,
			CustomerID:         customerID,
			CartSessionID:      sessionID,
			Type:               models.DiscountFreeShipping,
			Value:              discount.FreeShippingSavingCents,
			MinimumAmountCents: minimumCents,
			AppliedAmountCents: discount.FreeShippingSavingCents,
			IsApplied:          true,
			ExpiresAt:          now.Add(discountValidity),
			CreatedAt:          now,
		})
	}

	return discounts, nil
}

// ListSessionDiscounts returns every discount granted against a session so
// far, newest first.
func (s *Service) ListSessionDiscounts(ctx context.Context, sessionID string) ([]models.AutoDiscount, error) {
	if err := validation.ValidateID(sessionID, "session_id"); err != nil {
		return nil, err
	}

	return s.db.ListDiscountsForSession(ctx, sessionID)
}

func (s *Service) invalidateSessionCache(storeID, customerID, sessionID string) {
	if s.cache == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	key := cache.SessionKey(storeID, customerID, sessionID)
	if err := s.cache.Delete(ctx, key); err != nil {
		log.Printf("session cache invalidate error: %v", err)
	}
}
