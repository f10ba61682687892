package events

import (
	"context"
	"sync"
	"time"

	"budget-cart-api/internal/models"
)

// EventType represents the type of event.
type EventType string

const (
	// EventSessionUpdated is emitted after a cart session upsert
	EventSessionUpdated EventType = "session.updated"
	// EventRecommendationsGenerated is emitted when recommendations are created
	EventRecommendationsGenerated EventType = "recommendations.generated"
	// EventDiscountApplied is emitted when discounts are granted
	EventDiscountApplied EventType = "discount.applied"
	// EventRecommendationEngaged is emitted on click/purchase tracking
	EventRecommendationEngaged EventType = "recommendation.engaged"
)

// Event represents an event in the system.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Data      interface{}
}

// SessionUpdatedData contains data for session updated events.
type SessionUpdatedData struct {
	Session models.CartSession
}

// RecommendationsGeneratedData contains data for recommendation events.
type RecommendationsGeneratedData struct {
	StoreID         string
	CustomerID      string
	Recommendations []models.ProductRecommendation
}

// DiscountAppliedData contains data for discount events.
type DiscountAppliedData struct {
	SessionID string
	Discounts []models.AutoDiscount
}

// RecommendationEngagedData contains data for click/purchase tracking events.
type RecommendationEngagedData struct {
	RecommendationID string
	Purchased        bool
}

// Handler is a function that handles events.
type Handler func(ctx context.Context, event Event) error

// Manager manages event handlers and event publishing.
type Manager struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	enabled  bool
}

// NewManager creates a new event manager.
func NewManager(enabled bool) *Manager {
	return &Manager{
		handlers: make(map[EventType][]Handler),
		enabled:  enabled,
	}
}

// Subscribe subscribes a handler to a specific event type.
func (m *Manager) Subscribe(eventType EventType, handler Handler) {
	if !m.enabled {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.handlers[eventType] = append(m.handlers[eventType], handler)
}

// Publish publishes an event to all subscribed handlers. Handlers run
// asynchronously; a failing handler never blocks or fails the operation
// that emitted the event.
func (m *Manager) Publish(ctx context.Context, eventType EventType, data interface{}) {
	if !m.enabled {
		return
	}

	m.mu.RLock()
	handlers := m.handlers[eventType]
	m.mu.RUnlock()

	if len(handlers) == 0 {
		return
	}

	event := Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}

	for _, handler := range handlers {
		go func(h Handler) {
			if err := h(ctx, event); err != nil {
				_ = err
			}
		}(handler)
	}
}

// PublishSessionUpdated publishes a session updated event.
func (m *Manager) PublishSessionUpdated(ctx context.Context, session models.CartSession) {
	m.Publish(ctx, EventSessionUpdated, SessionUpdatedData{Session: session})
}

// PublishRecommendationsGenerated publishes a recommendations generated event.
func (m *Manager) PublishRecommendationsGenerated(ctx context.Context, storeID, customerID string, recs []models.ProductRecommendation) {
	m.Publish(ctx, EventRecommendationsGenerated, RecommendationsGeneratedData{
		StoreID:         storeID,
		CustomerID:      customerID,
		Recommendations: recs,
	})
}

// PublishDiscountApplied publishes a discount applied event.
func (m *Manager) PublishDiscountApplied(ctx context.Context, sessionID string, discounts []models.AutoDiscount) {
	m.Publish(ctx, EventDiscountApplied, DiscountAppliedData{
		SessionID: sessionID,
		Discounts: discounts,
	})
}

// PublishRecommendationEngaged publishes a click/purchase tracking event.
func (m *Manager) PublishRecommendationEngaged(ctx context.Context, recommendationID string, purchased bool) {
	m.Publish(ctx, EventRecommendationEngaged, RecommendationEngagedData{
		RecommendationID: recommendationID,
		Purchased:        purchased,
	})
}

// Shutdown shuts down the event manager.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.enabled = false
	m.handlers = make(map[EventType][]Handler)
}
