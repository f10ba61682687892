package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"budget-cart-api/internal/database"
	"budget-cart-api/internal/models"
	"budget-cart-api/internal/service"
	"budget-cart-api/internal/validation"
)

// Handler provides HTTP handlers for the API.
type Handler struct {
	service     *service.Service
	maxBodySize int64
}

// NewHandlerOptions holds options for creating a handler.
type NewHandlerOptions struct {
	MaxBodySize int64
}

// DefaultHandlerOptions returns default handler options.
func DefaultHandlerOptions() NewHandlerOptions {
	return NewHandlerOptions{
		MaxBodySize: 1 << 20, // 1MB default
	}
}

// NewHandler creates a new handler instance.
func NewHandler(svc *service.Service) *Handler {
	return NewHandlerWithOptions(svc, DefaultHandlerOptions())
}

// NewHandlerWithOptions creates a new handler instance with custom options.
func NewHandlerWithOptions(svc *service.Service, opts NewHandlerOptions) *Handler {
	return &Handler{
		service:     svc,
		maxBodySize: opts.MaxBodySize,
	}
}

// Routes mounts every API route on the router.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/cart", func(r chi.Router) {
		r.Post("/track", h.TrackCart)
		r.Get("/session", h.GetActiveSession)
	})

	r.Route("/recommendations", func(r chi.Router) {
		r.Post("/generate", h.GenerateRecommendations)
		r.Post("/{recommendation_id}/click", h.MarkClicked)
		r.Post("/{recommendation_id}/purchase", h.MarkPurchased)
	})

	r.Route("/customers", func(r chi.Router) {
		r.Get("/{customer_id}/recommendations", h.ListRecommendations)
	})

	r.Route("/discounts", func(r chi.Router) {
		r.Post("/apply", h.ApplyDiscounts)
		r.Get("/session/{session_id}", h.ListSessionDiscounts)
	})
}

// TrackCart handles POST /cart/track
func (h *Handler) TrackCart(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	var req models.TrackCartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err == io.EOF {
			h.respondError(w, http.StatusBadRequest, "request body is required")
			return
		}
		h.respondError(w, http.StatusBadRequest, "invalid JSON in request body")
		return
	}

	req.StoreID = validation.SanitizeString(req.StoreID)
	req.CustomerID = validation.SanitizeString(req.CustomerID)
	req.SessionID = validation.SanitizeString(req.SessionID)
	for i := range req.Items {
		req.Items[i].ProductID = validation.SanitizeString(req.Items[i].ProductID)
		req.Items[i].Title = validation.SanitizeString(req.Items[i].Title)
	}

	session, err := h.service.TrackCart(r.Context(), req.StoreID, req.CustomerID, req.SessionID, req.Items, req.Budget)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, session)
}

// GetActiveSession handles GET /cart/session
func (h *Handler) GetActiveSession(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	storeID := validation.SanitizeString(q.Get("store_id"))
	customerID := validation.SanitizeString(q.Get("customer_id"))
	sessionID := validation.SanitizeString(q.Get("session_id"))

	session, err := h.service.GetActiveSession(r.Context(), storeID, customerID, sessionID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, session)
}

// GenerateRecommendations handles POST /recommendations/generate
func (h *Handler) GenerateRecommendations(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	var req models.GenerateRecommendationsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err == io.EOF {
			h.respondError(w, http.StatusBadRequest, "request body is required")
			return
		}
		h.respondError(w, http.StatusBadRequest, "invalid JSON in request body")
		return
	}

	req.StoreID = validation.SanitizeString(req.StoreID)
	req.CustomerID = validation.SanitizeString(req.CustomerID)
	for i := range req.ExcludeProductIDs {
		req.ExcludeProductIDs[i] = validation.SanitizeString(req.ExcludeProductIDs[i])
	}

	recs, err := h.service.GenerateRecommendations(r.Context(), req.StoreID, req.CustomerID, req.Remaining, req.ExcludeProductIDs)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, models.RecommendationsResponse{Recommendations: recs})
}

// ListRecommendations handles GET /customers/{customer_id}/recommendations
func (h *Handler) ListRecommendations(w http.ResponseWriter, r *http.Request) {
	customerID := validation.SanitizeString(chi.URLParam(r, "customer_id"))
	storeID := validation.SanitizeString(r.URL.Query().Get("store_id"))

	recs, err := h.service.ListRecommendations(r.Context(), storeID, customerID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	if recs == nil {
		recs = []models.ProductRecommendation{}
	}
	h.respondJSON(w, http.StatusOK, models.RecommendationsResponse{Recommendations: recs})
}

// MarkClicked handles POST /recommendations/{recommendation_id}/click
func (h *Handler) MarkClicked(w http.ResponseWriter, r *http.Request) {
	id := validation.SanitizeString(chi.URLParam(r, "recommendation_id"))

	if err := h.service.MarkClicked(r.Context(), id); err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]bool{"clicked": true})
}

// MarkPurchased handles POST /recommendations/{recommendation_id}/purchase
func (h *Handler) MarkPurchased(w http.ResponseWriter, r *http.Request) {
	id := validation.SanitizeString(chi.URLParam(r, "recommendation_id"))

	if err := h.service.MarkPurchased(r.Context(), id); err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]bool{"purchased": true})
}

// ApplyDiscounts handles POST /discounts/apply
func (h *Handler) ApplyDiscounts(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	var req models.ApplyDiscountsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err == io.EOF {
			h.respondError(w, http.StatusBadRequest, "request body is required")
			return
		}
		h.respondError(w, http.StatusBadRequest, "invalid JSON in request body")
		return
	}

	req.StoreID = validation.SanitizeString(req.StoreID)
	req.CustomerID = validation.SanitizeString(req.CustomerID)
	req.SessionID = validation.SanitizeString(req.SessionID)

	discounts, err := h.service.ApplyDiscounts(r.Context(), req.StoreID, req.CustomerID, req.SessionID, req.TotalCartCents, req.MinimumAmountCents)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, models.DiscountsResponse{Discounts: discounts})
}

// ListSessionDiscounts handles GET /discounts/session/{session_id}
func (h *Handler) ListSessionDiscounts(w http.ResponseWriter, r *http.Request) {
	sessionID := validation.SanitizeString(chi.URLParam(r, "session_id"))

	discounts, err := h.service.ListSessionDiscounts(r.Context(), sessionID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	if discounts == nil {
		discounts = []models.AutoDiscount{}
	}
	h.respondJSON(w, http.StatusOK, models.DiscountsResponse{Discounts: discounts})
}

// respondServiceError maps service errors onto status codes: validation
// failures are 400, missing rows are 404, anything else is a 500.
func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	var verr *validation.ValidationError
	switch {
	case errors.As(err, &verr):
		h.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, database.ErrSessionNotFound):
		h.respondError(w, http.StatusNotFound, "no active session")
	case errors.Is(err, database.ErrRecommendationNotFound):
		h.respondError(w, http.StatusNotFound, "recommendation not found")
	default:
		h.respondError(w, http.StatusInternalServerError, "internal error")
	}
}

// respondJSON sends a JSON response with the given status code.
func (h *Handler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response with the given status code and message.
func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, models.ErrorResponse{Error: message})
}
