package handler

import (
	"encoding/json"
	"net/http"

	"app/internal/api/v1/dto"
	"app/internal/middleware"
	"app/internal/model"
	"app/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// SubscriptionHandler handles subscription-related endpoints.
type SubscriptionHandler struct {
	stripeSvc *service.StripeService
	subSvc    service.SubscriptionService
	validate  *validator.Validate
	logger    zerolog.Logger
}

// NewSubscriptionHandler creates a new SubscriptionHandler.
func NewSubscriptionHandler(stripeSvc *service.StripeService, subSvc service.SubscriptionService, v *validator.Validate, logger zerolog.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{stripeSvc: stripeSvc, subSvc: subSvc, validate: v, logger: logger}
}

// RegisterRoutes registers the subscription endpoints. The webhook route is
// authenticated by signature verification, not bearer auth, and must receive
// the raw request body.
func (h *SubscriptionHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware func(http.Handler) http.Handler) {
	mux.Handle("/subscriptions/checkout", authMiddleware(http.HandlerFunc(h.Checkout)))
	mux.Handle("/subscriptions/portal", authMiddleware(http.HandlerFunc(h.Portal)))
	mux.Handle("/subscriptions/info", http.HandlerFunc(h.Info))
	mux.Handle("/users/me/subscription", authMiddleware(http.HandlerFunc(h.MySubscription)))
	mux.Handle("/webhooks/stripe", http.HandlerFunc(h.stripeSvc.HandleWebhook))
}

// Checkout godoc
// @Summary Initiate a Stripe Checkout session for a plan purchase
// @Description Creates a subscription-mode Stripe Checkout session and returns its URL.
// @Tags subscriptions
// @Accept json
// @Produce json
// @Param subscription body dto.SubscriptionCheckoutRequest true "Subscription checkout request"
// @Success 200 {object} dto.SessionURLResponse
// @Failure 400 {string} string "invalid request payload"
// @Failure 401 {string} string "unauthorized"
// @Failure 500 {string} string "failed to create checkout session"
// @Router /subscriptions/checkout [post]
func (h *SubscriptionHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserContextKey).(string)
	if !ok || userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req dto.SubscriptionCheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request payload", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}
	url, err := h.stripeSvc.CreateCheckoutSession(r.Context(), userID, req.Plan, req.Interval)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("failed to create checkout session")
		writeServiceError(w, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, dto.SessionURLResponse{URL: url})
}

// Portal godoc
// @Summary Create a Stripe Customer Portal session
// @Description Generates a Stripe Customer Portal session URL for the authenticated user.
// @Tags subscriptions
// @Produce json
// @Success 200 {object} dto.SessionURLResponse
// @Failure 401 {string} string "unauthorized"
// @Failure 404 {string} string "no stripe customer for user"
// @Failure 500 {string} string "failed to create portal session"
// @Router /subscriptions/portal [get]
func (h *SubscriptionHandler) Portal(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserContextKey).(string)
	if !ok || userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	url, err := h.stripeSvc.CreatePortalSession(r.Context(), userID)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("failed to create portal session")
		writeServiceError(w, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, dto.SessionURLResponse{URL: url})
}

// Info godoc
// @Summary Fetch live subscription and invoice state
// @Description Returns subscription and invoice state from the billing provider. Never cached.
// @Tags subscriptions
// @Produce json
// @Param customer_id query string false "Stripe customer id"
// @Param subscription_id query string false "Stripe subscription id"
// @Success 200 {object} service.SubscriptionInfo
// @Failure 400 {string} string "customer id or subscription id is required"
// @Failure 404 {string} string "not found"
// @Failure 500 {string} string "billing provider request failed"
// @Router /subscriptions/info [get]
func (h *SubscriptionHandler) Info(w http.ResponseWriter, r *http.Request) {
	// Billing state must never be served stale.
	w.Header().Set("Cache-Control", "no-store")

	customerID := r.URL.Query().Get("customer_id")
	subscriptionID := r.URL.Query().Get("subscription_id")
	info, err := h.subSvc.GetInfo(r.Context(), customerID, subscriptionID)
	if err != nil {
		h.logger.Error().Err(err).Str("stripe_customer_id", customerID).Str("subscription_id", subscriptionID).Msg("failed to fetch subscription info")
		writeServiceError(w, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, info)
}

// MySubscription godoc
// @Summary Fetch the caller's stored subscription and verification badge
// @Tags subscriptions
// @Produce json
// @Success 200 {object} dto.UserSubscriptionResponse
// @Failure 401 {string} string "unauthorized"
// @Failure 404 {string} string "user not found"
// @Router /users/me/subscription [get]
func (h *SubscriptionHandler) MySubscription(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserContextKey).(string)
	if !ok || userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	sub, badge, err := h.subSvc.GetUserSubscription(r.Context(), userID)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("failed to fetch user subscription")
		writeServiceError(w, err)
		return
	}

	resp := dto.UserSubscriptionResponse{}
	if sub != nil {
		resp.Subscription = &dto.StoredSubscriptionDTO{
			SubscriptionID:     sub.StripeSubscriptionID,
			PlanID:             sub.PlanID,
			Status:             sub.Status,
			CurrentPeriodStart: sub.CurrentPeriodStart,
			CurrentPeriodEnd:   sub.CurrentPeriodEnd,
			CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
			BillingInterval:    sub.BillingInterval,
			Placeholder:        sub.Source == model.SourceLocal,
		}
	}
	if badge != nil {
		resp.Verification = &dto.VerificationDTO{
			Active:           badge.Active,
			Status:           badge.Status,
			CurrentPeriodEnd: badge.CurrentPeriodEnd,
		}
	}
	writeJSON(w, h.logger, http.StatusOK, resp)
}
