package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/piatahub/piata-backend/api/middleware"
	"github.com/piatahub/piata-backend/api/responses"
	"github.com/piatahub/piata-backend/api/validators"
	"github.com/piatahub/piata-backend/internal/shipping"
	"github.com/piatahub/piata-backend/pkg/logger"
)

type shippingRulesResponse struct {
	Version int            `json:"version"`
	Rules   shipping.Rules `json:"rules"`
}

// ShippingRulesActive returns the currently active rule document and its
// version.
func ShippingRulesActive(svc shipping.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rules, version, err := svc.ActiveRules(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, shippingRulesResponse{Version: version, Rules: *rules})
	}
}

// ShippingRulesPublish validates and activates a new rule document version.
func ShippingRulesPublish(svc shipping.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var document shipping.Rules
		if err := validators.DecodeJSONBody(r, &document); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		published, err := svc.Publish(r.Context(), shipping.PublishInput{
			Document: document,
			ActorID:  middleware.ActorID(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, published)
	}
}

type shippingPreviewRequest struct {
	SubtotalCents int64     `json:"subtotal_cents" validate:"min=0"`
	WeightKg      float64   `json:"weight_kg" validate:"min=0"`
	SellerID      uuid.UUID `json:"seller_id"`
	CategorySlugs []string  `json:"category_slugs"`
}

// ShippingRulesPreview computes the fee the active rules would charge for a
// hypothetical order.
func ShippingRulesPreview(svc shipping.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req shippingPreviewRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		fee, err := svc.Preview(r.Context(), shipping.ComputeInput{
			SubtotalCents: req.SubtotalCents,
			WeightKg:      req.WeightKg,
			SellerID:      req.SellerID,
			CategorySlugs: req.CategorySlugs,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]int64{"fee_cents": fee})
	}
}

// ShippingRulesHistory lists every published rule set version.
func ShippingRulesHistory(svc shipping.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		history, err := svc.History(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, history)
	}
}
