package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/piatahub/piata-backend/api/middleware"
	"github.com/piatahub/piata-backend/api/responses"
	"github.com/piatahub/piata-backend/api/validators"
	"github.com/piatahub/piata-backend/internal/refunds"
	"github.com/piatahub/piata-backend/pkg/enums"
	pkgerrors "github.com/piatahub/piata-backend/pkg/errors"
	"github.com/piatahub/piata-backend/pkg/logger"
	"github.com/piatahub/piata-backend/pkg/pagination"
)

type refundRequestBody struct {
	OrderID     uuid.UUID `json:"order_id" validate:"required"`
	AmountCents int64     `json:"amount_cents" validate:"required,gt=0"`
	Currency    string    `json:"currency" validate:"required"`
	Reason      string    `json:"reason" validate:"required,min=1,max=255"`
}

// RefundRequest records a refund request capped by the order's refundable
// balance.
func RefundRequest(svc refunds.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req refundRequestBody
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		currency, err := enums.ParseCurrency(req.Currency)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid currency"))
			return
		}

		refund, err := svc.Request(r.Context(), refunds.RequestInput{
			OrderID:     req.OrderID,
			AmountCents: req.AmountCents,
			Currency:    currency,
			Reason:      req.Reason,
			ActorID:     middleware.ActorID(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, refund)
	}
}

type refundRunRequest struct {
	AllowFailed bool `json:"allow_failed"`
}

// RefundRun executes a pending refund as the acting admin.
func RefundRun(svc refunds.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		refundID, err := validators.PathUUID(r, "refundID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req refundRunRequest
		if r.ContentLength > 0 {
			if err := validators.DecodeJSONBody(r, &req); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		refund, err := svc.Run(r.Context(), refunds.RunInput{
			RefundID:    refundID,
			RunnerID:    middleware.ActorID(r.Context()),
			AllowFailed: req.AllowFailed,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, refund)
	}
}

// RefundGet returns one refund by id.
func RefundGet(svc refunds.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		refundID, err := validators.PathUUID(r, "refundID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		refund, err := svc.Get(r.Context(), refundID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, refund)
	}
}

// RefundList pages through refunds with optional filters.
func RefundList(svc refunds.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.ParseQueryUUID(r, "order_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.List(r.Context(), refunds.ListInput{
			OrderID: orderID,
			Status:  enums.RefundStatus(r.URL.Query().Get("status")),
			Limit:   limit,
			Cursor:  r.URL.Query().Get("cursor"),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// RefundableBalance reports how much of the order's charge remains
// refundable.
func RefundableBalance(svc refunds.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.PathUUID(r, "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		refundable, err := svc.RefundableCents(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]int64{"refundable_cents": refundable})
	}
}
