package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/piatahub/piata-backend/api/middleware"
	"github.com/piatahub/piata-backend/api/responses"
	"github.com/piatahub/piata-backend/api/validators"
	"github.com/piatahub/piata-backend/internal/payouts"
	"github.com/piatahub/piata-backend/pkg/enums"
	pkgerrors "github.com/piatahub/piata-backend/pkg/errors"
	"github.com/piatahub/piata-backend/pkg/logger"
	"github.com/piatahub/piata-backend/pkg/pagination"
)

type payoutCreateRequest struct {
	OrderID         uuid.UUID `json:"order_id" validate:"required"`
	SellerID        uuid.UUID `json:"seller_id" validate:"required"`
	AmountCents     int64     `json:"amount_cents" validate:"required,gt=0"`
	CommissionCents int64     `json:"commission_cents" validate:"min=0"`
	Currency        string    `json:"currency" validate:"required"`
}

// PayoutCreate schedules a PENDING payout for a delivered order.
func PayoutCreate(svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req payoutCreateRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		currency, err := enums.ParseCurrency(req.Currency)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid currency"))
			return
		}

		payout, err := svc.Create(r.Context(), payouts.CreateInput{
			OrderID:         req.OrderID,
			SellerID:        req.SellerID,
			AmountCents:     req.AmountCents,
			CommissionCents: req.CommissionCents,
			Currency:        currency,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, payout)
	}
}

// PayoutApprove records the acting admin's approval for a payout.
func PayoutApprove(svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payoutID, err := validators.PathUUID(r, "payoutID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		action, err := svc.Approve(r.Context(), payoutID, middleware.ActorID(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, action)
	}
}

type payoutRunRequest struct {
	AllowFailed bool `json:"allow_failed"`
}

// PayoutRun executes an approved payout as the acting admin.
func PayoutRun(svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payoutID, err := validators.PathUUID(r, "payoutID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req payoutRunRequest
		if r.ContentLength > 0 {
			if err := validators.DecodeJSONBody(r, &req); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		payout, err := svc.Run(r.Context(), payouts.RunInput{
			PayoutID:    payoutID,
			RunnerID:    middleware.ActorID(r.Context()),
			AllowFailed: req.AllowFailed,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, payout)
	}
}

// PayoutGet returns one payout by id.
func PayoutGet(svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payoutID, err := validators.PathUUID(r, "payoutID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payout, err := svc.Get(r.Context(), payoutID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, payout)
	}
}

// PayoutList pages through payouts with optional filters.
func PayoutList(svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sellerID, err := validators.ParseQueryUUID(r, "seller_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
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

		page, err := svc.List(r.Context(), payouts.ListInput{
			SellerID: sellerID,
			OrderID:  orderID,
			Status:   enums.PayoutStatus(r.URL.Query().Get("status")),
			Limit:    limit,
			Cursor:   r.URL.Query().Get("cursor"),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}
