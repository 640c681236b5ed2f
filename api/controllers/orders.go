package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/piatahub/piata-backend/api/responses"
	"github.com/piatahub/piata-backend/api/validators"
	"github.com/piatahub/piata-backend/internal/orders"
	"github.com/piatahub/piata-backend/pkg/enums"
	pkgerrors "github.com/piatahub/piata-backend/pkg/errors"
	"github.com/piatahub/piata-backend/pkg/logger"
	"github.com/piatahub/piata-backend/pkg/pagination"
)

type orderItemRequest struct {
	ProductName    string `json:"product_name" validate:"required,min=1,max=255"`
	CategorySlug   string `json:"category_slug" validate:"max=128"`
	Qty            int    `json:"qty" validate:"required,gt=0"`
	UnitPriceCents int64  `json:"unit_price_cents" validate:"min=0"`
	DiscountCents  int64  `json:"discount_cents" validate:"min=0"`
	CommissionBps  *int   `json:"commission_bps" validate:"omitempty,min=0,max=10000"`
}

type orderPlaceRequest struct {
	BuyerID       uuid.UUID          `json:"buyer_id" validate:"required"`
	SellerID      uuid.UUID          `json:"seller_id" validate:"required"`
	Currency      string             `json:"currency" validate:"required"`
	CommissionBps int                `json:"commission_bps" validate:"min=0,max=10000"`
	WeightKg      float64            `json:"weight_kg" validate:"min=0"`
	Items         []orderItemRequest `json:"items" validate:"required,min=1,dive"`
}

// OrderPlace prices and records a new order, charging the buyer on the
// ledger.
func OrderPlace(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req orderPlaceRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		currency, err := enums.ParseCurrency(req.Currency)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid currency"))
			return
		}

		input := orders.PlaceInput{
			BuyerID:       req.BuyerID,
			SellerID:      req.SellerID,
			Currency:      currency,
			CommissionBps: req.CommissionBps,
			WeightKg:      req.WeightKg,
		}
		for _, item := range req.Items {
			input.Items = append(input.Items, orders.ItemInput{
				ProductName:    item.ProductName,
				CategorySlug:   item.CategorySlug,
				Qty:            item.Qty,
				UnitPriceCents: item.UnitPriceCents,
				DiscountCents:  item.DiscountCents,
				CommissionBps:  item.CommissionBps,
			})
		}

		order, err := svc.Place(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, order)
	}
}

// OrderDelivered marks the order delivered and returns the PENDING payout it
// created.
func OrderDelivered(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.PathUUID(r, "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		payout, err := svc.MarkDelivered(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, payout)
	}
}

// OrderGet returns one order with its items.
func OrderGet(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.PathUUID(r, "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Get(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// OrderList pages through orders with optional filters.
func OrderList(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		buyerID, err := validators.ParseQueryUUID(r, "buyer_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		sellerID, err := validators.ParseQueryUUID(r, "seller_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.List(r.Context(), orders.ListInput{
			BuyerID:  buyerID,
			SellerID: sellerID,
			Status:   enums.OrderStatus(r.URL.Query().Get("status")),
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
