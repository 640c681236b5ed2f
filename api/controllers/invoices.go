package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/piatahub/piata-backend/api/middleware"
	"github.com/piatahub/piata-backend/api/responses"
	"github.com/piatahub/piata-backend/api/validators"
	"github.com/piatahub/piata-backend/internal/invoices"
	"github.com/piatahub/piata-backend/pkg/enums"
	pkgerrors "github.com/piatahub/piata-backend/pkg/errors"
	"github.com/piatahub/piata-backend/pkg/logger"
)

// InvoiceIssue issues the invoice for (order, type). Re-issuing returns the
// existing invoice unchanged.
func InvoiceIssue(svc invoices.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.PathUUID(r, "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		invoiceType, err := enums.ParseInvoiceType(chi.URLParam(r, "invoiceType"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid invoice type"))
			return
		}

		invoice, err := svc.Issue(r.Context(), invoices.IssueInput{OrderID: orderID, Type: invoiceType})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, invoice)
	}
}

// InvoiceRegenerate replaces an errored invoice in place.
func InvoiceRegenerate(svc invoices.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.PathUUID(r, "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		invoiceType, err := enums.ParseInvoiceType(chi.URLParam(r, "invoiceType"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid invoice type"))
			return
		}

		invoice, err := svc.Regenerate(r.Context(), invoices.RegenerateInput{
			OrderID: orderID,
			Type:    invoiceType,
			ActorID: middleware.ActorID(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, invoice)
	}
}

// InvoiceListByOrder returns every invoice issued for an order.
func InvoiceListByOrder(svc invoices.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.PathUUID(r, "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, err := svc.ListByOrder(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rows)
	}
}
