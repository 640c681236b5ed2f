package controllers

import (
	"net/http"

	"github.com/piatahub/piata-backend/api/responses"
	"github.com/piatahub/piata-backend/api/validators"
	"github.com/piatahub/piata-backend/internal/ledger"
	"github.com/piatahub/piata-backend/pkg/enums"
	"github.com/piatahub/piata-backend/pkg/logger"
	"github.com/piatahub/piata-backend/pkg/pagination"
)

// LedgerList pages through ledger entries with optional filters.
func LedgerList(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entityID, err := validators.ParseQueryUUID(r, "entity_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.List(r.Context(), ledger.ListInput{
			EntityID:   entityID,
			EntityType: enums.LedgerEntityType(r.URL.Query().Get("entity_type")),
			Type:       enums.LedgerEntryType(r.URL.Query().Get("type")),
			Limit:      limit,
			Cursor:     r.URL.Query().Get("cursor"),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// LedgerIntegrity runs the reconciliation checks and reports discrepancies.
// Issues are surfaced, never auto-corrected.
func LedgerIntegrity(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := svc.VerifyIntegrity(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}
