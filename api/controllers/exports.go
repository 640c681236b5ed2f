package controllers

import (
	"fmt"
	"net/http"

	"github.com/piatahub/piata-backend/api/responses"
	"github.com/piatahub/piata-backend/internal/ledger"
	"github.com/piatahub/piata-backend/internal/payouts"
	"github.com/piatahub/piata-backend/internal/refunds"
	"github.com/piatahub/piata-backend/pkg/db/models"
	"github.com/piatahub/piata-backend/pkg/export"
	"github.com/piatahub/piata-backend/pkg/logger"
	"github.com/piatahub/piata-backend/pkg/pagination"
)

// exportPageCap bounds how many cursor pages one export request walks.
const exportPageCap = 500

func writeCSVHeader(w http.ResponseWriter, filename string) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
}

// ExportLedgerCSV streams the full ledger as CSV.
func ExportLedgerCSV(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var entries []models.LedgerEntry
		cursor := ""
		for i := 0; i < exportPageCap; i++ {
			page, err := svc.List(r.Context(), ledger.ListInput{Limit: pagination.MaxLimit, Cursor: cursor})
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			entries = append(entries, page.Entries...)
			if page.NextCursor == "" {
				break
			}
			cursor = page.NextCursor
		}

		writeCSVHeader(w, "ledger.csv")
		if err := export.WriteLedgerEntries(w, entries); err != nil && logg != nil {
			logg.Error(r.Context(), "writing ledger csv", err)
		}
	}
}

// ExportPayoutsCSV streams every payout as CSV.
func ExportPayoutsCSV(svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var rows []models.Payout
		cursor := ""
		for i := 0; i < exportPageCap; i++ {
			page, err := svc.List(r.Context(), payouts.ListInput{Limit: pagination.MaxLimit, Cursor: cursor})
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			rows = append(rows, page.Payouts...)
			if page.NextCursor == "" {
				break
			}
			cursor = page.NextCursor
		}

		writeCSVHeader(w, "payouts.csv")
		if err := export.WritePayouts(w, rows); err != nil && logg != nil {
			logg.Error(r.Context(), "writing payouts csv", err)
		}
	}
}

// ExportRefundsCSV streams every refund as CSV.
func ExportRefundsCSV(svc refunds.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var rows []models.Refund
		cursor := ""
		for i := 0; i < exportPageCap; i++ {
			page, err := svc.List(r.Context(), refunds.ListInput{Limit: pagination.MaxLimit, Cursor: cursor})
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			rows = append(rows, page.Refunds...)
			if page.NextCursor == "" {
				break
			}
			cursor = page.NextCursor
		}

		writeCSVHeader(w, "refunds.csv")
		if err := export.WriteRefunds(w, rows); err != nil && logg != nil {
			logg.Error(r.Context(), "writing refunds csv", err)
		}
	}
}
