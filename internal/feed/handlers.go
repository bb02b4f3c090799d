package feed

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"signalperf/internal/model"
)

// ReportLookup loads the latest persisted report for one run key.
type ReportLookup interface {
	LatestReport(ctx context.Context, symbol string, tf int, rule string) (*model.RunRecord, error)
}

// LatestHandler serves GET /reports/latest?symbol=EURUSD&tf=3600&rule=MACD:fast=12
// from the report store. rule takes the CLI form and is canonicalized.
func LatestHandler(store ReportLookup) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		q := r.URL.Query()
		symbol := q.Get("symbol")
		rule := model.ParseRuleIdentity(q.Get("rule"))
		tf, err := strconv.Atoi(q.Get("tf"))
		if symbol == "" || rule.Name == "" || err != nil || tf <= 0 {
			http.Error(w, "symbol, tf and rule are required", http.StatusBadRequest)
			return
		}

		rec, err := store.LatestReport(r.Context(), symbol, tf, rule.String())
		if err != nil {
			log.Printf("[feed] latest %s/%d/%s: %v", symbol, tf, rule, err)
			http.Error(w, "report lookup failed", http.StatusInternalServerError)
			return
		}
		if rec == nil {
			http.Error(w, "no report", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(rec)
	}
}

// NewMux routes /ws to the hub and /reports/latest to store. A nil store
// leaves the REST route out.
func NewMux(h *Hub, store ReportLookup) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/ws", h)
	if store != nil {
		mux.Handle("/reports/latest", LatestHandler(store))
	}
	return mux
}
