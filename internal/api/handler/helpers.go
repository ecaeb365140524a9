package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/edvin/automation/internal/api/response"
	"github.com/edvin/automation/internal/core"
)

// writeStoreError maps a store error to 404 or 500. Internal errors are
// logged and not echoed to the caller.
func writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, core.ErrNotFound) {
		response.WriteError(w, http.StatusNotFound, err.Error())
		return
	}
	zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("store error")
	response.WriteError(w, http.StatusInternalServerError, "internal error")
}

// ruleParams returns the tenant and rule ids of a /tenants/{tenantID}/rules/{ruleID} route.
func ruleParams(r *http.Request) (tenantID, ruleID string) {
	return chi.URLParam(r, "tenantID"), chi.URLParam(r, "ruleID")
}
