package httpapi

import (
	"fmt"
	"net/http"

	"tkfleet.io/internal/fleet"
	"tkfleet.io/internal/tenant"
)

type tenantRequest struct {
	Name string `json:"name"`
}

func (a *API) handleListTenants(w http.ResponseWriter, r *http.Request) {
	list, err := a.svc.ListTenants(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tenants": list})
}

func (a *API) handleCreateTenant(w http.ResponseWriter, r *http.Request) {
	var req tenantRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	t, err := a.svc.CreateTenant(r.Context(), req.Name)
	if err != nil {
		respondError(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/v1/tenants/%s", t.ID))
	writeJSON(w, http.StatusCreated, t)
}

func (a *API) handleGetTenant(w http.ResponseWriter, r *http.Request) {
	t, err := a.svc.GetTenant(r.Context(), r.PathValue(tenant.ParamName))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (a *API) handleRenameTenant(w http.ResponseWriter, r *http.Request) {
	var req tenantRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	t, err := a.svc.RenameTenant(r.Context(), r.PathValue(tenant.ParamName), req.Name)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (a *API) handleDeleteTenant(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.DeleteTenant(r.Context(), r.PathValue(tenant.ParamName)); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) tenantStatus(status fleet.Status) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := a.svc.SetTenantStatus(r.Context(), r.PathValue(tenant.ParamName), status)
		if err != nil {
			respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}
