package httpapi

import (
	"net/http"

	"tkfleet.io/internal/obs"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type revokeRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	session, err := a.svc.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		obs.AuthEvents.WithLabelValues("login", "failure").Inc()
		respondError(w, r, err)
		return
	}
	obs.AuthEvents.WithLabelValues("login", "success").Inc()
	writeJSON(w, http.StatusOK, session)
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.AccessToken == "" || req.RefreshToken == "" {
		writeError(w, r, http.StatusBadRequest, "access_token and refresh_token are required")
		return
	}
	session, err := a.svc.Refresh(r.Context(), req.AccessToken, req.RefreshToken)
	if err != nil {
		obs.AuthEvents.WithLabelValues("refresh", "failure").Inc()
		respondError(w, r, err)
		return
	}
	obs.AuthEvents.WithLabelValues("refresh", "success").Inc()
	writeJSON(w, http.StatusOK, session)
}

func (a *API) handleRevoke(w http.ResponseWriter, r *http.Request) {
	var req revokeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.RefreshToken == "" {
		writeError(w, r, http.StatusBadRequest, "refresh_token is required")
		return
	}
	if err := a.svc.Revoke(r.Context(), req.RefreshToken); err != nil {
		respondError(w, r, err)
		return
	}
	obs.AuthEvents.WithLabelValues("revoke", "success").Inc()
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.svc.ChangePassword(r.Context(), req.CurrentPassword, req.NewPassword); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
