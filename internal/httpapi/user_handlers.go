package httpapi

import (
	"fmt"
	"net/http"

	"tkfleet.io/internal/auth"
	"tkfleet.io/internal/fleet"
)

type createUserRequest struct {
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Password  string    `json:"password"`
	Role      auth.Role `json:"role"`
}

type updateUserRequest struct {
	Email     *string `json:"email"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
}

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	list, err := a.svc.ListIdentities(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": list})
}

func (a *API) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	ident, err := a.svc.CreateIdentity(r.Context(), fleet.NewIdentity{
		Username:  req.Username,
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Password:  req.Password,
		Role:      req.Role,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/v1/users/%s", ident.ID))
	writeJSON(w, http.StatusCreated, ident)
}

func (a *API) handleGetUser(w http.ResponseWriter, r *http.Request) {
	ident, err := a.svc.GetIdentity(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ident)
}

func (a *API) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	ident, err := a.svc.UpdateIdentity(r.Context(), r.PathValue("id"), fleet.IdentityPatch{
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ident)
}

func (a *API) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.DeleteIdentity(r.Context(), r.PathValue("id")); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleAssignRole(w http.ResponseWriter, r *http.Request) {
	role, err := auth.ParseRole(r.PathValue("role"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	ident, err := a.svc.AssignRole(r.Context(), r.PathValue("id"), role)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ident)
}

func (a *API) handleRemoveRole(w http.ResponseWriter, r *http.Request) {
	role, err := auth.ParseRole(r.PathValue("role"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	ident, err := a.svc.RemoveRole(r.Context(), r.PathValue("id"), role)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ident)
}
