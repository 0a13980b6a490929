package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"tkfleet.io/internal/fleet"
)

type createVehicleRequest struct {
	OwnerID     string            `json:"owner_id"`
	PlateNumber string            `json:"plate_number"`
	Brand       string            `json:"brand"`
	Model       string            `json:"model"`
	ModelYear   int               `json:"model_year"`
	Type        fleet.VehicleType `json:"type"`
}

type updateVehicleRequest struct {
	OwnerID     *string            `json:"owner_id"`
	PlateNumber *string            `json:"plate_number"`
	Brand       *string            `json:"brand"`
	Model       *string            `json:"model"`
	ModelYear   *int               `json:"model_year"`
	Type        *fleet.VehicleType `json:"type"`
}

// handleListVehicles lists the caller's visible vehicles, or one owner's with ?ownerId=.
func (a *API) handleListVehicles(w http.ResponseWriter, r *http.Request) {
	var (
		list []fleet.Vehicle
		err  error
	)
	if owner := strings.TrimSpace(r.URL.Query().Get("ownerId")); owner != "" {
		list, err = a.svc.ListVehiclesByOwner(r.Context(), owner)
	} else {
		list, err = a.svc.ListVehicles(r.Context())
	}
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"vehicles": list})
}

func (a *API) handleCreateVehicle(w http.ResponseWriter, r *http.Request) {
	var req createVehicleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	v, err := a.svc.CreateVehicle(r.Context(), fleet.NewVehicle{
		OwnerID:     req.OwnerID,
		PlateNumber: req.PlateNumber,
		Brand:       req.Brand,
		Model:       req.Model,
		ModelYear:   req.ModelYear,
		Type:        req.Type,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/v1/vehicles/%s", v.ID))
	writeJSON(w, http.StatusCreated, v)
}

func (a *API) handleGetVehicle(w http.ResponseWriter, r *http.Request) {
	v, err := a.svc.GetVehicle(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (a *API) handleUpdateVehicle(w http.ResponseWriter, r *http.Request) {
	var req updateVehicleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	v, err := a.svc.UpdateVehicle(r.Context(), r.PathValue("id"), fleet.VehiclePatch{
		PlateNumber: req.PlateNumber,
		Brand:       req.Brand,
		Model:       req.Model,
		ModelYear:   req.ModelYear,
		Type:        req.Type,
		OwnerID:     req.OwnerID,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (a *API) handleDeleteVehicle(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.DeleteVehicle(r.Context(), r.PathValue("id")); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleVehiclesByType(w http.ResponseWriter, r *http.Request) {
	vt, err := fleet.ParseVehicleType(r.PathValue("type"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	list, err := a.svc.ListVehiclesByType(r.Context(), vt)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"vehicles": list})
}

// authorizeVehicle runs the owner gate for location endpoints. Callers
// below Admin get 403 for both foreign and missing vehicles.
func (a *API) authorizeVehicle(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.PathValue("vehicleId")
	if _, err := a.svc.AuthorizeVehicle(r.Context(), id); err != nil {
		respondError(w, r, err)
		return "", false
	}
	return id, true
}
