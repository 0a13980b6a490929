package httpapi

import (
	"net/http"

	"tkfleet.io/internal/location"
)

const maxHistoryCount = 1000

type positionRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

type batchEntry struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Address   string   `json:"address"`
}

func (a *API) handleReadLocation(w http.ResponseWriter, r *http.Request) {
	id, ok := a.authorizeVehicle(w, r)
	if !ok {
		return
	}
	pos, err := a.engine.Read(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

func (a *API) handleUpdateLocation(w http.ResponseWriter, r *http.Request) {
	var req positionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Latitude == nil || req.Longitude == nil {
		writeError(w, r, http.StatusBadRequest, "latitude and longitude are required")
		return
	}
	id, ok := a.authorizeVehicle(w, r)
	if !ok {
		return
	}
	pos, err := a.engine.UpdateSingle(r.Context(), id, *req.Latitude, *req.Longitude)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

func (a *API) handleLocationHistory(w http.ResponseWriter, r *http.Request) {
	count, err := parsePositiveInt(r.URL.Query().Get("count"), location.DefaultHistoryLimit, maxHistoryCount)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	id, ok := a.authorizeVehicle(w, r)
	if !ok {
		return
	}
	recs, err := a.engine.History(r.Context(), id, count)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"vehicle_id": id, "records": recs})
}

// handleBatchLocations takes a JSON object keyed by vehicle id.
func (a *API) handleBatchLocations(w http.ResponseWriter, r *http.Request) {
	var req map[string]batchEntry
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if len(req) == 0 {
		writeError(w, r, http.StatusBadRequest, "at least one update is required")
		return
	}
	updates := make(map[string]location.Update, len(req))
	for id, e := range req {
		if e.Latitude == nil || e.Longitude == nil {
			writeError(w, r, http.StatusBadRequest, "latitude and longitude are required for vehicle "+id)
			return
		}
		updates[id] = location.Update{Latitude: *e.Latitude, Longitude: *e.Longitude, Address: e.Address}
	}
	res, err := a.engine.UpdateBatch(r.Context(), updates)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
