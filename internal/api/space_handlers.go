package api

import (
	"net/http"

	"playas/internal/entities"
	"playas/internal/service"
)

type SpaceHandler struct {
	Service *service.SpaceService
}

func NewSpaceHandler(svc *service.SpaceService) *SpaceHandler {
	return &SpaceHandler{Service: svc}
}

func (h *SpaceHandler) List(w http.ResponseWriter, r *http.Request) {
	lotID, err := pathInt(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	spaces, err := h.Service.List(r.Context(), principal(r), lotID, r.URL.Query().Get("state"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entities.FromSpaces(spaces))
}

func (h *SpaceHandler) Create(w http.ResponseWriter, r *http.Request) {
	lotID, err := pathInt(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req entities.SpaceRequest
	if !decode(w, r, &req) {
		return
	}
	sp, err := h.Service.Create(r.Context(), principal(r), lotID, service.SpaceInput{
		Code:         req.Code,
		VehicleClass: req.VehicleClass,
		Covered:      req.Covered,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entities.FromSpace(sp))
}

func (h *SpaceHandler) BulkCreate(w http.ResponseWriter, r *http.Request) {
	lotID, err := pathInt(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req entities.BulkSpacesRequest
	if !decode(w, r, &req) {
		return
	}
	spaces, err := h.Service.BulkCreate(r.Context(), principal(r), lotID, service.BulkSpacesInput{
		Prefix:       req.Prefix,
		Count:        req.Count,
		Start:        req.Start,
		VehicleClass: req.VehicleClass,
		Covered:      req.Covered,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entities.FromSpaces(spaces))
}

func (h *SpaceHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "space")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req entities.SpaceRequest
	if !decode(w, r, &req) {
		return
	}
	sp, err := h.Service.Update(r.Context(), principal(r), id, service.SpaceInput{
		Code:         req.Code,
		VehicleClass: req.VehicleClass,
		Covered:      req.Covered,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entities.FromSpace(sp))
}

func (h *SpaceHandler) SetOutOfService(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "space")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req entities.OutOfServiceRequest
	if !decode(w, r, &req) {
		return
	}
	sp, err := h.Service.SetOutOfService(r.Context(), principal(r), id, req.OutOfService)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entities.FromSpace(sp))
}

func (h *SpaceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "space")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Service.Delete(r.Context(), principal(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
