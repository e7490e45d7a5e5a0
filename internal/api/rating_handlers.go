package api

import (
	"net/http"

	"playas/internal/entities"
	"playas/internal/service"
)

type RatingHandler struct {
	Service *service.RatingService
}

func NewRatingHandler(svc *service.RatingService) *RatingHandler {
	return &RatingHandler{Service: svc}
}

func (h *RatingHandler) Rate(w http.ResponseWriter, r *http.Request) {
	lotID, err := pathInt(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req entities.RatingRequest
	if !decode(w, r, &req) {
		return
	}
	rt, err := h.Service.Rate(r.Context(), principal(r), lotID, req.Stars, req.Comment)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entities.FromRating(rt))
}

func (h *RatingHandler) Mine(w http.ResponseWriter, r *http.Request) {
	lotID, err := pathInt(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	rt, err := h.Service.Mine(r.Context(), principal(r), lotID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entities.FromRating(rt))
}

func (h *RatingHandler) Remove(w http.ResponseWriter, r *http.Request) {
	lotID, err := pathInt(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Service.Remove(r.Context(), principal(r), lotID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *RatingHandler) List(w http.ResponseWriter, r *http.Request) {
	lotID, err := pathInt(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := h.Service.List(r.Context(), lotID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entities.FromRatings(list))
}
