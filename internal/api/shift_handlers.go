package api

import (
	"net/http"
	"time"

	"playas/internal/db"
	"playas/internal/entities"
	"playas/internal/service"
)

type ShiftHandler struct {
	Service *service.ShiftService
	Loc     *time.Location
}

func NewShiftHandler(svc *service.ShiftService, loc *time.Location) *ShiftHandler {
	return &ShiftHandler{Service: svc, Loc: loc}
}

func shiftResponse(sh *db.Shift) entities.ShiftResponse {
	return entities.FromShift(sh, service.Difference(sh))
}

func (h *ShiftHandler) Open(w http.ResponseWriter, r *http.Request) {
	lotID, err := pathInt(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req entities.ShiftOpenRequest
	if !decode(w, r, &req) {
		return
	}
	sh, err := h.Service.Open(r.Context(), principal(r), lotID, req.OpeningCash)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, shiftResponse(sh))
}

func (h *ShiftHandler) Current(w http.ResponseWriter, r *http.Request) {
	sh, err := h.Service.Current(r.Context(), principal(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, shiftResponse(sh))
}

func (h *ShiftHandler) Close(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "shift")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req entities.ShiftCloseRequest
	if !decode(w, r, &req) {
		return
	}
	sh, err := h.Service.Close(r.Context(), principal(r), id, req.DeclaredCash)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, shiftResponse(sh))
}

func (h *ShiftHandler) List(w http.ResponseWriter, r *http.Request) {
	lotID, err := pathInt(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	from, err := queryTime(r, "from", h.Loc)
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := h.Service.List(r.Context(), principal(r), lotID, r.URL.Query().Get("open") == "true", from)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]entities.ShiftResponse, 0, len(list))
	for i := range list {
		out = append(out, shiftResponse(&list[i]))
	}
	writeJSON(w, http.StatusOK, out)
}
