package api

import (
	"net/http"
	"time"

	"playas/internal/db"
	"playas/internal/entities"
	apperrors "playas/internal/errors"
	"playas/internal/service"
	"playas/internal/utils"
)

type LotHandler struct {
	Lots  *service.LotService
	Rates *service.RateService
	Loc   *time.Location
}

func NewLotHandler(lots *service.LotService, rates *service.RateService, loc *time.Location) *LotHandler {
	return &LotHandler{Lots: lots, Rates: rates, Loc: loc}
}

func lotInput(req entities.LotRequest) service.LotInput {
	return service.LotInput{
		Name:             req.Name,
		Address:          req.Address,
		Latitude:         req.Latitude,
		Longitude:        req.Longitude,
		OwnerID:          req.OwnerID,
		ToleranceMinutes: req.ToleranceMinutes,
		PaymentMethods:   req.PaymentMethods,
	}
}

func (h *LotHandler) ListPublic(w http.ResponseWriter, r *http.Request) {
	lots, err := h.Lots.ListPublic(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entities.FromLots(lots))
}

func (h *LotHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	lot, err := h.Lots.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entities.FromLot(lot))
}

func (h *LotHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	lots, err := h.Lots.ListMine(r.Context(), principal(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entities.FromLots(lots))
}

func (h *LotHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req entities.LotRequest
	if !decode(w, r, &req) {
		return
	}
	lot, err := h.Lots.Create(r.Context(), principal(r), lotInput(req))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entities.FromLot(lot))
}

func (h *LotHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req entities.LotRequest
	if !decode(w, r, &req) {
		return
	}
	lot, err := h.Lots.Update(r.Context(), principal(r), id, lotInput(req))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entities.FromLot(lot))
}

func (h *LotHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req entities.ActiveRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.Lots.SetActive(r.Context(), principal(r), id, *req.Active); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func scheduleEntries(req entities.ScheduleRequest) ([]db.ScheduleEntry, error) {
	out := make([]db.ScheduleEntry, 0, len(req.Entries))
	for _, e := range req.Entries {
		opens, err := utils.ParseClock(e.Opens)
		if err != nil {
			return nil, apperrors.Invalid("lot.schedule", "opens must be HH:MM")
		}
		closes, err := utils.ParseClock(e.Closes)
		if err != nil {
			return nil, apperrors.Invalid("lot.schedule", "closes must be HH:MM")
		}
		out = append(out, db.ScheduleEntry{Weekday: time.Weekday(e.Weekday), Opens: opens, Closes: closes})
	}
	return out, nil
}

func (h *LotHandler) SetSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req entities.ScheduleRequest
	if !decode(w, r, &req) {
		return
	}
	entries, err := scheduleEntries(req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	lot, err := h.Lots.SetSchedule(r.Context(), principal(r), id, req.Open24h, entries)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entities.FromLot(lot))
}

func (h *LotHandler) SetPaymentMethods(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req entities.PaymentMethodsRequest
	if !decode(w, r, &req) {
		return
	}
	methods, err := h.Lots.SetPaymentMethods(r.Context(), principal(r), id, req.Methods)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"payment_methods": methods})
}

func (h *LotHandler) ListStaff(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	users, err := h.Lots.ListStaff(r.Context(), principal(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entities.FromUsers(users))
}

func (h *LotHandler) AssignStaff(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req entities.StaffAssignRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.Lots.AssignStaff(r.Context(), principal(r), id, req.UserID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *LotHandler) RemoveStaff(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	userID, err := pathInt(r, "user")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Lots.RemoveStaff(r.Context(), principal(r), id, userID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListRates is public; ?at= shows the rates valid at that instant instead of now.
func (h *LotHandler) ListRates(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	at, err := queryTime(r, "at", h.Loc)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rates, err := h.Rates.List(r.Context(), id, at)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entities.FromRates(rates))
}

func (h *LotHandler) CreateRate(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req entities.RateRequest
	if !decode(w, r, &req) {
		return
	}
	rate, err := h.Rates.Create(r.Context(), principal(r), id, service.RateInput{
		Service:      req.Service,
		VehicleClass: req.VehicleClass,
		Price:        req.Price,
		ValidFrom:    req.ValidFrom,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entities.FromRate(rate))
}
