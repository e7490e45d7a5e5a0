package api

import (
	"net/http"
	"time"

	"playas/internal/entities"
	"playas/internal/service"
)

type OccupancyHandler struct {
	Service *service.OccupancyService
	Loc     *time.Location
}

func NewOccupancyHandler(svc *service.OccupancyService, loc *time.Location) *OccupancyHandler {
	return &OccupancyHandler{Service: svc, Loc: loc}
}

func (h *OccupancyHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	lotID, err := pathInt(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req entities.CheckInRequest
	if !decode(w, r, &req) {
		return
	}
	o, err := h.Service.CheckIn(r.Context(), principal(r), lotID, service.CheckInInput{
		Plate:        req.Plate,
		SpaceID:      req.SpaceID,
		VehicleClass: req.VehicleClass,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entities.FromOccupancy(o))
}

func (h *OccupancyHandler) CheckOut(w http.ResponseWriter, r *http.Request) {
	var req entities.CheckOutRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.Service.CheckOut(r.Context(), principal(r), service.CheckOutInput{
		Ticket: req.Ticket,
		Plate:  req.Plate,
		Method: req.Method,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := entities.CheckOutResponse{
		Occupancy:   entities.FromOccupancy(res.Occupancy),
		Quote:       res.Quote,
		CheckoutURL: res.CheckoutURL,
	}
	if res.Payment != nil {
		pr := entities.FromPayment(res.Payment)
		out.Payment = &pr
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *OccupancyHandler) AddExtra(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "occupancy")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req entities.ExtraRequest
	if !decode(w, r, &req) {
		return
	}
	e, err := h.Service.AddExtra(r.Context(), principal(r), id, req.Service)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entities.FromExtra(e))
}

func (h *OccupancyHandler) Quote(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "occupancy")
	if err != nil {
		writeError(w, r, err)
		return
	}
	at, err := queryTime(r, "at", h.Loc)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q, err := h.Service.Quote(r.Context(), principal(r), id, at)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (h *OccupancyHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "occupancy")
	if err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.Service.Get(r.Context(), principal(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entities.FromOccupancy(o))
}

func (h *OccupancyHandler) Active(w http.ResponseWriter, r *http.Request) {
	lotID, err := pathInt(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	stays, err := h.Service.Active(r.Context(), principal(r), lotID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]entities.ActiveStayResponse, 0, len(stays))
	for i := range stays {
		out = append(out, entities.ActiveStayResponse{
			OccupancyResponse: entities.FromOccupancy(&stays[i].Occupancy),
			ElapsedMinutes:    stays[i].ElapsedMinutes,
			Quote:             stays[i].Quote,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *OccupancyHandler) History(w http.ResponseWriter, r *http.Request) {
	lotID, err := pathInt(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	in := service.HistoryInput{Plate: r.URL.Query().Get("plate")}
	if in.From, err = queryTime(r, "from", h.Loc); err != nil {
		writeError(w, r, err)
		return
	}
	if in.To, err = queryTime(r, "to", h.Loc); err != nil {
		writeError(w, r, err)
		return
	}
	if in.Limit, err = queryInt(r, "limit"); err != nil {
		writeError(w, r, err)
		return
	}
	list, err := h.Service.History(r.Context(), principal(r), lotID, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entities.FromOccupancies(list))
}
