package api

import (
	"net/http"

	"playas/internal/entities"
	"playas/internal/service"
)

type SubscriptionHandler struct {
	Service *service.SubscriptionService
}

func NewSubscriptionHandler(svc *service.SubscriptionService) *SubscriptionHandler {
	return &SubscriptionHandler{Service: svc}
}

func (h *SubscriptionHandler) Create(w http.ResponseWriter, r *http.Request) {
	lotID, err := pathInt(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req entities.SubscriptionRequest
	if !decode(w, r, &req) {
		return
	}
	sub, err := h.Service.Create(r.Context(), principal(r), lotID, service.SubscriptionInput{
		DriverID:   req.DriverID,
		SpaceID:    req.SpaceID,
		VehicleIDs: req.VehicleIDs,
		StartsAt:   req.StartsAt,
		Months:     req.Months,
		Method:     req.Method,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entities.FromSubscription(sub))
}

func (h *SubscriptionHandler) List(w http.ResponseWriter, r *http.Request) {
	lotID, err := pathInt(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := h.Service.List(r.Context(), principal(r), lotID, r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entities.FromSubscriptions(list))
}

func (h *SubscriptionHandler) Mine(w http.ResponseWriter, r *http.Request) {
	list, err := h.Service.Mine(r.Context(), principal(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entities.FromSubscriptions(list))
}

func (h *SubscriptionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "subscription")
	if err != nil {
		writeError(w, r, err)
		return
	}
	sub, err := h.Service.Get(r.Context(), principal(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entities.FromSubscription(sub))
}

func (h *SubscriptionHandler) Renew(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "subscription")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req entities.RenewRequest
	if !decode(w, r, &req) {
		return
	}
	sub, err := h.Service.Renew(r.Context(), principal(r), id, req.Months, req.Method)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entities.FromSubscription(sub))
}

func (h *SubscriptionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "subscription")
	if err != nil {
		writeError(w, r, err)
		return
	}
	sub, err := h.Service.Cancel(r.Context(), principal(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entities.FromSubscription(sub))
}
