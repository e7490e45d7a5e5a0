package api

import (
	"net/http"

	"playas/internal/entities"
	"playas/internal/service"
)

type DriverHandler struct {
	Service *service.DriverService
}

func NewDriverHandler(svc *service.DriverService) *DriverHandler {
	return &DriverHandler{Service: svc}
}

func driverInput(req entities.DriverRequest) service.DriverInput {
	return service.DriverInput{FullName: req.FullName, Document: req.Document, Email: req.Email, Phone: req.Phone}
}

func (h *DriverHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req entities.DriverRequest
	if !decode(w, r, &req) {
		return
	}
	d, err := h.Service.CreateDriver(r.Context(), principal(r), driverInput(req))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entities.FromDriver(d))
}

func (h *DriverHandler) List(w http.ResponseWriter, r *http.Request) {
	drivers, err := h.Service.ListDrivers(r.Context(), principal(r), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entities.FromDrivers(drivers))
}

func (h *DriverHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "driver")
	if err != nil {
		writeError(w, r, err)
		return
	}
	d, err := h.Service.GetDriver(r.Context(), principal(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entities.FromDriver(d))
}

func (h *DriverHandler) Self(w http.ResponseWriter, r *http.Request) {
	d, err := h.Service.Self(r.Context(), principal(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entities.FromDriver(d))
}

func (h *DriverHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "driver")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req entities.DriverRequest
	if !decode(w, r, &req) {
		return
	}
	d, err := h.Service.UpdateDriver(r.Context(), principal(r), id, driverInput(req))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entities.FromDriver(d))
}

func (h *DriverHandler) AddVehicle(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "driver")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req entities.VehicleRequest
	if !decode(w, r, &req) {
		return
	}
	v, err := h.Service.AddVehicle(r.Context(), principal(r), id, service.VehicleInput{
		Plate:        req.Plate,
		VehicleClass: req.VehicleClass,
		Brand:        req.Brand,
		Model:        req.Model,
		Color:        req.Color,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entities.FromVehicle(v))
}

func (h *DriverHandler) ListVehicles(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "driver")
	if err != nil {
		writeError(w, r, err)
		return
	}
	vehicles, err := h.Service.ListVehicles(r.Context(), principal(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entities.FromVehicles(vehicles))
}

func (h *DriverHandler) FindVehicle(w http.ResponseWriter, r *http.Request) {
	v, err := h.Service.FindVehicleByPlate(r.Context(), principal(r), r.URL.Query().Get("plate"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entities.FromVehicle(v))
}

func (h *DriverHandler) RemoveVehicle(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "vehicle")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Service.RemoveVehicle(r.Context(), principal(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
