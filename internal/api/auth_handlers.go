package api

import (
	"net/http"

	"playas/internal/entities"
	"playas/internal/service"
)

type AuthHandler struct {
	Service *service.AuthService
}

func NewAuthHandler(svc *service.AuthService) *AuthHandler {
	return &AuthHandler{Service: svc}
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req entities.LoginRequest
	if !decode(w, r, &req) {
		return
	}
	token, u, err := h.Service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entities.TokenResponse{Token: token, User: entities.FromUser(u)})
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req entities.RegisterRequest
	if !decode(w, r, &req) {
		return
	}
	u, token, err := h.Service.Register(r.Context(), service.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
		Document: req.Document,
		Phone:    req.Phone,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entities.TokenResponse{Token: token, User: entities.FromUser(u)})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	u, err := h.Service.Me(r.Context(), principal(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entities.FromUser(u))
}

func (h *AuthHandler) CreateStaff(w http.ResponseWriter, r *http.Request) {
	var req entities.StaffRequest
	if !decode(w, r, &req) {
		return
	}
	u, err := h.Service.CreateStaff(r.Context(), principal(r), req.Email, req.Password, req.FullName, req.Role)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entities.FromUser(u))
}

func (h *AuthHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Service.ListUsers(r.Context(), principal(r), r.URL.Query().Get("role"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entities.FromUsers(users))
}
