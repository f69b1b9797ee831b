package http

import (
	"net/http"

	"keygate/internal/model"
)

func (h *Handler) AdminLogin(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.svc.AuthenticateAdmin(r.Context(), req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, res)
}

func (h *Handler) ResellerLogin(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.svc.AuthenticateReseller(r.Context(), req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, res)
}

func (h *Handler) RegisterReseller(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterRequest
	if !h.decode(w, r, &req) {
		return
	}
	reseller, err := h.svc.Register(r.Context(), req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, reseller)
}

func (h *Handler) ListResellers(w http.ResponseWriter, r *http.Request) {
	resellers, err := h.svc.ListResellers(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, resellers)
}

func (h *Handler) GetReseller(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")
	if !canAccess(r.Context(), username) {
		h.respondError(w, errForbidden)
		return
	}
	reseller, err := h.svc.GetReseller(r.Context(), username)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, reseller)
}

func (h *Handler) DeleteReseller(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteReseller(r.Context(), r.PathValue("username")); err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusNoContent, nil)
}

func (h *Handler) AddCredits(w http.ResponseWriter, r *http.Request) {
	var req model.AddCreditsRequest
	if !h.decode(w, r, &req) {
		return
	}
	resellers, err := h.svc.AddCredits(r.Context(), req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, resellers)
}

func (h *Handler) ListTokens(w http.ResponseWriter, r *http.Request) {
	tokens, err := h.svc.ListTokens(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, tokens)
}

func (h *Handler) GenerateToken(w http.ResponseWriter, r *http.Request) {
	token, err := h.svc.GenerateToken(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, map[string]string{"token": token})
}

func (h *Handler) ListUsage(w http.ResponseWriter, r *http.Request) {
	events, err := h.svc.ListUsage(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, events)
}
