package http

import (
	"net/http"

	"keygate/internal/apperror"
	"keygate/internal/model"
)

func (h *Handler) ListKeys(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")
	if !canAccess(r.Context(), username) {
		h.respondError(w, errForbidden)
		return
	}
	keys, err := h.svc.ListKeys(r.Context(), username)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, keys)
}

// IssueKey mints a key for the body's username, defaulting to the session
// owner. Resellers can only mint against their own balance.
func (h *Handler) IssueKey(w http.ResponseWriter, r *http.Request) {
	var req model.IssueKeyRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Username == "" {
		if c := claimsFrom(r.Context()); c != nil {
			req.Username = c.Username
		}
	}
	if !canAccess(r.Context(), req.Username) {
		h.respondError(w, errForbidden)
		return
	}
	key, err := h.svc.IssueKey(r.Context(), req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, key)
}

func (h *Handler) DeleteKey(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")
	if !canAccess(r.Context(), username) {
		h.respondError(w, errForbidden)
		return
	}
	if err := h.svc.DeleteKey(r.Context(), username, r.PathValue("keyId")); err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusNoContent, nil)
}

func (h *Handler) ListVerifications(w http.ResponseWriter, r *http.Request) {
	username, keyID := r.PathValue("username"), r.PathValue("keyId")
	if !canAccess(r.Context(), username) {
		h.respondError(w, errForbidden)
		return
	}

	keys, err := h.svc.ListKeys(r.Context(), username)
	if err != nil {
		h.respondError(w, err)
		return
	}
	owned := false
	for _, k := range keys {
		if k.ID == keyID {
			owned = true
			break
		}
	}
	if !owned {
		h.respondError(w, apperror.ErrInvalidKey)
		return
	}

	events, err := h.svc.ListVerifications(r.Context(), keyID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, events)
}
