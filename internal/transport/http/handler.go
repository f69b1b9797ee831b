package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/netip"

	"keygate/internal/apperror"
	"keygate/internal/auth"
	"keygate/internal/service"
)

const maxBodyBytes = 1 << 20

type Handler struct {
	svc     service.LicenseService
	usage   service.UsageRecorder
	proxies []netip.Prefix
}

// NewHandler builds the API handlers. Forwarding headers are only honoured
// when the connecting peer falls inside one of proxies.
func NewHandler(svc service.LicenseService, usage service.UsageRecorder, proxies []netip.Prefix) *Handler {
	if usage == nil {
		usage = service.DirectUsage{Svc: svc}
	}
	return &Handler{svc: svc, usage: usage, proxies: proxies}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)

	mux.HandleFunc("POST /api/admin/login", h.AdminLogin)
	mux.HandleFunc("POST /api/resellers/login", h.ResellerLogin)
	mux.HandleFunc("POST /api/register", h.RegisterReseller)

	admin := h.requireRole(auth.RoleAdmin)
	mux.Handle("GET /api/resellers", admin(http.HandlerFunc(h.ListResellers)))
	mux.Handle("DELETE /api/resellers/{username}", admin(http.HandlerFunc(h.DeleteReseller)))
	mux.Handle("POST /api/resellers/credits", admin(http.HandlerFunc(h.AddCredits)))
	mux.Handle("GET /api/tokens", admin(http.HandlerFunc(h.ListTokens)))
	mux.Handle("POST /api/tokens", admin(http.HandlerFunc(h.GenerateToken)))
	mux.Handle("GET /api/usage", admin(http.HandlerFunc(h.ListUsage)))

	member := h.requireRole(auth.RoleAdmin, auth.RoleReseller)
	mux.Handle("GET /api/resellers/{username}", member(http.HandlerFunc(h.GetReseller)))
	mux.Handle("GET /api/keys/{username}", member(http.HandlerFunc(h.ListKeys)))
	mux.Handle("POST /api/keys", member(http.HandlerFunc(h.IssueKey)))
	mux.Handle("DELETE /api/keys/{username}/{keyId}", member(http.HandlerFunc(h.DeleteKey)))
	mux.Handle("GET /api/keys/{username}/{keyId}/verifications", member(http.HandlerFunc(h.ListVerifications)))

	mux.HandleFunc("POST /api/verify", h.Verify)
	mux.HandleFunc("POST /api/verify/{game}", h.VerifyGame)
	mux.HandleFunc("GET /api/verify/{game}/{key}", h.VerifyGame)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.respondError(w, apperror.Validation("invalid JSON body"))
		return false
	}
	return true
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

type errorResponse struct {
	Success bool          `json:"success"`
	Kind    apperror.Kind `json:"kind"`
	Message string        `json:"message"`
}

// respondError renders err as {success:false, kind, message}. Internal
// causes are logged and never sent to the client.
func (h *Handler) respondError(w http.ResponseWriter, err error) {
	e := apperror.From(err)
	if e.Kind == apperror.KindStorageFailure {
		slog.Error("request failed", "error", err)
	}
	h.respondJSON(w, e.Kind.HTTPStatus(), errorResponse{Success: false, Kind: e.Kind, Message: e.Message})
}
