package http

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"keygate/internal/apperror"
	"keygate/internal/model"
)

type verifyResponse struct {
	Success    bool      `json:"success"`
	Message    string    `json:"message"`
	KeyID      string    `json:"key_id"`
	GameName   string    `json:"game_name"`
	VerifiedAt time.Time `json:"verified_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Verify accepts {"key", "game_name"} for any game. The device address is
// always the caller's, never taken from the body.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/api/verify"
	ip := h.clientIP(r)

	var req model.VerifyRequest
	if !h.decode(w, r, &req) {
		h.recordUsage(r, endpoint, ip, false)
		return
	}
	req.IP = ip
	h.verify(w, r, endpoint, req)
}

// VerifyGame serves POST /api/verify/{game} with {"key"} and
// GET /api/verify/{game}/{key}.
func (h *Handler) VerifyGame(w http.ResponseWriter, r *http.Request) {
	ip := h.clientIP(r)
	slug := r.PathValue("game")
	game, ok := model.GameBySlug(slug)
	if !ok {
		h.recordUsage(r, "/api/verify/{game}", ip, false)
		h.respondError(w, apperror.ErrInvalidKey)
		return
	}
	// The key never goes into the usage log, even when the path carries it.
	endpoint := "/api/verify/" + slug

	req := model.VerifyRequest{GameName: game, KeyValue: r.PathValue("key"), IP: ip}
	if r.Method == http.MethodPost {
		var body struct {
			Key string `json:"key"`
		}
		if !h.decode(w, r, &body) {
			h.recordUsage(r, endpoint, ip, false)
			return
		}
		req.KeyValue = body.Key
	}
	h.verify(w, r, endpoint, req)
}

func (h *Handler) verify(w http.ResponseWriter, r *http.Request, endpoint string, req model.VerifyRequest) {
	event, err := h.svc.Verify(r.Context(), req)
	h.recordUsage(r, endpoint, req.IP, err == nil)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, verifyResponse{
		Success:    true,
		Message:    "Key verified",
		KeyID:      event.KeyID,
		GameName:   event.GameName,
		VerifiedAt: event.VerifiedAt,
		ExpiresAt:  event.ExpiresAt,
	})
}

func (h *Handler) recordUsage(r *http.Request, endpoint, ip string, success bool) {
	h.usage.Record(r.Context(), model.UsageEvent{
		Endpoint: endpoint,
		Method:   r.Method,
		IP:       ip,
		Success:  success,
	})
}

// clientIP returns the socket peer unless that peer is a trusted proxy. Then
// X-Forwarded-For is read right to left and the first hop that is not itself
// a trusted proxy wins, falling back to X-Real-IP.
func (h *Handler) clientIP(r *http.Request) string {
	peer := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		peer = host
	}
	addr, err := netip.ParseAddr(peer)
	if err != nil || !h.trusted(addr) {
		return peer
	}

	if values := r.Header.Values("X-Forwarded-For"); len(values) > 0 {
		hops := strings.Split(strings.Join(values, ","), ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
			if err != nil {
				break
			}
			if !h.trusted(hop) {
				return hop.Unmap().String()
			}
		}
	}
	if xr, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); err == nil {
		return xr.Unmap().String()
	}
	return peer
}

func (h *Handler) trusted(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range h.proxies {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
