package nats

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"keygate/internal/apperror"
	"keygate/internal/model"
	"keygate/internal/service"
)

const (
	SubjectVerify = "commands.verify"
	queueGroup    = "keygate_verifiers"
)

type verifyReply struct {
	Success   bool          `json:"success"`
	Kind      apperror.Kind `json:"kind,omitempty"`
	Message   string        `json:"message"`
	KeyID     string        `json:"key_id,omitempty"`
	ExpiresAt time.Time     `json:"expires_at,omitzero"`
}

// Handler answers verification requests sent over NATS request-reply.
// The request body is a VerifyRequest including the device IP.
type Handler struct {
	svc   service.LicenseService
	usage service.UsageRecorder
	nc    *nats.Conn
	subs  []*nats.Subscription
}

func NewHandler(svc service.LicenseService, usage service.UsageRecorder, nc *nats.Conn) *Handler {
	if usage == nil {
		usage = service.DirectUsage{Svc: svc}
	}
	return &Handler{svc: svc, usage: usage, nc: nc}
}

// Start subscribes to command subjects and blocks until ctx is cancelled.
func (h *Handler) Start(ctx context.Context) error {
	sub, err := h.nc.QueueSubscribe(SubjectVerify, queueGroup, func(m *nats.Msg) {
		h.respond(m, h.verify(ctx, m.Data))
	})
	if err != nil {
		return err
	}
	h.subs = append(h.subs, sub)

	slog.Info("NATS command handler is running", "subject", SubjectVerify)

	<-ctx.Done()
	slog.Info("NATS command handler shutting down, draining subscriptions...")

	for _, s := range h.subs {
		_ = s.Drain()
	}
	return nil
}

func (h *Handler) Stop(ctx context.Context) error {
	for _, s := range h.subs {
		_ = s.Unsubscribe()
	}
	return nil
}

func (h *Handler) verify(ctx context.Context, data []byte) verifyReply {
	var req model.VerifyRequest
	if err := json.Unmarshal(data, &req); err != nil {
		slog.Error("nats: failed to unmarshal verify command", "error", err)
		h.recordUsage(ctx, "", false)
		return verifyReply{Kind: apperror.KindValidation, Message: "invalid JSON body"}
	}

	event, err := h.svc.Verify(ctx, req)
	h.recordUsage(ctx, req.IP, err == nil)
	if err != nil {
		e := apperror.From(err)
		return verifyReply{Kind: e.Kind, Message: e.Message}
	}
	return verifyReply{Success: true, Message: "Key verified", KeyID: event.KeyID, ExpiresAt: event.ExpiresAt}
}

func (h *Handler) recordUsage(ctx context.Context, ip string, success bool) {
	h.usage.Record(ctx, model.UsageEvent{
		Endpoint: SubjectVerify,
		Method:   "NATS",
		IP:       ip,
		Success:  success,
	})
}

func (h *Handler) respond(m *nats.Msg, reply verifyReply) {
	if m.Reply == "" {
		return
	}
	data, err := json.Marshal(reply)
	if err != nil {
		slog.Error("nats: failed to marshal verify reply", "error", err)
		return
	}
	if err := m.Respond(data); err != nil {
		slog.Error("nats: failed to send verify reply", "error", err)
	}
}
