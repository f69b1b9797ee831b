package grpc

import (
	"context"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/peer"

	"keygate/internal/apperror"
	"keygate/internal/model"
	"keygate/internal/service"
)

type Server struct {
	svc   service.LicenseService
	usage service.UsageRecorder
	srv   *grpc.Server
	addr  string
}

func NewServer(addr string, svc service.LicenseService, usage service.UsageRecorder) *Server {
	if usage == nil {
		usage = service.DirectUsage{Svc: svc}
	}
	s := &Server{svc: svc, usage: usage, addr: addr, srv: grpc.NewServer()}
	s.srv.RegisterService(&verificationServiceDesc, s)
	return s
}

func (s *Server) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(lis)
}

// Serve accepts connections on lis until Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	return s.srv.Serve(lis)
}

func (s *Server) Stop(ctx context.Context) error {
	s.srv.GracefulStop()
	return nil
}

// Verify reports business rejections in the response body, so callers only
// see a gRPC error for transport faults.
func (s *Server) Verify(ctx context.Context, req *VerifyRequest) (*VerifyResponse, error) {
	ip := req.IP
	if ip == "" {
		ip = peerIP(ctx)
	}
	event, err := s.svc.Verify(ctx, model.VerifyRequest{KeyValue: req.Key, GameName: req.Game, IP: ip})
	s.usage.Record(ctx, model.UsageEvent{
		Endpoint: verifyMethod,
		Method:   "GRPC",
		IP:       ip,
		Success:  err == nil,
	})
	if err != nil {
		e := apperror.From(err)
		return &VerifyResponse{Success: false, Kind: string(e.Kind), Message: e.Message}, nil
	}
	return &VerifyResponse{
		Success:    true,
		Message:    "Key verified",
		KeyID:      event.KeyID,
		DeviceIP:   event.DeviceIP,
		VerifiedAt: event.VerifiedAt,
		ExpiresAt:  event.ExpiresAt,
	}, nil
}

func peerIP(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return ""
	}
	if host, _, err := net.SplitHostPort(p.Addr.String()); err == nil {
		return host
	}
	return p.Addr.String()
}
