package grpc

import (
	"context"
	"time"

	"google.golang.org/grpc"
)

const (
	serviceName    = "keygate.v1.Verification"
	verifyMethod   = "/" + serviceName + "/Verify"
	descriptorPath = "keygate/v1/verification"
)

type VerifyRequest struct {
	Key  string `json:"key"`
	Game string `json:"game_name"`
	// IP is the player's device address. Empty means the calling peer.
	IP string `json:"ip,omitempty"`
}

type VerifyResponse struct {
	Success    bool      `json:"success"`
	Kind       string    `json:"kind,omitempty"`
	Message    string    `json:"message"`
	KeyID      string    `json:"key_id,omitempty"`
	DeviceIP   string    `json:"device_ip,omitempty"`
	VerifiedAt time.Time `json:"verified_at,omitzero"`
	ExpiresAt  time.Time `json:"expires_at,omitzero"`
}

// VerificationServer is the server API for the Verification service.
type VerificationServer interface {
	Verify(ctx context.Context, req *VerifyRequest) (*VerifyResponse, error)
}

var verificationServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*VerificationServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Verify", Handler: verifyHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: descriptorPath,
}

func verifyHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(VerifyRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(VerificationServer).Verify(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: verifyMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(VerificationServer).Verify(ctx, req.(*VerifyRequest))
	}
	return interceptor(ctx, in, info, handler)
}
