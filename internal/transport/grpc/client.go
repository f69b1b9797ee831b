package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client calls a remote Verification service.
type Client struct {
	conn *grpc.ClientConn
}

// NewClient dials addr and returns the client with a cleanup function.
func NewClient(addr string, opts ...grpc.DialOption) (*Client, func(), error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() { _ = conn.Close() }
	return &Client{conn: conn}, cleanup, nil
}

func (c *Client) Verify(ctx context.Context, req *VerifyRequest) (*VerifyResponse, error) {
	out := new(VerifyResponse)
	if err := c.conn.Invoke(ctx, verifyMethod, req, out); err != nil {
		return nil, err
	}
	return out, nil
}
