package scorerpc

import (
	"context"
	"time"

	"google.golang.org/grpc"
)

// Client is a thin wrapper over a grpc.ClientConn dialed against the
// service registered by RegisterAnomalyServer. Every call is made with the
// json content-subtype so it round-trips through jsonCodec on both ends.
type Client struct {
	conn *grpc.ClientConn
}

// NewClient wraps an already-dialed connection. Callers are expected to
// dial with grpc.NewClient(target, grpc.WithTransportCredentials(...), ...)
// themselves so TLS/keepalive/backoff policy stays a deployment concern,
// not something this package opinionates on.
func NewClient(conn *grpc.ClientConn) *Client {
	return &Client{conn: conn}
}

// Score invokes the Score RPC. ctx's deadline is the §5 "fixed per-call
// deadline (default 5s)"; callers (the rules engine) are responsible for
// attaching it.
func (c *Client) Score(ctx context.Context, req *ScoreRequest) (*ScoreResponse, error) {
	resp := new(ScoreResponse)
	err := c.conn.Invoke(ctx, "/"+ServiceName+"/Score", req, resp, grpc.CallContentSubtype(codecName))
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Ping invokes the supplemented health-probe RPC, capped at 2 seconds (or
// at the caller's own deadline, if that comes sooner), since it is used to
// decide whether to trust a longer scoring deadline in the first place.
func (c *Client) Ping(ctx context.Context) (*PingResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	resp := new(PingResponse)
	err := c.conn.Invoke(ctx, "/"+ServiceName+"/Ping", &PingRequest{}, resp, grpc.CallContentSubtype(codecName))
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
