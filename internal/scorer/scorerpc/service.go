package scorerpc

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the gRPC full service name, used in the method paths below
// and by clients dialing with grpc.NewClient.
const ServiceName = "vitalstream.scorerpc.AnomalyService"

// AnomalyServer is implemented by anything that can answer scoring and
// health-probe calls. Server (server.go) wires the real internal/scorer
// Scorer into this interface; tests can substitute a stub.
type AnomalyServer interface {
	Score(context.Context, *ScoreRequest) (*ScoreResponse, error)
	Ping(context.Context, *PingRequest) (*PingResponse, error)
}

func scoreHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ScoreRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AnomalyServer).Score(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ServiceName + "/Score"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AnomalyServer).Score(ctx, req.(*ScoreRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func pingHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(PingRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AnomalyServer).Ping(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ServiceName + "/Ping"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AnomalyServer).Ping(ctx, req.(*PingRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// serviceDesc is hand-authored in place of the protoc-generated
// ServiceDesc a .proto/protoc pipeline would normally produce: there is no
// protobuf compiler available here, so the method table is built directly
// against the grpc package's public registration API instead.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AnomalyServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Score",
			Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
				return scoreHandler(srv, ctx, dec, interceptor)
			},
		},
		{
			MethodName: "Ping",
			Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
				return pingHandler(srv, ctx, dec, interceptor)
			},
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "scorerpc.proto",
}

// RegisterAnomalyServer attaches srv to s under the scorer RPC service
// name, the hand-rolled equivalent of a generated RegisterXxxServer
// function.
func RegisterAnomalyServer(s grpc.ServiceRegistrar, srv AnomalyServer) {
	s.RegisterService(&serviceDesc, srv)
}
