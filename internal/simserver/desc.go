package simserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "skirmish.v1.Simulator"

const (
	simulateMethod = "/" + ServiceName + "/Simulate"
	searchMethod   = "/" + ServiceName + "/Search"
)

// SimulatorServer is the server API for the Simulator service.
// Requests and responses are google.protobuf.Struct messages keyed as documented on Service.
type SimulatorServer interface {
	Simulate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Search(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterSimulatorServer registers srv with s.
func RegisterSimulatorServer(s grpc.ServiceRegistrar, srv SimulatorServer) {
	s.RegisterService(&simulatorServiceDesc, srv)
}

var simulatorServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SimulatorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Simulate", Handler: simulateHandler},
		{MethodName: "Search", Handler: searchHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "skirmish/v1/simulator.proto",
}

func simulateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SimulatorServer).Simulate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: simulateMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SimulatorServer).Simulate(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func searchHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SimulatorServer).Search(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: searchMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SimulatorServer).Search(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// Client calls a remote Simulator.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Simulate runs one combat remotely.
func (c *Client) Simulate(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, simulateMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Search runs an attack power search remotely.
func (c *Client) Search(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, searchMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
