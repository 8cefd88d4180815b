package grpcx

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service. Requests carry a room id
// as google.protobuf.StringValue, contributions and all responses are
// google.protobuf.Struct holding the JSON views served over HTTP.
const ServiceName = "roulette.v1.RouletteService"

type RouletteServiceServer interface {
	GetRoom(ctx context.Context, roomID string) (*structpb.Struct, error)
	GetState(ctx context.Context, roomID string) (*structpb.Struct, error)
	ListParticipants(ctx context.Context, roomID string) (*structpb.Struct, error)
	Join(ctx context.Context, roomID string) (*structpb.Struct, error)
	Contribute(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ResolveIfDue(ctx context.Context, roomID string) (*structpb.Struct, error)
	ResetRound(ctx context.Context, roomID string) (*structpb.Struct, error)
	Watch(roomID string, stream grpc.ServerStream) error
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RouletteServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		roomMethod("GetRoom", RouletteServiceServer.GetRoom),
		roomMethod("GetState", RouletteServiceServer.GetState),
		roomMethod("ListParticipants", RouletteServiceServer.ListParticipants),
		roomMethod("Join", RouletteServiceServer.Join),
		roomMethod("ResolveIfDue", RouletteServiceServer.ResolveIfDue),
		roomMethod("ResetRound", RouletteServiceServer.ResetRound),
		{MethodName: "Contribute", Handler: contributeHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Watch", Handler: watchHandler, ServerStreams: true},
	},
	Metadata: "roulette/v1/roulette.proto",
}

func FullMethod(name string) string { return "/" + ServiceName + "/" + name }

func roomMethod(name string, fn func(RouletteServiceServer, context.Context, string) (*structpb.Struct, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(wrapperspb.StringValue)
			if err := dec(in); err != nil {
				return nil, err
			}
			call := func(ctx context.Context, req any) (any, error) {
				return fn(srv.(RouletteServiceServer), ctx, req.(*wrapperspb.StringValue).GetValue())
			}
			if interceptor == nil {
				return call(ctx, in)
			}
			return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}, call)
		},
	}
}

func contributeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	call := func(ctx context.Context, req any) (any, error) {
		return srv.(RouletteServiceServer).Contribute(ctx, req.(*structpb.Struct))
	}
	if interceptor == nil {
		return call(ctx, in)
	}
	return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod("Contribute")}, call)
}

func watchHandler(srv any, stream grpc.ServerStream) error {
	in := new(wrapperspb.StringValue)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(RouletteServiceServer).Watch(in.GetValue(), stream)
}
