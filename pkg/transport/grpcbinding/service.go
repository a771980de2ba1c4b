// Package grpcbinding exposes a Recipient as the gRPC service
// abind.Binding. Requests travel over the unary Request method and event
// notifications over the server streaming Listen method. Calls from one
// client are tied together by the client id carried in the call metadata.
package grpcbinding

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	ServiceName   = "abind.Binding"
	RequestMethod = "/abind.Binding/Request"
	ListenMethod  = "/abind.Binding/Listen"

	// ClientIDKey is the metadata key naming the calling client.
	ClientIDKey = "abind-client-id"
)

// BindingServer is the server API of abind.Binding.
type BindingServer interface {
	Request(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	Listen(*emptypb.Empty, grpc.ServerStreamingServer[wrapperspb.BytesValue]) error
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BindingServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Request",
			Handler:    requestHandler,
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Listen",
			Handler:       listenHandler,
			ServerStreams: true,
		},
	},
	Metadata: "abind/binding.proto",
}

var listenStreamDesc = &ServiceDesc.Streams[0]

func requestHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BindingServer).Request(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: RequestMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BindingServer).Request(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

func listenHandler(srv any, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(BindingServer).Listen(in, &grpc.GenericServerStream[emptypb.Empty, wrapperspb.BytesValue]{ServerStream: stream})
}
