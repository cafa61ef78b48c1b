package sharedlistv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "taskflow.sharedlist.v1.SharedListService"

const (
	MethodEvaluateAccess = "EvaluateAccess"
	MethodListTasks      = "ListTasks"
	MethodAddTask        = "AddTask"
	MethodToggleTask     = "ToggleTask"
	MethodWatchList      = "WatchList"
)

// FullMethod returns the /service/method path of method.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// SharedListServiceServer is the server API for SharedListService.
type SharedListServiceServer interface {
	EvaluateAccess(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListTasks(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AddTask(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ToggleTask(context.Context, *structpb.Struct) (*structpb.Struct, error)
	WatchList(*structpb.Struct, WatchListServer) error
}

// WatchListServer is the server side of a WatchList stream.
type WatchListServer interface {
	Send(*structpb.Struct) error
	grpc.ServerStream
}

// ServiceDesc describes SharedListService for grpc.Server registration.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SharedListServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod(MethodEvaluateAccess, SharedListServiceServer.EvaluateAccess),
		unaryMethod(MethodListTasks, SharedListServiceServer.ListTasks),
		unaryMethod(MethodAddTask, SharedListServiceServer.AddTask),
		unaryMethod(MethodToggleTask, SharedListServiceServer.ToggleTask),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    MethodWatchList,
			Handler:       watchListHandler,
			ServerStreams: true,
		},
	},
	Metadata: "taskflow/sharedlist/v1/sharedlist.proto",
}

// RegisterSharedListServiceServer registers srv on s.
func RegisterSharedListServiceServer(s grpc.ServiceRegistrar, srv SharedListServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

type unaryCall func(SharedListServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryMethod(name string, call unaryCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			server := srv.(SharedListServiceServer)
			if interceptor == nil {
				return call(server, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(server, ctx, req.(*structpb.Struct))
			})
		},
	}
}

func watchListHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(SharedListServiceServer).WatchList(in, &watchListServer{ServerStream: stream})
}

type watchListServer struct {
	grpc.ServerStream
}

func (x *watchListServer) Send(m *structpb.Struct) error {
	return x.ServerStream.SendMsg(m)
}

// Client is a typed SharedListService client.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps a client connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, req any, resp any, opts ...grpc.CallOption) error {
	in, err := Encode(req)
	if err != nil {
		return err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FullMethod(method), in, out, opts...); err != nil {
		return err
	}
	return Decode(out, resp)
}

// EvaluateAccess returns the caller's access to a list.
func (c *Client) EvaluateAccess(ctx context.Context, req EvaluateAccessRequest, opts ...grpc.CallOption) (EvaluateAccessResponse, error) {
	var resp EvaluateAccessResponse
	err := c.invoke(ctx, MethodEvaluateAccess, req, &resp, opts...)
	return resp, err
}

// ListTasks returns the visible tasks of a list.
func (c *Client) ListTasks(ctx context.Context, req ListTasksRequest, opts ...grpc.CallOption) (ListTasksResponse, error) {
	var resp ListTasksResponse
	err := c.invoke(ctx, MethodListTasks, req, &resp, opts...)
	return resp, err
}

// AddTask appends a task.
func (c *Client) AddTask(ctx context.Context, req AddTaskRequest, opts ...grpc.CallOption) (AddTaskResponse, error) {
	var resp AddTaskResponse
	err := c.invoke(ctx, MethodAddTask, req, &resp, opts...)
	return resp, err
}

// ToggleTask flips a task's completed flag.
func (c *Client) ToggleTask(ctx context.Context, req ToggleTaskRequest, opts ...grpc.CallOption) (ToggleTaskResponse, error) {
	var resp ToggleTaskResponse
	err := c.invoke(ctx, MethodToggleTask, req, &resp, opts...)
	return resp, err
}

// WatchList opens a snapshot stream. Cancel ctx to end it.
func (c *Client) WatchList(ctx context.Context, req WatchListRequest, opts ...grpc.CallOption) (*WatchListClient, error) {
	in, err := Encode(req)
	if err != nil {
		return nil, err
	}
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], FullMethod(MethodWatchList), opts...)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &WatchListClient{stream: stream}, nil
}

// WatchListClient is the client side of a WatchList stream.
type WatchListClient struct {
	stream grpc.ClientStream
}

// Recv blocks for the next snapshot. A denied watch ends with a
// PermissionDenied status.
func (x *WatchListClient) Recv() (WatchListEvent, error) {
	out := new(structpb.Struct)
	if err := x.stream.RecvMsg(out); err != nil {
		return WatchListEvent{}, err
	}
	var event WatchListEvent
	if err := Decode(out, &event); err != nil {
		return WatchListEvent{}, err
	}
	return event, nil
}
