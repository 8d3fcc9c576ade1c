package suggestion

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "matchmaking.v1.SuggestionService"

// Full method names.
const (
	MethodCreate           = "/" + ServiceName + "/CreateSuggestion"
	MethodTransition       = "/" + ServiceName + "/TransitionSuggestion"
	MethodGet              = "/" + ServiceName + "/GetSuggestion"
	MethodListActive       = "/" + ServiceName + "/ListActiveSuggestions"
	MethodHistory          = "/" + ServiceName + "/ListSuggestionHistory"
	MethodUpdateDetails    = "/" + ServiceName + "/UpdateSuggestionDetails"
	MethodAvailableActions = "/" + ServiceName + "/AvailableActions"
)

// SuggestionServiceServer is the server API. Every message is a
// google.protobuf.Struct with snake_case keys.
type SuggestionServiceServer interface {
	CreateSuggestion(context.Context, *structpb.Struct) (*structpb.Struct, error)
	TransitionSuggestion(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetSuggestion(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListActiveSuggestions(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListSuggestionHistory(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateSuggestionDetails(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AvailableActions(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(SuggestionServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

// handler adapts a unary method to grpc's handler shape.
func handler(fullMethod string, call unaryMethod) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(SuggestionServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(srv.(SuggestionServiceServer), ctx, req.(*structpb.Struct))
		})
	}
}

// ServiceDesc describes SuggestionService for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SuggestionServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateSuggestion", Handler: handler(MethodCreate, SuggestionServiceServer.CreateSuggestion)},
		{MethodName: "TransitionSuggestion", Handler: handler(MethodTransition, SuggestionServiceServer.TransitionSuggestion)},
		{MethodName: "GetSuggestion", Handler: handler(MethodGet, SuggestionServiceServer.GetSuggestion)},
		{MethodName: "ListActiveSuggestions", Handler: handler(MethodListActive, SuggestionServiceServer.ListActiveSuggestions)},
		{MethodName: "ListSuggestionHistory", Handler: handler(MethodHistory, SuggestionServiceServer.ListSuggestionHistory)},
		{MethodName: "UpdateSuggestionDetails", Handler: handler(MethodUpdateDetails, SuggestionServiceServer.UpdateSuggestionDetails)},
		{MethodName: "AvailableActions", Handler: handler(MethodAvailableActions, SuggestionServiceServer.AvailableActions)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "matchmaking/v1/suggestion.proto",
}

// RegisterSuggestionServiceServer attaches srv to s.
func RegisterSuggestionServiceServer(s grpc.ServiceRegistrar, srv SuggestionServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Client calls SuggestionService over conn.
type Client struct {
	conn grpc.ClientConnInterface
}

func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// Call invokes a method by its full name.
func (c *Client) Call(ctx context.Context, method string, req map[string]any, opts ...grpc.CallOption) (map[string]any, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}
