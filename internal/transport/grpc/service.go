package transportgrpc

import (
	"context"

	"github.com/google/uuid"
	"google.golang.org/grpc"

	"github.com/arklim/identity-server/internal/command"
	"github.com/arklim/identity-server/internal/transport/codec"
)

const (
	// ServiceName is the fully qualified gRPC service name.
	ServiceName = "idserver.v1.Commands"
	// ExecuteMethod runs one command envelope.
	ExecuteMethod = "/" + ServiceName + "/Execute"
	// KeysMethod returns the JSON Web Key Set.
	KeysMethod = "/" + ServiceName + "/Keys"
)

// KeysRequest is the empty request of the Keys method.
type KeysRequest struct{}

// KeysReply carries the JSON Web Key Set document.
type KeysReply struct {
	JWKS string `cbor:"jwks"`
}

// CommandsServer is the server API of the Commands service.
type CommandsServer interface {
	Execute(ctx context.Context, in *Frame) (*Frame, error)
	Keys(ctx context.Context, in *KeysRequest) (*KeysReply, error)
}

// CommandsServiceDesc describes the Commands service to grpc.Server.
var CommandsServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CommandsServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Execute", Handler: executeHandler},
		{MethodName: "Keys", Handler: keysHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "idserver/v1/commands",
}

// RegisterCommandsServer attaches srv to s.
func RegisterCommandsServer(s grpc.ServiceRegistrar, srv CommandsServer) {
	s.RegisterService(&CommandsServiceDesc, srv)
}

func executeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(Frame)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CommandsServer).Execute(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ExecuteMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CommandsServer).Execute(ctx, req.(*Frame))
	}
	return interceptor(ctx, in, info, handler)
}

func keysHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(KeysRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CommandsServer).Keys(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: KeysMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CommandsServer).Keys(ctx, req.(*KeysRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// CommandsClient calls the Commands service.
type CommandsClient struct {
	cc grpc.ClientConnInterface
}

// NewCommandsClient wraps an established connection.
func NewCommandsClient(cc grpc.ClientConnInterface) *CommandsClient {
	return &CommandsClient{cc: cc}
}

// Execute sends one raw frame.
func (c *CommandsClient) Execute(ctx context.Context, in *Frame, opts ...grpc.CallOption) (*Frame, error) {
	out := new(Frame)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, ExecuteMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Keys fetches the JSON Web Key Set.
func (c *CommandsClient) Keys(ctx context.Context, opts ...grpc.CallOption) (*KeysReply, error) {
	out := new(KeysReply)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, KeysMethod, &KeysRequest{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Do encodes cmd, executes it and decodes the reply.
func (c *CommandsClient) Do(ctx context.Context, cmd command.Command, correlationID string, opts ...grpc.CallOption) (codec.Reply, error) {
	data, err := codec.Encode(codec.CBOR, uuid.New(), correlationID, cmd)
	if err != nil {
		return codec.Reply{}, err
	}
	in := Frame(data)
	out, err := c.Execute(ctx, &in, opts...)
	if err != nil {
		return codec.Reply{}, err
	}
	var reply codec.Reply
	if err := codec.CBOR.Unmarshal(*out, &reply); err != nil {
		return codec.Reply{}, err
	}
	return reply, nil
}
