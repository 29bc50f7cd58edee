package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "trustgate.v1.TrustGateService"

// Method names of TrustGateService.
const (
	MethodRegisterAgent   = "RegisterAgent"
	MethodUpdateScore     = "UpdateScore"
	MethodDecide          = "Decide"
	MethodEvaluate        = "Evaluate"
	MethodListApprovals   = "ListApprovals"
	MethodResolveApproval = "ResolveApproval"
	MethodListDecisions   = "ListDecisions"
)

// FullMethod returns the gRPC path for a TrustGateService method.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// TrustGateServiceServer is the server API for TrustGateService. Requests
// and responses are google.protobuf.Struct documents.
type TrustGateServiceServer interface {
	RegisterAgent(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateScore(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Decide(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Evaluate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListApprovals(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ResolveApproval(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListDecisions(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(TrustGateServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func handler(method string, call unaryMethod) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(TrustGateServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(method)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(TrustGateServiceServer), ctx, req.(*structpb.Struct))
			})
		},
	}
}

// TrustGateService_ServiceDesc is the grpc.ServiceDesc for TrustGateService.
var TrustGateService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TrustGateServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		handler(MethodRegisterAgent, TrustGateServiceServer.RegisterAgent),
		handler(MethodUpdateScore, TrustGateServiceServer.UpdateScore),
		handler(MethodDecide, TrustGateServiceServer.Decide),
		handler(MethodEvaluate, TrustGateServiceServer.Evaluate),
		handler(MethodListApprovals, TrustGateServiceServer.ListApprovals),
		handler(MethodResolveApproval, TrustGateServiceServer.ResolveApproval),
		handler(MethodListDecisions, TrustGateServiceServer.ListDecisions),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "trust_gate/v1/trust_gate.proto",
}

// RegisterTrustGateServiceServer registers srv with s.
func RegisterTrustGateServiceServer(s grpc.ServiceRegistrar, srv TrustGateServiceServer) {
	s.RegisterService(&TrustGateService_ServiceDesc, srv)
}

// TrustGateServiceClient is a thin client for TrustGateService.
type TrustGateServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewTrustGateServiceClient creates a client over cc.
func NewTrustGateServiceClient(cc grpc.ClientConnInterface) *TrustGateServiceClient {
	return &TrustGateServiceClient{cc: cc}
}

// Call invokes method with a request built from fields.
func (c *TrustGateServiceClient) Call(ctx context.Context, method string, fields map[string]any, opts ...grpc.CallOption) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *TrustGateServiceClient) RegisterAgent(ctx context.Context, agentID string, trustScore float64, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.Call(ctx, MethodRegisterAgent, map[string]any{"agent_id": agentID, "trust_score": trustScore}, opts...)
}

func (c *TrustGateServiceClient) UpdateScore(ctx context.Context, agentID string, trustScore float64, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.Call(ctx, MethodUpdateScore, map[string]any{"agent_id": agentID, "trust_score": trustScore}, opts...)
}

func (c *TrustGateServiceClient) Decide(ctx context.Context, agentID, command string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.Call(ctx, MethodDecide, map[string]any{"agent_id": agentID, "command": command}, opts...)
}

func (c *TrustGateServiceClient) Evaluate(ctx context.Context, agentID, agentKind string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.Call(ctx, MethodEvaluate, map[string]any{"agent_id": agentID, "agent_kind": agentKind}, opts...)
}

func (c *TrustGateServiceClient) ListApprovals(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.Call(ctx, MethodListApprovals, map[string]any{}, opts...)
}

func (c *TrustGateServiceClient) ResolveApproval(ctx context.Context, approvalID string, approve bool, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.Call(ctx, MethodResolveApproval, map[string]any{"approval_id": approvalID, "approve": approve}, opts...)
}

// ListDecisions pages through the decision audit trail. filters may hold
// agent_id, outcome, risk, page and page_size.
func (c *TrustGateServiceClient) ListDecisions(ctx context.Context, filters map[string]any, opts ...grpc.CallOption) (*structpb.Struct, error) {
	if filters == nil {
		filters = map[string]any{}
	}
	return c.Call(ctx, MethodListDecisions, filters, opts...)
}
