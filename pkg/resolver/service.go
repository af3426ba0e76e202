package resolver

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"capcache/pkg/cache"
	"capcache/pkg/caps"
)

const resolveFullMethod = "/capcache.v1.Resolver/Resolve"

// ResolveRequest asks the service to resolve a fingerprint advertisement
// observed for a peer.
type ResolveRequest struct {
	Peer string `json:"peer"`
	Node string `json:"node"`
	Ver  string `json:"ver"`
	Hash string `json:"hash"`
}

// ResolveResponse carries the verified capability set.
type ResolveResponse struct {
	Set *caps.Set `json:"set"`
}

// ResolverServer resolves fingerprint advertisements on behalf of callers.
type ResolverServer interface {
	Resolve(ctx context.Context, req *ResolveRequest) (*ResolveResponse, error)
}

// RegisterResolverServer registers srv on the given gRPC registrar.
func RegisterResolverServer(s grpc.ServiceRegistrar, srv ResolverServer) {
	s.RegisterService(&resolverServiceDesc, srv)
}

func resolveHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ResolveRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ResolverServer).Resolve(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: resolveFullMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ResolverServer).Resolve(ctx, req.(*ResolveRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var resolverServiceDesc = grpc.ServiceDesc{
	ServiceName: "capcache.v1.Resolver",
	HandlerType: (*ResolverServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Resolve", Handler: resolveHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "capcache/v1/resolver",
}

// Service exposes a Resolver over gRPC for operator tooling and embedding
// peers.
type Service struct {
	resolver *Resolver
	logger   *zap.Logger
}

// NewService wraps the resolver in a gRPC-servable service.
func NewService(r *Resolver, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{resolver: r, logger: logger}
}

// Resolve runs a cache-or-network resolution for the advertised triple.
func (s *Service) Resolve(ctx context.Context, req *ResolveRequest) (*ResolveResponse, error) {
	set, err := s.resolver.LookupCapabilities(ctx, req.Peer, req.Node, req.Ver, req.Hash)
	if err != nil {
		var mismatch *caps.HashMismatchError
		switch {
		case errors.As(err, &mismatch):
			return nil, status.Error(codes.FailedPrecondition, err.Error())
		case errors.Is(err, cache.ErrNotFound):
			return nil, status.Error(codes.NotFound, err.Error())
		default:
			return nil, err
		}
	}
	return &ResolveResponse{Set: set}, nil
}

var _ ResolverServer = (*Service)(nil)
