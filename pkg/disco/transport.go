package disco

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"

	"capcache/pkg/caps"
)

const (
	serviceName       = "capcache.v1.Disco"
	getInfoFullMethod = "/capcache.v1.Disco/GetInfo"
	codecName         = "json"
)

// InfoSource fetches a peer's full capability description for a scoped node.
// fresh asks the collaborator for an authoritative, non-cached answer.
type InfoSource interface {
	FetchInfo(ctx context.Context, peerAddr, node string, fresh bool) (*caps.Set, error)
}

// InfoRequest asks a peer for its capability set, optionally scoped to a
// mounted node.
type InfoRequest struct {
	Node         string `json:"node,omitempty"`
	RequireFresh bool   `json:"require_fresh,omitempty"`
}

// InfoResponse carries the answering peer's capability set.
type InfoResponse struct {
	Set *caps.Set `json:"set"`
}

// jsonCodec lets the disco service exchange plain structs over gRPC without
// generated message types.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                               { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// DiscoServer answers capability info queries.
type DiscoServer interface {
	GetInfo(ctx context.Context, req *InfoRequest) (*InfoResponse, error)
}

// RegisterDiscoServer registers srv on the given gRPC registrar.
func RegisterDiscoServer(s grpc.ServiceRegistrar, srv DiscoServer) {
	s.RegisterService(&discoServiceDesc, srv)
}

func getInfoHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(InfoRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DiscoServer).GetInfo(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getInfoFullMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(DiscoServer).GetInfo(ctx, req.(*InfoRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var discoServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*DiscoServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetInfo", Handler: getInfoHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "capcache/v1/disco",
}

// Server serves the local registry's capability set to peers.
type Server struct {
	registry *Registry
	logger   *zap.Logger
}

// NewServer creates a disco server over the given registry.
func NewServer(registry *Registry, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{registry: registry, logger: logger}
}

// GetInfo answers an info query from the live registry. The registry is the
// authority for its own capabilities, so RequireFresh is always satisfied.
func (s *Server) GetInfo(_ context.Context, req *InfoRequest) (*InfoResponse, error) {
	set, err := s.registry.Info(req.Node)
	if err != nil {
		s.logger.Debug("info query for unknown node", zap.String("node", req.Node))
		return nil, status.Error(codes.NotFound, err.Error())
	}
	return &InfoResponse{Set: set}, nil
}

// Client fetches capability sets from remote peers, caching one connection
// per peer address.
type Client struct {
	mu       sync.Mutex
	conns    map[string]*grpc.ClientConn
	dialOpts []grpc.DialOption
	logger   *zap.Logger
}

// NewClient creates a disco client. Without explicit dial options it uses
// insecure transport credentials.
func NewClient(logger *zap.Logger, opts ...grpc.DialOption) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	return &Client{
		conns:    make(map[string]*grpc.ClientConn),
		dialOpts: opts,
		logger:   logger,
	}
}

// FetchInfo queries the peer at peerAddr for its capability set under node.
func (c *Client) FetchInfo(ctx context.Context, peerAddr, node string, fresh bool) (*caps.Set, error) {
	conn, err := c.conn(peerAddr)
	if err != nil {
		return nil, err
	}

	req := &InfoRequest{Node: node, RequireFresh: fresh}
	resp := new(InfoResponse)
	if err := conn.Invoke(ctx, getInfoFullMethod, req, resp, grpc.CallContentSubtype(codecName)); err != nil {
		return nil, fmt.Errorf("info query to %s failed: %w", peerAddr, err)
	}
	if resp.Set == nil {
		return nil, fmt.Errorf("info query to %s returned no capability set", peerAddr)
	}
	return resp.Set, nil
}

func (c *Client) conn(peerAddr string) (*grpc.ClientConn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if conn, ok := c.conns[peerAddr]; ok {
		return conn, nil
	}
	conn, err := grpc.NewClient(peerAddr, c.dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to peer %s: %w", peerAddr, err)
	}
	c.conns[peerAddr] = conn
	return conn, nil
}

// Close closes all cached peer connections.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for addr, conn := range c.conns {
		conn.Close()
		delete(c.conns, addr)
	}
}

var _ InfoSource = (*Client)(nil)
var _ DiscoServer = (*Server)(nil)
