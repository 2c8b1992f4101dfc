// Package grpcagent is a gRPC-based reference implementation of
// api.Agent. It ships no generated protobuf stubs: every wire message
// is a google.golang.org/protobuf well-known structpb.Struct,
// hand-registered against a grpc.ServiceDesc the way
// protoc-gen-go-grpc would otherwise generate one. Byte payloads
// (branch opaque, log entry command bytes) travel base64-encoded
// inside a Struct field, since structpb has no raw-bytes value kind.
package grpcagent

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/nordhaven/rsmcore/api"
	"github.com/nordhaven/rsmcore/internal/cbreaker"
)

const serviceName = "rsmcore.Agent"

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*agentServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetMetadata", Handler: handleGetMetadata},
		{MethodName: "GetLog", Handler: handleGetLog},
		{MethodName: "StoreBranch", Handler: handleStoreBranch},
		{MethodName: "LocalStoreBranch", Handler: handleLocalStoreBranch},
		{MethodName: "UndoBranch", Handler: handleUndoBranch},
	},
}

type agentServer interface {
	serveGetMetadata(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	serveGetLog(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	serveStoreBranch(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	serveLocalStoreBranch(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	serveUndoBranch(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

func decodeReq(dec func(any) error) (*structpb.Struct, error) {
	req := new(structpb.Struct)
	if err := dec(req); err != nil {
		return nil, err
	}
	return req, nil
}

func handleGetMetadata(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
	req, err := decodeReq(dec)
	if err != nil {
		return nil, err
	}
	return srv.(agentServer).serveGetMetadata(ctx, req)
}

func handleGetLog(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
	req, err := decodeReq(dec)
	if err != nil {
		return nil, err
	}
	return srv.(agentServer).serveGetLog(ctx, req)
}

func handleStoreBranch(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
	req, err := decodeReq(dec)
	if err != nil {
		return nil, err
	}
	return srv.(agentServer).serveStoreBranch(ctx, req)
}

func handleLocalStoreBranch(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
	req, err := decodeReq(dec)
	if err != nil {
		return nil, err
	}
	return srv.(agentServer).serveLocalStoreBranch(ctx, req)
}

func handleUndoBranch(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
	req, err := decodeReq(dec)
	if err != nil {
		return nil, err
	}
	return srv.(agentServer).serveUndoBranch(ctx, req)
}

// Server adapts a local api.Agent onto the gRPC service.
type Server struct {
	local api.Agent
}

// Register attaches local to s under the Agent service name.
func Register(s *grpc.Server, local api.Agent) {
	s.RegisterService(&serviceDesc, &Server{local: local})
}

func (s *Server) serveGetMetadata(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	md, err := s.local.GetMetadata(ctx)
	if err != nil {
		return nil, err
	}
	return encodeMetadata(md), nil
}

func (s *Server) serveGetLog(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	entries, err := s.local.GetLog(ctx)
	if err != nil {
		return nil, err
	}
	return encodeLog(entries), nil
}

func (s *Server) serveStoreBranch(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	peers, branch, timeout := decodeStoreBranchReq(req)
	ok, errs, err := s.local.StoreBranch(ctx, peers, branch, timeout)
	if err != nil {
		return nil, err
	}
	return encodeFanoutResult(ok, errs), nil
}

func (s *Server) serveLocalStoreBranch(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	branch, timeout := decodeBranchReq(req)
	if err := s.local.LocalStoreBranch(ctx, branch, timeout); err != nil {
		return nil, err
	}
	return &structpb.Struct{}, nil
}

func (s *Server) serveUndoBranch(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	peers, historyID, timeout := decodeUndoBranchReq(req)
	ok, errs, err := s.local.UndoBranch(ctx, peers, historyID, timeout)
	if err != nil {
		return nil, err
	}
	return encodeFanoutResult(ok, errs), nil
}

// Client adapts a gRPC connection to a single peer onto api.Agent. One
// Client per peer, each guarded by its own circuit breaker so a
// partitioned peer does not get hammered by both ordinary replication
// traffic and failover traffic (SPEC_FULL §4.2).
type Client struct {
	cc  grpc.ClientConnInterface
	cb  *cbreaker.CircuitBreaker
	dst string
}

func NewClient(cc grpc.ClientConnInterface, dst string, cb *cbreaker.CircuitBreaker) *Client {
	return &Client{cc: cc, dst: dst, cb: cb}
}

func (c *Client) invoke(ctx context.Context, method string, req *structpb.Struct) (*structpb.Struct, error) {
	resp, err := cbreaker.Do(ctx, c.cb, func(ctx context.Context) (*structpb.Struct, error) {
		resp := new(structpb.Struct)
		if err := c.cc.Invoke(ctx, "/"+serviceName+"/"+method, req, resp); err != nil {
			return nil, err
		}
		return resp, nil
	})
	if err != nil {
		return nil, fmt.Errorf("grpcagent: %s to %s: %w", method, c.dst, err)
	}
	return resp, nil
}

func (c *Client) GetMetadata(ctx context.Context) (api.Metadata, error) {
	resp, err := c.invoke(ctx, "GetMetadata", &structpb.Struct{})
	if err != nil {
		return api.Metadata{}, err
	}
	return decodeMetadata(resp), nil
}

func (c *Client) GetLog(ctx context.Context) ([]api.LogEntry, error) {
	resp, err := c.invoke(ctx, "GetLog", &structpb.Struct{})
	if err != nil {
		return nil, err
	}
	return decodeLog(resp), nil
}

func (c *Client) StoreBranch(ctx context.Context, peers []api.PeerID, branch api.Branch, timeout api.Duration) ([]api.PeerID, map[api.PeerID]error, error) {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	resp, err := c.invoke(tctx, "StoreBranch", encodeStoreBranchReq(peers, branch, timeout))
	if err != nil {
		return nil, nil, err
	}
	return decodeFanoutResult(resp)
}

func (c *Client) LocalStoreBranch(ctx context.Context, branch api.Branch, timeout api.Duration) error {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	_, err := c.invoke(tctx, "LocalStoreBranch", encodeBranchReq(branch, timeout))
	return err
}

func (c *Client) UndoBranch(ctx context.Context, peers []api.PeerID, historyID api.HistoryID, timeout api.Duration) ([]api.PeerID, map[api.PeerID]error, error) {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	resp, err := c.invoke(tctx, "UndoBranch", encodeUndoBranchReq(peers, historyID, timeout))
	if err != nil {
		return nil, nil, err
	}
	return decodeFanoutResult(resp)
}
