// Package grpcconsensus is a gRPC-based reference implementation of
// api.ConsensusServer, using the same generated-stub-free approach as
// pkg/grpcagent: messages are google.golang.org/protobuf
// structpb.Struct values, and RPC dispatch is a hand-registered
// grpc.ServiceDesc.
//
// RsmCommand and SyncQuorum are one-way: the client fires the RPC and
// does not wait on its response beyond "the server accepted the
// request for processing". The actual ConsensusEvent reply is
// delivered later over the WatchEvents server stream, which every
// Client opens once at construction and fans into the channel the
// owning rsm.Host was built with — mirroring how a real actor never
// blocks its mailbox on network I/O.
package grpcconsensus

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/nordhaven/rsmcore/api"
	"github.com/nordhaven/rsmcore/internal/cbreaker"
	"github.com/nordhaven/rsmcore/pkg/logger"
)

const serviceName = "rsmcore.Consensus"

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*consensusServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "RegisterRSM", Handler: handleRegisterRSM},
		{MethodName: "RsmCommand", Handler: handleRsmCommand},
		{MethodName: "SyncQuorum", Handler: handleSyncQuorum},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "WatchEvents", Handler: handleWatchEvents, ServerStreams: true},
	},
}

type consensusServer interface {
	serveRegisterRSM(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	serveRsmCommand(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	serveSyncQuorum(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	serveWatchEvents(req *structpb.Struct, stream grpc.ServerStream) error
}

func decodeReq(dec func(any) error) (*structpb.Struct, error) {
	req := new(structpb.Struct)
	if err := dec(req); err != nil {
		return nil, err
	}
	return req, nil
}

func handleRegisterRSM(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
	req, err := decodeReq(dec)
	if err != nil {
		return nil, err
	}
	return srv.(consensusServer).serveRegisterRSM(ctx, req)
}

func handleRsmCommand(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
	req, err := decodeReq(dec)
	if err != nil {
		return nil, err
	}
	return srv.(consensusServer).serveRsmCommand(ctx, req)
}

func handleSyncQuorum(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
	req, err := decodeReq(dec)
	if err != nil {
		return nil, err
	}
	return srv.(consensusServer).serveSyncQuorum(ctx, req)
}

func handleWatchEvents(srv any, stream grpc.ServerStream) error {
	req := new(structpb.Struct)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(consensusServer).serveWatchEvents(req, stream)
}

// Server adapts a local api.ConsensusServer plus its own event feed
// onto the gRPC service. localEvents is the same channel the local
// ConsensusServer implementation was built to publish into.
type Server struct {
	local  api.ConsensusServer
	logger *slog.Logger

	mu   sync.Mutex
	subs map[chan *structpb.Struct]struct{}
}

func NewServer(local api.ConsensusServer, localEvents <-chan api.ConsensusEvent, log *slog.Logger) *Server {
	if log == nil {
		log = logger.NewLogger(logger.Dev, false)
	}
	s := &Server{local: local, logger: log, subs: make(map[chan *structpb.Struct]struct{})}
	go s.pump(localEvents)
	return s
}

func (s *Server) pump(events <-chan api.ConsensusEvent) {
	for ev := range events {
		msg := encodeEvent(ev)
		s.mu.Lock()
		for ch := range s.subs {
			select {
			case ch <- msg:
			default:
				s.logger.Warn("grpcconsensus: dropping event, subscriber too slow", "tag", ev.Tag)
			}
		}
		s.mu.Unlock()
	}
}

func Register(s *grpc.Server, srv *Server) {
	s.RegisterService(&serviceDesc, srv)
}

func (s *Server) serveRegisterRSM(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := req.GetFields()
	res, err := s.local.RegisterRSM(ctx, f["name"].GetStringValue(), api.PeerID(f["self"].GetStringValue()))
	if err != nil {
		return nil, err
	}
	return encodeRegisterResult(res), nil
}

func (s *Server) serveRsmCommand(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := req.GetFields()
	s.local.RsmCommand(
		api.Ref(f["tag"].GetNumberValue()),
		api.HistoryID(f["history_id"].GetStringValue()),
		api.Term(f["term"].GetNumberValue()),
		f["name"].GetStringValue(),
		unb64(f["cmd"].GetStringValue()),
	)
	return &structpb.Struct{}, nil
}

func (s *Server) serveSyncQuorum(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	f := req.GetFields()
	s.local.SyncQuorum(
		api.Ref(f["tag"].GetNumberValue()),
		api.HistoryID(f["history_id"].GetStringValue()),
		api.Term(f["term"].GetNumberValue()),
	)
	return &structpb.Struct{}, nil
}

func (s *Server) serveWatchEvents(_ *structpb.Struct, stream grpc.ServerStream) error {
	ch := make(chan *structpb.Struct, 32)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.subs, ch)
		s.mu.Unlock()
	}()

	for {
		select {
		case <-stream.Context().Done():
			return stream.Context().Err()
		case msg := <-ch:
			if err := stream.SendMsg(msg); err != nil {
				return err
			}
		}
	}
}

// Client adapts a gRPC connection onto api.ConsensusServer. Events is
// the channel passed to rsm.NewHostBuilder for this host; NewClient
// starts watching the remote server's event stream immediately and
// keeps reconnecting (see watch) until ctx is canceled.
type Client struct {
	cc     grpc.ClientConnInterface
	dst    string
	cb     *cbreaker.CircuitBreaker
	logger *slog.Logger
}

func NewClient(ctx context.Context, cc grpc.ClientConnInterface, dst string, cb *cbreaker.CircuitBreaker, log *slog.Logger, events chan<- api.ConsensusEvent) *Client {
	if log == nil {
		log = logger.NewLogger(logger.Dev, false)
	}
	c := &Client{cc: cc, dst: dst, cb: cb, logger: log}
	go c.watch(ctx, events)
	return c
}

// watch keeps a WatchEvents stream open for as long as ctx lives,
// reconnecting with backoff on every failure — there is no "give up"
// state here, unlike internal/retry's bounded attempts, since a
// consensus event stream that stays down forever would silently starve
// every pending command and quorum check on this host.
func (c *Client) watch(ctx context.Context, events chan<- api.ConsensusEvent) {
	backoff := 150 * time.Millisecond
	const maxBackoff = 5 * time.Second
	for ctx.Err() == nil {
		if err := c.watchOnce(ctx, events); err != nil {
			c.logger.Warn("grpcconsensus: event stream broke, reconnecting", logger.ErrAttr(err), "peer", c.dst)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			if backoff *= 2; backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = 150 * time.Millisecond
	}
}

func (c *Client) watchOnce(ctx context.Context, events chan<- api.ConsensusEvent) error {
	stream, err := c.cc.NewStream(ctx, &serviceDesc.Streams[0], "/"+serviceName+"/WatchEvents")
	if err != nil {
		return err
	}
	if err := stream.SendMsg(&structpb.Struct{}); err != nil {
		return err
	}
	for {
		msg := new(structpb.Struct)
		if err := stream.RecvMsg(msg); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		select {
		case events <- decodeEvent(msg):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
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
		return nil, fmt.Errorf("grpcconsensus: %s to %s: %w", method, c.dst, err)
	}
	return resp, nil
}

func (c *Client) RegisterRSM(ctx context.Context, name string, self api.PeerID) (api.RegisterResult, error) {
	resp, err := c.invoke(ctx, "RegisterRSM", &structpb.Struct{Fields: map[string]*structpb.Value{
		"name": structpb.NewStringValue(name),
		"self": structpb.NewStringValue(string(self)),
	}})
	if err != nil {
		return api.RegisterResult{}, err
	}
	return decodeRegisterResult(resp), nil
}

func (c *Client) RsmCommand(tag api.Ref, historyID api.HistoryID, term api.Term, name string, cmd []byte) {
	go func() {
		req := &structpb.Struct{Fields: map[string]*structpb.Value{
			"tag":        structpb.NewNumberValue(float64(tag)),
			"history_id": structpb.NewStringValue(string(historyID)),
			"term":       structpb.NewNumberValue(float64(term)),
			"name":       structpb.NewStringValue(name),
			"cmd":        structpb.NewStringValue(b64(cmd)),
		}}
		if _, err := c.invoke(context.Background(), "RsmCommand", req); err != nil {
			c.logger.Warn("grpcconsensus: rsm_command delivery failed", logger.ErrAttr(err), "tag", tag)
		}
	}()
}

func (c *Client) SyncQuorum(tag api.Ref, historyID api.HistoryID, term api.Term) {
	go func() {
		req := &structpb.Struct{Fields: map[string]*structpb.Value{
			"tag":        structpb.NewNumberValue(float64(tag)),
			"history_id": structpb.NewStringValue(string(historyID)),
			"term":       structpb.NewNumberValue(float64(term)),
		}}
		if _, err := c.invoke(context.Background(), "SyncQuorum", req); err != nil {
			c.logger.Warn("grpcconsensus: sync_quorum delivery failed", logger.ErrAttr(err), "tag", tag)
		}
	}()
}
