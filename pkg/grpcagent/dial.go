package grpcagent

import (
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/nordhaven/rsmcore/api"
)

// Dial opens one gRPC connection per peer address. A single connection
// serves both the Agent and Consensus services this module exposes, so
// callers building both a grpcagent.Client and a grpcconsensus.Client
// for the same peer should share the *grpc.ClientConn returned here.
func Dial(peerAddrs map[api.PeerID]string) (map[api.PeerID]*grpc.ClientConn, func() error, error) {
	conns := make(map[api.PeerID]*grpc.ClientConn, len(peerAddrs))
	for peer, addr := range peerAddrs {
		conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			var closeErr error
			for _, c := range conns {
				closeErr = errors.Join(closeErr, c.Close())
			}
			return nil, nil, errors.Join(fmt.Errorf("grpcagent: dial %s: %w", peer, err), closeErr)
		}
		conns[peer] = conn
	}

	closeFunc := func() error {
		var err error
		for peer, conn := range conns {
			if cerr := conn.Close(); cerr != nil {
				err = errors.Join(err, fmt.Errorf("grpcagent: close %s: %w", peer, cerr))
			}
		}
		return err
	}

	return conns, closeFunc, nil
}
