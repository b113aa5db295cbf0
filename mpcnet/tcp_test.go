package mpcnet

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func freePorts(t *testing.T, n int) []string {
	t.Helper()
	addrs := make([]string, n)
	for i := range addrs {
		l, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		addrs[i] = l.Addr().String()
		require.NoError(t, l.Close())
	}
	return addrs
}

func TestTCPMesh(t *testing.T) {
	assert := require.New(t)

	const n = 3
	peers := freePorts(t, n)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sessions := make([]*Session, n)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			s, err := NewTCP(gctx, Config{ID: i, N: n, Timeout: 10 * time.Second}, peers)
			if err != nil {
				return err
			}
			sessions[i] = s
			return nil
		})
	}
	assert.NoError(g.Wait())
	defer func() {
		for _, s := range sessions {
			assert.NoError(s.Close())
		}
	}()

	err := RunParties(ctx, sessions, func(ctx context.Context, s *Session) error {
		if err := s.VerifyConfig(ctx, [32]byte{42}); err != nil {
			return err
		}
		all, err := s.Broadcast(ctx, []byte(fmt.Sprintf("hello-%d", s.ID())))
		if err != nil {
			return err
		}
		for i, p := range all {
			if string(p) != fmt.Sprintf("hello-%d", i) {
				return fmt.Errorf("party %d saw %q from %d", s.ID(), p, i)
			}
		}
		var f func([][]byte) ([][]byte, error)
		if s.IsKing() {
			f = func(all [][]byte) ([][]byte, error) { return all, nil }
		}
		echo, err := s.KingCompute(ctx, []byte{byte(s.ID())}, f)
		if err != nil {
			return err
		}
		if len(echo) != 1 || echo[0] != byte(s.ID()) {
			return fmt.Errorf("party %d echoed %v", s.ID(), echo)
		}
		return nil
	})
	assert.NoError(err)
}

func TestTCPPeerCountMismatch(t *testing.T) {
	_, err := NewTCP(context.Background(), Config{ID: 0, N: 3}, []string{"a", "b"})
	require.ErrorIs(t, err, ErrConfigMismatch)
}
