package mpcnet

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// mailboxDepth bounds each directed channel in the in-process mesh. Deep
// enough that a full broadcast fan-out never blocks the sender.
const mailboxDepth = 64

type inprocTransport struct {
	id    int
	mesh  [][]chan []byte // mesh[from][to]
	kind  Mode
	clock *coopSched // nil outside ModeCoop
}

func (t *inprocTransport) mode() Mode { return t.kind }

func (t *inprocTransport) send(ctx context.Context, to int, frame []byte) error {
	buf := make([]byte, len(frame))
	copy(buf, frame)
	select {
	case t.mesh[t.id][to] <- buf:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *inprocTransport) recv(ctx context.Context, from int, _ []byte) ([]byte, error) {
	if t.clock != nil {
		t.clock.release(t.id)
		defer t.clock.acquire(t.id)
	}
	select {
	case frame := <-t.mesh[from][t.id]:
		return frame, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *inprocTransport) close() error { return nil }

// NewInProcess builds n connected sessions over a shared channel mesh, one
// per party, indexed by party id. Each session must be driven by its own
// goroutine.
func NewInProcess(cfg Config) ([]*Session, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	mesh := newMesh(cfg.N)
	sessions := make([]*Session, cfg.N)
	for i := 0; i < cfg.N; i++ {
		c := cfg
		c.ID = i
		sessions[i] = newSession(c, &inprocTransport{id: i, mesh: mesh, kind: ModeInProcess})
	}
	return sessions, nil
}

func newMesh(n int) [][]chan []byte {
	mesh := make([][]chan []byte, n)
	for i := range mesh {
		mesh[i] = make([]chan []byte, n)
		for j := range mesh[i] {
			mesh[i][j] = make(chan []byte, mailboxDepth)
		}
	}
	return mesh
}

// RunParties drives one goroutine per session through f and waits for all of
// them. The first error cancels the context handed to the remaining parties.
func RunParties(ctx context.Context, sessions []*Session, f func(ctx context.Context, s *Session) error) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, s := range sessions {
		s := s
		g.Go(func() error {
			if err := f(ctx, s); err != nil {
				return fmt.Errorf("party %d: %w", s.ID(), err)
			}
			return nil
		})
	}
	return g.Wait()
}
