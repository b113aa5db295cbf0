package mpcnet

import (
	"context"
	"fmt"
)

// stubTransport runs the king alone. Sends are dropped after being counted;
// receives echo the caller's own same-round frame, which is size-correct by
// construction since every party's frame in a collective step has identical
// shape. On replicated inputs the fabricated traffic is byte-identical to
// what honest peers would have sent, so a stub run's outputs and counters
// match a genuine multi-party run exactly.
type stubTransport struct{}

func (stubTransport) mode() Mode { return ModeStub }

func (stubTransport) send(_ context.Context, _ int, _ []byte) error { return nil }

func (stubTransport) recv(_ context.Context, _ int, like []byte) ([]byte, error) {
	frame := make([]byte, len(like))
	copy(frame, like)
	return frame, nil
}

func (stubTransport) close() error { return nil }

// NewLeaderStub builds the king's session with all peer traffic fabricated.
// cfg.ID must equal cfg.King.
func NewLeaderStub(cfg Config) (*Session, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.ID != cfg.King {
		return nil, fmt.Errorf("%w: stub session must run as the king, got id=%d king=%d", ErrConfigMismatch, cfg.ID, cfg.King)
	}
	return newSession(cfg, stubTransport{}), nil
}
