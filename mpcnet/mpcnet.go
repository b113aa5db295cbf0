// Package mpcnet provides the N-party communication session the distributed
// protocols run on. A Session exposes point-to-point and collective
// operations (broadcast, gather-to-king, scatter-from-king) over one of four
// interchangeable transports: real TCP sockets, an in-process channel mesh,
// a cooperatively scheduled single-thread mesh, and a leader-only stub that
// fabricates peer traffic for single-machine benchmarking.
//
// Every collective operation advances a session-local round counter and tags
// its frames with it, so a desynchronized party is detected instead of
// silently consuming a frame from the wrong step. All transports maintain
// the same byte and message counters, fabricated stub traffic included, so
// communication costs measured in any mode agree.
package mpcnet

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/zkcollab/dzkp/logger"
)

var (
	// ErrConfigMismatch is returned when parties disagree on session or
	// sharing parameters.
	ErrConfigMismatch = errors.New("mpcnet: configuration mismatch")

	// ErrConnectionFailure is returned when a peer connection cannot be
	// established or breaks mid-protocol.
	ErrConnectionFailure = errors.New("mpcnet: connection failure")

	// ErrTimeout is returned when a blocking operation exceeds the session
	// deadline.
	ErrTimeout = errors.New("mpcnet: timed out")

	// ErrSerialization is returned when a received frame cannot be decoded
	// or carries an unexpected round tag.
	ErrSerialization = errors.New("mpcnet: malformed frame")
)

// Mode identifies the transport backing a Session.
type Mode uint8

const (
	// ModeTCP connects parties over real sockets.
	ModeTCP Mode = iota
	// ModeInProcess runs all parties as goroutines over a channel mesh.
	ModeInProcess
	// ModeCoop runs all parties on a single OS thread worth of execution,
	// handing control over at every blocking receive.
	ModeCoop
	// ModeStub runs the leader alone and fabricates all peer traffic.
	ModeStub
)

func (m Mode) String() string {
	switch m {
	case ModeTCP:
		return "tcp"
	case ModeInProcess:
		return "in-process"
	case ModeCoop:
		return "coop"
	case ModeStub:
		return "stub"
	default:
		return "unknown"
	}
}

// Config fixes a party's identity inside a session.
type Config struct {
	ID      int           // this party's id, in [0, N)
	N       int           // number of parties
	King    int           // id of the king party, 0 unless overridden
	Timeout time.Duration // per-operation deadline, 0 means none
}

func (c Config) validate() error {
	if c.N < 1 || c.ID < 0 || c.ID >= c.N {
		return fmt.Errorf("%w: id=%d n=%d", ErrConfigMismatch, c.ID, c.N)
	}
	if c.King < 0 || c.King >= c.N {
		return fmt.Errorf("%w: king=%d n=%d", ErrConfigMismatch, c.King, c.N)
	}
	return nil
}

// transport is the byte-level engine under a Session. recv takes the
// caller's own same-round frame so the stub transport can fabricate a
// size-correct echo for the absent peer.
type transport interface {
	send(ctx context.Context, to int, frame []byte) error
	recv(ctx context.Context, from int, like []byte) ([]byte, error)
	close() error
	mode() Mode
}

// Session is one party's handle on the mesh. It is not safe for concurrent
// use by multiple goroutines; the protocols drive it sequentially.
type Session struct {
	cfg   Config
	tr    transport
	log   zerolog.Logger
	start time.Time

	round     atomic.Uint64
	bytesSent atomic.Uint64
	bytesRecv atomic.Uint64
	msgsSent  atomic.Uint64
	msgsRecv  atomic.Uint64
}

func newSession(cfg Config, tr transport) *Session {
	return &Session{
		cfg:   cfg,
		tr:    tr,
		log:   logger.Logger().With().Str("transport", tr.mode().String()).Int("party", cfg.ID).Logger(),
		start: time.Now(),
	}
}

// ID returns this party's id.
func (s *Session) ID() int { return s.cfg.ID }

// N returns the number of parties.
func (s *Session) N() int { return s.cfg.N }

// King returns the king party's id.
func (s *Session) King() int { return s.cfg.King }

// IsKing reports whether this party is the king.
func (s *Session) IsKing() bool { return s.cfg.ID == s.cfg.King }

// Mode returns the transport mode backing the session.
func (s *Session) Mode() Mode { return s.tr.mode() }

// Round returns the number of collective operations completed so far.
func (s *Session) Round() uint64 { return s.round.Load() }

// Close releases the transport.
func (s *Session) Close() error { return s.tr.close() }

func (s *Session) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.Timeout > 0 {
		return context.WithTimeout(ctx, s.cfg.Timeout)
	}
	return ctx, func() {}
}

// frame layout: u64 round tag followed by the payload. The length prefix is
// the transport's concern.
func (s *Session) seal(round uint64, payload []byte) []byte {
	frame := make([]byte, 8+len(payload))
	binary.BigEndian.PutUint64(frame, round)
	copy(frame[8:], payload)
	return frame
}

func (s *Session) unseal(round uint64, frame []byte, from int) ([]byte, error) {
	if len(frame) < 8 {
		return nil, fmt.Errorf("%w: short frame from party %d", ErrSerialization, from)
	}
	if got := binary.BigEndian.Uint64(frame); got != round {
		return nil, fmt.Errorf("%w: party %d sent round %d, expected %d", ErrSerialization, from, got, round)
	}
	return frame[8:], nil
}

func (s *Session) sendFrame(ctx context.Context, to int, frame []byte) error {
	if err := s.tr.send(ctx, to, frame); err != nil {
		return s.classify(err, to)
	}
	s.bytesSent.Add(uint64(len(frame)))
	s.msgsSent.Add(1)
	return nil
}

func (s *Session) recvFrame(ctx context.Context, round uint64, from int, like []byte) ([]byte, error) {
	frame, err := s.tr.recv(ctx, from, like)
	if err != nil {
		return nil, s.classify(err, from)
	}
	s.bytesRecv.Add(uint64(len(frame)))
	s.msgsRecv.Add(1)
	return s.unseal(round, frame, from)
}

func (s *Session) classify(err error, peer int) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: peer %d: %v", ErrTimeout, peer, err)
	case errors.Is(err, ErrTimeout), errors.Is(err, ErrConnectionFailure),
		errors.Is(err, ErrSerialization), errors.Is(err, ErrConfigMismatch):
		return err
	default:
		return fmt.Errorf("%w: peer %d: %v", ErrConnectionFailure, peer, err)
	}
}

// SendTo sends payload to party `to`. Paired with a matching ReceiveFrom on
// the other side; both calls consume the same round.
func (s *Session) SendTo(ctx context.Context, to int, payload []byte) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	round := s.round.Add(1)
	return s.sendFrame(ctx, to, s.seal(round, payload))
}

// ReceiveFrom receives the payload a matching SendTo produced on party
// `from`.
func (s *Session) ReceiveFrom(ctx context.Context, from int) ([]byte, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	round := s.round.Add(1)
	return s.recvFrame(ctx, round, from, s.seal(round, nil))
}

// Broadcast sends payload to every other party and returns all parties'
// payloads indexed by party id, this party's own at its own index.
func (s *Session) Broadcast(ctx context.Context, payload []byte) ([][]byte, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	round := s.round.Add(1)
	own := s.seal(round, payload)

	for to := 0; to < s.cfg.N; to++ {
		if to == s.cfg.ID {
			continue
		}
		if err := s.sendFrame(ctx, to, own); err != nil {
			return nil, fmt.Errorf("broadcast round %d: %w", round, err)
		}
	}
	out := make([][]byte, s.cfg.N)
	out[s.cfg.ID] = payload
	for from := 0; from < s.cfg.N; from++ {
		if from == s.cfg.ID {
			continue
		}
		p, err := s.recvFrame(ctx, round, from, own)
		if err != nil {
			return nil, fmt.Errorf("broadcast round %d: %w", round, err)
		}
		out[from] = p
	}
	return out, nil
}

// AllGather is Broadcast under its collective-operations name: every party
// contributes one payload and receives all of them in party order.
func (s *Session) AllGather(ctx context.Context, payload []byte) ([][]byte, error) {
	return s.Broadcast(ctx, payload)
}

// GatherTo sends payload to the king. At the king it returns all parties'
// payloads indexed by party id; at every other party it returns nil.
func (s *Session) GatherTo(ctx context.Context, payload []byte) ([][]byte, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	round := s.round.Add(1)
	own := s.seal(round, payload)

	if !s.IsKing() {
		if err := s.sendFrame(ctx, s.cfg.King, own); err != nil {
			return nil, fmt.Errorf("gather round %d: %w", round, err)
		}
		return nil, nil
	}
	out := make([][]byte, s.cfg.N)
	out[s.cfg.ID] = payload
	for from := 0; from < s.cfg.N; from++ {
		if from == s.cfg.ID {
			continue
		}
		p, err := s.recvFrame(ctx, round, from, own)
		if err != nil {
			return nil, fmt.Errorf("gather round %d: %w", round, err)
		}
		out[from] = p
	}
	return out, nil
}

// ScatterFrom distributes per-party payloads from the king: the king passes
// the full slice indexed by party id and receives its own entry back, every
// other party passes nil and receives its entry.
func (s *Session) ScatterFrom(ctx context.Context, payloads [][]byte) ([]byte, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	round := s.round.Add(1)

	if s.IsKing() {
		if len(payloads) != s.cfg.N {
			return nil, fmt.Errorf("%w: scatter with %d payloads for %d parties", ErrConfigMismatch, len(payloads), s.cfg.N)
		}
		for to := 0; to < s.cfg.N; to++ {
			if to == s.cfg.ID {
				continue
			}
			if err := s.sendFrame(ctx, to, s.seal(round, payloads[to])); err != nil {
				return nil, fmt.Errorf("scatter round %d: %w", round, err)
			}
		}
		return payloads[s.cfg.ID], nil
	}
	p, err := s.recvFrame(ctx, round, s.cfg.King, s.seal(round, nil))
	if err != nil {
		return nil, fmt.Errorf("scatter round %d: %w", round, err)
	}
	return p, nil
}

// KingCompute is the gather/compute/scatter composite at the heart of the
// king pattern: every party contributes payload, the king alone runs f over
// the gathered slice and scatters f's per-party results. Workers pass a nil
// f. The two network rounds are tagged separately so a desync is pinned to
// the leg it happened on.
func (s *Session) KingCompute(ctx context.Context, payload []byte, f func(all [][]byte) ([][]byte, error)) ([]byte, error) {
	all, err := s.GatherTo(ctx, payload)
	if err != nil {
		return nil, err
	}
	var replies [][]byte
	if s.IsKing() {
		replies, err = f(all)
		if err != nil {
			return nil, fmt.Errorf("king compute: %w", err)
		}
		if len(replies) != s.cfg.N {
			return nil, fmt.Errorf("%w: king produced %d replies for %d parties", ErrConfigMismatch, len(replies), s.cfg.N)
		}
	}
	return s.ScatterFrom(ctx, replies)
}
