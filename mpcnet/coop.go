package mpcnet

import (
	"context"
	"sync"
	"time"
)

// coopSched serializes party execution onto a single logical thread. A party
// holds the baton while computing and hands it over whenever it blocks on a
// receive, so at most one party makes progress at any instant. The time each
// party spends holding the baton is its busy clock, which approximates the
// per-party wall time of a real deployment without running n machines.
type coopSched struct {
	baton chan struct{}

	mu    sync.Mutex
	since []time.Time
	busy  []time.Duration
}

func newCoopSched(n int) *coopSched {
	s := &coopSched{
		baton: make(chan struct{}, 1),
		since: make([]time.Time, n),
		busy:  make([]time.Duration, n),
	}
	s.baton <- struct{}{}
	return s
}

func (s *coopSched) acquire(id int) {
	<-s.baton
	s.mu.Lock()
	s.since[id] = time.Now()
	s.mu.Unlock()
}

func (s *coopSched) release(id int) {
	s.mu.Lock()
	s.busy[id] += time.Since(s.since[id])
	s.mu.Unlock()
	s.baton <- struct{}{}
}

// CoopClock reports per-party busy time for a cooperative run.
type CoopClock struct {
	sched *coopSched
}

// BusyTime returns the total time party id held the execution baton.
func (c *CoopClock) BusyTime(id int) time.Duration {
	c.sched.mu.Lock()
	defer c.sched.mu.Unlock()
	return c.sched.busy[id]
}

// MaxBusyTime returns the largest per-party busy time, the cooperative
// run's estimate of protocol latency.
func (c *CoopClock) MaxBusyTime() time.Duration {
	c.sched.mu.Lock()
	defer c.sched.mu.Unlock()
	var max time.Duration
	for _, d := range c.sched.busy {
		if d > max {
			max = d
		}
	}
	return max
}

// NewCooperative builds n sessions sharing one execution baton. Drive them
// with RunCooperative rather than RunParties so the baton is held outside
// protocol calls too.
func NewCooperative(cfg Config) ([]*Session, *CoopClock, error) {
	if err := cfg.validate(); err != nil {
		return nil, nil, err
	}
	mesh := newMesh(cfg.N)
	sched := newCoopSched(cfg.N)
	sessions := make([]*Session, cfg.N)
	for i := 0; i < cfg.N; i++ {
		c := cfg
		c.ID = i
		sessions[i] = newSession(c, &inprocTransport{id: i, mesh: mesh, kind: ModeCoop, clock: sched})
	}
	return sessions, &CoopClock{sched: sched}, nil
}

// RunCooperative runs f for every session under the baton discipline: each
// party computes only while holding the baton and yields it at every
// blocking receive.
func RunCooperative(ctx context.Context, sessions []*Session, f func(ctx context.Context, s *Session) error) error {
	return RunParties(ctx, sessions, func(ctx context.Context, s *Session) error {
		tr := s.tr.(*inprocTransport)
		tr.clock.acquire(s.ID())
		defer tr.clock.release(s.ID())
		return f(ctx, s)
	})
}
