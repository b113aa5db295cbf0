package mpcnet

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"
)

const (
	dialAttempts = 30
	dialInterval = time.Second

	// maxFrameSize rejects length prefixes that cannot correspond to a real
	// protocol message, before any allocation happens.
	maxFrameSize = 1 << 30
)

type tcpFrame struct {
	data []byte
	err  error
}

type tcpTransport struct {
	id     int
	conns  []net.Conn
	inbox  []chan tcpFrame
	closed chan struct{}
}

func (t *tcpTransport) mode() Mode { return ModeTCP }

func (t *tcpTransport) send(ctx context.Context, to int, frame []byte) error {
	conn := t.conns[to]
	if conn == nil {
		return fmt.Errorf("%w: no connection to party %d", ErrConnectionFailure, to)
	}
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetWriteDeadline(deadline); err != nil {
			return err
		}
		defer conn.SetWriteDeadline(time.Time{})
	}
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(frame)))
	if _, err := conn.Write(prefix[:]); err != nil {
		return err
	}
	_, err := conn.Write(frame)
	return err
}

func (t *tcpTransport) recv(ctx context.Context, from int, _ []byte) ([]byte, error) {
	select {
	case f, ok := <-t.inbox[from]:
		if !ok {
			return nil, fmt.Errorf("%w: party %d disconnected", ErrConnectionFailure, from)
		}
		if f.err != nil {
			return nil, f.err
		}
		return f.data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.closed:
		return nil, fmt.Errorf("%w: session closed", ErrConnectionFailure)
	}
}

func (t *tcpTransport) close() error {
	select {
	case <-t.closed:
		return nil
	default:
	}
	close(t.closed)
	var first error
	for _, conn := range t.conns {
		if conn == nil {
			continue
		}
		if err := conn.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (t *tcpTransport) readLoop(from int) {
	conn := t.conns[from]
	for {
		var prefix [4]byte
		if _, err := io.ReadFull(conn, prefix[:]); err != nil {
			t.deliverErr(from, err)
			return
		}
		size := binary.BigEndian.Uint32(prefix[:])
		if size > maxFrameSize {
			t.deliverErr(from, fmt.Errorf("%w: party %d announced a %d byte frame", ErrSerialization, from, size))
			return
		}
		buf := make([]byte, size)
		if _, err := io.ReadFull(conn, buf); err != nil {
			t.deliverErr(from, err)
			return
		}
		select {
		case t.inbox[from] <- tcpFrame{data: buf}:
		case <-t.closed:
			return
		}
	}
}

func (t *tcpTransport) deliverErr(from int, err error) {
	select {
	case t.inbox[from] <- tcpFrame{err: err}:
	case <-t.closed:
	}
}

// NewTCP connects this party to its peers over real sockets. peers[i] is
// party i's address; peers[cfg.ID] is this party's listen address. The
// topology avoids dial races: each party dials every higher id and accepts
// from every lower id, identifying itself with a 4-byte id header. Dials are
// retried so parties may start in any order. NewTCP returns once the full
// mesh is up, which doubles as the genesis barrier.
func NewTCP(ctx context.Context, cfg Config, peers []string) (*Session, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if len(peers) != cfg.N {
		return nil, fmt.Errorf("%w: %d peer addresses for %d parties", ErrConfigMismatch, len(peers), cfg.N)
	}

	t := &tcpTransport{
		id:     cfg.ID,
		conns:  make([]net.Conn, cfg.N),
		inbox:  make([]chan tcpFrame, cfg.N),
		closed: make(chan struct{}),
	}
	for i := range t.inbox {
		t.inbox[i] = make(chan tcpFrame, mailboxDepth)
	}

	var listener net.Listener
	if cfg.ID > 0 {
		var err error
		listener, err = new(net.ListenConfig).Listen(ctx, "tcp", peers[cfg.ID])
		if err != nil {
			return nil, fmt.Errorf("%w: listen on %s: %v", ErrConnectionFailure, peers[cfg.ID], err)
		}
		defer listener.Close()
	}

	fail := func(err error) (*Session, error) {
		t.close()
		return nil, err
	}

	// dial every higher id, announcing our own.
	for to := cfg.ID + 1; to < cfg.N; to++ {
		conn, err := dialRetry(ctx, peers[to])
		if err != nil {
			return fail(fmt.Errorf("%w: dial party %d at %s: %v", ErrConnectionFailure, to, peers[to], err))
		}
		var hello [4]byte
		binary.BigEndian.PutUint32(hello[:], uint32(cfg.ID))
		if _, err := conn.Write(hello[:]); err != nil {
			conn.Close()
			return fail(fmt.Errorf("%w: greet party %d: %v", ErrConnectionFailure, to, err))
		}
		t.conns[to] = conn
	}

	// accept every lower id.
	for remaining := cfg.ID; remaining > 0; remaining-- {
		conn, err := listener.Accept()
		if err != nil {
			return fail(fmt.Errorf("%w: accept: %v", ErrConnectionFailure, err))
		}
		var hello [4]byte
		if _, err := io.ReadFull(conn, hello[:]); err != nil {
			conn.Close()
			return fail(fmt.Errorf("%w: read peer id: %v", ErrConnectionFailure, err))
		}
		from := int(binary.BigEndian.Uint32(hello[:]))
		if from < 0 || from >= cfg.ID || t.conns[from] != nil {
			conn.Close()
			return fail(fmt.Errorf("%w: unexpected peer id %d", ErrConnectionFailure, from))
		}
		t.conns[from] = conn
	}

	for peer := 0; peer < cfg.N; peer++ {
		if peer == cfg.ID {
			continue
		}
		go t.readLoop(peer)
	}

	s := newSession(cfg, t)
	s.log.Debug().Int("parties", cfg.N).Msg("tcp mesh established")
	return s, nil
}

func dialRetry(ctx context.Context, addr string) (net.Conn, error) {
	var dialer net.Dialer
	var lastErr error
	for attempt := 0; attempt < dialAttempts; attempt++ {
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		select {
		case <-time.After(dialInterval):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}
