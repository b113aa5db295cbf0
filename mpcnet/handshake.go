package mpcnet

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"

	"github.com/bits-and-blooms/bitset"
	"golang.org/x/crypto/sha3"
)

// ConfigDigest fingerprints the session shape plus the caller's sharing
// parameters. Parties compare digests before running a protocol so a
// mismatch surfaces as a clean error instead of garbage algebra.
func ConfigDigest(cfg Config, extra [32]byte) [32]byte {
	h := sha3.New256()
	h.Write([]byte("dzkp/session"))
	var buf [8]byte
	for _, v := range []int{cfg.N, cfg.King} {
		binary.BigEndian.PutUint64(buf[:], uint64(v))
		h.Write(buf[:])
	}
	h.Write(extra[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// VerifyConfig broadcasts this party's digest and checks every peer sent the
// same one. On mismatch the error names the disagreeing parties.
func (s *Session) VerifyConfig(ctx context.Context, extra [32]byte) error {
	digest := ConfigDigest(s.cfg, extra)
	all, err := s.Broadcast(ctx, digest[:])
	if err != nil {
		return fmt.Errorf("config verification: %w", err)
	}
	bad := bitset.New(uint(s.cfg.N))
	for i, d := range all {
		if !bytes.Equal(d, digest[:]) {
			bad.Set(uint(i))
		}
	}
	if bad.Any() {
		_, ids := bad.NextSetMany(0, make([]uint, bad.Count()))
		return fmt.Errorf("%w: parties %v disagree on parameters", ErrConfigMismatch, ids)
	}
	return nil
}
