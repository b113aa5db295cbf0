// Package dmul implements multiplication of packed-shared vectors with the
// king pattern. Multiplying two shares locally yields a share of the product
// polynomial at doubled degree; the king collects the degree-doubled shares,
// reconstructs the underlying slot values, and deals fresh degree-one
// shares back out. One multiplication therefore costs a single
// gather/scatter round regardless of the packing factor.
//
// The king learns the reconstructed values, which is the semi-honest
// trade-off this engine makes throughout: masking the values before the
// gather would add a preprocessing phase without changing the communication
// pattern the engine exists to measure.
package dmul

import (
	"context"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/zkcollab/dzkp/logger"
	"github.com/zkcollab/dzkp/mpcnet"
	"github.com/zkcollab/dzkp/pss"
)

// Protocol binds sharing parameters to a network session. One Protocol value
// is used per party and drives that party's side of every collective call.
type Protocol struct {
	params *pss.Params
	sess   *mpcnet.Session
}

// New checks that the sharing parameters and the session agree on the party
// count.
func New(params *pss.Params, sess *mpcnet.Session) (*Protocol, error) {
	if params.N != sess.N() {
		return nil, fmt.Errorf("%w: sharing expects %d parties, session has %d", pss.ErrConfigMismatch, params.N, sess.N())
	}
	return &Protocol{params: params, sess: sess}, nil
}

// Params returns the sharing parameters the protocol runs under.
func (p *Protocol) Params() *pss.Params { return p.params }

// Session returns the underlying network session.
func (p *Protocol) Session() *mpcnet.Session { return p.sess }

// ReduceDegreeBatch turns a vector of degree-doubled shares into fresh
// degree-one shares of the same slot values. All parties must call it in the
// same round with vectors of the same length.
func (p *Protocol) ReduceDegreeBatch(ctx context.Context, shares []fr.Element) ([]fr.Element, error) {
	nbBlocks := len(shares)
	reply, err := p.sess.KingCompute(ctx, mpcnet.MarshalScalars(shares), func(all [][]byte) ([][]byte, error) {
		cols, err := p.decodeColumns(all, nbBlocks)
		if err != nil {
			return nil, err
		}
		fresh := make([][]fr.Element, p.params.N)
		for i := range fresh {
			fresh[i] = make([]fr.Element, nbBlocks)
		}
		ids := allIDs(p.params.N)
		for b := 0; b < nbBlocks; b++ {
			secrets, err := p.params.Reconstruct2(ids, cols[b])
			if err != nil {
				return nil, fmt.Errorf("block %d: %w", b, err)
			}
			dealt, err := p.params.ShareBlock(secrets)
			if err != nil {
				return nil, fmt.Errorf("block %d: %w", b, err)
			}
			for i := 0; i < p.params.N; i++ {
				fresh[i][b] = dealt[i]
			}
		}
		out := make([][]byte, p.params.N)
		for i := range out {
			out[i] = mpcnet.MarshalScalars(fresh[i])
		}
		return out, nil
	})
	if err != nil {
		return nil, fmt.Errorf("degree reduction: %w", err)
	}
	out, err := mpcnet.UnmarshalScalars(reply)
	if err != nil {
		return nil, fmt.Errorf("degree reduction: %w", err)
	}
	if len(out) != nbBlocks {
		return nil, fmt.Errorf("degree reduction: %w: king dealt %d blocks, expected %d", mpcnet.ErrSerialization, len(out), nbBlocks)
	}
	log := logger.Logger()
	log.Debug().Int("blocks", nbBlocks).Msg("degree reduction round complete")
	return out, nil
}

// ReduceDegree reduces a single degree-doubled share.
func (p *Protocol) ReduceDegree(ctx context.Context, share fr.Element) (fr.Element, error) {
	out, err := p.ReduceDegreeBatch(ctx, []fr.Element{share})
	if err != nil {
		return fr.Element{}, err
	}
	return out[0], nil
}

// MulBatch multiplies two shared vectors slot-wise: a local product followed
// by one degree reduction round.
func (p *Protocol) MulBatch(ctx context.Context, a, b []fr.Element) ([]fr.Element, error) {
	if len(a) != len(b) {
		return nil, fmt.Errorf("%w: multiplying %d blocks by %d", pss.ErrConfigMismatch, len(a), len(b))
	}
	prod := make([]fr.Element, len(a))
	for i := range prod {
		prod[i].Mul(&a[i], &b[i])
	}
	return p.ReduceDegreeBatch(ctx, prod)
}

// Mul multiplies two single shares.
func (p *Protocol) Mul(ctx context.Context, a, b fr.Element) (fr.Element, error) {
	out, err := p.MulBatch(ctx, []fr.Element{a}, []fr.Element{b})
	if err != nil {
		return fr.Element{}, err
	}
	return out[0], nil
}

// UnpackBatch converts packed shares into their per-slot values: the king
// reconstructs each block and sends all parties the slot values themselves,
// the constant sharing of each slot. The result is indexed block-major,
// len(shares)*l values. It is the bridge the tail of the sumcheck uses once
// fewer variables remain than the packing factor covers.
func (p *Protocol) UnpackBatch(ctx context.Context, shares []fr.Element) ([]fr.Element, error) {
	nbBlocks := len(shares)
	reply, err := p.sess.KingCompute(ctx, mpcnet.MarshalScalars(shares), func(all [][]byte) ([][]byte, error) {
		cols, err := p.decodeColumns(all, nbBlocks)
		if err != nil {
			return nil, err
		}
		flat := make([]fr.Element, 0, nbBlocks*p.params.L)
		ids := allIDs(p.params.N)
		for b := 0; b < nbBlocks; b++ {
			secrets, err := p.params.Reconstruct(ids, cols[b])
			if err != nil {
				return nil, fmt.Errorf("block %d: %w", b, err)
			}
			flat = append(flat, secrets...)
		}
		payload := mpcnet.MarshalScalars(flat)
		out := make([][]byte, p.params.N)
		for i := range out {
			out[i] = payload
		}
		return out, nil
	})
	if err != nil {
		return nil, fmt.Errorf("unpack: %w", err)
	}
	out, err := mpcnet.UnmarshalScalars(reply)
	if err != nil {
		return nil, fmt.Errorf("unpack: %w", err)
	}
	if len(out) != nbBlocks*p.params.L {
		return nil, fmt.Errorf("unpack: %w: king sent %d values, expected %d", mpcnet.ErrSerialization, len(out), nbBlocks*p.params.L)
	}
	return out, nil
}

// OpenBatch publicly reconstructs a vector of degree-one shared blocks.
// Every party broadcasts its share vector and locally interpolates each
// block; the result is indexed block-major, len(shares)*l values, identical
// at every party.
func (p *Protocol) OpenBatch(ctx context.Context, shares []fr.Element) ([]fr.Element, error) {
	return p.open(ctx, shares, p.params.Reconstruct)
}

// OpenBatch2 publicly reconstructs degree-doubled shares.
func (p *Protocol) OpenBatch2(ctx context.Context, shares []fr.Element) ([]fr.Element, error) {
	return p.open(ctx, shares, p.params.Reconstruct2)
}

func (p *Protocol) open(ctx context.Context, shares []fr.Element, reconstruct func([]int, []fr.Element) ([]fr.Element, error)) ([]fr.Element, error) {
	nbBlocks := len(shares)
	all, err := p.sess.Broadcast(ctx, mpcnet.MarshalScalars(shares))
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	cols, err := p.decodeColumns(all, nbBlocks)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	ids := allIDs(p.params.N)
	flat := make([]fr.Element, 0, nbBlocks*p.params.L)
	for b := 0; b < nbBlocks; b++ {
		secrets, err := reconstruct(ids, cols[b])
		if err != nil {
			return nil, fmt.Errorf("open block %d: %w", b, err)
		}
		flat = append(flat, secrets...)
	}
	return flat, nil
}

// decodeColumns turns per-party payloads into per-block share columns:
// cols[b][i] is party i's share of block b.
func (p *Protocol) decodeColumns(all [][]byte, nbBlocks int) ([][]fr.Element, error) {
	cols := make([][]fr.Element, nbBlocks)
	for b := range cols {
		cols[b] = make([]fr.Element, p.params.N)
	}
	for i, payload := range all {
		row, err := mpcnet.UnmarshalScalars(payload)
		if err != nil {
			return nil, fmt.Errorf("party %d: %w", i, err)
		}
		if len(row) != nbBlocks {
			return nil, fmt.Errorf("%w: party %d sent %d blocks, expected %d", mpcnet.ErrSerialization, i, len(row), nbBlocks)
		}
		for b := 0; b < nbBlocks; b++ {
			cols[b][i] = row[b]
		}
	}
	return cols, nil
}

func allIDs(n int) []int {
	ids := make([]int, n)
	for i := range ids {
		ids[i] = i
	}
	return ids
}
