// Package dmsm computes multi-scalar multiplications over bn254 G1 when
// the scalar vector, and possibly the base vector, is packed-shared.
//
// Bases are "packed in the exponent": party i combines each block of l
// public bases with its row of the packing matrix, so its local MSM partial
// is a degree-doubled share of the block's slot-wise scalar-base pairing.
// One interpolation in the exponent, a single MultiExp over the gathered
// partials, recovers the full MSM. With public bases the partials are simply
// broadcast and every party recombines; with shared bases the partials
// travel through the king, who recombines and returns the public result.
package dmsm

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/zkcollab/dzkp/internal/parallel"
	"github.com/zkcollab/dzkp/mpcnet"
	"github.com/zkcollab/dzkp/pss"
)

// Protocol binds sharing parameters to a session for MSM collectives.
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

// Params returns the sharing parameters.
func (p *Protocol) Params() *pss.Params { return p.params }

// PackBases combines each block of l public bases with party id's packing
// row. The result pairs index-for-index with that party's scalar share
// vector. Deterministic, so every party can derive any party's row.
func (p *Protocol) PackBases(id int, bases []bn254.G1Affine) ([]bn254.G1Affine, error) {
	if len(bases)%p.params.L != 0 {
		return nil, fmt.Errorf("%w: %d bases do not divide into blocks of %d", pss.ErrConfigMismatch, len(bases), p.params.L)
	}
	if id < 0 || id >= p.params.N {
		return nil, fmt.Errorf("%w: party id %d out of range", pss.ErrConfigMismatch, id)
	}
	row := p.params.PackRow(id)
	nbBlocks := len(bases) / p.params.L
	jacs := make([]bn254.G1Jac, nbBlocks)
	var mu sync.Mutex
	var outerErr error
	parallel.Execute(nbBlocks, func(start, end int) {
		for b := start; b < end; b++ {
			if _, err := jacs[b].MultiExp(bases[b*p.params.L:(b+1)*p.params.L], row, ecc.MultiExpConfig{NbTasks: 1}); err != nil {
				mu.Lock()
				outerErr = err
				mu.Unlock()
			}
		}
	})
	if outerErr != nil {
		return nil, outerErr
	}
	return bn254.BatchJacobianToAffineG1(jacs), nil
}

// MSMPublicBases computes the MSM of public bases against packed-shared
// scalars. packedBases is this party's PackBases row; scalars is its share
// vector, one share per block. The partials are broadcast and every party
// recombines, so the result is public and identical everywhere. No king
// round is needed.
func (p *Protocol) MSMPublicBases(ctx context.Context, packedBases []bn254.G1Affine, scalars []fr.Element) (bn254.G1Affine, error) {
	var zero bn254.G1Affine
	partial, err := p.partial(packedBases, scalars)
	if err != nil {
		return zero, err
	}
	all, err := p.sess.Broadcast(ctx, mpcnet.MarshalPoints([]bn254.G1Affine{partial}))
	if err != nil {
		return zero, fmt.Errorf("msm: %w", err)
	}
	partials, err := decodePartials(all)
	if err != nil {
		return zero, fmt.Errorf("msm: %w", err)
	}
	return p.combine(partials)
}

// MSMSharedBases computes the MSM when the bases themselves are shared
// group elements: baseShares pairs index-for-index with the scalar share
// vector. The degree-doubled partials are gathered at the king, who
// recombines and scatters the public result.
func (p *Protocol) MSMSharedBases(ctx context.Context, baseShares []bn254.G1Affine, scalars []fr.Element) (bn254.G1Affine, error) {
	var zero bn254.G1Affine
	partial, err := p.partial(baseShares, scalars)
	if err != nil {
		return zero, err
	}
	reply, err := p.sess.KingCompute(ctx, mpcnet.MarshalPoints([]bn254.G1Affine{partial}), func(all [][]byte) ([][]byte, error) {
		partials, err := decodePartials(all)
		if err != nil {
			return nil, err
		}
		combined, err := p.combine(partials)
		if err != nil {
			return nil, err
		}
		payload := mpcnet.MarshalPoints([]bn254.G1Affine{combined})
		out := make([][]byte, p.params.N)
		for i := range out {
			out[i] = payload
		}
		return out, nil
	})
	if err != nil {
		return zero, fmt.Errorf("msm: %w", err)
	}
	points, err := mpcnet.UnmarshalPoints(reply)
	if err != nil || len(points) != 1 {
		return zero, fmt.Errorf("msm: %w: bad king reply", mpcnet.ErrSerialization)
	}
	return points[0], nil
}

// partial is this party's local MSM over its packed bases and scalar
// shares.
func (p *Protocol) partial(bases []bn254.G1Affine, scalars []fr.Element) (bn254.G1Affine, error) {
	var out bn254.G1Affine
	if len(bases) != len(scalars) {
		return out, fmt.Errorf("%w: %d bases against %d scalar blocks", pss.ErrConfigMismatch, len(bases), len(scalars))
	}
	_, err := out.MultiExp(bases, scalars, ecc.MultiExpConfig{})
	return out, err
}

// combine interpolates the slot-sum in the exponent from all parties'
// degree-doubled partials.
func (p *Protocol) combine(partials []bn254.G1Affine) (bn254.G1Affine, error) {
	var out bn254.G1Affine
	ids := allIDs(p.params.N)
	weights, err := p.params.SumWeights2(ids)
	if err != nil {
		return out, err
	}
	_, err = out.MultiExp(partials, weights, ecc.MultiExpConfig{})
	return out, err
}

// OpenG1 publicly reconstructs the l slot points of a degree-one shared
// group element: shares are broadcast and each slot is interpolated in the
// exponent.
func (p *Protocol) OpenG1(ctx context.Context, share bn254.G1Affine) ([]bn254.G1Affine, error) {
	all, err := p.sess.Broadcast(ctx, mpcnet.MarshalPoints([]bn254.G1Affine{share}))
	if err != nil {
		return nil, fmt.Errorf("open point: %w", err)
	}
	shares, err := decodePartials(all)
	if err != nil {
		return nil, fmt.Errorf("open point: %w", err)
	}
	weights, err := p.params.SecretWeights(allIDs(p.params.N))
	if err != nil {
		return nil, err
	}
	out := make([]bn254.G1Affine, p.params.L)
	for j := range out {
		if _, err := out[j].MultiExp(shares, weights[j], ecc.MultiExpConfig{}); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// MSMPlain is the undistributed reference: a single MultiExp over public
// bases and scalars.
func MSMPlain(bases []bn254.G1Affine, scalars []fr.Element) (bn254.G1Affine, error) {
	var out bn254.G1Affine
	_, err := out.MultiExp(bases, scalars, ecc.MultiExpConfig{})
	return out, err
}

// ShareBases packs a public base vector in the exponent for every party and
// additionally hides each block behind fresh random masks, producing
// degree-one group-element shares. Row i goes to party i.
func (p *Protocol) ShareBases(bases []bn254.G1Affine) ([][]bn254.G1Affine, error) {
	if len(bases)%p.params.L != 0 {
		return nil, fmt.Errorf("%w: %d bases do not divide into blocks of %d", pss.ErrConfigMismatch, len(bases), p.params.L)
	}
	nbBlocks := len(bases) / p.params.L
	_, _, g1, _ := bn254.Generators()

	// fresh masks per block, hidden behind the generator
	masks := make([]bn254.G1Affine, nbBlocks*p.params.T)
	var k fr.Element
	var kBig big.Int
	for i := range masks {
		if _, err := k.SetRandom(); err != nil {
			return nil, err
		}
		masks[i].ScalarMultiplication(&g1, k.BigInt(&kBig))
	}

	out := make([][]bn254.G1Affine, p.params.N)
	for id := 0; id < p.params.N; id++ {
		packed, err := p.PackBases(id, bases)
		if err != nil {
			return nil, err
		}
		maskRow := p.params.MaskRow(id)
		if len(maskRow) == 0 {
			out[id] = packed
			continue
		}
		var m, acc bn254.G1Jac
		for b := 0; b < nbBlocks; b++ {
			if _, err := m.MultiExp(masks[b*p.params.T:(b+1)*p.params.T], maskRow, ecc.MultiExpConfig{NbTasks: 1}); err != nil {
				return nil, err
			}
			acc.FromAffine(&packed[b])
			acc.AddAssign(&m)
			packed[b].FromJacobian(&acc)
		}
		out[id] = packed
	}
	return out, nil
}

func decodePartials(all [][]byte) ([]bn254.G1Affine, error) {
	out := make([]bn254.G1Affine, len(all))
	for i, payload := range all {
		points, err := mpcnet.UnmarshalPoints(payload)
		if err != nil {
			return nil, fmt.Errorf("party %d: %w", i, err)
		}
		if len(points) != 1 {
			return nil, fmt.Errorf("%w: party %d sent %d points, expected 1", mpcnet.ErrSerialization, i, len(points))
		}
		out[i] = points[0]
	}
	return out, nil
}

func allIDs(n int) []int {
	ids := make([]int, n)
	for i := range ids {
		ids[i] = i
	}
	return ids
}
