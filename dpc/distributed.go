package dpc

import (
	"context"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/zkcollab/dzkp/dmsm"
	"github.com/zkcollab/dzkp/dmul"
	"github.com/zkcollab/dzkp/pss"
)

// Distributed commits to and opens multilinear polynomials whose evaluation
// tables are packed-shared. Group operations run as distributed MSMs over
// packed SRS bases; the scalar folds of an opening are local on shares
// while full blocks remain, and continue on public values after the last
// block is unpacked through the king.
type Distributed struct {
	srs *SRS
	msm *dmsm.Protocol
	mul *dmul.Protocol

	// packedG1[i] is this party's exponent-packed row of srs.G1[i], built
	// lazily per level
	packedG1 [][]bn254.G1Affine
}

// NewDistributed wires an SRS to one party's protocol handles. Both
// protocols must run over the same session. The table must span at least
// one full packed block.
func NewDistributed(srs *SRS, msm *dmsm.Protocol, mul *dmul.Protocol) (*Distributed, error) {
	l := msm.Params().L
	if 1<<srs.Vars < l {
		return nil, fmt.Errorf("%w: %d variables cannot hold a packing factor of %d", pss.ErrConfigMismatch, srs.Vars, l)
	}
	return &Distributed{
		srs:      srs,
		msm:      msm,
		mul:      mul,
		packedG1: make([][]bn254.G1Affine, len(srs.G1)),
	}, nil
}

// SRS returns the reference string in use.
func (d *Distributed) SRS() *SRS { return d.srs }

func (d *Distributed) packedLevel(level int) ([]bn254.G1Affine, error) {
	if d.packedG1[level] == nil {
		packed, err := d.msm.PackBases(d.mul.Session().ID(), d.srs.G1[level])
		if err != nil {
			return nil, err
		}
		d.packedG1[level] = packed
	}
	return d.packedG1[level], nil
}

// Commit produces the public commitment from this party's share vector of
// the evaluation table, one share per block, block-major. All parties
// obtain the same commitment.
func (d *Distributed) Commit(ctx context.Context, shares []fr.Element) (bn254.G1Affine, error) {
	var c bn254.G1Affine
	if err := d.checkBlocks(shares); err != nil {
		return c, err
	}
	bases, err := d.packedLevel(0)
	if err != nil {
		return c, err
	}
	return d.msm.MSMPublicBases(ctx, bases, shares)
}

// Open produces the public opening proof at point from this party's share
// vector. Each witness is one distributed MSM; once the fold reaches a
// single block, the table is unpacked and the remaining witnesses are
// computed locally.
func (d *Distributed) Open(ctx context.Context, shares []fr.Element, point []fr.Element) (*Proof, error) {
	if err := d.checkBlocks(shares); err != nil {
		return nil, err
	}
	if len(point) != d.srs.Vars {
		return nil, fmt.Errorf("%w: %d coordinates for %d variables", pss.ErrConfigMismatch, len(point), d.srs.Vars)
	}

	proof := &Proof{Pis: make([]bn254.G1Affine, d.srs.Vars)}
	table := append([]fr.Element(nil), shares...)
	level := 0

	// block phase: quotients are share vectors, witnesses are distributed
	// MSMs over the packed SRS level
	for len(table) > 1 {
		q, folded := foldQuotient(table, point[level])
		bases, err := d.packedLevel(level + 1)
		if err != nil {
			return nil, err
		}
		if proof.Pis[level], err = d.msm.MSMPublicBases(ctx, bases, q); err != nil {
			return nil, fmt.Errorf("witness %d: %w", level, err)
		}
		table = folded
		level++
	}

	// unpack the last block and finish on public values
	public, err := d.mul.UnpackBatch(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("witness %d: %w", level, err)
	}
	for len(public) > 1 {
		q, folded := foldQuotient(public, point[level])
		if proof.Pis[level], err = dmsm.MSMPlain(d.srs.G1[level+1], q); err != nil {
			return nil, fmt.Errorf("witness %d: %w", level, err)
		}
		public = folded
		level++
	}
	proof.Value = public[0]
	return proof, nil
}

func (d *Distributed) checkBlocks(shares []fr.Element) error {
	l := d.mul.Params().L
	if len(shares)*l != 1<<d.srs.Vars {
		return fmt.Errorf("%w: %d blocks of %d slots for %d variables", pss.ErrConfigMismatch, len(shares), l, d.srs.Vars)
	}
	return nil
}
