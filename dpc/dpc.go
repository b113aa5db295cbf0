// Package dpc implements a multilinear polynomial commitment over bn254 in
// the PST style: a commitment is the polynomial evaluated at a secret point
// in the exponent, an opening provides one quotient witness per variable,
// and verification is a product of pairings. Both committing and opening
// come in a distributed flavor where the evaluation table is packed-shared
// and the group operations run as distributed MSMs.
package dpc

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/zkcollab/dzkp/pss"
)

// ErrVerify is returned when an opening proof does not check against the
// commitment.
var ErrVerify = errors.New("dpc: opening proof verification failed")

// SRS is the structured reference string for multilinear polynomials over a
// fixed number of variables. G1 holds one base table per folding level,
// largest first: G1[0] has 2^vars entries and commits full tables, G1[i+1]
// commits the quotient produced when variable i is folded away. G2 carries
// the per-variable trapdoor images the verifier pairs against.
type SRS struct {
	Vars int
	G1   [][]bn254.G1Affine
	G2   []bn254.G2Affine
	G    bn254.G1Affine
	H    bn254.G2Affine
}

// Setup samples a fresh trapdoor and builds the SRS. The trapdoor only
// lives on the stack of this function; for production use the tables would
// come from a ceremony instead.
func Setup(vars int) (*SRS, error) {
	if vars < 1 {
		return nil, fmt.Errorf("%w: need at least one variable", pss.ErrConfigMismatch)
	}
	trapdoor := make([]fr.Element, vars)
	for i := range trapdoor {
		if _, err := trapdoor[i].SetRandom(); err != nil {
			return nil, err
		}
	}
	return setup(vars, trapdoor)
}

func setup(vars int, trapdoor []fr.Element) (*SRS, error) {
	_, _, g1, g2 := bn254.Generators()
	srs := &SRS{Vars: vars, G: g1, H: g2}

	// build base tables bottom-up: level vars is [g], level i doubles level
	// i+1 with the eq weights of variable i, high half scaled by s_i.
	srs.G1 = make([][]bn254.G1Affine, vars+1)
	srs.G1[vars] = []bn254.G1Affine{g1}
	var sBig, oneMinusBig big.Int
	var oneMinus fr.Element
	for i := vars - 1; i >= 0; i-- {
		below := srs.G1[i+1]
		level := make([]bn254.G1Jac, 2*len(below))
		oneMinus.SetOne()
		oneMinus.Sub(&oneMinus, &trapdoor[i])
		trapdoor[i].BigInt(&sBig)
		oneMinus.BigInt(&oneMinusBig)
		half := len(below)
		for y := 0; y < half; y++ {
			var base bn254.G1Jac
			base.FromAffine(&below[y])
			level[y].ScalarMultiplication(&base, &oneMinusBig)
			level[y+half].ScalarMultiplication(&base, &sBig)
		}
		srs.G1[i] = bn254.BatchJacobianToAffineG1(level)
	}

	srs.G2 = make([]bn254.G2Affine, vars)
	for i := range srs.G2 {
		srs.G2[i].ScalarMultiplication(&g2, trapdoor[i].BigInt(&sBig))
	}
	return srs, nil
}

// Proof opens a committed multilinear polynomial at one point: the claimed
// value and one quotient witness per variable, top variable first.
type Proof struct {
	Value fr.Element
	Pis   []bn254.G1Affine
}

// Commit commits to a multilinear polynomial given by its 2^vars
// evaluations, top variable on the high index bits.
func (srs *SRS) Commit(evals []fr.Element) (bn254.G1Affine, error) {
	var c bn254.G1Affine
	if len(evals) != 1<<srs.Vars {
		return c, fmt.Errorf("%w: %d evaluations for %d variables", pss.ErrConfigMismatch, len(evals), srs.Vars)
	}
	_, err := c.MultiExp(srs.G1[0], evals, ecc.MultiExpConfig{})
	return c, err
}

// Open evaluates the polynomial at point and produces the quotient
// witnesses, folding one variable per level.
func (srs *SRS) Open(evals []fr.Element, point []fr.Element) (*Proof, error) {
	if len(evals) != 1<<srs.Vars || len(point) != srs.Vars {
		return nil, fmt.Errorf("%w: %d evaluations, %d coordinates for %d variables", pss.ErrConfigMismatch, len(evals), len(point), srs.Vars)
	}
	table := append([]fr.Element(nil), evals...)
	proof := &Proof{Pis: make([]bn254.G1Affine, srs.Vars)}
	for i := 0; i < srs.Vars; i++ {
		q, folded := foldQuotient(table, point[i])
		if _, err := proof.Pis[i].MultiExp(srs.G1[i+1], q, ecc.MultiExpConfig{}); err != nil {
			return nil, err
		}
		table = folded
	}
	proof.Value = table[0]
	return proof, nil
}

// Verify checks an opening against a commitment:
//
//	e(C - v·g, h) == Π_i e(π_i, h^{s_i} - u_i·h)
func (srs *SRS) Verify(c bn254.G1Affine, point []fr.Element, proof *Proof) error {
	if len(point) != srs.Vars || len(proof.Pis) != srs.Vars {
		return fmt.Errorf("%w: %d coordinates and %d witnesses for %d variables", pss.ErrConfigMismatch, len(point), len(proof.Pis), srs.Vars)
	}

	// left side, negated so the whole product must be one
	var vg bn254.G1Affine
	var vBig big.Int
	vg.ScalarMultiplication(&srs.G, proof.Value.BigInt(&vBig))
	var lhsJac, vgJac bn254.G1Jac
	lhsJac.FromAffine(&c)
	vgJac.FromAffine(&vg)
	lhsJac.SubAssign(&vgJac)
	lhsJac.Neg(&lhsJac)
	var lhs bn254.G1Affine
	lhs.FromJacobian(&lhsJac)

	g1s := make([]bn254.G1Affine, 0, srs.Vars+1)
	g2s := make([]bn254.G2Affine, 0, srs.Vars+1)
	g1s = append(g1s, lhs)
	g2s = append(g2s, srs.H)
	var uh, d bn254.G2Affine
	var dJac, uhJac bn254.G2Jac
	var uBig big.Int
	for i := 0; i < srs.Vars; i++ {
		uh.ScalarMultiplication(&srs.H, point[i].BigInt(&uBig))
		dJac.FromAffine(&srs.G2[i])
		uhJac.FromAffine(&uh)
		dJac.SubAssign(&uhJac)
		d.FromJacobian(&dJac)
		g1s = append(g1s, proof.Pis[i])
		g2s = append(g2s, d)
	}
	ok, err := bn254.PairingCheck(g1s, g2s)
	if err != nil {
		return err
	}
	if !ok {
		return ErrVerify
	}
	return nil
}

// foldQuotient splits one variable off a multilinear table: q is the
// quotient by (X - u) and folded the table with the variable fixed to u.
func foldQuotient(table []fr.Element, u fr.Element) (q, folded []fr.Element) {
	half := len(table) / 2
	q = make([]fr.Element, half)
	folded = make([]fr.Element, half)
	var d fr.Element
	for y := 0; y < half; y++ {
		q[y].Sub(&table[y+half], &table[y])
		d.Mul(&q[y], &u)
		folded[y].Add(&table[y], &d)
	}
	return q, folded
}
