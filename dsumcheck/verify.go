package dsumcheck

import (
	"crypto/sha256"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	fiatshamir "github.com/consensys/gnark-crypto/fiat-shamir"

	"github.com/zkcollab/dzkp/pss"
)

// Verify replays a sumcheck transcript: every round polynomial must carry
// the running claim, challenges are re-derived by Fiat-Shamir, and the last
// claim must equal the recorded final evaluation. It returns the challenge
// point so the caller can check Final against a polynomial commitment.
func Verify(proof *Proof, vars int) ([]fr.Element, error) {
	if len(proof.Rounds) != vars {
		return nil, fmt.Errorf("%w: %d round polynomials for %d variables", pss.ErrConfigMismatch, len(proof.Rounds), vars)
	}
	degree := 1
	wantFinal := 1
	if vars > 0 && len(proof.Rounds[0]) == 3 {
		degree = 2
		wantFinal = 2
	}
	if len(proof.Final) != wantFinal {
		return nil, fmt.Errorf("%w: %d final evaluations, expected %d", pss.ErrConfigMismatch, len(proof.Final), wantFinal)
	}

	names := make([]string, vars)
	for i := range names {
		names[i] = roundName(i)
	}
	fs := fiatshamir.NewTranscript(sha256.New(), names...)
	b := proof.ClaimedSum.Bytes()
	if err := fs.Bind(roundName(0), b[:]); err != nil {
		return nil, err
	}

	claim := proof.ClaimedSum
	challenges := make([]fr.Element, 0, vars)
	for r, poly := range proof.Rounds {
		if len(poly) != degree+1 {
			return nil, fmt.Errorf("%w: round %d polynomial has %d evaluations, expected %d", pss.ErrConfigMismatch, r, len(poly), degree+1)
		}
		var sum fr.Element
		sum.Add(&poly[0], &poly[1])
		if !sum.Equal(&claim) {
			return nil, fmt.Errorf("%w: round %d", ErrRoundCheck, r)
		}
		for i := range poly {
			b := poly[i].Bytes()
			if err := fs.Bind(roundName(r), b[:]); err != nil {
				return nil, err
			}
		}
		u, err := challenge(fs, r)
		if err != nil {
			return nil, err
		}
		challenges = append(challenges, u)
		claim = evalUnivariate(poly, u)
	}

	want := proof.Final[0]
	if wantFinal == 2 {
		want.Mul(&proof.Final[0], &proof.Final[1])
	}
	if !claim.Equal(&want) {
		return nil, ErrFinalCheck
	}
	return challenges, nil
}

// evalUnivariate evaluates the round polynomial, given at the points
// 0..deg, at u. Linear and quadratic cases only.
func evalUnivariate(poly []fr.Element, u fr.Element) fr.Element {
	var out fr.Element
	switch len(poly) {
	case 2:
		out.Sub(&poly[1], &poly[0])
		out.Mul(&out, &u)
		out.Add(&out, &poly[0])
	case 3:
		// interpolate a·u² + b·u + c from evaluations at 0, 1, 2
		var a, bc, c, twoInv fr.Element
		twoInv.SetUint64(2)
		twoInv.Inverse(&twoInv)
		a.Sub(&poly[2], &poly[1]).Sub(&a, &poly[1]).Add(&a, &poly[0])
		a.Mul(&a, &twoInv)
		c = poly[0]
		bc.Sub(&poly[1], &poly[0]).Sub(&bc, &a)
		out.Mul(&a, &u)
		out.Add(&out, &bc)
		out.Mul(&out, &u)
		out.Add(&out, &c)
	}
	return out
}
