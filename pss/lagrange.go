package pss

import "github.com/consensys/gnark-crypto/ecc/bn254/fr"

// lagrangeWeights returns w such that, for a polynomial f of degree
// < len(xs) with known evaluations f(xs[i]), f(z) = Σ_i w[i]·f(xs[i]).
// All denominators are inverted in one batch. xs must be pairwise distinct
// and z must not appear in xs.
func lagrangeWeights(xs []fr.Element, z fr.Element) []fr.Element {
	k := len(xs)
	w := make([]fr.Element, k)

	// numerators: Π_{m≠i} (z - xs[m]) computed with prefix/suffix products
	// of (z - xs[m]).
	diffs := make([]fr.Element, k)
	for i := range xs {
		diffs[i].Sub(&z, &xs[i])
	}
	prefix := make([]fr.Element, k+1)
	prefix[0].SetOne()
	for i := 0; i < k; i++ {
		prefix[i+1].Mul(&prefix[i], &diffs[i])
	}
	var suffix fr.Element
	suffix.SetOne()
	for i := k - 1; i >= 0; i-- {
		w[i].Mul(&prefix[i], &suffix)
		suffix.Mul(&suffix, &diffs[i])
	}

	// denominators: Π_{m≠i} (xs[i] - xs[m]), batch-inverted.
	den := make([]fr.Element, k)
	var d fr.Element
	for i := 0; i < k; i++ {
		den[i].SetOne()
		for m := 0; m < k; m++ {
			if m == i {
				continue
			}
			d.Sub(&xs[i], &xs[m])
			den[i].Mul(&den[i], &d)
		}
	}
	den = fr.BatchInvert(den)

	for i := 0; i < k; i++ {
		w[i].Mul(&w[i], &den[i])
	}
	return w
}
