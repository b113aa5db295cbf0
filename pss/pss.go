// Package pss implements packed Shamir secret sharing over the bn254 scalar
// field.
//
// A batch of l secrets is encoded as a single polynomial of degree < l+t:
// its evaluations at l fixed "secret" points equal the secrets, its
// evaluations at t auxiliary points are fresh random masks, and each of the
// n parties holds its evaluation at a distinct public party point. Party
// points are the first n elements of a radix-2 evaluation domain; secret and
// auxiliary points live on a coset of the same domain so the two sets never
// collide.
//
// Shares are plain fr.Element values and are homomorphic under local
// addition and scalar multiplication: both operations commute with the
// evaluation of the hidden polynomial. Multiplication of two shares yields
// an evaluation of the product polynomial, whose degree is doubled; such
// degree-2 shares reconstruct with Reconstruct2 and a higher threshold, or
// are brought back to degree one by the dmul protocol.
package pss

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/fft"
	"golang.org/x/crypto/sha3"
)

var (
	// ErrInsufficientShares is returned when a reconstruction is attempted
	// with fewer shares than the interpolation threshold.
	ErrInsufficientShares = errors.New("pss: insufficient shares")

	// ErrConfigMismatch is returned when sharing parameters are invalid or
	// inconsistent between operations.
	ErrConfigMismatch = errors.New("pss: sharing parameters mismatch")
)

// Params fixes a packed sharing instance: the packing factor l, the
// corruption threshold t, the number of parties n, and the public evaluation
// points derived from them. A Params value is immutable and safe for
// concurrent use.
type Params struct {
	L int // packing factor: secrets per sharing
	T int // corruption threshold
	N int // number of parties

	partyPoints []fr.Element // partyPoints[i] is party i's public point, ω^i
	codePoints  []fr.Element // l secret points then t auxiliary points, on a coset
	packMatrix  [][]fr.Element
	fingerprint [32]byte
}

// NewParams validates (l, t, n) and precomputes the evaluation points and
// the packing matrix. It requires l+2t < n so that enough honest shares
// exist to absorb one round of degree doubling, and 2(l+t)-1 <= n so that
// product shares remain reconstructable.
func NewParams(l, t, n int) (*Params, error) {
	if l < 1 || t < 0 || n < 2 {
		return nil, fmt.Errorf("%w: l=%d t=%d n=%d", ErrConfigMismatch, l, t, n)
	}
	if l+2*t >= n {
		return nil, fmt.Errorf("%w: need l+2t < n, got l=%d t=%d n=%d", ErrConfigMismatch, l, t, n)
	}
	if 2*(l+t)-1 > n {
		return nil, fmt.Errorf("%w: need 2(l+t)-1 <= n for product reconstruction, got l=%d t=%d n=%d", ErrConfigMismatch, l, t, n)
	}

	domain := fft.NewDomain(uint64(n))

	p := &Params{L: l, T: t, N: n}

	p.partyPoints = make([]fr.Element, n)
	p.partyPoints[0].SetOne()
	for i := 1; i < n; i++ {
		p.partyPoints[i].Mul(&p.partyPoints[i-1], &domain.Generator)
	}

	// secret and auxiliary points on the coset g·<ω>; the multiplicative
	// generator is not a 2^k-th root of unity so the coset is disjoint from
	// the party points.
	p.codePoints = make([]fr.Element, l+t)
	p.codePoints[0].Set(&domain.FrMultiplicativeGen)
	for i := 1; i < l+t; i++ {
		p.codePoints[i].Mul(&p.codePoints[i-1], &domain.Generator)
	}

	// packMatrix[i][j] = L_j(partyPoints[i]) for the Lagrange basis over the
	// code points; sharing is then a matrix-vector product.
	p.packMatrix = make([][]fr.Element, n)
	for i := 0; i < n; i++ {
		p.packMatrix[i] = lagrangeWeights(p.codePoints, p.partyPoints[i])
	}

	h := sha3.New256()
	h.Write([]byte("dzkp/pss"))
	var buf [8]byte
	for _, v := range []int{l, t, n} {
		binary.BigEndian.PutUint64(buf[:], uint64(v))
		h.Write(buf[:])
	}
	copy(p.fingerprint[:], h.Sum(nil))

	return p, nil
}

// DefaultParams mirrors the standard instantiation n = 4l, t = l-1, which
// keeps all point sets inside power-of-two domains. l must be a power of two.
func DefaultParams(l int) (*Params, error) {
	if l < 1 || l&(l-1) != 0 {
		return nil, fmt.Errorf("%w: packing factor %d is not a power of two", ErrConfigMismatch, l)
	}
	return NewParams(l, l-1, 4*l)
}

// Fingerprint is a digest of (l, t, n) used to detect parameter mismatch
// between parties before a run.
func (p *Params) Fingerprint() [32]byte {
	return p.fingerprint
}

// Threshold is the number of shares needed to reconstruct a degree-1
// sharing.
func (p *Params) Threshold() int { return p.L + p.T }

// Threshold2 is the number of shares needed to reconstruct a product
// (degree-doubled) sharing.
func (p *Params) Threshold2() int { return 2*(p.L+p.T) - 1 }

// PartyPoint returns party i's public evaluation point.
func (p *Params) PartyPoint(i int) fr.Element { return p.partyPoints[i] }

// ShareBlock shares one block of exactly l secrets. The returned slice holds
// one share per party, indexed by party id. The t auxiliary coordinates are
// drawn fresh from crypto/rand.
func (p *Params) ShareBlock(secrets []fr.Element) ([]fr.Element, error) {
	if len(secrets) != p.L {
		return nil, fmt.Errorf("%w: got %d secrets, packing factor is %d", ErrConfigMismatch, len(secrets), p.L)
	}
	values := make([]fr.Element, p.L+p.T)
	copy(values, secrets)
	for i := p.L; i < p.L+p.T; i++ {
		if _, err := values[i].SetRandom(); err != nil {
			return nil, fmt.Errorf("pss: sample mask: %w", err)
		}
	}
	return p.evalAtParties(values), nil
}

// Share shares a vector of secrets whose length is a multiple of l. The
// result is indexed [party][block]: row i is party i's share vector, one
// packed share per block of l consecutive secrets.
func (p *Params) Share(secrets []fr.Element) ([][]fr.Element, error) {
	if len(secrets)%p.L != 0 {
		return nil, fmt.Errorf("%w: %d secrets do not divide into blocks of %d", ErrConfigMismatch, len(secrets), p.L)
	}
	nbBlocks := len(secrets) / p.L
	out := make([][]fr.Element, p.N)
	for i := range out {
		out[i] = make([]fr.Element, nbBlocks)
	}
	for b := 0; b < nbBlocks; b++ {
		shares, err := p.ShareBlock(secrets[b*p.L : (b+1)*p.L])
		if err != nil {
			return nil, err
		}
		for i := 0; i < p.N; i++ {
			out[i][b] = shares[i]
		}
	}
	return out, nil
}

// PackPublic deterministically packs l public values: the auxiliary
// coordinates are zero, so every party can derive every row locally. It
// provides no hiding and is meant for public constants and bases.
func (p *Params) PackPublic(values []fr.Element) ([]fr.Element, error) {
	if len(values) != p.L {
		return nil, fmt.Errorf("%w: got %d values, packing factor is %d", ErrConfigMismatch, len(values), p.L)
	}
	padded := make([]fr.Element, p.L+p.T)
	copy(padded, values)
	return p.evalAtParties(padded), nil
}

// PackRow returns row i of the packing matrix restricted to the l secret
// coordinates: packing a public vector v gives party i the share
// Σ_j PackRow(i)[j]·v[j]. Used to pack public group elements in the
// exponent.
func (p *Params) PackRow(i int) []fr.Element {
	return p.packMatrix[i][:p.L]
}

// MaskRow returns row i of the packing matrix restricted to the t auxiliary
// coordinates, the weights applied to fresh masks when resharing.
func (p *Params) MaskRow(i int) []fr.Element {
	return p.packMatrix[i][p.L:]
}

// Replicate produces the constant sharing of v: every slot encodes v and
// every party's share equals v. It provides no hiding; its use is restricted
// to public per-slot values (after an opening) and deterministic test
// vectors.
func (p *Params) Replicate(v fr.Element) []fr.Element {
	out := make([]fr.Element, p.N)
	for i := range out {
		out[i] = v
	}
	return out
}

// Reconstruct interpolates the hidden polynomial from at least l+t shares
// and returns its evaluations at the l secret points. ids[k] is the party id
// owning shares[k]; only the first l+t shares are consumed.
func (p *Params) Reconstruct(ids []int, shares []fr.Element) ([]fr.Element, error) {
	return p.reconstruct(ids, shares, p.Threshold())
}

// Reconstruct2 reconstructs a product sharing, whose polynomial has doubled
// degree and therefore needs 2(l+t)-1 shares.
func (p *Params) Reconstruct2(ids []int, shares []fr.Element) ([]fr.Element, error) {
	return p.reconstruct(ids, shares, p.Threshold2())
}

func (p *Params) reconstruct(ids []int, shares []fr.Element, k int) ([]fr.Element, error) {
	if len(ids) != len(shares) {
		return nil, fmt.Errorf("%w: %d ids for %d shares", ErrConfigMismatch, len(ids), len(shares))
	}
	if len(shares) < k {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientShares, len(shares), k)
	}
	xs := make([]fr.Element, k)
	for i := 0; i < k; i++ {
		if ids[i] < 0 || ids[i] >= p.N {
			return nil, fmt.Errorf("%w: party id %d out of range", ErrConfigMismatch, ids[i])
		}
		xs[i] = p.partyPoints[ids[i]]
	}
	secrets := make([]fr.Element, p.L)
	for j := 0; j < p.L; j++ {
		w := lagrangeWeights(xs, p.codePoints[j])
		var acc, term fr.Element
		for i := 0; i < k; i++ {
			term.Mul(&w[i], &shares[i])
			acc.Add(&acc, &term)
		}
		secrets[j] = acc
	}
	return secrets, nil
}

// SecretWeights returns, for each secret slot j, the interpolation weights
// w[j] such that secret_j = Σ_i w[j][i]·share_{ids[i]}, over a degree-1
// sharing. It lets callers recombine group-element shares in the exponent.
func (p *Params) SecretWeights(ids []int) ([][]fr.Element, error) {
	return p.secretWeights(ids, p.Threshold())
}

// SecretWeights2 is the product-sharing variant of SecretWeights.
func (p *Params) SecretWeights2(ids []int) ([][]fr.Element, error) {
	return p.secretWeights(ids, p.Threshold2())
}

func (p *Params) secretWeights(ids []int, k int) ([][]fr.Element, error) {
	if len(ids) < k {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientShares, len(ids), k)
	}
	xs := make([]fr.Element, k)
	for i := 0; i < k; i++ {
		if ids[i] < 0 || ids[i] >= p.N {
			return nil, fmt.Errorf("%w: party id %d out of range", ErrConfigMismatch, ids[i])
		}
		xs[i] = p.partyPoints[ids[i]]
	}
	out := make([][]fr.Element, p.L)
	for j := 0; j < p.L; j++ {
		w := lagrangeWeights(xs, p.codePoints[j])
		out[j] = make([]fr.Element, len(ids))
		copy(out[j], w)
	}
	return out, nil
}

// SumWeights2 collapses SecretWeights2 over the secret slots:
// Σ_j secret_j = Σ_i SumWeights2(ids)[i]·share_{ids[i]} for a product
// sharing. This is the single multi-exponentiation that combines the
// parties' local MSM partials.
func (p *Params) SumWeights2(ids []int) ([]fr.Element, error) {
	ws, err := p.SecretWeights2(ids)
	if err != nil {
		return nil, err
	}
	out := make([]fr.Element, len(ws[0]))
	for j := range ws {
		for i := range ws[j] {
			out[i].Add(&out[i], &ws[j][i])
		}
	}
	return out, nil
}

// evalAtParties evaluates the polynomial interpolating values over the code
// points at every party point, via the precomputed packing matrix.
func (p *Params) evalAtParties(values []fr.Element) []fr.Element {
	out := make([]fr.Element, p.N)
	var term fr.Element
	for i := 0; i < p.N; i++ {
		row := p.packMatrix[i]
		var acc fr.Element
		for j := range values {
			if values[j].IsZero() {
				continue
			}
			term.Mul(&row[j], &values[j])
			acc.Add(&acc, &term)
		}
		out[i] = acc
	}
	return out
}
