package pss

import (
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

func randVector(n int) []fr.Element {
	v := make([]fr.Element, n)
	for i := range v {
		if _, err := v[i].SetRandom(); err != nil {
			panic(err)
		}
	}
	return v
}

func allIDs(n int) []int {
	ids := make([]int, n)
	for i := range ids {
		ids[i] = i
	}
	return ids
}

func TestNewParams(t *testing.T) {
	assert := require.New(t)

	_, err := NewParams(2, 1, 8)
	assert.NoError(err)

	// l+2t >= n
	_, err = NewParams(4, 2, 8)
	assert.ErrorIs(err, ErrConfigMismatch)

	// degenerate sizes
	_, err = NewParams(0, 1, 8)
	assert.ErrorIs(err, ErrConfigMismatch)
	_, err = NewParams(2, -1, 8)
	assert.ErrorIs(err, ErrConfigMismatch)

	_, err = DefaultParams(3)
	assert.ErrorIs(err, ErrConfigMismatch)

	p, err := DefaultParams(4)
	assert.NoError(err)
	assert.Equal(16, p.N)
	assert.Equal(3, p.T)
	assert.Equal(7, p.Threshold())
	assert.Equal(13, p.Threshold2())
}

func TestFingerprint(t *testing.T) {
	assert := require.New(t)
	a, err := NewParams(2, 1, 8)
	assert.NoError(err)
	b, err := NewParams(2, 1, 8)
	assert.NoError(err)
	c, err := NewParams(4, 3, 16)
	assert.NoError(err)
	assert.Equal(a.Fingerprint(), b.Fingerprint())
	assert.NotEqual(a.Fingerprint(), c.Fingerprint())
}

func TestShareReconstruct(t *testing.T) {
	assert := require.New(t)
	p, err := DefaultParams(4)
	assert.NoError(err)

	secrets := randVector(p.L)
	shares, err := p.ShareBlock(secrets)
	assert.NoError(err)
	assert.Len(shares, p.N)

	got, err := p.Reconstruct(allIDs(p.N), shares)
	assert.NoError(err)
	assert.Equal(secrets, got)

	// any threshold-sized subset reconstructs too
	k := p.Threshold()
	ids := []int{1, 3, 4, 7, 9, 12, 15}
	assert.Len(ids, k)
	sub := make([]fr.Element, k)
	for i, id := range ids {
		sub[i] = shares[id]
	}
	got, err = p.Reconstruct(ids, sub)
	assert.NoError(err)
	assert.Equal(secrets, got)

	// below threshold fails
	_, err = p.Reconstruct(ids[:k-1], sub[:k-1])
	assert.ErrorIs(err, ErrInsufficientShares)

	// mismatched lengths fail
	_, err = p.Reconstruct(ids[:k-1], sub)
	assert.ErrorIs(err, ErrConfigMismatch)
}

func TestShareVector(t *testing.T) {
	assert := require.New(t)
	p, err := DefaultParams(2)
	assert.NoError(err)

	secrets := randVector(3 * p.L)
	rows, err := p.Share(secrets)
	assert.NoError(err)
	assert.Len(rows, p.N)

	ids := allIDs(p.N)
	for b := 0; b < 3; b++ {
		col := make([]fr.Element, p.N)
		for i := 0; i < p.N; i++ {
			col[i] = rows[i][b]
		}
		got, err := p.Reconstruct(ids, col)
		assert.NoError(err)
		assert.Equal(secrets[b*p.L:(b+1)*p.L], got)
	}

	_, err = p.Share(randVector(p.L + 1))
	assert.ErrorIs(err, ErrConfigMismatch)
}

func TestPackPublic(t *testing.T) {
	assert := require.New(t)
	p, err := DefaultParams(4)
	assert.NoError(err)

	values := randVector(p.L)
	a, err := p.PackPublic(values)
	assert.NoError(err)
	b, err := p.PackPublic(values)
	assert.NoError(err)
	assert.Equal(a, b, "public packing must be deterministic")

	got, err := p.Reconstruct(allIDs(p.N), a)
	assert.NoError(err)
	assert.Equal(values, got)

	// PackRow agrees with PackPublic
	for i := 0; i < p.N; i++ {
		row := p.PackRow(i)
		var acc, term fr.Element
		for j := range values {
			term.Mul(&row[j], &values[j])
			acc.Add(&acc, &term)
		}
		assert.True(acc.Equal(&a[i]))
	}
}

func TestReplicate(t *testing.T) {
	assert := require.New(t)
	p, err := DefaultParams(2)
	assert.NoError(err)

	var v fr.Element
	if _, err := v.SetRandom(); err != nil {
		panic(err)
	}
	shares := p.Replicate(v)
	for i := range shares {
		assert.True(shares[i].Equal(&v))
	}
	got, err := p.Reconstruct(allIDs(p.N), shares)
	assert.NoError(err)
	for j := 0; j < p.L; j++ {
		assert.True(got[j].Equal(&v))
	}
}

func TestProductReconstruct(t *testing.T) {
	assert := require.New(t)
	p, err := DefaultParams(4)
	assert.NoError(err)

	a := randVector(p.L)
	b := randVector(p.L)
	sa, err := p.ShareBlock(a)
	assert.NoError(err)
	sb, err := p.ShareBlock(b)
	assert.NoError(err)

	prod := make([]fr.Element, p.N)
	for i := range prod {
		prod[i].Mul(&sa[i], &sb[i])
	}

	// degree-1 threshold is not enough for the product
	_, err = p.Reconstruct2(allIDs(p.Threshold()), prod[:p.Threshold()])
	assert.ErrorIs(err, ErrInsufficientShares)

	got, err := p.Reconstruct2(allIDs(p.N), prod)
	assert.NoError(err)
	for j := 0; j < p.L; j++ {
		var want fr.Element
		want.Mul(&a[j], &b[j])
		assert.True(got[j].Equal(&want))
	}
}

func TestSecretWeights(t *testing.T) {
	assert := require.New(t)
	p, err := DefaultParams(2)
	assert.NoError(err)

	secrets := randVector(p.L)
	shares, err := p.ShareBlock(secrets)
	assert.NoError(err)

	ids := allIDs(p.N)
	ws, err := p.SecretWeights(ids)
	assert.NoError(err)
	for j := 0; j < p.L; j++ {
		var acc, term fr.Element
		for i := range ids {
			term.Mul(&ws[j][i], &shares[i])
			acc.Add(&acc, &term)
		}
		assert.True(acc.Equal(&secrets[j]))
	}

	// SumWeights2 recombines the slot sum of a product sharing
	a := randVector(p.L)
	b := randVector(p.L)
	sa, _ := p.ShareBlock(a)
	sb, _ := p.ShareBlock(b)
	prod := make([]fr.Element, p.N)
	for i := range prod {
		prod[i].Mul(&sa[i], &sb[i])
	}
	sw, err := p.SumWeights2(ids)
	assert.NoError(err)
	var acc, term, want fr.Element
	for i := range ids {
		term.Mul(&sw[i], &prod[i])
		acc.Add(&acc, &term)
	}
	for j := 0; j < p.L; j++ {
		term.Mul(&a[j], &b[j])
		want.Add(&want, &term)
	}
	assert.True(acc.Equal(&want))
}

func TestProperties(t *testing.T) {
	p, err := DefaultParams(2)
	require.NoError(t, err)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	properties := gopter.NewProperties(parameters)

	genVec := gen.SliceOfN(p.L, gen.UInt64()).Map(func(vs []uint64) []fr.Element {
		out := make([]fr.Element, len(vs))
		for i := range vs {
			out[i].SetUint64(vs[i])
		}
		return out
	})

	properties.Property("share then reconstruct is the identity", prop.ForAll(
		func(secrets []fr.Element) bool {
			shares, err := p.ShareBlock(secrets)
			if err != nil {
				return false
			}
			got, err := p.Reconstruct(allIDs(p.N), shares)
			if err != nil {
				return false
			}
			for j := range secrets {
				if !got[j].Equal(&secrets[j]) {
					return false
				}
			}
			return true
		},
		genVec,
	))

	properties.Property("sharing is additively homomorphic", prop.ForAll(
		func(a, b []fr.Element) bool {
			sa, err := p.ShareBlock(a)
			if err != nil {
				return false
			}
			sb, err := p.ShareBlock(b)
			if err != nil {
				return false
			}
			sum := make([]fr.Element, p.N)
			for i := range sum {
				sum[i].Add(&sa[i], &sb[i])
			}
			got, err := p.Reconstruct(allIDs(p.N), sum)
			if err != nil {
				return false
			}
			var want fr.Element
			for j := range a {
				want.Add(&a[j], &b[j])
				if !got[j].Equal(&want) {
					return false
				}
			}
			return true
		},
		genVec, genVec,
	))

	properties.Property("sharing commutes with scalar multiplication", prop.ForAll(
		func(a []fr.Element, c uint64) bool {
			var k fr.Element
			k.SetUint64(c)
			sa, err := p.ShareBlock(a)
			if err != nil {
				return false
			}
			scaled := make([]fr.Element, p.N)
			for i := range scaled {
				scaled[i].Mul(&sa[i], &k)
			}
			got, err := p.Reconstruct(allIDs(p.N), scaled)
			if err != nil {
				return false
			}
			var want fr.Element
			for j := range a {
				want.Mul(&a[j], &k)
				if !got[j].Equal(&want) {
					return false
				}
			}
			return true
		},
		genVec, gen.UInt64(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
