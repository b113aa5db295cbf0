package dmul

import (
	"context"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/stretchr/testify/require"

	"github.com/zkcollab/dzkp/mpcnet"
	"github.com/zkcollab/dzkp/pss"
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

func testSetup(t *testing.T, l int) (*pss.Params, []*mpcnet.Session) {
	t.Helper()
	params, err := pss.DefaultParams(l)
	require.NoError(t, err)
	sessions, err := mpcnet.NewInProcess(mpcnet.Config{N: params.N})
	require.NoError(t, err)
	return params, sessions
}

func TestNewPartyCountMismatch(t *testing.T) {
	params, err := pss.DefaultParams(2)
	require.NoError(t, err)
	sessions, err := mpcnet.NewInProcess(mpcnet.Config{N: 4})
	require.NoError(t, err)
	_, err = New(params, sessions[0])
	require.ErrorIs(t, err, pss.ErrConfigMismatch)
}

func TestMulBatch(t *testing.T) {
	assert := require.New(t)
	params, sessions := testSetup(t, 2)

	const nbBlocks = 3
	a := randVector(nbBlocks * params.L)
	b := randVector(nbBlocks * params.L)
	rowsA, err := params.Share(a)
	assert.NoError(err)
	rowsB, err := params.Share(b)
	assert.NoError(err)

	results := make([][]fr.Element, params.N)
	err = mpcnet.RunParties(context.Background(), sessions, func(ctx context.Context, s *mpcnet.Session) error {
		p, err := New(params, s)
		if err != nil {
			return err
		}
		out, err := p.MulBatch(ctx, rowsA[s.ID()], rowsB[s.ID()])
		if err != nil {
			return err
		}
		results[s.ID()] = out
		return nil
	})
	assert.NoError(err)

	// reduced shares reconstruct at the degree-one threshold
	ids := make([]int, params.Threshold())
	for i := range ids {
		ids[i] = i
	}
	for blk := 0; blk < nbBlocks; blk++ {
		col := make([]fr.Element, len(ids))
		for i, id := range ids {
			col[i] = results[id][blk]
		}
		got, err := params.Reconstruct(ids, col)
		assert.NoError(err)
		for j := 0; j < params.L; j++ {
			var want fr.Element
			idx := blk*params.L + j
			want.Mul(&a[idx], &b[idx])
			assert.True(got[j].Equal(&want), "block %d slot %d", blk, j)
		}
	}
}

func TestUnpackBatch(t *testing.T) {
	assert := require.New(t)
	params, sessions := testSetup(t, 2)

	secrets := randVector(2 * params.L)
	rows, err := params.Share(secrets)
	assert.NoError(err)

	results := make([][]fr.Element, params.N)
	err = mpcnet.RunParties(context.Background(), sessions, func(ctx context.Context, s *mpcnet.Session) error {
		p, err := New(params, s)
		if err != nil {
			return err
		}
		out, err := p.UnpackBatch(ctx, rows[s.ID()])
		if err != nil {
			return err
		}
		results[s.ID()] = out
		return nil
	})
	assert.NoError(err)

	for i := 0; i < params.N; i++ {
		assert.Equal(secrets, results[i], "party %d", i)
	}
}

func TestOpenBatch(t *testing.T) {
	assert := require.New(t)
	params, sessions := testSetup(t, 2)

	a := randVector(params.L)
	b := randVector(params.L)
	sa, err := params.ShareBlock(a)
	assert.NoError(err)
	sb, err := params.ShareBlock(b)
	assert.NoError(err)

	err = mpcnet.RunParties(context.Background(), sessions, func(ctx context.Context, s *mpcnet.Session) error {
		p, err := New(params, s)
		if err != nil {
			return err
		}
		opened, err := p.OpenBatch(ctx, []fr.Element{sa[s.ID()]})
		if err != nil {
			return err
		}
		for j := range a {
			if !opened[j].Equal(&a[j]) {
				return errSlot(j)
			}
		}
		var prod fr.Element
		prod.Mul(&sa[s.ID()], &sb[s.ID()])
		opened2, err := p.OpenBatch2(ctx, []fr.Element{prod})
		if err != nil {
			return err
		}
		for j := range a {
			var want fr.Element
			want.Mul(&a[j], &b[j])
			if !opened2[j].Equal(&want) {
				return errSlot(j)
			}
		}
		return nil
	})
	assert.NoError(err)
}

type errSlot int

func (e errSlot) Error() string { return "wrong opened value at slot" }

// A stub run over replicated shares must produce the same deterministic
// unpack values and the same traffic counters as the real king's run.
func TestStubMatchesKing(t *testing.T) {
	assert := require.New(t)
	params, sessions := testSetup(t, 2)

	var v fr.Element
	v.SetUint64(42)
	shares := params.Replicate(v)

	var kingUnpacked []fr.Element
	err := mpcnet.RunParties(context.Background(), sessions, func(ctx context.Context, s *mpcnet.Session) error {
		p, err := New(params, s)
		if err != nil {
			return err
		}
		out, err := p.UnpackBatch(ctx, []fr.Element{shares[s.ID()]})
		if err != nil {
			return err
		}
		if _, err := p.MulBatch(ctx, []fr.Element{shares[s.ID()]}, []fr.Element{shares[s.ID()]}); err != nil {
			return err
		}
		if s.IsKing() {
			kingUnpacked = out
		}
		return nil
	})
	assert.NoError(err)

	stub, err := mpcnet.NewLeaderStub(mpcnet.Config{N: params.N})
	assert.NoError(err)
	p, err := New(params, stub)
	assert.NoError(err)
	stubUnpacked, err := p.UnpackBatch(context.Background(), []fr.Element{shares[0]})
	assert.NoError(err)
	_, err = p.MulBatch(context.Background(), []fr.Element{shares[0]}, []fr.Element{shares[0]})
	assert.NoError(err)

	assert.Equal(kingUnpacked, stubUnpacked)
	for j := range stubUnpacked {
		assert.True(stubUnpacked[j].Equal(&v))
	}

	kingStats := sessions[0].Stats()
	stubStats := stub.Stats()
	assert.Equal(kingStats.Rounds, stubStats.Rounds)
	assert.Equal(kingStats.BytesSent, stubStats.BytesSent)
	assert.Equal(kingStats.BytesRecv, stubStats.BytesRecv)
	assert.Equal(kingStats.MsgsSent, stubStats.MsgsSent)
	assert.Equal(kingStats.MsgsRecv, stubStats.MsgsRecv)
}
