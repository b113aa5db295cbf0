// Package dsumcheck runs the sumcheck protocol over multilinear polynomials
// whose evaluation tables are packed-shared across the parties.
//
// The 2^k evaluations of a polynomial are stored as 2^k/l packed blocks,
// slot index forming the low bits of the evaluation index and block index
// the high bits. Rounds over the high variables fold the block vector, with
// one public opening per round to assemble the round polynomial; once a
// single block remains, it is unpacked through the king and the rounds over
// the slot variables proceed on public values with no further interaction.
// Challenges are derived by Fiat-Shamir from the opened round polynomials,
// so every party walks the identical evaluation point and a transcript can
// be verified offline.
//
// The prover is an explicit state machine: Init, Blocks, Slots, Final,
// Done. Each collective step happens in a fixed state, which keeps all
// parties' network schedules aligned by construction.
package dsumcheck

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"math/bits"
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	fiatshamir "github.com/consensys/gnark-crypto/fiat-shamir"

	"github.com/zkcollab/dzkp/dmul"
	"github.com/zkcollab/dzkp/internal/parallel"
	"github.com/zkcollab/dzkp/logger"
	"github.com/zkcollab/dzkp/pss"
)

var (
	// ErrRoundCheck is returned by Verify when a round polynomial does not
	// carry the running claim.
	ErrRoundCheck = errors.New("dsumcheck: round polynomial does not match claim")

	// ErrFinalCheck is returned by Verify when the final evaluation does not
	// match the last claim.
	ErrFinalCheck = errors.New("dsumcheck: final evaluation check failed")
)

// Proof is a complete sumcheck transcript: the claimed sum, one round
// polynomial per variable (evaluations at 0,1 and, for products, 2), and
// the final evaluation(s) of the underlying polynomial(s) at the challenge
// point.
type Proof struct {
	ClaimedSum fr.Element
	Rounds     [][]fr.Element
	Final      []fr.Element
}

type proverState uint8

const (
	stateInit proverState = iota
	stateBlocks
	stateSlots
	stateFinal
	stateDone
)

func (s proverState) String() string {
	switch s {
	case stateInit:
		return "init"
	case stateBlocks:
		return "blocks"
	case stateSlots:
		return "slots"
	case stateFinal:
		return "final"
	case stateDone:
		return "done"
	default:
		return "invalid"
	}
}

// Prover drives one party's side of a distributed sumcheck. A Prover is
// single-use: create one per proof.
type Prover struct {
	proto *dmul.Protocol
	vars  int
	// number of variables resolved at block level; the remaining ones are
	// slot bits inside the last block
	blockVars int

	state    proverState
	round    int
	unpacked bool
	fs       *fiatshamir.Transcript

	// degree-1 shares while in the block phase, public values afterwards
	f, g []fr.Element

	challenges []fr.Element
	proof      Proof
}

// NewProver prepares a sumcheck over 2^vars evaluations. The packed table
// must span at least one full block: 2^vars >= l.
func NewProver(proto *dmul.Protocol, vars int) (*Prover, error) {
	l := proto.Params().L
	if vars < 1 || 1<<vars < l {
		return nil, fmt.Errorf("%w: %d variables cannot hold a packing factor of %d", pss.ErrConfigMismatch, vars, l)
	}
	slotVars := bits.TrailingZeros(uint(l))
	names := make([]string, vars)
	for i := range names {
		names[i] = roundName(i)
	}
	return &Prover{
		proto:     proto,
		vars:      vars,
		blockVars: vars - slotVars,
		state:     stateInit,
		fs:        fiatshamir.NewTranscript(sha256.New(), names...),
	}, nil
}

func roundName(i int) string { return fmt.Sprintf("round-%d", i) }

// Prove runs the sumcheck for the claim H = Σ_x f(x), where shares is this
// party's packed share vector of f's evaluation table, block-major. All
// parties must call Prove in the same round; they produce identical proofs.
func (p *Prover) Prove(ctx context.Context, shares []fr.Element) (*Proof, error) {
	return p.run(ctx, shares, nil)
}

// ProveProduct runs the sumcheck for H = Σ_x f(x)·g(x). Round polynomials
// are quadratic and carry a third evaluation.
func (p *Prover) ProveProduct(ctx context.Context, f, g []fr.Element) (*Proof, error) {
	if len(f) != len(g) {
		return nil, fmt.Errorf("%w: factor tables of length %d and %d", pss.ErrConfigMismatch, len(f), len(g))
	}
	return p.run(ctx, f, g)
}

func (p *Prover) run(ctx context.Context, f, g []fr.Element) (*Proof, error) {
	if p.state != stateInit {
		return nil, fmt.Errorf("%w: prover already consumed (state %s)", pss.ErrConfigMismatch, p.state)
	}
	if len(f) != 1<<p.blockVars {
		return nil, fmt.Errorf("%w: %d blocks for %d block variables", pss.ErrConfigMismatch, len(f), p.blockVars)
	}
	p.f = append([]fr.Element(nil), f...)
	if g != nil {
		p.g = append([]fr.Element(nil), g...)
	}

	for p.state != stateDone {
		if err := p.step(ctx); err != nil {
			return nil, fmt.Errorf("sumcheck round %d (state %s): %w", p.round, p.state, err)
		}
	}
	log := logger.Logger()
	log.Debug().
		Int("vars", p.vars).
		Int("blockRounds", p.blockVars).
		Uint64("netRounds", p.proto.Session().Round()).
		Msg("sumcheck transcript assembled")
	return &p.proof, nil
}

func (p *Prover) step(ctx context.Context) error {
	switch p.state {
	case stateInit:
		return p.stepInit(ctx)
	case stateBlocks:
		return p.stepBlocks(ctx)
	case stateSlots:
		return p.stepSlots(ctx)
	case stateFinal:
		return p.stepFinal()
	default:
		return fmt.Errorf("%w: step in state %s", pss.ErrConfigMismatch, p.state)
	}
}

// stepInit opens the claimed sum: the slot-wise sum of all blocks is a
// single shared block whose slot total is H.
func (p *Prover) stepInit(ctx context.Context) error {
	var opened []fr.Element
	var err error
	if p.g == nil {
		var acc fr.Element
		for i := range p.f {
			acc.Add(&acc, &p.f[i])
		}
		opened, err = p.proto.OpenBatch(ctx, []fr.Element{acc})
	} else {
		var acc, term fr.Element
		for i := range p.f {
			term.Mul(&p.f[i], &p.g[i])
			acc.Add(&acc, &term)
		}
		opened, err = p.proto.OpenBatch2(ctx, []fr.Element{acc})
	}
	if err != nil {
		return err
	}
	for i := range opened {
		p.proof.ClaimedSum.Add(&p.proof.ClaimedSum, &opened[i])
	}
	if err := p.bind(0, []fr.Element{p.proof.ClaimedSum}); err != nil {
		return err
	}
	if p.blockVars > 0 {
		p.state = stateBlocks
	} else {
		p.state = stateSlots
	}
	return nil
}

// stepBlocks runs one round over a block-level variable: the halves of the
// share vector give shares of the round polynomial, one public opening
// assembles it, and the Fiat-Shamir challenge folds the vector in half.
func (p *Prover) stepBlocks(ctx context.Context) error {
	half := len(p.f) / 2
	var poly []fr.Element
	var err error
	if p.g == nil {
		var s0, s1 fr.Element
		for b := 0; b < half; b++ {
			s0.Add(&s0, &p.f[b])
			s1.Add(&s1, &p.f[b+half])
		}
		poly, err = p.openRound(ctx, []fr.Element{s0, s1}, false)
	} else {
		sums := productHalfSums(p.f, p.g)
		poly, err = p.openRound(ctx, sums[:], true)
	}
	if err != nil {
		return err
	}
	u, err := p.appendRound(poly)
	if err != nil {
		return err
	}

	foldInPlace(p.f, u)
	p.f = p.f[:half]
	if p.g != nil {
		foldInPlace(p.g, u)
		p.g = p.g[:half]
	}

	p.round++
	if p.round == p.blockVars {
		p.state = stateSlots
	}
	return nil
}

// stepSlots unpacks the last block on entry, then runs one round per step
// over the slot variables on public values; after the unpack no further
// network traffic is needed.
func (p *Prover) stepSlots(ctx context.Context) error {
	if !p.unpacked {
		flat, err := p.proto.UnpackBatch(ctx, p.f)
		if err != nil {
			return err
		}
		p.f = flat
		if p.g != nil {
			if p.g, err = p.proto.UnpackBatch(ctx, p.g); err != nil {
				return err
			}
		}
		p.unpacked = true
		if len(p.f) == 1 {
			p.state = stateFinal
		}
		return nil
	}

	half := len(p.f) / 2
	var poly []fr.Element
	if p.g == nil {
		var s0, s1 fr.Element
		for b := 0; b < half; b++ {
			s0.Add(&s0, &p.f[b])
			s1.Add(&s1, &p.f[b+half])
		}
		poly = []fr.Element{s0, s1}
	} else {
		sums := productHalfSums(p.f, p.g)
		poly = sums[:]
	}
	u, err := p.appendRound(poly)
	if err != nil {
		return err
	}
	foldInPlace(p.f, u)
	p.f = p.f[:half]
	if p.g != nil {
		foldInPlace(p.g, u)
		p.g = p.g[:half]
	}
	p.round++
	if len(p.f) == 1 {
		p.state = stateFinal
	}
	return nil
}

// stepFinal records the evaluation of the underlying polynomial(s) at the
// full challenge point.
func (p *Prover) stepFinal() error {
	p.proof.Final = []fr.Element{p.f[0]}
	if p.g != nil {
		p.proof.Final = append(p.proof.Final, p.g[0])
	}
	p.state = stateDone
	return nil
}

// Challenges returns the Fiat-Shamir evaluation point walked during the
// proof, one element per variable, top variable first.
func (p *Prover) Challenges() []fr.Element {
	return p.challenges
}

// openRound opens the shared round polynomial sums: each entry is a shared
// block whose slot total is one evaluation of the round polynomial.
func (p *Prover) openRound(ctx context.Context, sums []fr.Element, doubled bool) ([]fr.Element, error) {
	var opened []fr.Element
	var err error
	if doubled {
		opened, err = p.proto.OpenBatch2(ctx, sums)
	} else {
		opened, err = p.proto.OpenBatch(ctx, sums)
	}
	if err != nil {
		return nil, err
	}
	l := p.proto.Params().L
	poly := make([]fr.Element, len(sums))
	for i := range poly {
		for j := 0; j < l; j++ {
			poly[i].Add(&poly[i], &opened[i*l+j])
		}
	}
	return poly, nil
}

// appendRound records a public round polynomial and derives its challenge.
func (p *Prover) appendRound(poly []fr.Element) (fr.Element, error) {
	p.proof.Rounds = append(p.proof.Rounds, poly)
	if err := p.bind(p.round, poly); err != nil {
		return fr.Element{}, err
	}
	u, err := challenge(p.fs, p.round)
	if err != nil {
		return fr.Element{}, err
	}
	p.challenges = append(p.challenges, u)
	return u, nil
}

func (p *Prover) bind(round int, values []fr.Element) error {
	for i := range values {
		b := values[i].Bytes()
		if err := p.fs.Bind(roundName(round), b[:]); err != nil {
			return err
		}
	}
	return nil
}

func challenge(fs *fiatshamir.Transcript, round int) (fr.Element, error) {
	var u fr.Element
	b, err := fs.ComputeChallenge(roundName(round))
	if err != nil {
		return u, err
	}
	u.SetBytes(b)
	return u, nil
}

// productHalfSums evaluates the quadratic round polynomial of a product
// sumcheck at 0, 1 and 2, spreading the half-sums across cores.
func productHalfSums(f, g []fr.Element) [3]fr.Element {
	half := len(f) / 2
	var mu sync.Mutex
	var sums [3]fr.Element
	parallel.Execute(half, func(start, end int) {
		var local [3]fr.Element
		var lo, hi, ext, term fr.Element
		for b := start; b < end; b++ {
			term.Mul(&f[b], &g[b])
			local[0].Add(&local[0], &term)
			term.Mul(&f[b+half], &g[b+half])
			local[1].Add(&local[1], &term)
			lo.Double(&f[b+half]).Sub(&lo, &f[b])
			hi.Double(&g[b+half]).Sub(&hi, &g[b])
			ext.Mul(&lo, &hi)
			local[2].Add(&local[2], &ext)
		}
		mu.Lock()
		for i := range sums {
			sums[i].Add(&sums[i], &local[i])
		}
		mu.Unlock()
	})
	return sums
}

// foldInPlace fixes the top variable of a multilinear table to u:
// v[b] <- v[b] + u·(v[b+half] - v[b]) for the first half.
func foldInPlace(v []fr.Element, u fr.Element) {
	half := len(v) / 2
	var d fr.Element
	for b := 0; b < half; b++ {
		d.Sub(&v[b+half], &v[b])
		d.Mul(&d, &u)
		v[b].Add(&v[b], &d)
	}
}
