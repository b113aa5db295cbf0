// Package dzkp is a distributed zero-knowledge proving engine: the heavy
// parts of producing a proof — sumcheck and multi-scalar multiplication —
// are spread over N parties that hold packed secret shares of the witness.
//
// The building blocks live in their own packages:
//
//   - pss: packed Shamir secret sharing over the bn254 scalar field
//   - mpcnet: the N-party session and its four interchangeable transports
//   - dmul: share multiplication and degree reduction via the king pattern
//   - dsumcheck: distributed sumcheck with Fiat-Shamir challenges
//   - dmsm: distributed multi-scalar multiplication over bn254 G1
//   - dpc: a multilinear polynomial commitment with distributed commit/open
//
// All protocols assume semi-honest parties; the king learns intermediate
// values. The engine exists to measure and exercise the distributed
// prover's communication and computation patterns, not to defend against
// malicious participants.
package dzkp
