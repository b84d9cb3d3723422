// Package attest produces the inclusion proofs the ledger's verifier demands
// for verify and delivery-confirmation transitions.
//
// Two implementations of the Generator interface exist:
//   - MockGenerator: synchronous, deterministic, accepted by the mock verifier
//     (root == leaf, empty path).
//   - RelayGenerator: placeholder for the real attestation relay, which
//     submits the leaf for attestation, waits for round finalisation, and
//     fetches (root, path) from the relay contract.
package attest

import (
	"context"
	"strconv"
)

// Claim purposes. The purpose is bound into the leaf digest so a proof issued
// for one stage can never satisfy the verifier for another.
const (
	PurposeDisasterVerified  = "disaster_verified"
	PurposeDeliveryConfirmed = "delivery_confirmed"
)

// Proof is the (leaf, root, path) triple presented to the ledger. It is
// computed per call and never persisted.
type Proof struct {
	Leaf [32]byte
	Root [32]byte
	Path [][32]byte
}

// Location is the claimed event coordinates. The zero value ("no location")
// is used for delivery-stage proofs.
type Location struct {
	Lat float64
	Lng float64
}

func (l Location) String() string {
	return strconv.FormatFloat(l.Lat, 'g', -1, 64) + "," + strconv.FormatFloat(l.Lng, 'g', -1, 64)
}

// Generator derives a proof for a named claim about a request. The context is
// part of the contract so a relay-backed implementation can block on
// attestation finalisation without changing any caller.
type Generator interface {
	Generate(ctx context.Context, requestID uint64, purpose string, loc Location) (Proof, error)
}
