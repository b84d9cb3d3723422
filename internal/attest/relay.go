package attest

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// ErrRelayUnavailable is returned when the attestation relay cannot supply a
// finalised proof.
var ErrRelayUnavailable = errors.New("attestation relay unavailable")

// RelayGenerator will obtain proofs from the external attestation relay:
// encode the claim, submit it for attestation, wait for the round to finalise,
// then fetch (root, path) for the leaf. Same input/output contract as
// MockGenerator; only the latency differs.
type RelayGenerator struct {
	relayURL   string
	httpClient *http.Client
}

// NewRelayGenerator creates a RelayGenerator for the given relay endpoint.
func NewRelayGenerator(relayURL string) *RelayGenerator {
	return &RelayGenerator{
		relayURL:   relayURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Generate implements Generator.
//
// TODO: implement the attestation round-trip (submit leaf, poll finalisation,
// fetch root and path) once the relay contract addresses are fixed. A real
// proof must carry the relay's root and path verbatim; root may equal leaf
// only when the relay itself returns an empty path.
func (g *RelayGenerator) Generate(ctx context.Context, requestID uint64, purpose string, loc Location) (Proof, error) {
	return Proof{}, ErrRelayUnavailable
}
