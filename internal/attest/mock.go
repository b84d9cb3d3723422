package attest

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// MockGenerator derives a trivial single-element inclusion proof: the leaf is
// a keccak256 over the tightly-packed (requestID, purpose, location), the root
// equals the leaf, and the path is empty. The mock verifier on the ledger
// accepts exactly this shape.
//
// It is pure and deterministic: identical inputs always yield an identical
// proof, and it never touches the network.
type MockGenerator struct{}

// NewMockGenerator creates a MockGenerator.
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{}
}

// Generate implements Generator. It never fails.
func (g *MockGenerator) Generate(_ context.Context, requestID uint64, purpose string, loc Location) (Proof, error) {
	// Matches solidity abi.encodePacked(uint256, string, string).
	packed := make([]byte, 0, 32+len(purpose)+24)
	packed = append(packed, common.LeftPadBytes(new(big.Int).SetUint64(requestID).Bytes(), 32)...)
	packed = append(packed, purpose...)
	packed = append(packed, loc.String()...)

	leaf := crypto.Keccak256Hash(packed)
	return Proof{
		Leaf: leaf,
		Root: leaf,
		Path: [][32]byte{},
	}, nil
}
