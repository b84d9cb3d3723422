package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

// Status is the named on-ledger request state. The sequence is strictly
// forward-moving; no transition ever regresses it.
type Status string

const (
	StatusPending       Status = "PENDING"
	StatusEventVerified Status = "EVENT_VERIFIED"
	StatusApproved      Status = "APPROVED"
	StatusFulfilled     Status = "FULFILLED"
	StatusUnknown       Status = "UNKNOWN"
)

// statusFromCode maps the contract's numeric status enum. Unrecognised codes
// map to StatusUnknown rather than failing the read.
func statusFromCode(code uint8) Status {
	switch code {
	case 0:
		return StatusPending
	case 1:
		return StatusEventVerified
	case 2:
		return StatusApproved
	case 3:
		return StatusFulfilled
	default:
		return StatusUnknown
	}
}

// RequestView is a point-in-time read of an on-ledger aid request.
type RequestView struct {
	ID        uint64 `json:"request_id"`
	Requester string `json:"requester"`
	Status    Status `json:"status"`
	Provider  string `json:"provider"`
	CostUSD   uint64 `json:"cost_usd"`
}

// ReadRequest reads MissionControl.requests(id). The call goes through a
// circuit breaker so a dead RPC endpoint stops burning the 60s call timeout
// on every status poll. Failures wrap ErrLedgerRead and are not retried.
func (c *Client) ReadRequest(ctx context.Context, requestID uint64) (RequestView, error) {
	if err := c.ready(); err != nil {
		return RequestView{}, err
	}

	data, err := missionControlABI.Pack("requests", new(big.Int).SetUint64(requestID))
	if err != nil {
		return RequestView{}, fmt.Errorf("pack requests call: %w", err)
	}

	raw, err := c.breaker.Execute(func() (interface{}, error) {
		return c.backend.CallContract(ctx, ethereum.CallMsg{To: &c.mcAddr, Data: data}, nil)
	})
	if err != nil {
		return RequestView{}, fmt.Errorf("%w: requests(%d): %v", ErrLedgerRead, requestID, err)
	}

	out, err := missionControlABI.Unpack("requests", raw.([]byte))
	if err != nil {
		return RequestView{}, fmt.Errorf("%w: decode requests(%d): %v", ErrLedgerRead, requestID, err)
	}
	if len(out) != 5 {
		return RequestView{}, fmt.Errorf("%w: requests(%d): %d fields, want 5", ErrLedgerRead, requestID, len(out))
	}

	return RequestView{
		ID:        out[0].(*big.Int).Uint64(),
		Requester: out[1].(common.Address).Hex(),
		Status:    statusFromCode(out[2].(uint8)),
		Provider:  out[3].(common.Address).Hex(),
		CostUSD:   out[4].(*big.Int).Uint64(),
	}, nil
}
