package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Minimal ABIs — only the functions this oracle actually calls.

const missionControlJSON = `[
  {"type":"function","name":"createRequest","stateMutability":"nonpayable",
   "inputs":[{"name":"_gps","type":"string"},{"name":"_aidType","type":"string"}],"outputs":[]},
  {"type":"function","name":"verifyEvent","stateMutability":"nonpayable",
   "inputs":[{"name":"_requestId","type":"uint256"},{"name":"_merkleProof","type":"bytes32[]"},
             {"name":"_merkleRoot","type":"bytes32"},{"name":"_leaf","type":"bytes32"}],"outputs":[]},
  {"type":"function","name":"approveAid","stateMutability":"nonpayable",
   "inputs":[{"name":"_requestId","type":"uint256"},{"name":"_provider","type":"address"},
             {"name":"_costUSD","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"confirmDelivery","stateMutability":"nonpayable",
   "inputs":[{"name":"_requestId","type":"uint256"},{"name":"_merkleProof","type":"bytes32[]"},
             {"name":"_merkleRoot","type":"bytes32"},{"name":"_leaf","type":"bytes32"}],"outputs":[]},
  {"type":"function","name":"requestCounter","stateMutability":"view",
   "inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"requests","stateMutability":"view",
   "inputs":[{"name":"","type":"uint256"}],
   "outputs":[{"name":"id","type":"uint256"},{"name":"requester","type":"address"},
              {"name":"status","type":"uint8"},{"name":"assignedProvider","type":"address"},
              {"name":"approvedCostUSD","type":"uint256"}]},
  {"type":"event","name":"RequestCreated","anonymous":false,
   "inputs":[{"indexed":true,"name":"id","type":"uint256"},{"indexed":true,"name":"requester","type":"address"}]},
  {"type":"event","name":"EventVerified","anonymous":false,
   "inputs":[{"indexed":true,"name":"id","type":"uint256"}]},
  {"type":"event","name":"AidApproved","anonymous":false,
   "inputs":[{"indexed":true,"name":"id","type":"uint256"}]},
  {"type":"event","name":"MissionComplete","anonymous":false,
   "inputs":[{"indexed":true,"name":"id","type":"uint256"}]}
]`

const aidTreasuryJSON = `[
  {"type":"function","name":"processPayout","stateMutability":"nonpayable",
   "inputs":[{"name":"_provider","type":"address"},{"name":"_usdAmount","type":"uint256"}],"outputs":[]}
]`

var (
	missionControlABI = mustABI(missionControlJSON)
	aidTreasuryABI    = mustABI(aidTreasuryJSON)
)

func mustABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic("chain: invalid ABI definition: " + err.Error())
	}
	return parsed
}
