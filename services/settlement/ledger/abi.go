package ledger

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const coordinatorABIJSON = `[
{"type":"function","name":"currentEpoch","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"lastEpochClosed","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"lastEpochExecuted","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"minimumEpochTime","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"challengeTime","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"submissionPeriod","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"bool"}]},
{"type":"function","name":"minChallengePeriodEnd","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"epochReserve","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"epochNAV","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"epochSeniorAsset","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"order","stateMutability":"view","inputs":[],"outputs":[
 {"name":"seniorRedeem","type":"uint256"},{"name":"juniorRedeem","type":"uint256"},
 {"name":"juniorSupply","type":"uint256"},{"name":"seniorSupply","type":"uint256"}]},
{"type":"function","name":"closeEpoch","stateMutability":"nonpayable","inputs":[],"outputs":[]},
{"type":"function","name":"submitSolution","stateMutability":"nonpayable","inputs":[
 {"name":"seniorRedeem","type":"uint256"},{"name":"juniorRedeem","type":"uint256"},
 {"name":"juniorSupply","type":"uint256"},{"name":"seniorSupply","type":"uint256"}],
 "outputs":[{"name":"","type":"int256"}]},
{"type":"function","name":"executeEpoch","stateMutability":"nonpayable","inputs":[],"outputs":[]},
{"type":"function","name":"file","stateMutability":"nonpayable","inputs":[{"name":"name","type":"bytes32"},{"name":"value","type":"uint256"}],"outputs":[]}
]`

const assessorABIJSON = `[
{"type":"function","name":"seniorDebt","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"seniorBalance","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"minSeniorRatio","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"maxSeniorRatio","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"maxReserve","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"seniorInterestRate","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]}
]`

const reserveABIJSON = `[
{"type":"function","name":"totalBalance","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]}
]`

const navFeedABIJSON = `[
{"type":"function","name":"currentNAV","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]}
]`

var (
	coordinatorABI = mustParseABI(coordinatorABIJSON)
	assessorABI    = mustParseABI(assessorABIJSON)
	reserveABI     = mustParseABI(reserveABIJSON)
	navFeedABI     = mustParseABI(navFeedABIJSON)
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
