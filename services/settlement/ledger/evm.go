package ledger

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"trancheclear/core/epoch"
	"trancheclear/native/tranche"
)

// EVMClient defines the subset of the Ethereum RPC used by the ledger.
type EVMClient interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*gethtypes.Header, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *gethtypes.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error)
}

// DialEVMClient initialises an EVM RPC client for the provided endpoint.
// HTTP requests are traced.
func DialEVMClient(ctx context.Context, endpoint string) (*ethclient.Client, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return nil, fmt.Errorf("evm endpoint required")
	}
	httpClient := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	rpcClient, err := rpc.DialOptions(ctx, trimmed, rpc.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("dial evm endpoint: %w", err)
	}
	return ethclient.NewClient(rpcClient), nil
}

// Contracts lists the pool deployment the ledger talks to.
type Contracts struct {
	Coordinator common.Address
	Assessor    common.Address
	Reserve     common.Address
	NAVFeed     common.Address
}

// EVMConfig configures an EVM-backed ledger.
type EVMConfig struct {
	Contracts      Contracts
	ChainID        *big.Int
	Signer         *ecdsa.PrivateKey
	CurrencyScale  tranche.Scale
	RatioScale     tranche.Scale
	Confirmations  uint64
	PollInterval   time.Duration
	ConfirmTimeout time.Duration
}

// EVM implements Ledger against a pool deployed on an Ethereum-compatible
// chain. Writes are serialised so nonces stay ordered.
type EVM struct {
	client EVMClient
	cfg    EVMConfig
	from   common.Address

	mu sync.Mutex
}

// NewEVM constructs a ledger from an Ethereum client. A nil signer yields a
// read-only ledger whose writes fail with ErrNotConfigured.
func NewEVM(client EVMClient, cfg EVMConfig) (*EVM, error) {
	if client == nil {
		return nil, fmt.Errorf("ledger: evm client required")
	}
	if (cfg.Contracts.Coordinator == common.Address{}) {
		return nil, fmt.Errorf("ledger: coordinator address required")
	}
	if err := cfg.CurrencyScale.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.RatioScale.Validate(); err != nil {
		return nil, err
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 3 * time.Second
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 5 * time.Minute
	}
	l := &EVM{client: client, cfg: cfg}
	if cfg.Signer != nil {
		if cfg.ChainID == nil || cfg.ChainID.Sign() <= 0 {
			return nil, fmt.Errorf("ledger: chain id required for signing")
		}
		l.from = gethcrypto.PubkeyToAddress(cfg.Signer.PublicKey)
	}
	return l, nil
}

// From returns the transacting account.
func (l *EVM) From() common.Address { return l.from }

func (l *EVM) call(ctx context.Context, block *big.Int, contract abi.ABI, addr common.Address, method string, args ...any) ([]any, error) {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	out, err := l.client.CallContract(ctx, ethereum.CallMsg{From: l.from, To: &addr, Data: data}, block)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := contract.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("decode %s: empty result", method)
	}
	return values, nil
}

func (l *EVM) callUint(ctx context.Context, block *big.Int, contract abi.ABI, addr common.Address, method string) (*big.Int, error) {
	values, err := l.call(ctx, block, contract, addr, method)
	if err != nil {
		return nil, err
	}
	value, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("decode %s: unexpected type %T", method, values[0])
	}
	return value, nil
}

func (l *EVM) head(ctx context.Context) (*gethtypes.Header, error) {
	header, err := l.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch head: %w", err)
	}
	if header == nil || header.Number == nil {
		return nil, fmt.Errorf("fetch head: block metadata unavailable")
	}
	return header, nil
}

// ReadPoolState reads the pool at the latest block. While a submission
// period is running the coordinator's close-time snapshot is authoritative
// for reserve, NAV and senior asset.
func (l *EVM) ReadPoolState(ctx context.Context) (tranche.PoolState, error) {
	header, err := l.head(ctx)
	if err != nil {
		return tranche.PoolState{}, err
	}
	block := header.Number
	c := l.cfg.Contracts
	values, err := l.call(ctx, block, coordinatorABI, c.Coordinator, "submissionPeriod")
	if err != nil {
		return tranche.PoolState{}, err
	}
	inSubmission, _ := values[0].(bool)

	var reserve, nav, senior *big.Int
	if inSubmission {
		if reserve, err = l.callUint(ctx, block, coordinatorABI, c.Coordinator, "epochReserve"); err != nil {
			return tranche.PoolState{}, err
		}
		if nav, err = l.callUint(ctx, block, coordinatorABI, c.Coordinator, "epochNAV"); err != nil {
			return tranche.PoolState{}, err
		}
		if senior, err = l.callUint(ctx, block, coordinatorABI, c.Coordinator, "epochSeniorAsset"); err != nil {
			return tranche.PoolState{}, err
		}
	} else {
		if reserve, err = l.callUint(ctx, block, reserveABI, c.Reserve, "totalBalance"); err != nil {
			return tranche.PoolState{}, err
		}
		if nav, err = l.callUint(ctx, block, navFeedABI, c.NAVFeed, "currentNAV"); err != nil {
			return tranche.PoolState{}, err
		}
		debt, err := l.callUint(ctx, block, assessorABI, c.Assessor, "seniorDebt")
		if err != nil {
			return tranche.PoolState{}, err
		}
		balance, err := l.callUint(ctx, block, assessorABI, c.Assessor, "seniorBalance")
		if err != nil {
			return tranche.PoolState{}, err
		}
		senior = new(big.Int).Add(debt, balance)
	}
	minSenior, err := l.callUint(ctx, block, assessorABI, c.Assessor, "minSeniorRatio")
	if err != nil {
		return tranche.PoolState{}, err
	}
	maxSenior, err := l.callUint(ctx, block, assessorABI, c.Assessor, "maxSeniorRatio")
	if err != nil {
		return tranche.PoolState{}, err
	}
	maxReserve, err := l.callUint(ctx, block, assessorABI, c.Assessor, "maxReserve")
	if err != nil {
		return tranche.PoolState{}, err
	}
	fee, err := l.callUint(ctx, block, assessorABI, c.Assessor, "seniorInterestRate")
	if err != nil {
		return tranche.PoolState{}, err
	}

	currency := l.cfg.CurrencyScale
	ratio := l.cfg.RatioScale
	var pool tranche.PoolState
	conversions := []struct {
		dst   *decimal.Decimal
		raw   *big.Int
		scale tranche.Scale
	}{
		{&pool.Reserve, reserve, currency},
		{&pool.NetAssetValue, nav, currency},
		{&pool.SeniorAsset, senior, currency},
		{&pool.MaxReserve, maxReserve, currency},
		{&pool.SeniorInterestRate, fee, ratio},
	}
	for _, conv := range conversions {
		value, err := conv.scale.FromFixed(conv.raw)
		if err != nil {
			return tranche.PoolState{}, err
		}
		*conv.dst = value
	}
	minSeniorRatio, err := ratio.FromFixed(minSenior)
	if err != nil {
		return tranche.PoolState{}, err
	}
	maxSeniorRatio, err := ratio.FromFixed(maxSenior)
	if err != nil {
		return tranche.PoolState{}, err
	}
	one := decimal.NewFromInt(1)
	pool.MinJuniorRatio = one.Sub(maxSeniorRatio)
	pool.MaxJuniorRatio = one.Sub(minSeniorRatio)
	return pool, nil
}

// ReadOrderState reads the aggregate order book of the open epoch.
func (l *EVM) ReadOrderState(ctx context.Context) (tranche.OrderState, error) {
	values, err := l.call(ctx, nil, coordinatorABI, l.cfg.Contracts.Coordinator, "order")
	if err != nil {
		return tranche.OrderState{}, err
	}
	if len(values) != 4 {
		return tranche.OrderState{}, fmt.Errorf("decode order: expected 4 values, got %d", len(values))
	}
	var fields [4]decimal.Decimal
	for i, v := range values {
		raw, ok := v.(*big.Int)
		if !ok {
			return tranche.OrderState{}, fmt.Errorf("decode order: unexpected type %T", v)
		}
		value, err := l.cfg.CurrencyScale.FromFixed(raw)
		if err != nil {
			return tranche.OrderState{}, err
		}
		fields[i] = value
	}
	return tranche.OrderState{
		SeniorRedeem: fields[0],
		JuniorRedeem: fields[1],
		JuniorSupply: fields[2],
		SeniorSupply: fields[3],
	}, nil
}

// ReadEpochStatus reads the coordinator bookkeeping pinned to one block.
func (l *EVM) ReadEpochStatus(ctx context.Context) (epoch.Status, error) {
	header, err := l.head(ctx)
	if err != nil {
		return epoch.Status{}, err
	}
	block := header.Number
	coord := l.cfg.Contracts.Coordinator
	uints := map[string]*big.Int{}
	for _, method := range []string{"currentEpoch", "lastEpochClosed", "minimumEpochTime", "challengeTime", "minChallengePeriodEnd", "lastEpochExecuted"} {
		value, err := l.callUint(ctx, block, coordinatorABI, coord, method)
		if err != nil {
			return epoch.Status{}, err
		}
		uints[method] = value
	}
	values, err := l.call(ctx, block, coordinatorABI, coord, "submissionPeriod")
	if err != nil {
		return epoch.Status{}, err
	}
	submission, _ := values[0].(bool)
	return epoch.Status{
		EpochID:               uints["lastEpochExecuted"].Uint64() + 1,
		CurrentEpoch:          uints["currentEpoch"].Uint64(),
		LastEpochClosed:       unixTime(uints["lastEpochClosed"]),
		MinimumEpochTime:      seconds(uints["minimumEpochTime"]),
		ChallengeTime:         seconds(uints["challengeTime"]),
		SubmissionPeriod:      submission,
		MinChallengePeriodEnd: unixTime(uints["minChallengePeriodEnd"]),
		LastEpochExecuted:     uints["lastEpochExecuted"].Uint64(),
		BlockTime:             time.Unix(int64(header.Time), 0).UTC(),
	}, nil
}

func (l *EVM) CloseEpoch(ctx context.Context) (Confirmation, error) {
	data, err := coordinatorABI.Pack("closeEpoch")
	if err != nil {
		return Confirmation{}, err
	}
	return l.transact(ctx, l.cfg.Contracts.Coordinator, data)
}

// SubmitSolution simulates the submission first so the coordinator's status
// code is surfaced verbatim, then sends it.
func (l *EVM) SubmitSolution(ctx context.Context, solution tranche.Solution) (Confirmation, error) {
	if l.cfg.Signer == nil {
		return Confirmation{}, ErrNotConfigured
	}
	amounts := []decimal.Decimal{solution.SeniorRedeem, solution.JuniorRedeem, solution.JuniorSupply, solution.SeniorSupply}
	args := make([]any, len(amounts))
	for i, amount := range amounts {
		word, err := l.cfg.CurrencyScale.ToUint256(amount)
		if err != nil {
			return Confirmation{}, fmt.Errorf("encode solution: %w", err)
		}
		args[i] = word.ToBig()
	}
	values, err := l.call(ctx, nil, coordinatorABI, l.cfg.Contracts.Coordinator, "submitSolution", args...)
	if err != nil {
		if isExecutionRevert(err) {
			return Confirmation{}, fmt.Errorf("%w: %v", ErrReverted, err)
		}
		return Confirmation{}, err
	}
	code, ok := values[0].(*big.Int)
	if !ok {
		return Confirmation{}, fmt.Errorf("decode submitSolution: unexpected type %T", values[0])
	}
	if code.Sign() != 0 {
		if !code.IsInt64() {
			return Confirmation{}, &RevertError{Code: 0, Reason: "status code out of range: " + code.String()}
		}
		return Confirmation{}, NewRevertError(code.Int64())
	}
	data, err := coordinatorABI.Pack("submitSolution", args...)
	if err != nil {
		return Confirmation{}, err
	}
	return l.transact(ctx, l.cfg.Contracts.Coordinator, data)
}

func (l *EVM) ExecuteEpoch(ctx context.Context) (Confirmation, error) {
	data, err := coordinatorABI.Pack("executeEpoch")
	if err != nil {
		return Confirmation{}, err
	}
	return l.transact(ctx, l.cfg.Contracts.Coordinator, data)
}

func (l *EVM) SetMinimumEpochTime(ctx context.Context, d time.Duration) (Confirmation, error) {
	return l.file(ctx, "minimumEpochTime", d)
}

func (l *EVM) SetMinimumChallengeTime(ctx context.Context, d time.Duration) (Confirmation, error) {
	return l.file(ctx, "challengeTime", d)
}

func (l *EVM) file(ctx context.Context, name string, d time.Duration) (Confirmation, error) {
	var key [32]byte
	copy(key[:], name)
	data, err := coordinatorABI.Pack("file", key, big.NewInt(int64(d/time.Second)))
	if err != nil {
		return Confirmation{}, err
	}
	return l.transact(ctx, l.cfg.Contracts.Coordinator, data)
}

func (l *EVM) transact(ctx context.Context, to common.Address, data []byte) (Confirmation, error) {
	if l.cfg.Signer == nil {
		return Confirmation{}, ErrNotConfigured
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	gas, err := l.client.EstimateGas(ctx, ethereum.CallMsg{From: l.from, To: &to, Data: data})
	if err != nil {
		if isExecutionRevert(err) {
			return Confirmation{}, fmt.Errorf("%w: %v", ErrReverted, err)
		}
		return Confirmation{}, fmt.Errorf("estimate gas: %w", err)
	}
	nonce, err := l.client.PendingNonceAt(ctx, l.from)
	if err != nil {
		return Confirmation{}, fmt.Errorf("fetch nonce: %w", err)
	}
	tip, err := l.client.SuggestGasTipCap(ctx)
	if err != nil {
		return Confirmation{}, fmt.Errorf("suggest tip: %w", err)
	}
	header, err := l.head(ctx)
	if err != nil {
		return Confirmation{}, err
	}
	feeCap := new(big.Int).Set(tip)
	if header.BaseFee != nil {
		feeCap.Add(feeCap, new(big.Int).Mul(header.BaseFee, big.NewInt(2)))
	}
	tx := gethtypes.NewTx(&gethtypes.DynamicFeeTx{
		ChainID:   l.cfg.ChainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas + gas/5,
		To:        &to,
		Data:      data,
	})
	signed, err := gethtypes.SignTx(tx, gethtypes.LatestSignerForChainID(l.cfg.ChainID), l.cfg.Signer)
	if err != nil {
		return Confirmation{}, fmt.Errorf("sign transaction: %w", err)
	}
	// A failed send may still have reached the node, so the signed hash is
	// reported as pending and never re-signed with a fresh nonce.
	if err := l.client.SendTransaction(ctx, signed); err != nil && !alreadyKnown(err) {
		return Confirmation{}, &PendingError{TxHash: signed.Hash(), Err: fmt.Errorf("send transaction: %w", err)}
	}
	confirmation, err := l.waitMined(ctx, signed.Hash())
	if err != nil {
		if errors.Is(err, ErrReverted) {
			return Confirmation{}, err
		}
		return Confirmation{}, &PendingError{TxHash: signed.Hash(), Err: err}
	}
	return confirmation, nil
}

// waitMined polls for the receipt until it is buried under the configured
// number of confirmations or the confirmation timeout elapses.
func (l *EVM) waitMined(ctx context.Context, hash common.Hash) (Confirmation, error) {
	ctx, cancel := context.WithTimeout(ctx, l.cfg.ConfirmTimeout)
	defer cancel()
	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()
	for {
		receipt, err := l.client.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			if receipt.Status != gethtypes.ReceiptStatusSuccessful {
				return Confirmation{}, fmt.Errorf("%w: %s", ErrReverted, hash.Hex())
			}
			if confirmation, ok := l.confirmed(ctx, hash, receipt); ok {
				return confirmation, nil
			}
		}
		select {
		case <-ctx.Done():
			return Confirmation{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (l *EVM) confirmed(ctx context.Context, hash common.Hash, receipt *gethtypes.Receipt) (Confirmation, bool) {
	if receipt.BlockNumber == nil {
		return Confirmation{}, false
	}
	head, err := l.head(ctx)
	if err != nil || head.Number.Cmp(receipt.BlockNumber) < 0 {
		return Confirmation{}, false
	}
	depth := new(big.Int).Sub(head.Number, receipt.BlockNumber)
	depth.Add(depth, big.NewInt(1))
	if depth.Cmp(new(big.Int).SetUint64(l.cfg.Confirmations)) < 0 {
		return Confirmation{}, false
	}
	mined, err := l.client.HeaderByNumber(ctx, receipt.BlockNumber)
	if err != nil || mined == nil {
		return Confirmation{}, false
	}
	return Confirmation{
		TxHash:      hash,
		BlockNumber: receipt.BlockNumber.Uint64(),
		BlockTime:   time.Unix(int64(mined.Time), 0).UTC(),
	}, true
}

func alreadyKnown(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already known") || strings.Contains(msg, "known transaction")
}

func isExecutionRevert(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "execution reverted")
}

func unixTime(v *big.Int) time.Time {
	if v == nil || v.Sign() == 0 {
		return time.Time{}
	}
	return time.Unix(v.Int64(), 0).UTC()
}

func seconds(v *big.Int) time.Duration {
	if v == nil {
		return 0
	}
	return time.Duration(v.Int64()) * time.Second
}
