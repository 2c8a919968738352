package execution

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	clierr "github.com/ggonzalez94/faucetbot/internal/errors"
	"github.com/ggonzalez94/faucetbot/internal/execution/signer"
	"github.com/ggonzalez94/faucetbot/internal/tracker"
)

// FeeQuote is the gas and EIP-1559 fee plan for one write.
type FeeQuote struct {
	GasEstimate uint64
	GasLimit    uint64
	BaseFee     *big.Int
	TipCap      *big.Int
	FeeCap      *big.Int
}

// WorstCaseFee is GasLimit * FeeCap in wei.
func (q FeeQuote) WorstCaseFee() *big.Int {
	if q.FeeCap == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Mul(new(big.Int).SetUint64(q.GasLimit), q.FeeCap)
}

// PendingTx is a broadcast transaction that has not been resolved yet.
type PendingTx struct {
	backend Backend
	hash    common.Hash
	tx      *types.Transaction
	msg     *ethereum.CallMsg
	Fees    FeeQuote
}

var _ tracker.Handle = (*PendingTx)(nil)

func (p *PendingTx) Hash() common.Hash { return p.hash }

// Transaction is nil for handles created from a bare hash.
func (p *PendingTx) Transaction() *types.Transaction { return p.tx }

// Resolve returns the receipt once mined. A missing receipt is reported as
// (nil, nil). A mined receipt with a failed status becomes a rejection whose
// reason is recovered by replaying the call at the receipt's block.
func (p *PendingTx) Resolve(ctx context.Context) (*types.Receipt, error) {
	receipt, err := p.backend.TransactionReceipt(ctx, p.hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, nil
		}
		return nil, err
	}
	if receipt == nil {
		return nil, nil
	}
	if receipt.Status == types.ReceiptStatusSuccessful {
		return receipt, nil
	}
	reason := p.replayRevert(ctx, receipt.BlockNumber)
	return nil, tracker.RejectWith(reason, clierr.New(clierr.CodeReverted, reason))
}

func (p *PendingTx) replayRevert(ctx context.Context, block *big.Int) string {
	const fallback = "transaction reverted on-chain"
	msg := p.msg
	if msg == nil {
		rebuilt, ok := p.rebuildCall(ctx)
		if !ok {
			return fallback
		}
		msg = rebuilt
	}
	_, err := p.backend.CallContract(ctx, *msg, block)
	if err == nil {
		return fallback
	}
	if reason := RevertReason(err); reason != "" {
		return reason
	}
	return fallback
}

func (p *PendingTx) rebuildCall(ctx context.Context) (*ethereum.CallMsg, bool) {
	tx := p.tx
	if tx == nil {
		fetched, _, err := p.backend.TransactionByHash(ctx, p.hash)
		if err != nil || fetched == nil {
			return nil, false
		}
		tx = fetched
	}
	from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		return nil, false
	}
	return &ethereum.CallMsg{From: from, To: tx.To(), Value: tx.Value(), Data: tx.Data(), Gas: tx.Gas()}, true
}

// PendingFromHash builds a handle for a transaction submitted elsewhere.
func (c *Client) PendingFromHash(raw string) (*PendingTx, error) {
	hash, ok := normalizeTxHash(raw)
	if !ok {
		return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid transaction hash %q", raw))
	}
	return &PendingTx{backend: c.backend, hash: hash}, nil
}

// QuoteWrite simulates and prices a write without sending it.
func (c *Client) QuoteWrite(ctx context.Context, from common.Address, contract Contract, method string, args ...any) (FeeQuote, error) {
	msg, err := c.callMsg(from, contract, method, args...)
	if err != nil {
		return FeeQuote{}, err
	}
	return c.quote(ctx, msg, contract.Name+"."+method)
}

// SubmitWrite packs, simulates, prices, signs and broadcasts a contract call.
// Nonce allocation and broadcast are serialized per chain and signer.
func (c *Client) SubmitWrite(ctx context.Context, txSigner signer.Signer, contract Contract, method string, args ...any) (*PendingTx, error) {
	if txSigner == nil {
		return nil, clierr.New(clierr.CodeSigner, "missing signer")
	}
	label := contract.Name + "." + method
	msg, err := c.callMsg(txSigner.Address(), contract, method, args...)
	if err != nil {
		return nil, err
	}
	chainID, err := c.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	fees, err := c.quote(ctx, msg, label)
	if err != nil {
		return nil, err
	}

	unlock := acquireSignerNonceLock(chainID, msg.From)
	defer unlock()

	nonce, err := c.backend.PendingNonceAt(ctx, msg.From)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "fetch nonce", err)
	}
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: fees.TipCap,
		GasFeeCap: fees.FeeCap,
		Gas:       fees.GasLimit,
		To:        msg.To,
		Value:     msg.Value,
		Data:      msg.Data,
	})
	signed, err := txSigner.SignTx(chainID, tx)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeSigner, "sign transaction", err)
	}
	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		return nil, wrapEVMExecutionError(clierr.CodeUnavailable, "broadcast transaction", err)
	}
	c.log.Info().
		Str("call", label).
		Str("from", msg.From.Hex()).
		Str("tx", signed.Hash().Hex()).
		Uint64("nonce", nonce).
		Uint64("gas", fees.GasLimit).
		Msg("transaction broadcast")
	return &PendingTx{backend: c.backend, hash: signed.Hash(), tx: signed, msg: &msg, Fees: fees}, nil
}

func (c *Client) callMsg(from common.Address, contract Contract, method string, args ...any) (ethereum.CallMsg, error) {
	data, err := contract.ABI.Pack(method, args...)
	if err != nil {
		return ethereum.CallMsg{}, clierr.Wrap(clierr.CodeUsage, fmt.Sprintf("pack %s.%s", contract.Name, method), err)
	}
	to := contract.Address
	return ethereum.CallMsg{From: from, To: &to, Value: big.NewInt(0), Data: data}, nil
}

func (c *Client) quote(ctx context.Context, msg ethereum.CallMsg, label string) (FeeQuote, error) {
	if c.opts.Simulate {
		if _, err := c.backend.CallContract(ctx, msg, nil); err != nil {
			return FeeQuote{}, wrapEVMExecutionError(clierr.CodeActionSim, fmt.Sprintf("simulate %s (eth_call)", label), err)
		}
	}
	rawGas, err := c.backend.EstimateGas(ctx, msg)
	if err != nil {
		return FeeQuote{}, wrapEVMExecutionError(clierr.CodeActionSim, fmt.Sprintf("estimate gas for %s", label), err)
	}
	gasLimit := uint64(float64(rawGas) * c.opts.GasMultiplier)
	if gasLimit == 0 {
		return FeeQuote{}, clierr.New(clierr.CodeActionSim, "estimate gas returned zero")
	}
	tipCap, err := resolveTipCap(ctx, c.backend, c.opts.MaxPriorityFeeGwei)
	if err != nil {
		return FeeQuote{}, err
	}
	baseFee, err := c.backend.BaseFee(ctx)
	if err != nil {
		return FeeQuote{}, clierr.Wrap(clierr.CodeUnavailable, "fetch base fee", err)
	}
	feeCap, err := resolveFeeCap(baseFee, tipCap, c.opts.MaxFeeGwei)
	if err != nil {
		return FeeQuote{}, err
	}
	return FeeQuote{GasEstimate: rawGas, GasLimit: gasLimit, BaseFee: baseFee, TipCap: tipCap, FeeCap: feeCap}, nil
}

func resolveTipCap(ctx context.Context, backend Backend, overrideGwei string) (*big.Int, error) {
	if strings.TrimSpace(overrideGwei) != "" {
		v, err := parseGwei(overrideGwei)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeUsage, "parse max priority fee", err)
		}
		return v, nil
	}
	tipCap, err := backend.SuggestGasTipCap(ctx)
	if err != nil {
		return big.NewInt(2_000_000_000), nil // 2 gwei fallback
	}
	return tipCap, nil
}

func resolveFeeCap(baseFee, tipCap *big.Int, overrideGwei string) (*big.Int, error) {
	if strings.TrimSpace(overrideGwei) != "" {
		v, err := parseGwei(overrideGwei)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeUsage, "parse max fee", err)
		}
		if v.Cmp(tipCap) < 0 {
			return nil, clierr.New(clierr.CodeUsage, "max fee must be >= max priority fee")
		}
		return v, nil
	}
	feeCap := new(big.Int).Mul(baseFee, big.NewInt(2))
	feeCap.Add(feeCap, tipCap)
	return feeCap, nil
}

func parseGwei(v string) (*big.Int, error) {
	clean := strings.TrimSpace(v)
	if clean == "" {
		return nil, fmt.Errorf("empty gwei value")
	}
	rat, ok := new(big.Rat).SetString(clean)
	if !ok {
		return nil, fmt.Errorf("invalid numeric value %q", v)
	}
	if rat.Sign() < 0 {
		return nil, fmt.Errorf("value must be non-negative")
	}
	rat.Mul(rat, big.NewRat(1_000_000_000, 1))
	if !rat.IsInt() {
		return nil, fmt.Errorf("value must resolve to an integer wei amount")
	}
	return new(big.Int).Set(rat.Num()), nil
}

var (
	nonceLocksMu sync.Mutex
	nonceLocks   = map[string]*sync.Mutex{}
)

// acquireSignerNonceLock blocks until no other submission for the same
// chain and signer holds the lock, and returns the release func.
func acquireSignerNonceLock(chainID *big.Int, addr common.Address) func() {
	key := fmt.Sprintf("%s/%s", chainID.String(), strings.ToLower(addr.Hex()))
	nonceLocksMu.Lock()
	mu, ok := nonceLocks[key]
	if !ok {
		mu = &sync.Mutex{}
		nonceLocks[key] = mu
	}
	nonceLocksMu.Unlock()
	mu.Lock()
	return mu.Unlock
}
