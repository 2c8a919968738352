package execution

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	clierr "github.com/ggonzalez94/faucetbot/internal/errors"
	"github.com/ggonzalez94/faucetbot/internal/execution/signer"
	"github.com/ggonzalez94/faucetbot/internal/tracker"
)

const testKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

// fakeBackend answers every RPC from its fields; the *Fn hooks override them.
type fakeBackend struct {
	mu sync.Mutex

	chainID  *big.Int
	gas      uint64
	tipCap   *big.Int
	tipErr   error
	baseFee  *big.Int
	nonce    uint64
	balance  *big.Int
	sendErr  error
	sent     []*types.Transaction
	calls    []ethereum.CallMsg
	byHash   *types.Transaction
	callFn   func(msg ethereum.CallMsg, block *big.Int) ([]byte, error)
	receipts func(call int) (*types.Receipt, error)
	receiptN int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		chainID: big.NewInt(30732),
		gas:     100_000,
		tipCap:  big.NewInt(2_000_000_000),
		baseFee: big.NewInt(1_000_000_000),
		nonce:   7,
		balance: big.NewInt(5e17),
	}
}

func (f *fakeBackend) ChainID(context.Context) (*big.Int, error) { return f.chainID, nil }

func (f *fakeBackend) CallContract(_ context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, msg)
	f.mu.Unlock()
	if f.callFn != nil {
		return f.callFn(msg, block)
	}
	return nil, nil
}

func (f *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return f.gas, nil
}

func (f *fakeBackend) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return f.tipCap, f.tipErr
}

func (f *fakeBackend) BaseFee(context.Context) (*big.Int, error) { return f.baseFee, nil }

func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return f.nonce, nil
}

func (f *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeBackend) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	f.receiptN++
	n := f.receiptN
	f.mu.Unlock()
	if f.receipts == nil {
		return nil, ethereum.NotFound
	}
	return f.receipts(n)
}

func (f *fakeBackend) TransactionByHash(context.Context, common.Hash) (*types.Transaction, bool, error) {
	if f.byHash == nil {
		return nil, false, ethereum.NotFound
	}
	return f.byHash, false, nil
}

func (f *fakeBackend) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	return f.balance, nil
}

func (f *fakeBackend) Close() {}

func testSigner(t *testing.T) *signer.LocalSigner {
	t.Helper()
	s, err := signer.NewLocalSignerFromHex(testKey)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	return s
}

func testVault(t *testing.T) Contract {
	t.Helper()
	vault, err := FaucetVault("0x00000000000000000000000000000000000000f1")
	if err != nil {
		t.Fatalf("vault: %v", err)
	}
	return vault
}

func TestSubmitWriteSignsAndBroadcasts(t *testing.T) {
	backend := newFakeBackend()
	client := NewClient(backend, DefaultOptions())
	s := testSigner(t)
	token := common.HexToAddress("0x38604D543659121faa8F68A91A5b633C7BFE9761")

	pending, err := client.SubmitWrite(context.Background(), s, testVault(t), "claimTokens", token, big.NewInt(100_000_000))
	if err != nil {
		t.Fatalf("SubmitWrite failed: %v", err)
	}
	if len(backend.sent) != 1 {
		t.Fatalf("expected one broadcast, got %d", len(backend.sent))
	}
	tx := backend.sent[0]
	if pending.Hash() != tx.Hash() {
		t.Fatalf("handle hash %s does not match broadcast %s", pending.Hash().Hex(), tx.Hash().Hex())
	}
	if tx.Nonce() != 7 || tx.Gas() != 120_000 {
		t.Fatalf("unexpected nonce/gas: %d/%d", tx.Nonce(), tx.Gas())
	}
	if tx.GasTipCap().Cmp(big.NewInt(2_000_000_000)) != 0 || tx.GasFeeCap().Cmp(big.NewInt(4_000_000_000)) != 0 {
		t.Fatalf("unexpected fees: tip=%s cap=%s", tx.GasTipCap(), tx.GasFeeCap())
	}
	from, err := types.Sender(types.LatestSignerForChainID(big.NewInt(30732)), tx)
	if err != nil {
		t.Fatalf("recover sender: %v", err)
	}
	if from != s.Address() {
		t.Fatalf("expected sender %s, got %s", s.Address().Hex(), from.Hex())
	}
	if len(backend.calls) != 1 {
		t.Fatalf("expected one simulation call, got %d", len(backend.calls))
	}
	if pending.Fees.WorstCaseFee().Cmp(new(big.Int).Mul(big.NewInt(120_000), big.NewInt(4_000_000_000))) != 0 {
		t.Fatalf("unexpected worst-case fee: %s", pending.Fees.WorstCaseFee())
	}
}

func TestSubmitWriteSimulationRevertIsNotBroadcast(t *testing.T) {
	backend := newFakeBackend()
	backend.callFn = func(ethereum.CallMsg, *big.Int) ([]byte, error) {
		return nil, revertError(t, "Cooldown period has not passed")
	}
	client := NewClient(backend, DefaultOptions())

	_, err := client.SubmitWrite(context.Background(), testSigner(t), testVault(t), "claimTokens", common.Address{}, big.NewInt(1))
	if err == nil {
		t.Fatal("expected simulation error")
	}
	if !clierr.HasCode(err, clierr.CodeActionSim) {
		t.Fatalf("expected simulation code, got %v", err)
	}
	if !strings.Contains(err.Error(), "Cooldown period has not passed") {
		t.Fatalf("expected revert reason in error, got %v", err)
	}
	if len(backend.sent) != 0 {
		t.Fatal("expected nothing to be broadcast")
	}
}

func TestSubmitWriteFeeOverrides(t *testing.T) {
	backend := newFakeBackend()
	backend.tipErr = errors.New("method not supported")
	opts := DefaultOptions()
	opts.MaxFeeGwei = "1.5"
	client := NewClient(backend, opts)

	if _, err := client.SubmitWrite(context.Background(), testSigner(t), testVault(t), "claimEth", big.NewInt(1)); err == nil {
		t.Fatal("expected max fee below fallback tip to fail")
	} else if !clierr.HasCode(err, clierr.CodeUsage) {
		t.Fatalf("expected usage error, got %v", err)
	}

	opts.MaxPriorityFeeGwei = "0.5"
	client = NewClient(backend, opts)
	if _, err := client.SubmitWrite(context.Background(), testSigner(t), testVault(t), "claimEth", big.NewInt(1)); err != nil {
		t.Fatalf("SubmitWrite failed: %v", err)
	}
	tx := backend.sent[len(backend.sent)-1]
	if tx.GasFeeCap().Cmp(big.NewInt(1_500_000_000)) != 0 || tx.GasTipCap().Cmp(big.NewInt(500_000_000)) != 0 {
		t.Fatalf("expected overrides to apply, got tip=%s cap=%s", tx.GasTipCap(), tx.GasFeeCap())
	}
}

func TestSubmitWriteRejectsBadArguments(t *testing.T) {
	client := NewClient(newFakeBackend(), DefaultOptions())
	_, err := client.SubmitWrite(context.Background(), testSigner(t), testVault(t), "claimTokens", "not-an-address")
	if !clierr.HasCode(err, clierr.CodeUsage) {
		t.Fatalf("expected usage error for bad args, got %v", err)
	}
	_, err = client.SubmitWrite(context.Background(), nil, testVault(t), "claimEth", big.NewInt(1))
	if !clierr.HasCode(err, clierr.CodeSigner) {
		t.Fatalf("expected signer error, got %v", err)
	}
}

func TestPendingTxResolve(t *testing.T) {
	backend := newFakeBackend()
	client := NewClient(backend, DefaultOptions())
	pending, err := client.SubmitWrite(context.Background(), testSigner(t), testVault(t), "claimEth", big.NewInt(1))
	if err != nil {
		t.Fatalf("SubmitWrite failed: %v", err)
	}

	receipt, err := pending.Resolve(context.Background())
	if receipt != nil || err != nil {
		t.Fatalf("expected not-yet-mined to be (nil, nil), got %v, %v", receipt, err)
	}

	backend.receipts = func(int) (*types.Receipt, error) {
		return &types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(10)}, nil
	}
	receipt, err = pending.Resolve(context.Background())
	if err != nil || receipt == nil {
		t.Fatalf("expected receipt, got %v, %v", receipt, err)
	}

	backend.receipts = func(int) (*types.Receipt, error) {
		return nil, errors.New("502 bad gateway")
	}
	if _, err := pending.Resolve(context.Background()); err == nil {
		t.Fatal("expected transport errors to pass through")
	} else if _, rejected := tracker.IsRejected(err); rejected {
		t.Fatalf("transport error must not be a rejection: %v", err)
	}
}

func TestPendingTxFailedReceiptReplaysRevertReason(t *testing.T) {
	backend := newFakeBackend()
	client := NewClient(backend, DefaultOptions())
	pending, err := client.SubmitWrite(context.Background(), testSigner(t), testVault(t), "claimEth", big.NewInt(1))
	if err != nil {
		t.Fatalf("SubmitWrite failed: %v", err)
	}

	var replayBlock *big.Int
	backend.callFn = func(_ ethereum.CallMsg, block *big.Int) ([]byte, error) {
		replayBlock = block
		return nil, revertError(t, "Insufficient vault balance")
	}
	backend.receipts = func(int) (*types.Receipt, error) {
		return &types.Receipt{Status: types.ReceiptStatusFailed, BlockNumber: big.NewInt(42)}, nil
	}
	_, err = pending.Resolve(context.Background())
	reason, rejected := tracker.IsRejected(err)
	if !rejected {
		t.Fatalf("expected rejection, got %v", err)
	}
	if reason != "Insufficient vault balance" {
		t.Fatalf("unexpected reason: %q", reason)
	}
	if !clierr.HasCode(err, clierr.CodeReverted) {
		t.Fatalf("expected reverted code in chain, got %v", err)
	}
	if replayBlock == nil || replayBlock.Int64() != 42 {
		t.Fatalf("expected replay at block 42, got %v", replayBlock)
	}
}

func TestPendingFromHashRebuildsCallForReplay(t *testing.T) {
	backend := newFakeBackend()
	client := NewClient(backend, DefaultOptions())
	s := testSigner(t)
	submitted, err := client.SubmitWrite(context.Background(), s, testVault(t), "claimEth", big.NewInt(1))
	if err != nil {
		t.Fatalf("SubmitWrite failed: %v", err)
	}
	backend.byHash = submitted.Transaction()

	pending, err := client.PendingFromHash(submitted.Hash().Hex())
	if err != nil {
		t.Fatalf("PendingFromHash failed: %v", err)
	}
	backend.callFn = func(msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
		if msg.From != s.Address() {
			return nil, errors.New("unexpected sender")
		}
		return nil, errors.New("execution reverted: Cooldown period has not passed")
	}
	backend.receipts = func(int) (*types.Receipt, error) {
		return &types.Receipt{Status: types.ReceiptStatusFailed, BlockNumber: big.NewInt(3)}, nil
	}
	_, err = pending.Resolve(context.Background())
	if reason, ok := tracker.IsRejected(err); !ok || reason != "Cooldown period has not passed" {
		t.Fatalf("expected replayed cooldown reason, got %q (%v)", reason, err)
	}

	if _, err := client.PendingFromHash("0x1234"); !clierr.HasCode(err, clierr.CodeUsage) {
		t.Fatalf("expected usage error for short hash, got %v", err)
	}
}

func TestPendingTxDrivesTracker(t *testing.T) {
	backend := newFakeBackend()
	backend.receipts = func(call int) (*types.Receipt, error) {
		if call < 3 {
			return nil, ethereum.NotFound
		}
		return &types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(1)}, nil
	}
	client := NewClient(backend, DefaultOptions())
	pending, err := client.SubmitWrite(context.Background(), testSigner(t), testVault(t), "claimEth", big.NewInt(1))
	if err != nil {
		t.Fatalf("SubmitWrite failed: %v", err)
	}

	tr := tracker.New(tracker.Options{PollInterval: time.Millisecond, Timeout: 5 * time.Second})
	outcome := tr.Track(context.Background(), tracker.Operation{Label: "Claiming", Handle: pending}, nil)
	if !outcome.Confirmed() {
		t.Fatalf("expected confirmation, got %+v", outcome)
	}
	if outcome.Attempts != 3 {
		t.Fatalf("expected three attempts, got %d", outcome.Attempts)
	}
}

func TestReads(t *testing.T) {
	backend := newFakeBackend()
	backend.callFn = func(msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
		word := make([]byte, 32)
		switch {
		case strings.HasPrefix(common.Bytes2Hex(msg.Data), common.Bytes2Hex(faucetVaultABI.Methods["canClaim"].ID)):
			word[31] = 1
		default:
			big.NewInt(2_500_000).FillBytes(word)
		}
		return word, nil
	}
	client := NewClient(backend, DefaultOptions())
	usdc, err := ERC20("0x38604D543659121faa8F68A91A5b633C7BFE9761")
	if err != nil {
		t.Fatalf("ERC20: %v", err)
	}
	owner := common.HexToAddress("0x00000000000000000000000000000000000000aa")

	balance, err := client.TokenBalance(context.Background(), usdc, owner)
	if err != nil || balance.Int64() != 2_500_000 {
		t.Fatalf("unexpected balance %v (%v)", balance, err)
	}
	allowance, err := client.Allowance(context.Background(), usdc, owner, common.HexToAddress("0x01"))
	if err != nil || allowance.Int64() != 2_500_000 {
		t.Fatalf("unexpected allowance %v (%v)", allowance, err)
	}
	ok, err := client.CanClaim(context.Background(), testVault(t), owner, usdc.Address)
	if err != nil || !ok {
		t.Fatalf("expected canClaim true, got %v (%v)", ok, err)
	}
	native, err := client.NativeBalance(context.Background(), owner)
	if err != nil || native.Cmp(big.NewInt(5e17)) != 0 {
		t.Fatalf("unexpected native balance %v (%v)", native, err)
	}

	if _, err := ERC20("nope"); !clierr.HasCode(err, clierr.CodeUsage) {
		t.Fatalf("expected usage error for bad address, got %v", err)
	}
}
