package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	clierr "github.com/ggonzalez94/faucetbot/internal/errors"
	"github.com/ggonzalez94/faucetbot/internal/execution"
)

const (
	testTxHash   = "0x5c504ed432cb51138bcf09aa5e8a410dd4a1e204ef84bfed1be16dfba1b22060"
	testAccount  = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	testVault    = "0x1111111111111111111111111111111111111111"
	wstethAddr   = "0xeAC3d56DCB15a3Bc174aB292B7023e9Fc9F7aDf0"
	usdcAddr     = "0x38604D543659121faa8F68A91A5b633C7BFE9761"
	marketTokenA = "0x3A7315a05Bfca36CD309266F99028cF80AD6b1C6"
)

// chainStub is a read-mostly RPC backend for command tests.
type chainStub struct {
	receipt   *types.Receipt
	tokenBal  *big.Int
	canClaim  bool
	estimated uint64
}

func (c *chainStub) ChainID(context.Context) (*big.Int, error) { return big.NewInt(30732), nil }

func (c *chainStub) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if msg.To != nil && *msg.To == common.HexToAddress(testVault) {
		if c.canClaim {
			return common.LeftPadBytes([]byte{1}, 32), nil
		}
		return make([]byte, 32), nil
	}
	return common.LeftPadBytes(c.tokenBal.Bytes(), 32), nil
}

func (c *chainStub) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return c.estimated, nil
}

func (c *chainStub) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (c *chainStub) BaseFee(context.Context) (*big.Int, error) { return big.NewInt(2_000_000_000), nil }

func (c *chainStub) PendingNonceAt(context.Context, common.Address) (uint64, error) { return 0, nil }

func (c *chainStub) SendTransaction(context.Context, *types.Transaction) error {
	return fmt.Errorf("read-only stub")
}

func (c *chainStub) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	if c.receipt == nil {
		return nil, ethereum.NotFound
	}
	return c.receipt, nil
}

func (c *chainStub) TransactionByHash(context.Context, common.Hash) (*types.Transaction, bool, error) {
	return nil, false, ethereum.NotFound
}

func (c *chainStub) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	return big.NewInt(5e17), nil
}

func (c *chainStub) Close() {}

func runWithChain(t *testing.T, stub *chainStub, args ...string) (int, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	r := NewRunnerWithWriters(&stdout, &stderr)
	r.dial = func(_ context.Context, _ string, opts execution.Options) (*execution.Client, error) {
		return execution.NewClient(stub, opts), nil
	}
	return r.Run(args), &stdout, &stderr
}

func TestRunnerTrackConfirmedRecordsOperation(t *testing.T) {
	isolateEnv(t)
	stub := &chainStub{receipt: &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		BlockNumber: big.NewInt(1234),
		GasUsed:     21000,
	}}
	code, stdout, stderr := runWithChain(t, stub, "track", testTxHash, "--label", "Faucet claim", "--results-only")
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr.String())
	}
	var res map[string]any
	if err := json.Unmarshal(stdout.Bytes(), &res); err != nil {
		t.Fatalf("failed to parse track result: %v output=%s", err, stdout.String())
	}
	if res["outcome"] != "confirmed" || res["block_number"] != float64(1234) || res["gas_used"] != float64(21000) {
		t.Fatalf("unexpected track result: %v", res)
	}
	opID, _ := res["operation_id"].(string)
	if opID == "" {
		t.Fatalf("expected operation id, got %v", res)
	}

	code, stdout, stderr = runCLI(t, "ops", "show", opID, "--results-only")
	if code != 0 {
		t.Fatalf("expected stored operation, got %d stderr=%s", code, stderr.String())
	}
	var rec map[string]any
	if err := json.Unmarshal(stdout.Bytes(), &rec); err != nil {
		t.Fatalf("failed to parse operation: %v", err)
	}
	if rec["status"] != "confirmed" || rec["kind"] != "track" || rec["label"] != "Faucet claim" {
		t.Fatalf("unexpected stored operation: %v", rec)
	}
}

func TestRunnerTrackRevertedExitsWithRevertCode(t *testing.T) {
	isolateEnv(t)
	stub := &chainStub{receipt: &types.Receipt{Status: types.ReceiptStatusFailed, BlockNumber: big.NewInt(9)}}
	code, _, stderr := runWithChain(t, stub, "track", testTxHash)
	if code != int(clierr.CodeReverted) {
		t.Fatalf("expected exit %d, got %d stderr=%s", clierr.CodeReverted, code, stderr.String())
	}
	env := decodeErrorEnvelope(t, stderr)
	errBody, _ := env["error"].(map[string]any)
	if errBody["type"] != "transaction_reverted" {
		t.Fatalf("unexpected error body: %v", errBody)
	}
}

func TestRunnerTrackTimesOut(t *testing.T) {
	isolateEnv(t)
	code, _, stderr := runWithChain(t, &chainStub{}, "track", testTxHash, "--wait", "20ms")
	if code != int(clierr.CodeActionTimeout) {
		t.Fatalf("expected exit %d, got %d stderr=%s", clierr.CodeActionTimeout, code, stderr.String())
	}

	code, stdout, _ := runCLI(t, "ops", "list", "--status", "timed_out", "--results-only")
	if code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	var out []map[string]any
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		t.Fatalf("failed to parse ops list: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected one timed out operation, got %s", stdout.String())
	}
}

func TestRunnerBalancesReportsTokensAndCooldown(t *testing.T) {
	isolateEnv(t)
	t.Setenv("FAUCETBOT_FAUCET_VAULT", testVault)
	stub := &chainStub{tokenBal: big.NewInt(2_000_000), canClaim: true}
	code, stdout, stderr := runWithChain(t, stub, "balances", testAccount, "--check-faucet", "--results-only")
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr.String())
	}
	var res struct {
		ChainID string `json:"chain_id"`
		Native  string `json:"native"`
		Tokens  []struct {
			Symbol   string `json:"symbol"`
			Amount   string `json:"amount"`
			CanClaim *bool  `json:"can_claim"`
		} `json:"tokens"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &res); err != nil {
		t.Fatalf("failed to parse balances: %v output=%s", err, stdout.String())
	}
	if res.ChainID != "eip155:30732" || res.Native != "0.5" {
		t.Fatalf("unexpected account header: %+v", res)
	}
	var usdc bool
	for _, tok := range res.Tokens {
		if tok.CanClaim == nil || !*tok.CanClaim {
			t.Fatalf("expected can_claim for %s", tok.Symbol)
		}
		if tok.Symbol == "USDC" {
			usdc = true
			if tok.Amount != "2" {
				t.Fatalf("unexpected USDC amount: %s", tok.Amount)
			}
		}
	}
	if !usdc {
		t.Fatalf("expected USDC in balances: %s", stdout.String())
	}
}

func TestRunnerBalancesRejectsBadAddress(t *testing.T) {
	isolateEnv(t)
	code, _, _ := runWithChain(t, &chainStub{}, "balances", "not-an-address")
	if code != int(clierr.CodeUsage) {
		t.Fatalf("expected exit 2, got %d", code)
	}
}

func TestRunnerClaimQuote(t *testing.T) {
	isolateEnv(t)
	t.Setenv("FAUCETBOT_FAUCET_VAULT", testVault)
	stub := &chainStub{tokenBal: big.NewInt(0), estimated: 100_000}
	code, stdout, stderr := runWithChain(t, stub, "claim-quote", testAccount, "--symbol", "usdc", "--results-only")
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr.String())
	}
	var q map[string]any
	if err := json.Unmarshal(stdout.Bytes(), &q); err != nil {
		t.Fatalf("failed to parse quote: %v", err)
	}
	if q["symbol"] != "USDC" || q["amount"] != "100" || q["gas_estimate"] != float64(100_000) {
		t.Fatalf("unexpected quote: %v", q)
	}
	if q["gas_limit"].(float64) <= 100_000 {
		t.Fatalf("expected gas limit above estimate, got %v", q["gas_limit"])
	}
}

func newFeedServer(t *testing.T) (*httptest.Server, *int32) {
	t.Helper()
	var tickerHits int32
	mux := http.NewServeMux()
	mux.HandleFunc("/prices/tickers", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&tickerHits, 1)
		_, _ = fmt.Fprintf(w, `[
			{"tokenAddress":%q,"tokenSymbol":"WSTETH","minPrice":"3000000000000000","maxPrice":"3010000000000000","updatedAt":1700000000,"priceDecimals":12},
			{"tokenAddress":%q,"tokenSymbol":"USDC","minPrice":"1000000000000000000000000","maxPrice":"1000000000000000000000000","updatedAt":1700000000,"priceDecimals":24}
		]`, wstethAddr, usdcAddr)
	})
	mux.HandleFunc("/marketdata", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintf(w, `{"data":{"WSTETH/USD":{"marketTokenAddress":%q,"indexTokenAddress":%q,"longTokenAddress":%q,"shortTokenAddress":%q,"isSpotOnly":false,"name":"WSTETH/USD"}}}`,
			marketTokenA, wstethAddr, wstethAddr, usdcAddr)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &tickerHits
}

func TestRunnerPricesTickersCachesFeedResponse(t *testing.T) {
	isolateEnv(t)
	srv, hits := newFeedServer(t)
	t.Setenv("FAUCETBOT_TICKERS_URL", srv.URL+"/prices/tickers")
	t.Setenv("FAUCETBOT_MARKET_DATA_URL", srv.URL+"/marketdata")

	code, stdout, stderr := runCLI(t, "prices", "tickers", "--asset", "wsteth")
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr.String())
	}
	var env struct {
		Data []map[string]any `json:"data"`
		Meta struct {
			Cache struct {
				Status string `json:"status"`
			} `json:"cache"`
		} `json:"meta"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &env); err != nil {
		t.Fatalf("failed to parse prices: %v output=%s", err, stdout.String())
	}
	if len(env.Data) != 1 || env.Data[0]["symbol"] != "WSTETH" || env.Data[0]["min_price_usd"] != float64(3000) {
		t.Fatalf("unexpected prices: %s", stdout.String())
	}
	if env.Meta.Cache.Status != "write" {
		t.Fatalf("expected cache write on first run, got %q", env.Meta.Cache.Status)
	}

	code, stdout, _ = runCLI(t, "prices", "tickers", "--asset", "wsteth")
	if code != 0 {
		t.Fatalf("expected exit 0 on second run, got %d", code)
	}
	if err := json.Unmarshal(stdout.Bytes(), &env); err != nil {
		t.Fatalf("failed to parse prices: %v", err)
	}
	if env.Meta.Cache.Status != "hit" {
		t.Fatalf("expected cache hit on second run, got %q", env.Meta.Cache.Status)
	}
	if got := atomic.LoadInt32(hits); got != 1 {
		t.Fatalf("expected one feed request, got %d", got)
	}
}

func TestRunnerPricesMarketsFlagsTradableMarkets(t *testing.T) {
	isolateEnv(t)
	srv, _ := newFeedServer(t)
	t.Setenv("FAUCETBOT_TICKERS_URL", srv.URL+"/prices/tickers")
	t.Setenv("FAUCETBOT_MARKET_DATA_URL", srv.URL+"/marketdata")

	code, stdout, stderr := runCLI(t, "prices", "markets", "--no-cache", "--results-only")
	if code != 0 {
		t.Fatalf("expected exit 0, got %d stderr=%s", code, stderr.String())
	}
	var markets []map[string]any
	if err := json.Unmarshal(stdout.Bytes(), &markets); err != nil {
		t.Fatalf("failed to parse markets: %v", err)
	}
	if len(markets) != 1 || markets[0]["market_token"] != marketTokenA || markets[0]["tradable"] != true {
		t.Fatalf("unexpected markets: %s", stdout.String())
	}
}

func TestRunnerPricesRejectsUnknownSymbol(t *testing.T) {
	isolateEnv(t)
	code, _, _ := runCLI(t, "prices", "tickers", "--asset", "DOGE")
	if code != int(clierr.CodeUsage) {
		t.Fatalf("expected exit 2, got %d", code)
	}
}
