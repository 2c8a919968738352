package pricefeed

import (
	"context"
	"math/big"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ggonzalez94/faucetbot/internal/cache"
	clierr "github.com/ggonzalez94/faucetbot/internal/errors"
	"github.com/ggonzalez94/faucetbot/internal/httpx"
)

const tickersBody = `[
	{"tokenAddress":"0x1AD94D0a799664D459cB467655eC0EA4cc8Ad478","tokenSymbol":"STMOVE","minPrice":"650000000000","maxPrice":"651000000000","updatedAt":1700000000,"priceDecimals":12},
	{"tokenAddress":"0x38604D543659121faa8F68A91A5b633C7BFE9761","tokenSymbol":"USDC","minPrice":1000000000000000000000000,"maxPrice":"1000000000000000000000000","updatedAt":1700000000,"priceDecimals":24}
]`

const marketsBody = `{"data":{
	"b":{"marketTokenAddress":"0x00000000000000000000000000000000000000b1","indexTokenAddress":"0x1ad94d0a799664d459cb467655ec0ea4cc8ad478","longTokenAddress":"0x1AD94D0a799664D459cB467655eC0EA4cc8Ad478","shortTokenAddress":"0x38604D543659121faa8F68A91A5b633C7BFE9761","name":"STMOVE/USD","isSpotOnly":false},
	"a":{"marketTokenAddress":"0x00000000000000000000000000000000000000a1","indexTokenAddress":"0xeAC3d56DCB15a3Bc174aB292B7023e9Fc9F7aDf0","name":"WSTETH/USD"}
}}`

func newFeedServer(t *testing.T, marketHits *int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/prices/tickers", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(tickersBody))
	})
	mux.HandleFunc("/marketdata", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(marketHits, 1)
		_, _ = w.Write([]byte(marketsBody))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, srv *httptest.Server, opts ...Option) *Client {
	t.Helper()
	client, err := New(httpx.New(2*time.Second, 0), srv.URL+"/prices/tickers", srv.URL+"/marketdata", opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return client
}

func TestTickersParsesStringAndNumericPrices(t *testing.T) {
	var hits int32
	client := newTestClient(t, newFeedServer(t, &hits))

	tickers, err := client.Tickers(context.Background())
	if err != nil {
		t.Fatalf("Tickers failed: %v", err)
	}
	if len(tickers) != 2 {
		t.Fatalf("expected 2 tickers, got %d", len(tickers))
	}
	if tickers[1].MinPrice.String() != "1000000000000000000000000" {
		t.Fatalf("unexpected numeric min price: %s", tickers[1].MinPrice)
	}

	price, err := client.MinPrice(context.Background(), "0x1ad94d0a799664d459cb467655ec0ea4cc8ad478")
	if err != nil {
		t.Fatalf("MinPrice failed: %v", err)
	}
	if price.Cmp(big.NewInt(650000000000)) != 0 {
		t.Fatalf("unexpected min price: %s", price)
	}

	_, err = client.MinPrice(context.Background(), "0x0000000000000000000000000000000000000009")
	if !clierr.HasCode(err, clierr.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMarketTokenForMatchesIndexToken(t *testing.T) {
	var hits int32
	client := newTestClient(t, newFeedServer(t, &hits))

	market, err := client.MarketTokenFor(context.Background(), "0x1AD94D0a799664D459cB467655eC0EA4cc8Ad478")
	if err != nil {
		t.Fatalf("MarketTokenFor failed: %v", err)
	}
	if market != "0x00000000000000000000000000000000000000b1" {
		t.Fatalf("unexpected market token: %s", market)
	}

	markets, err := client.Markets(context.Background())
	if err != nil {
		t.Fatalf("Markets failed: %v", err)
	}
	if markets[0].Key != "a" || markets[1].Key != "b" {
		t.Fatalf("expected markets sorted by key, got %+v", markets)
	}

	_, err = client.MarketTokenFor(context.Background(), "0x2A197C29f3E144387EB5877CFe0e63032FD1a0DA")
	if !clierr.HasCode(err, clierr.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMarketTokenForSeparatesMissingEndpointFromMissingMarket(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)
	client := newTestClient(t, srv)

	_, err := client.MarketTokenFor(context.Background(), "0x1AD94D0a799664D459cB467655eC0EA4cc8Ad478")
	if clierr.HasCode(err, clierr.CodeNotFound) {
		t.Fatalf("a missing endpoint must not read as a missing market: %v", err)
	}
	if !clierr.HasCode(err, clierr.CodeUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}

func TestMarketsUsesCache(t *testing.T) {
	var hits int32
	srv := newFeedServer(t, &hits)
	tmp := t.TempDir()
	store, err := cache.Open(filepath.Join(tmp, "cache.db"), filepath.Join(tmp, "cache.lock"))
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	defer store.Close()

	client := newTestClient(t, srv, WithCache(store, time.Minute))
	for i := 0; i < 3; i++ {
		if _, err := client.Markets(context.Background()); err != nil {
			t.Fatalf("Markets failed: %v", err)
		}
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Fatalf("expected one upstream market request, got %d", got)
	}
}

func TestNewRejectsPlainHTTPRemote(t *testing.T) {
	_, err := New(httpx.New(time.Second, 0), "http://api.example.com/tickers", "https://api.example.com/marketdata")
	if !clierr.HasCode(err, clierr.CodeUsage) {
		t.Fatalf("expected usage error, got %v", err)
	}
}

func TestOraclePrices(t *testing.T) {
	tickers := []Ticker{
		{TokenAddress: "0x00000000000000000000000000000000000000a1", MinPrice: big.NewInt(1), MaxPrice: big.NewInt(2)},
		{TokenAddress: "0x00000000000000000000000000000000000000b2", MinPrice: big.NewInt(3), MaxPrice: big.NewInt(4)},
	}
	params := OraclePrices(tickers)
	if len(params.PrimaryTokens) != 2 || len(params.PrimaryPrices) != 2 {
		t.Fatalf("unexpected params: %+v", params)
	}
	if params.PrimaryTokens[1] != common.HexToAddress("0x00000000000000000000000000000000000000b2") {
		t.Fatalf("unexpected token order: %+v", params.PrimaryTokens)
	}
	if params.PrimaryPrices[1].Min.Int64() != 3 || params.PrimaryPrices[1].Max.Int64() != 4 {
		t.Fatalf("unexpected prices: %+v", params.PrimaryPrices[1])
	}
	tickers[0].MinPrice.SetInt64(99)
	if params.PrimaryPrices[0].Min.Int64() != 1 {
		t.Fatal("oracle params must not alias ticker prices")
	}
}

func TestUSDValue(t *testing.T) {
	// 650000000000 * 10^-(30-18) = 0.65
	if got := USDValue(big.NewInt(650000000000), 18); got < 0.6499 || got > 0.6501 {
		t.Fatalf("unexpected usd value: %f", got)
	}
	usdc, _ := new(big.Int).SetString("1000000000000000000000000", 10)
	if got := USDValue(usdc, 6); got < 0.9999 || got > 1.0001 {
		t.Fatalf("unexpected usdc value: %f", got)
	}
	if USDValue(nil, 18) != 0 {
		t.Fatal("expected zero for nil price")
	}
}
