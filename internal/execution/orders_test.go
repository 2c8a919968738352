package execution

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ggonzalez94/faucetbot/internal/pricefeed"
)

func TestLongMarketOrderCallsEncode(t *testing.T) {
	router, err := ExchangeRouter("0x00000000000000000000000000000000000000e1")
	if err != nil {
		t.Fatalf("ExchangeRouter: %v", err)
	}
	usdc := common.HexToAddress("0x38604D543659121faa8F68A91A5b633C7BFE9761")
	vault := common.HexToAddress("0x00000000000000000000000000000000000000d1")
	order := LongOrder{
		Receiver:         common.HexToAddress("0x00000000000000000000000000000000000000aa"),
		Market:           common.HexToAddress("0x3A7315a05Bfca36CD309266F99028cF80AD6b1C6"),
		Collateral:       usdc,
		OrderVault:       vault,
		UIFeeReceiver:    common.HexToAddress("0x26E76B18D4A132A9397C46af11e4688BDB602E92"),
		CollateralAmount: big.NewInt(10_000_000),
		SizeDeltaUSD:     SizeDeltaUSD(big.NewInt(10_000_000), big.NewInt(3), 6),
		AcceptablePrice:  big.NewInt(3),
		Oracle: pricefeed.OracleParams{
			PrimaryTokens: []common.Address{usdc},
			PrimaryPrices: []pricefeed.PriceProps{{Min: big.NewInt(1), Max: big.NewInt(2)}},
		},
	}

	calls := LongMarketOrderCalls(order)
	if len(calls) != 3 {
		t.Fatalf("expected three calls, got %d", len(calls))
	}
	payloads, err := EncodeMulticall(router, calls)
	if err != nil {
		t.Fatalf("EncodeMulticall failed: %v", err)
	}
	for i, method := range []string{"sendWnt", "sendTokens", "simulateCreateSingleMarketOrder"} {
		if !bytes.Equal(payloads[i][:4], router.ABI.Methods[method].ID) {
			t.Fatalf("entry %d: expected %s selector", i, method)
		}
	}

	args, err := router.ABI.Methods["sendTokens"].Inputs.Unpack(payloads[1][4:])
	if err != nil {
		t.Fatalf("unpack sendTokens: %v", err)
	}
	if args[0].(common.Address) != usdc || args[1].(common.Address) != vault {
		t.Fatalf("unexpected sendTokens addresses: %v", args)
	}
	if args[2].(*big.Int).Int64() != 10_000_000 {
		t.Fatalf("unexpected sendTokens amount: %v", args[2])
	}

	if _, err := router.ABI.Pack("multicall", payloads); err != nil {
		t.Fatalf("pack multicall: %v", err)
	}
}

func TestEncodeMulticallUnknownMethod(t *testing.T) {
	router, err := ExchangeRouter("0x00000000000000000000000000000000000000e1")
	if err != nil {
		t.Fatalf("ExchangeRouter: %v", err)
	}
	if _, err := EncodeMulticall(router, []Call{{Method: "createOrder"}}); err == nil {
		t.Fatal("expected unknown method error")
	}
}

func TestSizeDeltaUSD(t *testing.T) {
	got := SizeDeltaUSD(big.NewInt(5_000_000), big.NewInt(7), 6)
	if got.Int64() != 35 {
		t.Fatalf("expected 35, got %s", got)
	}
	if SizeDeltaUSD(nil, big.NewInt(1), 6).Sign() != 0 {
		t.Fatal("expected zero for nil amount")
	}
}

func TestParseReferralCode(t *testing.T) {
	code, err := ParseReferralCode("")
	if err != nil || code != [32]byte{} {
		t.Fatalf("expected zero code, got %x (%v)", code, err)
	}
	code, err = ParseReferralCode("0x01")
	if err != nil || code[31] != 1 {
		t.Fatalf("expected right-aligned code, got %x (%v)", code, err)
	}
	if _, err := ParseReferralCode("0xzz"); err == nil {
		t.Fatal("expected invalid hex error")
	}
}
