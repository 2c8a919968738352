package execution

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	clierr "github.com/ggonzalez94/faucetbot/internal/errors"
	"github.com/ggonzalez94/faucetbot/internal/pricefeed"
)

// Call is one packed entry of a router multicall.
type Call struct {
	Method string
	Args   []any
}

// EncodeMulticall packs calls against contract's ABI, in order.
func EncodeMulticall(contract Contract, calls []Call) ([][]byte, error) {
	out := make([][]byte, 0, len(calls))
	for i, call := range calls {
		data, err := contract.ABI.Pack(call.Method, call.Args...)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeUsage, fmt.Sprintf("pack multicall entry %d (%s)", i, call.Method), err)
		}
		out = append(out, data)
	}
	return out, nil
}

// Order types understood by the exchange router.
const (
	OrderTypeMarketSwap     uint8 = 0
	OrderTypeLimitSwap      uint8 = 1
	OrderTypeMarketIncrease uint8 = 2
)

// The structs below mirror the router's order tuple; field names are the
// camel-cased ABI component names.
type OrderAddresses struct {
	Receiver               common.Address
	CallbackContract       common.Address
	UiFeeReceiver          common.Address
	Market                 common.Address
	InitialCollateralToken common.Address
	SwapPath               []common.Address
}

type OrderNumbers struct {
	SizeDeltaUsd                 *big.Int
	InitialCollateralDeltaAmount *big.Int
	TriggerPrice                 *big.Int
	AcceptablePrice              *big.Int
	ExecutionFee                 *big.Int
	CallbackGasLimit             *big.Int
	MinOutputAmount              *big.Int
}

type CreateOrderParams struct {
	Addresses                OrderAddresses
	Numbers                  OrderNumbers
	OrderType                uint8
	DecreasePositionSwapType uint8
	IsLong                   bool
	ShouldUnwrapNativeToken  bool
	ReferralCode             [32]byte
}

// LongOrder describes a leveraged long market order funded with collateral.
type LongOrder struct {
	Receiver         common.Address
	Market           common.Address
	Collateral       common.Address
	OrderVault       common.Address
	UIFeeReceiver    common.Address
	CollateralAmount *big.Int
	SizeDeltaUSD     *big.Int
	AcceptablePrice  *big.Int
	ReferralCode     [32]byte
	Oracle           pricefeed.OracleParams
}

// LongMarketOrderCalls returns the multicall sequence that funds the order
// vault and places the order: sendWnt, sendTokens, then the order itself.
func LongMarketOrderCalls(o LongOrder) []Call {
	params := CreateOrderParams{
		Addresses: OrderAddresses{
			Receiver:               o.Receiver,
			UiFeeReceiver:          o.UIFeeReceiver,
			Market:                 o.Market,
			InitialCollateralToken: o.Collateral,
			SwapPath:               []common.Address{},
		},
		Numbers: OrderNumbers{
			SizeDeltaUsd:                 nonNil(o.SizeDeltaUSD),
			InitialCollateralDeltaAmount: big.NewInt(0),
			TriggerPrice:                 big.NewInt(0),
			AcceptablePrice:              nonNil(o.AcceptablePrice),
			ExecutionFee:                 big.NewInt(0),
			CallbackGasLimit:             big.NewInt(0),
			MinOutputAmount:              big.NewInt(0),
		},
		OrderType:    OrderTypeMarketIncrease,
		IsLong:       true,
		ReferralCode: o.ReferralCode,
	}
	oracle := o.Oracle
	if oracle.PrimaryTokens == nil {
		oracle.PrimaryTokens = []common.Address{}
	}
	if oracle.PrimaryPrices == nil {
		oracle.PrimaryPrices = []pricefeed.PriceProps{}
	}
	return []Call{
		{Method: "sendWnt", Args: []any{o.OrderVault, big.NewInt(0)}},
		{Method: "sendTokens", Args: []any{o.Collateral, o.OrderVault, nonNil(o.CollateralAmount)}},
		{Method: "simulateCreateSingleMarketOrder", Args: []any{params, oracle}},
	}
}

// SizeDeltaUSD is amount * price / 10^collateralDecimals, which keeps the
// result in the feed's 30-decimal USD precision.
func SizeDeltaUSD(amount, price *big.Int, collateralDecimals int) *big.Int {
	if amount == nil || price == nil {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(amount, price)
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(collateralDecimals)), nil)
	return out.Quo(out, scale)
}

// ParseReferralCode accepts a 0x-prefixed bytes32, or "" for zero.
func ParseReferralCode(raw string) ([32]byte, error) {
	var out [32]byte
	clean := strings.TrimSpace(raw)
	if clean == "" {
		return out, nil
	}
	buf, err := decodeHex(clean)
	if err != nil || len(buf) > 32 {
		return out, clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid referral code %q", raw))
	}
	copy(out[32-len(buf):], buf)
	return out, nil
}

func nonNil(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}
