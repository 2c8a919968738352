package registry

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Movement devnet, the only chain the faucet and markets are deployed on.
const (
	DevnetChainID int64 = 30732
	DevnetRPCURL        = "https://mevm.devnet.imola.movementlabs.xyz"
)

const (
	DefaultTickersURL    = "https://api.devnet.avituslabs.xyz/prices/tickers"
	DefaultMarketDataURL = "https://api.data.avituslabs.xyz/marketdata"

	DefaultUIFeeReceiver = "0x26E76B18D4A132A9397C46af11e4688BDB602E92"
	ZeroReferralCode     = "0x0000000000000000000000000000000000000000000000000000000000000000"
)

// MinApprovedAllowance is the allowance at or above which the approve step is skipped.
const MinApprovedAllowance = 1_000_000

func IsHexAddress(value string) bool {
	return common.IsHexAddress(strings.TrimSpace(value))
}
