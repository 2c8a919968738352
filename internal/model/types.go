package model

import "time"

const EnvelopeVersion = "v1"

type Envelope struct {
	Version  string       `json:"version"`
	Success  bool         `json:"success"`
	Data     any          `json:"data,omitempty"`
	Error    *ErrorBody   `json:"error"`
	Warnings []string     `json:"warnings,omitempty"`
	Meta     EnvelopeMeta `json:"meta"`
}

type ErrorBody struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

type EnvelopeMeta struct {
	RequestID string           `json:"request_id"`
	Timestamp time.Time        `json:"timestamp"`
	Command   string           `json:"command"`
	Providers []ProviderStatus `json:"providers,omitempty"`
	Cache     CacheStatus      `json:"cache"`
}

// ProviderStatus reports one upstream (price feed, RPC) touched by a command.
type ProviderStatus struct {
	Name      string `json:"name"`
	Status    string `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
}

type CacheStatus struct {
	Status string `json:"status"`
	AgeMS  int64  `json:"age_ms"`
	Stale  bool   `json:"stale"`
}

type TokenPrice struct {
	Symbol      string  `json:"symbol"`
	Address     string  `json:"address"`
	MinPrice    string  `json:"min_price"`
	MaxPrice    string  `json:"max_price"`
	MinPriceUSD float64 `json:"min_price_usd"`
	MaxPriceUSD float64 `json:"max_price_usd"`
	UpdatedAt   int64   `json:"updated_at"`
}

type MarketInfo struct {
	Name        string `json:"name"`
	MarketToken string `json:"market_token"`
	IndexToken  string `json:"index_token"`
	LongToken   string `json:"long_token"`
	ShortToken  string `json:"short_token"`
	Tradable    bool   `json:"tradable"`
}

type TokenBalance struct {
	Symbol   string `json:"symbol"`
	Address  string `json:"address"`
	Amount   string `json:"amount"`
	Decimals int    `json:"decimals"`
	// CanClaim is set when the faucet vault was asked about the cooldown.
	CanClaim *bool `json:"can_claim,omitempty"`
}

type AccountBalances struct {
	ChainID string         `json:"chain_id"`
	Account string         `json:"account"`
	Native  string         `json:"native"`
	Tokens  []TokenBalance `json:"tokens"`
}

// TrackResult is the terminal state of a transaction tracked from the CLI.
type TrackResult struct {
	OperationID string `json:"operation_id"`
	TxHash      string `json:"tx_hash"`
	Outcome     string `json:"outcome"`
	Reason      string `json:"reason,omitempty"`
	BlockNumber uint64 `json:"block_number,omitempty"`
	GasUsed     uint64 `json:"gas_used,omitempty"`
	Attempts    int    `json:"attempts"`
	ElapsedMS   int64  `json:"elapsed_ms"`
}

// ClaimQuote is the simulated fee plan for one faucet claim.
type ClaimQuote struct {
	Account     string `json:"account"`
	Symbol      string `json:"symbol"`
	Amount      string `json:"amount"`
	GasEstimate uint64 `json:"gas_estimate"`
	GasLimit    uint64 `json:"gas_limit"`
	BaseFeeWei  string `json:"base_fee_wei"`
	TipCapWei   string `json:"tip_cap_wei"`
	FeeCapWei   string `json:"fee_cap_wei"`
	MaxFee      string `json:"max_fee"`
}
