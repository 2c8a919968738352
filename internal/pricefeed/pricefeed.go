package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/ggonzalez94/faucetbot/internal/cache"
	clierr "github.com/ggonzalez94/faucetbot/internal/errors"
	"github.com/ggonzalez94/faucetbot/internal/httpx"
	"github.com/ggonzalez94/faucetbot/internal/registry"
)

// Prices on the feed are fixed point with this many decimals, minus the
// token's own decimals.
const PricePrecision = 30

type Ticker struct {
	TokenAddress  string   `json:"tokenAddress"`
	TokenSymbol   string   `json:"tokenSymbol"`
	MinPrice      *big.Int `json:"minPrice"`
	MaxPrice      *big.Int `json:"maxPrice"`
	UpdatedAt     int64    `json:"updatedAt"`
	PriceDecimals int      `json:"priceDecimals"`
}

type Market struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	MarketToken string `json:"marketToken"`
	IndexToken  string `json:"indexToken"`
	LongToken   string `json:"longToken"`
	ShortToken  string `json:"shortToken"`
	IsSpotOnly  bool   `json:"isSpotOnly"`
}

// PriceProps and OracleParams mirror the simulated oracle tuple accepted by
// the exchange router.
type PriceProps struct {
	Min *big.Int
	Max *big.Int
}

type OracleParams struct {
	PrimaryTokens []common.Address
	PrimaryPrices []PriceProps
}

type tickerWire struct {
	TokenAddress  string      `json:"tokenAddress"`
	TokenSymbol   string      `json:"tokenSymbol"`
	MinPrice      json.Number `json:"minPrice"`
	MaxPrice      json.Number `json:"maxPrice"`
	UpdatedAt     int64       `json:"updatedAt"`
	PriceDecimals int         `json:"priceDecimals"`
}

type marketWire struct {
	MarketTokenAddress string `json:"marketTokenAddress"`
	LongTokenAddress   string `json:"longTokenAddress"`
	ShortTokenAddress  string `json:"shortTokenAddress"`
	IndexTokenAddress  string `json:"indexTokenAddress"`
	IsSpotOnly         bool   `json:"isSpotOnly"`
	Name               string `json:"name"`
}

type Client struct {
	http          *httpx.Client
	tickersURL    string
	marketDataURL string
	cache         *cache.Store
	marketTTL     time.Duration
	log           zerolog.Logger
}

type Option func(*Client)

// WithCache keeps market metadata in the sqlite cache for ttl.
func WithCache(store *cache.Store, ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = store
		c.marketTTL = ttl
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

func New(httpClient *httpx.Client, tickersURL, marketDataURL string, opts ...Option) (*Client, error) {
	for _, endpoint := range []string{tickersURL, marketDataURL} {
		if !registry.IsAllowedFeedURL(endpoint) {
			return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("feed url must be https: %s", endpoint))
		}
	}
	c := &Client{
		http:          httpClient,
		tickersURL:    strings.TrimSpace(tickersURL),
		marketDataURL: strings.TrimSpace(marketDataURL),
		log:           zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) Tickers(ctx context.Context) ([]Ticker, error) {
	var wire []tickerWire
	if err := c.http.GetJSON(ctx, c.tickersURL, &wire); err != nil {
		return nil, err
	}
	out := make([]Ticker, 0, len(wire))
	for _, w := range wire {
		minPrice, ok := new(big.Int).SetString(w.MinPrice.String(), 10)
		if !ok {
			return nil, clierr.New(clierr.CodeUnavailable, fmt.Sprintf("invalid min price for %s: %q", w.TokenSymbol, w.MinPrice))
		}
		maxPrice, ok := new(big.Int).SetString(w.MaxPrice.String(), 10)
		if !ok {
			return nil, clierr.New(clierr.CodeUnavailable, fmt.Sprintf("invalid max price for %s: %q", w.TokenSymbol, w.MaxPrice))
		}
		out = append(out, Ticker{
			TokenAddress:  w.TokenAddress,
			TokenSymbol:   w.TokenSymbol,
			MinPrice:      minPrice,
			MaxPrice:      maxPrice,
			UpdatedAt:     w.UpdatedAt,
			PriceDecimals: w.PriceDecimals,
		})
	}
	return out, nil
}

// FindTicker matches a token address case-insensitively.
func FindTicker(tickers []Ticker, tokenAddress string) (Ticker, bool) {
	for _, t := range tickers {
		if strings.EqualFold(t.TokenAddress, strings.TrimSpace(tokenAddress)) {
			return t, true
		}
	}
	return Ticker{}, false
}

func (c *Client) MinPrice(ctx context.Context, tokenAddress string) (*big.Int, error) {
	tickers, err := c.Tickers(ctx)
	if err != nil {
		return nil, err
	}
	t, ok := FindTicker(tickers, tokenAddress)
	if !ok {
		return nil, clierr.New(clierr.CodeNotFound, "price data not found for the selected token")
	}
	return new(big.Int).Set(t.MinPrice), nil
}

func (c *Client) Markets(ctx context.Context) ([]Market, error) {
	cacheKey := "pricefeed:markets:" + c.marketDataURL
	if c.cache != nil {
		var cached []Market
		hit, err := c.cache.GetJSON(cacheKey, &cached)
		if err != nil {
			c.log.Warn().Err(err).Msg("market cache read failed")
		} else if hit {
			return cached, nil
		}
	}

	var wire struct {
		Data map[string]marketWire `json:"data"`
	}
	if err := c.http.GetJSON(ctx, c.marketDataURL, &wire); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(wire.Data))
	for k := range wire.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	markets := make([]Market, 0, len(keys))
	for _, k := range keys {
		m := wire.Data[k]
		markets = append(markets, Market{
			Key:         k,
			Name:        m.Name,
			MarketToken: m.MarketTokenAddress,
			IndexToken:  m.IndexTokenAddress,
			LongToken:   m.LongTokenAddress,
			ShortToken:  m.ShortTokenAddress,
			IsSpotOnly:  m.IsSpotOnly,
		})
	}

	if c.cache != nil && len(markets) > 0 {
		if err := c.cache.SetJSON(cacheKey, markets, c.marketTTL); err != nil {
			c.log.Warn().Err(err).Msg("market cache write failed")
		}
	}
	return markets, nil
}

// MarketTokenFor returns the market token whose index token is indexToken.
// CodeNotFound means the feed answered and lists no such market; a missing
// market data endpoint is reported as CodeUnavailable instead.
func (c *Client) MarketTokenFor(ctx context.Context, indexToken string) (string, error) {
	markets, err := c.Markets(ctx)
	if clierr.HasCode(err, clierr.CodeNotFound) {
		return "", clierr.New(clierr.CodeUnavailable, fmt.Sprintf("market data endpoint missing (%v)", err))
	}
	if err != nil {
		return "", err
	}
	for _, m := range markets {
		if m.IsSpotOnly {
			continue
		}
		if strings.EqualFold(m.IndexToken, strings.TrimSpace(indexToken)) {
			return m.MarketToken, nil
		}
	}
	return "", clierr.New(clierr.CodeNotFound, fmt.Sprintf("no market for index token %s", indexToken))
}

func OraclePrices(tickers []Ticker) OracleParams {
	params := OracleParams{
		PrimaryTokens: make([]common.Address, 0, len(tickers)),
		PrimaryPrices: make([]PriceProps, 0, len(tickers)),
	}
	for _, t := range tickers {
		params.PrimaryTokens = append(params.PrimaryTokens, common.HexToAddress(t.TokenAddress))
		params.PrimaryPrices = append(params.PrimaryPrices, PriceProps{
			Min: new(big.Int).Set(t.MinPrice),
			Max: new(big.Int).Set(t.MaxPrice),
		})
	}
	return params
}

// USDValue converts a feed price for a token with decimals into dollars.
func USDValue(price *big.Int, decimals int) float64 {
	if price == nil {
		return 0
	}
	exp := PricePrecision - decimals
	value := new(big.Float).SetInt(price)
	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(abs(exp))), nil))
	if exp >= 0 {
		value.Quo(value, scale)
	} else {
		value.Mul(value, scale)
	}
	f, _ := value.Float64()
	return f
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
