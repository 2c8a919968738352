package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	clierr "github.com/ggonzalez94/faucetbot/internal/errors"
	"github.com/ggonzalez94/faucetbot/internal/id"
	"github.com/ggonzalez94/faucetbot/internal/model"
	"github.com/ggonzalez94/faucetbot/internal/pricefeed"
	"github.com/ggonzalez94/faucetbot/internal/registry"
)

const tickerTTL = 15 * time.Second

func (s *runtimeState) newPricesCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "prices",
		Short: "Read the oracle price feed",
	}

	var asset string
	tickers := &cobra.Command{
		Use:   "tickers",
		Short: "Current min/max prices for the faucet tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tokens := registry.FaucetTokens()
			selected := ""
			if strings.TrimSpace(asset) != "" {
				parsed, err := id.ParseAsset(asset, id.ChainByID(s.settings.ChainID))
				if err != nil {
					return err
				}
				token, ok := registry.FaucetToken(parsed.Symbol)
				if !ok {
					return clierr.New(clierr.CodeUsage, fmt.Sprintf("%s is not a faucet token", asset))
				}
				tokens = []registry.Token{token}
				selected = token.Symbol
			}
			feed, err := s.priceFeed()
			if err != nil {
				return err
			}
			path := trimRootPath(cmd.CommandPath())
			key := cacheKey(path, map[string]any{"url": s.settings.TickersURL, "symbol": selected})
			return s.runCachedCommand(path, key, tickerTTL, func(ctx context.Context) (any, []model.ProviderStatus, []string, error) {
				start := time.Now()
				all, err := feed.Tickers(ctx)
				providers := providerStatus("pricefeed", start, err)
				if err != nil {
					return nil, providers, nil, err
				}
				prices, warnings := tokenPrices(all, tokens)
				return prices, providers, warnings, nil
			})
		},
	}
	tickers.Flags().StringVar(&asset, "asset", "", "Only this token (symbol, address, or CAIP-19 id)")

	markets := &cobra.Command{
		Use:   "markets",
		Short: "Markets listed by the market data endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			feed, err := s.priceFeed()
			if err != nil {
				return err
			}
			path := trimRootPath(cmd.CommandPath())
			key := cacheKey(path, map[string]any{"url": s.settings.MarketDataURL})
			return s.runCachedCommand(path, key, s.settings.MarketDataTTL, func(ctx context.Context) (any, []model.ProviderStatus, []string, error) {
				start := time.Now()
				all, err := feed.Markets(ctx)
				providers := providerStatus("marketdata", start, err)
				if err != nil {
					return nil, providers, nil, err
				}
				return marketInfos(all), providers, nil, nil
			})
		},
	}

	root.AddCommand(tickers, markets)
	return root
}

func tokenPrices(tickers []pricefeed.Ticker, tokens []registry.Token) ([]model.TokenPrice, []string) {
	prices := make([]model.TokenPrice, 0, len(tokens))
	var warnings []string
	for _, token := range tokens {
		t, ok := pricefeed.FindTicker(tickers, token.Address)
		if !ok {
			warnings = append(warnings, fmt.Sprintf("no price for %s", token.Symbol))
			continue
		}
		prices = append(prices, model.TokenPrice{
			Symbol:      token.Symbol,
			Address:     token.Address,
			MinPrice:    t.MinPrice.String(),
			MaxPrice:    t.MaxPrice.String(),
			MinPriceUSD: pricefeed.USDValue(t.MinPrice, token.Decimals),
			MaxPriceUSD: pricefeed.USDValue(t.MaxPrice, token.Decimals),
			UpdatedAt:   t.UpdatedAt,
		})
	}
	return prices, warnings
}

func marketInfos(markets []pricefeed.Market) []model.MarketInfo {
	tradable := map[string]bool{}
	for _, token := range registry.TradeTokens() {
		tradable[strings.ToLower(token.Address)] = true
	}
	out := make([]model.MarketInfo, 0, len(markets))
	for _, m := range markets {
		out = append(out, model.MarketInfo{
			Name:        m.Name,
			MarketToken: m.MarketToken,
			IndexToken:  m.IndexToken,
			LongToken:   m.LongToken,
			ShortToken:  m.ShortToken,
			Tradable:    !m.IsSpotOnly && tradable[strings.ToLower(m.IndexToken)],
		})
	}
	return out
}
