package app

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	clierr "github.com/ggonzalez94/faucetbot/internal/errors"
	"github.com/ggonzalez94/faucetbot/internal/execution"
	"github.com/ggonzalez94/faucetbot/internal/id"
	"github.com/ggonzalez94/faucetbot/internal/model"
	"github.com/ggonzalez94/faucetbot/internal/registry"
)

const nativeDecimals = 18

func (s *runtimeState) newBalancesCommand() *cobra.Command {
	var checkFaucet bool
	cmd := &cobra.Command{
		Use:   "balances <address>",
		Short: "Native and faucet token balances of an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			account, err := parseAccount(args[0])
			if err != nil {
				return err
			}
			var vault *execution.Contract
			if checkFaucet {
				c, err := execution.FaucetVault(s.settings.Contracts.FaucetVault)
				if err != nil {
					return clierr.Wrap(clierr.CodeUsage, "--check-faucet needs contracts.faucet_vault", err)
				}
				vault = &c
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), s.settings.Timeout)
			defer cancel()
			client, err := s.dialChain(ctx)
			if err != nil {
				return err
			}
			defer client.Close()

			native, err := client.NativeBalance(ctx, account)
			if err != nil {
				return err
			}
			result := model.AccountBalances{
				ChainID: id.ChainByID(s.settings.ChainID).CAIP2,
				Account: account.Hex(),
				Native:  id.FormatUnits(native, nativeDecimals),
			}
			for _, token := range registry.FaucetTokens() {
				erc20, err := execution.ERC20(token.Address)
				if err != nil {
					return err
				}
				amount, err := client.TokenBalance(ctx, erc20, account)
				if err != nil {
					return err
				}
				entry := model.TokenBalance{
					Symbol:   token.Symbol,
					Address:  token.Address,
					Amount:   id.FormatUnits(amount, token.Decimals),
					Decimals: token.Decimals,
				}
				if vault != nil {
					ok, err := client.CanClaim(ctx, *vault, account, common.HexToAddress(token.Address))
					if err != nil {
						return err
					}
					entry.CanClaim = &ok
				}
				result.Tokens = append(result.Tokens, entry)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), result, nil, cacheMetaBypass(), nil)
		},
	}
	cmd.Flags().BoolVar(&checkFaucet, "check-faucet", false, "Also ask the faucet vault whether each token is out of cooldown")
	return cmd
}

func (s *runtimeState) newClaimQuoteCommand() *cobra.Command {
	var symbol string
	cmd := &cobra.Command{
		Use:   "claim-quote <address>",
		Short: "Simulate a faucet claim and print its fee plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			account, err := parseAccount(args[0])
			if err != nil {
				return err
			}
			token, ok := registry.FaucetToken(symbol)
			if !ok {
				return clierr.New(clierr.CodeUsage, fmt.Sprintf("unknown token symbol: %s", symbol))
			}
			amount, err := id.ParseDecimal(token.Claimable, token.Decimals)
			if err != nil {
				return clierr.Wrap(clierr.CodeInternal, "parse claim amount", err)
			}
			vault, err := execution.FaucetVault(s.settings.Contracts.FaucetVault)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "claim-quote needs contracts.faucet_vault", err)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), s.settings.Timeout)
			defer cancel()
			client, err := s.dialChain(ctx)
			if err != nil {
				return err
			}
			defer client.Close()

			q, err := client.QuoteWrite(ctx, account, vault, "claimTokens", common.HexToAddress(token.Address), amount)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), model.ClaimQuote{
				Account:     account.Hex(),
				Symbol:      token.Symbol,
				Amount:      token.Claimable,
				GasEstimate: q.GasEstimate,
				GasLimit:    q.GasLimit,
				BaseFeeWei:  bigString(q.BaseFee),
				TipCapWei:   bigString(q.TipCap),
				FeeCapWei:   bigString(q.FeeCap),
				MaxFee:      id.FormatUnits(q.WorstCaseFee(), nativeDecimals),
			}, nil, cacheMetaBypass(), nil)
		},
	}
	cmd.Flags().StringVar(&symbol, "symbol", registry.CollateralSymbol, "Faucet token to quote")
	return cmd
}

func parseAccount(raw string) (common.Address, error) {
	if !registry.IsHexAddress(raw) {
		return common.Address{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid address: %s", raw))
	}
	return common.HexToAddress(strings.TrimSpace(raw)), nil
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
