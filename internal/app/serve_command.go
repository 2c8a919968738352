package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/ggonzalez94/faucetbot/internal/bot"
	clierr "github.com/ggonzalez94/faucetbot/internal/errors"
	"github.com/ggonzalez94/faucetbot/internal/execution"
	"github.com/ggonzalez94/faucetbot/internal/session"
)

func (s *runtimeState) newServeCommand() *cobra.Command {
	var simulate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Telegram bot until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := s.settings.ValidateForServe(); err != nil {
				return clierr.Wrap(clierr.CodeUsage, "serve", err)
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			opts := s.executionOptions()
			opts.Simulate = simulate
			client, err := s.dialChainWith(ctx, opts)
			if err != nil {
				return err
			}
			defer client.Close()

			contracts := s.settings.Contracts
			chain, err := bot.NewChain(client, contracts.FaucetVault, contracts.ExchangeRouter)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "bind contracts", err)
			}
			referral, err := execution.ParseReferralCode(contracts.ReferralCode)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "parse referral code", err)
			}
			feed, err := s.priceFeed()
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "configure price feed", err)
			}
			sessions, err := session.Open(s.settings.SessionStorePath, s.settings.SessionLockPath)
			if err != nil {
				return clierr.Wrap(clierr.CodeInternal, "open session store", err)
			}
			defer sessions.Close()
			ops, err := s.operationStore()
			if err != nil {
				return err
			}
			tg, err := bot.NewTelegram(s.settings.TelegramToken, s.log)
			if err != nil {
				return err
			}

			keys := session.NewKeyVault(s.settings.KeyVaultSize, s.settings.KeyTTL)
			ctrl := bot.New(bot.Deps{
				Messenger:  tg,
				Chain:      chain,
				Prices:     feed,
				Tracker:    s.newTracker(),
				Sessions:   sessions,
				Keys:       keys,
				Operations: ops,
				Settings: bot.Settings{
					ChainID:          s.settings.ChainID,
					SyntheticsRouter: common.HexToAddress(contracts.SyntheticsRouter),
					OrderVault:       common.HexToAddress(contracts.OrderVault),
					UIFeeReceiver:    common.HexToAddress(contracts.UIFeeReceiver),
					ReferralCode:     referral,
					CallTimeout:      s.settings.RPCTimeout,
				},
				Logger: s.log,
			})

			sweepEvery := s.settings.KeyTTL / 4
			if sweepEvery <= 0 {
				sweepEvery = s.settings.KeyTTL
			}
			if sweepEvery > 0 {
				go ctrl.SweepKeys(ctx, sweepEvery)
			}

			s.log.Info().
				Int64("chain_id", s.settings.ChainID).
				Bool("simulate", simulate).
				Msg("bot started")
			tg.Run(ctx, ctrl.Handle)
			s.log.Info().Msg("bot stopped")
			return nil
		},
	}
	cmd.Flags().BoolVar(&simulate, "simulate", true, "Simulate every write before broadcasting it")
	return cmd
}
