package app

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	clierr "github.com/ggonzalez94/faucetbot/internal/errors"
	"github.com/ggonzalez94/faucetbot/internal/execution"
	"github.com/ggonzalez94/faucetbot/internal/id"
	"github.com/ggonzalez94/faucetbot/internal/model"
	"github.com/ggonzalez94/faucetbot/internal/tracker"
)

func (s *runtimeState) newTrackCommand() *cobra.Command {
	var label string
	var wait time.Duration
	cmd := &cobra.Command{
		Use:   "track <tx-hash>",
		Short: "Wait for a submitted transaction to confirm",
		Long:  "Polls the chain for the receipt of an already broadcast transaction and reports whether it confirmed, reverted, or timed out. The transaction itself is never touched.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := id.ParseTxHash(args[0])
			if err != nil {
				return err
			}
			if strings.TrimSpace(label) == "" {
				label = "Transaction " + shortHash(hash)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			client, err := s.dialChain(ctx)
			if err != nil {
				return err
			}
			defer client.Close()
			handle, err := client.PendingFromHash(hash)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "track transaction", err)
			}
			store, err := s.operationStore()
			if err != nil {
				return err
			}

			record := execution.NewOperationRecord(execution.NewOperationID(), execution.OperationKindTrack, label, id.ChainByID(s.settings.ChainID).CAIP2)
			record.TxHash = handle.Hash().Hex()
			if err := store.Save(record); err != nil {
				return clierr.Wrap(clierr.CodeInternal, "persist operation", err)
			}

			outcome := s.newTracker().Track(ctx, tracker.Operation{
				ID:          record.OperationID,
				Label:       label,
				Handle:      handle,
				SubmittedAt: s.runner.now(),
				Timeout:     wait,
			}, tracker.LogObserver{Log: s.log})

			record.Apply(outcome)
			if err := store.Save(record); err != nil {
				return clierr.Wrap(clierr.CodeInternal, "persist operation", err)
			}

			switch outcome.Kind {
			case tracker.KindConfirmed:
				return s.emitSuccess(trimRootPath(cmd.CommandPath()), trackResult(record.OperationID, outcome), nil, cacheMetaBypass(), nil)
			case tracker.KindTimedOut:
				return clierr.New(clierr.CodeActionTimeout, fmt.Sprintf("%s not confirmed after %s (operation %s)", outcome.Hash.Hex(), outcome.Elapsed.Round(time.Second), record.OperationID))
			case tracker.KindCancelled:
				return clierr.New(clierr.CodeInternal, fmt.Sprintf("tracking of %s cancelled (operation %s)", outcome.Hash.Hex(), record.OperationID))
			default:
				return clierr.New(clierr.CodeReverted, fmt.Sprintf("%s failed: %s (operation %s)", outcome.Hash.Hex(), outcome.Reason, record.OperationID))
			}
		},
	}
	cmd.Flags().StringVar(&label, "label", "", "Human readable label for logs and history")
	cmd.Flags().DurationVar(&wait, "wait", 0, "Maximum time to wait for confirmation (default from tracker.timeout)")
	return cmd
}

func trackResult(operationID string, o tracker.Outcome) model.TrackResult {
	res := model.TrackResult{
		OperationID: operationID,
		TxHash:      o.Hash.Hex(),
		Outcome:     string(o.Kind),
		Reason:      o.Reason,
		Attempts:    o.Attempts,
		ElapsedMS:   o.Elapsed.Milliseconds(),
	}
	if o.Receipt != nil {
		if o.Receipt.BlockNumber != nil {
			res.BlockNumber = o.Receipt.BlockNumber.Uint64()
		}
		res.GasUsed = o.Receipt.GasUsed
	}
	return res
}

func shortHash(hash string) string {
	if len(hash) <= 12 {
		return hash
	}
	return hash[:10] + "…"
}
