package app

import (
	"strings"

	"github.com/spf13/cobra"

	clierr "github.com/ggonzalez94/faucetbot/internal/errors"
	"github.com/ggonzalez94/faucetbot/internal/execution"
)

func (s *runtimeState) newOpsCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "ops",
		Short: "Inspect tracked operation history",
	}

	var status, sessionID string
	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List recent operations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if status = strings.ToLower(strings.TrimSpace(status)); status != "" && !validOperationStatus(status) {
				return clierr.New(clierr.CodeUsage, "--status must be one of submitted, confirmed, failed, timed_out, cancelled")
			}
			if limit < 0 {
				return clierr.New(clierr.CodeUsage, "--limit must be positive")
			}
			store, err := s.operationStore()
			if err != nil {
				return err
			}
			records, err := store.List(execution.ListFilter{Status: status, SessionID: sessionID, Limit: limit})
			if err != nil {
				return clierr.Wrap(clierr.CodeInternal, "list operations", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), records, nil, cacheMetaBypass(), nil)
		},
	}
	list.Flags().StringVar(&status, "status", "", "Filter by status")
	list.Flags().StringVar(&sessionID, "session", "", "Filter by chat session (tg:<chat id>)")
	list.Flags().IntVar(&limit, "limit", 20, "Maximum records to return")

	show := &cobra.Command{
		Use:   "show <operation-id>",
		Short: "Show one operation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := s.operationStore()
			if err != nil {
				return err
			}
			record, err := store.Get(strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), record, nil, cacheMetaBypass(), nil)
		},
	}

	root.AddCommand(list, show)
	return root
}

func validOperationStatus(v string) bool {
	switch execution.OperationStatus(v) {
	case execution.OperationStatusSubmitted,
		execution.OperationStatusConfirmed,
		execution.OperationStatusFailed,
		execution.OperationStatusTimedOut,
		execution.OperationStatusCancelled:
		return true
	}
	return false
}
