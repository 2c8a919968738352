package app

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ggonzalez94/faucetbot/internal/cache"
	"github.com/ggonzalez94/faucetbot/internal/config"
	clierr "github.com/ggonzalez94/faucetbot/internal/errors"
	"github.com/ggonzalez94/faucetbot/internal/execution"
	"github.com/ggonzalez94/faucetbot/internal/httpx"
	"github.com/ggonzalez94/faucetbot/internal/logging"
	"github.com/ggonzalez94/faucetbot/internal/model"
	"github.com/ggonzalez94/faucetbot/internal/out"
	"github.com/ggonzalez94/faucetbot/internal/policy"
	"github.com/ggonzalez94/faucetbot/internal/pricefeed"
	"github.com/ggonzalez94/faucetbot/internal/registry"
	"github.com/ggonzalez94/faucetbot/internal/schema"
	"github.com/ggonzalez94/faucetbot/internal/tracker"
	"github.com/ggonzalez94/faucetbot/internal/version"
)

type dialFn func(ctx context.Context, rpcURL string, opts execution.Options) (*execution.Client, error)

type Runner struct {
	stdout io.Writer
	stderr io.Writer
	now    func() time.Time
	dial   dialFn
}

func NewRunner() *Runner {
	return NewRunnerWithWriters(os.Stdout, os.Stderr)
}

func NewRunnerWithWriters(stdout, stderr io.Writer) *Runner {
	return &Runner{
		stdout: stdout,
		stderr: stderr,
		now:    time.Now,
		dial:   execution.Dial,
	}
}

type runtimeState struct {
	runner        *Runner
	flags         config.GlobalFlags
	settings      config.Settings
	log           zerolog.Logger
	cache         *cache.Store
	ops           *execution.Store
	root          *cobra.Command
	lastCommand   string
	lastWarnings  []string
	lastProviders []model.ProviderStatus
}

type fetchFn func(ctx context.Context) (any, []model.ProviderStatus, []string, error)

func (r *Runner) Run(args []string) int {
	state := &runtimeState{runner: r, log: logging.Nop()}
	root := state.newRootCommand()
	state.root = root
	state.resetCommandDiagnostics()
	root.SetArgs(args)
	root.SetOut(r.stdout)
	root.SetErr(r.stderr)
	root.SilenceUsage = true
	root.SilenceErrors = true

	err := normalizeRunError(root.Execute())
	if err != nil {
		state.renderError("", err, state.lastWarnings, state.lastProviders)
	}
	state.close()
	if err != nil {
		return clierr.ExitCode(err)
	}
	return 0
}

func (s *runtimeState) close() {
	if s.cache != nil {
		_ = s.cache.Close()
	}
	if s.ops != nil {
		_ = s.ops.Close()
	}
}

func (s *runtimeState) newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   version.CLIName,
		Short: "Telegram faucet and trading bot with transaction tracking",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			settings, err := config.Load(s.flags)
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "load configuration", err)
			}
			s.settings = settings
			s.log = logging.NewWithWriter(s.runner.stderr, settings.LogLevel, settings.LogFormat)

			path := trimRootPath(cmd.CommandPath())
			s.lastCommand = path
			if path != "version" && path != "schema" {
				if err := policy.CheckCommandAllowed(settings.EnableCommands, path); err != nil {
					return err
				}
			}
			if settings.CacheEnabled && shouldOpenCache(path) && s.cache == nil {
				cacheStore, err := cache.Open(settings.CachePath, settings.CacheLockPath)
				if err != nil {
					return clierr.Wrap(clierr.CodeInternal, "open cache", err)
				}
				s.cache = cacheStore
			}
			return nil
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return clierr.Wrap(clierr.CodeUsage, "parse flags", err)
	})

	cmd.PersistentFlags().BoolVar(&s.flags.JSON, "json", false, "Output JSON (default)")
	cmd.PersistentFlags().BoolVar(&s.flags.Plain, "plain", false, "Output plain text")
	cmd.PersistentFlags().StringVar(&s.flags.Select, "select", "", "Select fields from data (comma-separated)")
	cmd.PersistentFlags().BoolVar(&s.flags.ResultsOnly, "results-only", false, "Output only data payload")
	cmd.PersistentFlags().StringVar(&s.flags.Timeout, "timeout", "", "Price feed request timeout")
	cmd.PersistentFlags().IntVar(&s.flags.Retries, "retries", -1, "Retries per price feed request")
	cmd.PersistentFlags().StringVar(&s.flags.RPCURL, "rpc-url", "", "Chain JSON-RPC endpoint")
	cmd.PersistentFlags().StringVar(&s.flags.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&s.flags.LogFormat, "log-format", "", "Log format (json, console)")
	cmd.PersistentFlags().BoolVar(&s.flags.NoCache, "no-cache", false, "Disable cache reads and writes")
	cmd.PersistentFlags().StringVar(&s.flags.MaxStale, "max-stale", "", "Serve stale cached prices up to this long past TTL when the feed is down")
	cmd.PersistentFlags().StringVar(&s.flags.EnableCommands, "enable-commands", "", "Allowlist of command paths (comma-separated)")
	cmd.PersistentFlags().StringVar(&s.flags.ConfigPath, "config", "", "Path to config file")
	cmd.PersistentFlags().StringVar(&s.flags.EnvFile, "env-file", "", "Path to .env file (default ./.env)")

	cmd.AddCommand(s.newServeCommand())
	cmd.AddCommand(s.newTrackCommand())
	cmd.AddCommand(s.newOpsCommand())
	cmd.AddCommand(s.newPricesCommand())
	cmd.AddCommand(s.newBalancesCommand())
	cmd.AddCommand(s.newClaimQuoteCommand())
	cmd.AddCommand(s.newSchemaCommand())
	cmd.AddCommand(newVersionCommand())

	return cmd
}

func newVersionCommand() *cobra.Command {
	var long bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			if long {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.Long())
				return
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.CLIVersion)
		},
	}
	cmd.Flags().BoolVar(&long, "long", false, "Print extended build metadata")
	return cmd
}

func (s *runtimeState) newSchemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schema [command path]",
		Short: "Print machine-readable command schema",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := schema.Build(s.root, strings.Join(args, " "))
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "build schema", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), data, nil, cacheMetaBypass(), nil)
		},
	}
}

// executionOptions maps settings onto the facade client.
func (s *runtimeState) executionOptions() execution.Options {
	opts := execution.DefaultOptions()
	opts.ChainID = s.settings.ChainID
	opts.GasMultiplier = s.settings.GasMultiplier
	opts.MaxFeeGwei = s.settings.MaxFeeGwei
	opts.MaxPriorityFeeGwei = s.settings.MaxPriorityFeeGwei
	opts.Logger = s.log
	return opts
}

func (s *runtimeState) dialChain(ctx context.Context) (*execution.Client, error) {
	return s.dialChainWith(ctx, s.executionOptions())
}

// dialChainWith falls back to the registry RPC for the configured chain.
func (s *runtimeState) dialChainWith(ctx context.Context, opts execution.Options) (*execution.Client, error) {
	rpcURL, err := registry.ResolveRPCURL(s.settings.RPCURL, s.settings.ChainID)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUsage, "resolve rpc url", err)
	}
	return s.runner.dial(ctx, rpcURL, opts)
}

func (s *runtimeState) newTracker() *tracker.Tracker {
	t := s.settings.Tracker
	return tracker.New(tracker.Options{
		PollInterval:     t.PollInterval,
		Timeout:          t.Timeout,
		ProgressInterval: t.ProgressInterval,
		WarnAfter:        t.WarnAfter,
		WarnEvery:        t.WarnEvery,
	}, tracker.WithLogger(s.log))
}

func (s *runtimeState) priceFeed() (*pricefeed.Client, error) {
	httpClient := httpx.New(s.settings.Timeout, s.settings.Retries, httpx.WithLogger(s.log))
	opts := []pricefeed.Option{pricefeed.WithLogger(s.log)}
	if s.cache != nil {
		opts = append(opts, pricefeed.WithCache(s.cache, s.settings.MarketDataTTL))
	}
	feed, err := pricefeed.New(httpClient, s.settings.TickersURL, s.settings.MarketDataURL, opts...)
	if err != nil {
		return nil, err
	}
	return feed, nil
}

func (s *runtimeState) operationStore() (*execution.Store, error) {
	if s.ops != nil {
		return s.ops, nil
	}
	store, err := execution.OpenStore(s.settings.OperationStorePath, s.settings.OperationLockPath)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "open operation store", err)
	}
	s.ops = store
	return store, nil
}

// runCachedCommand serves fresh cache hits, otherwise fetches and caches.
// A failed fetch falls back to a stale entry while it is inside the
// --max-stale budget and the upstream failure is transient.
func (s *runtimeState) runCachedCommand(commandPath, key string, ttl time.Duration, fetch fetchFn) error {
	s.resetCommandDiagnostics()
	var staleData any
	staleStatus := cacheMetaMiss()
	staleAvailable := false

	if s.settings.CacheEnabled && s.cache != nil {
		cached, err := s.cache.Get(key, s.settings.MaxStale)
		if err == nil && cached.Hit {
			var data any
			if err := json.Unmarshal(cached.Value, &data); err == nil {
				status := model.CacheStatus{Status: "hit", AgeMS: cached.Age.Milliseconds(), Stale: cached.Stale}
				if !cached.Stale {
					return s.emitSuccess(commandPath, data, nil, status, nil)
				}
				staleData, staleStatus, staleAvailable = data, status, true
			}
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.settings.Timeout)
	defer cancel()
	data, providers, warnings, err := fetch(ctx)
	s.captureCommandDiagnostics(warnings, providers)
	if err != nil {
		if !staleAvailable || !staleFallbackAllowed(err) {
			return err
		}
		// The entry may have aged past the budget while the fetch ran.
		cached, cacheErr := s.cache.Get(key, s.settings.MaxStale)
		if cacheErr != nil || !cached.Hit || cached.TooStale {
			return clierr.Wrap(clierr.CodeStale, "cached data exceeded stale budget", err)
		}
		staleStatus.AgeMS = cached.Age.Milliseconds()
		warnings = append(warnings, "price feed fetch failed; serving stale data within max-stale budget")
		s.captureCommandDiagnostics(warnings, providers)
		return s.emitSuccess(commandPath, staleData, warnings, staleStatus, providers)
	}

	status := cacheMetaMiss()
	if s.settings.CacheEnabled && s.cache != nil {
		if payload, err := json.Marshal(data); err == nil {
			_ = s.cache.Set(key, payload, ttl)
			status = model.CacheStatus{Status: "write"}
		}
	}
	return s.emitSuccess(commandPath, data, warnings, status, providers)
}

func (s *runtimeState) emitSuccess(commandPath string, data any, warnings []string, cacheStatus model.CacheStatus, providers []model.ProviderStatus) error {
	env := model.Envelope{
		Version:  model.EnvelopeVersion,
		Success:  true,
		Data:     data,
		Warnings: warnings,
		Meta: model.EnvelopeMeta{
			RequestID: newRequestID(),
			Timestamp: s.runner.now().UTC(),
			Command:   commandPath,
			Providers: providers,
			Cache:     cacheStatus,
		},
	}
	return out.Render(s.runner.stdout, env, s.settings)
}

func (s *runtimeState) renderError(commandPath string, err error, warnings []string, providers []model.ProviderStatus) {
	if strings.TrimSpace(commandPath) == "" {
		commandPath = s.lastCommand
		if commandPath == "" {
			commandPath = version.CLIName
		}
	}
	code := clierr.ExitCode(err)
	typ := "internal_error"
	message := err.Error()
	if cErr, ok := clierr.As(err); ok {
		message = cErr.Message
		if cErr.Cause != nil {
			message = fmt.Sprintf("%s: %v", cErr.Message, cErr.Cause)
		}
		typ = clierr.TypeName(cErr.Code)
	}

	settings := s.settings
	if settings.OutputMode == "" {
		settings.OutputMode = "json"
	}
	settings.ResultsOnly = false
	settings.SelectFields = nil
	env := model.Envelope{
		Version: model.EnvelopeVersion,
		Success: false,
		Data:    []any{},
		Error: &model.ErrorBody{
			Code:    code,
			Type:    typ,
			Message: message,
		},
		Warnings: warnings,
		Meta: model.EnvelopeMeta{
			RequestID: newRequestID(),
			Timestamp: s.runner.now().UTC(),
			Command:   commandPath,
			Providers: providers,
			Cache:     cacheMetaBypass(),
		},
	}
	_ = out.Render(s.runner.stderr, env, settings)
}

func cacheKey(commandPath string, req any) string {
	buf, _ := json.Marshal(req)
	sum := sha256.Sum256(append([]byte(commandPath+"|"), buf...))
	return hex.EncodeToString(sum[:])
}

func newRequestID() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func trimRootPath(path string) string {
	parts := strings.Fields(path)
	if len(parts) <= 1 {
		return path
	}
	return strings.Join(parts[1:], " ")
}

func statusFromErr(err error) string {
	if err == nil {
		return "ok"
	}
	if cErr, ok := clierr.As(err); ok {
		switch cErr.Code {
		case clierr.CodeAuth:
			return "auth_error"
		case clierr.CodeRateLimited:
			return "rate_limited"
		case clierr.CodeUnavailable:
			return "unavailable"
		}
	}
	return "error"
}

func providerStatus(name string, start time.Time, err error) []model.ProviderStatus {
	return []model.ProviderStatus{{Name: name, Status: statusFromErr(err), LatencyMS: time.Since(start).Milliseconds()}}
}

func cacheMetaBypass() model.CacheStatus {
	return model.CacheStatus{Status: "bypass"}
}

func cacheMetaMiss() model.CacheStatus {
	return model.CacheStatus{Status: "miss"}
}

func normalizeRunError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := clierr.As(err); ok {
		return err
	}
	if isLikelyUsageError(err) {
		return clierr.Wrap(clierr.CodeUsage, "invalid command input", err)
	}
	return clierr.Wrap(clierr.CodeInternal, "execute command", err)
}

func isLikelyUsageError(err error) bool {
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	patterns := []string{
		"unknown command",
		"unknown flag",
		"required flag(s)",
		"flag needs an argument",
		"requires at least",
		"requires exactly",
		"accepts ",
		"invalid argument",
		"invalid args",
	}
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

func staleFallbackAllowed(err error) bool {
	cErr, ok := clierr.As(err)
	if !ok {
		return false
	}
	return cErr.Code == clierr.CodeUnavailable || cErr.Code == clierr.CodeRateLimited
}

// shouldOpenCache lists the commands that talk to the price feed.
func shouldOpenCache(commandPath string) bool {
	switch normalizeCommandPath(commandPath) {
	case "serve", "prices tickers", "prices markets":
		return true
	default:
		return false
	}
}

func normalizeCommandPath(commandPath string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(commandPath))), " ")
}

func (s *runtimeState) resetCommandDiagnostics() {
	s.lastWarnings = nil
	s.lastProviders = nil
}

func (s *runtimeState) captureCommandDiagnostics(warnings []string, providers []model.ProviderStatus) {
	if len(warnings) == 0 {
		s.lastWarnings = nil
	} else {
		s.lastWarnings = append([]string(nil), warnings...)
	}
	if len(providers) == 0 {
		s.lastProviders = nil
	} else {
		s.lastProviders = append([]model.ProviderStatus(nil), providers...)
	}
}
