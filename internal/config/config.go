package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ggonzalez94/faucetbot/internal/registry"
)

type GlobalFlags struct {
	ConfigPath  string
	EnvFile     string
	JSON        bool
	Plain       bool
	Select      string
	ResultsOnly bool
	Timeout     string
	Retries     int
	RPCURL      string
	LogLevel    string
	LogFormat   string
	NoCache     bool
	MaxStale    string

	EnableCommands string
}

type Contracts struct {
	FaucetVault      string
	SyntheticsRouter string
	ExchangeRouter   string
	OrderVault       string
	UIFeeReceiver    string
	ReferralCode     string
}

type Tracker struct {
	PollInterval     time.Duration
	Timeout          time.Duration
	ProgressInterval time.Duration
	WarnAfter        time.Duration
	WarnEvery        time.Duration
}

type Settings struct {
	OutputMode   string
	SelectFields []string
	ResultsOnly  bool
	Timeout      time.Duration
	Retries      int
	LogLevel     string
	LogFormat    string

	// EnableCommands, when set, is the only set of command paths allowed to run.
	EnableCommands []string

	TelegramToken string
	RPCURL        string
	ChainID       int64
	// RPCTimeout bounds each chain read or write the bot makes.
	RPCTimeout    time.Duration
	TickersURL    string
	MarketDataURL string
	Contracts     Contracts
	Tracker       Tracker

	GasMultiplier      float64
	MaxFeeGwei         string
	MaxPriorityFeeGwei string

	CacheEnabled       bool
	CachePath          string
	CacheLockPath      string
	MaxStale           time.Duration
	MarketDataTTL      time.Duration
	OperationStorePath string
	OperationLockPath  string
	SessionStorePath   string
	SessionLockPath    string
	KeyTTL             time.Duration
	KeyVaultSize       int
}

type fileConfig struct {
	Output   string `yaml:"output"`
	Timeout  string `yaml:"timeout"`
	Retries  *int   `yaml:"retries"`
	LogLevel string `yaml:"log_level"`
	Log      struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Telegram struct {
		Token    string `yaml:"token"`
		TokenEnv string `yaml:"token_env"`
	} `yaml:"telegram"`
	Chain struct {
		ID         int64  `yaml:"id"`
		RPCURL     string `yaml:"rpc_url"`
		RPCTimeout string `yaml:"rpc_timeout"`
	} `yaml:"chain"`
	Prices struct {
		TickersURL    string `yaml:"tickers_url"`
		MarketDataURL string `yaml:"market_data_url"`
		MarketDataTTL string `yaml:"market_data_ttl"`
	} `yaml:"prices"`
	Contracts struct {
		FaucetVault      string `yaml:"faucet_vault"`
		SyntheticsRouter string `yaml:"synthetics_router"`
		ExchangeRouter   string `yaml:"exchange_router"`
		OrderVault       string `yaml:"order_vault"`
		UIFeeReceiver    string `yaml:"ui_fee_receiver"`
		ReferralCode     string `yaml:"referral_code"`
	} `yaml:"contracts"`
	Tracker struct {
		PollInterval     string `yaml:"poll_interval"`
		Timeout          string `yaml:"timeout"`
		ProgressInterval string `yaml:"progress_interval"`
		WarnAfter        string `yaml:"warn_after"`
		WarnEvery        string `yaml:"warn_every"`
	} `yaml:"tracker"`
	Execution struct {
		GasMultiplier      *float64 `yaml:"gas_multiplier"`
		MaxFeeGwei         string   `yaml:"max_fee_gwei"`
		MaxPriorityFeeGwei string   `yaml:"max_priority_fee_gwei"`
		OperationsPath     string   `yaml:"operations_path"`
		OperationsLockPath string   `yaml:"operations_lock_path"`
	} `yaml:"execution"`
	Cache struct {
		Enabled  *bool  `yaml:"enabled"`
		Path     string `yaml:"path"`
		LockPath string `yaml:"lock_path"`
		MaxStale string `yaml:"max_stale"`
	} `yaml:"cache"`
	Sessions struct {
		Path         string `yaml:"path"`
		LockPath     string `yaml:"lock_path"`
		KeyTTL       string `yaml:"key_ttl"`
		KeyVaultSize *int   `yaml:"key_vault_size"`
	} `yaml:"sessions"`
}

func Load(flags GlobalFlags) (Settings, error) {
	settings, err := defaultSettings()
	if err != nil {
		return Settings{}, err
	}

	cfgPath, err := resolveConfigPath(flags.ConfigPath)
	if err != nil {
		return Settings{}, err
	}

	if err := applyFileConfig(cfgPath, &settings); err != nil {
		return Settings{}, err
	}

	if err := loadEnvFile(flags.EnvFile); err != nil {
		return Settings{}, err
	}
	applyEnv(&settings)

	if err := applyFlags(flags, &settings); err != nil {
		return Settings{}, err
	}

	if settings.OutputMode == "" {
		settings.OutputMode = "json"
	}
	if settings.Timeout <= 0 {
		settings.Timeout = 10 * time.Second
	}
	if settings.RPCTimeout <= 0 {
		settings.RPCTimeout = 30 * time.Second
	}
	if settings.Retries < 0 {
		settings.Retries = 0
	}
	if settings.GasMultiplier <= 1 {
		settings.GasMultiplier = 1.2
	}
	if settings.KeyVaultSize <= 0 {
		settings.KeyVaultSize = 1024
	}
	normalizeTracker(&settings.Tracker)

	return settings, nil
}

// ValidateForServe reports settings the bot cannot run without.
func (s Settings) ValidateForServe() error {
	missing := make([]string, 0, 4)
	if strings.TrimSpace(s.TelegramToken) == "" {
		missing = append(missing, "telegram token (FAUCETBOT_TELEGRAM_TOKEN)")
	}
	if _, err := registry.ResolveRPCURL(s.RPCURL, s.ChainID); err != nil {
		missing = append(missing, "rpc url")
	}
	addresses := []struct {
		key   string
		value string
	}{
		{"contracts.faucet_vault", s.Contracts.FaucetVault},
		{"contracts.synthetics_router", s.Contracts.SyntheticsRouter},
		{"contracts.exchange_router", s.Contracts.ExchangeRouter},
		{"contracts.order_vault", s.Contracts.OrderVault},
	}
	for _, a := range addresses {
		if !registry.IsHexAddress(a.value) {
			missing = append(missing, a.key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing or invalid settings: %s", strings.Join(missing, ", "))
	}
	return nil
}

func defaultSettings() (Settings, error) {
	stateDir, err := defaultStateDir()
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		OutputMode:    "json",
		Timeout:       10 * time.Second,
		Retries:       2,
		LogLevel:      "info",
		LogFormat:     "json",
		ChainID:       registry.DevnetChainID,
		RPCTimeout:    30 * time.Second,
		TickersURL:    registry.DefaultTickersURL,
		MarketDataURL: registry.DefaultMarketDataURL,
		Contracts: Contracts{
			UIFeeReceiver: registry.DefaultUIFeeReceiver,
			ReferralCode:  registry.ZeroReferralCode,
		},
		Tracker: Tracker{
			PollInterval:     2 * time.Second,
			Timeout:          3 * time.Minute,
			ProgressInterval: 5 * time.Second,
			WarnAfter:        60 * time.Second,
			WarnEvery:        30 * time.Second,
		},
		GasMultiplier:      1.2,
		CacheEnabled:       true,
		CachePath:          filepath.Join(stateDir, "cache.db"),
		CacheLockPath:      filepath.Join(stateDir, "cache.lock"),
		MaxStale:           5 * time.Minute,
		MarketDataTTL:      10 * time.Minute,
		OperationStorePath: filepath.Join(stateDir, "operations.db"),
		OperationLockPath:  filepath.Join(stateDir, "operations.lock"),
		SessionStorePath:   filepath.Join(stateDir, "sessions.db"),
		SessionLockPath:    filepath.Join(stateDir, "sessions.lock"),
		KeyTTL:             30 * time.Minute,
		KeyVaultSize:       1024,
	}, nil
}

func resolveConfigPath(input string) (string, error) {
	if strings.TrimSpace(input) != "" {
		return input, nil
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "faucetbot", "config.yaml"), nil
}

func defaultStateDir() (string, error) {
	base := os.Getenv("XDG_STATE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(base, "faucetbot"), nil
}

func loadEnvFile(path string) error {
	if strings.TrimSpace(path) == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func applyFileConfig(path string, settings *Settings) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}

	if cfg.Output != "" {
		settings.OutputMode = strings.ToLower(cfg.Output)
	}
	if err := setDuration(cfg.Timeout, "timeout", &settings.Timeout); err != nil {
		return err
	}
	if err := setDuration(cfg.Chain.RPCTimeout, "chain.rpc_timeout", &settings.RPCTimeout); err != nil {
		return err
	}
	if cfg.Retries != nil {
		settings.Retries = *cfg.Retries
	}
	if cfg.LogLevel != "" {
		settings.LogLevel = cfg.LogLevel
	}
	if cfg.Log.Level != "" {
		settings.LogLevel = cfg.Log.Level
	}
	if cfg.Log.Format != "" {
		settings.LogFormat = strings.ToLower(cfg.Log.Format)
	}
	if cfg.Telegram.Token != "" {
		settings.TelegramToken = cfg.Telegram.Token
	}
	if cfg.Telegram.TokenEnv != "" {
		settings.TelegramToken = os.Getenv(cfg.Telegram.TokenEnv)
	}
	if cfg.Chain.ID != 0 {
		settings.ChainID = cfg.Chain.ID
	}
	if cfg.Chain.RPCURL != "" {
		settings.RPCURL = cfg.Chain.RPCURL
	}
	if cfg.Prices.TickersURL != "" {
		settings.TickersURL = cfg.Prices.TickersURL
	}
	if cfg.Prices.MarketDataURL != "" {
		settings.MarketDataURL = cfg.Prices.MarketDataURL
	}
	if err := setDuration(cfg.Prices.MarketDataTTL, "prices.market_data_ttl", &settings.MarketDataTTL); err != nil {
		return err
	}

	setString(cfg.Contracts.FaucetVault, &settings.Contracts.FaucetVault)
	setString(cfg.Contracts.SyntheticsRouter, &settings.Contracts.SyntheticsRouter)
	setString(cfg.Contracts.ExchangeRouter, &settings.Contracts.ExchangeRouter)
	setString(cfg.Contracts.OrderVault, &settings.Contracts.OrderVault)
	setString(cfg.Contracts.UIFeeReceiver, &settings.Contracts.UIFeeReceiver)
	setString(cfg.Contracts.ReferralCode, &settings.Contracts.ReferralCode)

	trackerFields := []struct {
		raw  string
		name string
		dst  *time.Duration
	}{
		{cfg.Tracker.PollInterval, "tracker.poll_interval", &settings.Tracker.PollInterval},
		{cfg.Tracker.Timeout, "tracker.timeout", &settings.Tracker.Timeout},
		{cfg.Tracker.ProgressInterval, "tracker.progress_interval", &settings.Tracker.ProgressInterval},
		{cfg.Tracker.WarnAfter, "tracker.warn_after", &settings.Tracker.WarnAfter},
		{cfg.Tracker.WarnEvery, "tracker.warn_every", &settings.Tracker.WarnEvery},
	}
	for _, f := range trackerFields {
		if err := setDuration(f.raw, f.name, f.dst); err != nil {
			return err
		}
	}

	if cfg.Execution.GasMultiplier != nil {
		settings.GasMultiplier = *cfg.Execution.GasMultiplier
	}
	setString(cfg.Execution.MaxFeeGwei, &settings.MaxFeeGwei)
	setString(cfg.Execution.MaxPriorityFeeGwei, &settings.MaxPriorityFeeGwei)
	setString(cfg.Execution.OperationsPath, &settings.OperationStorePath)
	setString(cfg.Execution.OperationsLockPath, &settings.OperationLockPath)

	if cfg.Cache.Enabled != nil {
		settings.CacheEnabled = *cfg.Cache.Enabled
	}
	setString(cfg.Cache.Path, &settings.CachePath)
	setString(cfg.Cache.LockPath, &settings.CacheLockPath)
	if err := setDuration(cfg.Cache.MaxStale, "cache.max_stale", &settings.MaxStale); err != nil {
		return err
	}

	setString(cfg.Sessions.Path, &settings.SessionStorePath)
	setString(cfg.Sessions.LockPath, &settings.SessionLockPath)
	if err := setDuration(cfg.Sessions.KeyTTL, "sessions.key_ttl", &settings.KeyTTL); err != nil {
		return err
	}
	if cfg.Sessions.KeyVaultSize != nil {
		settings.KeyVaultSize = *cfg.Sessions.KeyVaultSize
	}

	return nil
}

func applyEnv(settings *Settings) {
	if v := os.Getenv("FAUCETBOT_OUTPUT"); v != "" {
		settings.OutputMode = strings.ToLower(v)
	}
	if v := os.Getenv("FAUCETBOT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.Timeout = d
		}
	}
	if v := os.Getenv("FAUCETBOT_RPC_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.RPCTimeout = d
		}
	}
	if v := os.Getenv("FAUCETBOT_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			settings.Retries = n
		}
	}
	if v := os.Getenv("FAUCETBOT_LOG_LEVEL"); v != "" {
		settings.LogLevel = v
	}
	if v := os.Getenv("FAUCETBOT_LOG_FORMAT"); v != "" {
		settings.LogFormat = strings.ToLower(v)
	}
	// BOT_TOKEN is what existing deployments already export.
	if v := os.Getenv("BOT_TOKEN"); v != "" {
		settings.TelegramToken = v
	}
	if v := os.Getenv("FAUCETBOT_TELEGRAM_TOKEN"); v != "" {
		settings.TelegramToken = v
	}
	if v := os.Getenv("FAUCETBOT_RPC_URL"); v != "" {
		settings.RPCURL = v
	}
	if v := os.Getenv("FAUCETBOT_CHAIN_ID"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			settings.ChainID = n
		}
	}
	if v := os.Getenv("FAUCETBOT_TICKERS_URL"); v != "" {
		settings.TickersURL = v
	}
	if v := os.Getenv("FAUCETBOT_MARKET_DATA_URL"); v != "" {
		settings.MarketDataURL = v
	}
	if v := os.Getenv("FAUCETBOT_FAUCET_VAULT"); v != "" {
		settings.Contracts.FaucetVault = v
	}
	if v := os.Getenv("FAUCETBOT_SYNTHETICS_ROUTER"); v != "" {
		settings.Contracts.SyntheticsRouter = v
	}
	if v := os.Getenv("FAUCETBOT_EXCHANGE_ROUTER"); v != "" {
		settings.Contracts.ExchangeRouter = v
	}
	if v := os.Getenv("FAUCETBOT_ORDER_VAULT"); v != "" {
		settings.Contracts.OrderVault = v
	}
	if v := os.Getenv("FAUCETBOT_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.Tracker.PollInterval = d
		}
	}
	if v := os.Getenv("FAUCETBOT_CONFIRM_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.Tracker.Timeout = d
		}
	}
	if v := os.Getenv("FAUCETBOT_NO_CACHE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			settings.CacheEnabled = !b
		}
	}
	if v := os.Getenv("FAUCETBOT_CACHE_PATH"); v != "" {
		settings.CachePath = v
	}
	if v := os.Getenv("FAUCETBOT_OPERATIONS_PATH"); v != "" {
		settings.OperationStorePath = v
	}
	if v := os.Getenv("FAUCETBOT_ENABLE_COMMANDS"); v != "" {
		settings.EnableCommands = splitCSV(v)
	}
	if v := os.Getenv("FAUCETBOT_SESSIONS_PATH"); v != "" {
		settings.SessionStorePath = v
	}
}

func applyFlags(flags GlobalFlags, settings *Settings) error {
	if flags.JSON && flags.Plain {
		return fmt.Errorf("cannot use --json and --plain together")
	}
	if flags.JSON {
		settings.OutputMode = "json"
	}
	if flags.Plain {
		settings.OutputMode = "plain"
	}
	if strings.TrimSpace(flags.Select) != "" {
		parts := strings.Split(flags.Select, ",")
		fields := make([]string, 0, len(parts))
		for _, part := range parts {
			f := strings.TrimSpace(part)
			if f != "" {
				fields = append(fields, f)
			}
		}
		settings.SelectFields = fields
	}
	settings.ResultsOnly = flags.ResultsOnly

	if flags.Timeout != "" {
		d, err := time.ParseDuration(flags.Timeout)
		if err != nil {
			return fmt.Errorf("parse --timeout: %w", err)
		}
		settings.Timeout = d
	}
	if flags.Retries >= 0 {
		settings.Retries = flags.Retries
	}
	if strings.TrimSpace(flags.RPCURL) != "" {
		settings.RPCURL = strings.TrimSpace(flags.RPCURL)
	}
	if flags.LogLevel != "" {
		settings.LogLevel = flags.LogLevel
	}
	if flags.LogFormat != "" {
		settings.LogFormat = strings.ToLower(flags.LogFormat)
	}
	if flags.NoCache {
		settings.CacheEnabled = false
	}
	if strings.TrimSpace(flags.EnableCommands) != "" {
		settings.EnableCommands = splitCSV(flags.EnableCommands)
	}
	if flags.MaxStale != "" {
		d, err := time.ParseDuration(flags.MaxStale)
		if err != nil {
			return fmt.Errorf("parse --max-stale: %w", err)
		}
		settings.MaxStale = d
	}

	if settings.OutputMode != "json" && settings.OutputMode != "plain" {
		return fmt.Errorf("output must be json or plain")
	}

	return nil
}

func normalizeTracker(t *Tracker) {
	if t.PollInterval <= 0 {
		t.PollInterval = 2 * time.Second
	}
	if t.Timeout <= 0 {
		t.Timeout = 3 * time.Minute
	}
	if t.ProgressInterval <= 0 {
		t.ProgressInterval = 5 * time.Second
	}
	if t.WarnAfter <= 0 {
		t.WarnAfter = 60 * time.Second
	}
	if t.WarnEvery <= 0 {
		t.WarnEvery = 30 * time.Second
	}
}

func setString(v string, dst *string) {
	if strings.TrimSpace(v) != "" {
		*dst = strings.TrimSpace(v)
	}
}

func setDuration(raw, name string, dst *time.Duration) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("config %s: %w", name, err)
	}
	*dst = d
	return nil
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
