// Package config loads the sniper configuration from a YAML file, SNIPER_
// environment variables and the defaults each package publishes.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"solana-cluster-sniper/internal/alerting"
	"solana-cluster-sniper/internal/cluster"
	"solana-cluster-sniper/internal/domain"
	"solana-cluster-sniper/internal/execution"
	"solana-cluster-sniper/internal/exposure"
	"solana-cluster-sniper/internal/gate"
	"solana-cluster-sniper/internal/ingestion"
	"solana-cluster-sniper/internal/journal"
	"solana-cluster-sniper/internal/logging"
	"solana-cluster-sniper/internal/market"
	"solana-cluster-sniper/internal/observability"
	"solana-cluster-sniper/internal/orchestrator"
	"solana-cluster-sniper/internal/position"
	"solana-cluster-sniper/internal/raydium"
	"solana-cluster-sniper/internal/risk"
	"solana-cluster-sniper/internal/solana"
)

// EnvPrefix prefixes environment overrides, e.g. SNIPER_SOLANA_RPC_URLS.
const EnvPrefix = "SNIPER"

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config materialises application configuration.
type Config struct {
	App          AppConfig          `mapstructure:"app"`
	Logging      logging.Config     `mapstructure:"logging"`
	Solana       SolanaConfig       `mapstructure:"solana"`
	Ingestion    IngestionConfig    `mapstructure:"ingestion"`
	Cluster      ClusterConfig      `mapstructure:"cluster"`
	Gate         GateConfig         `mapstructure:"gate"`
	Exposure     ExposureConfig     `mapstructure:"exposure"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Execution    ExecutionConfig    `mapstructure:"execution"`
	Position     PositionConfig     `mapstructure:"position"`
	Market       MarketConfig       `mapstructure:"market"`
	Risk         RiskConfig         `mapstructure:"risk"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Journal      JournalConfig      `mapstructure:"journal"`
	Alerting     AlertingConfig     `mapstructure:"alerting"`
	Ops          OpsConfig          `mapstructure:"ops"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// SolanaConfig covers RPC access and the trading key.
type SolanaConfig struct {
	// RPCURLs are tried in order by the endpoint pool.
	RPCURLs    []string      `mapstructure:"rpc_urls"`
	WSURL      string        `mapstructure:"ws_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	Commitment string        `mapstructure:"commitment"`
	// Keypair is a base58 secret key; KeypairFile a solana-keygen JSON file.
	Keypair     string `mapstructure:"keypair"`
	KeypairFile string `mapstructure:"keypair_file"`

	ReconnectDelay    time.Duration `mapstructure:"reconnect_delay"`
	MaxReconnectDelay time.Duration `mapstructure:"max_reconnect_delay"`
	PingInterval      time.Duration `mapstructure:"ping_interval"`
}

// IngestionConfig selects transfer event producers.
type IngestionConfig struct {
	WSEnabled   bool `mapstructure:"ws_enabled"`
	PollEnabled bool `mapstructure:"poll_enabled"`
	// Addresses are mentioned by the log subscription and polled for signatures.
	Addresses []string `mapstructure:"addresses"`
	// Wallets, when set, restricts decoding to transactions they signed.
	Wallets      []string      `mapstructure:"wallets"`
	Workers      int           `mapstructure:"workers"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	PollLimit    int           `mapstructure:"poll_limit"`
	Backfill     bool          `mapstructure:"backfill"`
}

// DetectorConfig is shared by the temporal and amount detectors.
type DetectorConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Window     time.Duration `mapstructure:"window"`
	Tolerance  float64       `mapstructure:"tolerance"`
	MinWallets int           `mapstructure:"min_wallets"`
}

// AccumulationConfig tunes the early accumulation detector.
type AccumulationConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Short        time.Duration `mapstructure:"short"`
	Baseline     time.Duration `mapstructure:"baseline"`
	Multiplier   float64       `mapstructure:"multiplier"`
	MinWallets   int           `mapstructure:"min_wallets"`
	MaxBuyers    int           `mapstructure:"max_buyers"`
	MinVolumeUSD float64       `mapstructure:"min_volume_usd"`
}

// ScoreConfig surfaces the score weights.
type ScoreConfig struct {
	BasePerMember       int           `mapstructure:"base_per_member"`
	BaseMax             int           `mapstructure:"base_max"`
	SmartMax            int           `mapstructure:"smart_max"`
	VolumeMax           int           `mapstructure:"volume_max"`
	VolumeSaturationUSD float64       `mapstructure:"volume_saturation_usd"`
	TightnessBonus      int           `mapstructure:"tightness_bonus"`
	TightWindow         time.Duration `mapstructure:"tight_window"`
	CoordinationBonus   int           `mapstructure:"coordination_bonus"`
	StrongBuyAt         int           `mapstructure:"strong_buy_at"`
	BuyAt               int           `mapstructure:"buy_at"`
}

// ClusterConfig tunes detection and scanning.
type ClusterConfig struct {
	Temporal         DetectorConfig     `mapstructure:"temporal"`
	Amount           DetectorConfig     `mapstructure:"amount"`
	Accumulation     AccumulationConfig `mapstructure:"accumulation"`
	Score            ScoreConfig        `mapstructure:"score"`
	SmartMinWinRate  float64            `mapstructure:"smart_min_win_rate"`
	SmartMinTrades   int                `mapstructure:"smart_min_trades"`
	ScanInterval     time.Duration      `mapstructure:"scan_interval"`
	Lookback         time.Duration      `mapstructure:"lookback"`
	TTL              time.Duration      `mapstructure:"ttl"`
	Parallelism      int                `mapstructure:"parallelism"`
	StoreBackedScans bool               `mapstructure:"store_backed_scans"`
}

// GateConfig holds safety thresholds.
type GateConfig struct {
	MinLiquidityUSD  float64       `mapstructure:"min_liquidity_usd"`
	MinPoolAge       time.Duration `mapstructure:"min_pool_age"`
	RugWindow        time.Duration `mapstructure:"rug_window"`
	MaxDropPct       float64       `mapstructure:"max_drop_pct"`
	MaxImpactBps     int           `mapstructure:"max_impact_bps"`
	RequireRenounced bool          `mapstructure:"require_renounced"`
	RiskTimeout      time.Duration `mapstructure:"risk_timeout"`
	MinResponders    int           `mapstructure:"min_responders"`
}

// ExposureConfig holds capital limits in lamports.
type ExposureConfig struct {
	MaxPerToken      uint64 `mapstructure:"max_per_token"`
	MaxGlobal        uint64 `mapstructure:"max_global"`
	MaxOpenPositions int    `mapstructure:"max_open_positions"`
}

// OrchestratorConfig sizes trades.
type OrchestratorConfig struct {
	TradeLamports     uint64        `mapstructure:"trade_lamports"`
	MinTradeLamports  uint64        `mapstructure:"min_trade_lamports"`
	SizeToImpact      bool          `mapstructure:"size_to_impact"`
	MaxSlippageBps    int           `mapstructure:"max_slippage_bps"`
	MaxImpactBps      int           `mapstructure:"max_impact_bps"`
	IntentTTL         time.Duration `mapstructure:"intent_ttl"`
	MaxConcurrentBuys int           `mapstructure:"max_concurrent_buys"`
	DedupWindow       int           `mapstructure:"dedup_window"`
	LateContext       time.Duration `mapstructure:"late_context"`
}

// FeeConfig bounds the priority fee tuner, in micro-lamports per CU.
type FeeConfig struct {
	Base uint64 `mapstructure:"base"`
	Min  uint64 `mapstructure:"min"`
	Max  uint64 `mapstructure:"max"`
}

// TipConfig bounds bundle tips in lamports.
type TipConfig struct {
	Default  uint64   `mapstructure:"default"`
	Min      uint64   `mapstructure:"min"`
	Max      uint64   `mapstructure:"max"`
	Panic    uint64   `mapstructure:"panic"`
	Dynamic  bool     `mapstructure:"dynamic"`
	Accounts []string `mapstructure:"accounts"`
}

// PauseConfig trips trading off after failures or a low balance.
type PauseConfig struct {
	MaxConsecutiveFailures  int           `mapstructure:"max_consecutive_failures"`
	MaxFailuresPerHour      int           `mapstructure:"max_failures_per_hour"`
	Cooldown                time.Duration `mapstructure:"cooldown"`
	MinBalanceLamports      uint64        `mapstructure:"min_balance_lamports"`
	CriticalBalanceLamports uint64        `mapstructure:"critical_balance_lamports"`
	BalanceInterval         time.Duration `mapstructure:"balance_interval"`
}

// BreakerConfig tunes per-endpoint circuit breakers.
type BreakerConfig struct {
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
	OpenTimeout      time.Duration `mapstructure:"open_timeout"`
	Interval         time.Duration `mapstructure:"interval"`
}

// ExecutionConfig tunes the router and its paths.
type ExecutionConfig struct {
	Paths              []string      `mapstructure:"paths"`
	MaxRetries         int           `mapstructure:"max_retries"`
	HedgeDelay         time.Duration `mapstructure:"hedge_delay"`
	AttemptTimeout     time.Duration `mapstructure:"attempt_timeout"`
	ConfirmPoll        time.Duration `mapstructure:"confirm_poll"`
	SettleTimeout      time.Duration `mapstructure:"settle_timeout"`
	LateWatch          time.Duration `mapstructure:"late_watch"`
	ComputeUnitLimit   uint32        `mapstructure:"compute_unit_limit"`
	PriorityFeeStep    uint64        `mapstructure:"priority_fee_step"`
	BaseSlippageBps    int           `mapstructure:"base_slippage_bps"`
	SlippageStepBps    int           `mapstructure:"slippage_step_bps"`
	MaxSlippageBps     int           `mapstructure:"max_slippage_bps"`
	PanicBaseSlippage  int           `mapstructure:"panic_base_slippage_bps"`
	PanicMaxSlippage   int           `mapstructure:"panic_max_slippage_bps"`
	MaxImpactBps       int           `mapstructure:"max_impact_bps"`
	JitoURL            string        `mapstructure:"jito_url"`
	JupiterURL         string        `mapstructure:"jupiter_url"`
	DryRun             bool          `mapstructure:"dry_run"`
	CongestionInterval time.Duration `mapstructure:"congestion_interval"`
	Fee                FeeConfig     `mapstructure:"fee"`
	Tip                TipConfig     `mapstructure:"tip"`
	Pause              PauseConfig   `mapstructure:"pause"`
	Breaker            BreakerConfig `mapstructure:"breaker"`
}

// PositionConfig holds exit rules as fractions of the entry price.
type PositionConfig struct {
	TakeProfit      float64       `mapstructure:"take_profit"`
	StopLoss        float64       `mapstructure:"stop_loss"`
	TrailActivation float64       `mapstructure:"trail_activation"`
	Trail           float64       `mapstructure:"trail"`
	MaxHold         time.Duration `mapstructure:"max_hold"`
	RugLiquidityUSD float64       `mapstructure:"rug_liquidity_usd"`
	RugDrop         float64       `mapstructure:"rug_drop"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	ExitTimeout     time.Duration `mapstructure:"exit_timeout"`
	Parallelism     int           `mapstructure:"parallelism"`
	History         int           `mapstructure:"history"`
}

// MarketConfig covers snapshot sources and caching.
type MarketConfig struct {
	DexScreenerURL string        `mapstructure:"dexscreener_url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	RPS            float64       `mapstructure:"rps"`
	Burst          int           `mapstructure:"burst"`
	HistoryWindow  time.Duration `mapstructure:"history_window"`
	// Cache is "memory" or "redis".
	Cache          string        `mapstructure:"cache"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
	SOLPriceTTL    time.Duration `mapstructure:"sol_price_ttl"`
	SOLPriceMaxAge time.Duration `mapstructure:"sol_price_max_age"`
	PoolHotTTL     time.Duration `mapstructure:"pool_hot_ttl"`
	PoolColdTTL    time.Duration `mapstructure:"pool_cold_ttl"`
}

// RiskSourceConfig enables one risk provider.
type RiskSourceConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

// RiskConfig selects risk providers.
type RiskConfig struct {
	Birdeye           RiskSourceConfig `mapstructure:"birdeye"`
	TokenSniffer      RiskSourceConfig `mapstructure:"tokensniffer"`
	RugCheck          RiskSourceConfig `mapstructure:"rugcheck"`
	GoPlus            RiskSourceConfig `mapstructure:"goplus"`
	RugDoc            RiskSourceConfig `mapstructure:"rugdoc"`
	Helius            RiskSourceConfig `mapstructure:"helius"`
	MaxTop10HolderPct float64          `mapstructure:"max_top10_holder_pct"`
	MinSnifferScore   int              `mapstructure:"min_sniffer_score"`
	MaxIdle           time.Duration    `mapstructure:"max_idle"`
	Timeout           time.Duration    `mapstructure:"timeout"`
	RPS               float64          `mapstructure:"rps"`
	Burst             int              `mapstructure:"burst"`
}

// RedisConfig points at the snapshot cache.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// StorageConfig holds store DSNs. Empty DSNs run without persistence.
type StorageConfig struct {
	PostgresDSN   string `mapstructure:"postgres_dsn"`
	ClickhouseDSN string `mapstructure:"clickhouse_dsn"`
}

// JournalConfig tunes the persistence sink.
type JournalConfig struct {
	QueueSize       int           `mapstructure:"queue_size"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	TradeBatchSize  int           `mapstructure:"trade_batch_size"`
	TradeFlush      time.Duration `mapstructure:"trade_flush"`
	WalletFlush     time.Duration `mapstructure:"wallet_flush"`
	RetainTransfers time.Duration `mapstructure:"retain_transfers"`
}

// TelegramConfig describes the Telegram notifier.
type TelegramConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	BotToken string        `mapstructure:"bot_token"`
	ChatID   string        `mapstructure:"chat_id"`
	APIBase  string        `mapstructure:"api_base"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// AlertingConfig defines alert filters and routing.
type AlertingConfig struct {
	Enabled         bool           `mapstructure:"enabled"`
	MinClusterScore int            `mapstructure:"min_cluster_score"`
	Rejections      bool           `mapstructure:"rejections"`
	QueueSize       int            `mapstructure:"queue_size"`
	SendTimeout     time.Duration  `mapstructure:"send_timeout"`
	Telegram        TelegramConfig `mapstructure:"telegram"`
}

// OpsConfig configures the metrics and status server.
type OpsConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addr         string        `mapstructure:"addr"`
	Namespace    string        `mapstructure:"namespace"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// Override adjusts viper after the file is read, e.g. from CLI flags.
type Override func(v *viper.Viper)

// Set overrides one key.
func Set(key string, value interface{}) Override {
	return func(v *viper.Viper) { v.Set(key, value) }
}

// Load builds configuration from file, environment, and defaults. Overrides
// apply last and win over every other source.
func Load(path string, overrides ...Override) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("sniper")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}
	for _, o := range overrides {
		o(v)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs sanity checks and runs each package's own validation.
func (c *Config) Validate() error {
	if len(c.Solana.RPCURLs) == 0 {
		return fmt.Errorf("%w: solana.rpc_urls is empty", ErrInvalid)
	}
	if c.Ingestion.WSEnabled && c.Solana.WSURL == "" {
		return fmt.Errorf("%w: ingestion.ws_enabled requires solana.ws_url", ErrInvalid)
	}
	if !c.Ingestion.WSEnabled && !c.Ingestion.PollEnabled {
		return fmt.Errorf("%w: enable ingestion.ws_enabled or ingestion.poll_enabled", ErrInvalid)
	}
	if c.Ingestion.PollEnabled && len(c.Ingestion.Addresses) == 0 {
		return fmt.Errorf("%w: ingestion.poll_enabled requires ingestion.addresses", ErrInvalid)
	}
	if c.Exposure.MaxPerToken > c.Exposure.MaxGlobal {
		return fmt.Errorf("%w: exposure.max_per_token %d > exposure.max_global %d", ErrInvalid, c.Exposure.MaxPerToken, c.Exposure.MaxGlobal)
	}
	if c.Exposure.MaxOpenPositions <= 0 {
		return fmt.Errorf("%w: exposure.max_open_positions must be positive", ErrInvalid)
	}
	switch c.Market.Cache {
	case "memory":
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("%w: market.cache redis requires redis.addr", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: market.cache %q (want memory or redis)", ErrInvalid, c.Market.Cache)
	}
	if c.Cluster.StoreBackedScans && c.Storage.PostgresDSN == "" {
		return fmt.Errorf("%w: cluster.store_backed_scans requires storage.postgres_dsn", ErrInvalid)
	}
	if t := c.Alerting.Telegram; c.Alerting.Enabled && t.Enabled {
		if t.BotToken == "" {
			return fmt.Errorf("%w: alerting.telegram.bot_token is required", ErrInvalid)
		}
		if t.ChatID == "" {
			return fmt.Errorf("%w: alerting.telegram.chat_id is required", ErrInvalid)
		}
	}
	if !c.Execution.DryRun && c.Solana.Keypair == "" && c.Solana.KeypairFile == "" {
		return fmt.Errorf("%w: live trading requires solana.keypair or solana.keypair_file", ErrInvalid)
	}

	exec, err := c.ExecutionConfig()
	if err != nil {
		return err
	}
	checks := []struct {
		section string
		err     error
	}{
		{"cluster", c.ClusterConfig().Validate()},
		{"execution", exec.Validate()},
		{"position", c.PositionConfig().Validate()},
		{"orchestrator", c.OrchestratorConfig().Validate()},
	}
	for _, chk := range checks {
		if chk.err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalid, chk.section, chk.err)
		}
	}
	return nil
}

// ClusterConfig maps the cluster section onto cluster.Config.
func (c *Config) ClusterConfig() cluster.Config {
	s := c.Cluster
	return cluster.Config{
		Temporal: cluster.TemporalConfig{
			Enabled:    s.Temporal.Enabled,
			Window:     s.Temporal.Window,
			MinWallets: s.Temporal.MinWallets,
		},
		Amount: cluster.AmountConfig{
			Enabled:    s.Amount.Enabled,
			Tolerance:  s.Amount.Tolerance,
			MinWallets: s.Amount.MinWallets,
		},
		Accumulation: cluster.AccumulationConfig{
			Enabled:      s.Accumulation.Enabled,
			Short:        s.Accumulation.Short,
			Baseline:     s.Accumulation.Baseline,
			Multiplier:   s.Accumulation.Multiplier,
			MinWallets:   s.Accumulation.MinWallets,
			MaxBuyers:    s.Accumulation.MaxBuyers,
			MinVolumeUSD: decimal.NewFromFloat(s.Accumulation.MinVolumeUSD),
		},
		Score: cluster.ScoreWeights{
			BasePerMember:       s.Score.BasePerMember,
			BaseMax:             s.Score.BaseMax,
			SmartMax:            s.Score.SmartMax,
			VolumeMax:           s.Score.VolumeMax,
			VolumeSaturationUSD: decimal.NewFromFloat(s.Score.VolumeSaturationUSD),
			TightnessBonus:      s.Score.TightnessBonus,
			TightWindow:         s.Score.TightWindow,
			CoordinationBonus:   s.Score.CoordinationBonus,
			StrongBuyAt:         s.Score.StrongBuyAt,
			BuyAt:               s.Score.BuyAt,
		},
		Wallets:      cluster.WalletConfig{MinWinRate: s.SmartMinWinRate, MinTrades: s.SmartMinTrades},
		ScanInterval: s.ScanInterval,
		Lookback:     s.Lookback,
		TTL:          s.TTL,
		Parallelism:  s.Parallelism,
	}
}

// GateConfig maps the gate section onto gate.Config.
func (c *Config) GateConfig() gate.Config {
	s := c.Gate
	return gate.Config{
		MinLiquidityUSD:  decimal.NewFromFloat(s.MinLiquidityUSD),
		MinPoolAge:       s.MinPoolAge,
		RugWindow:        s.RugWindow,
		MaxDropPct:       s.MaxDropPct,
		MaxImpactBps:     s.MaxImpactBps,
		RequireRenounced: s.RequireRenounced,
		RiskTimeout:      s.RiskTimeout,
		MinResponders:    s.MinResponders,
	}
}

// ExposureConfig maps the exposure section onto exposure.Config.
func (c *Config) ExposureConfig() exposure.Config {
	return exposure.Config{
		MaxPerToken:      c.Exposure.MaxPerToken,
		MaxGlobal:        c.Exposure.MaxGlobal,
		MaxOpenPositions: c.Exposure.MaxOpenPositions,
	}
}

// OrchestratorConfig maps the orchestrator section onto orchestrator.Config.
func (c *Config) OrchestratorConfig() orchestrator.Config {
	s := c.Orchestrator
	return orchestrator.Config{
		TradeLamports:     s.TradeLamports,
		MinTradeLamports:  s.MinTradeLamports,
		SizeToImpact:      s.SizeToImpact,
		MaxSlippageBps:    s.MaxSlippageBps,
		MaxImpactBps:      s.MaxImpactBps,
		IntentTTL:         s.IntentTTL,
		MaxConcurrentBuys: s.MaxConcurrentBuys,
		DedupWindow:       s.DedupWindow,
		LateContext:       s.LateContext,
	}
}

// ExecutionConfig maps the execution section onto execution.Config. Fee
// and tip fields not surfaced here keep their package defaults.
func (c *Config) ExecutionConfig() (execution.Config, error) {
	s := c.Execution
	paths, err := ParsePaths(s.Paths)
	if err != nil {
		return execution.Config{}, err
	}

	fee := execution.DefaultFeeConfig()
	fee.Base, fee.Min, fee.Max = s.Fee.Base, s.Fee.Min, s.Fee.Max

	tip := execution.DefaultTipConfig()
	tip.Default, tip.Min, tip.Max, tip.Panic = s.Tip.Default, s.Tip.Min, s.Tip.Max, s.Tip.Panic
	tip.Dynamic = s.Tip.Dynamic
	if len(s.Tip.Accounts) > 0 {
		tip.Accounts = s.Tip.Accounts
	}

	return execution.Config{
		Paths:                paths,
		MaxRetries:           s.MaxRetries,
		HedgeDelay:           s.HedgeDelay,
		AttemptTimeout:       s.AttemptTimeout,
		ConfirmPoll:          s.ConfirmPoll,
		SettleTimeout:        s.SettleTimeout,
		LateWatch:            s.LateWatch,
		ComputeUnitLimit:     s.ComputeUnitLimit,
		PriorityFeeStep:      s.PriorityFeeStep,
		BaseSlippageBps:      s.BaseSlippageBps,
		SlippageStepBps:      s.SlippageStepBps,
		MaxSlippageBps:       s.MaxSlippageBps,
		PanicBaseSlippageBps: s.PanicBaseSlippage,
		PanicMaxSlippageBps:  s.PanicMaxSlippage,
		MaxImpactBps:         s.MaxImpactBps,
		JitoURL:              s.JitoURL,
		JupiterURL:           s.JupiterURL,
		DryRun:               s.DryRun,
		Fee:                  fee,
		Tip:                  tip,
		Pause: execution.PauseConfig{
			MaxConsecutiveFailures:  s.Pause.MaxConsecutiveFailures,
			MaxFailuresPerHour:      s.Pause.MaxFailuresPerHour,
			Cooldown:                s.Pause.Cooldown,
			MinBalanceLamports:      s.Pause.MinBalanceLamports,
			CriticalBalanceLamports: s.Pause.CriticalBalanceLamports,
			BalanceInterval:         s.Pause.BalanceInterval,
		},
		Breaker: execution.BreakerConfig{
			FailureThreshold: s.Breaker.FailureThreshold,
			OpenTimeout:      s.Breaker.OpenTimeout,
			Interval:         s.Breaker.Interval,
		},
	}, nil
}

// ParsePaths converts path names into domain paths, rejecting unknown and
// repeated names.
func ParsePaths(names []string) ([]domain.Path, error) {
	seen := make(map[domain.Path]bool, len(names))
	out := make([]domain.Path, 0, len(names))
	for _, n := range names {
		p := domain.Path(strings.ToLower(strings.TrimSpace(n)))
		switch p {
		case domain.PathBundle, domain.PathDirect, domain.PathAggregator, domain.PathRPC:
		default:
			return nil, fmt.Errorf("%w: execution.paths: unknown path %q", ErrInvalid, n)
		}
		if seen[p] {
			return nil, fmt.Errorf("%w: execution.paths: %q listed twice", ErrInvalid, n)
		}
		seen[p] = true
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: execution.paths is empty", ErrInvalid)
	}
	return out, nil
}

// PositionConfig maps the position section onto position.Config.
func (c *Config) PositionConfig() position.Config {
	s := c.Position
	return position.Config{
		TakeProfit:      s.TakeProfit,
		StopLoss:        s.StopLoss,
		TrailActivation: s.TrailActivation,
		Trail:           s.Trail,
		MaxHold:         s.MaxHold,
		RugLiquidityUSD: s.RugLiquidityUSD,
		RugDrop:         s.RugDrop,
		PollInterval:    s.PollInterval,
		ExitTimeout:     s.ExitTimeout,
		Parallelism:     s.Parallelism,
		History:         s.History,
	}
}

// WSConfig maps the solana section onto the log stream settings.
func (c *Config) WSConfig() solana.WSConfig {
	ws := solana.DefaultWSConfig()
	ws.ReconnectDelay = c.Solana.ReconnectDelay
	ws.MaxReconnectDelay = c.Solana.MaxReconnectDelay
	ws.PingInterval = c.Solana.PingInterval
	if c.Solana.Commitment != "" {
		ws.Commitment = c.Solana.Commitment
	}
	return ws
}

// IngestionWSConfig maps the ingestion section onto the WS source.
func (c *Config) IngestionWSConfig() ingestion.WSConfig {
	return ingestion.WSConfig{Mentions: c.Ingestion.Addresses, Workers: c.Ingestion.Workers}
}

// IngestionPollConfig maps the ingestion section onto the poll source.
func (c *Config) IngestionPollConfig() ingestion.PollConfig {
	return ingestion.PollConfig{
		Addresses: c.Ingestion.Addresses,
		Interval:  c.Ingestion.PollInterval,
		Limit:     c.Ingestion.PollLimit,
		Backfill:  c.Ingestion.Backfill,
	}
}

// LiveConfig maps the market section onto the live provider.
func (c *Config) LiveConfig() market.LiveConfig {
	live := market.DefaultLiveConfig()
	live.HistoryWindow = c.Market.HistoryWindow
	return live
}

// LoaderConfig maps the market section onto the Raydium route loader.
func (c *Config) LoaderConfig() raydium.LoaderConfig {
	l := raydium.DefaultLoaderConfig()
	l.HotTTL, l.ColdTTL = c.Market.PoolHotTTL, c.Market.PoolColdTTL
	return l
}

// RiskConfig maps the risk section onto risk.Config.
func (c *Config) RiskConfig() risk.Config {
	s := c.Risk
	src := func(r RiskSourceConfig) risk.SourceConfig {
		return risk.SourceConfig{Enabled: r.Enabled, BaseURL: r.BaseURL, APIKey: r.APIKey}
	}
	return risk.Config{
		Birdeye:           src(s.Birdeye),
		TokenSniffer:      src(s.TokenSniffer),
		RugCheck:          src(s.RugCheck),
		GoPlus:            src(s.GoPlus),
		RugDoc:            src(s.RugDoc),
		Helius:            src(s.Helius),
		MaxTop10HolderPct: s.MaxTop10HolderPct,
		MinSnifferScore:   s.MinSnifferScore,
		MaxIdle:           s.MaxIdle,
		Timeout:           s.Timeout,
		RPS:               s.RPS,
		Burst:             s.Burst,
	}
}

// JournalConfig maps the journal section onto journal.Config.
func (c *Config) JournalConfig() journal.Config {
	s := c.Journal
	return journal.Config{
		QueueSize:       s.QueueSize,
		WriteTimeout:    s.WriteTimeout,
		TradeBatchSize:  s.TradeBatchSize,
		TradeFlush:      s.TradeFlush,
		WalletFlush:     s.WalletFlush,
		RetainTransfers: s.RetainTransfers,
	}
}

// SinkConfig maps the alerting section onto the alert sink.
func (c *Config) SinkConfig() alerting.SinkConfig {
	return alerting.SinkConfig{
		MinClusterScore: c.Alerting.MinClusterScore,
		Rejections:      c.Alerting.Rejections,
		QueueSize:       c.Alerting.QueueSize,
		SendTimeout:     c.Alerting.SendTimeout,
	}
}

// ServerConfig maps the ops section onto the status server.
func (c *Config) ServerConfig() observability.ServerConfig {
	return observability.ServerConfig{
		Addr:         c.Ops.Addr,
		ReadTimeout:  c.Ops.ReadTimeout,
		WriteTimeout: c.Ops.WriteTimeout,
		IdleTimeout:  c.Ops.IdleTimeout,
	}
}
