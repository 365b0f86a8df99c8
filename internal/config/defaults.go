package config

import (
	"github.com/spf13/viper"

	"solana-cluster-sniper/internal/alerting"
	"solana-cluster-sniper/internal/cluster"
	"solana-cluster-sniper/internal/execution"
	"solana-cluster-sniper/internal/exposure"
	"solana-cluster-sniper/internal/gate"
	"solana-cluster-sniper/internal/ingestion"
	"solana-cluster-sniper/internal/journal"
	"solana-cluster-sniper/internal/market"
	"solana-cluster-sniper/internal/observability"
	"solana-cluster-sniper/internal/orchestrator"
	"solana-cluster-sniper/internal/position"
	"solana-cluster-sniper/internal/raydium"
	"solana-cluster-sniper/internal/risk"
	"solana-cluster-sniper/internal/solana"
)

// setDefaults registers every key. Keys need a default, even an empty one,
// for AutomaticEnv to reach them during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "sniper")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.time_format", "")
	v.SetDefault("logging.caller", false)
	v.SetDefault("logging.pretty", false)

	ws := solana.DefaultWSConfig()
	v.SetDefault("solana.rpc_urls", []string{"https://api.mainnet-beta.solana.com"})
	v.SetDefault("solana.ws_url", "wss://api.mainnet-beta.solana.com")
	v.SetDefault("solana.timeout", "10s")
	v.SetDefault("solana.max_retries", 3)
	v.SetDefault("solana.retry_delay", "200ms")
	v.SetDefault("solana.commitment", ws.Commitment)
	v.SetDefault("solana.keypair", "")
	v.SetDefault("solana.keypair_file", "")
	v.SetDefault("solana.reconnect_delay", ws.ReconnectDelay)
	v.SetDefault("solana.max_reconnect_delay", ws.MaxReconnectDelay)
	v.SetDefault("solana.ping_interval", ws.PingInterval)

	poll := ingestion.DefaultPollConfig()
	v.SetDefault("ingestion.ws_enabled", true)
	v.SetDefault("ingestion.poll_enabled", false)
	v.SetDefault("ingestion.addresses", []string{raydium.AMMProgramID})
	v.SetDefault("ingestion.wallets", []string{})
	v.SetDefault("ingestion.workers", 8)
	v.SetDefault("ingestion.poll_interval", poll.Interval)
	v.SetDefault("ingestion.poll_limit", poll.Limit)
	v.SetDefault("ingestion.backfill", poll.Backfill)

	cl := cluster.DefaultConfig()
	v.SetDefault("cluster.temporal.enabled", cl.Temporal.Enabled)
	v.SetDefault("cluster.temporal.window", cl.Temporal.Window)
	v.SetDefault("cluster.temporal.min_wallets", cl.Temporal.MinWallets)
	v.SetDefault("cluster.amount.enabled", cl.Amount.Enabled)
	v.SetDefault("cluster.amount.tolerance", cl.Amount.Tolerance)
	v.SetDefault("cluster.amount.min_wallets", cl.Amount.MinWallets)
	acc := cl.Accumulation
	v.SetDefault("cluster.accumulation.enabled", acc.Enabled)
	v.SetDefault("cluster.accumulation.short", acc.Short)
	v.SetDefault("cluster.accumulation.baseline", acc.Baseline)
	v.SetDefault("cluster.accumulation.multiplier", acc.Multiplier)
	v.SetDefault("cluster.accumulation.min_wallets", acc.MinWallets)
	v.SetDefault("cluster.accumulation.max_buyers", acc.MaxBuyers)
	v.SetDefault("cluster.accumulation.min_volume_usd", acc.MinVolumeUSD.InexactFloat64())
	sc := cl.Score
	v.SetDefault("cluster.score.base_per_member", sc.BasePerMember)
	v.SetDefault("cluster.score.base_max", sc.BaseMax)
	v.SetDefault("cluster.score.smart_max", sc.SmartMax)
	v.SetDefault("cluster.score.volume_max", sc.VolumeMax)
	v.SetDefault("cluster.score.volume_saturation_usd", sc.VolumeSaturationUSD.InexactFloat64())
	v.SetDefault("cluster.score.tightness_bonus", sc.TightnessBonus)
	v.SetDefault("cluster.score.tight_window", sc.TightWindow)
	v.SetDefault("cluster.score.coordination_bonus", sc.CoordinationBonus)
	v.SetDefault("cluster.score.strong_buy_at", sc.StrongBuyAt)
	v.SetDefault("cluster.score.buy_at", sc.BuyAt)
	v.SetDefault("cluster.smart_min_win_rate", cl.Wallets.MinWinRate)
	v.SetDefault("cluster.smart_min_trades", cl.Wallets.MinTrades)
	v.SetDefault("cluster.scan_interval", cl.ScanInterval)
	v.SetDefault("cluster.lookback", cl.Lookback)
	v.SetDefault("cluster.ttl", cl.TTL)
	v.SetDefault("cluster.parallelism", cl.Parallelism)
	v.SetDefault("cluster.store_backed_scans", false)

	g := gate.DefaultConfig()
	v.SetDefault("gate.min_liquidity_usd", g.MinLiquidityUSD.InexactFloat64())
	v.SetDefault("gate.min_pool_age", g.MinPoolAge)
	v.SetDefault("gate.rug_window", g.RugWindow)
	v.SetDefault("gate.max_drop_pct", g.MaxDropPct)
	v.SetDefault("gate.max_impact_bps", g.MaxImpactBps)
	v.SetDefault("gate.require_renounced", g.RequireRenounced)
	v.SetDefault("gate.risk_timeout", g.RiskTimeout)
	v.SetDefault("gate.min_responders", g.MinResponders)

	ex := exposure.DefaultConfig()
	v.SetDefault("exposure.max_per_token", ex.MaxPerToken)
	v.SetDefault("exposure.max_global", ex.MaxGlobal)
	v.SetDefault("exposure.max_open_positions", ex.MaxOpenPositions)

	o := orchestrator.DefaultConfig()
	v.SetDefault("orchestrator.trade_lamports", o.TradeLamports)
	v.SetDefault("orchestrator.min_trade_lamports", o.MinTradeLamports)
	v.SetDefault("orchestrator.size_to_impact", o.SizeToImpact)
	v.SetDefault("orchestrator.max_slippage_bps", o.MaxSlippageBps)
	v.SetDefault("orchestrator.max_impact_bps", o.MaxImpactBps)
	v.SetDefault("orchestrator.intent_ttl", o.IntentTTL)
	v.SetDefault("orchestrator.max_concurrent_buys", o.MaxConcurrentBuys)
	v.SetDefault("orchestrator.dedup_window", o.DedupWindow)
	v.SetDefault("orchestrator.late_context", o.LateContext)

	e := execution.DefaultConfig()
	paths := make([]string, len(e.Paths))
	for i, p := range e.Paths {
		paths[i] = string(p)
	}
	v.SetDefault("execution.paths", paths)
	v.SetDefault("execution.max_retries", e.MaxRetries)
	v.SetDefault("execution.hedge_delay", e.HedgeDelay)
	v.SetDefault("execution.attempt_timeout", e.AttemptTimeout)
	v.SetDefault("execution.confirm_poll", e.ConfirmPoll)
	v.SetDefault("execution.settle_timeout", e.SettleTimeout)
	v.SetDefault("execution.late_watch", e.LateWatch)
	v.SetDefault("execution.compute_unit_limit", e.ComputeUnitLimit)
	v.SetDefault("execution.priority_fee_step", e.PriorityFeeStep)
	v.SetDefault("execution.base_slippage_bps", e.BaseSlippageBps)
	v.SetDefault("execution.slippage_step_bps", e.SlippageStepBps)
	v.SetDefault("execution.max_slippage_bps", e.MaxSlippageBps)
	v.SetDefault("execution.panic_base_slippage_bps", e.PanicBaseSlippageBps)
	v.SetDefault("execution.panic_max_slippage_bps", e.PanicMaxSlippageBps)
	v.SetDefault("execution.max_impact_bps", e.MaxImpactBps)
	v.SetDefault("execution.jito_url", e.JitoURL)
	v.SetDefault("execution.jupiter_url", e.JupiterURL)
	v.SetDefault("execution.dry_run", true)
	v.SetDefault("execution.congestion_interval", "30s")
	v.SetDefault("execution.fee.base", e.Fee.Base)
	v.SetDefault("execution.fee.min", e.Fee.Min)
	v.SetDefault("execution.fee.max", e.Fee.Max)
	v.SetDefault("execution.tip.default", e.Tip.Default)
	v.SetDefault("execution.tip.min", e.Tip.Min)
	v.SetDefault("execution.tip.max", e.Tip.Max)
	v.SetDefault("execution.tip.panic", e.Tip.Panic)
	v.SetDefault("execution.tip.dynamic", e.Tip.Dynamic)
	v.SetDefault("execution.tip.accounts", []string{})
	v.SetDefault("execution.pause.max_consecutive_failures", e.Pause.MaxConsecutiveFailures)
	v.SetDefault("execution.pause.max_failures_per_hour", e.Pause.MaxFailuresPerHour)
	v.SetDefault("execution.pause.cooldown", e.Pause.Cooldown)
	v.SetDefault("execution.pause.min_balance_lamports", e.Pause.MinBalanceLamports)
	v.SetDefault("execution.pause.critical_balance_lamports", e.Pause.CriticalBalanceLamports)
	v.SetDefault("execution.pause.balance_interval", e.Pause.BalanceInterval)
	v.SetDefault("execution.breaker.failure_threshold", e.Breaker.FailureThreshold)
	v.SetDefault("execution.breaker.open_timeout", e.Breaker.OpenTimeout)
	v.SetDefault("execution.breaker.interval", e.Breaker.Interval)

	p := position.DefaultConfig()
	v.SetDefault("position.take_profit", p.TakeProfit)
	v.SetDefault("position.stop_loss", p.StopLoss)
	v.SetDefault("position.trail_activation", p.TrailActivation)
	v.SetDefault("position.trail", p.Trail)
	v.SetDefault("position.max_hold", p.MaxHold)
	v.SetDefault("position.rug_liquidity_usd", p.RugLiquidityUSD)
	v.SetDefault("position.rug_drop", p.RugDrop)
	v.SetDefault("position.poll_interval", p.PollInterval)
	v.SetDefault("position.exit_timeout", p.ExitTimeout)
	v.SetDefault("position.parallelism", p.Parallelism)
	v.SetDefault("position.history", p.History)

	live := market.DefaultLiveConfig()
	loader := raydium.DefaultLoaderConfig()
	v.SetDefault("market.dexscreener_url", market.DefaultDexScreenerURL)
	v.SetDefault("market.timeout", "5s")
	v.SetDefault("market.rps", 5.0)
	v.SetDefault("market.burst", 10)
	v.SetDefault("market.history_window", live.HistoryWindow)
	v.SetDefault("market.cache", "memory")
	v.SetDefault("market.cache_ttl", loader.HotTTL)
	v.SetDefault("market.sol_price_ttl", "30s")
	v.SetDefault("market.sol_price_max_age", "5m")
	v.SetDefault("market.pool_hot_ttl", loader.HotTTL)
	v.SetDefault("market.pool_cold_ttl", loader.ColdTTL)

	r := risk.DefaultConfig()
	sources := map[string]risk.SourceConfig{
		"birdeye":      r.Birdeye,
		"tokensniffer": r.TokenSniffer,
		"rugcheck":     r.RugCheck,
		"goplus":       r.GoPlus,
		"rugdoc":       r.RugDoc,
		"helius":       r.Helius,
	}
	for name, src := range sources {
		v.SetDefault("risk."+name+".enabled", src.Enabled)
		v.SetDefault("risk."+name+".base_url", src.BaseURL)
		v.SetDefault("risk."+name+".api_key", src.APIKey)
	}
	v.SetDefault("risk.max_top10_holder_pct", r.MaxTop10HolderPct)
	v.SetDefault("risk.min_sniffer_score", r.MinSnifferScore)
	v.SetDefault("risk.max_idle", r.MaxIdle)
	v.SetDefault("risk.timeout", r.Timeout)
	v.SetDefault("risk.rps", r.RPS)
	v.SetDefault("risk.burst", r.Burst)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "sniper:")

	v.SetDefault("storage.postgres_dsn", "")
	v.SetDefault("storage.clickhouse_dsn", "")

	j := journal.DefaultConfig()
	v.SetDefault("journal.queue_size", j.QueueSize)
	v.SetDefault("journal.write_timeout", j.WriteTimeout)
	v.SetDefault("journal.trade_batch_size", j.TradeBatchSize)
	v.SetDefault("journal.trade_flush", j.TradeFlush)
	v.SetDefault("journal.wallet_flush", j.WalletFlush)
	v.SetDefault("journal.retain_transfers", j.RetainTransfers)

	a := alerting.DefaultSinkConfig()
	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.min_cluster_score", a.MinClusterScore)
	v.SetDefault("alerting.rejections", a.Rejections)
	v.SetDefault("alerting.queue_size", a.QueueSize)
	v.SetDefault("alerting.send_timeout", a.SendTimeout)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.bot_token", "")
	v.SetDefault("alerting.telegram.chat_id", "")
	v.SetDefault("alerting.telegram.api_base", alerting.DefaultTelegramURL)
	v.SetDefault("alerting.telegram.timeout", "10s")

	s := observability.DefaultServerConfig()
	v.SetDefault("ops.enabled", true)
	v.SetDefault("ops.addr", s.Addr)
	v.SetDefault("ops.namespace", "sniper")
	v.SetDefault("ops.read_timeout", s.ReadTimeout)
	v.SetDefault("ops.write_timeout", s.WriteTimeout)
	v.SetDefault("ops.idle_timeout", s.IdleTimeout)
}
