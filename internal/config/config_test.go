package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-cluster-sniper/internal/cluster"
	"solana-cluster-sniper/internal/domain"
	"solana-cluster-sniper/internal/execution"
	"solana-cluster-sniper/internal/gate"
	"solana-cluster-sniper/internal/orchestrator"
	"solana-cluster-sniper/internal/position"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sniper.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "app:\n  environment: test\n"))
	require.NoError(t, err)

	assert.Equal(t, "sniper", cfg.App.Name)
	assert.Equal(t, "test", cfg.App.Environment)
	assert.True(t, cfg.Execution.DryRun)
	assert.Equal(t, "memory", cfg.Market.Cache)

	cl := cfg.ClusterConfig()
	def := cluster.DefaultConfig()
	assert.Equal(t, def.ScanInterval, cl.ScanInterval)
	assert.Equal(t, def.TTL, cl.TTL)
	assert.Equal(t, def.Temporal, cl.Temporal)
	assert.Equal(t, def.Amount, cl.Amount)
	assert.Equal(t, def.Wallets, cl.Wallets)
	assert.Equal(t, def.Score.StrongBuyAt, cl.Score.StrongBuyAt)
	assert.True(t, def.Accumulation.MinVolumeUSD.Equal(cl.Accumulation.MinVolumeUSD))

	assert.True(t, gate.DefaultConfig().MinLiquidityUSD.Equal(cfg.GateConfig().MinLiquidityUSD))
	assert.Equal(t, orchestrator.DefaultConfig(), cfg.OrchestratorConfig())
	assert.Equal(t, position.DefaultConfig(), cfg.PositionConfig())

	exec, err := cfg.ExecutionConfig()
	require.NoError(t, err)
	assert.Equal(t, execution.DefaultConfig().Paths, exec.Paths)
	assert.Equal(t, execution.DefaultConfig().Tip.Accounts, exec.Tip.Accounts)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := writeConfig(t, `
solana:
  rpc_urls: ["https://rpc-a.example", "https://rpc-b.example"]
cluster:
  scan_interval: 30s
  score:
    strong_buy_at: 80
execution:
  paths: [direct, rpc]
  max_retries: 1
gate:
  min_liquidity_usd: 7500
`)
	t.Setenv("SNIPER_EXECUTION_MAX_RETRIES", "4")
	t.Setenv("SNIPER_INGESTION_WALLETS", "walletA,walletB")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"https://rpc-a.example", "https://rpc-b.example"}, cfg.Solana.RPCURLs)
	assert.Equal(t, 30*time.Second, cfg.ClusterConfig().ScanInterval)
	assert.Equal(t, 80, cfg.ClusterConfig().Score.StrongBuyAt)
	assert.Equal(t, 4, cfg.Execution.MaxRetries)
	assert.Equal(t, []string{"walletA", "walletB"}, cfg.Ingestion.Wallets)
	assert.Equal(t, "7500", cfg.GateConfig().MinLiquidityUSD.String())

	exec, err := cfg.ExecutionConfig()
	require.NoError(t, err)
	assert.Equal(t, []domain.Path{domain.PathDirect, domain.PathRPC}, exec.Paths)
}

func TestLoad_OverridesWin(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: info\n")
	cfg, err := Load(path, Set("logging.level", "debug"))
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)

	_, err = Load(path, Set("execution.dry_run", false))
	require.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), "keypair")

	cfg, err = Load(path, Set("execution.dry_run", false), Set("solana.keypair", "secret"))
	require.NoError(t, err)
	assert.False(t, cfg.Execution.DryRun)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"unknown path", "execution:\n  paths: [direct, teleport]\n", "teleport"},
		{"repeated path", "execution:\n  paths: [direct, direct]\n", "twice"},
		{"per token above global", "exposure:\n  max_per_token: 10\n  max_global: 5\n", "max_per_token"},
		{"redis without addr", "market:\n  cache: redis\n", "redis.addr"},
		{"unknown cache", "market:\n  cache: disk\n", "market.cache"},
		{"telegram without token", "alerting:\n  enabled: true\n  telegram:\n    enabled: true\n    chat_id: \"1\"\n", "bot_token"},
		{"no producers", "ingestion:\n  ws_enabled: false\n  poll_enabled: false\n", "ingestion"},
		{"store scans without postgres", "cluster:\n  store_backed_scans: true\n", "postgres_dsn"},
		{"bad orchestrator", "orchestrator:\n  trade_lamports: 0\n", "orchestrator"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			require.ErrorIs(t, err, ErrInvalid)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestParsePaths(t *testing.T) {
	paths, err := ParsePaths([]string{" Bundle ", "aggregator"})
	require.NoError(t, err)
	assert.Equal(t, []domain.Path{domain.PathBundle, domain.PathAggregator}, paths)

	_, err = ParsePaths(nil)
	require.ErrorIs(t, err, ErrInvalid)
}
