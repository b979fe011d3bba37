package ops

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

const sampleYAML = `
venue:
  mainnet: false
  ws_url: wss://api.hyperliquid-testnet.xyz/ws
  rest_url: https://api.hyperliquid-testnet.xyz
  private_key: "0x01"
duplex:
  ping_interval: 15s
  stale_after: 45s
batch:
  interval: 50ms
  max_batch: 20
kafka:
  enabled: true
  brokers: "k1:9092,k2:9092"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "execgw.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.False(t, cfg.Venue.Mainnet)
	assert.Equal(t, "0x01", cfg.Venue.PrivateKey)
	assert.Equal(t, 15*time.Second, cfg.Duplex.PingInterval)
	assert.Equal(t, 45*time.Second, cfg.Duplex.StaleAfter)
	assert.Equal(t, 50*time.Millisecond, cfg.Batch.Interval)
	assert.Equal(t, 20, cfg.Batch.MaxBatch)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)

	// untouched keys keep their defaults
	assert.Equal(t, 4096, cfg.Batch.PoolSize)
	assert.Equal(t, 300*time.Second, cfg.Resolver.TTL)
	assert.Equal(t, 3, cfg.Tracker.NotFoundLimit)
	assert.Equal(t, 2.0, cfg.Reconnect.Factor)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("EXECGW_VENUE_PRIVATE_KEY", "0x02")
	t.Setenv("EXECGW_BATCH_INTERVAL", "250ms")
	t.Setenv("EXECGW_CONFIRM_ATTEMPTS", "9")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "0x02", cfg.Venue.PrivateKey)
	assert.Equal(t, 250*time.Millisecond, cfg.Batch.Interval)
	assert.Equal(t, 9, cfg.Confirm.Attempts)
	assert.True(t, cfg.Venue.Mainnet)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	cfg.Venue.PrivateKey = ""
	cfg.Duplex.StaleAfter = time.Second
	cfg.Kafka.Brokers = nil
	cfg.Order.Count = 1

	err = cfg.Validate()
	require.Error(t, err)
	errs := multierr.Errors(err)
	assert.Len(t, errs, 6)
	assert.Contains(t, err.Error(), "venue.private_key")
	assert.Contains(t, err.Error(), "kafka.brokers")
	assert.Contains(t, err.Error(), "order.symbol")
}

func TestLoadRiskSection(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML+`
risk:
  max_open_orders: 5
  order_rate_limit: 10
  order_rate_window: 2s
`))
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Risk.MaxOpenOrders)
	assert.Equal(t, 10, cfg.Risk.OrderRateLimit)
	assert.Equal(t, 2*time.Second, cfg.Risk.OrderRateWindow)
	assert.False(t, cfg.Risk.KillSwitch)
}

func TestChaosSection(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML+`
chaos:
  enabled: true
  seed: 42
  duplicate_rate: 0.2
  reorder_window: 4
  max_delay: 50ms
`))
	require.NoError(t, err)
	assert.Equal(t, int64(42), cfg.Chaos.Seed)
	assert.Equal(t, 4, cfg.Chaos.ReorderWindow)
	assert.Equal(t, 50*time.Millisecond, cfg.Chaos.MaxDelay)

	cfg.Venue.Mainnet = true
	cfg.Chaos.DropRate = 3
	errs := multierr.Errors(cfg.Validate())
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0].Error(), "drop_rate")
	assert.Contains(t, errs[1].Error(), "mainnet")
}
