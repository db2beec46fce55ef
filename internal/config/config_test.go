package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.Validate())
	assert.True(t, cfg.Logger.Production(), "error details stay hidden unless enabled")
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "libreria.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
system:
  addr: ":9000"
logger:
  mode: development
database:
  driver: memory
messaging:
  driver: watermill-kafka
sale:
  lock_ttl: 45s
  keep_invoice_on_stock_failure: true
inventory:
  low_stock_threshold: 2
`), 0o600))

	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("LIBRERIA_SALE_ORPHAN_GRACE", "15m")
	t.Setenv("LIBRERIA_JWT_SECRET", "s3cret")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.System.Addr)
	assert.False(t, cfg.Logger.Production())
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, 45*time.Second, cfg.Sale.LockTTL)
	assert.Equal(t, 15*time.Minute, cfg.Sale.OrphanGrace)
	assert.True(t, cfg.Sale.KeepInvoiceOnStockFailure)
	assert.Equal(t, 2, cfg.Inventory.LowStockThreshold)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Messaging.Brokers)
	assert.True(t, cfg.Auth.Enabled())
	assert.Equal(t, "@every 5m", cfg.Jobs.OrphanSweep, "defaults survive a partial file")
}

func TestLoadUsesEnvPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.yml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  driver: memory\n"), 0o600))
	t.Setenv(EnvConfigPath, path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Database.Driver)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
	assert.ErrorContains(t, err, "read config")
}

func TestDatabaseURLOverride(t *testing.T) {
	cfg := Default()
	env := map[string]string{"DATABASE_URL": "postgres://u:p@db:5432/x"}
	cfg.applyEnv(func(k string) (string, bool) { v, ok := env[k]; return v, ok })
	assert.Equal(t, "postgres://u:p@db:5432/x", cfg.Database.DSN)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*AppConfig)
		want   string
	}{
		{"db driver", func(c *AppConfig) { c.Database.Driver = "sqlite" }, `unknown database.driver "sqlite"`},
		{"empty dsn", func(c *AppConfig) { c.Database.DSN = "" }, "database.dsn is required"},
		{"broker driver", func(c *AppConfig) { c.Messaging.Driver = "nats" }, `unknown messaging.driver "nats"`},
		{"no brokers", func(c *AppConfig) { c.Messaging.Driver = "kafka"; c.Messaging.Brokers = nil }, "messaging.brokers is required"},
		{"logger mode", func(c *AppConfig) { c.Logger.Mode = "verbose" }, "unknown logger.mode"},
		{"lock ttl", func(c *AppConfig) { c.Sale.LockTTL = 0 }, "sale.lock_ttl"},
		{"threshold", func(c *AppConfig) { c.Inventory.LowStockThreshold = -1 }, "low_stock_threshold"},
		{"location", func(c *AppConfig) { c.System.Location = "Mars/Olympus" }, "system.location"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}
