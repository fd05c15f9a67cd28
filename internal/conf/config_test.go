package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CSCfi/fairdata-metax-sub001/internal/pkg/database"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 8008, cfg.Server.Port)
	assert.Equal(t, database.DriverPostgres, cfg.Database.Driver)
	assert.True(t, cfg.Database.Serializable)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, "metax:lock:", cfg.Redis.LockPrefix)
	assert.Equal(t, "urn:nbn:fi:att:data-catalog-att", cfg.Catalog.QuarantineIdentifier)
	assert.Equal(t, 5*time.Minute, cfg.Catalog.CacheTTL)
	assert.Equal(t, RegistryDatabase, cfg.Files.Registry)
	assert.Empty(t, cfg.Events.Backends)
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
database:
  driver: sqlite
  sqlitepath: ":memory:"
redis:
  enabled: true
  master_addr: "redis:6379"
  lock_ttl: 10s
events:
  backends: [redis]
catalog:
  inherit_alternate_set_on_fork: true
`)
	t.Setenv("METAX_SERVER_PORT", "9100")
	t.Setenv("METAX_CATALOG_CACHE_SIZE", "32")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, database.DriverSQLite, cfg.Database.Driver)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "redis:6379", cfg.Redis.MasterAddr)
	assert.Equal(t, 10*time.Second, cfg.Redis.LockTTL)
	assert.Equal(t, []string{"redis"}, cfg.Events.Backends)
	assert.True(t, cfg.Catalog.InheritAlternateSetOnFork)
	assert.Equal(t, 32, cfg.Catalog.CacheSize)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, true},
		{"redis backend without redis", func(c *Config) { c.Events.Backends = []string{"redis"} }, true},
		{"kafka backend with kafka", func(c *Config) {
			c.Kafka.Enabled = true
			c.Events.Backends = []string{"kafka"}
		}, false},
		{"unknown backend", func(c *Config) { c.Events.Backends = []string{"nats"} }, true},
		{"minio registry without credentials", func(c *Config) { c.Files.Registry = RegistryMinIO }, true},
		{"unknown registry", func(c *Config) { c.Files.Registry = "ftp" }, true},
		{"empty quarantine", func(c *Config) { c.Catalog.QuarantineIdentifier = "" }, true},
		{"zero cache", func(c *Config) { c.Catalog.CacheSize = 0 }, true},
		{"rate limit without redis", func(c *Config) { c.Server.RateLimit.Enabled = true }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestServerAddr(t *testing.T) {
	assert.Equal(t, "0.0.0.0:8008", Default().Server.Addr())
}
