package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Address())
	assert.Equal(t, time.Hour, cfg.TTL.Stock)
	assert.Equal(t, 7*24*time.Hour, cfg.TTL.Cart)
	assert.Equal(t, 7*24*time.Hour, cfg.TTL.OrderStatus)
	assert.Equal(t, 5*time.Minute, cfg.TTL.ProductCache)
	assert.Equal(t, 30*time.Second, cfg.TTL.StockLease)
	assert.Equal(t, "order-events", cfg.Kafka.Topic)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("ADMIN_API_KEYS", "a,b")
	t.Setenv("TTL_STOCK", "10m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.BrokerList())
	assert.Equal(t, []string{"a", "b"}, cfg.App.Keys())
	assert.Equal(t, 10*time.Minute, cfg.TTL.Stock)
}

func TestStoreDSN(t *testing.T) {
	tests := []struct {
		name       string
		store      StoreConfig
		wantDriver string
		wantDSN    string
		wantErr    bool
	}{
		{
			name:       "mysql",
			store:      StoreConfig{Type: "mysql", User: "u", Password: "p", Host: "h", Port: 3306, Name: "sales"},
			wantDriver: "mysql",
			wantDSN:    "u:p@tcp(h:3306)/sales?parseTime=true",
		},
		{
			name:       "postgres",
			store:      StoreConfig{Type: "postgres", User: "u", Password: "p", Host: "h", Port: 5432, Name: "sales", SSLMode: "disable"},
			wantDriver: "postgres",
			wantDSN:    "postgres://u:p@h:5432/sales?sslmode=disable",
		},
		{
			name:    "unknown",
			store:   StoreConfig{Type: "cassandra"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			driver, dsn, err := tt.store.DSN()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantDriver, driver)
			assert.Equal(t, tt.wantDSN, dsn)
		})
	}
}

func TestStoreIsMongo(t *testing.T) {
	assert.True(t, (&StoreConfig{Type: "mongodb"}).IsMongo())
	assert.True(t, (&StoreConfig{Type: "mongo"}).IsMongo())
	assert.False(t, (&StoreConfig{Type: "sqlite"}).IsMongo())
}
