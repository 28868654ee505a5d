package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	v := viper.New()
	v.Set("WEBHOOK_SECRET", "whsec")

	cfg, err := FromViper(v)
	require.NoError(t, err)
	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, ":8080", cfg.Address())
	assert.Equal(t, 2500*time.Millisecond, cfg.AuthorizationDeadline)
	assert.Equal(t, "X-Processor-Signature", cfg.WebhookSignatureHeader)
	assert.Equal(t, SinkRedis, cfg.ReconciliationSink)
	assert.Equal(t, 5, cfg.ReconciliationMaxAttempts)
	assert.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
	assert.Equal(t, "NGN", cfg.DefaultCurrency)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("DATABASE_URL", "postgres://localhost/wallet")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("JWT_SECRET", "jwt")
	t.Setenv("PROCESSOR_BASE_URL", "https://processor.example.com/v1/")
	t.Setenv("WEBHOOK_SECRET", "whsec")
	t.Setenv("AUTHORIZATION_DEADLINE", "1500ms")
	t.Setenv("RECONCILIATION_SINK", "KAFKA")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("PORT", ":9000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, cfg.AuthorizationDeadline)
	assert.Equal(t, SinkKafka, cfg.ReconciliationSink)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, ":9000", cfg.Address())
	assert.False(t, cfg.IsDevelopment())
	assert.Equal(t, "https://processor.example.com/v1", cfg.ProcessorBaseURL)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "walletcore.env")
	require.NoError(t, os.WriteFile(path, []byte("WEBHOOK_SECRET=from-file\nPROCESSOR_TIMEOUT=3s\n"), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PROCESSOR_TIMEOUT", "4s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.WebhookSecret)
	assert.Equal(t, 4*time.Second, cfg.ProcessorTimeout)
}

func TestValidation(t *testing.T) {
	cases := map[string]struct {
		set  map[string]any
		want string
	}{
		"production needs backends": {
			set:  map[string]any{"APP_ENV": "production", "WEBHOOK_SECRET": "s"},
			want: "DATABASE_URL must be set",
		},
		"unsigned needs opt in": {
			set:  map[string]any{},
			want: "WEBHOOK_SECRET must be set unless WEBHOOK_ALLOW_UNSIGNED=true",
		},
		"kafka needs brokers": {
			set:  map[string]any{"WEBHOOK_SECRET": "s", "RECONCILIATION_SINK": "kafka"},
			want: "KAFKA_BROKERS must be set",
		},
		"unknown sink": {
			set:  map[string]any{"WEBHOOK_SECRET": "s", "RECONCILIATION_SINK": "sqs"},
			want: `RECONCILIATION_SINK "sqs"`,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			v := viper.New()
			for k, val := range tc.set {
				v.Set(k, val)
			}
			_, err := FromViper(v)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}

	v := viper.New()
	v.Set("WEBHOOK_ALLOW_UNSIGNED", true)
	_, err := FromViper(v)
	assert.NoError(t, err)
}
