package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fatflowers/entitlement/pkg/types"
	"github.com/stretchr/testify/require"
)

func TestNew_DefaultsWithoutFile(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("APP_CONFIG_FILE", "")

	c, err := New()
	require.NoError(t, err)
	require.Equal(t, EnvDev, c.Env)
	require.Equal(t, 8888, c.Server.Port)
	require.Equal(t, UsageBackendKeyring, c.Usage.Backend)
	require.Equal(t, 10, c.Usage.DefaultDailyLimit)
	require.Equal(t, 64, c.Purchase.EventQueueSize)
	require.Len(t, c.Plans, 2)
	require.Equal(t, "com.yuyin.premium.monthly", c.GetPlanByID("basic_monthly").ProductID(types.PlatformIOS))
}

func TestNew_ReadsYAMLFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "app.yaml")
	body := `
env: prod
usage:
  backend: redis
  default_daily_limit: 3
  limits:
    recognise_tones: 5
plans:
  - id: solo_yearly
    name: Solo
    price: "$19.99"
    currency: USD
    period: yearly
    product_ids:
      ios: com.example.solo
`
	require.NoError(t, os.WriteFile(file, []byte(body), 0o600))
	t.Setenv("APP_CONFIG_FILE", file)

	c, err := New()
	require.NoError(t, err)
	require.Equal(t, EnvProd, c.Env)
	require.Equal(t, UsageBackendRedis, c.Usage.Backend)
	require.Equal(t, 5, c.Usage.LimitFor("recognise_tones"))
	require.Equal(t, 3, c.Usage.LimitFor("character_writing"))
	require.Len(t, c.Plans, 1)
	require.Equal(t, types.BillingPeriodYearly, c.Plans[0].Period)
	require.Equal(t, "com.example.solo", c.Plans[0].ProductID(types.PlatformIOS))
}

func TestValidate_RejectsDuplicatePlans(t *testing.T) {
	c := &Config{
		Usage: UsageConfig{DefaultDailyLimit: 1},
		Plans: []*types.SubscriptionPlan{
			{ID: "a", Period: types.BillingPeriodMonthly},
			{ID: "a", Period: types.BillingPeriodYearly},
		},
	}
	require.Error(t, c.Validate())
}

func TestValidate_RejectsUnknownPeriod(t *testing.T) {
	c := &Config{
		Usage: UsageConfig{DefaultDailyLimit: 1},
		Plans: []*types.SubscriptionPlan{{ID: "a", Period: "weekly"}},
	}
	require.Error(t, c.Validate())
}
