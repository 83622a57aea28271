package config

import (
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWelfareCatalog(t *testing.T) {
	seeds, err := ParseWelfareCatalog([]byte(`
services:
  - code: med
    name: Medical
    max_amount: "2000.00"
    min_membership_months: 6
    min_consistency_percent: 75
  - code: EDU
    name: Education
    max_amount: "1500"
    active: false
`))
	require.NoError(t, err)
	require.Len(t, seeds, 2)
	assert.Equal(t, "MED", seeds[0].Code)
	assert.True(t, seeds[0].IsActive())
	assert.False(t, seeds[1].IsActive())
	amount, err := seeds[0].MaxAmountDecimal()
	require.NoError(t, err)
	assert.True(t, amount.Equal(decimal.NewFromInt(2000)))
}

func TestParseWelfareCatalogRejectsBadEntries(t *testing.T) {
	cases := map[string]string{
		"missing name": "services:\n  - code: A\n    max_amount: \"1\"\n",
		"duplicate":    "services:\n  - {code: a, name: A, max_amount: \"1\"}\n  - {code: A, name: B, max_amount: \"2\"}\n",
		"bad amount":   "services:\n  - {code: a, name: A, max_amount: lots}\n",
		"zero amount":  "services:\n  - {code: a, name: A, max_amount: \"0\"}\n",
		"consistency":  "services:\n  - {code: a, name: A, max_amount: \"1\", min_consistency_percent: 120}\n",
		"not yaml":     "services: [",
	}
	for name, doc := range cases {
		_, err := ParseWelfareCatalog([]byte(doc))
		assert.Error(t, err, name)
	}
}

func TestLoadBundledCatalog(t *testing.T) {
	seeds, err := LoadWelfareCatalog(filepath.Join("..", "..", "data", "welfare_services.yaml"))
	require.NoError(t, err)
	assert.NotEmpty(t, seeds)

	_, err = LoadWelfareCatalog(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *AppConfig {
		return &AppConfig{
			JWTSecret:            "0123456789abcdef0123456789abcdef",
			CSRFAuthKey:          []byte("0123456789abcdef0123456789abcdef"),
			WithdrawalRatio:      decimal.RequireFromString("0.5"),
			MonthlyDueAmount:     decimal.NewFromInt(50),
			EmailServiceProvider: "mock",
		}
	}
	assert.NoError(t, valid().Validate())

	c := valid()
	c.JWTSecret = "short"
	assert.Error(t, c.Validate())

	c = valid()
	c.WithdrawalRatio = decimal.RequireFromString("1.5")
	assert.Error(t, c.Validate())

	c = valid()
	c.MonthlyDueAmount = decimal.Zero
	assert.Error(t, c.Validate())

	c = valid()
	c.EmailServiceProvider = "mailgun"
	assert.Error(t, c.Validate())

	assert.False(t, valid().GoogleOAuthEnabled())
	c = valid()
	c.GoogleClientID, c.GoogleClientSecret = "id", "secret"
	assert.True(t, c.GoogleOAuthEnabled())
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("MONTHLY_DUE_AMOUNT", "75.50")
	t.Setenv("WITHDRAWAL_RATIO", "not-a-number")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test, http://b.test ,")
	t.Setenv("REPORT_CACHE_TTL", "5m")
	LoadConfig()

	assert.True(t, Cfg.MonthlyDueAmount.Equal(decimal.RequireFromString("75.50")))
	assert.True(t, Cfg.WithdrawalRatio.Equal(decimal.RequireFromString("0.5")))
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, Cfg.AllowedOrigins)
	assert.Equal(t, "5m0s", Cfg.ReportCacheTTL.String())
}
