package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nebulus-edge/intelligence/internal/apierr"
	"github.com/nebulus-edge/intelligence/internal/config"
	"github.com/nebulus-edge/intelligence/internal/knowledge"
	"github.com/nebulus-edge/intelligence/internal/scoring"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"HTTP_PORT", "INTELLIGENCE_URL", "INTELLIGENCE_TEMPLATE", "CONFIG_DIR", "DATA_DIR",
		"BRAIN_URL", "OPENAI_API_KEY", "LLM_MODEL", "EMBEDDING_MODEL", "QDRANT_URL",
		"AUDIT_ENABLED", "AUDIT_RETENTION_DAYS", "AUDIT_DEBUG", "AUDIT_SECRET_KEY",
	} {
		os.Unsetenv(key)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, "generic", cfg.Template)
	assert.Equal(t, "https://api.openai.com/v1", cfg.LLM.BrainURL)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.ChatModel)
	assert.Equal(t, "localhost:6334", cfg.QdrantURL)
	assert.Equal(t, 2555, cfg.Audit.RetentionDays)
	assert.True(t, cfg.Audit.Enabled)
	assert.False(t, cfg.Audit.Debug)
}

func TestLoadReadsOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("INTELLIGENCE_TEMPLATE", "dealership")
	t.Setenv("AUDIT_RETENTION_DAYS", "30")
	t.Setenv("AUDIT_ENABLED", "false")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.HTTPPort)
	assert.Equal(t, "dealership", cfg.Template)
	assert.Equal(t, 30, cfg.Audit.RetentionDays)
	assert.False(t, cfg.Audit.Enabled)
}

func TestLoadRejectsInvalidNumber(t *testing.T) {
	clearEnv(t)
	t.Setenv("AUDIT_RETENTION_DAYS", "not-a-number")
	_, err := config.Load()
	assert.Error(t, err)
}

func TestTemplateRegistryGetKnownAndUnknown(t *testing.T) {
	reg := config.NewTemplateRegistry()

	for _, name := range []string{"dealership", "medical", "legal", "generic"} {
		tmpl, err := reg.Get(name)
		require.NoError(t, err)
		assert.Equal(t, name, tmpl.Name)
	}

	_, err := reg.Get("aerospace")
	assert.ErrorIs(t, err, apierr.ErrNotFound)
}

func TestTemplateRegistryGetAllIncludesBuiltins(t *testing.T) {
	reg := config.NewTemplateRegistry()
	assert.ElementsMatch(t, []string{"dealership", "medical", "legal", "generic"}, reg.GetAll())
}

func TestTemplateRegistryRegisterOverridesLookup(t *testing.T) {
	reg := config.NewTemplateRegistry()
	custom := &knowledge.Template{Name: "aerospace"}
	reg.Register(custom)

	tmpl, err := reg.Get("aerospace")
	require.NoError(t, err)
	assert.Equal(t, "aerospace", tmpl.Name)
}

// TestBuiltinTemplateFactorsScoreAgainstAFavorableRecord guards against
// calculation strings that the scoring grammar cannot parse (a factor that
// never scores regardless of row content). A favorable record should clear
// every factor in its category.
func TestBuiltinTemplateFactorsScoreAgainstAFavorableRecord(t *testing.T) {
	cases := []struct {
		template string
		category string
		record   map[string]any
	}{
		{
			template: "dealership", category: "perfect_sale",
			record: map[string]any{
				"trade_in_vin": "1FA123", "finance_type": "finance",
				"warranty_amount": 500.0, "front_gross": 2500.0, "csi_score": 5,
			},
		},
		{
			template: "medical", category: "positive_outcome",
			record: map[string]any{
				"readmitted_30d": 0, "length_of_stay": 3, "expected_los": 5,
				"complications": 0, "follow_up_completed": 1,
			},
		},
		{
			template: "legal", category: "favorable_outcome",
			record: map[string]any{
				"settlement_amount": 150000.0, "target_amount": 100000.0,
				"duration_days": 60, "expected_duration_days": 90,
				"billed_hours": 40.0, "budgeted_hours": 60.0, "client_retained": 1,
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.template, func(t *testing.T) {
			reg := config.NewTemplateRegistry()
			tmpl, err := reg.Get(tc.template)
			require.NoError(t, err)

			store, err := knowledge.New(tmpl, filepath.Join(t.TempDir(), "knowledge.json"))
			require.NoError(t, err)

			result := scoring.New(store).ScoreRecord(tc.category, tc.record)
			for _, f := range result.Factors {
				assert.True(t, f.Passed, "factor %q did not pass for a favorable record: %s", f.Name, f.Detail)
			}
			assert.Equal(t, result.MaxPossible, result.TotalScore)
		})
	}
}
