package plannerconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "planner.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadPlannerConfigOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `{"discount": 0.99, "maxTrials": 500}`)
	cfg, err := LoadPlannerConfig(path)
	require.NoError(t, err)
	require.Equal(t, 0.99, *cfg.Discount)
	require.Equal(t, int64(500), *cfg.MaxTrials)
	require.Equal(t, *DefaultPlannerConfig().MaxDepth, *cfg.MaxDepth)
}

func TestLoadPlannerConfigDomainSpecificKeysPreserved(t *testing.T) {
	path := writeConfig(t, `{"discount": 0.9, "opponentStationary": true}`)
	cfg, err := LoadPlannerConfig(path)
	require.NoError(t, err)
	require.Contains(t, cfg.Extra, "opponentStationary")
}

func TestLoadPlannerConfigRejectsBadExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "planner.txt")
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0o644))
	_, err := LoadPlannerConfig(path)
	require.Error(t, err)
}

func TestValidateRejectsOutOfRangeDiscount(t *testing.T) {
	cfg := DefaultPlannerConfig()
	bad := 1.5
	cfg.Discount = &bad
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsNegativeTrials(t *testing.T) {
	cfg := DefaultPlannerConfig()
	bad := int64(-1)
	cfg.MaxTrials = &bad
	require.Error(t, cfg.Validate())
}
