package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"PORT", "WORKFLOW_ENGINE", "SCHEMA_CACHE_TTL", "CORS_ORIGINS", "DEFAULT_MODEL"} {
		t.Setenv(k, "")
	}
	cfg := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Equal(t, "8000", cfg.Port)
	assert.Equal(t, "graph", cfg.WorkflowEngine)
	assert.Equal(t, 10*time.Minute, cfg.SchemaCacheTTL)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Equal(t, "gemma2-9b-it", cfg.DefaultModel)
}

func TestLoad_EnvAndDotenv(t *testing.T) {
	dir := t.TempDir()
	env := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(env, []byte("PORT=9000\nDEFAULT_MODEL=from-dotenv\n"), 0o644))

	// t.Setenv restores PORT afterwards; unset it so the .env value applies
	t.Setenv("PORT", "")
	require.NoError(t, os.Unsetenv("PORT"))
	t.Setenv("DEFAULT_MODEL", "from-env")
	t.Setenv("SCHEMA_CACHE_TTL", "30")
	t.Setenv("CORS_ORIGINS", "http://a.test, http://b.test")
	t.Setenv("AUTO_MIGRATE", "true")

	cfg := Load(env)
	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, "from-env", cfg.DefaultModel)
	assert.Equal(t, 30*time.Second, cfg.SchemaCacheTTL)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORSOrigins)
	assert.True(t, cfg.AutoMigrate)
}
