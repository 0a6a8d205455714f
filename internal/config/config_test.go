package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RobinCoderZhao/sports-digest/pkg/storage"
)

func TestDefaultRequiresSecret(t *testing.T) {
	cfg := Default()
	assert.Empty(t, cfg.HTTP.JWTSecret)
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP.JWTSecret")

	cfg.HTTP.JWTSecret = "a-long-enough-deployment-secret"
	require.NoError(t, cfg.Validate())
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  driver: postgres
  dsn: postgres://localhost/sports
site:
  name: Elite Sports
  url: https://digest.example.com
apisports:
  football_leagues:
    - {id: 140, name: La Liga, season: "2024"}
fetch:
  queries_per_sport: 2
  max_articles_per_sport: 5
  workers: 2
  trending_limit: 20
retention:
  days: 45
`), 0o644))

	t.Setenv("NEWSDATA_API_KEY", "nd-key")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("SMTP_HOST", "smtp.example.com")
	t.Setenv("JWT_SECRET", "env-provided-signing-secret")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, storage.Postgres, cfg.Database.Driver)
	assert.Equal(t, "Elite Sports", cfg.Site.Name)
	assert.Equal(t, 140, cfg.APISports.Football[0].ID)
	assert.Equal(t, 5, cfg.Fetch.MaxArticlesPerSport)
	assert.Equal(t, "nd-key", cfg.NewsData.APIKey)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "smtp.example.com", cfg.Email.SMTPHost)
	assert.Equal(t, "env-provided-signing-secret", cfg.HTTP.JWTSecret)
	// untouched sections keep their defaults
	assert.Equal(t, 200, cfg.NewsData.DailyBudget)
	assert.Equal(t, 10*time.Minute, cfg.Jobs.SendTimeout)
	assert.Equal(t, 45, cfg.JobSettings().RetentionDays)
	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().HTTP.Addr, cfg.HTTP.Addr)
}

func TestValidateReportsEveryField(t *testing.T) {
	cfg := Default()
	cfg.Site.URL = "not a url"
	cfg.HTTP.JWTSecret = "short"
	cfg.Log.Format = "xml"
	cfg.Retention.Days = 0

	err := cfg.Validate()
	require.Error(t, err)
	for _, field := range []string{"Site.URL", "HTTP.JWTSecret", "Log.Format", "Retention.Days"} {
		assert.Contains(t, err.Error(), field)
	}
}
