package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RobinCoderZhao/sports-digest/internal/config"
	"github.com/RobinCoderZhao/sports-digest/internal/sportsdigest/apiclient"
	"github.com/RobinCoderZhao/sports-digest/internal/sportsdigest/model"
	"github.com/RobinCoderZhao/sports-digest/internal/sportsdigest/sources"
	"github.com/RobinCoderZhao/sports-digest/pkg/cache"
	"github.com/RobinCoderZhao/sports-digest/pkg/storage"
)

func TestParseSports(t *testing.T) {
	tests := []struct {
		args []string
		want []model.Sport
	}{
		{nil, nil},
		{[]string{"all"}, nil},
		{[]string{"Soccer", "rugby"}, []model.Sport{model.Soccer, model.Rugby}},
		{[]string{"soccer,formula1,", "all"}, nil},
		{[]string{" tennis , golf"}, []model.Sport{model.Tennis, model.Golf}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseSports(tt.args), "%v", tt.args)
	}
}

func TestRegisterSources(t *testing.T) {
	cfg := config.Default()
	client := apiclient.New(cache.NewMemory())
	news, fixtures := registerSources(client, cfg)

	assert.Equal(t, sources.NewsDataSourceID, news.Name())
	require.Len(t, fixtures, 4)
	wantSports := []model.Sport{model.Soccer, model.Rugby, model.Formula1, model.Basketball}
	for i, f := range fixtures {
		assert.Equal(t, wantSports[i], f.Sport())
	}

	ctx := context.Background()
	assert.Equal(t, 200, client.Remaining(ctx, sources.NewsDataSourceID))
	assert.Equal(t, 100, client.Remaining(ctx, sources.FootballSourceID))
	assert.Equal(t, 100, client.Remaining(ctx, sources.Formula1SourceID))
}

func TestNewAppWiresSQLite(t *testing.T) {
	cfg := config.Default()
	cfg.Database = storage.Config{Driver: storage.SQLite, DSN: filepath.Join(t.TempDir(), "nested", "digest.db")}

	ctx := context.Background()
	a, err := newApp(ctx, cfg)
	require.NoError(t, err)
	defer a.Close()

	sports, err := a.store.ActiveSports(ctx)
	require.NoError(t, err)
	assert.Len(t, sports, 8)

	sum, err := a.service.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 200, sum.APIBudget[sources.NewsDataSourceID])
}
