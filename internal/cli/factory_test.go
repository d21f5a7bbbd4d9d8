package cli_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/tessera/internal/cli"
	"github.com/aretw0/tessera/internal/config"
	"github.com/aretw0/tessera/internal/logging"
	"github.com/aretw0/tessera/internal/testutils"
	"github.com/aretw0/tessera/pkg/domain"
	"github.com/aretw0/tessera/pkg/schema"
)

func TestOpen_Defaults(t *testing.T) {
	ctx := context.Background()
	rt, err := cli.Open(ctx, config.Defaults(), logging.NewNop())
	require.NoError(t, err)
	defer rt.Close(ctx)

	assert.Equal(t, 19, rt.Registry.Stats().TotalBlocks)

	_, err = rt.Registry.SearchByType(ctx, schema.Text(), schema.Bool(), 5)
	require.NoError(t, err)

	expected := `
# HELP tessera_blocks Registered block versions by lifecycle state.
# TYPE tessera_blocks gauge
tessera_blocks{state="archived"} 0
tessera_blocks{state="deprecated"} 0
tessera_blocks{state="proposed"} 0
tessera_blocks{state="stable"} 19
tessera_blocks{state="testing"} 0
`
	assert.NoError(t, testutil.GatherAndCompare(rt.Gatherer, strings.NewReader(expected), "tessera_blocks"))

	count, err := testutil.GatherAndCount(rt.Gatherer, "tessera_searches_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestOpen_CatalogDir(t *testing.T) {
	dir := t.TempDir()
	testutils.WriteFiles(t, dir, map[string]string{
		"acme/slugify.md": "---\nversion: 1.0.0\nsignature:\n  input: Text\n  output: Text\n---\nTurn a title into a URL slug.\n",
	})

	cfg := config.Defaults()
	cfg.SeedStdlib = false
	cfg.CatalogDir = dir

	ctx := context.Background()
	rt, err := cli.Open(ctx, cfg, logging.NewNop())
	require.NoError(t, err)
	defer rt.Close(ctx)

	m, ok := rt.Registry.Resolve(domain.BlockRef{Namespace: "acme", Name: "slugify"})
	require.True(t, ok)
	assert.Equal(t, "Turn a title into a URL slug.", m.Description)
}

func TestOpen_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.Defaults()
	cfg.Storage.Backend = config.BackendRedis
	cfg.Storage.Redis.Addr = mr.Addr()

	ctx := context.Background()
	rt, err := cli.Open(ctx, cfg, logging.NewNop())
	require.NoError(t, err)

	assert.True(t, mr.Exists("tessera:block:core/unwrap@1.0.0"), "seeded blocks are written through")
	require.NoError(t, rt.Close(ctx))

	cfg.SeedStdlib = false
	again, err := cli.Open(ctx, cfg, logging.NewNop())
	require.NoError(t, err)
	defer again.Close(ctx)
	assert.Equal(t, 19, again.Registry.Stats().TotalBlocks, "hydrated from redis")
}

func TestOpen_RedisUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := config.Defaults()
	cfg.Storage.Backend = config.BackendRedis
	cfg.Storage.Redis.Addr = addr

	_, err := cli.Open(context.Background(), cfg, logging.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to redis")
}

func TestOpen_UnknownProfile(t *testing.T) {
	cfg := config.Defaults()
	cfg.Ranking.Profile = "turbo"

	_, err := cli.Open(context.Background(), cfg, logging.NewNop())
	assert.ErrorIs(t, err, domain.ErrUnknownRankingProfile)
}

func TestPrintSystemMessage(t *testing.T) {
	var buf bytes.Buffer
	cli.PrintSystemMessage(&buf, "Serving on %d", 8080)
	assert.Equal(t, ">>> Serving on 8080\n", buf.String())
}

func TestNewLogger(t *testing.T) {
	_, err := cli.NewLogger("debug")
	assert.NoError(t, err)
	_, err = cli.NewLogger("loud")
	assert.Error(t, err)
}
