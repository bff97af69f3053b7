package rawstore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cocos-collector/lib/timezone"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Total     string   `json:"total"`
	Positions []string `json:"positions"`
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	data := payload{Total: "384790.00", Positions: []string{"CVX", "GOOGL"}}
	ref, err := store.Save(ctx, data, "cocos_scraper", map[string]any{
		"scraper_version": "2.0",
	})
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(ref, ".json"))

	envelope, err := store.Load(ref)
	require.NoError(t, err)
	require.Equal(t, "cocos_scraper", envelope.Source)
	require.Len(t, envelope.Checksum, 8)
	require.Equal(t, "2.0", envelope.Metadata["scraper_version"])

	var back payload
	require.NoError(t, json.Unmarshal(envelope.Data, &back))
	require.Empty(t, cmp.Diff(data, back))
}

func TestLoadIsByteIdentical(t *testing.T) {
	ctx := context.Background()
	base := t.TempDir()
	store, err := NewStore(base)
	require.NoError(t, err)

	ref, err := store.Save(ctx, payload{Total: "1.00"}, "test", nil)
	require.NoError(t, err)

	first, err := os.ReadFile(filepath.Join(base, ref))
	require.NoError(t, err)
	second, err := os.ReadFile(filepath.Join(base, ref))
	require.NoError(t, err)
	require.Equal(t, first, second)

	envelope, err := store.Load(ref)
	require.NoError(t, err)
	reencoded, err := json.MarshalIndent(envelope, "", "  ")
	require.NoError(t, err)
	require.JSONEq(t, string(first), string(reencoded))
}

func TestIdenticalDataDistinctNames(t *testing.T) {
	ctx := context.Background()
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	base := time.Date(2025, 3, 14, 11, 30, 0, 0, timezone.Location)
	calls := 0
	store.now = func() time.Time {
		calls++
		return base.Add(time.Duration(calls) * time.Second)
	}

	data := payload{Total: "42.00"}
	ref1, err := store.Save(ctx, data, "test", nil)
	require.NoError(t, err)
	ref2, err := store.Save(ctx, data, "test", nil)
	require.NoError(t, err)

	require.NotEqual(t, ref1, ref2)

	env1, err := store.Load(ref1)
	require.NoError(t, err)
	env2, err := store.Load(ref2)
	require.NoError(t, err)
	require.Equal(t, env1.Checksum, env2.Checksum)
}

func TestDatePath(t *testing.T) {
	ctx := context.Background()
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	store.now = func() time.Time {
		return time.Date(2025, 3, 14, 11, 30, 5, 0, timezone.Location)
	}

	ref, err := store.Save(ctx, payload{Total: "9.99"}, "test", nil)
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(ref, filepath.Join("2025", "03", "14")+string(filepath.Separator)), ref)
	require.Contains(t, ref, "snapshot_113005_")
}

func TestIsAvailable(t *testing.T) {
	base := t.TempDir()
	store, err := NewStore(base)
	require.NoError(t, err)
	require.True(t, store.IsAvailable())

	missing := &Store{base: filepath.Join(base, "does-not-exist"), now: timezone.Now}
	require.False(t, missing.IsAvailable())
}
