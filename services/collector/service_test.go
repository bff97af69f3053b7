package collector

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"cocos-collector/lib/rawstore"
	"cocos-collector/lib/relay"
	"cocos-collector/lib/scrapers/cocos"
	"cocos-collector/lib/testutil"
	"cocos-collector/lib/timezone"
	"cocos-collector/services/collector/db"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakeScraper struct {
	portfolio  cocos.Portfolio
	loginErr   error
	extractErr error
	closed     bool
}

func (f *fakeScraper) Preflight(ctx context.Context) error { return nil }

func (f *fakeScraper) Login(ctx context.Context, email, password string) error {
	return f.loginErr
}

func (f *fakeScraper) Extract(ctx context.Context) (cocos.Portfolio, error) {
	if f.extractErr != nil {
		return cocos.Portfolio{}, f.extractErr
	}
	return f.portfolio, nil
}

func (f *fakeScraper) Close() { f.closed = true }

type recordingRelay struct {
	mu   sync.Mutex
	sent []string
}

func (r *recordingRelay) Send(ctx context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, text)
	return nil
}

func (r *recordingRelay) Poll(ctx context.Context, since int64) ([]relay.Message, error) {
	return nil, nil
}

func (r *recordingRelay) LastMarker(ctx context.Context) (int64, error) { return 0, nil }

func testPortfolio() cocos.Portfolio {
	return cocos.Portfolio{
		Timestamp:  timezone.Now().Truncate(time.Second),
		TotalValue: decimal.RequireFromString("16730.50"),
		Currency:   "ARS",
		Positions: []cocos.Position{
			{
				Ticker:     "AAPL",
				Name:       "Aple Inc",
				Quantity:   2,
				UnitPrice:  decimal.RequireFromString("190.00"),
				Valuation:  decimal.RequireFromString("380.00"),
				PnlPercent: decimal.RequireFromString("2.10"),
				Currency:   "USD",
			},
		},
	}
}

func setupCollector(t *testing.T, scraper *fakeScraper) (Service, *rawstore.Store, Repository, *recordingRelay, func()) {
	setup, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "services/collector",
		DbSchema: db.Schema,
	})

	store, err := rawstore.NewStore(t.TempDir())
	require.NoError(t, err)

	repo := NewRepository(setup.DB)
	r := &recordingRelay{}
	cfg := Config{
		Email:    "user@example.com",
		Password: "hunter2",
		Instruments: []Instrument{
			{Ticker: "AAPL", Name: "Apple Inc."},
		},
	}
	service := NewService(func() (Scraper, error) { return scraper, nil }, store, repo, r, cfg)
	return service, store, repo, r, cleanup
}

func TestCollectSnapshot(t *testing.T) {
	scraper := &fakeScraper{portfolio: testPortfolio()}
	service, store, repo, r, cleanup := setupCollector(t, scraper)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, service.CollectSnapshot(ctx))
	require.True(t, scraper.closed)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)

	latest, rawRef, err := repo.Latest(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, rawRef)
	require.True(t, latest.TotalValue.Equal(decimal.RequireFromString("16730.5")))
	require.Len(t, latest.Positions, 1)
	// the configured canonical spelling replaces the scraped one
	require.Equal(t, "Apple Inc.", latest.Positions[0].Name)

	// the raw envelope keeps the scraped name untouched
	envelope, err := store.Load(rawRef)
	require.NoError(t, err)
	require.Equal(t, Source, envelope.Source)
	var raw cocos.Portfolio
	require.NoError(t, json.Unmarshal(envelope.Data, &raw))
	require.Equal(t, "Aple Inc", raw.Positions[0].Name)

	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.sent)
	require.Contains(t, r.sent[len(r.sent)-1], "Snapshot guardado")
}

func TestCollectSnapshotLoginFailure(t *testing.T) {
	scraper := &fakeScraper{loginErr: cocos.ErrMfaTimeout}
	service, _, repo, _, cleanup := setupCollector(t, scraper)
	defer cleanup()

	ctx := context.Background()
	err := service.CollectSnapshot(ctx)
	require.ErrorIs(t, err, cocos.ErrMfaTimeout)
	require.True(t, scraper.closed)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 0, count)
}

func TestCollectSnapshotExtractFailureWritesNothing(t *testing.T) {
	scraper := &fakeScraper{extractErr: cocos.ErrNoData}
	service, _, repo, _, cleanup := setupCollector(t, scraper)
	defer cleanup()

	ctx := context.Background()
	err := service.CollectSnapshot(ctx)
	require.ErrorIs(t, err, cocos.ErrNoData)
	require.True(t, scraper.closed)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 0, count)
}

func TestCollectSnapshotStoreUnavailable(t *testing.T) {
	scraper := &fakeScraper{portfolio: testPortfolio()}

	setup, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "services/collector",
		DbSchema: db.Schema,
	})
	defer cleanup()

	base := t.TempDir()
	store, err := rawstore.NewStore(base)
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(base))

	service := NewService(
		func() (Scraper, error) { return scraper, nil },
		store, NewRepository(setup.DB), nil, Config{},
	)

	err = service.CollectSnapshot(context.Background())
	require.ErrorIs(t, err, ErrStoreUnavailable)
	// the browser is never launched when the store is gone
	require.False(t, scraper.closed)
}

func TestScraperFactoryFailure(t *testing.T) {
	setup, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "services/collector",
		DbSchema: db.Schema,
	})
	defer cleanup()

	store, err := rawstore.NewStore(t.TempDir())
	require.NoError(t, err)

	boom := errors.New("chrome not found")
	service := NewService(
		func() (Scraper, error) { return nil, boom },
		store, NewRepository(setup.DB), nil, Config{},
	)

	err = service.CollectSnapshot(context.Background())
	require.ErrorIs(t, err, boom)
}
