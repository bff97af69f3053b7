// Package collector orchestrates one end-to-end collection run: reach
// the broker, log in, extract the rendered portfolio, persist the raw
// snapshot, then normalize it into the queryable history.
package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cocos-collector/lib/moneyfmt"
	"cocos-collector/lib/rawstore"
	"cocos-collector/lib/relay"
	"cocos-collector/lib/scrapers/cocos"
	"cocos-collector/lib/telemetry"

	"go.opentelemetry.io/otel/codes"
)

var tracer = telemetry.Tracer("services/collector")

// Source tags every snapshot with the scraper that produced it.
const Source = "cocos_scraper"

// ScraperVersion is recorded in the raw envelope metadata so old
// snapshots can be re-normalized with knowledge of which extraction
// logic produced them.
const ScraperVersion = "2.0"

var ErrStoreUnavailable = errors.New("raw snapshot store is not available")

// Scraper is what a collection run needs from the browser side. One
// scraper instance serves exactly one run.
type Scraper interface {
	Preflight(ctx context.Context) error
	Login(ctx context.Context, email, password string) error
	Extract(ctx context.Context) (cocos.Portfolio, error)
	Close()
}

type Config struct {
	Email       string       `json:"email"`
	Password    string       `json:"password"`
	Instruments []Instrument `json:"instruments"`
}

type Service struct {
	// newScraper builds a fresh scraper (and browser) per run; reusing
	// a session across runs would leak login state between them.
	newScraper func() (Scraper, error)
	store      *rawstore.Store
	repo       Repository
	relay      relay.Relay
	cfg        Config
}

func NewService(newScraper func() (Scraper, error), store *rawstore.Store, repo Repository, r relay.Relay, cfg Config) Service {
	return Service{
		newScraper: newScraper,
		store:      store,
		repo:       repo,
		relay:      r,
		cfg:        cfg,
	}
}

// CollectSnapshot runs the whole pipeline once. Any failure aborts the
// run: there are no retries because a second login attempt means a
// second MFA interruption for the operator.
func (s Service) CollectSnapshot(ctx context.Context) (err error) {
	ctx, span := tracer.Start(ctx, "CollectSnapshot")
	defer span.End()

	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "collection failed")
			slog.ErrorContext(ctx, "collection run failed", "err", err)
		}
	}()

	if !s.store.IsAvailable() {
		return ErrStoreUnavailable
	}

	scraper, err := s.newScraper()
	if err != nil {
		return fmt.Errorf("start scraper: %w", err)
	}
	defer scraper.Close()

	err = scraper.Preflight(ctx)
	if err != nil {
		return fmt.Errorf("preflight: %w", err)
	}

	err = scraper.Login(ctx, s.cfg.Email, s.cfg.Password)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}

	portfolio, err := scraper.Extract(ctx)
	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}

	// the raw envelope must exist before normalization runs: if
	// normalization is broken, the evidence survives it
	rawRef, err := s.store.Save(ctx, portfolio, Source, map[string]any{
		"scraper_version": ScraperVersion,
	})
	if err != nil {
		return fmt.Errorf("save raw snapshot: %w", err)
	}

	normalized := normalize(ctx, portfolio, s.cfg.Instruments)

	snapshotID, err := s.repo.SaveSnapshot(ctx, normalized, Source, rawRef)
	if err != nil {
		return fmt.Errorf("save normalized snapshot: %w", err)
	}

	slog.InfoContext(ctx, "collection run complete",
		"snapshot_id", snapshotID,
		"total", normalized.TotalValue.String(),
		"positions", len(normalized.Positions),
		"raw_ref", rawRef,
	)
	s.notify(ctx, fmt.Sprintf(
		"Snapshot guardado: total $ %s, %d posiciones.",
		moneyfmt.Format(normalized.TotalValue), len(normalized.Positions),
	))
	return nil
}

func (s Service) notify(ctx context.Context, text string) {
	if s.relay == nil {
		return
	}
	err := s.relay.Send(ctx, text)
	if err != nil {
		slog.WarnContext(ctx, "relay notification failed", "err", err)
	}
}
