package collector

import (
	"context"
	"log/slog"

	"cocos-collector/lib/scrapers/cocos"
	"cocos-collector/lib/textutil"

	"github.com/antzucaro/matchr"
)

// Instrument is the canonical identity of one holding, configured once
// per portfolio.
type Instrument struct {
	Ticker string `json:"ticker"`
	Name   string `json:"name"`
}

// nameSimilarityFloor is how close a scraped instrument name must be to
// the configured one before it is replaced by the canonical spelling.
const nameSimilarityFloor = 0.8

// normalize canonicalizes the scraped positions against the configured
// instrument list. Tickers without a configured instrument pass through
// unmodified so a new holding shows up in the data the day it is bought,
// not the day someone edits the config.
func normalize(ctx context.Context, portfolio cocos.Portfolio, instruments []Instrument) cocos.Portfolio {
	byTicker := make(map[string]Instrument, len(instruments))
	for _, inst := range instruments {
		byTicker[inst.Ticker] = inst
	}

	out := portfolio
	out.Positions = make([]cocos.Position, len(portfolio.Positions))
	for i, position := range portfolio.Positions {
		out.Positions[i] = position

		inst, ok := byTicker[position.Ticker]
		if !ok {
			slog.WarnContext(ctx, "position has no configured instrument",
				"ticker", position.Ticker, "name", position.Name)
			continue
		}

		similarity := matchr.JaroWinkler(
			textutil.NormalizeName(position.Name),
			textutil.NormalizeName(inst.Name),
			false,
		)
		if similarity < nameSimilarityFloor {
			slog.WarnContext(ctx, "scraped name diverges from configured instrument",
				"ticker", position.Ticker,
				"scraped", position.Name,
				"configured", inst.Name,
				"similarity", similarity)
		}
		out.Positions[i].Name = inst.Name
	}
	return out
}
