// Package scrapers constructs judge adapters. Each adapter gets its own
// fetch client keyed to its judge id so the per-judge request budget
// and retry policy apply independently.
package scrapers

import (
	"net/http"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/cpaggregator/cpaggregator/internal/config"
	"github.com/cpaggregator/cpaggregator/internal/fetch"
	"github.com/cpaggregator/cpaggregator/internal/judge"
	"github.com/cpaggregator/cpaggregator/internal/judge/atcoder"
	"github.com/cpaggregator/cpaggregator/internal/judge/codeforces"
	"github.com/cpaggregator/cpaggregator/internal/judge/csacademy"
	"github.com/cpaggregator/cpaggregator/internal/judge/infoarena"
	"github.com/cpaggregator/cpaggregator/internal/judge/ojuz"
	"github.com/cpaggregator/cpaggregator/internal/judge/timus"
)

// Factory hands out judge adapters, one instance per judge. Instances
// are cached because some adapters warm up session state lazily and
// should keep it across calls.
type Factory struct {
	cfg        *config.ScraperConfig
	limiter    fetch.Limiter
	httpClient *http.Client
	cache      map[string]judge.Scraper
}

func NewFactory(cfg *config.ScraperConfig, limiter fetch.Limiter) *Factory {
	// Transport-level retries handle transient network failures; the
	// fetch client's own loop handles judge throttling on top.
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.Logger = nil

	return &Factory{
		cfg:        cfg,
		limiter:    limiter,
		httpClient: rc.StandardClient(),
		cache:      make(map[string]judge.Scraper),
	}
}

func (f *Factory) fetcher(judgeID string) fetch.Fetcher {
	return fetch.NewClient(fetch.ClientConfig{
		HTTPClient:  f.httpClient,
		Limiter:     f.limiter,
		LimiterKey:  judgeID,
		UserAgent:   f.cfg.UserAgent,
		Backoff:     f.cfg.RetryBackoff,
		MaxAttempts: f.cfg.MaxFetchAttempts,
	})
}

// Get returns the adapter for a judge id, building it on first use.
func (f *Factory) Get(judgeID string) (judge.Scraper, error) {
	if scraper, ok := f.cache[judgeID]; ok {
		return scraper, nil
	}

	var scraper judge.Scraper
	switch judgeID {
	case judge.Codeforces:
		scraper = codeforces.New(f.fetcher(judgeID), f.cfg.PageSize)
	case judge.Infoarena:
		scraper = infoarena.New(f.fetcher(judgeID), f.cfg.PageSize)
	case judge.AtCoder:
		scraper = atcoder.New(f.fetcher(judgeID))
	case judge.Ojuz:
		scraper = ojuz.New(f.fetcher(judgeID))
	case judge.Timus:
		scraper = timus.New(f.fetcher(judgeID))
	case judge.CSAcademy:
		scraper = csacademy.New(f.fetcher(judgeID))
	default:
		return nil, &judge.UnsupportedJudgeError{JudgeID: judgeID}
	}

	f.cache[judgeID] = scraper
	return scraper, nil
}
