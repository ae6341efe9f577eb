package matching

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/your-org/mpr/internal/errors"
	"github.com/your-org/mpr/internal/models"
	"github.com/your-org/mpr/internal/observability"
)

type Mode string

const (
	ModeSingle Mode = "single"
	ModeDual   Mode = "dual"
)

const DefaultTopK = 5

// Policy decides which scored entries survive ranking.
type Policy struct {
	Mode      Mode
	Threshold float64 // single: keep score > Threshold
	High      float64 // dual: high band is score > High
	Low       float64 // dual: low band is Low < score <= High
	TopK      int
}

// SingleThreshold keeps entries scoring above threshold, best first, at most topK.
func SingleThreshold(threshold float64, topK int) Policy {
	return Policy{Mode: ModeSingle, Threshold: threshold, TopK: topK}
}

// DualBand takes the topK best entries and splits them into high and low
// confidence bands, dropping anything at or below low.
func DualBand(high, low float64, topK int) Policy {
	return Policy{Mode: ModeDual, High: high, Low: low, TopK: topK}
}

// Entry is one corpus image. Fetch is called at most once per ranking.
type Entry struct {
	Name  string
	URL   string
	Fetch func(ctx context.Context) ([]byte, error)
}

// Candidate is a scored corpus entry.
type Candidate struct {
	Name       string
	URL        string
	Index      int // position in the corpus enumeration
	Confidence float64
	Band       models.Band
}

// Skip records a corpus entry that could not be scored.
type Skip struct {
	Name string
	Err  error
}

// Ranking is the outcome of one ranking run.
type Ranking struct {
	Matches []Candidate // retained entries, best first
	High    []Candidate // dual band only
	Low     []Candidate // dual band only
	Scanned int         // entries scored successfully
	Skipped []Skip
}

// Best returns the highest scoring retained candidate.
func (r *Ranking) Best() (Candidate, bool) {
	if len(r.Matches) == 0 {
		return Candidate{}, false
	}
	return r.Matches[0], true
}

// Ranker scores a query against every corpus entry and applies a Policy.
type Ranker struct {
	scorer      Scorer
	concurrency int
}

func NewRanker(scorer Scorer, concurrency int) *Ranker {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Ranker{scorer: scorer, concurrency: concurrency}
}

// Rank compares query against entries with at most concurrency comparisons in
// flight. Entries that fail to fetch or score are skipped. If ctx ends before
// every comparison finishes, Rank returns the context error and no ranking.
func (r *Ranker) Rank(ctx context.Context, query []byte, entries []Entry, policy Policy) (*Ranking, error) {
	comparator, err := r.scorer.Prepare(query)
	if err != nil {
		return nil, err
	}

	scores := make([]float64, len(entries))
	failures := make([]error, len(entries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for i, entry := range entries {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			start := time.Now()
			data, err := entry.Fetch(gctx)
			if err != nil {
				failures[i] = apperrors.NewFetchError("fetch corpus image "+entry.Name, err)
				return nil
			}
			score, err := comparator.Compare(data)
			if err != nil {
				failures[i] = fmt.Errorf("score %s: %w", entry.Name, err)
				return nil
			}
			scores[i] = score
			observability.ComparisonDuration.Observe(time.Since(start).Seconds())
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ranking := &Ranking{}
	scored := make([]Candidate, 0, len(entries))
	for i, entry := range entries {
		if failures[i] != nil {
			slog.Warn("skipping corpus image", "name", entry.Name, "error", failures[i])
			observability.CorpusFetchFailures.Inc()
			ranking.Skipped = append(ranking.Skipped, Skip{Name: entry.Name, Err: failures[i]})
			continue
		}
		scored = append(scored, Candidate{
			Name:       entry.Name,
			URL:        entry.URL,
			Index:      i,
			Confidence: scores[i],
		})
	}
	ranking.Scanned = len(scored)
	observability.Comparisons.Add(float64(len(scored)))

	policy.apply(ranking, scored)
	return ranking, nil
}

func (p Policy) topK() int {
	if p.TopK <= 0 {
		return DefaultTopK
	}
	return p.TopK
}

// apply sorts scored best-first, keeping corpus order on ties, and fills the
// ranking's retained sets.
func (p Policy) apply(ranking *Ranking, scored []Candidate) {
	slices.SortStableFunc(scored, func(a, b Candidate) int {
		return cmp.Compare(b.Confidence, a.Confidence)
	})

	switch p.Mode {
	case ModeDual:
		top := scored[:min(len(scored), p.topK())]
		for _, c := range top {
			switch {
			case c.Confidence > p.High:
				c.Band = models.BandHigh
				ranking.High = append(ranking.High, c)
			case c.Confidence > p.Low:
				c.Band = models.BandLow
				ranking.Low = append(ranking.Low, c)
			}
		}
		ranking.Matches = append(append([]Candidate{}, ranking.High...), ranking.Low...)
	default:
		for _, c := range scored {
			if len(ranking.Matches) == p.topK() {
				break
			}
			if c.Confidence > p.Threshold {
				ranking.Matches = append(ranking.Matches, c)
			}
		}
	}
}
