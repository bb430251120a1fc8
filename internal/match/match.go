// package match scores cross-service track equivalence and turns ranked
// candidates into an accept/ambiguous/reject decision.
//
// Scoring combines token-sort and partial-ratio string similarity (title and
// artist), a duration-bucket signal, and featured-artist overlap. All weights
// and thresholds come from configuration; the recall/precision tradeoff is a
// user-facing knob, not a constant.
package match

import (
	"fmt"
	"sort"

	"github.com/desertthunder/tunesync/internal/models"
	"github.com/desertthunder/tunesync/internal/normalize"
	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"
)

// Config tunes the scoring weights and the decision policy.
type Config struct {
	TitleWeight     float64
	ArtistWeight    float64
	DurationWeight  float64
	FeaturedWeight  float64
	AcceptThreshold float64
	TieMargin       float64
}

// DefaultConfig returns the stock weights: title 0.5, artist 0.35,
// duration 0.1, featured overlap 0.05, accepting at 0.85 with a 0.03 margin.
func DefaultConfig() Config {
	return Config{
		TitleWeight:     0.5,
		ArtistWeight:    0.35,
		DurationWeight:  0.1,
		FeaturedWeight:  0.05,
		AcceptThreshold: 0.85,
		TieMargin:       0.03,
	}
}

// Validate rejects weights or thresholds a matcher cannot run with.
func (c Config) Validate() error {
	if c.TitleWeight < 0 || c.ArtistWeight < 0 || c.DurationWeight < 0 || c.FeaturedWeight < 0 {
		return fmt.Errorf("match weights must be non-negative")
	}
	if c.AcceptThreshold <= 0 || c.AcceptThreshold > 1 {
		return fmt.Errorf("accept threshold %f outside (0,1]", c.AcceptThreshold)
	}
	if c.TieMargin < 0 || c.TieMargin >= 1 {
		return fmt.Errorf("tie margin %f outside [0,1)", c.TieMargin)
	}
	return nil
}

// Breakdown records each signal's contribution to a candidate's score.
type Breakdown struct {
	Title    float64 `json:"title"`
	Artist   float64 `json:"artist"`
	Duration float64 `json:"duration"`
	Featured float64 `json:"featured"`
}

// Candidate pairs a raw destination track with its score against the query.
type Candidate struct {
	Track     models.Track
	Canonical normalize.Canonical
	Score     float64
	Breakdown Breakdown
}

// Outcome is the decision variant for a match evaluation.
type Outcome int

const (
	Rejected Outcome = iota
	Ambiguous
	Accepted
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case Ambiguous:
		return "ambiguous"
	default:
		return "rejected"
	}
}

// Decision is the result of matching a query against a candidate pool.
// Best is nil only when the pool was empty. Contenders holds every candidate
// within the tie margin of the top score (including the top itself) when the
// outcome is Ambiguous.
type Decision struct {
	Outcome    Outcome
	Best       *Candidate
	Ranked     []Candidate
	Contenders []Candidate
}

// Matcher scores candidate pools. It is side-effect-free: candidate
// retrieval is the orchestrator's concern.
type Matcher struct {
	cfg Config
}

// New creates a Matcher after validating the configuration.
func New(cfg Config) (*Matcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Matcher{cfg: cfg}, nil
}

// Match evaluates the candidate pool against the canonical query.
// An empty pool is always Rejected.
func (m *Matcher) Match(query normalize.Canonical, pool []models.Track) Decision {
	if len(pool) == 0 {
		return Decision{Outcome: Rejected}
	}

	ranked := make([]Candidate, 0, len(pool))
	for _, track := range pool {
		ranked = append(ranked, m.score(query, track))
	}

	// Ties break on closer duration bucket, then plain title ratio, then
	// original search-result order (the sort is stable).
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		di := bucketDistance(query.DurationBucket, ranked[i].Canonical.DurationBucket)
		dj := bucketDistance(query.DurationBucket, ranked[j].Canonical.DurationBucket)
		if di != dj {
			return di < dj
		}
		ri := fuzzy.Ratio(query.Title, ranked[i].Canonical.Title)
		rj := fuzzy.Ratio(query.Title, ranked[j].Canonical.Title)
		return ri > rj
	})

	best := ranked[0]
	decision := Decision{Best: &best, Ranked: ranked}

	if best.Score < m.cfg.AcceptThreshold {
		decision.Outcome = Rejected
		return decision
	}

	var contenders []Candidate
	for _, c := range ranked {
		if best.Score-c.Score < m.cfg.TieMargin {
			contenders = append(contenders, c)
		}
	}

	if len(contenders) > 1 {
		decision.Outcome = Ambiguous
		decision.Contenders = contenders
		return decision
	}

	decision.Outcome = Accepted
	return decision
}

// score computes the weighted similarity of one candidate.
func (m *Matcher) score(query normalize.Canonical, track models.Track) Candidate {
	canonical := normalize.Track(track)

	breakdown := Breakdown{
		Title:  m.cfg.TitleWeight * similarity(query.Title, canonical.Title),
		Artist: m.cfg.ArtistWeight * similarity(query.PrimaryArtist, canonical.PrimaryArtist),
	}

	if query.DurationBucket > 0 && canonical.DurationBucket > 0 {
		switch bucketDistance(query.DurationBucket, canonical.DurationBucket) {
		case 0:
			breakdown.Duration = m.cfg.DurationWeight
		case 1:
			// Adjacent buckets are close enough to stay neutral.
		default:
			breakdown.Duration = -m.cfg.DurationWeight
		}
	}

	if query.FeaturedOverlap(canonical) {
		breakdown.Featured = m.cfg.FeaturedWeight
	}

	score := breakdown.Title + breakdown.Artist + breakdown.Duration + breakdown.Featured
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}

	return Candidate{
		Track:     track,
		Canonical: canonical,
		Score:     score,
		Breakdown: breakdown,
	}
}

// similarity blends token-sort and partial ratios so that reordered
// ("Artist - Title" vs "Title - Artist") and partially overlapping strings
// both score high. Result is in [0,1].
func similarity(a, b string) float64 {
	if a == "" && b == "" {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	tokenSort := fuzzy.TokenSortRatio(a, b)
	partial := fuzzy.PartialRatio(a, b)
	score := tokenSort
	if partial > score {
		score = partial
	}
	return float64(score) / 100.0
}

func bucketDistance(a, b int) int {
	d := a - b
	if d < 0 {
		return -d
	}
	return d
}
