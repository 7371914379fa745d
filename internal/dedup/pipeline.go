// Package dedup runs the complete deduplication of a batch of intake records:
// sanitization, the three blocking passes, then clustering into dedup ids.
package dedup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/intake-dedup/internal/cluster"
	"github.com/intake-dedup/internal/debug"
	"github.com/intake-dedup/internal/match"
	"github.com/intake-dedup/internal/metrics"
	"github.com/intake-dedup/internal/patient"
	"github.com/intake-dedup/internal/reference"
	"github.com/intake-dedup/internal/sanitize"
)

// ErrNoReference is returned when a pipeline is built without a reference table
var ErrNoReference = errors.New("dedup: reference table is required")

// Config holds the collaborators and tuning of a pipeline
type Config struct {
	Table      *reference.Table
	Thresholds match.Thresholds // zero fields use match.DefaultThresholds
	Workers    int
	Passes     []match.Pass // nil uses match.DefaultPasses
	Metrics    *metrics.Metrics
	Logger     *zerolog.Logger
	Debug      bool
}

// Pipeline sequences sanitizer, comparator and cluster builder
type Pipeline struct {
	sanitizer  *sanitize.Sanitizer
	comparator *match.Comparator
	passes     []match.Pass
	metrics    *metrics.Metrics
	logger     zerolog.Logger
	debug      bool
}

// PassStats summarises one blocking pass of a run
type PassStats struct {
	Pass       string `json:"pass"`
	Blocks     int    `json:"blocks"`
	Candidates int    `json:"candidate_pairs"`
	Matches    int    `json:"matched_pairs"`
}

// Stats summarises a run
type Stats struct {
	RecordsIn  int           `json:"records_in"`
	Dropped    int           `json:"records_dropped"`
	Records    int           `json:"records_out"`
	Passes     []PassStats   `json:"passes"`
	Edges      int           `json:"distinct_matches"`
	Clusters   int           `json:"clusters"`
	Duplicates int           `json:"records_in_shared_clusters"`
	Duration   time.Duration `json:"duration_ns"`
}

// Result is the annotated record set of a run plus the evidence behind it
type Result struct {
	Records []patient.Record `json:"records"`
	Matches []match.Scored   `json:"-"`
	Stats   Stats            `json:"stats"`
}

// NewPipeline validates cfg and builds a pipeline
func NewPipeline(cfg Config) (*Pipeline, error) {
	if cfg.Table == nil {
		return nil, ErrNoReference
	}

	thresholds := cfg.Thresholds
	if thresholds.Similarity == 0 {
		thresholds.Similarity = match.DefaultThresholds().Similarity
	}
	if thresholds.Match == 0 {
		thresholds.Match = match.DefaultThresholds().Match
	}

	passes := cfg.Passes
	if passes == nil {
		passes = match.DefaultPasses()
	}
	for _, p := range passes {
		if err := p.Validate(); err != nil {
			return nil, err
		}
	}

	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	return &Pipeline{
		sanitizer:  sanitize.New(cfg.Table, cfg.Metrics),
		comparator: match.NewComparator(thresholds, cfg.Workers),
		passes:     passes,
		metrics:    cfg.Metrics,
		logger:     logger.With().Str("component", "dedup").Logger(),
		debug:      cfg.Debug,
	}, nil
}

// Thresholds returns the cutoffs the pipeline classifies with
func (p *Pipeline) Thresholds() match.Thresholds {
	return p.comparator.Thresholds()
}

// Run deduplicates records. Records dropped for ambiguous ids do not appear
// in the result; every other record carries a DedupID. Cancelling ctx aborts
// between blocks and no partial result is returned.
func (p *Pipeline) Run(ctx context.Context, records []patient.Record) (*Result, error) {
	debug.DebugHeader(p.debug)
	defer debug.DebugFooter(p.debug)

	start := time.Now()
	p.metrics.ObserveInput(len(records))

	set, err := p.sanitizer.Run(p.debug, records)
	if err != nil {
		return nil, err
	}

	stats := Stats{
		RecordsIn: len(records),
		Dropped:   len(records) - set.Len(),
		Records:   set.Len(),
	}

	idx := match.NewIndex(set)

	var matches []match.Scored
	var edges []cluster.Edge
	seen := make(map[cluster.Edge]struct{})

	for _, pass := range p.passes {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("dedup: %w", err)
		}

		res, err := p.comparator.Run(ctx, p.debug, idx, pass)
		if err != nil {
			return nil, fmt.Errorf("dedup: %w", err)
		}

		p.metrics.ObservePass(res.Pass, res.Candidates, len(res.Matches))
		stats.Passes = append(stats.Passes, PassStats{
			Pass:       res.Pass,
			Blocks:     res.Blocks,
			Candidates: res.Candidates,
			Matches:    len(res.Matches),
		})

		for _, m := range res.Matches {
			matches = append(matches, m)
			e := cluster.Edge{Left: m.Left, Right: m.Right}
			if _, dup := seen[e]; dup {
				continue
			}
			seen[e] = struct{}{}
			edges = append(edges, e)
		}

		p.logger.Debug().
			Str("pass", res.Pass).
			Int("blocks", res.Blocks).
			Int("candidates", res.Candidates).
			Int("matches", len(res.Matches)).
			Msg("pass complete")
	}

	clusters, err := cluster.Assign(set, edges)
	if err != nil {
		return nil, fmt.Errorf("dedup: %w", err)
	}

	stats.Edges = len(edges)
	stats.Clusters = clusters
	stats.Duplicates = sharedClusterMembers(set)
	stats.Duration = time.Since(start)
	p.metrics.ObserveRun(clusters, stats.Duration)

	p.logger.Info().
		Int("records_in", stats.RecordsIn).
		Int("dropped", stats.Dropped).
		Int("matches", stats.Edges).
		Int("clusters", stats.Clusters).
		Dur("took", stats.Duration).
		Msg("dedup run complete")

	return &Result{
		Records: set.Records,
		Matches: matches,
		Stats:   stats,
	}, nil
}

// Groups lists the member ids of every cluster keyed by dedup id
func (r *Result) Groups() map[string][]string {
	labels := make(map[string]string, len(r.Records))
	for _, rec := range r.Records {
		labels[rec.PatientID] = rec.DedupID
	}
	return cluster.Groups(labels)
}

// sharedClusterMembers counts records whose cluster has more than one member
func sharedClusterMembers(set *patient.Set) int {
	sizes := make(map[string]int)
	for _, r := range set.Records {
		sizes[r.DedupID]++
	}
	n := 0
	for _, size := range sizes {
		if size > 1 {
			n += size
		}
	}
	return n
}
