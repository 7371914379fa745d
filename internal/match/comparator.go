package match

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/intake-dedup/internal/debug"
	"github.com/intake-dedup/internal/similarity"
)

// Comparator scores candidate pairs of a pass and classifies matches
type Comparator struct {
	thresholds Thresholds
	workers    int
}

// NewComparator creates a comparator scoring blocks on up to workers goroutines
func NewComparator(thresholds Thresholds, workers int) *Comparator {
	if workers < 1 {
		workers = 1
	}
	return &Comparator{
		thresholds: thresholds,
		workers:    workers,
	}
}

// Thresholds returns the cutoffs the comparator classifies with
func (c *Comparator) Thresholds() Thresholds {
	return c.thresholds
}

// Run blocks the index on pass.Key and scores every pair inside each block.
// Blocks are scored concurrently; each block writes to its own slot and the
// slots are merged in key order, so the result is independent of scheduling.
func (c *Comparator) Run(ctx context.Context, localDebug bool, idx *Index, pass Pass) (PassResult, error) {
	debug.DebugHeader(localDebug)
	defer debug.DebugFooter(localDebug)

	if err := pass.Validate(); err != nil {
		return PassResult{}, err
	}

	blocks := Blocks(idx, pass.Key)
	slots := make([][]Scored, len(blocks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)

	for i, block := range blocks {
		i, block := i, block
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			slots[i] = c.scoreBlock(idx, pass, block)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return PassResult{}, fmt.Errorf("pass %s: %w", pass.Name, err)
	}

	result := PassResult{Pass: pass.Name, Blocks: len(blocks)}
	for i, block := range blocks {
		result.Candidates += block.PairCount()
		result.Matches = append(result.Matches, slots[i]...)
	}

	debug.DebugOutput(localDebug, "pass %s: %d blocks, %d candidate pairs, %d matches",
		pass.Name, result.Blocks, result.Candidates, len(result.Matches))

	return result, nil
}

// scoreBlock returns the matching pairs of one block
func (c *Comparator) scoreBlock(idx *Index, pass Pass, block Block) []Scored {
	var matches []Scored
	block.EachPair(func(left, right int) {
		scored := c.Score(idx, pass, left, right)
		if scored.Match {
			matches = append(matches, scored)
		}
	})
	return matches
}

// Score computes the feature vector of records left and right under pass
func (c *Comparator) Score(idx *Index, pass Pass, left, right int) Scored {
	features := make([]int, len(pass.Comparisons))
	sum := 0
	for k, cmp := range pass.Comparisons {
		features[k] = c.feature(cmp, idx.Value(left, cmp.Left), idx.Value(right, cmp.Right))
		sum += features[k]
	}

	score := float64(sum)
	return Scored{
		Pass:     pass.Name,
		Left:     idx.ID(left),
		Right:    idx.ID(right),
		Features: features,
		Score:    score,
		Match:    score >= c.thresholds.Match,
	}
}

// feature evaluates one comparison; a missing value on either side is 0
func (c *Comparator) feature(cmp Comparison, a, b string) int {
	if a == "" || b == "" {
		return 0
	}

	switch cmp.Kind {
	case Exact:
		if a == b {
			return 1
		}
	case Fuzzy:
		threshold := cmp.Threshold
		if threshold == 0 {
			threshold = c.thresholds.Similarity
		}
		if similarity.JaroWinkler(a, b) >= threshold {
			return 1
		}
	}
	return 0
}
