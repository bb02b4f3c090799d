package perf

import (
	"context"
	"math"
	"math/rand/v2"
	"sort"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// MonteCarloConfig controls the bootstrap study.
type MonteCarloConfig struct {
	Iterations int
	Workers    int
	Seed       uint64
}

// MonteCarloResult holds the distribution of compounded resample outcomes.
// All values are in percent.
type MonteCarloResult struct {
	Expected     float64
	Std          float64
	VaR95        float64 // 5th percentile outcome
	CVaR95       float64 // mean of outcomes at or below VaR95
	ProbPositive float64
	Min          float64
	Max          float64
	Robustness   float64
	Outcomes     []float64
}

// MonteCarlo resamples the trade returns with replacement cfg.Iterations
// times and compounds each resample.
//
// The iterations are split into contiguous blocks, one per worker, and each
// worker draws from its own PCG stream seeded with (Seed, worker). The result
// depends only on the trades and cfg.
func MonteCarlo(ctx context.Context, trades []float64, cfg MonteCarloConfig) (MonteCarloResult, error) {
	n := len(trades)
	if n == 0 || cfg.Iterations <= 0 {
		return MonteCarloResult{}, nil
	}
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > cfg.Iterations {
		workers = cfg.Iterations
	}

	outcomes := make([]float64, cfg.Iterations)
	block := (cfg.Iterations + workers - 1) / workers

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		lo := w * block
		hi := min(lo+block, cfg.Iterations)
		if lo >= hi {
			break
		}
		rng := rand.New(rand.NewPCG(cfg.Seed, uint64(w)))
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if (i-lo)%64 == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
				}
				acc := 1.0
				for j := 0; j < n; j++ {
					acc *= 1 + trades[rng.IntN(n)]/100
				}
				outcomes[i] = (acc - 1) * 100
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return MonteCarloResult{}, err
	}

	return summarizeOutcomes(outcomes), nil
}

func summarizeOutcomes(outcomes []float64) MonteCarloResult {
	sorted := append([]float64(nil), outcomes...)
	sort.Float64s(sorted)

	res := MonteCarloResult{
		Expected: stat.Mean(outcomes, nil),
		Min:      floats.Min(outcomes),
		Max:      floats.Max(outcomes),
		Outcomes: outcomes,
	}
	if len(outcomes) > 1 {
		res.Std = stat.StdDev(outcomes, nil)
	}
	res.VaR95 = stat.Quantile(0.05, stat.Empirical, sorted, nil)

	var tail []float64
	for _, v := range sorted {
		if v > res.VaR95 {
			break
		}
		tail = append(tail, v)
	}
	res.CVaR95 = stat.Mean(tail, nil)

	var pos []float64
	for _, v := range outcomes {
		if v > 0 {
			pos = append(pos, v)
		}
	}
	res.ProbPositive = float64(len(pos)) / float64(len(outcomes)) * 100
	res.Robustness = robustness(res.ProbPositive, pos)
	return res
}

// robustness is the share of positive outcomes plus a bonus of up to 10
// points for the dispersion of those outcomes, capped at 100.
func robustness(probPositive float64, pos []float64) float64 {
	bonus := 0.0
	if len(pos) > 1 {
		mean := stat.Mean(pos, nil)
		if mean != 0 {
			bonus = 10 * math.Min(1, stat.StdDev(pos, nil)/math.Abs(mean))
		}
	}
	return math.Min(100, probPositive+bonus)
}
