// Package risk estimates how long a pivot block must age before an adversary
// controlling a fraction of the mining power is unlikely to revert it.
//
// The model is the Nakamoto/Rosenfeld double-spend family: the number of
// blocks the adversary may have mined in secret while the honest network
// accumulated an advantage of m follows a negative binomial law, and the
// probability of closing a remaining deficit d is the gambler's-ruin
// overtake probability (p/(1-p))^d.
package risk

import (
	"fmt"
	"math"

	"treegraph/graph"
	"treegraph/models"
)

const (
	// riskFloor keeps threshold comparisons away from an exact zero.
	riskFloor = 1e-12
	// tailEps stops the negative-binomial summation once the unexplored
	// tail mass is negligible; the tail is then counted at full catch-up
	// probability, which keeps the estimate conservative.
	tailEps = 1e-15
)

// Result is the outcome of a threshold search: the first sampled time offset
// at which the revert risk fell below the threshold. Terms is the number of
// negative-binomial terms summed at that offset, an internal search index.
type Result struct {
	TimeOffset float64 `json:"time_offset"`
	Advantage  int     `json:"advantage"`
	Terms      int     `json:"terms"`
	Risk       float64 `json:"risk"`
}

// Point is one sample of a risk curve.
type Point struct {
	TimeOffset float64 `json:"time_offset"`
	Risk       float64 `json:"risk"`
}

type sample struct {
	offset float64
	m      int
}

// samples derives the (time offset, advantage) sequence for a pivot block.
// Offsets are sampled at the creation times of subsequent pivot blocks. The
// advantage at sample j counts the pivot blocks appended on top of b by then
// (each is one unit of observed honest progress protecting b), capped by the
// subtree advantage recorded at b's fork point, which is the total honest
// lead the log ever observed there. The advantage is non-decreasing in time,
// so the risk curve is non-increasing; a block whose fork advantage is 0 is
// still contested at the end of the log and never confirms.
func samples(g *graph.Graph, b models.Hash) ([]sample, error) {
	i, ok := g.PivotIndex(b)
	if !ok {
		return nil, fmt.Errorf("block %s is not on the pivot chain", b)
	}
	if i == 0 {
		return nil, fmt.Errorf("confirmation risk is undefined for the genesis block")
	}

	adv := g.AdvantageSeries()
	forkAdv := adv[i-1]
	base := g.PivotBlock(i).Timestamp

	out := make([]sample, 0, len(adv)-i)
	offset := 0.0
	for j := i; j < len(adv); j++ {
		m := j - i + 1
		if m > forkAdv {
			m = forkAdv
		}
		if ts := g.PivotBlock(j).Timestamp; ts > base {
			if t := float64(ts - base); t > offset {
				offset = t
			}
		}
		out = append(out, sample{offset: offset, m: m})
	}
	return out, nil
}

// combinedRisk evaluates the two-stage model for honest advantage m and
// adversary fraction p. It returns the floored risk and the number of
// negative-binomial terms summed.
func combinedRisk(m int, p float64) (float64, int) {
	if m <= 0 || p >= 0.5 {
		return 1, 0
	}

	q := 1 - p
	ratio := p / q
	logP := math.Log(p)
	logQ := math.Log(q)
	lgM, _ := math.Lgamma(float64(m))

	// Summation cap guards pathological p near 0.5, where the mass target
	// converges slowly.
	maxTerms := 4*m + 1000

	risk := 0.0
	mass := 0.0
	k := 0
	for ; k < maxTerms; k++ {
		lgMK, _ := math.Lgamma(float64(m + k))
		lgK1, _ := math.Lgamma(float64(k + 1))
		prob := math.Exp(lgMK - lgK1 - lgM + float64(m)*logQ + float64(k)*logP)

		catch := 1.0
		if d := m - k; d > 0 {
			catch = math.Pow(ratio, float64(d))
		}
		risk += prob * catch
		mass += prob
		if mass >= 1-tailEps {
			break
		}
	}
	risk += 1 - mass

	if risk < riskFloor {
		risk = riskFloor
	}
	if risk > 1 {
		risk = 1
	}
	return risk, k + 1
}

func validate(adversary, threshold float64) error {
	if adversary <= 0 || adversary >= 1 {
		return fmt.Errorf("adversary fraction %v out of range (0, 1)", adversary)
	}
	if threshold <= 0 || threshold >= 1 {
		return fmt.Errorf("risk threshold %v out of range (0, 1)", threshold)
	}
	return nil
}

// ConfirmationRisk searches the sampled risk curve of a pivot block for the
// first time offset whose risk falls below threshold. The second result is
// false when no sampled offset satisfies the threshold; that is a normal
// outcome, not an error.
func ConfirmationRisk(g *graph.Graph, b models.Hash, adversary, threshold float64) (Result, bool, error) {
	if err := validate(adversary, threshold); err != nil {
		return Result{}, false, err
	}
	ss, err := samples(g, b)
	if err != nil {
		return Result{}, false, err
	}
	for _, s := range ss {
		r, terms := combinedRisk(s.m, adversary)
		if r < threshold {
			return Result{
				TimeOffset: s.offset,
				Advantage:  s.m,
				Terms:      terms,
				Risk:       r,
			}, true, nil
		}
	}
	return Result{}, false, nil
}

// ConfirmationRiskSeries returns the full (time offset, risk) curve for a
// pivot block with no threshold gating.
func ConfirmationRiskSeries(g *graph.Graph, b models.Hash, adversary float64) ([]Point, error) {
	if adversary <= 0 || adversary >= 1 {
		return nil, fmt.Errorf("adversary fraction %v out of range (0, 1)", adversary)
	}
	ss, err := samples(g, b)
	if err != nil {
		return nil, err
	}
	curve := make([]Point, len(ss))
	for i, s := range ss {
		r, _ := combinedRisk(s.m, adversary)
		curve[i] = Point{TimeOffset: s.offset, Risk: r}
	}
	return curve, nil
}

// AvgConfirmTime averages the confirmation time offset over all non-genesis
// pivot blocks, weighted by epoch size. Blocks that never reach the
// threshold are excluded from both numerator and denominator; the second
// result is the count of blocks that contributed.
func AvgConfirmTime(g *graph.Graph, adversary, threshold float64) (float64, int, error) {
	if err := validate(adversary, threshold); err != nil {
		return 0, 0, err
	}

	chain := g.PivotChain()
	weighted := 0.0
	weightSum := 0.0
	count := 0
	for i := 1; i < len(chain); i++ {
		res, ok, err := ConfirmationRisk(g, chain[i], adversary, threshold)
		if err != nil {
			return 0, 0, err
		}
		if !ok {
			continue
		}
		w := float64(g.PivotBlock(i).EpochSize)
		weighted += res.TimeOffset * w
		weightSum += w
		count++
	}
	if count == 0 {
		return 0, 0, nil
	}
	return weighted / weightSum, count, nil
}
