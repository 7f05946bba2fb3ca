package solver

import "math"

// RolloutMode selects which policy a rollout uses to extend a trajectory
// past the belief tree's frontier (spec.md §4.6, C6).
type RolloutMode int

const (
	// ModeRandHeuristic takes no further step past the frontier: the tail
	// value is the Model's heuristic value of the state reached.
	ModeRandHeuristic RolloutMode = iota
	// ModePolicyTransplant rolls out by borrowing the action recommended at
	// the nearest existing belief node, falling back to RandHeuristic when
	// no usable neighbor, child, or particle can be found.
	ModePolicyTransplant
)

func (m RolloutMode) String() string {
	if m == ModePolicyTransplant {
		return "policy-transplant"
	}
	return "rand-heuristic"
}

// RolloutCoordinator adaptively mixes the two rollout modes, shifting
// probability mass toward whichever mode has lately produced more value
// per unit of cost. Cost is counted in belief-tree clock ticks, not
// wall-clock time. It exposes exactly two entry points
// (spec.md §9): ChooseMode to sample a mode, and Notify to report back the
// outcome of using it.
type RolloutCoordinator struct {
	rng *RandomGenerator

	p        [2]float64
	w        [2]float64
	useCount [2]int64
	timeUsed [2]float64
}

// NewRolloutCoordinator constructs a coordinator seeded to an even 50/50
// mixture, drawing from rng for mode selection.
func NewRolloutCoordinator(rng *RandomGenerator) *RolloutCoordinator {
	return &RolloutCoordinator{
		rng:      rng,
		p:        [2]float64{0.5, 0.5},
		w:        [2]float64{1, 1},
		useCount: [2]int64{1, 1},
		timeUsed: [2]float64{1.0, 1.0},
	}
}

// ChooseMode samples a rollout mode according to the current mixture
// weights.
func (c *RolloutCoordinator) ChooseMode() RolloutMode {
	if c.rng.Float64() < c.p[ModeRandHeuristic] {
		return ModeRandHeuristic
	}
	return ModePolicyTransplant
}

// Notify reports the outcome of a trial that used mode: delta is the
// resulting improvement in the root's best mean Q-value (negative values are
// clamped to zero), alpha is the Model's HeuristicExploreCoefficient, vMax
// is the Model's MaxVal, and timeSpent is the number of belief-tree clock
// ticks the rollout took. The
// mixture weights shift multiplicatively toward whichever mode has lately
// produced more root-value improvement per unit of probability mass, then
// renormalize to probabilities (spec.md §4.6):
//
//	w[m]  *= exp( alpha * (delta / vMax) / (2 * p[m]) )
//	p'[m] = ((1-alpha) * w[m]/sum(w) + alpha/2) * useCount[m] / timeUsed[m]
//	p[m]  = p'[m] / sum(p')
func (c *RolloutCoordinator) Notify(mode RolloutMode, delta, alpha, vMax, timeSpent float64) {
	if delta < 0 {
		delta = 0
	}
	c.useCount[mode]++
	if timeSpent <= 0 {
		timeSpent = 1e-6
	}
	c.timeUsed[mode] += timeSpent

	c.w[mode] *= math.Exp(alpha * (delta / vMax) / (2 * c.p[mode]))

	wSum := c.w[0] + c.w[1]
	var pPrime [2]float64
	var pSum float64
	for i := range pPrime {
		pPrime[i] = ((1-alpha)*c.w[i]/wSum + alpha/2) * float64(c.useCount[i]) / c.timeUsed[i]
		pSum += pPrime[i]
	}
	if pSum <= 0 || math.IsNaN(pSum) || math.IsInf(pSum, 0) {
		c.p[0], c.p[1] = 0.5, 0.5
		return
	}
	c.p[0] = pPrime[0] / pSum
	c.p[1] = pPrime[1] / pSum
}

// Probabilities returns the current mixture probabilities, for diagnostics
// and tests.
func (c *RolloutCoordinator) Probabilities() (pRandHeuristic, pPolicyTransplant float64) {
	return c.p[ModeRandHeuristic], c.p[ModePolicyTransplant]
}

// UseCounts returns how many times each mode has been chosen.
func (c *RolloutCoordinator) UseCounts() (randHeuristic, policyTransplant int64) {
	return c.useCount[ModeRandHeuristic], c.useCount[ModePolicyTransplant]
}
