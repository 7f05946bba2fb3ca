// Package rocksample implements RockSample(n, k) (original_source's
// LegalActionsPool.cpp names the problem without carrying the model source
// itself): a rover on an n×n grid must sample k rocks, some good and some
// bad, knowing only their positions and a noisy long-range sensor reading,
// then exit off the grid's east edge. It is the example Model that
// exercises the solver's discretized-action legality pool (spec.md §4.2,
// "Discretized actions with legality pool").
package rocksample

import (
	"fmt"
	"math"

	"github.com/CxyCH/tapir/internal/plannerconfig"
	"github.com/CxyCH/tapir/internal/solver"
)

// GridPosition is a cell on the RockSample grid. Col == n marks the rover as
// having exited east of the map.
type GridPosition struct{ Row, Col int }

func (p GridPosition) chebyshev(o GridPosition) int {
	dr := p.Row - o.Row
	if dr < 0 {
		dr = -dr
	}
	dc := p.Col - o.Col
	if dc < 0 {
		dc = -dc
	}
	if dr > dc {
		return dr
	}
	return dc
}

// Action codes: four moves, a sample, then one check action per rock.
const (
	North int = iota
	South
	East
	West
	Sample
	checkBase
)

// Action is a RockSample action: a fixed move/sample code, or checkBase+i
// for "check rock i".
type Action int

func (a Action) Equals(other solver.Action) bool { o, ok := other.(Action); return ok && o == a }
func (a Action) Hash() uint64                    { return uint64(a) }
func (a Action) Code() int                       { return int(a) }

func (a Action) String() string {
	switch int(a) {
	case North:
		return "north"
	case South:
		return "south"
	case East:
		return "east"
	case West:
		return "west"
	case Sample:
		return "sample"
	default:
		return fmt.Sprintf("check%d", int(a)-checkBase)
	}
}

// CheckAction returns the action that checks rock i.
func CheckAction(i int) Action { return Action(checkBase + i) }

// IsCheck reports whether a is a check action, and if so which rock.
func (a Action) IsCheck() (int, bool) {
	if int(a) < checkBase {
		return 0, false
	}
	return int(a) - checkBase, true
}

// Observation is the outcome of a Check action (Good/Bad), or None for
// every other action.
type Observation int

const (
	None Observation = iota
	Good
	Bad
)

func (o Observation) Equals(other solver.Observation) bool {
	v, ok := other.(Observation)
	return ok && v == o
}
func (o Observation) Hash() uint64 { return uint64(o) }
func (o Observation) String() string {
	switch o {
	case Good:
		return "good"
	case Bad:
		return "bad"
	default:
		return "none"
	}
}

// State is the rover's position, which rocks are good (bit i set means rock
// i is good), and whether the episode has ended by exiting the grid.
type State struct {
	Rover    GridPosition
	RockGood uint64
	Done     bool
}

func (s State) Equals(other solver.State) bool {
	o, ok := other.(State)
	return ok && o == s
}

func (s State) Hash() uint64 {
	h := uint64(s.Rover.Row)*1000003 + uint64(s.Rover.Col)*31 + s.RockGood*17
	if s.Done {
		h++
	}
	return h
}

func (s State) DistanceTo(other solver.State) float64 {
	o := other.(State)
	d := float64(s.Rover.chebyshev(o.Rover))
	d += float64(popcount(s.RockGood ^ o.RockGood))
	if s.Done != o.Done {
		d++
	}
	return d
}

func (s State) Vector() []float64 {
	return []float64{float64(s.Rover.Row), float64(s.Rover.Col), float64(s.RockGood)}
}

func (s State) String() string {
	return fmt.Sprintf("rover=(%d,%d) rockGood=%b done=%v", s.Rover.Row, s.Rover.Col, s.RockGood, s.Done)
}

func popcount(x uint64) int {
	n := 0
	for x != 0 {
		n++
		x &= x - 1
	}
	return n
}

// Model is the RockSample(n, k) POMDP (spec.md §3.4).
type Model struct {
	n, k  int
	rocks []GridPosition

	discount        float64
	sampleGoodValue float64
	sampleBadValue  float64
	exitValue       float64
	halfEfficiency  float64

	ucbExploreCoefficient       float64
	heuristicExploreCoefficient float64
	maxTrials                   int64
	maxDepth                    int64
	maxNnComparisons            int64
	maxNnDistance               float64
	nParticles                  int64

	rng *solver.RandomGenerator

	pool *solver.LegalActionsPool
	// lastPosition tracks the rover position of the most recently generated
	// transition, filled in by GenerateStep immediately before the solver
	// creates the belief node that transition lands on. This stands in for
	// the per-node HistoricalData the original kept on every belief node;
	// this port's BeliefNode carries no Model-supplied data slot, so the
	// legality pool's position key is recovered from whichever transition is
	// synchronously in flight when a node is created (search.go always calls
	// GenerateStep immediately before BeliefTree.CreateOrGetChild, on the
	// same goroutine, once per node).
	lastPosition GridPosition
}

// New constructs a RockSample(7, 8) Model from cfg, matching spec.md §8
// scenario S2's configuration. The grid size and rock count are fixed by
// this constructor rather than cfg, since spec.md never exposes them as
// planner options.
func New(cfg *plannerconfig.PlannerConfig, rng *solver.RandomGenerator) (*Model, error) {
	const n, k = 7, 8
	m := &Model{
		n:    n,
		k:    k,
		rocks: defaultRockLayout(n, k),

		discount:        *cfg.Discount,
		sampleGoodValue: 10,
		sampleBadValue:  10,
		exitValue:       10,
		halfEfficiency:  20,

		ucbExploreCoefficient:       *cfg.UcbExploreCoefficient,
		heuristicExploreCoefficient: *cfg.HeuristicExploreCoefficient,
		maxTrials:                   *cfg.MaxTrials,
		maxDepth:                    *cfg.MaxDepth,
		maxNnComparisons:            *cfg.MaxNnComparisons,
		maxNnDistance:               *cfg.MaxNnDistance,
		nParticles:                  int64(*cfg.NParticles),
		rng:                         rng,
	}
	m.lastPosition = GridPosition{Row: n / 2, Col: 0}
	return m, nil
}

// defaultRockLayout spreads k rocks deterministically across the n×n grid's
// interior columns, independent of the belief-sampling rng: map geometry is
// fixed at construction, the way Tag's map is loaded once from a file.
func defaultRockLayout(n, k int) []GridPosition {
	rocks := make([]GridPosition, 0, k)
	for i := 0; i < k; i++ {
		row := i % n
		col := 1 + (i*(n-1))/k
		if col >= n {
			col = n - 1
		}
		rocks = append(rocks, GridPosition{Row: row, Col: col})
	}
	return rocks
}

func (m *Model) rockAt(p GridPosition) (int, bool) {
	for i, r := range m.rocks {
		if r == p {
			return i, true
		}
	}
	return 0, false
}

func (m *Model) isEdgeIllegal(p GridPosition, a Action) bool {
	switch int(a) {
	case North:
		return p.Row == 0
	case South:
		return p.Row == m.n-1
	case West:
		return p.Col == 0
	default:
		return false
	}
}

// POMDP parameters.

func (m *Model) DiscountFactor() float64 { return m.discount }
func (m *Model) MaxVal() float64         { return m.exitValue + m.sampleGoodValue }
func (m *Model) MinVal() float64         { return -m.sampleBadValue / (1 - m.discount) }

// Search parameters.

func (m *Model) UcbExploreCoefficient() float64       { return m.ucbExploreCoefficient }
func (m *Model) HeuristicExploreCoefficient() float64 { return m.heuristicExploreCoefficient }
func (m *Model) MaxTrials() int64                     { return m.maxTrials }
func (m *Model) MaxDepth() int64                      { return m.maxDepth }
func (m *Model) MaxNnComparisons() int64              { return m.maxNnComparisons }
func (m *Model) MaxNnDistance() float64               { return m.maxNnDistance }
func (m *Model) NParticles() int64                    { return m.nParticles }

func (m *Model) SampleAnInitState() solver.State {
	var good uint64
	for i := 0; i < m.k; i++ {
		if m.rng.Float64() < 0.5 {
			good |= 1 << uint(i)
		}
	}
	return State{Rover: GridPosition{Row: m.n / 2, Col: 0}, RockGood: good}
}

func (m *Model) move(p GridPosition, a Action) GridPosition {
	switch int(a) {
	case North:
		p.Row--
	case South:
		p.Row++
	case East:
		p.Col++
	case West:
		p.Col--
	}
	return p
}

func (m *Model) sensorCorrectProbability(rover, rock GridPosition) float64 {
	d := float64(rover.chebyshev(rock))
	return 0.5 * (1 + math.Pow(2, -d/m.halfEfficiency))
}

func (m *Model) GenerateStep(state solver.State, action solver.Action) solver.StepResult {
	s := state.(State)
	a := action.(Action)

	if s.Done {
		return solver.StepResult{Action: action, NextState: s, Observation: None, Reward: 0, IsTerminal: true}
	}

	next := s
	var reward float64
	obs := solver.Observation(None)

	if rockIdx, isCheck := a.IsCheck(); isCheck {
		good := s.RockGood&(1<<uint(rockIdx)) != 0
		correct := m.rng.Float64() < m.sensorCorrectProbability(s.Rover, m.rocks[rockIdx])
		seenGood := good == correct
		if seenGood {
			obs = Good
		} else {
			obs = Bad
		}
	} else if int(a) == Sample {
		if rockIdx, ok := m.rockAt(s.Rover); ok {
			if s.RockGood&(1<<uint(rockIdx)) != 0 {
				reward = m.sampleGoodValue
			} else {
				reward = -m.sampleBadValue
			}
		} else {
			reward = -m.sampleBadValue
		}
	} else {
		if m.isEdgeIllegal(s.Rover, a) {
			// Defensive: the legality pool should have already excluded this
			// action from search. Treat it as a no-op rather than moving off
			// the grid's non-exit edges.
		} else if int(a) == East && s.Rover.Col == m.n-1 {
			next.Done = true
			reward = m.exitValue
			m.lastPosition = next.Rover
			return solver.StepResult{Action: action, NextState: next, Observation: None, Reward: reward, IsTerminal: true}
		} else {
			next.Rover = m.move(s.Rover, a)
		}
	}

	m.lastPosition = next.Rover
	return solver.StepResult{Action: action, NextState: next, Observation: obs, Reward: reward, IsTerminal: false}
}

// GetHeuristicValue sums, for every rock that is good in the given state,
// the sample value discounted by the rover's Chebyshev distance to that rock,
// plus the exit value discounted by the number of columns to the east edge.
// It reads the state's own rock bits, not a belief, and does not model the
// order of visits — a coarse stand-in for the original's more careful
// legal-action-weighted heuristic.
func (m *Model) GetHeuristicValue(state solver.State) float64 {
	s := state.(State)
	if s.Done {
		return 0
	}
	value := 0.0
	pos := s.Rover
	for i := 0; i < m.k; i++ {
		if s.RockGood&(1<<uint(i)) == 0 {
			continue
		}
		d := pos.chebyshev(m.rocks[i])
		value += math.Pow(m.discount, float64(d)) * m.sampleGoodValue
	}
	exitDist := m.n - pos.Col
	value += math.Pow(m.discount, float64(exitDist)) * m.exitValue
	return value
}

func (m *Model) lastKnownRover(prior State, a Action) GridPosition {
	if int(a) == East && prior.Rover.Col == m.n-1 {
		return prior.Rover
	}
	if m.isEdgeIllegal(prior.Rover, a) {
		return prior.Rover
	}
	if _, isCheck := a.IsCheck(); isCheck || int(a) == Sample {
		return prior.Rover
	}
	return m.move(prior.Rover, a)
}

// GenerateParticles resamples by forward-simulating each prior particle one
// step and keeping it if the simulated transition reproduces obs, the same
// rejection-sampling technique used across every example Model in this
// repository in place of a closed-form observation-likelihood enumeration.
func (m *Model) GenerateParticles(node *solver.BeliefNode, action solver.Action, obs solver.Observation, priorParticles []solver.State) []solver.State {
	a := action.(Action)
	var out []solver.State
	const maxAttempts = 2000
	attempts := 0
	for len(out) < len(priorParticles) && attempts < maxAttempts {
		attempts++
		prior := priorParticles[m.rng.Intn(len(priorParticles))].(State)
		step := m.GenerateStep(prior, a)
		next := step.NextState.(State)
		if step.Observation.Equals(obs) {
			out = append(out, next)
		}
	}
	return out
}

func (m *Model) GenerateParticlesUninformed(node *solver.BeliefNode, action solver.Action, obs solver.Observation) []solver.State {
	a := action.(Action)
	out := make([]solver.State, 0, m.nParticles)
	const maxAttempts = 5000
	attempts := 0
	for int64(len(out)) < m.nParticles && attempts < maxAttempts {
		attempts++
		var good uint64
		for i := 0; i < m.k; i++ {
			if m.rng.Float64() < 0.5 {
				good |= 1 << uint(i)
			}
		}
		candidate := State{Rover: m.lastPosition, RockGood: good}
		step := m.GenerateStep(State{Rover: m.lastKnownRover(candidate, a), RockGood: good}, a)
		if step.Observation.Equals(obs) {
			out = append(out, candidate)
		}
	}
	return out
}

func (m *Model) allActions() []solver.EnumeratedAction {
	actions := make([]solver.EnumeratedAction, 0, checkBase+m.k)
	actions = append(actions, Action(North), Action(South), Action(East), Action(West), Action(Sample))
	for i := 0; i < m.k; i++ {
		actions = append(actions, CheckAction(i))
	}
	return actions
}

// CreateActionPool builds the legality pool keyed by rover position
// (spec.md §4.2, "Discretized actions with legality pool") and seeds every
// position's North/South/West legality from the grid's fixed boundaries, the
// way RockSampleModel's PositionData.generateLegalActions does, before any
// belief node exists to be affected by the change.
func (m *Model) CreateActionPool() solver.ActionPool {
	pool := solver.NewLegalActionsPool(
		func(node *solver.BeliefNode) any { return m.lastPosition },
		func(node *solver.BeliefNode) []solver.EnumeratedAction { return m.allActions() },
	)
	for row := 0; row < m.n; row++ {
		for col := 0; col < m.n; col++ {
			p := GridPosition{Row: row, Col: col}
			for _, a := range []Action{Action(North), Action(South), Action(West)} {
				if m.isEdgeIllegal(p, a) {
					pool.SetLegal(p, a, false, nil)
				}
			}
		}
	}
	m.pool = pool
	return pool
}

func (m *Model) CreateObservationPool() solver.ObservationPool { return observationPool{} }

type observationPool struct{}

func (observationPool) CreateObservationMapping(*solver.BeliefNode, solver.Action) solver.ObservationMapping {
	return solver.NewEnumeratedObservationMapping()
}

// CreateStateIndex returns nil: with k ≤ 8 rocks RockSample's state space is
// small enough that policy-transplant nearest-neighbor search is not worth a
// spatial index; configure MaxNnComparisons to 0 for this Model.
func (m *Model) CreateStateIndex() solver.StateIndex { return nil }

// CreateHistoryCorrector returns nil: this Model never registers a change
// file, so incremental repair is never exercised (spec.md §8 scenario S2,
// "no changes").
func (m *Model) CreateHistoryCorrector() solver.HistoryCorrector { return nil }

func (m *Model) LoadChanges(string) ([]int64, error)   { return nil, nil }
func (m *Model) Update(int64, *solver.StatePool) error { return nil }

func (m *Model) Codec() solver.Codec { return codec{} }
