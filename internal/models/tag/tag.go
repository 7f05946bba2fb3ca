// Package tag implements the Tag pursuit problem (original_source's
// TagModel.cpp) as a solver.Model: a robot chases a moving opponent on a
// grid of walls and empty cells until it can TAG while sharing the
// opponent's cell. The robot observes its own position exactly and whether
// it currently sees the opponent; it never observes the opponent's
// position directly.
package tag

import (
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/CxyCH/tapir/internal/plannerconfig"
	"github.com/CxyCH/tapir/internal/solver"
)

// defaultMap is the single-corridor map used when no mapPath is configured
// (spec.md §8 scenario S1): a straight 1x5 corridor with no walls.
var defaultMap = []string{
	".....",
}

// GridPosition is a cell on the Tag map.
type GridPosition struct{ Row, Col int }

func (p GridPosition) distance(o GridPosition) int {
	d := p.Row - o.Row
	if d < 0 {
		d = -d
	}
	d2 := p.Col - o.Col
	if d2 < 0 {
		d2 = -d2
	}
	return d + d2
}

// Action codes, in TagModel.cpp's canonical order.
const (
	North int = iota
	East
	South
	West
	Tag
)

// Action is one of the five Tag actions (four moves plus the terminal tag
// attempt).
type Action int

func (a Action) Equals(other solver.Action) bool { o, ok := other.(Action); return ok && o == a }
func (a Action) Hash() uint64                    { return uint64(a) }
func (a Action) Code() int                       { return int(a) }
func (a Action) String() string {
	switch int(a) {
	case North:
		return "north"
	case East:
		return "east"
	case South:
		return "south"
	case West:
		return "west"
	case Tag:
		return "tag"
	default:
		return "unknown"
	}
}

// AllActions is every Tag action in canonical order.
var AllActions = []solver.EnumeratedAction{Action(North), Action(East), Action(South), Action(West), Action(Tag)}

// State is the robot's cell code, the opponent's cell code, and whether the
// opponent has been tagged.
type State struct {
	RobotCode    int
	OpponentCode int
	Tagged       bool
}

func (s State) Equals(other solver.State) bool {
	o, ok := other.(State)
	return ok && o == s
}

func (s State) Hash() uint64 {
	h := uint64(s.RobotCode)*1000003 + uint64(s.OpponentCode)*17
	if s.Tagged {
		h++
	}
	return h
}

func (s State) DistanceTo(other solver.State) float64 {
	o := other.(State)
	d := 0.0
	if s.RobotCode != o.RobotCode {
		d++
	}
	if s.OpponentCode != o.OpponentCode {
		d++
	}
	if s.Tagged != o.Tagged {
		d++
	}
	return d
}

func (s State) Vector() []float64 {
	tagged := 0.0
	if s.Tagged {
		tagged = 1.0
	}
	return []float64{float64(s.RobotCode), float64(s.OpponentCode), tagged}
}

func (s State) String() string {
	return fmt.Sprintf("robot=%d opponent=%d tagged=%v", s.RobotCode, s.OpponentCode, s.Tagged)
}

// Observation is the robot's own cell and whether it currently sees the
// opponent (shares its cell).
type Observation struct {
	RobotCode int
	Seen      bool
}

func (o Observation) Equals(other solver.Observation) bool {
	v, ok := other.(Observation)
	return ok && v == o
}

func (o Observation) Hash() uint64 {
	h := uint64(o.RobotCode) * 2
	if o.Seen {
		h++
	}
	return h
}

func (o Observation) String() string { return fmt.Sprintf("robot=%d seen=%v", o.RobotCode, o.Seen) }

// Model is the Tag POMDP (spec.md §3.4).
type Model struct {
	rows, cols int
	wall       [][]bool
	emptyCells []GridPosition
	codeOf     map[GridPosition]int

	discount                float64
	moveCost                float64
	tagReward               float64
	failedTagPenalty        float64
	opponentStayProbability float64

	ucbExploreCoefficient       float64
	heuristicExploreCoefficient float64
	maxTrials                   int64
	maxDepth                    int64
	maxNnComparisons            int64
	maxNnDistance               float64
	nParticles                  int64

	rng *solver.RandomGenerator
}

// New constructs a Tag Model from cfg, loading the map at cfg.MapPath if
// set, else defaultMap. rng is the solver's single deterministic source;
// the Model must never construct its own.
func New(cfg *plannerconfig.PlannerConfig, rng *solver.RandomGenerator) (*Model, error) {
	lines := defaultMap
	if cfg.MapPath != nil && *cfg.MapPath != "" {
		parsed, err := loadMap(*cfg.MapPath)
		if err != nil {
			return nil, err
		}
		lines = parsed
	}

	m := &Model{
		discount:                *cfg.Discount,
		moveCost:                0.2,
		tagReward:               10,
		failedTagPenalty:        10,
		opponentStayProbability: 0.2,

		ucbExploreCoefficient:       *cfg.UcbExploreCoefficient,
		heuristicExploreCoefficient: *cfg.HeuristicExploreCoefficient,
		maxTrials:                   *cfg.MaxTrials,
		maxDepth:                    *cfg.MaxDepth,
		maxNnComparisons:            *cfg.MaxNnComparisons,
		maxNnDistance:               *cfg.MaxNnDistance,
		nParticles:                  int64(*cfg.NParticles),
		rng:                         rng,
	}
	m.buildGrid(lines)
	return m, nil
}

func loadMap(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("configuration error: reading tag map %s: %w", path, err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) == 0 {
		return nil, fmt.Errorf("configuration error: tag map %s is empty", path)
	}
	return lines, nil
}

func (m *Model) buildGrid(lines []string) {
	m.rows = len(lines)
	m.cols = len(lines[0])
	m.wall = make([][]bool, m.rows)
	m.codeOf = make(map[GridPosition]int)
	for r, line := range lines {
		m.wall[r] = make([]bool, m.cols)
		for c := 0; c < m.cols && c < len(line); c++ {
			if line[c] == 'X' {
				m.wall[r][c] = true
				continue
			}
			p := GridPosition{Row: r, Col: c}
			m.codeOf[p] = len(m.emptyCells)
			m.emptyCells = append(m.emptyCells, p)
		}
	}
}

func (m *Model) decode(code int) GridPosition { return m.emptyCells[code] }

func (m *Model) isValid(p GridPosition) bool {
	if p.Row < 0 || p.Row >= m.rows || p.Col < 0 || p.Col >= m.cols {
		return false
	}
	return !m.wall[p.Row][p.Col]
}

func move(p GridPosition, a int) GridPosition {
	switch a {
	case North:
		p.Row--
	case East:
		p.Col++
	case South:
		p.Row++
	case West:
		p.Col--
	}
	return p
}

// POMDP parameters.

func (m *Model) DiscountFactor() float64 { return m.discount }
func (m *Model) MaxVal() float64         { return m.tagReward }
func (m *Model) MinVal() float64         { return -m.failedTagPenalty / (1 - m.discount) }

// Search parameters.

func (m *Model) UcbExploreCoefficient() float64       { return m.ucbExploreCoefficient }
func (m *Model) HeuristicExploreCoefficient() float64 { return m.heuristicExploreCoefficient }
func (m *Model) MaxTrials() int64                     { return m.maxTrials }
func (m *Model) MaxDepth() int64                      { return m.maxDepth }
func (m *Model) MaxNnComparisons() int64               { return m.maxNnComparisons }
func (m *Model) MaxNnDistance() float64                { return m.maxNnDistance }
func (m *Model) NParticles() int64                     { return m.nParticles }

func (m *Model) SampleAnInitState() solver.State {
	return State{
		RobotCode:    m.rng.Intn(len(m.emptyCells)),
		OpponentCode: m.rng.Intn(len(m.emptyCells)),
	}
}

// opponentMoveCandidates returns the two axis-biased moves TagModel.cpp's
// makeOpponentActions uses to bias the opponent away from the robot.
func opponentMoveCandidates(robot, opponent GridPosition) []int {
	var actions []int
	switch {
	case robot.Row > opponent.Row:
		actions = append(actions, North, North)
	case robot.Row < opponent.Row:
		actions = append(actions, South, South)
	default:
		actions = append(actions, North, South)
	}
	switch {
	case robot.Col > opponent.Col:
		actions = append(actions, West, West)
	case robot.Col < opponent.Col:
		actions = append(actions, East, East)
	default:
		actions = append(actions, East, West)
	}
	return actions
}

func (m *Model) moveOpponent(robot, opponent GridPosition) GridPosition {
	if m.rng.Float64() < m.opponentStayProbability {
		return opponent
	}
	candidates := opponentMoveCandidates(robot, opponent)
	next := move(opponent, candidates[m.rng.Intn(len(candidates))])
	if m.isValid(next) {
		return next
	}
	return opponent
}

func (m *Model) GenerateStep(state solver.State, action solver.Action) solver.StepResult {
	s := state.(State)
	a := action.(Action)

	if s.Tagged {
		return solver.StepResult{Action: action, NextState: s, Observation: Observation{RobotCode: s.RobotCode, Seen: true}, Reward: 0, IsTerminal: true}
	}

	robot := m.decode(s.RobotCode)
	opponent := m.decode(s.OpponentCode)
	sameCell := robot == opponent

	var reward float64
	if int(a) == Tag {
		if sameCell {
			reward = m.tagReward
		} else {
			reward = -m.failedTagPenalty
		}
	} else {
		reward = -m.moveCost
	}

	next := s
	if int(a) == Tag && sameCell {
		next.Tagged = true
		return solver.StepResult{Action: action, NextState: next, Observation: Observation{RobotCode: next.RobotCode, Seen: true}, Reward: reward, IsTerminal: true}
	}

	newOpponent := m.moveOpponent(robot, opponent)
	next.OpponentCode = m.codeOf[newOpponent]

	newRobot := move(robot, int(a))
	if m.isValid(newRobot) {
		next.RobotCode = m.codeOf[newRobot]
	}

	seen := next.RobotCode == next.OpponentCode
	return solver.StepResult{
		Action:      action,
		NextState:   next,
		Observation: Observation{RobotCode: next.RobotCode, Seen: seen},
		Reward:      reward,
		IsTerminal:  false,
	}
}

// GetHeuristicValue replicates TagModel::solveHeuristic: the expected
// return from chasing directly to the opponent's last known cell and
// tagging, under the opponent's stay probability.
func (m *Model) GetHeuristicValue(state solver.State) float64 {
	s := state.(State)
	if s.Tagged {
		return 0
	}
	dist := float64(m.decode(s.RobotCode).distance(m.decode(s.OpponentCode)))
	nSteps := dist / m.opponentStayProbability
	finalDiscount := math.Pow(m.discount, nSteps)
	val := -m.moveCost * (1 - finalDiscount) / (1 - m.discount)
	val += finalDiscount * m.tagReward
	return val
}

// particleConsistentWithObservation is the acceptance test a forward-
// simulated particle must pass to remain in the filter for a given
// observation, replacing TagModel::getStatesSeeObs's closed-form weighted
// enumeration with rejection sampling: simulate forward from a prior
// particle and keep it only if it would have produced this observation.
func particleConsistentWithObservation(next State, obs Observation) bool {
	return next.RobotCode == obs.RobotCode && (next.RobotCode == next.OpponentCode) == obs.Seen
}

// GenerateParticles resamples particles for a belief node reached by
// (action, obs) via rejection sampling against the prior particles: each
// prior particle is advanced one step and kept only if it reproduces obs.
// This stands in for TagModel::getStatesSeeObs's direct weighted
// enumeration — simpler to implement generically and statistically
// equivalent for Tag's finite, ergodic opponent-motion model.
func (m *Model) GenerateParticles(node *solver.BeliefNode, action solver.Action, rawObs solver.Observation, priorParticles []solver.State) []solver.State {
	target := rawObs.(Observation)
	var out []solver.State
	const maxAttempts = 2000
	attempts := 0
	for len(out) < len(priorParticles) && attempts < maxAttempts {
		attempts++
		prior := priorParticles[m.rng.Intn(len(priorParticles))].(State)
		step := m.GenerateStep(prior, action)
		next := step.NextState.(State)
		if particleConsistentWithObservation(next, target) {
			out = append(out, next)
		}
	}
	return out
}

func (m *Model) GenerateParticlesUninformed(node *solver.BeliefNode, action solver.Action, rawObs solver.Observation) []solver.State {
	target := rawObs.(Observation)
	out := make([]solver.State, 0, m.nParticles)
	const maxAttempts = 5000
	attempts := 0
	for int64(len(out)) < m.nParticles && attempts < maxAttempts {
		attempts++
		robot := m.decode(target.RobotCode)
		opponent := robot
		if !target.Seen {
			opponent = m.emptyCells[m.rng.Intn(len(m.emptyCells))]
		}
		candidate := State{RobotCode: m.codeOf[robot], OpponentCode: m.codeOf[opponent]}
		seen := candidate.RobotCode == candidate.OpponentCode
		if seen == target.Seen {
			out = append(out, candidate)
		}
	}
	return out
}

func (m *Model) CreateActionPool() solver.ActionPool {
	return solver.NewEnumeratedActionPool(func(*solver.BeliefNode) []solver.EnumeratedAction {
		return AllActions
	})
}

func (m *Model) CreateObservationPool() solver.ObservationPool { return observationPool{} }

type observationPool struct{}

func (observationPool) CreateObservationMapping(*solver.BeliefNode, solver.Action) solver.ObservationMapping {
	return solver.NewEnumeratedObservationMapping()
}

// CreateStateIndex returns nil: Tag's state space is small and discrete
// enough that nearest-neighbor policy transplant is not worth a spatial
// index; MaxNnComparisons is expected to be configured to 0 for this Model.
func (m *Model) CreateStateIndex() solver.StateIndex { return nil }

// CreateHistoryCorrector returns nil: Tag never registers a change file, so
// incremental repair is never exercised.
func (m *Model) CreateHistoryCorrector() solver.HistoryCorrector { return nil }

func (m *Model) LoadChanges(string) ([]int64, error) { return nil, nil }
func (m *Model) Update(int64, *solver.StatePool) error { return nil }

func (m *Model) Codec() solver.Codec { return codec{} }
