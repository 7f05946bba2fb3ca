package solver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chainState/chainAction/chainObs model a trivial two-state chain: from
// state 0, chainForward moves to the terminal state 1 and pays a reward of
// 1; chainStay stays at 0 and pays 0. It exists only to exercise the core
// search/backup/agent machinery end to end without any of the full example
// Models' domain complexity.

type chainState int

func (s chainState) Equals(other State) bool { o, ok := other.(chainState); return ok && o == s }
func (s chainState) Hash() uint64            { return uint64(s) }
func (s chainState) DistanceTo(other State) float64 {
	o := other.(chainState)
	d := float64(s - o)
	if d < 0 {
		d = -d
	}
	return d
}
func (s chainState) Vector() []float64 { return []float64{float64(s)} }
func (s chainState) String() string    { return "" }

const (
	chainStay    testAction = 0
	chainForward testAction = 1
)

type chainObs chainState

func (o chainObs) Equals(other Observation) bool { v, ok := other.(chainObs); return ok && v == o }
func (o chainObs) Hash() uint64                  { return uint64(o) }
func (o chainObs) String() string                { return "" }

type chainModel struct{}

func (chainModel) DiscountFactor() float64              { return 0.95 }
func (chainModel) MaxVal() float64                      { return 1 }
func (chainModel) MinVal() float64                      { return 0 }
func (chainModel) UcbExploreCoefficient() float64       { return 2.0 }
func (chainModel) HeuristicExploreCoefficient() float64 { return 0 }
func (chainModel) MaxTrials() int64                     { return 300 }
func (chainModel) MaxDepth() int64                      { return 4 }
func (chainModel) MaxNnComparisons() int64              { return 0 }
func (chainModel) MaxNnDistance() float64               { return 0 }
func (chainModel) NParticles() int64                    { return 20 }

func (chainModel) SampleAnInitState() State { return chainState(0) }

func (chainModel) GenerateStep(state State, action Action) StepResult {
	pos := state.(chainState)
	act := action.(testAction)
	if pos == 1 {
		return StepResult{Action: action, NextState: pos, Observation: chainObs(pos), Reward: 0, IsTerminal: true}
	}
	if act == chainForward {
		return StepResult{Action: action, NextState: chainState(1), Observation: chainObs(1), Reward: 1, IsTerminal: true}
	}
	return StepResult{Action: action, NextState: chainState(0), Observation: chainObs(0), Reward: 0, IsTerminal: false}
}

func (chainModel) GetHeuristicValue(State) float64 { return 0 }

func (chainModel) GenerateParticles(_ *BeliefNode, _ Action, obs Observation, _ []State) []State {
	o := obs.(chainObs)
	out := make([]State, 20)
	for i := range out {
		out[i] = chainState(o)
	}
	return out
}

func (m chainModel) GenerateParticlesUninformed(node *BeliefNode, action Action, obs Observation) []State {
	return m.GenerateParticles(node, action, obs, nil)
}

func (chainModel) CreateActionPool() ActionPool {
	return NewEnumeratedActionPool(func(*BeliefNode) []EnumeratedAction {
		return []EnumeratedAction{chainStay, chainForward}
	})
}
func (chainModel) CreateObservationPool() ObservationPool   { return enumObsPool{} }
func (chainModel) CreateStateIndex() StateIndex              { return nil }
func (chainModel) CreateHistoryCorrector() HistoryCorrector  { return nil }
func (chainModel) LoadChanges(string) ([]int64, error)       { return nil, nil }
func (chainModel) Update(int64, *StatePool) error            { return nil }
func (chainModel) Codec() Codec                              { return nil }

func newChainSolver(t *testing.T) *Solver {
	t.Helper()
	s := NewSolver(chainModel{}, 7)
	require.NoError(t, s.Initialize())
	return s
}

func TestSolverInitializeSeedsRootParticles(t *testing.T) {
	s := newChainSolver(t)
	assert.Equal(t, 20, s.RootNode().NParticles())
}

func TestImproveConvergesOnTheHigherValueAction(t *testing.T) {
	s := newChainSolver(t)
	require.NoError(t, s.Improve())

	action, ok := s.RootNode().RecommendedAction()
	require.True(t, ok)
	assert.Equal(t, chainForward, action, "forward pays a terminal reward of 1 versus 0 for staying")
}

func TestAgentUpdateBeliefAdvancesRootAndReplenishesParticles(t *testing.T) {
	s := newChainSolver(t)
	require.NoError(t, s.Improve())
	agent := NewAgent(s)

	action, err := agent.RecommendAction()
	require.NoError(t, err)

	child, err := agent.UpdateBelief(action, chainObs(1))
	require.NoError(t, err)

	assert.Same(t, child, s.Tree().Root())
	assert.Greater(t, child.NParticles(), 0)
}

func TestSimulationLoopRunsToTermination(t *testing.T) {
	s := newChainSolver(t)
	loop, err := NewSimulationLoop(s, "")
	require.NoError(t, err)

	result, err := loop.Run(10)
	require.NoError(t, err)
	assert.True(t, result.Terminated)
	assert.NotEmpty(t, result.Steps)
}
