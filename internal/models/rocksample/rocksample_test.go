package rocksample

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CxyCH/tapir/internal/plannerconfig"
	"github.com/CxyCH/tapir/internal/solver"
)

func newTestModel(t *testing.T) *Model {
	t.Helper()
	cfg := plannerconfig.DefaultPlannerConfig()
	m, err := New(cfg, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	return m
}

func TestDefaultRockLayoutPlacesAllRocksInBounds(t *testing.T) {
	m := newTestModel(t)
	require.Len(t, m.rocks, m.k)
	for _, r := range m.rocks {
		assert.True(t, r.Row >= 0 && r.Row < m.n)
		assert.True(t, r.Col >= 0 && r.Col < m.n)
	}
}

func TestGenerateStepSamplingGoodRockPaysOff(t *testing.T) {
	m := newTestModel(t)
	rockIdx, pos := 0, m.rocks[0]
	state := State{Rover: pos, RockGood: 1 << uint(rockIdx)}

	step := m.GenerateStep(state, Action(Sample))
	assert.Equal(t, m.sampleGoodValue, step.Reward)
	assert.False(t, step.IsTerminal)
}

func TestGenerateStepSamplingBadRockPenalizes(t *testing.T) {
	m := newTestModel(t)
	pos := m.rocks[0]
	state := State{Rover: pos, RockGood: 0}

	step := m.GenerateStep(state, Action(Sample))
	assert.Equal(t, -m.sampleBadValue, step.Reward)
}

func TestGenerateStepSamplingEmptyCellPenalizes(t *testing.T) {
	m := newTestModel(t)
	empty := GridPosition{Row: 0, Col: 0}
	if _, hasRock := m.rockAt(empty); hasRock {
		t.Fatal("test fixture assumes (0,0) has no rock")
	}
	step := m.GenerateStep(State{Rover: empty}, Action(Sample))
	assert.Equal(t, -m.sampleBadValue, step.Reward)
}

func TestGenerateStepExitingEastEdgeTerminates(t *testing.T) {
	m := newTestModel(t)
	state := State{Rover: GridPosition{Row: 0, Col: m.n - 1}}

	step := m.GenerateStep(state, Action(East))
	assert.True(t, step.IsTerminal)
	assert.Equal(t, m.exitValue, step.Reward)
	assert.True(t, step.NextState.(State).Done)
}

func TestGenerateStepTerminalStateIsAbsorbing(t *testing.T) {
	m := newTestModel(t)
	state := State{Rover: GridPosition{Row: 1, Col: 1}, Done: true}

	step := m.GenerateStep(state, Action(North))
	assert.True(t, step.IsTerminal)
	assert.Equal(t, 0.0, step.Reward)
	assert.Equal(t, state, step.NextState)
}

func TestGenerateStepMoveWithinBoundsUpdatesPosition(t *testing.T) {
	m := newTestModel(t)
	state := State{Rover: GridPosition{Row: 2, Col: 2}}

	step := m.GenerateStep(state, Action(East))
	assert.Equal(t, GridPosition{Row: 2, Col: 3}, step.NextState.(State).Rover)
	assert.False(t, step.IsTerminal)
}

func TestCreateActionPoolMarksBoundaryMovesIllegal(t *testing.T) {
	m := newTestModel(t)
	pool := m.CreateActionPool()
	pool.SetObservationPool(m.CreateObservationPool())

	m.lastPosition = GridPosition{Row: 0, Col: 0}
	mapping := pool.CreateActionMapping(nil).(*solver.EnumeratedActionMapping)

	legalByCode := map[int]bool{}
	for _, stat := range mapping.Stats() {
		legalByCode[stat.Action.Code()] = stat.Legal
	}
	assert.False(t, legalByCode[North], "top-left corner must not allow North")
	assert.False(t, legalByCode[West], "top-left corner must not allow West")
	assert.True(t, legalByCode[South])
	assert.True(t, legalByCode[East])
	assert.True(t, legalByCode[Sample])
}

func TestCreateActionPoolLeavesInteriorMovesLegal(t *testing.T) {
	m := newTestModel(t)
	pool := m.CreateActionPool()
	pool.SetObservationPool(m.CreateObservationPool())

	m.lastPosition = GridPosition{Row: m.n / 2, Col: m.n / 2}
	mapping := pool.CreateActionMapping(nil).(*solver.EnumeratedActionMapping)

	for _, stat := range mapping.Stats() {
		assert.True(t, stat.Legal, "action %s should be legal away from the grid boundary", stat.Action)
	}
}

func TestCheckActionObservationIsBiasedTowardTruth(t *testing.T) {
	m := newTestModel(t)
	rockIdx := 0
	pos := m.rocks[rockIdx] // zero distance: sensor is maximally reliable here
	goodState := State{Rover: pos, RockGood: 1 << uint(rockIdx)}

	goodCount := 0
	const trials = 200
	for i := 0; i < trials; i++ {
		step := m.GenerateStep(goodState, CheckAction(rockIdx))
		if step.Observation == Good {
			goodCount++
		}
	}
	assert.Greater(t, goodCount, trials/2, "a zero-distance check of a good rock should usually read good")
}

func TestGenerateParticlesOnlyKeepsParticlesConsistentWithObservation(t *testing.T) {
	m := newTestModel(t)
	prior := make([]solver.State, 30)
	for i := range prior {
		prior[i] = State{Rover: GridPosition{Row: 3, Col: 3}}
	}
	out := m.GenerateParticles(nil, Action(East), None, prior)
	require.NotEmpty(t, out)
	for _, p := range out {
		s := p.(State)
		assert.Equal(t, GridPosition{Row: 3, Col: 4}, s.Rover)
	}
}

func TestCodecRoundTripsStateActionObservation(t *testing.T) {
	c := codec{}

	stateBytes, err := c.EncodeState(State{Rover: GridPosition{Row: 2, Col: 5}, RockGood: 7, Done: false})
	require.NoError(t, err)
	decodedState, err := c.DecodeState(stateBytes)
	require.NoError(t, err)
	assert.Equal(t, State{Rover: GridPosition{Row: 2, Col: 5}, RockGood: 7}, decodedState)

	actionBytes, err := c.EncodeAction(CheckAction(3))
	require.NoError(t, err)
	decodedAction, err := c.DecodeAction(actionBytes)
	require.NoError(t, err)
	assert.Equal(t, CheckAction(3), decodedAction)

	obsBytes, err := c.EncodeObservation(Bad)
	require.NoError(t, err)
	decodedObs, err := c.DecodeObservation(obsBytes)
	require.NoError(t, err)
	assert.Equal(t, Bad, decodedObs)
}
