package nav2d

import (
	"encoding/json"
	"math"
	"math/rand"
	"os"
	"path/filepath"
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

func TestDefaultArenaHasStartGoalAndObstacle(t *testing.T) {
	m := newTestModel(t)
	assert.NotZero(t, m.totalStartArea())
	assert.True(t, len(m.areas[Goal]) > 0)
	assert.True(t, len(m.areas[Obstacle]) > 0)
}

func TestSampleAnInitStateStaysInsideStartArea(t *testing.T) {
	m := newTestModel(t)
	for i := 0; i < 50; i++ {
		s := m.SampleAnInitState().(State)
		assert.True(t, m.isInside(s.Position, Start), "sampled init position should be inside a Start area")
	}
}

func TestGenerateStepForwardMovesTowardHeading(t *testing.T) {
	m := newTestModel(t)
	start := State{Position: Point2D{X: 1, Y: 1}, Direction: 0}

	step := m.GenerateStep(start, Action(Forward))
	next := step.NextState.(State)

	assert.Greater(t, next.Position.X, start.Position.X, "moving forward along direction 0 should increase X")
	assert.InDelta(t, start.Position.Y, next.Position.Y, 1e-6)
	assert.Less(t, step.Reward, 0.0, "a plain forward step away from the goal should cost something")
	assert.False(t, step.IsTerminal)
}

func TestGenerateStepReachingGoalIsTerminalAndRewarded(t *testing.T) {
	m := newTestModel(t)
	goalRect := m.areas[Goal][1]
	justOutside := State{Position: Point2D{X: goalRect.Min.X - 0.05, Y: goalRect.Min.Y + 0.1}, Direction: 0}

	step := m.GenerateStep(justOutside, Action(Forward))
	require.True(t, step.IsTerminal, "a short forward step across the goal boundary should terminate")
	assert.Greater(t, step.Reward, 0.0, "the large goal reward should dominate the small distance/time cost")
}

func TestGenerateStepCollidingWithObstacleStopsShortAndPenalizes(t *testing.T) {
	m := newTestModel(t)
	obstacle := m.areas[Obstacle][1]
	justBefore := State{Position: Point2D{X: obstacle.Min.X - 0.5, Y: (obstacle.Min.Y + obstacle.Max.Y) / 2}, Direction: 0}

	step := m.GenerateStep(justBefore, Action(Forward))
	next := step.NextState.(State)

	assert.False(t, m.isInside(next.Position, Obstacle), "a colliding transition must not end up inside the obstacle")
	assert.LessOrEqual(t, next.Position.X, obstacle.Min.X+1e-6)
}

func TestGenerateStepTurnLeftChangesDirectionNotPosition(t *testing.T) {
	m := newTestModel(t)
	start := State{Position: Point2D{X: 5, Y: 5}, Direction: 0}

	step := m.GenerateStep(start, Action(TurnLeft))
	next := step.NextState.(State)

	assert.InDelta(t, start.Position.X, next.Position.X, 1e-6)
	assert.InDelta(t, start.Position.Y, next.Position.Y, 1e-6)
	assert.NotEqual(t, start.Direction, next.Direction)
}

func TestGetHeuristicValueIsHigherCloserToGoal(t *testing.T) {
	m := newTestModel(t)
	goalRect := m.areas[Goal][1]
	goalCenter := Point2D{X: (goalRect.Min.X + goalRect.Max.X) / 2, Y: (goalRect.Min.Y + goalRect.Max.Y) / 2}

	near := State{Position: goalCenter, Direction: 0}
	far := State{Position: Point2D{X: 0.1, Y: 0.1}, Direction: 0}

	assert.Greater(t, m.GetHeuristicValue(near), m.GetHeuristicValue(far))
}

func TestGenerateParticlesOnlyKeepsParticlesMatchingObservation(t *testing.T) {
	m := newTestModel(t)
	obsRect := m.areas[ObservationArea][1]
	inside := Point2D{X: (obsRect.Min.X + obsRect.Max.X) / 2, Y: (obsRect.Min.Y + obsRect.Max.Y) / 2}

	prior := make([]solver.State, 20)
	for i := range prior {
		prior[i] = State{Position: Point2D{X: inside.X - 0.1, Y: inside.Y}, Direction: 0}
	}
	target := Observation{Seen: true, Position: inside, Direction: 0}

	out := m.GenerateParticles(nil, Action(Forward), target, prior)
	require.NotEmpty(t, out)
	for _, p := range out {
		s := p.(State)
		assert.LessOrEqual(t, s.Position.distanceTo(inside), m.maxObservationDistance)
	}
}

func TestGenerateParticlesReturnsNothingForEmptyPriors(t *testing.T) {
	m := newTestModel(t)
	out := m.GenerateParticles(nil, Action(Forward), Observation{}, nil)
	assert.Empty(t, out)
}

// TestCenterOffsetQuirkPreservesOperatorPrecedenceAmbiguity documents that
// centerOffsetQuirk intentionally implements
// `(direction + turnAmount > 0) ? 0.25 : -0.25`, not the direction-relative
// `direction + (turnAmount > 0 ? 0.25 : -0.25)` a reader might expect.
func TestCenterOffsetQuirkPreservesOperatorPrecedenceAmbiguity(t *testing.T) {
	direction := -0.1
	turnAmount := 0.05 // direction+turnAmount < 0, so the literal comparison picks -0.25

	literal := centerOffsetQuirk(direction, turnAmount)
	assert.Equal(t, -0.25, literal)

	corrected := 0.0
	if turnAmount > 0 {
		corrected = direction + 0.25
	} else {
		corrected = direction - 0.25
	}
	assert.NotEqual(t, corrected, literal, "the literal quirk must not match the direction-relative correction")
}

func TestUpdateFlagsStatesOverlappingNewObstacle(t *testing.T) {
	m := newTestModel(t)
	pool := solver.NewStatePool(m.CreateStateIndex())

	inTheWay := State{Position: Point2D{X: 10, Y: 10}, Direction: 0}
	info := pool.CreateOrGetInfo(inTheWay)

	dir := t.TempDir()
	path := filepath.Join(dir, "changes.txt")
	contents := "t 5 n 1\nADD Obstacle 2 9 9 11 11\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	times, err := m.LoadChanges(path)
	require.NoError(t, err)
	require.Equal(t, []int64{5}, times)

	require.NoError(t, m.Update(5, pool))

	affected := pool.GetAffectedStates()
	require.Len(t, affected, 1)
	assert.Equal(t, info, affected[0])
	assert.NotZero(t, affected[0].ChangeFlags()&solver.ChangeDeleted)
	assert.True(t, m.isInside(inTheWay.Position, Obstacle))
}

func TestUpdateWithUnknownTimeIsANoOp(t *testing.T) {
	m := newTestModel(t)
	pool := solver.NewStatePool(m.CreateStateIndex())
	require.NoError(t, m.Update(999, pool))
	assert.Empty(t, pool.GetAffectedStates())
}

func TestCodecRoundTripsStateActionObservation(t *testing.T) {
	c := codec{}

	stateBytes, err := c.EncodeState(State{Position: Point2D{X: 1.5, Y: -2.5}, Direction: math.Pi / 4})
	require.NoError(t, err)
	decodedState, err := c.DecodeState(stateBytes)
	require.NoError(t, err)
	assert.Equal(t, State{Position: Point2D{X: 1.5, Y: -2.5}, Direction: math.Pi / 4}, decodedState)

	actionBytes, err := c.EncodeAction(Action(ArcLeft))
	require.NoError(t, err)
	decodedAction, err := c.DecodeAction(actionBytes)
	require.NoError(t, err)
	assert.Equal(t, Action(ArcLeft), decodedAction)

	obs := Observation{Seen: true, Position: Point2D{X: 3, Y: 4}, Direction: 1.0}
	obsBytes, err := c.EncodeObservation(obs)
	require.NoError(t, err)
	decodedObs, err := c.DecodeObservation(obsBytes)
	require.NoError(t, err)
	assert.Equal(t, obs, decodedObs)
}

func TestApplyExtraConfigOverridesDefaults(t *testing.T) {
	cfg := plannerconfig.DefaultPlannerConfig()
	cfg.Extra["maxObservationDistance"] = rawJSON(t, 9.5)
	cfg.Extra["interpolationStepCount"] = rawJSON(t, 25)

	m, err := New(cfg, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.Equal(t, 9.5, m.maxObservationDistance)
	assert.Equal(t, 25, m.interpolationStepCount)
}

func rawJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}
