// Package nav2d implements continuous 2-D navigation with axis-aligned
// rectangular obstacles (original_source's Nav2DModel.cpp): a rover with a position and
// heading moves along circular arcs toward a goal region, observing its own
// pose only when inside a designated observation region, and is charged for
// distance traveled, turning, elapsed time, and collisions.
package nav2d

import (
	"bufio"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/CxyCH/tapir/internal/changefile"
	"github.com/CxyCH/tapir/internal/plannerconfig"
	"github.com/CxyCH/tapir/internal/solver"
	"github.com/CxyCH/tapir/internal/spatialindex"
)

// AreaType classifies a rectangle on the map.
type AreaType int

const (
	Empty AreaType = iota
	World
	Start
	ObservationArea
	Goal
	Obstacle
	OutOfBounds
)

func parseAreaType(text string) (AreaType, error) {
	switch text {
	case "World":
		return World, nil
	case "Start":
		return Start, nil
	case "Observation":
		return ObservationArea, nil
	case "Goal":
		return Goal, nil
	case "Obstacle":
		return Obstacle, nil
	case "Empty":
		return Empty, nil
	case "OOB":
		return OutOfBounds, nil
	default:
		return Empty, fmt.Errorf("configuration error: invalid area type %q", text)
	}
}

// Action codes, in canonical order. original_source's Nav2DAction.cpp was not retrieved; this is this port's
// own discretization of (speed, rotationalSpeed) bins over
// Model.maxSpeed/maxRotationalSpeed.
const (
	Forward int = iota
	TurnLeft
	TurnRight
	ArcLeft
	ArcRight
	numActions
)

// Action is one of the five discretized motion primitives.
type Action int

func (a Action) Equals(other solver.Action) bool { o, ok := other.(Action); return ok && o == a }
func (a Action) Hash() uint64                    { return uint64(a) }
func (a Action) Code() int                       { return int(a) }

func (a Action) String() string {
	switch int(a) {
	case Forward:
		return "forward"
	case TurnLeft:
		return "turnLeft"
	case TurnRight:
		return "turnRight"
	case ArcLeft:
		return "arcLeft"
	case ArcRight:
		return "arcRight"
	default:
		return "unknown"
	}
}

func (m *Model) speedAndRotation(a Action) (speed, rotationalSpeed float64) {
	switch int(a) {
	case Forward:
		return m.maxSpeed, 0
	case TurnLeft:
		return 0, m.maxRotationalSpeed
	case TurnRight:
		return 0, -m.maxRotationalSpeed
	case ArcLeft:
		return m.maxSpeed, m.maxRotationalSpeed / 2
	case ArcRight:
		return m.maxSpeed, -m.maxRotationalSpeed / 2
	default:
		return 0, 0
	}
}

// State is the rover's pose.
type State struct {
	Position  Point2D
	Direction float64
}

func (s State) Equals(other solver.State) bool {
	o, ok := other.(State)
	return ok && o == s
}

func (s State) Hash() uint64 {
	return uint64(s.Position.X*1000003) ^ uint64(s.Position.Y*31) ^ uint64(s.Direction*7)
}

func (s State) DistanceTo(other solver.State) float64 {
	o := other.(State)
	return s.Position.distanceTo(o.Position) + math.Abs(normalizeTurn(s.Direction-o.Direction))
}

func (s State) Vector() []float64 { return []float64{s.Position.X, s.Position.Y} }

func (s State) String() string {
	return fmt.Sprintf("pos=(%.3f,%.3f) dir=%.3f", s.Position.X, s.Position.Y, s.Direction)
}

// Observation is the rover's pose when inside an Observation area, or the
// zero value with Seen == false otherwise.
type Observation struct {
	Seen      bool
	Position  Point2D
	Direction float64
}

func (o Observation) Equals(other solver.Observation) bool {
	v, ok := other.(Observation)
	return ok && v == o
}

func (o Observation) Hash() uint64 {
	if !o.Seen {
		return 0
	}
	return uint64(o.Position.X*1000003) ^ uint64(o.Position.Y*31)
}

func (o Observation) String() string {
	if !o.Seen {
		return "unseen"
	}
	return fmt.Sprintf("pos=(%.3f,%.3f)", o.Position.X, o.Position.Y)
}

// DistanceTo implements solver.ApproximateObservation: two "unseen"
// observations are identical, an "unseen" and a "seen" observation are
// maximally far apart, and two "seen" observations are compared by position.
func (o Observation) DistanceTo(other solver.Observation) float64 {
	v, ok := other.(Observation)
	if !ok || v.Seen != o.Seen {
		return math.Inf(1)
	}
	if !o.Seen {
		return 0
	}
	return o.Position.distanceTo(v.Position)
}

// transition carries the arc-interpolation outcome from generateTransition
// to generateNextState/generateReward, mirroring Nav2DTransition.
type transition struct {
	speed, rotationalSpeed, moveRatio float64
	hadCollision, reachedGoal         bool
}

// Model is the Nav2D POMDP (spec.md §3.4).
type Model struct {
	mapArea Rectangle2D
	areas   map[AreaType]map[int64]Rectangle2D

	timeStepLength          float64
	costPerUnitTime         float64
	interpolationStepCount  int
	crashPenalty            float64
	goalReward              float64
	maxSpeed                float64
	costPerUnitDistance     float64
	speedErrorSD            float64
	maxRotationalSpeed      float64
	costPerRevolution       float64
	rotationErrorSD         float64
	maxObservationDistance  float64

	discount float64

	ucbExploreCoefficient       float64
	heuristicExploreCoefficient float64
	maxTrials                   int64
	maxDepth                    int64
	maxNnComparisons            int64
	maxNnDistance               float64
	nParticles                  int64

	rng *solver.RandomGenerator

	changesByTime map[int64]changefile.Epoch
}

// New constructs a Nav2D Model from cfg, loading the map at cfg.MapPath if
// set, else a small built-in default arena.
func New(cfg *plannerconfig.PlannerConfig, rng *solver.RandomGenerator) (*Model, error) {
	m := &Model{
		areas: map[AreaType]map[int64]Rectangle2D{
			Start:       {},
			ObservationArea: {},
			Goal:        {},
			Obstacle:    {},
		},

		timeStepLength:         1.0,
		costPerUnitTime:        0.1,
		interpolationStepCount: 10,
		crashPenalty:           100,
		goalReward:             100,
		maxSpeed:               1.0,
		costPerUnitDistance:    1.0,
		speedErrorSD:           0.05,
		maxRotationalSpeed:     math.Pi / 4,
		costPerRevolution:      1.0,
		rotationErrorSD:        0.05,
		maxObservationDistance: 2.0,

		discount: *cfg.Discount,

		ucbExploreCoefficient:       *cfg.UcbExploreCoefficient,
		heuristicExploreCoefficient: *cfg.HeuristicExploreCoefficient,
		maxTrials:                   *cfg.MaxTrials,
		maxDepth:                    *cfg.MaxDepth,
		maxNnComparisons:            *cfg.MaxNnComparisons,
		maxNnDistance:               *cfg.MaxNnDistance,
		nParticles:                  int64(*cfg.NParticles),
		rng:                         rng,
	}
	m.applyExtraConfig(cfg)

	if cfg.MapPath != nil && *cfg.MapPath != "" {
		if err := m.loadMap(*cfg.MapPath); err != nil {
			return nil, err
		}
	} else {
		m.mapArea = Rectangle2D{Min: Point2D{X: 0, Y: 0}, Max: Point2D{X: 20, Y: 20}}
		m.addArea(1, Rectangle2D{Min: Point2D{X: 0, Y: 0}, Max: Point2D{X: 2, Y: 2}}, Start)
		m.addArea(1, Rectangle2D{Min: Point2D{X: 18, Y: 18}, Max: Point2D{X: 20, Y: 20}}, Goal)
		m.addArea(1, Rectangle2D{Min: Point2D{X: 8, Y: 8}, Max: Point2D{X: 12, Y: 12}}, Obstacle)
		m.addArea(1, Rectangle2D{Min: Point2D{X: 0, Y: 0}, Max: Point2D{X: 20, Y: 4}}, ObservationArea)
	}
	return m, nil
}

// loadMap reads the "Type id minX minY maxX maxY" line format
// Nav2DModel.cpp's constructor reads, minus the World line which instead
// sets mapArea.
func (m *Model) loadMap(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("configuration error: opening nav2d map %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 6 {
			return fmt.Errorf("configuration error: malformed nav2d map line %q", line)
		}
		areaType, err := parseAreaType(fields[0])
		if err != nil {
			return err
		}
		id, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return fmt.Errorf("configuration error: bad area id in %q: %w", line, err)
		}
		rect, err := parseRect(fields[2:6])
		if err != nil {
			return fmt.Errorf("configuration error: bad rectangle in %q: %w", line, err)
		}
		if areaType == World {
			m.mapArea = rect
			continue
		}
		m.addArea(id, rect, areaType)
	}
	return scanner.Err()
}

// applyExtraConfig reads Nav2D-specific tunables that have no generic
// plannerconfig field — originally their own SBT.maxObservationDistance
// (etc.) config namespace — from cfg.Extra, falling back to this Model's
// built-in defaults when absent.
func (m *Model) applyExtraConfig(cfg *plannerconfig.PlannerConfig) {
	fields := map[string]*float64{
		"maxObservationDistance": &m.maxObservationDistance,
		"timeStepLength":         &m.timeStepLength,
		"costPerUnitTime":        &m.costPerUnitTime,
		"crashPenalty":           &m.crashPenalty,
		"goalReward":             &m.goalReward,
		"maxSpeed":               &m.maxSpeed,
		"costPerUnitDistance":    &m.costPerUnitDistance,
		"speedErrorSD":           &m.speedErrorSD,
		"maxRotationalSpeed":     &m.maxRotationalSpeed,
		"costPerRevolution":      &m.costPerRevolution,
		"rotationErrorSD":        &m.rotationErrorSD,
	}
	for key, target := range fields {
		raw, ok := cfg.Extra[key]
		if !ok {
			continue
		}
		var v float64
		if err := json.Unmarshal(raw, &v); err == nil {
			*target = v
		}
	}
	if raw, ok := cfg.Extra["interpolationStepCount"]; ok {
		var v int
		if err := json.Unmarshal(raw, &v); err == nil && v > 0 {
			m.interpolationStepCount = v
		}
	}
}

func parseRect(fields []string) (Rectangle2D, error) {
	vals := make([]float64, 4)
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return Rectangle2D{}, err
		}
		vals[i] = v
	}
	return Rectangle2D{Min: Point2D{X: vals[0], Y: vals[1]}, Max: Point2D{X: vals[2], Y: vals[3]}}, nil
}

func (m *Model) addArea(id int64, rect Rectangle2D, areaType AreaType) {
	if m.areas[areaType] == nil {
		m.areas[areaType] = make(map[int64]Rectangle2D)
	}
	m.areas[areaType][id] = rect
}

func (m *Model) isInside(p Point2D, areaType AreaType) bool {
	for _, rect := range m.areas[areaType] {
		if rect.Contains(p) {
			return true
		}
	}
	return false
}

func (m *Model) closestPointOfType(p Point2D, areaType AreaType) Point2D {
	best := Point2D{X: math.Inf(1), Y: math.Inf(1)}
	bestDist := math.Inf(1)
	for _, rect := range m.areas[areaType] {
		candidate := rect.closestPointTo(p)
		if d := p.distanceTo(candidate); d < bestDist {
			bestDist = d
			best = candidate
		}
	}
	return best
}

func (m *Model) totalStartArea() float64 {
	total := 0.0
	for _, rect := range m.areas[Start] {
		total += rect.area()
	}
	return total
}

// POMDP parameters.

func (m *Model) DiscountFactor() float64 { return m.discount }
func (m *Model) MaxVal() float64         { return 0 }
func (m *Model) MinVal() float64 {
	return -(m.crashPenalty + m.maxSpeed*m.costPerUnitDistance + m.maxRotationalSpeed*m.costPerRevolution) / (1 - m.discount)
}

// Search parameters.

func (m *Model) UcbExploreCoefficient() float64       { return m.ucbExploreCoefficient }
func (m *Model) HeuristicExploreCoefficient() float64 { return m.heuristicExploreCoefficient }
func (m *Model) MaxTrials() int64                     { return m.maxTrials }
func (m *Model) MaxDepth() int64                      { return m.maxDepth }
func (m *Model) MaxNnComparisons() int64              { return m.maxNnComparisons }
func (m *Model) MaxNnDistance() float64               { return m.maxNnDistance }
func (m *Model) NParticles() int64                    { return m.nParticles }

func (m *Model) SampleAnInitState() solver.State {
	areaValue := m.rng.Float64() * m.totalStartArea()
	areaTotal := 0.0
	for _, rect := range m.areas[Start] {
		areaTotal += rect.area()
		if areaValue < areaTotal {
			return State{Position: rect.sampleUniform(m.rng), Direction: 0}
		}
	}
	return State{Position: m.mapArea.sampleUniform(m.rng), Direction: 0}
}

func (m *Model) applySpeedError(speed float64) float64 {
	v := (1.0 + m.rng.NormFloat64()*m.speedErrorSD) * speed
	if v < 0 {
		return 0
	}
	return v
}

func (m *Model) applyRotationalError(rotationalSpeed float64) float64 {
	return rotationalSpeed * (1.0 + m.rng.NormFloat64()*m.rotationErrorSD)
}

// centerOffsetQuirk reproduces Nav2DModel::generateTransition's and
// generateNextState's center-point calculation exactly, including an
// operator-precedence ambiguity in the source: it writes
// `direction + turnAmount > 0 ? 0.25 : -0.25` as the angle argument to a
// Vector2D constructor, but `+` and comparison bind tighter than `?:` in
// C++, so this evaluates to `(direction + turnAmount > 0) ? 0.25 : -0.25`
// rather than the probably-intended `direction + (turnAmount > 0 ? 0.25 :
// -0.25)`. Left as-is rather than guessed at (spec.md §9, Open Questions):
// this returns the literal ±0.25 value, independent of direction's
// magnitude beyond the sign of the sum.
func centerOffsetQuirk(direction, turnAmount float64) float64 {
	if direction+turnAmount > 0 {
		return 0.25
	}
	return -0.25
}

// loopOffsetQuirk is the transition loop's analogous computation, which
// adds a moveRatio*turnAmount term to the same ambiguous comparison.
func loopOffsetQuirk(direction, moveRatio, turnAmount float64) float64 {
	if direction+moveRatio*turnAmount+turnAmount > 0 {
		return -0.25
	}
	return 0.25
}

func (m *Model) generateTransition(state State, action Action) transition {
	speed, rotationalSpeed := m.speedAndRotation(action)
	tr := transition{
		speed:           m.applySpeedError(speed),
		rotationalSpeed: m.applyRotationalError(rotationalSpeed),
	}

	position := state.Position
	direction := state.Direction
	radius := tr.speed / (2 * math.Pi * tr.rotationalSpeed)
	turnAmount := tr.rotationalSpeed * m.timeStepLength
	displacement := Vector2D{Magnitude: tr.speed * m.timeStepLength, Direction: direction}

	var center Point2D
	if turnAmount != 0 {
		center = position.Add(Vector2D{Magnitude: radius, Direction: centerOffsetQuirk(direction, turnAmount)})
	}

	for step := 1; step <= m.interpolationStepCount; step++ {
		previousRatio := tr.moveRatio
		tr.moveRatio = float64(step) / float64(m.interpolationStepCount)

		var currentPosition Point2D
		if turnAmount == 0 {
			currentPosition = position.Add(Vector2D{Magnitude: tr.moveRatio * displacement.Magnitude, Direction: displacement.Direction})
		} else {
			currentPosition = center.Add(Vector2D{Magnitude: radius, Direction: loopOffsetQuirk(direction, tr.moveRatio, turnAmount)})
		}

		if !m.mapArea.Contains(currentPosition) {
			tr.moveRatio = previousRatio
			break
		}
		if m.isInside(currentPosition, Obstacle) {
			tr.moveRatio = previousRatio
			tr.hadCollision = true
			break
		}
		if m.isInside(currentPosition, Goal) {
			tr.reachedGoal = true
			break
		}
	}
	return tr
}

func (m *Model) generateNextState(state State, tr transition) State {
	position := state.Position
	direction := state.Direction
	if tr.rotationalSpeed == 0 {
		position = position.Add(Vector2D{Magnitude: tr.moveRatio * tr.speed * m.timeStepLength, Direction: direction})
	} else {
		radius := tr.speed / (2 * math.Pi * tr.rotationalSpeed)
		center := position.Add(Vector2D{Magnitude: radius, Direction: centerOffsetQuirk(direction, tr.rotationalSpeed)})
		direction += tr.moveRatio * tr.rotationalSpeed * m.timeStepLength
		position = center.Add(Vector2D{Magnitude: radius, Direction: -centerOffsetQuirk(direction, tr.rotationalSpeed)})
	}
	return State{Position: position, Direction: direction}
}

func (m *Model) generateObservation(next State) Observation {
	if m.isInside(next.Position, ObservationArea) {
		return Observation{Seen: true, Position: next.Position, Direction: next.Direction}
	}
	return Observation{}
}

func (m *Model) generateReward(tr transition) float64 {
	reward := -m.costPerUnitTime * m.timeStepLength
	distance := tr.moveRatio * tr.speed * m.timeStepLength
	turnAmount := tr.moveRatio * tr.rotationalSpeed * m.timeStepLength
	reward -= m.costPerUnitDistance * distance
	reward -= m.costPerRevolution * math.Abs(turnAmount)
	if tr.reachedGoal {
		reward += m.goalReward
	}
	if tr.hadCollision {
		reward -= m.crashPenalty
	}
	return reward
}

func (m *Model) GenerateStep(state solver.State, action solver.Action) solver.StepResult {
	s := state.(State)
	a := action.(Action)

	tr := m.generateTransition(s, a)
	next := m.generateNextState(s, tr)
	obs := m.generateObservation(next)
	reward := m.generateReward(tr)

	return solver.StepResult{
		Action:               action,
		TransitionParameters: tr,
		NextState:            next,
		Observation:          obs,
		Reward:               reward,
		IsTerminal:           tr.reachedGoal,
	}
}

func (m *Model) GetHeuristicValue(state solver.State) float64 {
	s := state.(State)
	closest := m.closestPointOfType(s.Position, Goal)
	displacement := closest.sub(s.Position)
	distance := displacement.Magnitude
	turnAmount := math.Abs(normalizeTurn(displacement.Direction - s.Direction))

	value := m.goalReward
	value -= m.costPerUnitDistance * distance
	value -= m.costPerRevolution * turnAmount
	value -= m.costPerUnitTime * distance / m.maxSpeed
	return value
}

// GenerateParticles resamples by forward-simulating each prior particle one
// step and keeping it if the simulated transition's observation is within
// maxObservationDistance of obs, the same rejection-sampling technique used
// by every example Model in this repository.
func (m *Model) GenerateParticles(node *solver.BeliefNode, action solver.Action, obs solver.Observation, priorParticles []solver.State) []solver.State {
	if len(priorParticles) == 0 {
		return nil
	}
	a := action.(Action)
	target, _ := obs.(Observation)
	var out []solver.State
	const maxAttempts = 2000
	attempts := 0
	for len(out) < len(priorParticles) && attempts < maxAttempts {
		attempts++
		prior := priorParticles[m.rng.Intn(len(priorParticles))].(State)
		step := m.GenerateStep(prior, a)
		next := step.NextState.(State)
		candidate := step.Observation.(Observation)
		if candidate.DistanceTo(target) <= m.maxObservationDistance {
			out = append(out, next)
		}
	}
	return out
}

func (m *Model) GenerateParticlesUninformed(node *solver.BeliefNode, action solver.Action, obs solver.Observation) []solver.State {
	target, seen := obs.(Observation)
	out := make([]solver.State, 0, m.nParticles)
	const maxAttempts = 5000
	attempts := 0
	for int64(len(out)) < m.nParticles && attempts < maxAttempts {
		attempts++
		var candidate State
		if seen && target.Seen {
			candidate = State{Position: target.Position, Direction: target.Direction}
		} else {
			candidate = State{Position: m.mapArea.sampleUniform(m.rng), Direction: m.rng.Float64() * 2 * math.Pi}
		}
		out = append(out, candidate)
	}
	return out
}

func (m *Model) CreateActionPool() solver.ActionPool {
	return solver.NewEnumeratedActionPool(func(*solver.BeliefNode) []solver.EnumeratedAction {
		actions := make([]solver.EnumeratedAction, numActions)
		for i := 0; i < numActions; i++ {
			actions[i] = Action(i)
		}
		return actions
	})
}

func (m *Model) CreateObservationPool() solver.ObservationPool {
	return approximateObservationPool{maxDistance: m.maxObservationDistance}
}

type approximateObservationPool struct{ maxDistance float64 }

func (p approximateObservationPool) CreateObservationMapping(*solver.BeliefNode, solver.Action) solver.ObservationMapping {
	return solver.NewApproximateObservationMapping(p.maxDistance)
}

// CreateStateIndex uses the default grid-bucketed spatial index over the
// rover's (x, y) projection: unlike Tag and RockSample's small discrete
// state spaces, Nav2D's continuous pose space is exactly what this index is
// for, and Update relies on its RangeQuery to find states affected by a
// newly added area.
func (m *Model) CreateStateIndex() solver.StateIndex {
	return spatialindex.NewGrid(1.0)
}

// CreateHistoryCorrector returns nil: incremental repair here only needs to
// flag affected states via Update, not revise histories in place.
func (m *Model) CreateHistoryCorrector() solver.HistoryCorrector { return nil }

func (m *Model) LoadChanges(path string) ([]int64, error) {
	epochs, err := changefile.ParseFile(path)
	if err != nil {
		return nil, err
	}
	m.changesByTime = changefile.ByTime(epochs)
	return changefile.Times(epochs), nil
}

// Update applies every ADD record scheduled for time, then flags the
// StatePool's spatially indexed states overlapping the new area: an added
// Obstacle marks overlapping states ChangeDeleted (their next visit must
// treat the transition as now colliding), an added Observation marks them
// ChangeObservationBefore (spec.md §8 scenario S3).
func (m *Model) Update(time int64, pool *solver.StatePool) error {
	epoch, ok := m.changesByTime[time]
	if !ok {
		return nil
	}
	for _, rec := range epoch.Records {
		areaType, err := parseAreaType(rec.AreaType)
		if err != nil {
			return err
		}
		rect := Rectangle2D{Min: Point2D{X: rec.Rect.MinX, Y: rec.Rect.MinY}, Max: Point2D{X: rec.Rect.MaxX, Y: rec.Rect.MaxY}}
		m.addArea(rec.ID, rect, areaType)

		bits := solver.ChangeDeleted
		if areaType == ObservationArea {
			bits = solver.ChangeObservationBefore
		}
		index := pool.StateIndexFor()
		if index == nil {
			continue
		}
		min := []float64{rect.Min.X, rect.Min.Y}
		max := []float64{rect.Max.X, rect.Max.Y}
		for _, info := range index.RangeQuery(min, max) {
			pool.FlagAffected(info, bits)
		}
	}
	return nil
}

func (m *Model) Codec() solver.Codec { return codec{} }
