// Package solver implements the belief-tree search engine with incremental
// repair described for this planner: a particle-belief Monte-Carlo tree
// search of the ABT/POMCP family that interleaves policy improvement with
// policy execution and repairs (rather than rebuilds) its tree and particle
// set when the environment's model changes underneath it.
//
// The package never inspects the internals of a concrete POMDP — it only
// calls the Model contract defined in this file. Everything domain-specific
// (Tag, RockSample, Nav2D, ...) lives outside this package.
package solver

import "math/rand"

// RandomGenerator is the single deterministic source of randomness threaded
// through both the core and the Model. All draws, in the core and in any
// Model implementation wired to it, must go through the same instance.
type RandomGenerator = rand.Rand

// State is an opaque value supplied by a Model. It must support equality,
// hashing, an L1-independent distance to another state of the same type,
// and a projection onto a fixed-arity numeric vector usable for spatial
// indexing.
type State interface {
	Equals(other State) bool
	Hash() uint64
	DistanceTo(other State) float64
	Vector() []float64
	String() string
}

// Action is an opaque value supplied by a Model.
type Action interface {
	Equals(other Action) bool
	Hash() uint64
	String() string
}

// EnumeratedAction is implemented by actions belonging to a finite,
// canonically ordered action space. Code is that action's position in
// canonical order.
type EnumeratedAction interface {
	Action
	Code() int
}

// Observation is an opaque value supplied by a Model.
type Observation interface {
	Equals(other Observation) bool
	Hash() uint64
	String() string
}

// ApproximateObservation is implemented by observations drawn from a
// continuous or otherwise unenumerable space, where exact equality is
// replaced by a distance threshold (spec.md §4.2).
type ApproximateObservation interface {
	Observation
	DistanceTo(other Observation) float64
}

// StepResult is the outcome of one Model.GenerateStep call.
type StepResult struct {
	Action               Action
	TransitionParameters any
	NextState            State
	Observation          Observation
	Reward               float64
	IsTerminal           bool
}

// StateIndex is the spatial-indexing contract the core depends on but never
// implements: range queries by state vector. The concrete index type is
// supplied by the Model at construction via Model.CreateStateIndex; see
// package spatialindex for a default grid-based implementation.
type StateIndex interface {
	Insert(info *StateInfo)
	Remove(info *StateInfo)
	RangeQuery(min, max []float64) []*StateInfo
}

// ActionPool creates the per-belief-node ActionMapping. A Model with a
// finite, canonically-ordered action space returns an EnumeratedActionPool
// (or a LegalActionsPool, for models with discretized legality); a Model
// with a continuous action space supplies its own implementation.
type ActionPool interface {
	CreateActionMapping(node *BeliefNode) ActionMapping
	// SetObservationPool wires the ObservationPool the resulting
	// ActionMappings use to lazily create their per-action ObservationMapping
	// children. Solver.Initialize calls this once, mirroring the original
	// ActionPool/ObservationPool wiring.
	SetObservationPool(op ObservationPool)
}

// ObservationPool creates the per-(belief-node, action) ObservationMapping.
type ObservationPool interface {
	CreateObservationMapping(node *BeliefNode, action Action) ObservationMapping
}

// Codec encodes and decodes a Model's opaque State, Action, and Observation
// values to and from bytes, so that internal/checkpoint can persist a
// Snapshot without knowing any concrete Model's types. A Model that wants
// its belief state checkpointable supplies one from Model.Codec; a Model
// that never checkpoints can return nil.
type Codec interface {
	EncodeState(s State) ([]byte, error)
	DecodeState(data []byte) (State, error)
	EncodeAction(a Action) ([]byte, error)
	DecodeAction(data []byte) (Action, error)
	EncodeObservation(o Observation) ([]byte, error)
	DecodeObservation(data []byte) (Observation, error)
}

// HistoryCorrector repairs the affected span of each given sequence against
// the revised Model (spec.md §4.8). Implementations are Model-supplied via
// Model.CreateHistoryCorrector; the core only calls ReviseHistories.
type HistoryCorrector interface {
	// SetSolver gives the corrector a back-reference so it can call back
	// into generateStep/createOrGetChild style helpers if it needs to.
	SetSolver(s *Solver)
	ReviseHistories(affected []*HistorySequence)
}

// Model is the entire surface the core depends on (spec.md §6).
type Model interface {
	// POMDP parameters.
	DiscountFactor() float64
	MaxVal() float64
	MinVal() float64

	// Search parameters.
	UcbExploreCoefficient() float64
	HeuristicExploreCoefficient() float64
	MaxTrials() int64
	MaxDepth() int64
	MaxNnComparisons() int64
	MaxNnDistance() float64
	NParticles() int64

	SampleAnInitState() State
	GenerateStep(state State, action Action) StepResult
	GetHeuristicValue(state State) float64

	// GenerateParticles re-synthesizes particles for a belief node given the
	// action/observation that produced it and (if available) the particles
	// of the parent node. GenerateParticlesUninformed ignores priorParticles
	// and is the fallback when the informed call returns nothing.
	GenerateParticles(node *BeliefNode, action Action, obs Observation, priorParticles []State) []State
	GenerateParticlesUninformed(node *BeliefNode, action Action, obs Observation) []State

	CreateActionPool() ActionPool
	CreateObservationPool() ObservationPool
	CreateStateIndex() StateIndex
	CreateHistoryCorrector() HistoryCorrector

	// LoadChanges parses a change file (spec.md §6) and returns the epoch
	// times at which Update should be called.
	LoadChanges(path string) ([]int64, error)
	// Update mutates the Model's geometry for the given epoch and flags
	// every affected StateInfo in pool with the appropriate ChangeFlag bits.
	Update(time int64, pool *StatePool) error

	// Codec returns the Model's State/Action/Observation byte encoder, or
	// nil if this Model does not support checkpointing.
	Codec() Codec
}
