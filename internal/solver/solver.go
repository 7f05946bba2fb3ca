package solver

import "math/rand"

// Solver wires together every owning collection and collaborator the core
// needs: the StatePool, the Histories store, the BeliefTree, the adaptive
// Rollout Coordinator, and the Model-supplied pools (spec.md §3, C1-C9).
// It is the single mutable object the Agent façade and Simulation Loop
// drive.
type Solver struct {
	model Model
	rng   *RandomGenerator
	seed  int64

	statePool        *StatePool
	histories        *Histories
	tree             *BeliefTree
	rollout          *RolloutCoordinator
	actionPool       ActionPool
	obsPool          ObservationPool
	historyCorrector HistoryCorrector
}

// NewSolver constructs an uninitialized Solver bound to model, seeded
// deterministically from seed.
func NewSolver(model Model, seed int64) *Solver {
	return &Solver{
		model: model,
		rng:   rand.New(rand.NewSource(seed)),
		seed:  seed,
	}
}

// Model returns the bound Model.
func (s *Solver) Model() Model { return s.model }

// RNG returns the solver's single deterministic random source. Every draw
// anywhere in the core or in the bound Model must use this instance.
func (s *Solver) RNG() *RandomGenerator { return s.rng }

// StatePool returns the owning state canonicalization table.
func (s *Solver) StatePool() *StatePool { return s.statePool }

// Histories returns the owning trajectory store.
func (s *Solver) Histories() *Histories { return s.histories }

// Tree returns the owning belief tree.
func (s *Solver) Tree() *BeliefTree { return s.tree }

// Rollout returns the adaptive rollout mode coordinator.
func (s *Solver) Rollout() *RolloutCoordinator { return s.rollout }

// Initialize builds every owned collection, wires the Model-supplied pools
// together (mirroring the original ActionPool/ObservationPool wiring: the
// action pool learns of the observation pool so its mappings can lazily
// create ObservationMapping children), seeds the root belief node's
// particle reservoir from Model.SampleAnInitState, and hands the History
// Corrector a back-reference to this Solver.
func (s *Solver) Initialize() error {
	s.statePool = NewStatePool(s.model.CreateStateIndex())
	s.histories = NewHistories()

	s.actionPool = s.model.CreateActionPool()
	s.obsPool = s.model.CreateObservationPool()
	s.actionPool.SetObservationPool(s.obsPool)

	s.tree = NewBeliefTree(s.actionPool, s.obsPool)
	root := s.tree.CreateRoot()

	s.rollout = NewRolloutCoordinator(s.rng)

	s.historyCorrector = s.model.CreateHistoryCorrector()
	if s.historyCorrector != nil {
		s.historyCorrector.SetSolver(s)
	}

	n := s.model.NParticles()
	for i := int64(0); i < n; i++ {
		st := s.model.SampleAnInitState()
		info := s.statePool.CreateOrGetInfo(st)
		seq := s.histories.AddNew(0)
		entry := seq.addEntry(info, 1.0)
		entry.RegisterNode(root)
	}
	return nil
}

// RootNode returns the current live root of the belief tree.
func (s *Solver) RootNode() *BeliefNode { return s.tree.Root() }
