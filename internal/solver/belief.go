package solver

import "math"

// BeliefNode is one node of the belief tree: a distribution over states
// approximated by its particle set, together with the action statistics
// needed to pick the next action to expand (spec.md §4.1, C2).
type BeliefNode struct {
	id            int64
	depth         int64
	actionMapping ActionMapping

	particles     []*HistoryEntry
	particleIndex map[*HistoryEntry]int

	tLastAddedParticle float64
	nnCache            *BeliefNode
	tNNComp            float64
}

func newBeliefNode(id, depth int64, am ActionMapping) *BeliefNode {
	return &BeliefNode{
		id:            id,
		depth:         depth,
		actionMapping: am,
		particleIndex: make(map[*HistoryEntry]int),
	}
}

// ID returns this node's stable integer id within its owning BeliefTree.
func (n *BeliefNode) ID() int64 { return n.id }

// Depth returns this node's depth from the tree root.
func (n *BeliefNode) Depth() int64 { return n.depth }

// ActionMapping returns this node's action statistics.
func (n *BeliefNode) ActionMapping() ActionMapping { return n.actionMapping }

// Particles returns the HistoryEntries currently registered to this node.
// Callers must not mutate the returned slice.
func (n *BeliefNode) Particles() []*HistoryEntry { return n.particles }

// NParticles returns the number of particles currently registered.
func (n *BeliefNode) NParticles() int { return len(n.particles) }

// addParticle registers entry in this node's particle list. Only called via
// HistoryEntry.RegisterNode, which maintains the inverse pointer.
func (n *BeliefNode) addParticle(entry *HistoryEntry) {
	if _, ok := n.particleIndex[entry]; ok {
		return
	}
	n.particleIndex[entry] = len(n.particles)
	n.particles = append(n.particles, entry)
}

// removeParticle unregisters entry from this node's particle list in O(1)
// via swap-with-last.
func (n *BeliefNode) removeParticle(entry *HistoryEntry) {
	i, ok := n.particleIndex[entry]
	if !ok {
		return
	}
	last := len(n.particles) - 1
	n.particles[i] = n.particles[last]
	n.particleIndex[n.particles[i]] = i
	n.particles = n.particles[:last]
	delete(n.particleIndex, entry)
}

// SampleAParticle draws one particle's state uniformly at random. It panics
// if the node has no particles; callers must check NParticles first.
func (n *BeliefNode) SampleAParticle(rng *RandomGenerator) State {
	return n.particles[rng.Intn(len(n.particles))].State()
}

// HasUntriedAction delegates to the action mapping.
func (n *BeliefNode) HasUntriedAction() bool { return n.actionMapping.HasUntriedAction() }

// NextActionToTry delegates to the action mapping.
func (n *BeliefNode) NextActionToTry() Action { return n.actionMapping.NextActionToTry() }

// SearchAction delegates to the action mapping.
func (n *BeliefNode) SearchAction(c float64) Action { return n.actionMapping.SearchAction(c) }

// RecommendedAction delegates to the action mapping.
func (n *BeliefNode) RecommendedAction() (Action, bool) { return n.actionMapping.RecommendedAction() }

// BestMeanQValue delegates to the action mapping.
func (n *BeliefNode) BestMeanQValue() float64 { return n.actionMapping.BestMeanQValue() }

// NActChildren returns the total number of belief-node children reached
// across every action's observation mapping.
func (n *BeliefNode) NActChildren() int { return n.actionMapping.NumChildren() }

// NNCache returns the cached nearest-neighbor node from the last NN lookup
// rooted here, and the logical time at which that comparison was made
// (spec.md §4.7).
func (n *BeliefNode) NNCache() (*BeliefNode, float64) { return n.nnCache, n.tNNComp }

// SetNNCache records the result of a nearest-neighbor comparison.
func (n *BeliefNode) SetNNCache(neighbor *BeliefNode, at float64) {
	n.nnCache = neighbor
	n.tNNComp = at
}

// TLastAddedParticle returns the logical time at which a particle was last
// added to this node, used to decide whether a cached NN comparison is
// stale (spec.md §4.7).
func (n *BeliefNode) TLastAddedParticle() float64 { return n.tLastAddedParticle }

func (n *BeliefNode) touchParticleClock(now float64) { n.tLastAddedParticle = now }

const distHistogramBins = 10

// distL1Independent computes the L1 distance between a and b's
// independently-marginalized particle histograms: for each vector
// dimension, particles are binned over the joint range of both nodes'
// values on that dimension, the per-bin counts are normalized to
// frequencies, and the L1 distances of the per-dimension frequency vectors
// are summed (spec.md §4.7, glossary "L1-independent distance").
func distL1Independent(a, b *BeliefNode) float64 {
	if len(a.particles) == 0 || len(b.particles) == 0 {
		return math.Inf(1)
	}
	dims := len(a.particles[0].State().Vector())
	total := 0.0
	for d := 0; d < dims; d++ {
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, e := range a.particles {
			v := e.State().Vector()[d]
			lo, hi = math.Min(lo, v), math.Max(hi, v)
		}
		for _, e := range b.particles {
			v := e.State().Vector()[d]
			lo, hi = math.Min(lo, v), math.Max(hi, v)
		}
		if hi <= lo {
			continue
		}
		histA := histogramOf(a.particles, d, lo, hi)
		histB := histogramOf(b.particles, d, lo, hi)
		for i := range histA {
			total += math.Abs(histA[i] - histB[i])
		}
	}
	return total
}

func histogramOf(entries []*HistoryEntry, dim int, lo, hi float64) [distHistogramBins]float64 {
	var hist [distHistogramBins]float64
	width := (hi - lo) / float64(distHistogramBins)
	for _, e := range entries {
		v := e.State().Vector()[dim]
		bin := int((v - lo) / width)
		if bin >= distHistogramBins {
			bin = distHistogramBins - 1
		}
		if bin < 0 {
			bin = 0
		}
		hist[bin]++
	}
	n := float64(len(entries))
	for i := range hist {
		hist[i] /= n
	}
	return hist
}

// BeliefTree owns every BeliefNode reachable from its root, assigning each a
// stable id on creation and retaining insertion order for nearest-neighbor
// scans (spec.md §4.1, C2).
type BeliefTree struct {
	root        *BeliefNode
	allNodes    []*BeliefNode
	nextID      int64
	clock       float64
	actionPool  ActionPool
	obsPool     ObservationPool
}

// NewBeliefTree constructs an empty tree. CreateRoot must be called before
// use.
func NewBeliefTree(actionPool ActionPool, obsPool ObservationPool) *BeliefTree {
	return &BeliefTree{actionPool: actionPool, obsPool: obsPool}
}

// Tick advances and returns the tree's logical clock, used to timestamp
// particle additions and NN comparisons deterministically (in place of the
// wall-clock timestamps the original implementation used).
func (t *BeliefTree) Tick() float64 {
	t.clock++
	return t.clock
}

func (t *BeliefTree) newNode(depth int64) *BeliefNode {
	n := newBeliefNode(t.nextID, depth, nil)
	n.actionMapping = t.actionPool.CreateActionMapping(n)
	t.nextID++
	t.allNodes = append(t.allNodes, n)
	return n
}

// CreateRoot creates and installs the tree's root node.
func (t *BeliefTree) CreateRoot() *BeliefNode {
	t.root = t.newNode(0)
	return t.root
}

// Root returns the tree's root node.
func (t *BeliefTree) Root() *BeliefNode { return t.root }

// SetRoot replaces the tree's root, used when the Simulation Loop advances
// the live belief forward (spec.md §4.10).
func (t *BeliefTree) SetRoot(n *BeliefNode) { t.root = n }

// CreateOrGetChild returns the child of parent reached by (action, obs),
// creating both the ObservationMapping entry and the child BeliefNode if
// this is the first time that (action, obs) pair has been seen at parent.
// The second return value reports whether a new node was created.
func (t *BeliefTree) CreateOrGetChild(parent *BeliefNode, action Action, obs Observation) (*BeliefNode, bool) {
	om := parent.actionMapping.EnsureChildMapping(action)
	return om.GetOrCreateChild(obs, func() *BeliefNode {
		return t.newNode(parent.depth + 1)
	})
}

// AllNodes returns every node ever created by this tree, in creation order.
func (t *BeliefTree) AllNodes() []*BeliefNode { return t.allNodes }

// RemoveNode drops n from the tree's node index. It does not detach n from
// its parent's ObservationMapping; callers that prune subtrees must also
// clear the parent-side link.
func (t *BeliefTree) RemoveNode(n *BeliefNode) {
	for i, candidate := range t.allNodes {
		if candidate == n {
			last := len(t.allNodes) - 1
			t.allNodes[i] = t.allNodes[last]
			t.allNodes = t.allNodes[:last]
			return
		}
	}
}
