package solver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newVecState(v ...float64) vecState { return vecState(v) }

type vecState []float64

func (s vecState) Equals(other State) bool {
	o, ok := other.(vecState)
	if !ok || len(o) != len(s) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}
func (s vecState) Hash() uint64 {
	var h uint64
	for _, v := range s {
		h = h*31 + uint64(v)
	}
	return h
}
func (s vecState) DistanceTo(other State) float64 { return 0 }
func (s vecState) Vector() []float64              { return s }
func (s vecState) String() string                 { return "" }

func buildNodeWithParticles(t *testing.T, id int64, values ...float64) *BeliefNode {
	t.Helper()
	pool := NewStatePool(nil)
	h := NewHistories()
	node := newBeliefNode(id, 0, NewEnumeratedActionMapping(nil, twoActions(), nil))
	for _, v := range values {
		info := pool.CreateOrGetInfo(newVecState(v))
		seq := h.AddNew(0)
		entry := seq.addEntry(info, 1.0)
		entry.RegisterNode(node)
	}
	return node
}

func TestBeliefNodeAddAndRemoveParticle(t *testing.T) {
	node := buildNodeWithParticles(t, 1, 1, 2, 3)
	require.Equal(t, 3, node.NParticles())

	entry := node.Particles()[1]
	node.removeParticle(entry)
	assert.Equal(t, 2, node.NParticles())
	for _, p := range node.Particles() {
		assert.NotSame(t, entry, p)
	}
}

func TestBeliefTreeCreateOrGetChildIsIdempotentPerObservation(t *testing.T) {
	ap := NewEnumeratedActionPool(func(*BeliefNode) []EnumeratedAction { return twoActions() })
	op := enumObsPool{}
	ap.SetObservationPool(op)
	tree := NewBeliefTree(ap, op)
	root := tree.CreateRoot()

	c1, created1 := tree.CreateOrGetChild(root, testAction(0), intObs(1))
	c2, created2 := tree.CreateOrGetChild(root, testAction(0), intObs(1))

	assert.True(t, created1)
	assert.False(t, created2)
	assert.Same(t, c1, c2)
	assert.Len(t, tree.AllNodes(), 2)
}

func TestDistL1IndependentIsZeroForIdenticalDistributions(t *testing.T) {
	a := buildNodeWithParticles(t, 1, 1, 2, 3, 4)
	b := buildNodeWithParticles(t, 2, 1, 2, 3, 4)

	assert.InDelta(t, 0.0, distL1Independent(a, b), 1e-9)
}

func TestDistL1IndependentIsPositiveForDifferentDistributions(t *testing.T) {
	a := buildNodeWithParticles(t, 1, 0, 0, 0, 0)
	b := buildNodeWithParticles(t, 2, 10, 10, 10, 10)

	assert.Greater(t, distL1Independent(a, b), 0.0)
}

type enumObsPool struct{}

func (enumObsPool) CreateObservationMapping(*BeliefNode, Action) ObservationMapping {
	return NewEnumeratedObservationMapping()
}
