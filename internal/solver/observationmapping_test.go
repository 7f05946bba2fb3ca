package solver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type intObs int

func (o intObs) Equals(other Observation) bool { v, ok := other.(intObs); return ok && v == o }
func (o intObs) Hash() uint64                  { return uint64(o) }
func (o intObs) String() string                { return "" }
func (o intObs) DistanceTo(other Observation) float64 {
	v := other.(intObs)
	d := float64(o - v)
	if d < 0 {
		d = -d
	}
	return d
}

func TestEnumeratedObservationMappingExactMatchReusesChild(t *testing.T) {
	m := NewEnumeratedObservationMapping()
	var created int
	newNode := func() *BeliefNode { created++; return newBeliefNode(int64(created), 0, nil) }

	a, wasNew := m.GetOrCreateChild(intObs(1), newNode)
	require.True(t, wasNew)
	b, wasNew := m.GetOrCreateChild(intObs(1), newNode)
	require.False(t, wasNew)

	assert.Same(t, a, b)
	assert.Equal(t, 1, created)
	assert.Len(t, m.Children(), 1)
}

func TestEnumeratedObservationMappingDistinctObservationsGetDistinctChildren(t *testing.T) {
	m := NewEnumeratedObservationMapping()
	newNode := func() *BeliefNode { return newBeliefNode(1, 0, nil) }

	m.GetOrCreateChild(intObs(1), newNode)
	m.GetOrCreateChild(intObs(2), newNode)

	assert.Len(t, m.Children(), 2)
	_, ok := m.Child(intObs(3))
	assert.False(t, ok)
}

func TestApproximateObservationMappingReusesNearestWithinThreshold(t *testing.T) {
	m := NewApproximateObservationMapping(0.5)
	var created int
	newNode := func() *BeliefNode { created++; return newBeliefNode(int64(created), 0, nil) }

	a, _ := m.GetOrCreateChild(intObs(10), newNode)
	b, wasNew := m.GetOrCreateChild(intObs(10), newNode)

	assert.Same(t, a, b)
	assert.False(t, wasNew)
	assert.Equal(t, 1, created)
}

func TestApproximateObservationMappingCreatesNewChildBeyondThreshold(t *testing.T) {
	m := NewApproximateObservationMapping(0.5)
	newNode := func() *BeliefNode { return newBeliefNode(1, 0, nil) }

	m.GetOrCreateChild(intObs(10), newNode)
	_, wasNew := m.GetOrCreateChild(intObs(12), newNode)

	assert.True(t, wasNew)
	assert.Len(t, m.Children(), 2)
}
