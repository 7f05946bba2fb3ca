package solver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoriesAddAndGet(t *testing.T) {
	h := NewHistories()
	seq := h.AddNew(0)

	require.Equal(t, seq, h.Get(seq.ID()))
	assert.Equal(t, int64(-1), seq.InvalidLinksStartID())
	assert.Equal(t, 1, h.Len())
}

func TestHistorySequenceAddEntryRegistersBackReference(t *testing.T) {
	pool := NewStatePool(nil)
	h := NewHistories()
	seq := h.AddNew(0)

	info := pool.CreateOrGetInfo(intState(1))
	entry := seq.addEntry(info, 1.0)

	assert.Equal(t, int64(0), entry.EntryID())
	assert.Contains(t, info.UsedInHistoryEntries(), entry)
	assert.Same(t, seq, entry.OwningSequence())
}

func TestHistoryEntryRegisterNodeMovesParticleBetweenNodes(t *testing.T) {
	pool := NewStatePool(nil)
	h := NewHistories()
	seq := h.AddNew(0)
	info := pool.CreateOrGetInfo(intState(1))
	entry := seq.addEntry(info, 1.0)

	n1 := newBeliefNode(1, 0, NewEnumeratedActionMapping(nil, nil, nil))
	n2 := newBeliefNode(2, 0, NewEnumeratedActionMapping(nil, nil, nil))

	entry.RegisterNode(n1)
	assert.Equal(t, 1, n1.NParticles())

	entry.RegisterNode(n2)
	assert.Equal(t, 0, n1.NParticles())
	assert.Equal(t, 1, n2.NParticles())
	assert.Same(t, n2, entry.OwningBeliefNode())
}

func TestHistorySequenceTruncateFromDeregistersBeforeReclaiming(t *testing.T) {
	pool := NewStatePool(nil)
	h := NewHistories()
	seq := h.AddNew(0)
	node := newBeliefNode(1, 0, NewEnumeratedActionMapping(nil, nil, nil))

	info1 := pool.CreateOrGetInfo(intState(1))
	info2 := pool.CreateOrGetInfo(intState(2))
	e1 := seq.addEntry(info1, 1.0)
	e2 := seq.addEntry(info2, 1.0)
	e1.RegisterNode(node)
	e2.RegisterNode(node)

	seq.truncateFrom(1)

	assert.Len(t, seq.Entries(), 1)
	assert.Equal(t, 1, node.NParticles(), "only e1's particle should remain registered")
	assert.NotContains(t, info2.UsedInHistoryEntries(), e2)
}

func TestHistoriesDeleteByIDClearsBackReferences(t *testing.T) {
	pool := NewStatePool(nil)
	h := NewHistories()
	seq := h.AddNew(0)
	info := pool.CreateOrGetInfo(intState(1))
	entry := seq.addEntry(info, 1.0)

	h.DeleteByID(seq.ID())

	assert.Nil(t, h.Get(seq.ID()))
	assert.NotContains(t, info.UsedInHistoryEntries(), entry)
}

func TestBackupAndUndoBackupInvariant(t *testing.T) {
	pool := NewStatePool(nil)
	h := NewHistories()
	seq := h.AddNew(0)
	am := NewEnumeratedActionMapping(nil, []EnumeratedAction{testAction(0), testAction(1)}, nil)
	node := newBeliefNode(1, 0, am)

	info0 := pool.CreateOrGetInfo(intState(0))
	info1 := pool.CreateOrGetInfo(intState(1))
	e0 := seq.addEntry(info0, 1.0)
	e0.RegisterNode(node)
	e0.SetActionTaken(testAction(0))
	e0.SetReward(1.0)
	e1 := seq.addEntry(info1, 0.9)

	s := &Solver{model: constDiscountModel{0.9}}
	s.backup(seq, 0.0)

	require.True(t, e0.HasBeenBackedUp())
	assert.InDelta(t, 1.0, e0.TotalDiscountedReward(), 1e-9)
	stats := am.Stats()
	assert.Equal(t, int64(1), stats[0].Visits)
	assert.InDelta(t, 1.0, stats[0].TotalQ, 1e-9)

	require.NoError(t, s.undoBackup(seq, 0))
	stats = am.Stats()
	assert.Equal(t, int64(0), stats[0].Visits)
	assert.InDelta(t, 0.0, stats[0].TotalQ, 1e-9)
	assert.False(t, e0.HasBeenBackedUp())
	_ = e1
}

type testAction int

func (a testAction) Equals(other Action) bool { o, ok := other.(testAction); return ok && o == a }
func (a testAction) Hash() uint64              { return uint64(a) }
func (a testAction) String() string            { return "" }
func (a testAction) Code() int                 { return int(a) }

type constDiscountModel struct{ discount float64 }

func (m constDiscountModel) DiscountFactor() float64               { return m.discount }
func (m constDiscountModel) MaxVal() float64                       { return 0 }
func (m constDiscountModel) MinVal() float64                       { return 0 }
func (m constDiscountModel) UcbExploreCoefficient() float64        { return 1 }
func (m constDiscountModel) HeuristicExploreCoefficient() float64  { return 0 }
func (m constDiscountModel) MaxTrials() int64                      { return 0 }
func (m constDiscountModel) MaxDepth() int64                       { return 0 }
func (m constDiscountModel) MaxNnComparisons() int64               { return 0 }
func (m constDiscountModel) MaxNnDistance() float64                { return 0 }
func (m constDiscountModel) NParticles() int64                     { return 0 }
func (m constDiscountModel) SampleAnInitState() State              { return intState(0) }
func (m constDiscountModel) GenerateStep(State, Action) StepResult { return StepResult{} }
func (m constDiscountModel) GetHeuristicValue(State) float64       { return 0 }
func (m constDiscountModel) GenerateParticles(*BeliefNode, Action, Observation, []State) []State {
	return nil
}
func (m constDiscountModel) GenerateParticlesUninformed(*BeliefNode, Action, Observation) []State {
	return nil
}
func (m constDiscountModel) CreateActionPool() ActionPool                 { return nil }
func (m constDiscountModel) CreateObservationPool() ObservationPool       { return nil }
func (m constDiscountModel) CreateStateIndex() StateIndex                 { return nil }
func (m constDiscountModel) CreateHistoryCorrector() HistoryCorrector     { return nil }
func (m constDiscountModel) LoadChanges(string) ([]int64, error)          { return nil, nil }
func (m constDiscountModel) Update(int64, *StatePool) error               { return nil }
func (m constDiscountModel) Codec() Codec                                 { return nil }
