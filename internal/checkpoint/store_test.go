package checkpoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CxyCH/tapir/internal/solver"
)

func sampleSnapshot() *solver.Snapshot {
	return &solver.Snapshot{
		Seed:       42,
		RootNodeID: 0,
		Clock:      3.0,
		States: []solver.StateSnapshot{
			{ID: 0, State: []byte{0}, Flags: solver.ChangeUnchanged},
			{ID: 1, State: []byte{1}, Flags: solver.ChangeReward},
		},
		Sequences: []solver.SequenceSnapshot{
			{
				ID: 0, StartDepth: 0, IsTerminal: true, InvalidLinksStartID: -1,
				Entries: []solver.EntrySnapshot{
					{EntryID: 0, StateID: 0, Discount: 1.0, Reward: 0, Action: []byte{1}, Observation: []byte{1}, BeliefNodeID: 0},
					{EntryID: 1, StateID: 1, Discount: 0.95, Reward: 1, TotalDiscountedReward: 1, HasBeenBackedUp: true, BeliefNodeID: 1},
				},
			},
		},
		Nodes: []solver.NodeSnapshot{
			{ID: 0, Depth: 0, Stats: []solver.NodeStatSnapshot{
				{Action: []byte{0}, Visits: 3, TotalQ: 0, Legal: true},
				{Action: []byte{1}, Visits: 5, TotalQ: 5, Legal: true},
			}},
			{ID: 1, Depth: 1},
		},
	}
}

func TestSaveAndLoadRoundTripsASnapshot(t *testing.T) {
	store, err := Open(":memory:")
	require.NoError(t, err)
	defer store.Close()

	want := sampleSnapshot()
	id, err := store.Save("test", want)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	got, err := store.Load(id)
	require.NoError(t, err)

	assert.Equal(t, want.Seed, got.Seed)
	assert.Equal(t, want.RootNodeID, got.RootNodeID)
	assert.InDelta(t, want.Clock, got.Clock, 1e-9)
	assert.Equal(t, want.States, got.States)
	assert.Equal(t, want.Sequences, got.Sequences)
	assert.Equal(t, want.Nodes, got.Nodes)
}

func TestSaveTwiceWithoutMutationReserializesIdentically(t *testing.T) {
	store, err := Open(":memory:")
	require.NoError(t, err)
	defer store.Close()

	snap := sampleSnapshot()
	id1, err := store.Save("a", snap)
	require.NoError(t, err)
	id2, err := store.Save("b", snap)
	require.NoError(t, err)

	got1, err := store.Load(id1)
	require.NoError(t, err)
	got2, err := store.Load(id2)
	require.NoError(t, err)

	assert.Equal(t, got1.States, got2.States)
	assert.Equal(t, got1.Sequences, got2.Sequences)
	assert.Equal(t, got1.Nodes, got2.Nodes)
}

func TestListAndDelete(t *testing.T) {
	store, err := Open(":memory:")
	require.NoError(t, err)
	defer store.Close()

	id, err := store.Save("x", sampleSnapshot())
	require.NoError(t, err)

	ids, err := store.List()
	require.NoError(t, err)
	assert.Contains(t, ids, id)

	require.NoError(t, store.Delete(id))

	ids, err = store.List()
	require.NoError(t, err)
	assert.NotContains(t, ids, id)

	_, err = store.Load(id)
	assert.Error(t, err)
}
