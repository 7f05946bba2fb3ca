package solver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chainCodec encodes the chain fixture's int-backed State/Action/Observation
// as single little-endian bytes, just enough to exercise ExportSnapshot and
// ImportSnapshot end to end.
type chainCodec struct{}

func (chainCodec) EncodeState(s State) ([]byte, error) {
	return []byte{byte(s.(chainState))}, nil
}
func (chainCodec) DecodeState(data []byte) (State, error) {
	return chainState(data[0]), nil
}
func (chainCodec) EncodeAction(a Action) ([]byte, error) {
	return []byte{byte(a.(testAction))}, nil
}
func (chainCodec) DecodeAction(data []byte) (Action, error) {
	return testAction(data[0]), nil
}
func (chainCodec) EncodeObservation(o Observation) ([]byte, error) {
	return []byte{byte(o.(chainObs))}, nil
}
func (chainCodec) DecodeObservation(data []byte) (Observation, error) {
	return chainObs(data[0]), nil
}

func TestExportImportSnapshotRoundTripsBeliefAndHistory(t *testing.T) {
	s := newChainSolver(t)
	require.NoError(t, s.Improve())

	wantAction, ok := s.RootNode().RecommendedAction()
	require.True(t, ok)
	wantStats := s.RootNode().ActionMapping().(*EnumeratedActionMapping).Stats()
	wantSequences := s.Histories().Len()

	snap, err := s.ExportSnapshot(chainCodec{})
	require.NoError(t, err)
	assert.Equal(t, int64(7), snap.Seed)
	assert.NotEmpty(t, snap.States)
	assert.NotEmpty(t, snap.Sequences)

	restored := NewSolver(chainModel{}, 0)
	require.NoError(t, restored.ImportSnapshot(snap, chainCodec{}))

	assert.Equal(t, wantSequences, restored.Histories().Len())
	assert.Equal(t, s.RootNode().NParticles(), restored.RootNode().NParticles())

	gotAction, ok := restored.RootNode().RecommendedAction()
	require.True(t, ok)
	assert.Equal(t, wantAction, gotAction)

	gotStats := restored.RootNode().ActionMapping().(*EnumeratedActionMapping).Stats()
	require.Len(t, gotStats, len(wantStats))
	for i := range wantStats {
		assert.Equal(t, wantStats[i].Visits, gotStats[i].Visits)
		assert.InDelta(t, wantStats[i].TotalQ, gotStats[i].TotalQ, 1e-9)
	}
}

func TestExportSnapshotRequiresCodec(t *testing.T) {
	s := newChainSolver(t)
	_, err := s.ExportSnapshot(nil)
	require.Error(t, err)
	var perr *PlannerError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ErrConfiguration, perr.Kind)
}
