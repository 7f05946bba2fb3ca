package nav2d

import (
	"encoding/json"

	"github.com/CxyCH/tapir/internal/solver"
)

// codec encodes State/Action/Observation as JSON, the same convention every
// example Model in this repository uses for checkpointing.
type codec struct{}

func (codec) EncodeState(s solver.State) ([]byte, error) { return json.Marshal(s.(State)) }

func (codec) DecodeState(data []byte) (solver.State, error) {
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return s, nil
}

func (codec) EncodeAction(a solver.Action) ([]byte, error) { return json.Marshal(a.(Action)) }

func (codec) DecodeAction(data []byte) (solver.Action, error) {
	var a Action
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, err
	}
	return a, nil
}

func (codec) EncodeObservation(o solver.Observation) ([]byte, error) {
	return json.Marshal(o.(Observation))
}

func (codec) DecodeObservation(data []byte) (solver.Observation, error) {
	var o Observation
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, err
	}
	return o, nil
}
