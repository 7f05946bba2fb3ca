package solver

import (
	"errors"

	"github.com/CxyCH/tapir/internal/diag"
)

// StepTrace records one simulated environment step, for result reporting
// and checkpoint persistence.
type StepTrace struct {
	Step        int64
	Action      Action
	Observation Observation
	Reward      float64
	IsTerminal  bool
}

// SimulationResult is the outcome of one SimulationLoop.Run call.
type SimulationResult struct {
	TotalDiscountedReward float64
	Steps                 []StepTrace
	Terminated            bool
}

// SimulationLoop interleaves policy improvement with policy execution
// against a ground-truth trajectory distinct from the planner's belief,
// applying scheduled Model changes as the epoch advances (spec.md §4.10,
// C10).
type SimulationLoop struct {
	solver *Solver
	agent  *Agent

	trueState   State
	changeTimes []int64
	changeIdx   int
}

// NewSimulationLoop constructs a loop bound to solver, sampling the
// ground-truth initial state from the Model and loading any scheduled
// changes from changeFilePath (empty string disables change loading).
func NewSimulationLoop(s *Solver, changeFilePath string) (*SimulationLoop, error) {
	var changeTimes []int64
	if changeFilePath != "" {
		times, err := s.model.LoadChanges(changeFilePath)
		if err != nil {
			return nil, &PlannerError{Kind: ErrConfiguration, Msg: "loading change file", Err: err}
		}
		changeTimes = times
	}
	return &SimulationLoop{
		solver:      s,
		agent:       NewAgent(s),
		trueState:   s.model.SampleAnInitState(),
		changeTimes: changeTimes,
	}, nil
}

// Agent returns the loop's Agent façade.
func (l *SimulationLoop) Agent() *Agent { return l.agent }

// TrueState returns the current ground-truth state.
func (l *SimulationLoop) TrueState() State { return l.trueState }

// Run executes up to maxSteps improve/act/observe cycles, stopping early if
// the ground-truth trajectory reaches a terminal state.
func (l *SimulationLoop) Run(maxSteps int64) (SimulationResult, error) {
	result := SimulationResult{Steps: make([]StepTrace, 0, maxSteps)}
	discount := 1.0

	for step := int64(0); step < maxSteps; step++ {
		if err := l.applyDueChanges(step); err != nil {
			return result, err
		}

		if info := l.solver.statePool.GetInfo(l.trueState); info != nil && HasFlag(info.ChangeFlags(), ChangeDeleted) {
			return result, &PlannerError{Kind: ErrInvariant, Msg: "live execution state flagged deleted"}
		}

		if err := l.solver.Improve(); err != nil {
			return result, err
		}

		action, err := l.agent.RecommendAction()
		if err != nil {
			return result, err
		}

		outcome := l.solver.model.GenerateStep(l.trueState, action)
		result.TotalDiscountedReward += discount * outcome.Reward
		discount *= l.solver.model.DiscountFactor()

		result.Steps = append(result.Steps, StepTrace{
			Step:        step,
			Action:      action,
			Observation: outcome.Observation,
			Reward:      outcome.Reward,
			IsTerminal:  outcome.IsTerminal,
		})

		if _, err := l.agent.UpdateBelief(action, outcome.Observation); err != nil {
			diag.Logf("simulation loop: belief update at step %d: %v", step, err)
			return result, err
		}

		l.trueState = outcome.NextState
		if outcome.IsTerminal {
			result.Terminated = true
			break
		}
	}
	return result, nil
}

// applyDueChanges applies every scheduled change epoch that has arrived by
// step, in order, aborting on the first fatal error (spec.md §7: fatal
// errors exit with a non-zero status).
func (l *SimulationLoop) applyDueChanges(step int64) error {
	for l.changeIdx < len(l.changeTimes) && l.changeTimes[l.changeIdx] <= step {
		t := l.changeTimes[l.changeIdx]
		if err := l.solver.ApplyChanges(t); err != nil {
			var perr *PlannerError
			if !errors.As(err, &perr) || perr.Kind.IsFatal() {
				return err
			}
			diag.Logf("simulation loop: change at time %d: %v", t, err)
		}
		l.changeIdx++
	}
	return nil
}
