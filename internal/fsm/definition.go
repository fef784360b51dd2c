package fsm

import "github.com/librescoot/librefsm"

// NewDefinition creates the controller stage machine.
// Each debounced calibration press advances one stage:
// Normal -> CalibrationLow -> CalibrationHigh -> Normal.
// NormalMultiplexed is reserved and has no incoming transitions.
func NewDefinition(actions Actions) *librefsm.Definition {
	return librefsm.NewDefinition().
		State(StateNormal,
			librefsm.WithOnEnter(actions.EnterNormal),
		).
		State(StateNormalMultiplexed).
		State(StateCalibrationLow,
			librefsm.WithOnEnter(actions.EnterCalibrationLow),
		).
		State(StateCalibrationHigh,
			librefsm.WithOnEnter(actions.EnterCalibrationHigh),
		).
		Transition(StateNormal, EvCalibrate, StateCalibrationLow).
		Transition(StateCalibrationLow, EvCalibrate, StateCalibrationHigh).
		Transition(StateCalibrationHigh, EvCalibrate, StateNormal,
			librefsm.WithAction(actions.OnCalibrationSaved),
		).
		Initial(StateNormal)
}
