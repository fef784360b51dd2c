package fsm

import (
	"github.com/librescoot/librefsm"

	"throttle-quadrant/internal/types"
)

// Controller stages
const (
	StateNormal            librefsm.StateID = librefsm.StateID(types.StageNormal)
	StateNormalMultiplexed librefsm.StateID = librefsm.StateID(types.StageNormalMultiplexed)
	StateCalibrationLow    librefsm.StateID = librefsm.StateID(types.StageCalibrationLow)
	StateCalibrationHigh   librefsm.StateID = librefsm.StateID(types.StageCalibrationHigh)
)

// Controller events
const (
	// Debounced press of the calibration button
	EvCalibrate librefsm.EventID = "calibrate-pressed"
)

// StageOf maps a state ID back to the stage it represents.
func StageOf(id librefsm.StateID) types.Stage {
	return types.Stage(id)
}
