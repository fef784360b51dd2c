package types

// Stage is the controller operating stage as reported to telemetry.
type Stage string

const (
	StageNormal            Stage = "normal"
	StageNormalMultiplexed Stage = "normal-multiplexed"
	StageCalibrationLow    Stage = "calibration-low"
	StageCalibrationHigh   Stage = "calibration-high"
)

// Calibrating reports whether the stage records calibration bounds.
func (s Stage) Calibrating() bool {
	return s == StageCalibrationLow || s == StageCalibrationHigh
}
