package core

import (
	"throttle-quadrant/internal/axis"
	"throttle-quadrant/internal/button"
	"throttle-quadrant/internal/calibration"
	"throttle-quadrant/internal/hid"
	"throttle-quadrant/internal/types"
)

// AnalogSampler reads one conversion from an ADC channel.
type AnalogSampler interface {
	Sample(channel int) (uint16, error)
}

// ReportWriter delivers reports to the host. hid.ErrWouldBlock marks a
// report that could not be queued this iteration.
type ReportWriter interface {
	WriteReport(report hid.Report) error
}

// Indicator drives the stage indication output.
type Indicator interface {
	MaxDuty() uint32
	SetDuty(duty uint32) error
}

// Telemetry receives controller state for external consumers.
type Telemetry interface {
	PublishStage(stage types.Stage) error
	PublishCalibration(bounds []axis.Bounds) error
	PublishSnapshot(snapshot types.Snapshot) error
}

// Hardware bundles the capabilities the Controller runs against.
// Indicator and Telemetry are optional.
type Hardware struct {
	Sampler   AnalogSampler
	Calibrate button.Input
	Reverse   button.Input
	Writer    ReportWriter
	Storage   calibration.Storage
	Indicator Indicator
	Telemetry Telemetry
}
