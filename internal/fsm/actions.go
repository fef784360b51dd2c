package fsm

import "github.com/librescoot/librefsm"

// Actions defines the interface for controller stage actions.
// Controller implements this interface to drive the indicator and
// telemetry when a stage is entered.
type Actions interface {
	// Stage entry actions
	EnterNormal(c *librefsm.Context) error
	EnterCalibrationLow(c *librefsm.Context) error
	EnterCalibrationHigh(c *librefsm.Context) error

	// Runs on the CalibrationHigh -> Normal edge, after the record has
	// been persisted
	OnCalibrationSaved(c *librefsm.Context) error
}
