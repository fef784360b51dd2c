package core

import (
	"context"

	"github.com/librescoot/librefsm"

	"throttle-quadrant/internal/fsm"
	"throttle-quadrant/internal/types"
)

// Ensure Controller implements fsm.Actions
var _ fsm.Actions = (*Controller)(nil)

const evCalibrate = fsm.EvCalibrate

func stageOf(id librefsm.StateID) types.Stage {
	return fsm.StageOf(id)
}

// initFSM builds and starts the stage machine
func (c *Controller) initFSM(ctx context.Context) error {
	def := fsm.NewDefinition(c)
	machine, err := def.Build()
	if err != nil {
		return err
	}
	machine.OnStateChange(func(from, to librefsm.StateID) {
		c.logger.Infof("Stage transition: %s -> %s", stageOf(from), stageOf(to))
		if c.hw.Telemetry != nil {
			if err := c.hw.Telemetry.PublishStage(stageOf(to)); err != nil {
				c.logger.Warnf("Failed to publish stage: %v", err)
			}
		}
	})

	if err := machine.Start(ctx); err != nil {
		return err
	}
	c.ctx = ctx
	c.machine = machine

	c.logger.Infof("Stage machine started in %s", c.Stage())
	return nil
}

// sendEvent sends an event and waits for the transition to complete.
// The machine stops with its context, so the wait also ends there.
func (c *Controller) sendEvent(event librefsm.EventID) error {
	if c.ctx == nil {
		return c.machine.SendSync(librefsm.Event{ID: event})
	}
	if err := c.ctx.Err(); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		done <- c.machine.SendSync(librefsm.Event{ID: event})
	}()
	select {
	case err := <-done:
		return err
	case <-c.ctx.Done():
		return c.ctx.Err()
	}
}

// applyIndication sets the indicator duty for stage: off in Normal, dim
// while capturing minimums, half while capturing maximums.
func (c *Controller) applyIndication(stage types.Stage) {
	if c.hw.Indicator == nil {
		return
	}
	var duty uint32
	switch stage {
	case types.StageCalibrationLow:
		duty = c.hw.Indicator.MaxDuty() / 8
	case types.StageCalibrationHigh:
		duty = c.hw.Indicator.MaxDuty() / 2
	}
	if err := c.hw.Indicator.SetDuty(duty); err != nil {
		c.logger.Warnf("Failed to set indicator for %s: %v", stage, err)
	}
}

// === Stage Entry Actions ===

func (c *Controller) EnterNormal(ctx *librefsm.Context) error {
	c.logger.Debugf("FSM: EnterNormal")
	c.applyIndication(types.StageNormal)
	return nil
}

func (c *Controller) EnterCalibrationLow(ctx *librefsm.Context) error {
	c.logger.Infof("Calibration: move every lever to its minimum, then press calibrate")
	c.applyIndication(types.StageCalibrationLow)
	return nil
}

func (c *Controller) EnterCalibrationHigh(ctx *librefsm.Context) error {
	c.logger.Infof("Calibration: move every lever to its maximum, then press calibrate")
	c.applyIndication(types.StageCalibrationHigh)
	return nil
}

// === Transition Actions ===

func (c *Controller) OnCalibrationSaved(ctx *librefsm.Context) error {
	c.logger.Debugf("FSM: OnCalibrationSaved")
	c.publishCalibration(c.Record())
	return nil
}
