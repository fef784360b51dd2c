package core

import (
	"errors"
	"fmt"

	"throttle-quadrant/internal/calibration"
	"throttle-quadrant/internal/hid"
	"throttle-quadrant/internal/types"
)

// stepNormal ingests the samples and emits one report.
func (c *Controller) stepNormal(raw []uint16) error {
	for i, ch := range c.channels {
		ch.Ingest(raw[i])
	}

	if c.reverse != nil {
		pressed, err := c.reverse.Pressed()
		if err != nil {
			c.logger.Warnf("Failed to read reverse button: %v", err)
		}
		if pressed {
			c.reverseLatched = !c.reverseLatched
			c.logger.Infof("Reverse %v", c.reverseLatched)
		}
	}

	report := c.composeReport()
	c.lastReport = report

	if err := c.hw.Writer.WriteReport(report); err != nil {
		if errors.Is(err, hid.ErrWouldBlock) {
			c.logger.Debugf("Report skipped, endpoint busy")
			return nil
		}
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

func (c *Controller) composeReport() hid.Report {
	lo, hi := c.cfg.OutputRange.Min, c.cfg.OutputRange.Max
	report := hid.Report{
		X: c.channels[0].OutputRanged(lo, hi),
		Y: c.channels[1].OutputRanged(lo, hi),
		Z: c.channels[2].OutputRanged(lo, hi),
	}
	if c.reverseLatched {
		report.Buttons |= hid.ButtonReverse
	}
	return report
}

// stepCalibrationLow captures the current readings as minimum bounds.
func (c *Controller) stepCalibrationLow(raw []uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, v := range raw {
		c.record.SetMin(i, v)
	}
}

// stepCalibrationHigh captures the current readings as maximum bounds.
func (c *Controller) stepCalibrationHigh(raw []uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, v := range raw {
		c.record.SetMax(i, v)
	}
}

// finishCalibration persists the captured bounds and rebuilds the
// production channels from them. On error the stage is left unchanged.
func (c *Controller) finishCalibration() error {
	rec := c.Record()
	if err := c.commit(rec); err != nil {
		return err
	}
	c.logger.Infof("Calibration saved: %v", rec.Bounds)
	return nil
}

// resetCalibration restores and persists the default bounds.
func (c *Controller) resetCalibration() error {
	if stage := c.Stage(); stage != types.StageNormal {
		c.logger.Warnf("Ignoring calibration reset in %s", stage)
		return nil
	}
	rec := calibration.Default(len(c.cfg.Axes))
	if err := c.commit(rec); err != nil {
		return err
	}
	c.mu.Lock()
	c.record = rec
	c.mu.Unlock()
	c.logger.Infof("Calibration reset to defaults: %v", rec.Bounds)
	c.publishCalibration(rec)
	return nil
}

func (c *Controller) commit(rec calibration.Record) error {
	if err := calibration.Save(c.hw.Storage, c.cfg.Storage.RecordOffset, rec); err != nil {
		return fmt.Errorf("failed to persist calibration: %w", err)
	}
	channels, err := c.buildChannels(rec)
	if err != nil {
		return err
	}
	c.channels = channels
	return nil
}
