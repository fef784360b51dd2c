package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/librescoot/librefsm"

	"throttle-quadrant/internal/axis"
	"throttle-quadrant/internal/button"
	"throttle-quadrant/internal/calibration"
	"throttle-quadrant/internal/config"
	"throttle-quadrant/internal/filter"
	"throttle-quadrant/internal/hid"
	"throttle-quadrant/internal/logger"
	"throttle-quadrant/internal/types"
)

// tuner channel bounds cover the full 12-bit conversion range
const (
	tunerMin uint16 = 0
	tunerMax uint16 = 4096
)

var (
	ErrUnsupportedStage = errors.New("stage not supported")
	ErrNotStarted       = errors.New("controller not started")
)

// stageMachine is the part of the librefsm machine the loop drives.
type stageMachine interface {
	CurrentState() librefsm.StateID
	SendSync(event librefsm.Event) error
}

// Controller owns the production axes, the calibration record and the
// buttons. Step runs one loop iteration and must only be called from a
// single goroutine.
type Controller struct {
	cfg     config.Config
	logger  *logger.Logger
	hw      Hardware
	machine stageMachine
	// ctx is the machine's lifetime; events are not sent once it is done
	ctx context.Context

	calibrate *button.Button
	reverse   *button.Button

	tunerSmoother *filter.BlockSmoother
	tuner         *axis.Channel
	channels      []*axis.Channel

	reverseLatched bool
	lastReport     hid.Report
	lastPublish    time.Time
	now            func() time.Time

	commands chan Command

	mu       sync.RWMutex
	record   calibration.Record
	snapshot types.Snapshot
}

// NewController validates the configuration against the hardware. No
// hardware is touched until Start.
func NewController(hw Hardware, cfg config.Config, l *logger.Logger) (*Controller, error) {
	if hw.Sampler == nil || hw.Calibrate == nil || hw.Writer == nil || hw.Storage == nil {
		return nil, fmt.Errorf("sampler, calibrate button, report writer and storage are required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	smoother, err := filter.NewBlockSmoother(cfg.TunerWindow)
	if err != nil {
		return nil, err
	}

	c := &Controller{
		cfg:           cfg,
		logger:        l,
		hw:            hw,
		calibrate:     button.New(hw.Calibrate, cfg.DebounceTicks),
		tunerSmoother: smoother,
		tuner:         axis.New(axis.Bounds{Min: tunerMin, Max: tunerMax}, true),
		now:           time.Now,
		commands:      make(chan Command, commandQueueSize),
	}
	if hw.Reverse != nil {
		c.reverse = button.New(hw.Reverse, cfg.DebounceTicks)
	}
	return c, nil
}

// Start loads the calibration record, builds the axis channels and starts
// the stage machine in Normal.
func (c *Controller) Start(ctx context.Context) error {
	rec, stored, err := calibration.Load(c.hw.Storage, c.cfg.Storage.RecordOffset, len(c.cfg.Axes))
	if err != nil {
		return err
	}
	if stored {
		c.logger.Infof("Loaded calibration: %v", rec.Bounds)
	} else {
		c.logger.Infof("No stored calibration, using defaults: %v", rec.Bounds)
	}

	channels, err := c.buildChannels(rec)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.record = rec
	c.mu.Unlock()
	c.channels = channels

	if err := c.initFSM(ctx); err != nil {
		return fmt.Errorf("failed to start stage machine: %w", err)
	}

	c.applyIndication(c.Stage())
	c.publishCalibration(rec)
	return nil
}

// Run calls Step once per loop period until ctx is cancelled or Step
// returns an error.
func (c *Controller) Run(ctx context.Context) error {
	if c.machine == nil {
		return ErrNotStarted
	}

	ticker := time.NewTicker(c.cfg.LoopPeriod)
	defer ticker.Stop()

	c.logger.Infof("Control loop running every %v", c.cfg.LoopPeriod)
	for {
		select {
		case <-ctx.Done():
			c.logger.Infof("Control loop stopped")
			return nil
		case <-ticker.C:
			// select may pick the tick after cancellation
			if ctx.Err() != nil {
				c.logger.Infof("Control loop stopped")
				return nil
			}
			if err := c.Step(); err != nil {
				c.logger.Errorf("Control loop failed: %v", err)
				return err
			}
		}
	}
}

// Step runs one iteration: sample, advance the stage, emit.
func (c *Controller) Step() error {
	if c.machine == nil {
		return ErrNotStarted
	}

	pressed, err := c.handleCommands()
	if err != nil {
		return err
	}

	sensitivity := c.updateTuner()
	raw := c.sampleAxes()

	btn, err := c.calibrate.Pressed()
	if err != nil {
		c.logger.Warnf("Failed to read calibrate button: %v", err)
	}
	pressed = pressed || btn

	stage := c.Stage()
	switch stage {
	case types.StageNormal:
		if err := c.stepNormal(raw); err != nil {
			return err
		}
	case types.StageCalibrationLow:
		c.stepCalibrationLow(raw)
	case types.StageCalibrationHigh:
		c.stepCalibrationHigh(raw)
		if pressed {
			if err := c.finishCalibration(); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedStage, stage)
	}

	if pressed {
		c.logger.Debugf("Calibrate pressed in %s", stage)
		if err := c.sendEvent(evCalibrate); err != nil {
			return fmt.Errorf("failed to advance from %s: %w", stage, err)
		}
	}

	c.updateSnapshot(stage, raw, sensitivity)
	return nil
}

// Stage returns the current controller stage.
func (c *Controller) Stage() types.Stage {
	if c.machine == nil {
		return types.StageNormal
	}
	return stageOf(c.machine.CurrentState())
}

// Record returns a copy of the calibration record in use. During
// calibration it reflects the bounds captured so far.
func (c *Controller) Record() calibration.Record {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.record.Clone()
}

// Snapshot returns the state after the most recent Step.
func (c *Controller) Snapshot() types.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := c.snapshot
	s.Raw = append([]uint16(nil), s.Raw...)
	s.Bounds = append([]axis.Bounds(nil), s.Bounds...)
	return s
}

// updateTuner feeds the tuner potentiometer through its smoother and
// retunes every delta gate of the production chains.
func (c *Controller) updateTuner() uint16 {
	c.tunerSmoother.Process(c.sample(c.cfg.ADC.TunerChannel))
	c.tuner.Ingest(c.tunerSmoother.Output())
	sensitivity := c.tuner.OutputRanged(c.cfg.TunerRange.Min, c.cfg.TunerRange.Max)
	for _, ch := range c.channels {
		ch.TuneDeltaGates(sensitivity)
	}
	return sensitivity
}

func (c *Controller) sampleAxes() []uint16 {
	raw := make([]uint16, len(c.cfg.Axes))
	for i, a := range c.cfg.Axes {
		raw[i] = c.sample(a.ADCChannel)
	}
	return raw
}

// sample never fails: a conversion error reads as zero.
func (c *Controller) sample(channel int) uint16 {
	v, err := c.hw.Sampler.Sample(channel)
	if err != nil {
		c.logger.Debugf("Sample on channel %d failed: %v", channel, err)
		return 0
	}
	return v
}

// buildChannels creates one channel per configured axis with a fresh
// copy of the configured chain.
func (c *Controller) buildChannels(rec calibration.Record) ([]*axis.Channel, error) {
	channels := make([]*axis.Channel, len(c.cfg.Axes))
	for i, a := range c.cfg.Axes {
		ch := axis.New(rec.Bounds[i], a.Reversed)
		for j, sc := range c.cfg.Chain {
			step, err := sc.Build()
			if err != nil {
				return nil, fmt.Errorf("axis %s step %d: %w", a.Name, j, err)
			}
			if err := ch.AddStep(step); err != nil {
				return nil, fmt.Errorf("axis %s: %w", a.Name, err)
			}
		}
		channels[i] = ch
	}
	return channels, nil
}

func (c *Controller) updateSnapshot(stage types.Stage, raw []uint16, sensitivity uint16) {
	c.mu.Lock()
	c.snapshot = types.Snapshot{
		Time:        c.now(),
		Stage:       stage,
		Report:      c.lastReport,
		Raw:         raw,
		Bounds:      append([]axis.Bounds(nil), c.record.Bounds...),
		Sensitivity: sensitivity,
		Reverse:     c.reverseLatched,
	}
	snapshot := c.snapshot
	c.mu.Unlock()

	if c.hw.Telemetry == nil {
		return
	}
	if c.cfg.TelemetryInterval > 0 && snapshot.Time.Sub(c.lastPublish) < c.cfg.TelemetryInterval {
		return
	}
	c.lastPublish = snapshot.Time
	if err := c.hw.Telemetry.PublishSnapshot(snapshot); err != nil {
		c.logger.Debugf("Failed to publish snapshot: %v", err)
	}
}

func (c *Controller) publishCalibration(rec calibration.Record) {
	if c.hw.Telemetry == nil {
		return
	}
	if err := c.hw.Telemetry.PublishCalibration(rec.Bounds); err != nil {
		c.logger.Warnf("Failed to publish calibration: %v", err)
	}
}
