package core

import (
	"errors"
	"fmt"
)

type Command string

const (
	// CommandCalibrate acts like one debounced press of the calibrate button
	CommandCalibrate Command = "calibrate"
	// CommandResetCalibration persists the default bounds, Normal only
	CommandResetCalibration Command = "reset-calibration"
)

const commandQueueSize = 8

var ErrCommandQueueFull = errors.New("command queue full")

// ParseCommand validates a command received from a remote source.
func ParseCommand(value string) (Command, error) {
	switch cmd := Command(value); cmd {
	case CommandCalibrate, CommandResetCalibration:
		return cmd, nil
	default:
		return "", fmt.Errorf("invalid command: %s", value)
	}
}

// HandleCommand queues a remote command for the next Step. It is safe to
// call from any goroutine.
func (c *Controller) HandleCommand(value string) error {
	cmd, err := ParseCommand(value)
	if err != nil {
		return err
	}
	select {
	case c.commands <- cmd:
		c.logger.Debugf("Queued command %s", cmd)
		return nil
	default:
		return ErrCommandQueueFull
	}
}

// handleCommands drains queued commands. It reports whether a calibrate
// press was requested.
func (c *Controller) handleCommands() (bool, error) {
	pressed := false
	for {
		select {
		case cmd := <-c.commands:
			switch cmd {
			case CommandCalibrate:
				pressed = true
			case CommandResetCalibration:
				if err := c.resetCalibration(); err != nil {
					return pressed, err
				}
			}
		default:
			return pressed, nil
		}
	}
}
