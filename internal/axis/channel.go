// Package axis maps one conditioned analog input into a calibrated output
// range.
package axis

import (
	"errors"
	"fmt"

	"throttle-quadrant/internal/filter"
)

// Capacity is the maximum number of steps in a channel chain.
const Capacity = 4

var ErrChainFull = errors.New("filter chain full")

// Bounds is the calibrated raw range of one axis.
type Bounds struct {
	Min uint16 `json:"min" yaml:"min"`
	Max uint16 `json:"max" yaml:"max"`
}

// Degenerate reports whether the range has no width.
func (b Bounds) Degenerate() bool {
	return b.Max <= b.Min
}

func (b Bounds) String() string {
	return fmt.Sprintf("[%d,%d]", b.Min, b.Max)
}

// Channel owns a fixed-capacity filter chain and the calibration range of
// a single axis. Steps run in insertion order.
type Channel struct {
	min      uint16
	max      uint16
	value    uint16
	reversed bool
	chain    [Capacity]filter.Step
	length   int
}

func New(bounds Bounds, reversed bool) *Channel {
	return &Channel{
		min:      bounds.Min,
		max:      bounds.Max,
		value:    bounds.Min,
		reversed: reversed,
	}
}

// AddStep appends a step to the chain.
func (c *Channel) AddStep(step filter.Step) error {
	if c.length >= Capacity {
		return fmt.Errorf("%w: capacity %d", ErrChainFull, Capacity)
	}
	c.chain[c.length] = step
	c.length++
	return nil
}

// Ingest runs a raw sample through every step and stores the result.
func (c *Channel) Ingest(raw uint16) {
	c.value = raw
	for i := 0; i < c.length; i++ {
		c.value = c.chain[i].Process(c.value)
	}
}

// TuneDeltaGates sets the sensitivity of every delta gate in the chain.
func (c *Channel) TuneDeltaGates(sensitivity uint16) {
	for i := 0; i < c.length; i++ {
		c.chain[i].SetSensitivity(sensitivity)
	}
}

func (c *Channel) RawOutput() uint16 {
	return c.value
}

// Output applies reversal and clamps the value into [min,max].
func (c *Channel) Output() uint16 {
	v := int(c.value)
	lo, hi := int(c.min), int(c.max)
	if c.reversed {
		v = hi - (v - lo)
	}
	if v < lo {
		v = lo
	}
	if v > hi {
		v = hi
	}
	return uint16(v)
}

// OutputRanged rescales Output from [min,max] into [lo,hi], rounding down.
// A channel whose range has no width always yields lo.
func (c *Channel) OutputRanged(lo, hi uint16) uint16 {
	if c.max <= c.min || hi <= lo {
		return lo
	}
	// Multiply before dividing so Output()==max lands exactly on hi.
	span := uint32(c.Output() - c.min)
	result := uint32(lo) + span*uint32(hi-lo)/uint32(c.max-c.min)
	if result > uint32(hi) {
		return hi
	}
	return uint16(result)
}

func (c *Channel) Bounds() Bounds {
	return Bounds{Min: c.min, Max: c.max}
}

func (c *Channel) Reversed() bool {
	return c.reversed
}

// Len returns the number of steps in the chain.
func (c *Channel) Len() int {
	return c.length
}
