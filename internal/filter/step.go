// Package filter holds the per-axis signal conditioning stages.
//
// A Step is a closed tagged variant over the three known stage kinds. All
// state lives inline so a chain of steps never allocates after construction.
package filter

import (
	"errors"
	"fmt"
	"math"
)

// MaxWindow bounds the moving average ring buffer.
const MaxWindow = 64

// DefaultWindow matches the stock throttle firmware.
const DefaultWindow = 32

var ErrInvalidWindow = errors.New("filter window out of range")

type Kind uint8

const (
	KindNone Kind = iota
	KindMovingAverage
	KindDeltaGate
	KindExponentialSmooth
)

func (k Kind) String() string {
	switch k {
	case KindMovingAverage:
		return "mean"
	case KindDeltaGate:
		return "delta"
	case KindExponentialSmooth:
		return "lerp"
	default:
		return "none"
	}
}

// ParseKind accepts the config names of the step kinds.
func ParseKind(name string) (Kind, error) {
	switch name {
	case "mean", "moving-average":
		return KindMovingAverage, nil
	case "delta", "delta-gate":
		return KindDeltaGate, nil
	case "lerp", "exponential":
		return KindExponentialSmooth, nil
	default:
		return KindNone, fmt.Errorf("unknown filter kind %q", name)
	}
}

type movingAverage struct {
	values [MaxWindow]uint16
	size   int
	cursor int
}

type deltaGate struct {
	sensitivity uint16
	last        uint16
}

type exponentialSmooth struct {
	seeded   bool
	smoothed float32
	factor   float32
}

// Step is one stateful transform in an axis chain.
type Step struct {
	kind   Kind
	mean   movingAverage
	gate   deltaGate
	smooth exponentialSmooth
}

// NewMovingAverage returns a windowed mean over the last window samples.
// The window starts zero filled, so early outputs are biased toward zero
// until window samples have been seen.
func NewMovingAverage(window int) (Step, error) {
	if window < 1 || window > MaxWindow {
		return Step{}, fmt.Errorf("%w: %d (1..%d)", ErrInvalidWindow, window, MaxWindow)
	}
	return Step{kind: KindMovingAverage, mean: movingAverage{size: window}}, nil
}

// NewDeltaGate passes a sample only when it moved at least sensitivity
// away from the last passed value.
func NewDeltaGate(sensitivity uint16) Step {
	return Step{kind: KindDeltaGate, gate: deltaGate{sensitivity: sensitivity}}
}

// NewExponentialSmooth blends each sample into a running value. The factor
// is clamped to [0,1]; the first sample seeds the running value as is.
func NewExponentialSmooth(factor float32) Step {
	switch {
	case factor < 0 || math.IsNaN(float64(factor)):
		factor = 0
	case factor > 1:
		factor = 1
	}
	return Step{kind: KindExponentialSmooth, smooth: exponentialSmooth{factor: factor}}
}

func (s *Step) Kind() Kind {
	return s.kind
}

// SetSensitivity retunes a delta gate. Other kinds ignore it.
func (s *Step) SetSensitivity(sensitivity uint16) {
	if s.kind == KindDeltaGate {
		s.gate.sensitivity = sensitivity
	}
}

// Sensitivity returns the delta gate threshold, or 0 for other kinds.
func (s *Step) Sensitivity() uint16 {
	if s.kind != KindDeltaGate {
		return 0
	}
	return s.gate.sensitivity
}

// Process feeds one sample through the step and returns its output.
func (s *Step) Process(value uint16) uint16 {
	switch s.kind {
	case KindMovingAverage:
		return s.mean.process(value)
	case KindDeltaGate:
		return s.gate.process(value)
	case KindExponentialSmooth:
		return s.smooth.process(value)
	default:
		return value
	}
}

func (m *movingAverage) process(value uint16) uint16 {
	m.cursor++
	if m.cursor >= m.size {
		m.cursor = 0
	}
	m.values[m.cursor] = value

	var total uint32
	for _, v := range m.values[:m.size] {
		total += uint32(v)
	}
	return uint16(total / uint32(m.size))
}

func (g *deltaGate) process(value uint16) uint16 {
	diff := int32(value) - int32(g.last)
	if diff < 0 {
		diff = -diff
	}
	if diff >= int32(g.sensitivity) {
		g.last = value
		return value
	}
	return g.last
}

func (e *exponentialSmooth) process(value uint16) uint16 {
	in := float32(value)
	if !e.seeded {
		e.smoothed = in
		e.seeded = true
	} else {
		e.smoothed += (in - e.smoothed) * e.factor
	}
	return uint16(Floor(e.smoothed))
}

// Floor rounds toward negative infinity. Integer conversion truncates
// toward zero, so negative fractions are stepped down explicitly.
func Floor(x float32) float32 {
	xi := int32(x)
	if x < 0 && x-float32(xi) != 0 {
		return float32(xi - 1)
	}
	return float32(xi)
}
