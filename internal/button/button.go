// Package button turns raw digital samples into debounced press edges.
package button

// DefaultWindow is the settle window, in loop ticks, used by the stock
// firmware.
const DefaultWindow = 200

// Input is a single digital input line.
type Input interface {
	IsActive() (bool, error)
}

// Button debounces an Input. Time is measured in calls, so the window
// assumes a constant loop period.
type Button struct {
	input      Input
	window     uint32
	observed   bool
	lastChange uint32
	current    uint32
}

func New(input Input, window uint32) *Button {
	return &Button{input: input, window: window}
}

// Pressed samples the input and reports true on an accepted transition
// into the active state. A failed read counts as an unchanged sample.
func (b *Button) Pressed() (bool, error) {
	active, err := b.input.IsActive()
	if err != nil {
		b.Update(b.observed)
		return false, err
	}
	return b.Update(active), nil
}

// Update advances one tick with a raw sample.
func (b *Button) Update(active bool) bool {
	b.current++
	if active == b.observed {
		return false
	}
	if b.current-b.lastChange <= b.window {
		return false
	}
	b.observed = active
	b.lastChange = b.current
	return active
}

// State returns the debounced state.
func (b *Button) State() bool {
	return b.observed
}

func (b *Button) Window() uint32 {
	return b.window
}
