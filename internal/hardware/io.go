package hardware

import (
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"

	"throttle-quadrant/internal/logger"
)

// GpioButtons holds the button input lines of one GPIO chip.
type GpioButtons struct {
	logger *logger.Logger
	chip   *gpiocdev.Chip
	lines  map[string]*gpiocdev.Line
	mu     sync.RWMutex
}

// OpenGpioButtons requests every named line as a biased input. With
// activeLow the lines are pulled up and read active when grounded.
func OpenGpioButtons(chipName string, lines map[string]int, activeLow bool, l *logger.Logger) (*GpioButtons, error) {
	chip, err := gpiocdev.NewChip(chipName, gpiocdev.WithConsumer(GpioConsumer))
	if err != nil {
		return nil, fmt.Errorf("failed to open GPIO chip %s: %w", chipName, err)
	}

	b := &GpioButtons{
		logger: l,
		chip:   chip,
		lines:  make(map[string]*gpiocdev.Line),
	}

	for name, offset := range lines {
		opts := []gpiocdev.LineReqOption{gpiocdev.AsInput}
		if activeLow {
			opts = append(opts, gpiocdev.AsActiveLow, gpiocdev.WithPullUp)
		} else {
			opts = append(opts, gpiocdev.WithPullDown)
		}
		line, err := chip.RequestLine(offset, opts...)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("failed to request GPIO line %d (%s): %w", offset, name, err)
		}
		b.lines[name] = line
		l.Infof("Configured button %s: chip=%s, line=%d", name, chipName, offset)
	}

	return b, nil
}

// Input returns the named line as a button input.
func (b *GpioButtons) Input(name string) (*GpioInput, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if _, ok := b.lines[name]; !ok {
		return nil, fmt.Errorf("unknown button: %s", name)
	}
	return &GpioInput{buttons: b, name: name}, nil
}

func (b *GpioButtons) read(name string) (bool, error) {
	b.mu.RLock()
	line, ok := b.lines[name]
	b.mu.RUnlock()

	if !ok {
		return false, fmt.Errorf("unknown button: %s", name)
	}
	value, err := line.Value()
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return value == 1, nil
}

func (b *GpioButtons) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for name, line := range b.lines {
		line.Close()
		b.logger.Debugf("Closed GPIO line for %s", name)
	}
	b.lines = map[string]*gpiocdev.Line{}
	if b.chip != nil {
		b.chip.Close()
		b.chip = nil
	}
}

// GpioInput is one button line.
type GpioInput struct {
	buttons *GpioButtons
	name    string
}

func (in *GpioInput) IsActive() (bool, error) {
	return in.buttons.read(in.name)
}
