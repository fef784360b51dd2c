package hardware

import (
	"errors"
	"fmt"
	"sync"

	"periph.io/x/conn/v3/analog"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/ads1x15"
	"periph.io/x/host/v3"
)

const (
	// ADS1115 single-ended conversions span 15 bits; shifting by 3 maps
	// them onto the 12-bit range the axes are calibrated in.
	ads1115Shift = 3

	ads1115FullScale  = 4096 * physic.MilliVolt
	ads1115SampleRate = 860 * physic.Hertz
)

var ads1115Channels = [...]ads1x15.Channel{
	ads1x15.Channel0,
	ads1x15.Channel1,
	ads1x15.Channel2,
	ads1x15.Channel3,
}

// ADS1115Sampler reads the four single-ended inputs of an ADS1115 on I2C.
type ADS1115Sampler struct {
	mu   sync.Mutex
	bus  i2c.BusCloser
	pins [len(ads1115Channels)]analog.PinADC
}

// OpenADS1115 opens busName (empty for the first bus) and prepares a
// pin for every channel listed.
func OpenADS1115(busName string, addr uint16, channels []int) (*ADS1115Sampler, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init failed: %w", err)
	}

	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("i2c open failed on bus %q: %w", busName, err)
	}

	opts := ads1x15.DefaultOpts
	if addr != 0 {
		opts.I2cAddress = addr
	}
	dev, err := ads1x15.NewADS1115(bus, &opts)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("ads1115 init failed at 0x%X: %w", opts.I2cAddress, err)
	}

	s := &ADS1115Sampler{bus: bus}
	for _, ch := range channels {
		if ch < 0 || ch >= len(ads1115Channels) {
			s.Close()
			return nil, fmt.Errorf("ads1115 has no channel %d", ch)
		}
		if s.pins[ch] != nil {
			continue
		}
		pin, err := dev.PinForChannel(ads1115Channels[ch], ads1115FullScale, ads1115SampleRate, ads1x15.BestQuality)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("ads1115 channel %d: %w", ch, err)
		}
		s.pins[ch] = pin
	}
	return s, nil
}

func (s *ADS1115Sampler) Sample(channel int) (uint16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if channel < 0 || channel >= len(s.pins) || s.pins[channel] == nil {
		return 0, fmt.Errorf("ads1115 channel %d not configured", channel)
	}
	sample, err := s.pins[channel].Read()
	if err != nil {
		return 0, err
	}
	return toAdc(int64(sample.Raw) >> ads1115Shift), nil
}

func (s *ADS1115Sampler) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for i, pin := range s.pins {
		if pin == nil {
			continue
		}
		if err := pin.Halt(); err != nil {
			errs = append(errs, err)
		}
		s.pins[i] = nil
	}
	if s.bus != nil {
		if err := s.bus.Close(); err != nil {
			errs = append(errs, err)
		}
		s.bus = nil
	}
	return errors.Join(errs...)
}
