package hardware

import (
	"fmt"
	"path/filepath"
)

// IIOSampler reads single conversions from a Linux IIO ADC through
// in_voltageN_raw.
type IIOSampler struct {
	dir string
}

func NewIIOSampler(device string) (*IIOSampler, error) {
	dir := resolveIIODevice(device)
	matches, err := filepath.Glob(filepath.Join(dir, "in_voltage*_raw"))
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("ADC sysfs not found: %s", dir)
	}
	return &IIOSampler{dir: dir}, nil
}

func (s *IIOSampler) Sample(channel int) (uint16, error) {
	path := filepath.Join(s.dir, fmt.Sprintf("in_voltage%d_raw", channel))
	value, err := readSysfsInt(path)
	if err != nil {
		return 0, err
	}
	return toAdc(value), nil
}
