package hardware

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// readSysfsInt reads a single integer attribute.
func readSysfsInt(path string) (int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed reading %s: %w", path, err)
	}
	value, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed parsing %s: %w", path, err)
	}
	return value, nil
}

// writeSysfs writes a single attribute value.
func writeSysfs(path string, value string) error {
	if err := os.WriteFile(path, []byte(value), 0o644); err != nil {
		return fmt.Errorf("failed writing %s: %w", path, err)
	}
	return nil
}

// toAdc clamps a conversion result into the 12-bit range.
func toAdc(v int64) uint16 {
	if v < 0 {
		return 0
	}
	if v > AdcMax {
		return AdcMax
	}
	return uint16(v)
}

// resolveIIODevice accepts either a device name (iio:device0) or a full
// sysfs directory.
func resolveIIODevice(device string) string {
	if filepath.IsAbs(device) {
		return device
	}
	return filepath.Join(IIODevicesDir, device)
}
