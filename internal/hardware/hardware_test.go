package hardware

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeAttr(t *testing.T, path, value string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	if err := os.WriteFile(path, []byte(value), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

func readAttr(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	return strings.TrimSpace(string(data))
}

func TestToAdc(t *testing.T) {
	tests := []struct {
		in   int64
		want uint16
	}{
		{-5, 0},
		{0, 0},
		{2048, 2048},
		{4095, 4095},
		{70000, 4095},
	}
	for _, tt := range tests {
		if got := toAdc(tt.in); got != tt.want {
			t.Errorf("toAdc(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestIIOSampler(t *testing.T) {
	dir := t.TempDir()
	writeAttr(t, filepath.Join(dir, "in_voltage0_raw"), "3300\n")
	writeAttr(t, filepath.Join(dir, "in_voltage1_raw"), "garbage\n")

	s, err := NewIIOSampler(dir)
	if err != nil {
		t.Fatalf("NewIIOSampler failed: %v", err)
	}

	v, err := s.Sample(0)
	if err != nil {
		t.Fatalf("Sample(0) failed: %v", err)
	}
	if v != 3300 {
		t.Errorf("Sample(0) = %d, want 3300", v)
	}
	if _, err := s.Sample(1); err == nil {
		t.Error("expected parse error for channel 1")
	}
	if _, err := s.Sample(7); err == nil {
		t.Error("expected error for missing channel")
	}
}

func TestIIOSamplerMissingDevice(t *testing.T) {
	if _, err := NewIIOSampler(t.TempDir()); err == nil {
		t.Error("expected error for device without voltage channels")
	}
}

func TestResolveIIODevice(t *testing.T) {
	if got := resolveIIODevice("iio:device1"); got != filepath.Join(IIODevicesDir, "iio:device1") {
		t.Errorf("unexpected path %s", got)
	}
	if got := resolveIIODevice("/tmp/adc"); got != "/tmp/adc" {
		t.Errorf("absolute path rewritten: %s", got)
	}
}

func TestPwmIndicator(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "pwmchip0", "pwm1")
	for _, attr := range []string{"period", "duty_cycle", "enable"} {
		writeAttr(t, filepath.Join(dir, attr), "0")
	}

	p, err := OpenPwmIndicator(root, 0, 1, time.Millisecond)
	if err != nil {
		t.Fatalf("OpenPwmIndicator failed: %v", err)
	}
	if p.MaxDuty() != 1000000 {
		t.Errorf("MaxDuty = %d, want 1000000", p.MaxDuty())
	}
	if got := readAttr(t, filepath.Join(dir, "period")); got != "1000000" {
		t.Errorf("period = %s", got)
	}
	if got := readAttr(t, filepath.Join(dir, "enable")); got != "1" {
		t.Errorf("enable = %s", got)
	}

	if err := p.SetDuty(p.MaxDuty() / 8); err != nil {
		t.Fatalf("SetDuty failed: %v", err)
	}
	if got := readAttr(t, filepath.Join(dir, "duty_cycle")); got != "125000" {
		t.Errorf("duty_cycle = %s", got)
	}

	if err := p.SetDuty(5000000); err != nil {
		t.Fatalf("SetDuty failed: %v", err)
	}
	if p.Duty() != p.MaxDuty() {
		t.Errorf("duty not clamped to period: %d", p.Duty())
	}

	if err := p.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if got := readAttr(t, filepath.Join(dir, "enable")); got != "0" {
		t.Errorf("enable after close = %s", got)
	}
}

func TestPwmIndicatorExportFails(t *testing.T) {
	root := t.TempDir()
	writeAttr(t, filepath.Join(root, "pwmchip0", "export"), "")

	if _, err := OpenPwmIndicator(root, 0, 0, time.Second); err == nil {
		t.Error("expected error when the channel does not appear after export")
	}
}

func TestPwmIndicatorRejectsPeriod(t *testing.T) {
	if _, err := OpenPwmIndicator(t.TempDir(), 0, 0, 0); err == nil {
		t.Error("expected error for zero period")
	}
}
