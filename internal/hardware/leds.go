package hardware

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// PwmIndicator drives a status LED through the sysfs PWM class. Duty is
// expressed in nanoseconds, so MaxDuty equals the period.
type PwmIndicator struct {
	dir    string
	period uint32
	mu     sync.Mutex
	duty   uint32
}

// OpenPwmIndicator exports channel on pwmchipN below root (PwmClassDir
// when empty), sets the period and enables the output at zero duty.
func OpenPwmIndicator(root string, chip, channel int, period time.Duration) (*PwmIndicator, error) {
	if root == "" {
		root = PwmClassDir
	}
	if period <= 0 || period.Nanoseconds() > int64(^uint32(0)) {
		return nil, fmt.Errorf("pwm period %v out of range", period)
	}

	chipDir := filepath.Join(root, fmt.Sprintf("pwmchip%d", chip))
	dir := filepath.Join(chipDir, fmt.Sprintf("pwm%d", channel))

	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		if err := writeSysfs(filepath.Join(chipDir, "export"), strconv.Itoa(channel)); err != nil {
			return nil, err
		}
		if _, err := os.Stat(dir); err != nil {
			return nil, fmt.Errorf("pwm channel %d not exported: %w", channel, err)
		}
	}

	p := &PwmIndicator{dir: dir, period: uint32(period.Nanoseconds())}

	// duty_cycle may not exceed the period, so clear it first
	if err := writeSysfs(filepath.Join(dir, "duty_cycle"), "0"); err != nil {
		return nil, err
	}
	if err := writeSysfs(filepath.Join(dir, "period"), strconv.FormatUint(uint64(p.period), 10)); err != nil {
		return nil, err
	}
	if err := writeSysfs(filepath.Join(dir, "enable"), "1"); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *PwmIndicator) MaxDuty() uint32 {
	return p.period
}

func (p *PwmIndicator) SetDuty(duty uint32) error {
	if duty > p.period {
		duty = p.period
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := writeSysfs(filepath.Join(p.dir, "duty_cycle"), strconv.FormatUint(uint64(duty), 10)); err != nil {
		return err
	}
	p.duty = duty
	return nil
}

func (p *PwmIndicator) Duty() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.duty
}

// Close turns the output off.
func (p *PwmIndicator) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := writeSysfs(filepath.Join(p.dir, "duty_cycle"), "0"); err != nil {
		return err
	}
	return writeSysfs(filepath.Join(p.dir, "enable"), "0")
}
