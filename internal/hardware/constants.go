package hardware

const (
	// GpioConsumer labels requested lines in gpioinfo
	GpioConsumer = "throttle-quadrant"

	IIODevicesDir = "/sys/bus/iio/devices"
	PwmClassDir   = "/sys/class/pwm"

	// AdcMax is the top of the 12-bit conversion range every sampler
	// reports in.
	AdcMax = 4095
)
