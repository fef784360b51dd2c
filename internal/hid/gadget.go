package hid

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// DefaultDevice is the first configfs HID gadget function.
const DefaultDevice = "/dev/hidg0"

// ErrWouldBlock means the host has not polled the previous report yet.
// The caller should drop this report and try again next iteration.
var ErrWouldBlock = errors.New("hid endpoint busy")

var ErrClosed = errors.New("hid gadget closed")

// GadgetWriter writes reports to a /dev/hidgN character device opened
// non-blocking.
type GadgetWriter struct {
	mu   sync.Mutex
	path string
	fd   int
}

// OpenGadget opens the gadget device for writing.
func OpenGadget(path string) (*GadgetWriter, error) {
	fd, err := unix.Open(path, unix.O_WRONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return &GadgetWriter{path: path, fd: fd}, nil
}

// WriteReport sends one report. A full endpoint yields ErrWouldBlock.
func (g *GadgetWriter) WriteReport(r Report) error {
	data, err := r.MarshalBinary()
	if err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.fd < 0 {
		return ErrClosed
	}

	n, err := unix.Write(g.fd, data)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) {
			return ErrWouldBlock
		}
		return fmt.Errorf("failed to write report to %s: %w", g.path, err)
	}
	if n != len(data) {
		return fmt.Errorf("short report write to %s: %d of %d bytes", g.path, n, len(data))
	}
	return nil
}

func (g *GadgetWriter) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.fd < 0 {
		return nil
	}
	err := unix.Close(g.fd)
	g.fd = -1
	return err
}
