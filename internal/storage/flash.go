// Package storage emulates a page-erased NOR flash for the calibration
// record. Erased bytes read as 0xFF and may only be programmed once until
// their page is erased again.
package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

const (
	ErasedByte = 0xFF

	DefaultSize     = 64 * 1024
	DefaultPageSize = 1024
)

var (
	ErrOutOfRange = errors.New("flash address out of range")
	ErrUnaligned  = errors.New("flash page offset not aligned")
	ErrNotErased  = errors.New("flash location not erased")
	ErrClosed     = errors.New("flash closed")
)

type device interface {
	io.ReaderAt
	io.WriterAt
}

type syncer interface {
	Sync() error
}

// Flash is a fixed-size page-erasable store.
type Flash struct {
	mu       sync.Mutex
	dev      device
	closer   io.Closer
	size     uint32
	pageSize uint32
}

func newFlash(dev device, closer io.Closer, size, pageSize uint32) (*Flash, error) {
	if pageSize == 0 || size == 0 || size%pageSize != 0 {
		return nil, fmt.Errorf("invalid flash geometry: size=%d page=%d", size, pageSize)
	}
	return &Flash{dev: dev, closer: closer, size: size, pageSize: pageSize}, nil
}

// NewMemory returns an erased in-memory flash.
func NewMemory(size, pageSize uint32) (*Flash, error) {
	return newFlash(&memory{buf: bytes.Repeat([]byte{ErasedByte}, int(size))}, nil, size, pageSize)
}

// OpenFile opens or creates a flash image file. A short or new image is
// padded with erased bytes.
func OpenFile(path string, size, pageSize uint32) (*Flash, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open flash image %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat flash image %s: %w", path, err)
	}
	if info.Size() > int64(size) {
		f.Close()
		return nil, fmt.Errorf("flash image %s is %d bytes, expected at most %d", path, info.Size(), size)
	}
	if pad := int64(size) - info.Size(); pad > 0 {
		if _, err := f.WriteAt(bytes.Repeat([]byte{ErasedByte}, int(pad)), info.Size()); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to pad flash image %s: %w", path, err)
		}
	}

	fl, err := newFlash(f, f, size, pageSize)
	if err != nil {
		f.Close()
		return nil, err
	}
	return fl, nil
}

func (f *Flash) Size() uint32 {
	return f.size
}

func (f *Flash) PageSize() uint32 {
	return f.pageSize
}

func (f *Flash) checkRange(offset uint32, n int) error {
	if n < 0 || uint64(offset)+uint64(n) > uint64(f.size) {
		return fmt.Errorf("%w: 0x%X+%d (size 0x%X)", ErrOutOfRange, offset, n, f.size)
	}
	return nil
}

// ReadBytes reads n bytes starting at offset.
func (f *Flash) ReadBytes(offset uint32, n int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.dev == nil {
		return nil, ErrClosed
	}
	if err := f.checkRange(offset, n); err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := f.dev.ReadAt(buf, int64(offset)); err != nil {
		return nil, fmt.Errorf("flash read at 0x%X: %w", offset, err)
	}
	return buf, nil
}

// ErasePage resets the page starting at offset to 0xFF.
func (f *Flash) ErasePage(offset uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.dev == nil {
		return ErrClosed
	}
	if offset%f.pageSize != 0 {
		return fmt.Errorf("%w: 0x%X (page size 0x%X)", ErrUnaligned, offset, f.pageSize)
	}
	if err := f.checkRange(offset, int(f.pageSize)); err != nil {
		return err
	}
	if _, err := f.dev.WriteAt(bytes.Repeat([]byte{ErasedByte}, int(f.pageSize)), int64(offset)); err != nil {
		return fmt.Errorf("flash erase at 0x%X: %w", offset, err)
	}
	return f.sync()
}

// WriteBytes programs data at offset. Every target byte must be erased.
func (f *Flash) WriteBytes(offset uint32, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.dev == nil {
		return ErrClosed
	}
	if err := f.checkRange(offset, len(data)); err != nil {
		return err
	}
	current := make([]byte, len(data))
	if _, err := f.dev.ReadAt(current, int64(offset)); err != nil {
		return fmt.Errorf("flash read at 0x%X: %w", offset, err)
	}
	for i, b := range current {
		if b != ErasedByte {
			return fmt.Errorf("%w: 0x%X", ErrNotErased, offset+uint32(i))
		}
	}
	if _, err := f.dev.WriteAt(data, int64(offset)); err != nil {
		return fmt.Errorf("flash write at 0x%X: %w", offset, err)
	}
	return f.sync()
}

func (f *Flash) sync() error {
	if s, ok := f.dev.(syncer); ok {
		if err := s.Sync(); err != nil {
			return fmt.Errorf("flash sync: %w", err)
		}
	}
	return nil
}

func (f *Flash) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.dev = nil
	if f.closer == nil {
		return nil
	}
	err := f.closer.Close()
	f.closer = nil
	return err
}

type memory struct {
	buf []byte
}

func (m *memory) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(m.buf)) {
		return 0, io.EOF
	}
	n := copy(p, m.buf[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *memory) WriteAt(p []byte, off int64) (int, error) {
	if off+int64(len(p)) > int64(len(m.buf)) {
		return 0, io.ErrShortWrite
	}
	return copy(m.buf[off:], p), nil
}
