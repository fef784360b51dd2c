package storage

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func newTestFlash(t *testing.T) *Flash {
	t.Helper()
	f, err := NewMemory(4096, 1024)
	if err != nil {
		t.Fatalf("NewMemory failed: %v", err)
	}
	return f
}

func TestMemoryStartsErased(t *testing.T) {
	f := newTestFlash(t)
	data, err := f.ReadBytes(0, 4096)
	if err != nil {
		t.Fatalf("ReadBytes failed: %v", err)
	}
	if !bytes.Equal(data, bytes.Repeat([]byte{ErasedByte}, 4096)) {
		t.Error("expected fresh flash to be erased")
	}
}

func TestWriteReadErase(t *testing.T) {
	f := newTestFlash(t)

	if err := f.WriteBytes(1024, []byte{0xAA, 0x0A}); err != nil {
		t.Fatalf("WriteBytes failed: %v", err)
	}
	data, err := f.ReadBytes(1024, 2)
	if err != nil {
		t.Fatalf("ReadBytes failed: %v", err)
	}
	if !bytes.Equal(data, []byte{0xAA, 0x0A}) {
		t.Errorf("unexpected data %x", data)
	}

	if err := f.WriteBytes(1024, []byte{0x00}); !errors.Is(err, ErrNotErased) {
		t.Fatalf("expected ErrNotErased on reprogram, got %v", err)
	}

	if err := f.ErasePage(1024); err != nil {
		t.Fatalf("ErasePage failed: %v", err)
	}
	data, _ = f.ReadBytes(1024, 2)
	if !bytes.Equal(data, []byte{ErasedByte, ErasedByte}) {
		t.Errorf("expected erased bytes, got %x", data)
	}
	if err := f.WriteBytes(1024, []byte{0x00}); err != nil {
		t.Errorf("write after erase failed: %v", err)
	}
}

func TestEraseLeavesOtherPages(t *testing.T) {
	f := newTestFlash(t)
	f.WriteBytes(0, []byte{1})
	f.WriteBytes(2048, []byte{2})

	if err := f.ErasePage(2048); err != nil {
		t.Fatalf("ErasePage failed: %v", err)
	}
	data, _ := f.ReadBytes(0, 1)
	if data[0] != 1 {
		t.Errorf("erase touched another page: %x", data)
	}
}

func TestRangeChecks(t *testing.T) {
	f := newTestFlash(t)

	if _, err := f.ReadBytes(4090, 10); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange on read, got %v", err)
	}
	if err := f.WriteBytes(4095, []byte{1, 2}); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange on write, got %v", err)
	}
	if err := f.ErasePage(4096); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange on erase, got %v", err)
	}
	if err := f.ErasePage(100); !errors.Is(err, ErrUnaligned) {
		t.Errorf("expected ErrUnaligned, got %v", err)
	}
}

func TestInvalidGeometry(t *testing.T) {
	if _, err := NewMemory(1000, 1024); err == nil {
		t.Error("expected error for size not a multiple of page size")
	}
	if _, err := NewMemory(1024, 0); err == nil {
		t.Error("expected error for zero page size")
	}
}

func TestClosedFlash(t *testing.T) {
	f := newTestFlash(t)
	if err := f.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := f.ReadBytes(0, 1); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestFileImagePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flash.bin")

	f, err := OpenFile(path, 4096, 1024)
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	if err := f.WriteBytes(3072, []byte{0xAA, 0x0A, 0xE4, 0x0C}); err != nil {
		t.Fatalf("WriteBytes failed: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat image: %v", err)
	}
	if info.Size() != 4096 {
		t.Errorf("expected 4096 byte image, got %d", info.Size())
	}

	f, err = OpenFile(path, 4096, 1024)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer f.Close()
	data, err := f.ReadBytes(3072, 4)
	if err != nil {
		t.Fatalf("ReadBytes failed: %v", err)
	}
	if !bytes.Equal(data, []byte{0xAA, 0x0A, 0xE4, 0x0C}) {
		t.Errorf("unexpected data after reopen: %x", data)
	}
}

func TestFileImageTooLarge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flash.bin")
	if err := os.WriteFile(path, make([]byte, 8192), 0o644); err != nil {
		t.Fatalf("write image: %v", err)
	}
	if _, err := OpenFile(path, 4096, 1024); err == nil {
		t.Error("expected error for oversized image")
	}
}
