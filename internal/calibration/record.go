// Package calibration persists per-axis bounds in a fixed binary layout:
// a little-endian uint16 magic followed by one little-endian (min,max)
// uint16 pair per axis.
package calibration

import (
	"encoding/binary"
	"errors"
	"fmt"

	"throttle-quadrant/internal/axis"
)

const (
	Magic uint16 = 0xAAAA

	// DefaultOffset is the start of the last 2 KiB of a 64 KiB part.
	DefaultOffset uint32 = 0xF800

	AxisCount = 3

	DefaultMin uint16 = 3300
	DefaultMax uint16 = 4090
)

var ErrShortRead = errors.New("calibration record truncated")

// Storage is the non-volatile page store holding the record.
type Storage interface {
	ReadBytes(offset uint32, n int) ([]byte, error)
	ErasePage(offset uint32) error
	WriteBytes(offset uint32, data []byte) error
}

type Record struct {
	Bounds []axis.Bounds `json:"bounds"`
}

// Default returns the factory bounds for n axes.
func Default(n int) Record {
	r := Record{Bounds: make([]axis.Bounds, n)}
	for i := range r.Bounds {
		r.Bounds[i] = axis.Bounds{Min: DefaultMin, Max: DefaultMax}
	}
	return r
}

// Size is the encoded length of a record with n axes.
func Size(n int) int {
	return 2 + 4*n
}

func (r Record) Clone() Record {
	return Record{Bounds: append([]axis.Bounds(nil), r.Bounds...)}
}

func (r Record) Equal(other Record) bool {
	if len(r.Bounds) != len(other.Bounds) {
		return false
	}
	for i := range r.Bounds {
		if r.Bounds[i] != other.Bounds[i] {
			return false
		}
	}
	return true
}

// SetMin stores reading as the minimum of axis i, never above its maximum.
func (r Record) SetMin(i int, reading uint16) {
	r.Bounds[i].Min = min(reading, r.Bounds[i].Max)
}

// SetMax stores reading as the maximum of axis i, never below its minimum.
func (r Record) SetMax(i int, reading uint16) {
	r.Bounds[i].Max = max(reading, r.Bounds[i].Min)
}

func (r Record) words() []uint16 {
	words := make([]uint16, 0, 1+2*len(r.Bounds))
	words = append(words, Magic)
	for _, b := range r.Bounds {
		words = append(words, b.Min, b.Max)
	}
	return words
}

// Encode returns the on-device byte layout.
func Encode(r Record) []byte {
	buf := make([]byte, Size(len(r.Bounds)))
	for i, w := range r.words() {
		binary.LittleEndian.PutUint16(buf[i*2:], w)
	}
	return buf
}

// Decode parses a record of n axes. ok is false when the magic does not
// match, in which case the bytes are not interpreted further.
func Decode(data []byte, n int) (rec Record, ok bool, err error) {
	if len(data) < Size(n) {
		return Record{}, false, fmt.Errorf("%w: %d bytes, need %d", ErrShortRead, len(data), Size(n))
	}
	if binary.LittleEndian.Uint16(data[0:2]) != Magic {
		return Record{}, false, nil
	}
	rec = Record{Bounds: make([]axis.Bounds, n)}
	for i := range rec.Bounds {
		off := 2 + i*4
		rec.Bounds[i] = axis.Bounds{
			Min: binary.LittleEndian.Uint16(data[off:]),
			Max: binary.LittleEndian.Uint16(data[off+2:]),
		}
	}
	return rec, true, nil
}

// Load reads the record for n axes at offset. A record with a foreign
// magic yields the default bounds and stored=false. Storage failures are
// returned.
func Load(s Storage, offset uint32, n int) (rec Record, stored bool, err error) {
	data, err := s.ReadBytes(offset, Size(n))
	if err != nil {
		return Record{}, false, fmt.Errorf("failed to read calibration at 0x%X: %w", offset, err)
	}
	rec, ok, err := Decode(data, n)
	if err != nil {
		return Record{}, false, err
	}
	if !ok {
		return Default(n), false, nil
	}
	return rec, true, nil
}

// Save erases the page at offset and programs the record one half-word at
// a time.
func Save(s Storage, offset uint32, r Record) error {
	if err := s.ErasePage(offset); err != nil {
		return fmt.Errorf("failed to erase calibration page 0x%X: %w", offset, err)
	}
	var half [2]byte
	for i, w := range r.words() {
		addr := offset + uint32(i)*2
		binary.LittleEndian.PutUint16(half[:], w)
		if err := s.WriteBytes(addr, half[:]); err != nil {
			return fmt.Errorf("failed to write calibration at 0x%X: %w", addr, err)
		}
	}
	return nil
}
