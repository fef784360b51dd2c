// Package hid encodes joystick input reports and writes them to a Linux
// USB gadget HID function.
package hid

import (
	"encoding/binary"
	"fmt"
)

// ReportSize is the encoded length of a Report.
const ReportSize = 7

// LogicalMax is the upper bound of every axis field.
const LogicalMax = 1024

// JoystickDescriptor describes Report: three 16-bit absolute axes with a
// logical range of 0..1024 followed by eight one-bit buttons.
var JoystickDescriptor = []byte{
	0x05, 0x01, // Usage Page (Generic Desktop)
	0x09, 0x04, // Usage (Joystick)
	0xa1, 0x01, // Collection (Application)
	0x09, 0x01, //   Usage (Pointer)
	0xa1, 0x00, //   Collection (Physical)
	0x09, 0x30, //     Usage (X)
	0x09, 0x31, //     Usage (Y)
	0x09, 0x32, //     Usage (Z)
	0x15, 0x00, //     Logical Minimum (0)
	0x26, 0x00, 0x04, // Logical Maximum (1024)
	0x75, 0x10, //     Report Size (16)
	0x95, 0x03, //     Report Count (3)
	0x81, 0x02, //     Input (Data, Variable, Absolute)
	0xc0,       //   End Collection
	0x05, 0x09, //   Usage Page (Button)
	0x19, 0x01, //   Usage Minimum (1)
	0x29, 0x08, //   Usage Maximum (8)
	0x15, 0x00, //   Logical Minimum (0)
	0x25, 0x01, //   Logical Maximum (1)
	0x75, 0x01, //   Report Size (1)
	0x95, 0x08, //   Report Count (8)
	0x81, 0x02, //   Input (Data, Variable, Absolute)
	0xc0, // End Collection
}

// Button bits
const (
	ButtonReverse uint8 = 1 << 7
)

// Report is one joystick input report.
type Report struct {
	X       uint16 `json:"x"`
	Y       uint16 `json:"y"`
	Z       uint16 `json:"z"`
	Buttons uint8  `json:"buttons"`
}

// MarshalBinary packs the report little-endian: x, y, z, buttons.
func (r Report) MarshalBinary() ([]byte, error) {
	buf := make([]byte, ReportSize)
	binary.LittleEndian.PutUint16(buf[0:], r.X)
	binary.LittleEndian.PutUint16(buf[2:], r.Y)
	binary.LittleEndian.PutUint16(buf[4:], r.Z)
	buf[6] = r.Buttons
	return buf, nil
}

func (r *Report) UnmarshalBinary(data []byte) error {
	if len(data) != ReportSize {
		return fmt.Errorf("report must be %d bytes, got %d", ReportSize, len(data))
	}
	r.X = binary.LittleEndian.Uint16(data[0:])
	r.Y = binary.LittleEndian.Uint16(data[2:])
	r.Z = binary.LittleEndian.Uint16(data[4:])
	r.Buttons = data[6]
	return nil
}

// Axes returns the axis fields in report order.
func (r Report) Axes() [3]uint16 {
	return [3]uint16{r.X, r.Y, r.Z}
}
