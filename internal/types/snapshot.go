package types

import (
	"time"

	"throttle-quadrant/internal/axis"
	"throttle-quadrant/internal/hid"
)

// Snapshot is the controller state after one loop iteration.
type Snapshot struct {
	Time        time.Time     `json:"time"`
	Stage       Stage         `json:"stage"`
	Report      hid.Report    `json:"report"`
	Raw         []uint16      `json:"raw"`
	Bounds      []axis.Bounds `json:"bounds"`
	Sensitivity uint16        `json:"sensitivity"`
	Reverse     bool          `json:"reverse"`
}
