package axis

import (
	"errors"
	"testing"

	"throttle-quadrant/internal/filter"
)

func TestNewChannelStartsAtMin(t *testing.T) {
	c := New(Bounds{Min: 3300, Max: 4090}, false)
	if c.RawOutput() != 3300 {
		t.Errorf("expected initial value 3300, got %d", c.RawOutput())
	}
	if c.Len() != 0 {
		t.Errorf("expected empty chain, got %d", c.Len())
	}
}

func TestIngestWithoutChainPassesThrough(t *testing.T) {
	c := New(Bounds{Min: 0, Max: 4095}, false)
	c.Ingest(1234)
	if c.RawOutput() != 1234 || c.Output() != 1234 {
		t.Errorf("expected 1234, got raw=%d out=%d", c.RawOutput(), c.Output())
	}
}

func TestAddStepCapacity(t *testing.T) {
	c := New(Bounds{Min: 0, Max: 4095}, false)
	for i := 0; i < Capacity; i++ {
		if err := c.AddStep(filter.NewDeltaGate(1)); err != nil {
			t.Fatalf("AddStep %d failed: %v", i, err)
		}
	}
	err := c.AddStep(filter.NewDeltaGate(1))
	if !errors.Is(err, ErrChainFull) {
		t.Fatalf("expected ErrChainFull, got %v", err)
	}
	if c.Len() != Capacity {
		t.Errorf("chain length changed on overflow: %d", c.Len())
	}
}

func TestChainOrderMatters(t *testing.T) {
	gateFirst := New(Bounds{Min: 0, Max: 4095}, false)
	meanFirst := New(Bounds{Min: 0, Max: 4095}, false)

	mean, _ := filter.NewMovingAverage(2)
	gateFirst.AddStep(filter.NewDeltaGate(300))
	gateFirst.AddStep(mean)

	mean, _ = filter.NewMovingAverage(2)
	meanFirst.AddStep(mean)
	meanFirst.AddStep(filter.NewDeltaGate(300))

	gateFirst.Ingest(400)
	meanFirst.Ingest(400)

	// gate->mean: 400 passes the gate, the half-empty window averages to 200.
	// mean->gate: the window yields 200, which the gate holds back at 0.
	if gateFirst.RawOutput() != 200 {
		t.Errorf("gate->mean expected 200, got %d", gateFirst.RawOutput())
	}
	if meanFirst.RawOutput() != 0 {
		t.Errorf("mean->gate expected 0, got %d", meanFirst.RawOutput())
	}
}

func TestOutputReversed(t *testing.T) {
	c := New(Bounds{Min: 1000, Max: 3000}, true)
	tests := []struct {
		in, want uint16
	}{
		{1000, 3000},
		{3000, 1000},
		{2500, 1500},
		{500, 3000},  // below min
		{3500, 1000}, // above max
	}
	for _, tt := range tests {
		c.Ingest(tt.in)
		if got := c.Output(); got != tt.want {
			t.Errorf("reversed Output(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestOutputClampsForward(t *testing.T) {
	c := New(Bounds{Min: 1000, Max: 3000}, false)
	c.Ingest(10)
	if c.Output() != 1000 {
		t.Errorf("expected clamp to 1000, got %d", c.Output())
	}
	c.Ingest(60000)
	if c.Output() != 3000 {
		t.Errorf("expected clamp to 3000, got %d", c.Output())
	}
}

func TestOutputRangedCalibratedScenario(t *testing.T) {
	c := New(Bounds{Min: 3300, Max: 4090}, true)

	c.Ingest(4090)
	if got := c.OutputRanged(0, 1024); got != 0 {
		t.Errorf("raw 4090: expected 0, got %d", got)
	}
	c.Ingest(3300)
	if got := c.OutputRanged(0, 1024); got != 1024 {
		t.Errorf("raw 3300: expected 1024, got %d", got)
	}
	c.Ingest(3695)
	if got := c.OutputRanged(0, 1024); got != 512 {
		t.Errorf("raw 3695: expected 512, got %d", got)
	}
}

func TestOutputRangedEndpoints(t *testing.T) {
	ranges := []struct{ lo, hi uint16 }{{0, 1024}, {5, 20}}
	for _, max := range []uint16{2000, 3000, 3700, 4090, 4095} {
		for min := uint16(0); min < max; min++ {
			c := New(Bounds{Min: min, Max: max}, false)
			for _, r := range ranges {
				c.Ingest(max)
				if got := c.OutputRanged(r.lo, r.hi); got != r.hi {
					t.Fatalf("[%d,%d] at max: expected %d, got %d", min, max, r.hi, got)
				}
				c.Ingest(min)
				if got := c.OutputRanged(r.lo, r.hi); got != r.lo {
					t.Fatalf("[%d,%d] at min: expected %d, got %d", min, max, r.lo, got)
				}
			}
		}
	}
}

func TestOutputRangedMonotonic(t *testing.T) {
	for _, reversed := range []bool{false, true} {
		c := New(Bounds{Min: 3300, Max: 4090}, reversed)
		c.Ingest(3300)
		prev := c.OutputRanged(0, 1024)
		for raw := uint16(3301); raw <= 4090; raw++ {
			c.Ingest(raw)
			got := c.OutputRanged(0, 1024)
			if !reversed && got < prev {
				t.Fatalf("forward output decreased at raw %d: %d -> %d", raw, prev, got)
			}
			if reversed && got > prev {
				t.Fatalf("reversed output increased at raw %d: %d -> %d", raw, prev, got)
			}
			prev = got
		}
	}
}

func TestOutputRangedDegenerateRange(t *testing.T) {
	c := New(Bounds{Min: 2000, Max: 2000}, false)
	c.Ingest(2000)
	if got := c.OutputRanged(0, 1024); got != 0 {
		t.Errorf("degenerate range should yield lo, got %d", got)
	}
	if !c.Bounds().Degenerate() {
		t.Error("expected Degenerate() to be true")
	}
}

func TestTuneDeltaGates(t *testing.T) {
	c := New(Bounds{Min: 0, Max: 4095}, false)
	c.AddStep(filter.NewDeltaGate(50))
	c.AddStep(filter.NewExponentialSmooth(1))

	c.Ingest(1000)
	c.Ingest(1010)
	if c.RawOutput() != 1000 {
		t.Fatalf("gate of 50 should hold 1000, got %d", c.RawOutput())
	}

	c.TuneDeltaGates(5)
	c.Ingest(1010)
	if c.RawOutput() != 1010 {
		t.Errorf("gate of 5 should pass 1010, got %d", c.RawOutput())
	}
}
